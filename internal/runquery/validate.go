package runquery

import "fmt"

// Validate checks a filter for structural problems before it reaches a
// backend compiler: empty tag keys, unknown attributes, nil elements.
// A nil filter is valid and means "match all runs".
func Validate(f Filter) error {
	if f == nil {
		return nil
	}

	switch filter := f.(type) {
	case TagEquals:
		if filter.Key == "" {
			return fmt.Errorf("tag filter requires a non-empty key")
		}
		return nil
	case *TagEquals:
		return Validate(*filter)
	case AttrEquals:
		switch filter.Attr {
		case AttrRunID, AttrExperimentID, AttrStatus:
			return nil
		default:
			return fmt.Errorf("unknown run attribute %q", filter.Attr)
		}
	case *AttrEquals:
		return Validate(*filter)
	case And:
		for i, elem := range filter.Filters {
			if elem == nil {
				return fmt.Errorf("and[%d]: nil filter", i)
			}
			if err := Validate(elem); err != nil {
				return fmt.Errorf("and[%d]: %w", i, err)
			}
		}
		return nil
	case *And:
		return Validate(*filter)
	default:
		return fmt.Errorf("unsupported filter type: %T", f)
	}
}
