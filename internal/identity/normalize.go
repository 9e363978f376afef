package identity

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FloatSigFigs is the significant-figure precision hyperparameter floats
// are clamped to before hashing. Two floats differing only below this
// precision normalize to the same value, absorbing representation noise
// from config round-trips (YAML vs JSON, string-formatted floats, etc).
const FloatSigFigs = 12

// runMetadataKeys are hyperparameter-dict entries that identify WHERE a
// trial ran, not WHAT it ran. They are stripped before trial identity is
// computed so re-running the same hyperparameters elsewhere resolves to
// the same trial key.
var runMetadataKeys = map[string]struct{}{
	"run_id":        {},
	"mlflow_run_id": {},
	"trial_id":      {},
	"trial_number":  {},
}

// UnsupportedValueError reports a hyperparameter value whose type has no
// deterministic canonical form. Hyperparameters must be JSON-shaped
// scalars or nested collections of them; anything else (a live object, a
// test double, a channel) is a caller bug and fails loudly rather than
// being silently coerced into identity.
type UnsupportedValueError struct {
	Key  string
	Type string
}

func (e *UnsupportedValueError) Error() string {
	return fmt.Sprintf("hyperparameter %q has unsupported type %s", e.Key, e.Type)
}

// NormalizeHParams maps a raw hyperparameter map to its canonical form:
//
//   - floats re-rendered at FloatSigFigs significant figures
//   - strings lower-cased and trimmed
//   - booleans and integers passed through
//   - nested maps and slices normalized element-wise
//   - run-metadata keys (run id, trial number) stripped
//
// Normalization is idempotent (normalizing an already-normalized map is a
// no-op) and key-order-insensitive (canonical serialization sorts keys).
// A value whose type cannot be normalized deterministically returns an
// UnsupportedValueError naming the offending key.
func NormalizeHParams(hparams map[string]any) (map[string]any, error) {
	normalized := make(map[string]any, len(hparams))
	for key, value := range hparams {
		if _, reserved := runMetadataKeys[key]; reserved {
			continue
		}
		nv, err := normalizeValue(key, value)
		if err != nil {
			return nil, err
		}
		normalized[key] = nv
	}
	return normalized, nil
}

func normalizeValue(key string, value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case bool:
		return v, nil
	case string:
		return normalizeString(v), nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case float32:
		return NormalizeFloat(float64(v)), nil
	case float64:
		return NormalizeFloat(v), nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, &UnsupportedValueError{Key: key, Type: fmt.Sprintf("json.Number(%s)", v)}
		}
		return NormalizeFloat(f), nil
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			ne, err := normalizeValue(fmt.Sprintf("%s[%d]", key, i), elem)
			if err != nil {
				return nil, err
			}
			out[i] = ne
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, elem := range v {
			ne, err := normalizeValue(key+"."+k, elem)
			if err != nil {
				return nil, err
			}
			out[k] = ne
		}
		return out, nil
	default:
		return nil, &UnsupportedValueError{Key: key, Type: fmt.Sprintf("%T", value)}
	}
}

// NormalizeFloat clamps f to FloatSigFigs significant figures by
// formatting and re-parsing. Formatting a clamped float again yields the
// same value, so normalization is idempotent.
func NormalizeFloat(f float64) float64 {
	formatted := strconv.FormatFloat(f, 'g', FloatSigFigs, 64)
	clamped, err := strconv.ParseFloat(formatted, 64)
	if err != nil {
		// FormatFloat output always re-parses; this path is unreachable
		// for finite input and preserves f for NaN/Inf.
		return f
	}
	return clamped
}

func normalizeString(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
