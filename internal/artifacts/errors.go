package artifacts

import (
	"errors"
	"fmt"
	"strings"
)

// ErrExhausted matches any acquisition that ran out of sources.
var ErrExhausted = errors.New("artifacts: checkpoint acquisition exhausted")

// ExhaustedError reports a failed acquisition with every strategy that
// was attempted and backend-specific manual recovery steps, so the
// error message alone is enough to fix the situation by hand.
type ExhaustedError struct {
	RunID        string
	IdentityHash string
	Attempted    []string
	TrackingURI  string
	CachePath    string
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	b.WriteString("no valid checkpoint found")
	if e.RunID != "" {
		fmt.Fprintf(&b, " for run %s", e.RunID)
	} else if e.IdentityHash != "" {
		fmt.Fprintf(&b, " for identity %s", e.IdentityHash)
	}
	if len(e.Attempted) > 0 {
		b.WriteString("; attempted: ")
		b.WriteString(strings.Join(e.Attempted, ", "))
	} else {
		b.WriteString("; no source had enough inputs to attempt")
	}
	b.WriteString(". ")
	b.WriteString(e.remediation())
	return b.String()
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// remediation renders recovery steps for the active tracking backend.
func (e *ExhaustedError) remediation() string {
	dest := e.CachePath
	if dest == "" {
		dest = "the local checkpoint cache"
	}
	switch {
	case strings.HasPrefix(e.TrackingURI, "sqlite://"):
		return fmt.Sprintf("To recover manually: copy the run's artifact directory "+
			"from the tracking store at %s into %s, or re-run the producing stage.",
			e.TrackingURI, dest)
	case strings.HasPrefix(e.TrackingURI, "http://"), strings.HasPrefix(e.TrackingURI, "https://"):
		return fmt.Sprintf("To recover manually: download the run's checkpoint artifact "+
			"from the tracking UI at %s (run %s) and unpack it into %s.",
			e.TrackingURI, e.RunID, dest)
	default:
		return fmt.Sprintf("To recover manually: place a valid checkpoint "+
			"(model weights or config.json) into %s.", dest)
	}
}
