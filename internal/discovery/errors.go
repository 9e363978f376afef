package discovery

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound matches any failed resolution via errors.Is.
var ErrNotFound = errors.New("discovery: run not found")

// ErrStrictResolveFailed matches a strict-mode resolution that exhausted
// the trustworthy tiers. It is distinct from ErrNotFound so resume-style
// callers can tell "no run exists, create one" apart from lookups that
// were never allowed to fall through to weak matches.
var ErrStrictResolveFailed = errors.New("discovery: strict resolve exhausted trusted tiers")

// NotFoundError reports a failed resolution along with every tier that
// was attempted, so a log line is enough to see why a run was not
// picked up.
type NotFoundError struct {
	IdentityHash string
	Strict       bool
	Attempted    []Tier
}

func (e *NotFoundError) Error() string {
	names := make([]string, 0, len(e.Attempted))
	for _, t := range e.Attempted {
		names = append(names, t.String())
	}
	tried := "nothing attempted"
	if len(names) > 0 {
		tried = "tried " + strings.Join(names, ", ")
	}
	mode := "non-strict"
	if e.Strict {
		mode = "strict"
	}
	if e.IdentityHash != "" {
		return fmt.Sprintf("discovery: no run for identity %s (%s, %s)", e.IdentityHash, mode, tried)
	}
	return fmt.Sprintf("discovery: no run found (%s, %s)", mode, tried)
}

func (e *NotFoundError) Is(target error) bool {
	if target == ErrNotFound {
		return true
	}
	return e.Strict && target == ErrStrictResolveFailed
}
