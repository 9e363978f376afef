// Package naming renders deterministic, human-readable run names and
// identity tag blocks from a typed naming context.
//
// Every name embeds an 8-character prefix of the identity hash of the
// entity it represents, so two different logical entities cannot share
// a visible name. Repeatable stages additionally carry an
// auto-increment version suffix allocated through the counter store.
package naming

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/stele-ml/stele/internal/policy"
)

// HashPrefixLen is how much of an identity hash appears in run names
// and counter keys.
const HashPrefixLen = 8

// Context carries everything run naming needs: which pipeline stage is
// running, what it trains, and the identity hashes of the entities
// involved. Optional indices distinguish trials and folds inside a
// sweep.
type Context struct {
	Project     string
	Environment string
	ProcessType policy.ProcessType
	Model       string

	SchemaVersion string

	StudyKeyHash       string
	StudyFamilyKeyHash string
	TrialKeyHash       string
	DataFingerprint    string
	EvalFingerprint    string

	// TrialID is the sweep framework's own trial identifier, recorded
	// as a tag for companion-run lookup.
	TrialID     string
	TrialNumber *int
	Fold        *int
}

// primaryHash picks the identity hash a process type's visible name is
// anchored to.
func (c Context) primaryHash() (string, error) {
	var hash, want string
	switch c.ProcessType {
	case policy.ProcessHPOTrial:
		hash, want = c.TrialKeyHash, "trial key hash"
	case policy.ProcessHPOSweep, policy.ProcessRefit, policy.ProcessSelection:
		hash, want = c.StudyKeyHash, "study key hash"
	case policy.ProcessBenchmarking:
		hash, want = c.EvalFingerprint, "evaluation fingerprint"
	case policy.ProcessFinalTraining:
		hash, want = c.DataFingerprint, "data fingerprint"
	case policy.ProcessConversion:
		hash = c.StudyKeyHash
		if hash == "" {
			hash = c.DataFingerprint
		}
		want = "study key hash or data fingerprint"
	default:
		return "", fmt.Errorf("naming: invalid process type %q", c.ProcessType)
	}
	if len(hash) < HashPrefixLen {
		return "", fmt.Errorf("naming: %s needs a %s", c.ProcessType, want)
	}
	return hash, nil
}

// IdentityHash returns the hash this context's runs are anchored to,
// the value rediscovery searches for in the run-key tag.
func (c Context) IdentityHash() (string, error) {
	return c.primaryHash()
}

// RunName renders the base run name for a context:
//
//	hpo-distilbert-1f2e3d4c
//	trial007-distilbert-aa11bb22
//	final-distilbert-99887766-f2
//
// The same context always renders the same name. Uniqueness across
// repeated executions comes from VersionedRunName, not from here.
func RunName(ctx Context) (string, error) {
	hash, err := ctx.primaryHash()
	if err != nil {
		return "", err
	}
	head := shortCode(ctx.ProcessType)
	if ctx.ProcessType == policy.ProcessHPOTrial && ctx.TrialNumber != nil {
		head = fmt.Sprintf("trial%03d", *ctx.TrialNumber)
	}
	parts := []string{head}
	if m := sanitizeComponent(ctx.Model); m != "" {
		parts = append(parts, m)
	}
	parts = append(parts, hash[:HashPrefixLen])
	if ctx.Fold != nil {
		parts = append(parts, fmt.Sprintf("f%d", *ctx.Fold))
	}
	return strings.Join(parts, "-"), nil
}

// VersionedRunName appends the counter-allocated version to the base
// name, e.g. final-distilbert-99887766-v3.
func VersionedRunName(ctx Context, version int) (string, error) {
	if version < 1 {
		return "", fmt.Errorf("naming: version must be positive, got %d", version)
	}
	base, err := RunName(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-v%d", base, version), nil
}

// CounterKey scopes the auto-increment sequence for a context. Two
// processes share a sequence exactly when they could race for the same
// visible name: same project, stage, identity, and environment.
func CounterKey(ctx Context) (string, error) {
	hash, err := ctx.primaryHash()
	if err != nil {
		return "", err
	}
	project := sanitizeComponent(ctx.Project)
	if project == "" {
		return "", errors.New("naming: counter key needs a project")
	}
	env := sanitizeComponent(ctx.Environment)
	if env == "" {
		env = "local"
	}
	return strings.Join([]string{
		project, shortCode(ctx.ProcessType), hash[:HashPrefixLen], env,
	}, ":"), nil
}

// AutoVersioned reports whether runs of this process type get a counter
// suffix. Trials are already distinguished by their trial number.
func AutoVersioned(pt policy.ProcessType) bool {
	return pt != policy.ProcessHPOTrial
}

func shortCode(pt policy.ProcessType) string {
	switch pt {
	case policy.ProcessHPOSweep:
		return "hpo"
	case policy.ProcessHPOTrial:
		return "trial"
	case policy.ProcessRefit:
		return "refit"
	case policy.ProcessSelection:
		return "select"
	case policy.ProcessBenchmarking:
		return "bench"
	case policy.ProcessFinalTraining:
		return "final"
	case policy.ProcessConversion:
		return "convert"
	default:
		return string(pt)
	}
}

// sanitizeComponent folds an arbitrary label (model ids can contain
// slashes and unicode) into a lowercase [a-z0-9._] slug with single
// dashes between the pieces anything else splits off.
func sanitizeComponent(s string) string {
	s = strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
	var b strings.Builder
	dashed := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_':
			b.WriteRune(r)
			dashed = false
		default:
			if !dashed && b.Len() > 0 {
				b.WriteByte('-')
				dashed = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
