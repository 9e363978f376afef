// Package discovery resolves previously created runs from partial
// knowledge: a run id, a sidecar file next to outputs, the local index,
// or identity tags on the tracking backend.
//
// Resolution walks a fixed priority chain and stops at the first hit.
// The early tiers are cheap and trustworthy; the late tiers are remote
// queries that can return a semantically unrelated run and are only
// reached when the caller opts out of strict mode.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/stele-ml/stele/internal/index"
	"github.com/stele-ml/stele/internal/runquery"
	"github.com/stele-ml/stele/internal/tracking"
)

// Tier identifies one strategy in the discovery chain. Order is
// priority order: lower tiers are attempted first.
type Tier int

const (
	// TierDirectID verifies a caller-supplied run id.
	TierDirectID Tier = iota + 1

	// TierSidecar reads the run.json record co-located with a previous
	// run's outputs.
	TierSidecar

	// TierLocalIndex looks the identity hash up in the local cache.
	TierLocalIndex

	// TierIdentityTag searches the backend for a run tagged with the
	// identity hash. This is the backend-authoritative check and the
	// last tier a strict caller will accept.
	TierIdentityTag

	// TierCompositeTags matches on a looser conjunction of context tags
	// (process type, model, fingerprints). Weak.
	TierCompositeTags

	// TierNameTag matches on the human-readable run name tag. Weak.
	TierNameTag

	// TierMostRecent returns the most recently started run in the
	// experiment. Weakest; last resort.
	TierMostRecent
)

func (t Tier) String() string {
	switch t {
	case TierDirectID:
		return "direct-id"
	case TierSidecar:
		return "sidecar"
	case TierLocalIndex:
		return "local-index"
	case TierIdentityTag:
		return "identity-tag"
	case TierCompositeTags:
		return "composite-tags"
	case TierNameTag:
		return "name-tag"
	case TierMostRecent:
		return "most-recent"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Trusted reports whether a hit from this tier satisfies a strict
// caller. Only the tiers keyed on a run id or the identity hash are.
func (t Tier) Trusted() bool {
	return t >= TierDirectID && t <= TierIdentityTag
}

// Query carries everything the finder may use. Tiers whose inputs are
// absent are skipped, not failed: a query with no RunID simply starts
// at the sidecar tier.
type Query struct {
	// RunID, when set, is verified directly (tier 1).
	RunID string

	// OutputDir, when set, is checked for a sidecar record (tier 2).
	OutputDir string

	// IdentityHash keys the local-index and identity-tag tiers (3, 4).
	IdentityHash string

	// SchemaVersion, when set, restricts index and tag matches to runs
	// created under the same key schema. Hashes from different schema
	// versions are never comparable.
	SchemaVersion string

	// ExperimentIDs scopes backend searches. Empty searches all
	// experiments.
	ExperimentIDs []string

	// ExpectedExperimentID, when set, rejects a direct-id hit that
	// belongs to a different experiment.
	ExpectedExperimentID string

	// Strict stops the chain after the identity-tag tier. Exhausting
	// tiers 1-4 in strict mode is a hard error, never a weak match.
	Strict bool

	// Weak-fallback signals (tiers 5-7).
	ProcessType     string
	Model           string
	DataFingerprint string
	EvalFingerprint string
	RunName         string
}

// Result is a successful resolution. Tier records which strategy
// produced the run so callers can log and audit weak matches.
type Result struct {
	Run       tracking.Run
	Tier      Tier
	Attempted []Tier
}

// Finder resolves runs against a tracking backend, optionally
// consulting and maintaining a local index.
type Finder struct {
	client tracking.Client
	index  *index.RunIndex
}

// FinderOption configures a Finder.
type FinderOption func(*Finder)

// WithIndex lets the finder consult the local index (tier 3) and write
// back authoritative hits so later lookups skip the backend.
func WithIndex(ix *index.RunIndex) FinderOption {
	return func(f *Finder) {
		f.index = ix
	}
}

// NewFinder creates a Finder over the given tracking client.
func NewFinder(client tracking.Client, opts ...FinderOption) *Finder {
	f := &Finder{client: client}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Find walks the discovery chain and returns the first hit.
//
// Tier-internal failures (backend errors, unreadable sidecar) are
// logged and treated as misses so one broken source cannot mask a run
// findable through a later tier. Exhaustion returns a NotFoundError
// listing every tier that was attempted.
func (f *Finder) Find(ctx context.Context, q Query) (Result, error) {
	var attempted []Tier

	hit := func(run tracking.Run, tier Tier) (Result, error) {
		slog.Debug("run resolved",
			"run_id", run.RunID,
			"tier", tier.String(),
		)
		return Result{Run: run, Tier: tier, Attempted: attempted}, nil
	}

	if q.RunID != "" {
		attempted = append(attempted, TierDirectID)
		if run, ok := f.byDirectID(ctx, q); ok {
			return hit(run, TierDirectID)
		}
	}

	if q.OutputDir != "" {
		attempted = append(attempted, TierSidecar)
		if run, ok := f.bySidecar(ctx, q); ok {
			return hit(run, TierSidecar)
		}
	}

	if f.index != nil && q.IdentityHash != "" {
		attempted = append(attempted, TierLocalIndex)
		if run, ok := f.byLocalIndex(ctx, q); ok {
			return hit(run, TierLocalIndex)
		}
	}

	if q.IdentityHash != "" {
		attempted = append(attempted, TierIdentityTag)
		if run, ok := f.byIdentityTag(ctx, q); ok {
			return hit(run, TierIdentityTag)
		}
	}

	if q.Strict {
		return Result{}, &NotFoundError{
			IdentityHash: q.IdentityHash,
			Strict:       true,
			Attempted:    attempted,
		}
	}

	if compositeSignals(q) >= 2 {
		attempted = append(attempted, TierCompositeTags)
		slog.Warn("falling back to composite-tag search; match may be unrelated",
			"identity_hash", q.IdentityHash,
		)
		if run, ok := f.byCompositeTags(ctx, q); ok {
			return hit(run, TierCompositeTags)
		}
	}

	if q.RunName != "" {
		attempted = append(attempted, TierNameTag)
		slog.Warn("falling back to run-name search; match may be unrelated",
			"run_name", q.RunName,
		)
		if run, ok := f.byNameTag(ctx, q); ok {
			return hit(run, TierNameTag)
		}
	}

	if len(q.ExperimentIDs) > 0 {
		attempted = append(attempted, TierMostRecent)
		slog.Warn("falling back to most recent run in experiment; match may be unrelated",
			"experiment_ids", q.ExperimentIDs,
		)
		if run, ok := f.byMostRecent(ctx, q); ok {
			return hit(run, TierMostRecent)
		}
	}

	return Result{}, &NotFoundError{
		IdentityHash: q.IdentityHash,
		Attempted:    attempted,
	}
}

func (f *Finder) byDirectID(ctx context.Context, q Query) (tracking.Run, bool) {
	run, err := f.client.GetRun(ctx, q.RunID)
	if errors.Is(err, tracking.ErrRunNotFound) {
		slog.Debug("direct run id not found", "run_id", q.RunID)
		return tracking.Run{}, false
	}
	if err != nil {
		slog.Warn("direct run lookup failed", "run_id", q.RunID, "error", err)
		return tracking.Run{}, false
	}
	if q.ExpectedExperimentID != "" && run.ExperimentID != q.ExpectedExperimentID {
		slog.Warn("run id belongs to a different experiment, ignoring",
			"run_id", q.RunID,
			"experiment_id", run.ExperimentID,
			"expected", q.ExpectedExperimentID,
		)
		return tracking.Run{}, false
	}
	return run, true
}

func (f *Finder) bySidecar(ctx context.Context, q Query) (tracking.Run, bool) {
	sc, err := ReadSidecar(q.OutputDir)
	if errors.Is(err, os.ErrNotExist) {
		return tracking.Run{}, false
	}
	if err != nil {
		slog.Warn("sidecar unreadable, ignoring", "dir", q.OutputDir, "error", err)
		return tracking.Run{}, false
	}
	if sc.RunID == "" {
		return tracking.Run{}, false
	}
	if sc.TrackingURI != "" && sc.TrackingURI != f.client.TrackingURI() {
		slog.Debug("sidecar points at a different tracking backend, ignoring",
			"dir", q.OutputDir,
			"sidecar_uri", sc.TrackingURI,
		)
		return tracking.Run{}, false
	}
	// A sidecar written under a different identity belongs to a
	// different configuration of the same output dir.
	if q.IdentityHash != "" && sc.IdentityHash != "" && sc.IdentityHash != q.IdentityHash {
		slog.Debug("sidecar identity hash differs, ignoring",
			"dir", q.OutputDir,
			"sidecar_hash", sc.IdentityHash,
			"query_hash", q.IdentityHash,
		)
		return tracking.Run{}, false
	}

	run, err := f.client.GetRun(ctx, sc.RunID)
	if errors.Is(err, tracking.ErrRunNotFound) {
		slog.Debug("sidecar run no longer exists", "run_id", sc.RunID)
		return tracking.Run{}, false
	}
	if err != nil {
		slog.Warn("sidecar run verification failed", "run_id", sc.RunID, "error", err)
		return tracking.Run{}, false
	}
	return run, true
}

func (f *Finder) byLocalIndex(ctx context.Context, q Query) (tracking.Run, bool) {
	entry, ok, err := f.index.Get(q.IdentityHash)
	if err != nil {
		slog.Warn("local index read failed", "error", err)
		return tracking.Run{}, false
	}
	if !ok {
		return tracking.Run{}, false
	}
	if entry.TrackingURI != "" && entry.TrackingURI != f.client.TrackingURI() {
		// Valid entry, wrong workspace. Keep it for its own workspace.
		slog.Debug("index entry is for a different tracking backend, ignoring",
			"identity_hash", q.IdentityHash,
			"entry_uri", entry.TrackingURI,
		)
		return tracking.Run{}, false
	}
	if q.SchemaVersion != "" && entry.SchemaVersion != "" && entry.SchemaVersion != q.SchemaVersion {
		slog.Debug("index entry is for a different key schema, ignoring",
			"identity_hash", q.IdentityHash,
			"entry_schema", entry.SchemaVersion,
			"query_schema", q.SchemaVersion,
		)
		return tracking.Run{}, false
	}

	run, err := f.client.GetRun(ctx, entry.RunID)
	if errors.Is(err, tracking.ErrRunNotFound) {
		slog.Info("index entry is stale, removing",
			"identity_hash", q.IdentityHash,
			"run_id", entry.RunID,
		)
		if rmErr := f.index.Remove(q.IdentityHash); rmErr != nil {
			slog.Warn("stale index entry removal failed", "error", rmErr)
		}
		return tracking.Run{}, false
	}
	if err != nil {
		slog.Warn("index run verification failed", "run_id", entry.RunID, "error", err)
		return tracking.Run{}, false
	}
	return run, true
}

func (f *Finder) byIdentityTag(ctx context.Context, q Query) (tracking.Run, bool) {
	filters := []runquery.Filter{
		runquery.TagEquals{Key: tracking.TagRunKey, Value: q.IdentityHash},
	}
	if q.SchemaVersion != "" {
		filters = append(filters, runquery.TagEquals{
			Key:   tracking.TagSchemaVersion,
			Value: q.SchemaVersion,
		})
	}
	run, ok := f.searchFirst(ctx, q.ExperimentIDs, runquery.And{Filters: filters})
	if !ok {
		return tracking.Run{}, false
	}

	// Authoritative hit: cache it so the next lookup skips the backend.
	if f.index != nil {
		err := f.index.Put(q.IdentityHash, index.Entry{
			RunID:         run.RunID,
			ExperimentID:  run.ExperimentID,
			TrackingURI:   f.client.TrackingURI(),
			SchemaVersion: q.SchemaVersion,
		})
		if err != nil {
			slog.Warn("index write-back failed", "error", err)
		}
	}
	return run, true
}

func (f *Finder) byCompositeTags(ctx context.Context, q Query) (tracking.Run, bool) {
	var filters []runquery.Filter
	for key, value := range map[string]string{
		tracking.TagProcessType:     q.ProcessType,
		tracking.TagModel:           q.Model,
		tracking.TagDataFingerprint: q.DataFingerprint,
		tracking.TagEvalFingerprint: q.EvalFingerprint,
	} {
		if value != "" {
			filters = append(filters, runquery.TagEquals{Key: key, Value: value})
		}
	}
	return f.searchFirst(ctx, q.ExperimentIDs, runquery.And{Filters: filters})
}

func (f *Finder) byNameTag(ctx context.Context, q Query) (tracking.Run, bool) {
	return f.searchFirst(ctx, q.ExperimentIDs, runquery.TagEquals{
		Key:   tracking.TagRunName,
		Value: q.RunName,
	})
}

func (f *Finder) byMostRecent(ctx context.Context, q Query) (tracking.Run, bool) {
	return f.searchFirst(ctx, q.ExperimentIDs, nil)
}

// searchFirst returns the most recently started run matching the
// filter, or ok=false on no match or backend failure.
func (f *Finder) searchFirst(ctx context.Context, experimentIDs []string, filter runquery.Filter) (tracking.Run, bool) {
	runs, err := f.client.SearchRuns(ctx, tracking.SearchQuery{
		ExperimentIDs: experimentIDs,
		Filter:        filter,
		MaxResults:    1,
		OrderBy:       tracking.OrderStartTimeDesc,
	})
	if err != nil {
		slog.Warn("run search failed", "error", err)
		return tracking.Run{}, false
	}
	if len(runs) == 0 {
		return tracking.Run{}, false
	}
	return runs[0], true
}

func compositeSignals(q Query) int {
	n := 0
	for _, v := range []string{q.ProcessType, q.Model, q.DataFingerprint, q.EvalFingerprint} {
		if v != "" {
			n++
		}
	}
	return n
}
