// Package tracking defines the abstract tracking-store surface the
// pipeline depends on: runs, tags, search, and artifact transfer.
//
// Concrete backends implement Client. The repo ships a sqlite-backed
// local backend (tracking/sqlitestore); remote SDK bindings live outside
// this codebase and only need to satisfy the same interface.
package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/stele-ml/stele/internal/runquery"
)

var (
	// ErrRunNotFound means the backend has no run with the requested id.
	ErrRunNotFound = errors.New("run not found")

	// ErrExperimentNotFound means the backend has no such experiment.
	ErrExperimentNotFound = errors.New("experiment not found")

	// ErrArtifactNotFound means the run exists but the requested artifact
	// path does not.
	ErrArtifactNotFound = errors.New("artifact not found")
)

// RunStatus mirrors the backend's run lifecycle states.
type RunStatus string

const (
	StatusScheduled RunStatus = "SCHEDULED"
	StatusRunning   RunStatus = "RUNNING"
	StatusFinished  RunStatus = "FINISHED"
	StatusFailed    RunStatus = "FAILED"
	StatusKilled    RunStatus = "KILLED"
)

// Terminal reports whether the status is a final state.
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusFinished, StatusFailed, StatusKilled:
		return true
	default:
		return false
	}
}

// Complete reports whether the run finished successfully. Only FINISHED
// counts: a FAILED run is terminal but its outputs are not trustworthy.
func (s RunStatus) Complete() bool {
	return s == StatusFinished
}

// Run is the tracked-run view the core consumes.
type Run struct {
	RunID        string
	ExperimentID string
	Name         string
	Status       RunStatus
	StartTime    time.Time
	EndTime      time.Time
	Tags         map[string]string
	Metrics      map[string]float64
}

// Tag returns the value of a tag, with ok=false when absent.
func (r Run) Tag(key string) (string, bool) {
	v, ok := r.Tags[key]
	return v, ok
}

// SearchQuery describes a run search: which experiments, a typed filter,
// result ordering, and a cap. A nil Filter matches every run in the
// experiments. Empty ExperimentIDs searches all experiments.
type SearchQuery struct {
	ExperimentIDs []string
	Filter        runquery.Filter
	MaxResults    int
	OrderBy       OrderBy
}

// OrderBy names a supported result ordering. Backends reject unknown
// values rather than guessing.
type OrderBy string

const (
	// OrderStartTimeDesc returns the most recently started runs first,
	// the ordering every discovery tier relies on. This is the default.
	OrderStartTimeDesc OrderBy = "start_time DESC"

	// OrderStartTimeAsc returns the oldest runs first.
	OrderStartTimeAsc OrderBy = "start_time ASC"
)

// Client is the tracking-store surface. All calls take a context: remote
// backends block on network I/O and callers bound them with their own
// timeouts.
type Client interface {
	// GetRun fetches a run by id. Returns ErrRunNotFound when absent.
	GetRun(ctx context.Context, runID string) (Run, error)

	// CreateRun registers a new run. The request must have been built by
	// NewRunRequest; implementations re-validate and reject invalid
	// requests.
	CreateRun(ctx context.Context, req RunRequest) (Run, error)

	// SetTag sets (or overwrites) a tag on a run.
	SetTag(ctx context.Context, runID, key, value string) error

	// SearchRuns returns runs matching the query, ordered per
	// SearchQuery.OrderBy.
	SearchRuns(ctx context.Context, q SearchQuery) ([]Run, error)

	// ListArtifacts returns the artifact paths recorded for a run,
	// relative to the run's artifact root.
	ListArtifacts(ctx context.Context, runID string) ([]string, error)

	// DownloadArtifacts copies the artifact at path (a file or a
	// directory subtree) into dst and returns the local path of the
	// downloaded root.
	DownloadArtifacts(ctx context.Context, runID, path, dst string) (string, error)

	// TrackingURI identifies the backend endpoint. Local index entries
	// record it so a cache produced against one workspace is never
	// trusted for another.
	TrackingURI() string
}
