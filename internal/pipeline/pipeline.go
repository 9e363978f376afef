// Package pipeline coordinates one training-stage invocation end to
// end: compute the stage's identity, discover a previously created run,
// apply the run-mode policy, and either adopt the existing run or
// reserve a name and create a fresh one.
//
// The coordinator is the only place these steps compose, so the
// idempotency story cannot drift between stages: every stage that goes
// through EnsureRun gets the same discovery chain, the same reuse
// semantics, and the same crash-safe name accounting.
//
// ERROR HANDLING: identity and naming failures abort, because a wrong
// identity would silently group unrelated work. Failures on the
// advisory records (index entry, sidecar) and on counter commit are
// logged and do not abort; the created run is already safe in the
// tracking store and rediscovery has other tiers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stele-ml/stele/internal/config"
	"github.com/stele-ml/stele/internal/discovery"
	"github.com/stele-ml/stele/internal/identity"
	"github.com/stele-ml/stele/internal/index"
	"github.com/stele-ml/stele/internal/naming"
	"github.com/stele-ml/stele/internal/policy"
	"github.com/stele-ml/stele/internal/tracking"
)

// ExperimentResolver is an optional tracking-client capability: backends
// that can create experiments let the coordinator resolve the configured
// experiment name to an id. Clients without it must receive an explicit
// experiment id in the stage request.
type ExperimentResolver interface {
	CreateExperiment(ctx context.Context, name string) (string, error)
}

// Coordinator wires a tracking client to the local rediscovery state
// (run index, name counter) and runs the ensure-run protocol.
type Coordinator struct {
	client  tracking.Client
	finder  *discovery.Finder
	index   *index.RunIndex
	counter *index.CounterStore
	now     func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the time source used to stamp sidecar records.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// New creates a Coordinator. The index and counter normally live in the
// same state directory; they are passed separately so tests can tune
// them independently.
func New(client tracking.Client, ix *index.RunIndex, counter *index.CounterStore, opts ...Option) *Coordinator {
	c := &Coordinator{
		client:  client,
		finder:  discovery.NewFinder(client, discovery.WithIndex(ix)),
		index:   ix,
		counter: counter,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StageRequest describes one pipeline stage invocation.
type StageRequest struct {
	Snapshot    *config.Snapshot
	ProcessType policy.ProcessType

	// OutputDir is where the stage writes its outputs. The coordinator
	// records the resolved run there as a sidecar so a later process
	// can rediscover it without a backend query. Empty writes none.
	OutputDir string

	// ExperimentID overrides experiment resolution. Left empty, the
	// coordinator resolves Snapshot.Tracking.Experiment against the
	// backend.
	ExperimentID string

	// RunID short-circuits discovery to a known run.
	RunID string

	// Trial inputs, hpo_trial only.
	HParams     map[string]any
	TrialID     string
	TrialNumber *int
	Fold        *int
}

// StageRun is the outcome of EnsureRun: the tracked run the stage must
// log to, and how it came to be.
type StageRun struct {
	Run    tracking.Run
	Reused bool

	// Tier records which discovery strategy produced a reused run.
	// Zero for created runs.
	Tier discovery.Tier

	Name string

	// Version is the counter-allocated name version. Zero for reused
	// runs and for process types that are not auto-versioned.
	Version int

	Identity StageIdentity

	// LoadExisting is the resume flag for the training library: load
	// existing study storage or checkpoint state instead of starting
	// cold. It depends only on the run mode and checkpoint setting,
	// because study storage can outlive any individual tracked run.
	LoadExisting bool
}

// EnsureRun resolves or creates the tracked run for a stage.
//
// Under force_new, discovery is skipped entirely; any existing run is
// left untouched and a fresh one is created. Otherwise the finder runs
// in strict mode: only a run located via its id, sidecar, index entry,
// or identity tag can be adopted. Weak fallbacks never decide reuse.
func (c *Coordinator) EnsureRun(ctx context.Context, req StageRequest) (*StageRun, error) {
	if req.Snapshot == nil {
		return nil, errors.New("pipeline: stage request has no config snapshot")
	}
	if err := policy.ValidateProcessType(string(req.ProcessType)); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	id, err := ComputeIdentity(req.Snapshot, req.HParams)
	if err != nil {
		return nil, err
	}
	nctx := NamingContext(req, id)
	hash, err := nctx.IdentityHash()
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	experimentID, err := c.resolveExperiment(ctx, req)
	if err != nil {
		return nil, err
	}

	mode := policy.NormalizeRunMode(req.Snapshot.Run.Mode)
	slog.Debug("ensuring run",
		"process_type", string(req.ProcessType),
		"run_mode", string(mode),
		"identity_hash", hash,
		"experiment_id", experimentID,
	)

	var existing *discovery.Result
	if mode == policy.RunModeForceNew {
		slog.Info("run mode force_new, skipping discovery",
			"process_type", string(req.ProcessType))
	} else {
		res, err := c.finder.Find(ctx, discovery.Query{
			RunID:                req.RunID,
			OutputDir:            req.OutputDir,
			IdentityHash:         hash,
			SchemaVersion:        identity.SchemaV2,
			ExperimentIDs:        []string{experimentID},
			ExpectedExperimentID: experimentID,
			Strict:               true,
		})
		switch {
		case err == nil:
			existing = &res
		case errors.Is(err, discovery.ErrNotFound):
			slog.Debug("no existing run found", "identity_hash", hash)
		default:
			return nil, fmt.Errorf("discover existing run: %w", err)
		}
	}

	exists := existing != nil
	complete := exists && existing.Run.Status.Complete()
	if policy.ShouldReuse(mode, exists, complete, req.ProcessType) {
		return c.adoptRun(req, id, hash, *existing), nil
	}

	return c.createRun(ctx, req, id, nctx, hash, experimentID)
}

// adoptRun returns an existing run as the stage's run, refreshing the
// local rediscovery records on the way.
func (c *Coordinator) adoptRun(req StageRequest, id StageIdentity, hash string, res discovery.Result) *StageRun {
	slog.Info("adopting existing run",
		"run_id", res.Run.RunID,
		"run_name", res.Run.Name,
		"tier", res.Tier.String(),
		"status", string(res.Run.Status),
	)
	c.recordRun(req, hash, res.Run)
	return &StageRun{
		Run:          res.Run,
		Reused:       true,
		Tier:         res.Tier,
		Name:         res.Run.Name,
		Identity:     id,
		LoadExisting: policy.LoadIfExists(req.Snapshot.Run.Mode, req.Snapshot.Run.CheckpointEnabled),
	}
}

func (c *Coordinator) createRun(ctx context.Context, req StageRequest, id StageIdentity, nctx naming.Context, hash, experimentID string) (*StageRun, error) {
	name, err := naming.RunName(nctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	version := 0
	counterKey := ""
	if naming.AutoVersioned(req.ProcessType) {
		counterKey, err = naming.CounterKey(nctx)
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		version, err = c.counter.Reserve(counterKey, "")
		if err != nil {
			return nil, fmt.Errorf("reserve run name: %w", err)
		}
		name, err = naming.VersionedRunName(nctx, version)
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		slog.Debug("reserved run name",
			"counter_key", counterKey, "version", version, "run_name", name)
	}

	tags := naming.Tags(nctx)
	tags[tracking.TagRunName] = name

	runReq, err := tracking.NewRunRequest(experimentID, name, tags)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	run, err := c.client.CreateRun(ctx, runReq)
	if err != nil {
		if counterKey != "" {
			// The reservation stays behind for the cleanup sweep;
			// versions are never handed back.
			slog.Warn("run creation failed with a name reserved",
				"counter_key", counterKey, "version", version, "error", err)
		}
		return nil, fmt.Errorf("create run %s: %w", name, err)
	}

	if counterKey != "" {
		if err := c.counter.Commit(counterKey, version, run.RunID); err != nil {
			slog.Warn("counter commit failed",
				"counter_key", counterKey, "version", version,
				"run_id", run.RunID, "error", err)
		}
	}
	c.recordRun(req, hash, run)

	slog.Info("created run",
		"run_id", run.RunID,
		"run_name", name,
		"experiment_id", experimentID,
		"process_type", string(req.ProcessType),
	)

	return &StageRun{
		Run:          run,
		Name:         name,
		Version:      version,
		Identity:     id,
		LoadExisting: policy.LoadIfExists(req.Snapshot.Run.Mode, req.Snapshot.Run.CheckpointEnabled),
	}, nil
}

// recordRun refreshes the local rediscovery records for a run: the
// identity index entry and the output-dir sidecar. Both are advisory,
// so failures degrade to warnings.
func (c *Coordinator) recordRun(req StageRequest, hash string, run tracking.Run) {
	if c.index != nil && hash != "" {
		entry := index.Entry{
			RunID:         run.RunID,
			ExperimentID:  run.ExperimentID,
			TrackingURI:   c.client.TrackingURI(),
			SchemaVersion: identity.SchemaV2,
		}
		if err := c.index.Put(hash, entry); err != nil {
			slog.Warn("run index update failed", "run_id", run.RunID, "error", err)
		}
	}
	if req.OutputDir != "" {
		sc := discovery.Sidecar{
			RunID:         run.RunID,
			ExperimentID:  run.ExperimentID,
			TrackingURI:   c.client.TrackingURI(),
			RunName:       run.Name,
			IdentityHash:  hash,
			SchemaVersion: identity.SchemaV2,
			CreatedAt:     c.now().UTC(),
		}
		if err := discovery.WriteSidecar(req.OutputDir, sc); err != nil {
			slog.Warn("sidecar write failed", "dir", req.OutputDir, "error", err)
		}
	}
}

func (c *Coordinator) resolveExperiment(ctx context.Context, req StageRequest) (string, error) {
	if req.ExperimentID != "" {
		return req.ExperimentID, nil
	}
	name := req.Snapshot.Tracking.Experiment
	if name == "" {
		return "", errors.New("pipeline: no experiment name configured")
	}
	r, ok := c.client.(ExperimentResolver)
	if !ok {
		return "", fmt.Errorf("pipeline: backend cannot create experiments, an explicit experiment id is required for %q", name)
	}
	id, err := r.CreateExperiment(ctx, name)
	if err != nil {
		return "", fmt.Errorf("resolve experiment %q: %w", name, err)
	}
	return id, nil
}

// MarkInterrupted tags a run as interrupted so companion-run lookup
// skips it when picking the run to resume.
func (c *Coordinator) MarkInterrupted(ctx context.Context, runID string) error {
	if err := c.client.SetTag(ctx, runID, tracking.TagInterrupted, "true"); err != nil {
		return fmt.Errorf("mark run %s interrupted: %w", runID, err)
	}
	slog.Info("marked run interrupted", "run_id", runID)
	return nil
}
