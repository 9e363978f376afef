// Package artifacts resolves model checkpoints through a priority chain
// of sources: the local cache (by run id, by identity hash, then a
// legacy sweep layout), the secondary backup store, and finally the
// tracking backend's artifact storage.
//
// Every candidate passes checkpoint validation before it is returned;
// a failing candidate is skipped so a half-written directory never
// becomes "the checkpoint". Only exhausting the whole chain is an
// error.
package artifacts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/stele-ml/stele/internal/backup"
	"github.com/stele-ml/stele/internal/tracking"
)

// Source names one tier of the acquisition chain.
type Source string

const (
	// SourceLocal covers the run-id cache path, the identity-hash cache
	// path, and the legacy sweep layout, in that order.
	SourceLocal Source = "local"

	// SourceBackup restores from the secondary backup store. Only runs
	// when a store is configured; the pipeline configures one on the
	// hosted-notebook platform only.
	SourceBackup Source = "backup_store"

	// SourceRemote downloads from the tracking backend.
	SourceRemote Source = "remote"
)

// DefaultSources is the standard priority order.
func DefaultSources() []Source {
	return []Source{SourceLocal, SourceBackup, SourceRemote}
}

// RunCachePath is the local cache home for a run's checkpoint.
func RunCachePath(cacheDir, runID string) string {
	return filepath.Join(cacheDir, "runs", runID)
}

// KeyCachePath is the local cache home keyed by identity hash, shared
// by any run carrying that identity.
func KeyCachePath(cacheDir, hash string) string {
	return filepath.Join(cacheDir, "by-key", hash)
}

// Request describes one acquisition. Strategies whose inputs are absent
// are skipped silently; in particular a missing IdentityHash skips the
// hash-keyed cache path rather than failing, because that path cannot
// exist without a hash.
type Request struct {
	RunID          string
	IdentityHash   string
	CacheDir       string
	LegacySweepDir string

	// Sources overrides the tier order; empty means DefaultSources.
	Sources []Source

	// SkipValidation accepts a source's candidate on existence alone.
	// For non-standard checkpoint layouts the caller vouches for.
	SkipValidation map[Source]bool
}

// Location is a resolved checkpoint.
type Location struct {
	// Path is the checkpoint root directory.
	Path string

	// Source is the tier that produced it.
	Source Source

	// Strategy is the specific strategy within the tier, for logs.
	Strategy string
}

// Acquirer resolves checkpoints. The tracking client may be nil for
// offline use; the remote tier is then skipped.
type Acquirer struct {
	client tracking.Client
	backup backup.Store
}

// AcquirerOption configures an Acquirer.
type AcquirerOption func(*Acquirer)

// WithBackupStore enables the backup tier.
func WithBackupStore(bs backup.Store) AcquirerOption {
	return func(a *Acquirer) {
		a.backup = bs
	}
}

// NewAcquirer creates an Acquirer over the given tracking client.
func NewAcquirer(client tracking.Client, opts ...AcquirerOption) *Acquirer {
	a := &Acquirer{client: client}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Acquire walks the source chain and returns the first valid
// checkpoint. Exhaustion returns an ExhaustedError naming every
// strategy attempted and how to recover manually.
func (a *Acquirer) Acquire(ctx context.Context, req Request) (Location, error) {
	sources := req.Sources
	if len(sources) == 0 {
		sources = DefaultSources()
	}

	var attempted []string
	for _, src := range sources {
		var (
			loc Location
			ok  bool
		)
		switch src {
		case SourceLocal:
			loc, ok = a.fromLocal(req, &attempted)
		case SourceBackup:
			loc, ok = a.fromBackup(req, &attempted)
		case SourceRemote:
			loc, ok = a.fromRemote(ctx, req, &attempted)
		default:
			return Location{}, fmt.Errorf("unknown artifact source %q", src)
		}
		if ok {
			slog.Info("checkpoint acquired",
				"path", loc.Path,
				"source", string(loc.Source),
				"strategy", loc.Strategy,
			)
			return loc, nil
		}
	}

	return Location{}, &ExhaustedError{
		RunID:        req.RunID,
		IdentityHash: req.IdentityHash,
		Attempted:    attempted,
		TrackingURI:  a.trackingURI(),
		CachePath:    RunCachePath(req.CacheDir, req.RunID),
	}
}

func (a *Acquirer) trackingURI() string {
	if a.client == nil {
		return ""
	}
	return a.client.TrackingURI()
}

func (a *Acquirer) fromLocal(req Request, attempted *[]string) (Location, bool) {
	if req.RunID != "" {
		dir := RunCachePath(req.CacheDir, req.RunID)
		*attempted = append(*attempted, "local:run-id "+dir)
		if a.accept(dir, SourceLocal, req) {
			return Location{Path: dir, Source: SourceLocal, Strategy: "run-id"}, true
		}
	}

	if req.IdentityHash != "" {
		dir := KeyCachePath(req.CacheDir, req.IdentityHash)
		*attempted = append(*attempted, "local:identity-hash "+dir)
		if a.accept(dir, SourceLocal, req) {
			return Location{Path: dir, Source: SourceLocal, Strategy: "identity-hash"}, true
		}
	} else {
		slog.Debug("no identity hash; skipping hash-keyed cache path")
	}

	if req.LegacySweepDir != "" {
		*attempted = append(*attempted, "local:legacy-sweep "+req.LegacySweepDir)
		if dir, ok := a.fromLegacySweep(req); ok {
			return Location{Path: dir, Source: SourceLocal, Strategy: "legacy-sweep"}, true
		}
	}

	return Location{}, false
}

// fromLegacySweep checks the old hyperparameter-search output layout:
// the sweep dir itself, then its subdirectories newest first.
func (a *Acquirer) fromLegacySweep(req Request) (string, bool) {
	root := req.LegacySweepDir
	if a.accept(root, SourceLocal, req) {
		return root, true
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return "", false
	}

	type candidate struct {
		path    string
		modTime int64
	}
	var candidates []candidate
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{
			path:    filepath.Join(root, entry.Name()),
			modTime: info.ModTime().UnixNano(),
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].modTime != candidates[j].modTime {
			return candidates[i].modTime > candidates[j].modTime
		}
		return candidates[i].path < candidates[j].path
	})

	for _, c := range candidates {
		if a.accept(c.path, SourceLocal, req) {
			return c.path, true
		}
	}
	return "", false
}

func (a *Acquirer) fromBackup(req Request, attempted *[]string) (Location, bool) {
	if a.backup == nil {
		slog.Debug("backup store not configured; skipping backup tier")
		return Location{}, false
	}

	var dst string
	switch {
	case req.RunID != "":
		dst = RunCachePath(req.CacheDir, req.RunID)
	case req.IdentityHash != "":
		dst = KeyCachePath(req.CacheDir, req.IdentityHash)
	default:
		slog.Debug("no run id or identity hash; skipping backup tier")
		return Location{}, false
	}

	remote := a.backup.PathFor(dst)
	*attempted = append(*attempted, "backup "+remote)

	found, err := a.backup.Restore(remote, dst, true)
	if err != nil {
		slog.Warn("backup restore failed", "remote", remote, "error", err)
		return Location{}, false
	}
	if !found {
		slog.Debug("no backup present", "remote", remote)
		return Location{}, false
	}
	if !a.accept(dst, SourceBackup, req) {
		return Location{}, false
	}
	return Location{Path: dst, Source: SourceBackup, Strategy: "restore"}, true
}

// accept reports whether dir exists and, unless validation is skipped
// for the source, looks like a checkpoint.
func (a *Acquirer) accept(dir string, src Source, req Request) bool {
	if _, err := os.Stat(dir); err != nil {
		return false
	}
	if req.SkipValidation[src] {
		return true
	}
	if err := ValidateCheckpoint(dir); err != nil {
		slog.Debug("candidate failed checkpoint validation", "error", err)
		return false
	}
	return true
}
