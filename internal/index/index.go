package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	// RunIndexFile is the on-disk name of the run index.
	RunIndexFile = "mlflow_index.json"

	// DefaultIndexCapacity bounds the number of entries kept before
	// least-recently-updated eviction kicks in.
	DefaultIndexCapacity = 256

	statePerm = 0o644
	stateDir  = 0o755
)

// Entry is one cached identity-hash to run binding. TrackingURI records
// which tracking backend the run id is valid against; consumers discard
// entries whose URI does not match their own instead of trusting a run
// id minted elsewhere.
type Entry struct {
	RunID         string    `json:"run_id"`
	ExperimentID  string    `json:"experiment_id,omitempty"`
	TrackingURI   string    `json:"tracking_uri,omitempty"`
	SchemaVersion string    `json:"schema_version,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RunIndex caches identity-hash to run-id bindings in a JSON file so
// rediscovery can skip a round trip to the tracking backend. The cache
// is advisory: entries may be stale or point at deleted runs, and
// consumers verify against the backend before trusting them.
type RunIndex struct {
	path        string
	capacity    int
	lockTimeout time.Duration
	now         func() time.Time
}

// IndexOption configures a RunIndex.
type IndexOption func(*RunIndex)

// WithIndexCapacity overrides the eviction ceiling.
func WithIndexCapacity(n int) IndexOption {
	return func(ix *RunIndex) {
		ix.capacity = n
	}
}

// WithIndexClock overrides the time source. Tests use this to make
// eviction order deterministic.
func WithIndexClock(now func() time.Time) IndexOption {
	return func(ix *RunIndex) {
		ix.now = now
	}
}

// WithIndexLockTimeout overrides how long writers wait for the file
// lock before degrading to an unlocked write.
func WithIndexLockTimeout(d time.Duration) IndexOption {
	return func(ix *RunIndex) {
		ix.lockTimeout = d
	}
}

// NewRunIndex opens the run index stored in dir. The backing file is
// created on first write; a missing file reads as an empty index.
func NewRunIndex(dir string, opts ...IndexOption) *RunIndex {
	ix := &RunIndex{
		path:        filepath.Join(dir, RunIndexFile),
		capacity:    DefaultIndexCapacity,
		lockTimeout: DefaultLockTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Path returns the location of the backing file.
func (ix *RunIndex) Path() string {
	return ix.path
}

// Get looks up the entry for an identity hash. Reads take no lock; the
// atomic writer guarantees a consistent snapshot.
func (ix *RunIndex) Get(hash string) (Entry, bool, error) {
	entries, err := ix.load()
	if err != nil {
		return Entry{}, false, err
	}
	e, ok := entries[hash]
	return e, ok, nil
}

// Put records a hash to run binding, stamping it with the current time.
// When the index exceeds its capacity, the least recently updated
// entries are evicted.
func (ix *RunIndex) Put(hash string, e Entry) error {
	if hash == "" {
		return errors.New("index: empty identity hash")
	}
	if e.RunID == "" {
		return fmt.Errorf("index: entry for %s has no run id", hash)
	}
	return ix.update(func(entries map[string]Entry) error {
		e.UpdatedAt = ix.now().UTC()
		entries[hash] = e
		evictOldest(entries, ix.capacity)
		return nil
	})
}

// Remove drops the entry for an identity hash. Removing an absent hash
// is a no-op.
func (ix *RunIndex) Remove(hash string) error {
	return ix.update(func(entries map[string]Entry) error {
		delete(entries, hash)
		return nil
	})
}

// Snapshot returns a copy of every entry keyed by identity hash.
func (ix *RunIndex) Snapshot() (map[string]Entry, error) {
	return ix.load()
}

func (ix *RunIndex) load() (map[string]Entry, error) {
	data, err := os.ReadFile(ix.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read run index: %w", err)
	}
	entries := map[string]Entry{}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse run index %s: %w", ix.path, err)
	}
	return entries, nil
}

func (ix *RunIndex) update(fn func(map[string]Entry) error) error {
	if err := os.MkdirAll(filepath.Dir(ix.path), stateDir); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	lock := NewFileLock(ix.path)
	held, err := lock.Acquire(ix.lockTimeout)
	if err != nil {
		slog.Warn("run index lock failed, writing unlocked", "path", ix.path, "error", err)
	} else if !held {
		slog.Warn("run index lock unavailable, writing unlocked", "path", ix.path)
	}
	if held {
		defer lock.Release()
	}

	entries, err := ix.load()
	if err != nil {
		return err
	}
	if err := fn(entries); err != nil {
		return err
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run index: %w", err)
	}
	return WriteFileAtomic(ix.path, data, statePerm)
}

// evictOldest trims entries down to capacity, dropping the least
// recently updated hashes first. Ties break on hash order so eviction
// is deterministic.
func evictOldest(entries map[string]Entry, capacity int) {
	if capacity <= 0 || len(entries) <= capacity {
		return
	}
	type aged struct {
		hash string
		at   time.Time
	}
	order := make([]aged, 0, len(entries))
	for h, e := range entries {
		order = append(order, aged{hash: h, at: e.UpdatedAt})
	}
	sort.Slice(order, func(i, j int) bool {
		if !order[i].at.Equal(order[j].at) {
			return order[i].at.Before(order[j].at)
		}
		return order[i].hash < order[j].hash
	})
	for _, a := range order[:len(entries)-capacity] {
		delete(entries, a.hash)
	}
}
