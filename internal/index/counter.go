package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	// CounterFile is the on-disk name of the run name counter.
	CounterFile = "run_name_counter.json"

	// DefaultStaleReservation is how old a reserved allocation must be
	// before Cleanup marks it expired.
	DefaultStaleReservation = 24 * time.Hour
)

// AllocationStatus tracks the lifecycle of one counter allocation.
type AllocationStatus string

const (
	// StatusReserved marks a version handed out but not yet bound to a
	// created run.
	StatusReserved AllocationStatus = "reserved"
	// StatusCommitted marks a version bound to a created run.
	StatusCommitted AllocationStatus = "committed"
	// StatusExpired marks an abandoned reservation. Expired versions
	// still count toward monotonicity and are never reissued.
	StatusExpired AllocationStatus = "expired"
)

// Allocation is one versioned name grant for a counter key.
type Allocation struct {
	CounterKey  string           `json:"counter_key"`
	Version     int              `json:"version"`
	RunID       string           `json:"run_id"`
	Status      AllocationStatus `json:"status"`
	ReservedAt  time.Time        `json:"reserved_at"`
	CommittedAt time.Time        `json:"committed_at,omitzero"`
}

// CounterStore persists run-name version allocations with a two-phase
// reserve/commit protocol, so crashed trainers never leave duplicate or
// reused version numbers behind.
//
// Records are append-or-flip only: Reserve appends, Commit and Cleanup
// change the status of an existing record in place. Nothing ever
// deletes a record or lowers a version, which is what keeps retried
// callers from colliding with concurrently succeeding ones.
type CounterStore struct {
	path        string
	lockTimeout time.Duration
	now         func() time.Time
}

// CounterOption configures a CounterStore.
type CounterOption func(*CounterStore)

// WithCounterClock overrides the time source. Tests use this to age
// reservations without sleeping.
func WithCounterClock(now func() time.Time) CounterOption {
	return func(cs *CounterStore) {
		cs.now = now
	}
}

// WithCounterLockTimeout overrides how long writers wait for the file
// lock before degrading to an unlocked write.
func WithCounterLockTimeout(d time.Duration) CounterOption {
	return func(cs *CounterStore) {
		cs.lockTimeout = d
	}
}

// NewCounterStore opens the counter stored in dir. The backing file is
// created on first reservation; a missing file reads as no allocations.
func NewCounterStore(dir string, opts ...CounterOption) *CounterStore {
	cs := &CounterStore{
		path:        filepath.Join(dir, CounterFile),
		lockTimeout: DefaultLockTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(cs)
	}
	return cs
}

// Path returns the location of the backing file.
func (cs *CounterStore) Path() string {
	return cs.path
}

// Reserve allocates the next version for counterKey and appends a
// reserved record holding placeholderRunID. The new version is one past
// the highest ever issued for the key, across reserved, committed, and
// expired records alike. An empty placeholder gets a generated unique
// id so the reservation is attributable during cleanup.
func (cs *CounterStore) Reserve(counterKey, placeholderRunID string) (int, error) {
	if counterKey == "" {
		return 0, errors.New("counter: empty counter key")
	}
	if placeholderRunID == "" {
		placeholderRunID = "reserved-" + uuid.NewString()
	}
	version := 0
	err := cs.update(func(allocs []Allocation) ([]Allocation, error) {
		for _, a := range allocs {
			if a.CounterKey == counterKey && a.Version > version {
				version = a.Version
			}
		}
		version++
		return append(allocs, Allocation{
			CounterKey: counterKey,
			Version:    version,
			RunID:      placeholderRunID,
			Status:     StatusReserved,
			ReservedAt: cs.now().UTC(),
		}), nil
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

// Commit marks the reservation for (counterKey, version) as committed
// and binds it to runID. Committing a version with no live reservation,
// including a second commit of the same one, logs and returns nil so a
// crash-retried caller stays idempotent.
func (cs *CounterStore) Commit(counterKey string, version int, runID string) error {
	if counterKey == "" {
		return errors.New("counter: empty counter key")
	}
	return cs.update(func(allocs []Allocation) ([]Allocation, error) {
		for i := range allocs {
			a := &allocs[i]
			if a.CounterKey != counterKey || a.Version != version {
				continue
			}
			if a.Status != StatusReserved {
				slog.Debug("counter commit is a no-op",
					"counter_key", counterKey, "version", version, "status", a.Status)
				return allocs, nil
			}
			a.Status = StatusCommitted
			a.RunID = runID
			a.CommittedAt = cs.now().UTC()
			return allocs, nil
		}
		slog.Warn("counter commit found no reservation",
			"counter_key", counterKey, "version", version, "run_id", runID)
		return allocs, nil
	})
}

// Cleanup marks reservations older than staleAfter as expired, in
// place. Records are never deleted and expired versions never return to
// the pool. It reports how many reservations were expired.
func (cs *CounterStore) Cleanup(staleAfter time.Duration) (int, error) {
	expired := 0
	err := cs.update(func(allocs []Allocation) ([]Allocation, error) {
		cutoff := cs.now().Add(-staleAfter)
		for i := range allocs {
			a := &allocs[i]
			if a.Status != StatusReserved || !a.ReservedAt.Before(cutoff) {
				continue
			}
			a.Status = StatusExpired
			expired++
			slog.Warn("expiring stale name reservation",
				"counter_key", a.CounterKey, "version", a.Version,
				"run_id", a.RunID, "reserved_at", a.ReservedAt)
		}
		return allocs, nil
	})
	if err != nil {
		return 0, err
	}
	return expired, nil
}

// Allocations returns the records for one counter key in file order, or
// every record when counterKey is empty.
func (cs *CounterStore) Allocations(counterKey string) ([]Allocation, error) {
	allocs, err := cs.load()
	if err != nil {
		return nil, err
	}
	if counterKey == "" {
		return allocs, nil
	}
	var out []Allocation
	for _, a := range allocs {
		if a.CounterKey == counterKey {
			out = append(out, a)
		}
	}
	return out, nil
}

func (cs *CounterStore) load() ([]Allocation, error) {
	data, err := os.ReadFile(cs.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read counter: %w", err)
	}
	var allocs []Allocation
	if len(data) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(data, &allocs); err != nil {
		return nil, fmt.Errorf("parse counter %s: %w", cs.path, err)
	}
	return allocs, nil
}

func (cs *CounterStore) update(fn func([]Allocation) ([]Allocation, error)) error {
	if err := os.MkdirAll(filepath.Dir(cs.path), stateDir); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	lock := NewFileLock(cs.path)
	held, err := lock.Acquire(cs.lockTimeout)
	if err != nil {
		slog.Warn("counter lock failed, writing unlocked", "path", cs.path, "error", err)
	} else if !held {
		slog.Warn("counter lock unavailable, writing unlocked", "path", cs.path)
	}
	if held {
		defer lock.Release()
	}

	allocs, err := cs.load()
	if err != nil {
		return err
	}
	allocs, err = fn(allocs)
	if err != nil {
		return err
	}
	if allocs == nil {
		allocs = []Allocation{}
	}
	data, err := json.MarshalIndent(allocs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode counter: %w", err)
	}
	return WriteFileAtomic(cs.path, data, statePerm)
}
