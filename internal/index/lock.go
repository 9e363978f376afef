package index

import (
	"os"
	"time"
)

const (
	// DefaultLockTimeout bounds how long writers poll for the advisory
	// lock before degrading to an unlocked write.
	DefaultLockTimeout = 2 * time.Second

	lockMinBackoff = 100 * time.Millisecond
	lockMaxBackoff = 2 * time.Second
)

// FileLock is an advisory, best-effort lock guarding one state file.
// The lock is held on a sibling <path>.lock file so the guarded file
// itself can be renamed over while the lock is held.
//
// The lock is advisory in two senses: only cooperating processes
// respect it, and on platforms without flock support Acquire reports
// held=false instead of failing. Callers treat an unheld lock as a
// degraded mode, not an error.
//
// A FileLock is not safe for concurrent use; each writer constructs
// its own.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock creates a lock for the state file at path. The lock is
// taken on a sibling file named <path>.lock.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path + ".lock"}
}

// Acquire attempts to take the exclusive lock, polling with exponential
// backoff until timeout. It returns held=false when the timeout lapses
// or the platform has no advisory locks. A non-nil error means the lock
// file itself could not be used (for example the directory is not
// writable); callers may still proceed unlocked after logging it.
func (l *FileLock) Acquire(timeout time.Duration) (held bool, err error) {
	if l.file != nil {
		return true, nil
	}
	return l.acquire(timeout)
}

// Release drops the lock. Releasing an unheld lock is a no-op.
func (l *FileLock) Release() {
	if l.file == nil {
		return
	}
	l.release()
	l.file = nil
}
