//go:build unix

package index

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

func (l *FileLock) acquire(timeout time.Duration) (bool, error) {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return false, fmt.Errorf("open lock file: %w", err)
	}

	deadline := time.Now().Add(timeout)
	backoff := lockMinBackoff
	for {
		err = syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			l.file = file
			return true, nil
		}
		if !errors.Is(err, syscall.EWOULDBLOCK) {
			file.Close()
			return false, fmt.Errorf("flock %s: %w", l.path, err)
		}
		if time.Now().After(deadline) {
			file.Close()
			return false, nil
		}
		time.Sleep(backoff)
		backoff *= 2
		if backoff > lockMaxBackoff {
			backoff = lockMaxBackoff
		}
	}
}

func (l *FileLock) release() {
	syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	l.file.Close()
}
