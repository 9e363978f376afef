// Package testutil provides shared helpers for tests that need
// deterministic time. Production code never imports it.
package testutil

import (
	"sync"
	"time"
)

// Clock is a controllable time source for tests. It starts at a fixed
// instant and only moves when a test advances it, so timestamps in
// fixtures stay stable across runs.
//
// All methods are safe for concurrent use.
type Clock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewClock returns a clock frozen at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// NewTickingClock returns a clock that advances by step on every Now
// call. Consecutive stamps are distinct but still deterministic, which
// keeps ordering assertions stable.
func NewTickingClock(start time.Time, step time.Duration) *Clock {
	return &Clock{now: start, step: step}
}

// Now returns the current instant. A ticking clock advances first, so
// every call observes a later time than the one before it.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
