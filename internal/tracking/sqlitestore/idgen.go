package sqlitestore

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator mints identifiers for new runs and experiments.
// Implemented by UUIDGenerator (production) and FixedGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDGenerator mints 32-char lowercase hex ids: a random UUID with the
// dashes stripped, matching the run-id convention of hosted tracking
// backends so ids from either side are interchangeable.
//
// Thread-safety: UUIDGenerator is stateless and safe for concurrent use.
type UUIDGenerator struct{}

// Generate returns a new 32-hex identifier.
func (UUIDGenerator) Generate() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// FixedGenerator returns predetermined ids for testing, in order.
//
// Panics when all ids are consumed. This is a fail-fast approach to
// catch test misconfiguration (test created more runs than expected).
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
