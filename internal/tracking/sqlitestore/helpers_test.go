package sqlitestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stele-ml/stele/internal/testutil"
	"github.com/stele-ml/stele/internal/tracking"
)

// openTestStore opens a store in a temp dir with deterministic ids and
// a controllable clock. Tests advance the clock explicitly so start
// times are distinct and ordering is deterministic.
func openTestStore(t *testing.T, ids ...string) (*Store, *testutil.Clock) {
	t.Helper()
	clock := testutil.NewClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	opts := []Option{WithClock(clock.Now)}
	if len(ids) > 0 {
		opts = append(opts, WithIDGenerator(NewFixedGenerator(ids...)))
	}
	s, err := Open(t.TempDir(), opts...)
	require.NoError(t, err, "Open should succeed in a fresh dir")
	t.Cleanup(func() { s.Close() })
	return s, clock
}

// mustCreateRun creates an experiment-scoped run and fails the test on
// any error.
func mustCreateRun(t *testing.T, s *Store, expID, name string, tags map[string]string) tracking.Run {
	t.Helper()
	req, err := tracking.NewRunRequest(expID, name, tags)
	require.NoError(t, err)
	run, err := s.CreateRun(context.Background(), req)
	require.NoError(t, err, "CreateRun(%q) should succeed", name)
	return run
}
