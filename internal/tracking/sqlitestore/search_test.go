package sqlitestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stele-ml/stele/internal/runquery"
	"github.com/stele-ml/stele/internal/tracking"
)

// seedSearchRuns creates one experiment and three runs with distinct
// start times: oldest r1, then r2, newest r3.
func seedSearchRuns(t *testing.T) (*Store, string, [3]tracking.Run) {
	t.Helper()
	s, clock := openTestStore(t, "exp-1", "run-1", "run-2", "run-3")
	ctx := context.Background()

	expID, err := s.CreateExperiment(ctx, "exp")
	require.NoError(t, err)

	r1 := mustCreateRun(t, s, expID, "hpo-bert-aaaa0001", map[string]string{
		"stele.study_key": "hash-a", "stele.model": "bert",
	})
	clock.Advance(time.Minute)
	r2 := mustCreateRun(t, s, expID, "hpo-bert-aaaa0002", map[string]string{
		"stele.study_key": "hash-a", "stele.model": "bert",
	})
	clock.Advance(time.Minute)
	r3 := mustCreateRun(t, s, expID, "refit-bert-bbbb0001", map[string]string{
		"stele.study_key": "hash-b", "stele.model": "bert",
	})
	return s, expID, [3]tracking.Run{r1, r2, r3}
}

func TestSearchRunsByTag(t *testing.T) {
	s, expID, runs := seedSearchRuns(t)

	got, err := s.SearchRuns(context.Background(), tracking.SearchQuery{
		ExperimentIDs: []string{expID},
		Filter:        runquery.TagEquals{Key: "stele.study_key", Value: "hash-a"},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Default ordering is newest first.
	assert.Equal(t, runs[1].RunID, got[0].RunID)
	assert.Equal(t, runs[0].RunID, got[1].RunID)
}

func TestSearchRunsTagConjunction(t *testing.T) {
	s, expID, runs := seedSearchRuns(t)

	got, err := s.SearchRuns(context.Background(), tracking.SearchQuery{
		ExperimentIDs: []string{expID},
		Filter: runquery.And{Filters: []runquery.Filter{
			runquery.TagEquals{Key: "stele.study_key", Value: "hash-b"},
			runquery.TagEquals{Key: "stele.model", Value: "bert"},
		}},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, runs[2].RunID, got[0].RunID)
}

func TestSearchRunsByAttr(t *testing.T) {
	s, expID, runs := seedSearchRuns(t)
	ctx := context.Background()

	require.NoError(t, s.SetStatus(ctx, runs[0].RunID, tracking.StatusFinished))

	got, err := s.SearchRuns(ctx, tracking.SearchQuery{
		ExperimentIDs: []string{expID},
		Filter:        runquery.AttrEquals{Attr: runquery.AttrStatus, Value: string(tracking.StatusFinished)},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, runs[0].RunID, got[0].RunID)
}

func TestSearchRunsMaxResults(t *testing.T) {
	s, expID, runs := seedSearchRuns(t)

	got, err := s.SearchRuns(context.Background(), tracking.SearchQuery{
		ExperimentIDs: []string{expID},
		MaxResults:    1,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, runs[2].RunID, got[0].RunID, "limit keeps the newest run")
}

func TestSearchRunsAscendingOrder(t *testing.T) {
	s, expID, runs := seedSearchRuns(t)

	got, err := s.SearchRuns(context.Background(), tracking.SearchQuery{
		ExperimentIDs: []string{expID},
		OrderBy:       tracking.OrderStartTimeAsc,
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, runs[0].RunID, got[0].RunID, "ascending order starts with the oldest run")
}

func TestSearchRunsEqualStartTimeTiebreak(t *testing.T) {
	s, _ := openTestStore(t, "exp-1", "run-b", "run-a")
	ctx := context.Background()

	expID, err := s.CreateExperiment(ctx, "exp")
	require.NoError(t, err)

	// Clock does not advance: identical start times.
	mustCreateRun(t, s, expID, "first", nil)
	mustCreateRun(t, s, expID, "second", nil)

	got, err := s.SearchRuns(ctx, tracking.SearchQuery{ExperimentIDs: []string{expID}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "run-a", got[0].RunID, "ties break on run id ascending")
	assert.Equal(t, "run-b", got[1].RunID)
}

func TestSearchRunsAllExperiments(t *testing.T) {
	s, _ := openTestStore(t, "exp-1", "exp-2", "run-1", "run-2")
	ctx := context.Background()

	e1, err := s.CreateExperiment(ctx, "exp-one")
	require.NoError(t, err)
	e2, err := s.CreateExperiment(ctx, "exp-two")
	require.NoError(t, err)
	mustCreateRun(t, s, e1, "r1", map[string]string{"k": "v"})
	mustCreateRun(t, s, e2, "r2", map[string]string{"k": "v"})

	// No experiment scoping: the tag filter spans both experiments.
	got, err := s.SearchRuns(ctx, tracking.SearchQuery{
		Filter: runquery.TagEquals{Key: "k", Value: "v"},
	})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSearchRunsHydratesTags(t *testing.T) {
	s, expID, _ := seedSearchRuns(t)

	got, err := s.SearchRuns(context.Background(), tracking.SearchQuery{
		ExperimentIDs: []string{expID},
		MaxResults:    1,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hash-b", got[0].Tags["stele.study_key"],
		"search results should carry tags without a second GetRun")
}

func TestSearchRunsRejectsBadFilter(t *testing.T) {
	s, _ := openTestStore(t)

	_, err := s.SearchRuns(context.Background(), tracking.SearchQuery{
		Filter: runquery.TagEquals{Key: "", Value: "v"},
	})
	assert.Error(t, err, "empty tag key should be rejected before reaching SQL")
}

func TestSearchRunsRejectsUnknownOrder(t *testing.T) {
	s, _ := openTestStore(t)

	_, err := s.SearchRuns(context.Background(), tracking.SearchQuery{
		OrderBy: tracking.OrderBy("metrics.f1 DESC"),
	})
	assert.Error(t, err, "backends reject unknown orderings rather than guessing")
}

func TestSearchRunsNoMatchesReturnsEmpty(t *testing.T) {
	s, expID, _ := seedSearchRuns(t)

	got, err := s.SearchRuns(context.Background(), tracking.SearchQuery{
		ExperimentIDs: []string{expID},
		Filter:        runquery.TagEquals{Key: "stele.study_key", Value: "no-such-hash"},
	})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got, "no matches is an empty slice, not nil")
}
