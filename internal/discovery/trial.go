package discovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stele-ml/stele/internal/runquery"
	"github.com/stele-ml/stele/internal/tracking"
)

// trialBatchSize bounds how many candidate runs a trial lookup pulls.
// The filter IR is equality-only, so interrupted runs are filtered here
// rather than in the query; the batch leaves headroom for them.
const trialBatchSize = 100

// FindByTrialTag resolves a run purely by its human trial identifier
// tag, with no hashes involved. Runs tagged interrupted are skipped and
// the most recently started survivor wins. When no experiment ids are
// given every experiment is searched; slower, but tolerant of callers
// that only know the trial id.
func (f *Finder) FindByTrialTag(ctx context.Context, trialID string, experimentIDs ...string) (tracking.Run, error) {
	if trialID == "" {
		return tracking.Run{}, fmt.Errorf("trial lookup requires a trial id")
	}

	runs, err := f.client.SearchRuns(ctx, tracking.SearchQuery{
		ExperimentIDs: experimentIDs,
		Filter:        runquery.TagEquals{Key: tracking.TagTrialID, Value: trialID},
		MaxResults:    trialBatchSize,
		OrderBy:       tracking.OrderStartTimeDesc,
	})
	if err != nil {
		return tracking.Run{}, fmt.Errorf("trial lookup %q: %w", trialID, err)
	}

	for _, run := range runs {
		if interrupted, _ := run.Tag(tracking.TagInterrupted); interrupted == "true" {
			slog.Debug("skipping interrupted run",
				"trial_id", trialID,
				"run_id", run.RunID,
			)
			continue
		}
		return run, nil
	}

	return tracking.Run{}, fmt.Errorf("%w: trial %q", ErrNotFound, trialID)
}
