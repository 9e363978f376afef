package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stele-ml/stele/internal/tracking"
)

// Experiment is an experiment row as stored.
type Experiment struct {
	ExperimentID string
	Name         string
	CreatedAt    int64
}

// GetExperiment fetches an experiment by id. Returns
// tracking.ErrExperimentNotFound when absent.
func (s *Store) GetExperiment(ctx context.Context, experimentID string) (Experiment, error) {
	var exp Experiment
	err := s.db.QueryRowContext(ctx, `
		SELECT experiment_id, name, created_at
		FROM experiments
		WHERE experiment_id = ?
	`, experimentID).Scan(&exp.ExperimentID, &exp.Name, &exp.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Experiment{}, fmt.Errorf("%w: %s", tracking.ErrExperimentNotFound, experimentID)
	}
	if err != nil {
		return Experiment{}, fmt.Errorf("get experiment: %w", err)
	}
	return exp, nil
}

// GetExperimentByName fetches an experiment by its unique name.
func (s *Store) GetExperimentByName(ctx context.Context, name string) (Experiment, error) {
	var exp Experiment
	err := s.db.QueryRowContext(ctx, `
		SELECT experiment_id, name, created_at
		FROM experiments
		WHERE name = ?
	`, name).Scan(&exp.ExperimentID, &exp.Name, &exp.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Experiment{}, fmt.Errorf("%w: %q", tracking.ErrExperimentNotFound, name)
	}
	if err != nil {
		return Experiment{}, fmt.Errorf("get experiment by name: %w", err)
	}
	return exp, nil
}

// GetRun fetches a run with its tags and metrics.
func (s *Store) GetRun(ctx context.Context, runID string) (tracking.Run, error) {
	var (
		run   tracking.Run
		start int64
		end   sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, experiment_id, name, status, start_time, end_time
		FROM runs
		WHERE run_id = ?
	`, runID).Scan(&run.RunID, &run.ExperimentID, &run.Name, (*string)(&run.Status), &start, &end)
	if errors.Is(err, sql.ErrNoRows) {
		return tracking.Run{}, fmt.Errorf("%w: %s", tracking.ErrRunNotFound, runID)
	}
	if err != nil {
		return tracking.Run{}, fmt.Errorf("get run: %w", err)
	}

	run.StartTime = fromMillis(start)
	run.EndTime = fromNullMillis(end)

	run.Tags, err = s.loadTags(ctx, runID)
	if err != nil {
		return tracking.Run{}, fmt.Errorf("get run: %w", err)
	}
	run.Metrics, err = s.loadMetrics(ctx, runID)
	if err != nil {
		return tracking.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

func (s *Store) loadTags(ctx context.Context, runID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value FROM run_tags WHERE run_id = ?
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("load tags: %w", err)
	}
	defer rows.Close()

	tags := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return tags, nil
}

func (s *Store) loadMetrics(ctx context.Context, runID string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value FROM run_metrics WHERE run_id = ?
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("load metrics: %w", err)
	}
	defer rows.Close()

	metrics := map[string]float64{}
	for rows.Next() {
		var (
			k string
			v float64
		)
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		metrics[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metrics: %w", err)
	}
	return metrics, nil
}

// ListArtifacts returns the recorded artifact paths for a run, sorted
// so callers see a stable listing.
func (s *Store) ListArtifacts(ctx context.Context, runID string) ([]string, error) {
	if err := s.requireRun(ctx, runID); err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT path FROM run_artifacts
		WHERE run_id = ?
		ORDER BY path COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan artifact path: %w", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifact paths: %w", err)
	}

	if paths == nil {
		paths = []string{}
	}
	return paths, nil
}

// DownloadArtifacts copies the artifact at path (file or directory
// subtree; "" means the run's whole artifact root) into dst. Returns
// the local path of the copied root.
func (s *Store) DownloadArtifacts(ctx context.Context, runID, path, dst string) (string, error) {
	if err := s.requireRun(ctx, runID); err != nil {
		return "", fmt.Errorf("download artifacts: %w", err)
	}

	src := filepath.Join(s.artifactRoot, runID)
	if path != "" {
		src = filepath.Join(src, filepath.FromSlash(path))
	}

	info, err := os.Stat(src)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: run %s path %q", tracking.ErrArtifactNotFound, runID, path)
	}
	if err != nil {
		return "", fmt.Errorf("download artifacts: %w", err)
	}

	local := dst
	if path != "" {
		local = filepath.Join(dst, filepath.Base(filepath.FromSlash(path)))
	}

	if !info.IsDir() {
		if _, err := copyFile(src, local); err != nil {
			return "", fmt.Errorf("download artifacts: %w", err)
		}
		return local, nil
	}

	err = filepath.WalkDir(src, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(local, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		_, err = copyFile(p, target)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("download artifacts: %w", err)
	}
	return local, nil
}
