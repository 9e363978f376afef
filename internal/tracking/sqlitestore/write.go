package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/stele-ml/stele/internal/tracking"
)

// CreateExperiment registers an experiment by name and returns its id.
// Creating an existing name is idempotent: the existing experiment's id
// is returned, no duplicate is inserted.
func (s *Store) CreateExperiment(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", errors.New("experiment name must not be empty")
	}

	id := s.idgen.Generate()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO experiments (experiment_id, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, id, name, toMillis(s.now()))
	if err != nil {
		return "", fmt.Errorf("create experiment %q: %w", name, err)
	}

	// Either our insert landed or the name already existed; read back
	// the authoritative id.
	var existing string
	err = s.db.QueryRowContext(ctx,
		`SELECT experiment_id FROM experiments WHERE name = ?`, name,
	).Scan(&existing)
	if err != nil {
		return "", fmt.Errorf("create experiment %q: read back: %w", name, err)
	}
	return existing, nil
}

// CreateRun registers a new run with its tags in one transaction. The
// request must pass tracking.RunRequest.Validate; the store re-checks
// so a hand-built request cannot smuggle in an empty name.
func (s *Store) CreateRun(ctx context.Context, req tracking.RunRequest) (tracking.Run, error) {
	if err := req.Validate(); err != nil {
		return tracking.Run{}, fmt.Errorf("create run: %w", err)
	}
	if _, err := s.GetExperiment(ctx, req.ExperimentID); err != nil {
		return tracking.Run{}, fmt.Errorf("create run: %w", err)
	}

	runID := s.idgen.Generate()
	start := toMillis(s.now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return tracking.Run{}, fmt.Errorf("create run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, experiment_id, name, status, start_time)
		VALUES (?, ?, ?, ?, ?)
	`, runID, req.ExperimentID, req.Name, string(tracking.StatusRunning), start)
	if err != nil {
		return tracking.Run{}, fmt.Errorf("create run: insert: %w", err)
	}

	for key, value := range req.Tags {
		if err := upsertTag(ctx, tx, runID, key, value); err != nil {
			return tracking.Run{}, fmt.Errorf("create run: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return tracking.Run{}, fmt.Errorf("create run: commit: %w", err)
	}

	run := tracking.Run{
		RunID:        runID,
		ExperimentID: req.ExperimentID,
		Name:         req.Name,
		Status:       tracking.StatusRunning,
		StartTime:    fromMillis(start),
		Tags:         copyTags(req.Tags),
		Metrics:      map[string]float64{},
	}
	return run, nil
}

// SetTag sets or overwrites a tag on a run.
func (s *Store) SetTag(ctx context.Context, runID, key, value string) error {
	if key == "" {
		return errors.New("set tag: key must not be empty")
	}
	if err := s.requireRun(ctx, runID); err != nil {
		return fmt.Errorf("set tag: %w", err)
	}
	if err := upsertTag(ctx, s.db, runID, key, value); err != nil {
		return fmt.Errorf("set tag: %w", err)
	}
	return nil
}

// SetStatus transitions a run's lifecycle status. Entering a terminal
// status stamps the end time; re-entering one keeps the original stamp
// so a retried finish call is idempotent.
func (s *Store) SetStatus(ctx context.Context, runID string, status tracking.RunStatus) error {
	if err := s.requireRun(ctx, runID); err != nil {
		return fmt.Errorf("set status: %w", err)
	}

	var end any
	if status.Terminal() {
		end = toMillis(s.now())
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, end_time = COALESCE(end_time, ?)
		WHERE run_id = ?
	`, string(status), end, runID)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}

// LogMetric records the latest value for a metric key. Repeated logs
// for the same key overwrite: the Run view exposes one value per key.
func (s *Store) LogMetric(ctx context.Context, runID, key string, value float64, step int) error {
	if key == "" {
		return errors.New("log metric: key must not be empty")
	}
	if err := s.requireRun(ctx, runID); err != nil {
		return fmt.Errorf("log metric: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_metrics (run_id, key, value, step, recorded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, key) DO UPDATE SET
			value = excluded.value,
			step = excluded.step,
			recorded_at = excluded.recorded_at
	`, runID, key, value, step, toMillis(s.now()))
	if err != nil {
		return fmt.Errorf("log metric: %w", err)
	}
	return nil
}

// LogArtifact copies the file or directory at src into the run's
// artifact tree under relPath and records the resulting paths.
// Re-logging the same path overwrites, mirroring backend behavior.
func (s *Store) LogArtifact(ctx context.Context, runID, relPath, src string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("log artifact: %w", err)
	}
	if info.IsDir() {
		return filepath.WalkDir(src, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(src, p)
			if err != nil {
				return err
			}
			return s.logArtifactFile(ctx, runID, filepath.ToSlash(filepath.Join(relPath, rel)), p)
		})
	}
	return s.logArtifactFile(ctx, runID, filepath.ToSlash(relPath), src)
}

// LogArtifactData records raw bytes as an artifact at relPath.
func (s *Store) LogArtifactData(ctx context.Context, runID, relPath string, data []byte) error {
	if err := s.requireRun(ctx, runID); err != nil {
		return fmt.Errorf("log artifact: %w", err)
	}
	dst := filepath.Join(s.artifactRoot, runID, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("log artifact: %w", err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("log artifact: %w", err)
	}
	return s.recordArtifact(ctx, runID, filepath.ToSlash(relPath), int64(len(data)))
}

func (s *Store) logArtifactFile(ctx context.Context, runID, relPath, src string) error {
	if err := s.requireRun(ctx, runID); err != nil {
		return fmt.Errorf("log artifact: %w", err)
	}
	dst := filepath.Join(s.artifactRoot, runID, filepath.FromSlash(relPath))
	size, err := copyFile(src, dst)
	if err != nil {
		return fmt.Errorf("log artifact %s: %w", relPath, err)
	}
	return s.recordArtifact(ctx, runID, relPath, size)
}

func (s *Store) recordArtifact(ctx context.Context, runID, relPath string, size int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_artifacts (run_id, path, size_bytes, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, path) DO UPDATE SET
			size_bytes = excluded.size_bytes,
			created_at = excluded.created_at
	`, runID, relPath, size, toMillis(s.now()))
	if err != nil {
		return fmt.Errorf("record artifact %s: %w", relPath, err)
	}
	return nil
}

func (s *Store) requireRun(ctx context.Context, runID string) error {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM runs WHERE run_id = ?`, runID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", tracking.ErrRunNotFound, runID)
	}
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertTag(ctx context.Context, db execer, runID, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO run_tags (run_id, key, value)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id, key) DO UPDATE SET value = excluded.value
	`, runID, key, value)
	if err != nil {
		return fmt.Errorf("upsert tag %s: %w", key, err)
	}
	return nil
}

func copyTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}
	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return 0, err
	}
	return n, out.Close()
}
