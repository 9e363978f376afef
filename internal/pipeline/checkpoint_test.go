package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stele-ml/stele/internal/artifacts"
	"github.com/stele-ml/stele/internal/config"
	"github.com/stele-ml/stele/internal/policy"
	"github.com/stele-ml/stele/internal/tracking"
)

func TestBackupMirrorFor(t *testing.T) {
	snap := testSnapshot(policy.RunModeReuseIfExists)
	snap.Paths.BackupDir = "/mnt/drive/backups"
	snap.Paths.CacheDir = "/tmp/cache"

	snap.Platform = config.PlatformLocal
	assert.Nil(t, BackupMirrorFor(snap))

	snap.Platform = config.PlatformAzureML
	assert.Nil(t, BackupMirrorFor(snap))

	snap.Platform = config.PlatformColab
	assert.NotNil(t, BackupMirrorFor(snap))

	snap.Paths.BackupDir = ""
	assert.Nil(t, BackupMirrorFor(snap), "no backup path, no mirror")
}

func TestResolveCheckpointFromLocalCache(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	snap := testSnapshot(policy.RunModeReuseIfExists)
	snap.Paths.CacheDir = filepath.Join(t.TempDir(), "cache")

	ckptDir := artifacts.RunCachePath(snap.Paths.CacheDir, "run-local")
	require.NoError(t, os.MkdirAll(ckptDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ckptDir, "config.json"), []byte(`{"model_type":"distilbert"}`), 0o644))

	loc, err := env.coord.ResolveCheckpoint(ctx, snap, "run-local", "")
	require.NoError(t, err)
	assert.Equal(t, artifacts.SourceLocal, loc.Source)
	assert.Equal(t, ckptDir, loc.Path)
}

func TestResolveCheckpointFromTrackingStore(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	snap := testSnapshot(policy.RunModeReuseIfExists)
	snap.Paths.CacheDir = filepath.Join(t.TempDir(), "cache")

	expID, err := env.store.CreateExperiment(ctx, "signals")
	require.NoError(t, err)
	req, err := tracking.NewRunRequest(expID, "final-distilbert-aa11bb22-v1", nil)
	require.NoError(t, err)
	run, err := env.store.CreateRun(ctx, req)
	require.NoError(t, err)
	require.NoError(t, env.store.LogArtifactData(ctx, run.RunID,
		"checkpoint-500/config.json", []byte(`{"model_type":"distilbert"}`)))

	loc, err := env.coord.ResolveCheckpoint(ctx, snap, run.RunID, "")
	require.NoError(t, err)
	assert.Equal(t, artifacts.SourceRemote, loc.Source)
	assert.Equal(t, "checkpoint-500", filepath.Base(loc.Path))
	assert.FileExists(t, filepath.Join(loc.Path, "config.json"))
}

func TestResolveCheckpointRestoresFromBackup(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	dir := t.TempDir()

	snap := testSnapshot(policy.RunModeReuseIfExists)
	snap.Platform = config.PlatformColab
	snap.Paths.CacheDir = filepath.Join(dir, "cache")
	snap.Paths.BackupDir = filepath.Join(dir, "drive")

	// Seed the mirror from a cache directory, then lose the cache, the
	// way a recycled notebook VM does.
	runDir := artifacts.RunCachePath(snap.Paths.CacheDir, "run-backup")
	require.NoError(t, os.MkdirAll(runDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "config.json"), []byte(`{"model_type":"distilbert"}`), 0o644))
	mirror := BackupMirrorFor(snap)
	require.NotNil(t, mirror)
	require.NoError(t, mirror.Backup(runDir, true))
	require.NoError(t, os.RemoveAll(snap.Paths.CacheDir))

	loc, err := env.coord.ResolveCheckpoint(ctx, snap, "run-backup", "")
	require.NoError(t, err)
	assert.Equal(t, artifacts.SourceBackup, loc.Source)
	assert.Equal(t, runDir, loc.Path)
	assert.FileExists(t, filepath.Join(runDir, "config.json"))
}

func TestResolveCheckpointExhausted(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	snap := testSnapshot(policy.RunModeReuseIfExists)
	snap.Paths.CacheDir = filepath.Join(t.TempDir(), "cache")

	_, err := env.coord.ResolveCheckpoint(ctx, snap, "run-none", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, artifacts.ErrExhausted)
}
