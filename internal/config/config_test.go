package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stele-ml/stele/internal/policy"
)

const fullSnapshot = `
project: signals
environment: staging
platform: colab
model: distilbert-base-uncased

dataset:
  name: resume_ner
  version: "1.0"
  path: /mnt/data/resume_ner

hpo:
  search_space:
    learning_rate:
      low: 1.0e-05
      high: 0.001
      log: true
    batch_size: [16, 32]
  objective:
    metric: macro-f1
    direction: maximize

train:
  budget:
    max_steps: 1000
    patience: 3
  seed: 42

evaluation:
  metrics: [precision, recall, macro-f1]
  split: test

tracking:
  uri: sqlite:///tmp/tracking.db
  experiment: signals-hpo

run:
  mode: resume_if_incomplete
  checkpoint: false

paths:
  state_dir: /var/lib/stele
  backup_dir: /mnt/drive/backups
  legacy_sweep_dir: /mnt/data/sweeps
`

func parseSnapshot(t *testing.T, text string) *Snapshot {
	t.Helper()
	snap, err := Parse([]byte(text), "test.yaml")
	require.NoError(t, err)
	return snap
}

func TestParseFullSnapshot(t *testing.T) {
	snap := parseSnapshot(t, fullSnapshot)

	assert.Equal(t, "signals", snap.Project)
	assert.Equal(t, "staging", snap.Environment)
	assert.Equal(t, PlatformColab, snap.Platform)
	assert.Equal(t, "distilbert-base-uncased", snap.Model)

	assert.Equal(t, "sqlite:///tmp/tracking.db", snap.Tracking.URI)
	assert.Equal(t, "signals-hpo", snap.Tracking.Experiment)

	assert.Equal(t, policy.RunModeResumeIfIncomplete, snap.Run.Mode)
	assert.False(t, snap.Run.CheckpointEnabled, "explicit checkpoint: false must stick")

	assert.Equal(t, "/var/lib/stele", snap.Paths.StateDir)
	assert.Equal(t, filepath.Join("/var/lib/stele", "cache"), snap.Paths.CacheDir,
		"cache dir defaults under the state dir")
	assert.Equal(t, "/mnt/drive/backups", snap.Paths.BackupDir)
	assert.Equal(t, "/mnt/data/sweeps", snap.Paths.LegacySweepDir)
}

func TestParseKeepsIdentitySectionsRaw(t *testing.T) {
	snap := parseSnapshot(t, fullSnapshot)

	assert.Equal(t, map[string]any{
		"name":    "resume_ner",
		"version": "1.0",
		"path":    "/mnt/data/resume_ner",
	}, snap.Dataset, "dataset section must round-trip untouched, paths included")

	assert.Equal(t, map[string]any{
		"search_space": map[string]any{
			"learning_rate": map[string]any{"low": 1e-05, "high": 0.001, "log": true},
			"batch_size":    []any{16, 32},
		},
		"objective": map[string]any{"metric": "macro-f1", "direction": "maximize"},
	}, snap.HPO)

	assert.Equal(t, map[string]any{
		"budget": map[string]any{"max_steps": 1000, "patience": 3},
		"seed":   42,
	}, snap.Train)

	assert.Equal(t, map[string]any{
		"metrics": []any{"precision", "recall", "macro-f1"},
		"split":   "test",
	}, snap.Evaluation)
}

func TestParseAppliesDefaults(t *testing.T) {
	snap := parseSnapshot(t, `
project: signals
model: distilbert-base-uncased
dataset: {name: resume_ner}
hpo: {}
train: {}
evaluation: {}
`)

	assert.Equal(t, PlatformLocal, snap.Platform)
	assert.Empty(t, snap.Environment)
	assert.Equal(t, policy.RunModeReuseIfExists, snap.Run.Mode)
	assert.True(t, snap.Run.CheckpointEnabled, "checkpointing defaults on")
	assert.Equal(t, DefaultStateDir, snap.Paths.StateDir)
	assert.Equal(t, filepath.Join(DefaultStateDir, "cache"), snap.Paths.CacheDir)
	assert.Equal(t, "signals", snap.Tracking.Experiment,
		"experiment name defaults to the project")
	assert.Empty(t, snap.Benchmark)
}

func TestParseCollectsAllViolations(t *testing.T) {
	// Two independent violations: project missing, and a misspelled
	// section that the closed top level rejects.
	_, err := Parse([]byte(`
model: distilbert-base-uncased
datset: {name: resume_ner}
hpo: {}
train: {}
evaluation: {}
`), "broken.yaml")
	require.Error(t, err)

	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "broken.yaml", se.File)
	assert.GreaterOrEqual(t, len(se.Issues), 2, "both violations must be reported in one pass")
	assert.Contains(t, err.Error(), "project")
	assert.Contains(t, err.Error(), "datset")
}

func TestParseRejectsUnknownTopLevelSection(t *testing.T) {
	_, err := Parse([]byte(`
project: signals
model: distilbert-base-uncased
dataset: {name: resume_ner}
hpo: {}
train: {}
evaluation: {}
outputs: {dir: /tmp}
`), "test.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outputs")
	assert.Contains(t, err.Error(), "not allowed")
}

func TestParseRejectsBadEnums(t *testing.T) {
	base := `
project: signals
model: distilbert-base-uncased
dataset: {name: resume_ner}
hpo: {}
train: {}
evaluation: {}
`
	tests := []struct {
		name    string
		extra   string
		mention string
	}{
		{"platform", "platform: kubernetes\n", "platform"},
		{"run mode", "run: {mode: always}\n", "mode"},
		{"objective direction", "hpo: {objective: {direction: up}}\n", "direction"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(base+tt.extra), "test.yaml")
			require.Error(t, err)
			var se *SchemaError
			require.ErrorAs(t, err, &se)
			assert.Contains(t, err.Error(), tt.mention)
		})
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("{{not yaml"), "bad.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode config snapshot")
}

func TestParseRejectsNonMappingDocument(t *testing.T) {
	_, err := Parse([]byte("- a\n- b\n"), "list.yaml")
	require.Error(t, err)
}

func TestLoadReadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullSnapshot), 0o644))

	snap, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "signals", snap.Project)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestNumericDatasetVersionAccepted(t *testing.T) {
	snap := parseSnapshot(t, `
project: signals
model: distilbert-base-uncased
dataset: {name: resume_ner, version: 2}
hpo: {}
train: {}
evaluation: {}
`)
	assert.Equal(t, 2, snap.Dataset["version"])
}

func TestPlatformUsesBackupStore(t *testing.T) {
	assert.False(t, PlatformLocal.UsesBackupStore())
	assert.True(t, PlatformColab.UsesBackupStore())
	assert.False(t, PlatformAzureML.UsesBackupStore())
}

func TestValidatePlatform(t *testing.T) {
	assert.NoError(t, ValidatePlatform(""))
	assert.NoError(t, ValidatePlatform("local"))
	assert.NoError(t, ValidatePlatform("colab"))
	assert.NoError(t, ValidatePlatform("azureml"))
	assert.Error(t, ValidatePlatform("kubernetes"))
}

func TestSchemaErrorMessageListsIssues(t *testing.T) {
	se := &SchemaError{
		File: "snap.yaml",
		Issues: []SchemaIssue{
			{Field: "project", Message: "incomplete value"},
			{Field: "run.mode", Message: "conflicting values"},
		},
	}
	msg := se.Error()
	assert.Contains(t, msg, "snap.yaml")
	assert.Contains(t, msg, "2 problems")
	assert.Contains(t, msg, "project: incomplete value")
	assert.Contains(t, msg, "run.mode: conflicting values")
}
