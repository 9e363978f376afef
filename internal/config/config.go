// Package config loads pipeline snapshot files: YAML decoded into plain
// nested maps, validated eagerly against an embedded CUE schema, then
// exposed through typed views.
//
// The identity-bearing sections (dataset, hpo, train, evaluation) are
// kept exactly as decoded. Key builders and fingerprints must see what
// the file said, so the schema only constrains the tree; it never
// rewrites or reorders it.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/stele-ml/stele/internal/policy"
)

//go:embed schema.cue
var schemaSource string

// DefaultStateDir is where index and counter files live when the
// snapshot does not say otherwise.
const DefaultStateDir = ".stele"

// Platform identifies where the pipeline is running. Acquisition
// consults the secondary backup store only on the hosted notebook
// platform; everything else is platform-independent.
type Platform string

const (
	PlatformLocal   Platform = "local"
	PlatformColab   Platform = "colab"
	PlatformAzureML Platform = "azureml"
)

// ValidatePlatform checks that s names a known platform. Empty is valid
// and defaults to local.
func ValidatePlatform(s string) error {
	switch Platform(s) {
	case PlatformLocal, PlatformColab, PlatformAzureML, "":
		return nil
	default:
		return fmt.Errorf("invalid platform %q: must be local, colab, or azureml", s)
	}
}

// UsesBackupStore reports whether checkpoint acquisition consults the
// backup mirror on this platform. Only the hosted notebook platform has
// the ephemeral-VM-plus-mounted-drive layout the mirror exists for.
func (p Platform) UsesBackupStore() bool {
	return p == PlatformColab
}

// Snapshot is one validated pipeline configuration.
type Snapshot struct {
	Project     string
	Environment string
	Platform    Platform
	Model       string

	// Raw decoded sections, handed to key builders and fingerprints
	// unmodified.
	Dataset    map[string]any
	HPO        map[string]any
	Train      map[string]any
	Evaluation map[string]any
	Benchmark  map[string]any

	Tracking Tracking
	Run      RunSettings
	Paths    Paths
}

// Tracking says which tracking backend runs are recorded in and under
// which experiment name.
type Tracking struct {
	URI        string
	Experiment string
}

// RunSettings carries the stage idempotency policy.
type RunSettings struct {
	Mode policy.RunMode

	// CheckpointEnabled gates resume-from-checkpoint behavior. Defaults
	// to true; with checkpointing off there is nothing to resume from.
	CheckpointEnabled bool
}

// Paths locates the local state this workspace keeps outside the
// tracking store.
type Paths struct {
	StateDir       string // index and counter files
	CacheDir       string // checkpoint cache
	BackupDir      string // backup mirror root; empty leaves the mirror unconfigured
	LegacySweepDir string // pre-migration sweep outputs swept during acquisition
}

// SchemaIssue is one violation found while validating a snapshot.
type SchemaIssue struct {
	Field   string `json:"field"` // dotted config path, e.g. "hpo.objective.direction"
	Message string `json:"message"`
}

// SchemaError aggregates every schema violation in a snapshot so one
// load attempt surfaces all of them.
type SchemaError struct {
	File   string
	Issues []SchemaIssue
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "config snapshot %s failed schema validation (%d problem", e.File, len(e.Issues))
	if len(e.Issues) != 1 {
		b.WriteByte('s')
	}
	b.WriteByte(')')
	for _, issue := range e.Issues {
		b.WriteString("\n  ")
		if issue.Field != "" {
			b.WriteString(issue.Field)
			b.WriteString(": ")
		}
		b.WriteString(issue.Message)
	}
	return b.String()
}

// Load reads and validates a snapshot file.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config snapshot: %w", err)
	}
	return Parse(data, path)
}

// Parse decodes YAML and validates the tree against the embedded schema.
// Violations are collected into one SchemaError rather than failing on
// the first, so a bad snapshot is fixable in a single pass.
func Parse(data []byte, name string) (*Snapshot, error) {
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("decode config snapshot %s: %w", name, err)
	}
	if tree == nil {
		tree = map[string]any{}
	}
	if err := validateTree(tree, name); err != nil {
		return nil, err
	}
	return snapshotFromTree(tree), nil
}

func validateTree(tree map[string]any, name string) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile embedded schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Snapshot"))
	if !def.Exists() {
		return fmt.Errorf("embedded schema has no #Snapshot definition")
	}

	value := ctx.Encode(tree)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode config snapshot %s: %w", name, err)
	}

	err := def.Unify(value).Validate(cue.Concrete(true), cue.Final())
	if err == nil {
		return nil
	}

	se := &SchemaError{File: name}
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		se.Issues = append(se.Issues, SchemaIssue{
			Field:   strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		})
	}
	return se
}

// snapshotFromTree builds the typed view. The tree has already passed
// schema validation, so type assertions here cannot miss for known
// fields; absent optional fields fall back to defaults.
func snapshotFromTree(tree map[string]any) *Snapshot {
	snap := &Snapshot{
		Project:     stringField(tree, "project"),
		Environment: stringField(tree, "environment"),
		Platform:    PlatformLocal,
		Model:       stringField(tree, "model"),
		Dataset:     mapSection(tree, "dataset"),
		HPO:         mapSection(tree, "hpo"),
		Train:       mapSection(tree, "train"),
		Evaluation:  mapSection(tree, "evaluation"),
		Benchmark:   mapSection(tree, "benchmark"),
	}
	if p := stringField(tree, "platform"); p != "" {
		snap.Platform = Platform(p)
	}

	tracking := mapSection(tree, "tracking")
	snap.Tracking = Tracking{
		URI:        stringField(tracking, "uri"),
		Experiment: stringField(tracking, "experiment"),
	}
	if snap.Tracking.Experiment == "" {
		snap.Tracking.Experiment = snap.Project
	}

	run := mapSection(tree, "run")
	snap.Run = RunSettings{
		Mode:              policy.NormalizeRunMode(policy.RunMode(stringField(run, "mode"))),
		CheckpointEnabled: true,
	}
	if v, ok := run["checkpoint"].(bool); ok {
		snap.Run.CheckpointEnabled = v
	}

	paths := mapSection(tree, "paths")
	snap.Paths = Paths{
		StateDir:       stringField(paths, "state_dir"),
		CacheDir:       stringField(paths, "cache_dir"),
		BackupDir:      stringField(paths, "backup_dir"),
		LegacySweepDir: stringField(paths, "legacy_sweep_dir"),
	}
	if snap.Paths.StateDir == "" {
		snap.Paths.StateDir = DefaultStateDir
	}
	if snap.Paths.CacheDir == "" {
		snap.Paths.CacheDir = filepath.Join(snap.Paths.StateDir, "cache")
	}

	return snap
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func mapSection(m map[string]any, key string) map[string]any {
	section, _ := m[key].(map[string]any)
	return section
}
