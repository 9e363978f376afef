package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/stele-ml/stele/internal/discovery"
	"github.com/stele-ml/stele/internal/identity"
	"github.com/stele-ml/stele/internal/index"
	"github.com/stele-ml/stele/internal/naming"
	"github.com/stele-ml/stele/internal/pipeline"
	"github.com/stele-ml/stele/internal/policy"
	"github.com/stele-ml/stele/internal/tracking"
)

// FindOptions holds flags for the find command.
type FindOptions struct {
	*RootOptions
	Config       string
	Process      string
	HParams      string
	OutputDir    string
	RunID        string
	ExperimentID string
	Strict       bool
}

// findResult is the JSON payload for a resolved run.
type findResult struct {
	RunID        string   `json:"run_id"`
	ExperimentID string   `json:"experiment_id"`
	Name         string   `json:"name"`
	Status       string   `json:"status"`
	Tier         string   `json:"tier"`
	Trusted      bool     `json:"trusted"`
	IdentityHash string   `json:"identity_hash"`
	Attempted    []string `json:"attempted"`
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FindOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "find",
		Short: "Resolve the run a stage would adopt",
		Long: `Resolve a previously created run for a pipeline stage by walking the
discovery chain: direct run id, output-dir sidecar, local index,
identity tag on the tracking backend, then the weak fallbacks.

Without --strict the weak tiers may return a run from the same
experiment that is not the same logical entity; the tier in the output
says how much to trust the hit. The pipeline itself always resolves
strictly.

Examples:
  stele find --config snapshot.yaml --process final_training
  stele find --config snapshot.yaml --process hpo_sweep --strict
  stele find --config snapshot.yaml --process refit --output-dir out/refit`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFind(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to config snapshot (required)")
	_ = cmd.MarkFlagRequired("config")
	cmd.Flags().StringVar(&opts.Process, "process", "", "process type (hpo_sweep|hpo_trial|refit|selection|benchmarking|final_training|conversion) (required)")
	_ = cmd.MarkFlagRequired("process")
	cmd.Flags().StringVar(&opts.HParams, "hparams", "", "trial hyperparameters as inline YAML/JSON (hpo_trial only)")
	cmd.Flags().StringVar(&opts.OutputDir, "output-dir", "", "stage output dir to check for a sidecar record")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "verify this run id directly")
	cmd.Flags().StringVar(&opts.ExperimentID, "experiment-id", "", "experiment id to scope the search (default: the configured experiment name)")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "stop after the trusted tiers, as the pipeline does")

	return cmd
}

func runFind(opts *FindOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd)

	if err := policy.ValidateProcessType(opts.Process); err != nil {
		return WrapExitError(ExitCommandError, "invalid --process", err)
	}
	pt := policy.ProcessType(opts.Process)

	var hparams map[string]any
	if opts.HParams != "" {
		if err := yaml.Unmarshal([]byte(opts.HParams), &hparams); err != nil {
			return WrapExitError(ExitCommandError, "failed to parse --hparams", err)
		}
	}
	if pt == policy.ProcessHPOTrial && hparams == nil {
		return NewExitError(ExitCommandError, "--process hpo_trial requires --hparams")
	}

	snap, err := loadSnapshot(opts.Config)
	if err != nil {
		return err
	}

	id, err := pipeline.ComputeIdentity(snap, hparams)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to compute identity", err)
	}
	nctx := pipeline.NamingContext(pipeline.StageRequest{Snapshot: snap, ProcessType: pt, HParams: hparams}, id)
	hash, err := nctx.IdentityHash()
	if err != nil {
		return WrapExitError(ExitFailure, "failed to derive identity hash", err)
	}
	baseName, err := naming.RunName(nctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to derive run name", err)
	}

	st, err := openTrackingStore(snap)
	if err != nil {
		return err
	}
	defer st.Close()

	// Scope the search to the configured experiment when it exists. A
	// missing experiment is not an error here: nothing was ever created
	// under it, so the search simply runs unscoped.
	expected := opts.ExperimentID
	if expected == "" && snap.Tracking.Experiment != "" {
		exp, err := st.GetExperimentByName(ctx, snap.Tracking.Experiment)
		switch {
		case err == nil:
			expected = exp.ExperimentID
		case errors.Is(err, tracking.ErrExperimentNotFound):
			slog.Debug("configured experiment does not exist, searching unscoped",
				"experiment", snap.Tracking.Experiment)
		default:
			return WrapExitError(ExitCommandError, "failed to resolve experiment", err)
		}
	}
	var experimentIDs []string
	if expected != "" {
		experimentIDs = []string{expected}
	}

	finder := discovery.NewFinder(st, discovery.WithIndex(index.NewRunIndex(snap.Paths.StateDir)))
	res, err := finder.Find(ctx, discovery.Query{
		RunID:                opts.RunID,
		OutputDir:            opts.OutputDir,
		IdentityHash:         hash,
		SchemaVersion:        identity.SchemaV2,
		ExperimentIDs:        experimentIDs,
		ExpectedExperimentID: expected,
		Strict:               opts.Strict,
		ProcessType:          string(pt),
		Model:                snap.Model,
		DataFingerprint:      id.DataFingerprint,
		EvalFingerprint:      id.EvalFingerprint,
		RunName:              baseName,
	})
	if err != nil {
		if errors.Is(err, discovery.ErrNotFound) {
			_ = formatter.Error(err.Error(), nil)
			return NewExitError(ExitFailure, "no run found")
		}
		return WrapExitError(ExitCommandError, "discovery failed", err)
	}

	return outputFind(formatter, cmd, res, hash)
}

func outputFind(formatter *OutputFormatter, cmd *cobra.Command, res discovery.Result, hash string) error {
	attempted := make([]string, 0, len(res.Attempted))
	for _, t := range res.Attempted {
		attempted = append(attempted, t.String())
	}

	if formatter.Format == "json" {
		return formatter.Success(findResult{
			RunID:        res.Run.RunID,
			ExperimentID: res.Run.ExperimentID,
			Name:         res.Run.Name,
			Status:       string(res.Run.Status),
			Tier:         res.Tier.String(),
			Trusted:      res.Tier.Trusted(),
			IdentityHash: hash,
			Attempted:    attempted,
		})
	}

	out := cmd.OutOrStdout()
	trust := "trusted"
	if !res.Tier.Trusted() {
		trust = "weak"
	}
	fmt.Fprintf(out, "run_id:     %s\n", res.Run.RunID)
	fmt.Fprintf(out, "name:       %s\n", res.Run.Name)
	fmt.Fprintf(out, "status:     %s\n", res.Run.Status)
	fmt.Fprintf(out, "experiment: %s\n", res.Run.ExperimentID)
	fmt.Fprintf(out, "tier:       %s (%s)\n", res.Tier, trust)
	fmt.Fprintf(out, "attempted:  %s\n", strings.Join(attempted, ", "))
	return nil
}
