package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stele-ml/stele/internal/artifacts"
	"github.com/stele-ml/stele/internal/pipeline"
)

// CheckpointOptions holds flags shared by the checkpoint subcommands.
type CheckpointOptions struct {
	*RootOptions
	Config string
	RunID  string
	Hash   string
}

// NewCheckpointCommand creates the checkpoint command group.
func NewCheckpointCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckpointOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Locate model checkpoints",
	}

	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "path to config snapshot (required)")
	_ = cmd.MarkPersistentFlagRequired("config")

	cmd.AddCommand(newCheckpointResolveCommand(opts))

	return cmd
}

func newCheckpointResolveCommand(opts *CheckpointOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a usable checkpoint directory",
		Long: `Walk the checkpoint acquisition chain for a run: the local caches and
the legacy sweep layout, the backup mirror when the platform has one,
then the tracking backend's artifacts. The first candidate that passes
checkpoint validation wins; exhausting the chain prints each attempted
source and how to recover by hand.

Examples:
  stele checkpoint resolve --config snapshot.yaml --run-id 4f5e6d7c8b9a...
  stele checkpoint resolve --config snapshot.yaml --hash 99887766aabb...`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckpointResolve(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "run id to resolve a checkpoint for")
	cmd.Flags().StringVar(&opts.Hash, "hash", "", "identity hash keying the shared cache path")

	return cmd
}

func runCheckpointResolve(opts *CheckpointOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.RunID == "" && opts.Hash == "" {
		return NewExitError(ExitCommandError, "at least one of --run-id or --hash is required")
	}

	snap, err := loadSnapshot(opts.Config)
	if err != nil {
		return err
	}
	st, err := openTrackingStore(snap)
	if err != nil {
		return err
	}
	defer st.Close()

	loc, err := pipeline.ResolveCheckpoint(context.Background(), st, snap, opts.RunID, opts.Hash)
	if err != nil {
		if errors.Is(err, artifacts.ErrExhausted) {
			_ = formatter.Error(err.Error(), nil)
			return NewExitError(ExitFailure, "no checkpoint found")
		}
		return WrapExitError(ExitCommandError, "checkpoint resolution failed", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(map[string]any{
			"path":     loc.Path,
			"source":   string(loc.Source),
			"strategy": loc.Strategy,
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), loc.Path)
	formatter.VerboseLog("source: %s, strategy: %s", loc.Source, loc.Strategy)
	return nil
}
