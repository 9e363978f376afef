package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stele-ml/stele/internal/config"
	"github.com/stele-ml/stele/internal/index"
)

// CounterOptions holds flags shared by the counter subcommands.
type CounterOptions struct {
	*RootOptions
	StateDir string
}

// NewCounterCommand creates the counter command group.
func NewCounterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CounterOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "counter",
		Short: "Operate the crash-safe run-name counter",
		Long: `Operate the run-name version counter: reserve the next version for a
counter key, commit a reservation to a created run, expire stale
reservations, and list allocations.

Counter keys have the form project:process:hash8:environment. Versions
only ever move forward; expired reservations keep their version so a
name is never minted twice.

Examples:
  stele counter reserve --key signals:final:99887766:local
  stele counter commit --key signals:final:99887766:local --version 3 --run-id 4f5e6d...
  stele counter cleanup --stale-after 24h
  stele counter list --key signals:final:99887766:local`,
	}

	cmd.PersistentFlags().StringVar(&opts.StateDir, "state-dir", config.DefaultStateDir, "state directory holding the counter file")

	cmd.AddCommand(newCounterReserveCommand(opts))
	cmd.AddCommand(newCounterCommitCommand(opts))
	cmd.AddCommand(newCounterCleanupCommand(opts))
	cmd.AddCommand(newCounterListCommand(opts))

	return cmd
}

func newCounterReserveCommand(opts *CounterOptions) *cobra.Command {
	var key, runID string

	cmd := &cobra.Command{
		Use:           "reserve",
		Short:         "Reserve the next version for a counter key",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cs := index.NewCounterStore(opts.StateDir)
			version, err := cs.Reserve(key, runID)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to reserve version", err)
			}

			formatter := newFormatter(opts.RootOptions, cmd)
			if formatter.Format == "json" {
				return formatter.Success(map[string]any{"counter_key": key, "version": version})
			}
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "counter key (required)")
	_ = cmd.MarkFlagRequired("key")
	cmd.Flags().StringVar(&runID, "run-id", "", "placeholder run id recorded with the reservation")

	return cmd
}

func newCounterCommitCommand(opts *CounterOptions) *cobra.Command {
	var (
		key     string
		version int
		runID   string
	)

	cmd := &cobra.Command{
		Use:           "commit",
		Short:         "Commit a reserved version to a created run",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cs := index.NewCounterStore(opts.StateDir)
			if err := cs.Commit(key, version, runID); err != nil {
				return WrapExitError(ExitCommandError, "failed to commit version", err)
			}

			formatter := newFormatter(opts.RootOptions, cmd)
			if formatter.Format == "json" {
				return formatter.Success(map[string]any{
					"counter_key": key,
					"version":     version,
					"run_id":      runID,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "committed %s v%d -> %s\n", key, version, runID)
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "counter key (required)")
	_ = cmd.MarkFlagRequired("key")
	cmd.Flags().IntVar(&version, "version", 0, "reserved version to commit (required)")
	_ = cmd.MarkFlagRequired("version")
	cmd.Flags().StringVar(&runID, "run-id", "", "run id the version belongs to (required)")
	_ = cmd.MarkFlagRequired("run-id")

	return cmd
}

func newCounterCleanupCommand(opts *CounterOptions) *cobra.Command {
	var staleAfter time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Expire stale reservations",
		Long: `Mark reservations older than --stale-after as expired. Records are
never deleted and expired versions are never reissued; each expiry is
logged with its placeholder run id so an operator can reconcile any
matching run in the tracking store by hand.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cs := index.NewCounterStore(opts.StateDir)
			expired, err := cs.Cleanup(staleAfter)
			if err != nil {
				return WrapExitError(ExitCommandError, "cleanup failed", err)
			}

			formatter := newFormatter(opts.RootOptions, cmd)
			if formatter.Format == "json" {
				return formatter.Success(map[string]any{"expired": expired})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d stale reservation(s)\n", expired)
			return nil
		},
	}

	cmd.Flags().DurationVar(&staleAfter, "stale-after", index.DefaultStaleReservation, "age before a reservation counts as stale")

	return cmd
}

func newCounterListCommand(opts *CounterOptions) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List counter allocations",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cs := index.NewCounterStore(opts.StateDir)
			allocs, err := cs.Allocations(key)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read counter", err)
			}

			formatter := newFormatter(opts.RootOptions, cmd)
			if formatter.Format == "json" {
				return formatter.Success(allocs)
			}

			out := cmd.OutOrStdout()
			if len(allocs) == 0 {
				fmt.Fprintln(out, "no allocations")
				return nil
			}
			for _, a := range allocs {
				fmt.Fprintf(out, "%s v%d %s %s reserved=%s",
					a.CounterKey, a.Version, a.Status, a.RunID,
					a.ReservedAt.Format(time.RFC3339))
				if !a.CommittedAt.IsZero() {
					fmt.Fprintf(out, " committed=%s", a.CommittedAt.Format(time.RFC3339))
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "restrict to one counter key")

	return cmd
}
