package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stele-ml/stele/internal/config"
)

// ConfigOptions holds flags for the config subcommands.
type ConfigOptions struct {
	*RootOptions
}

type vetResult struct {
	Valid  bool                 `json:"valid"`
	Issues []config.SchemaIssue `json:"issues,omitempty"`
}

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConfigOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate config snapshots",
	}

	cmd.AddCommand(newConfigVetCommand(opts))

	return cmd
}

func newConfigVetCommand(opts *ConfigOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "vet <snapshot.yaml>",
		Short: "Validate a config snapshot against the schema",
		Long: `Load a config snapshot and report every schema violation at once,
so a broken snapshot is fixable in a single pass instead of one
error per attempt.

Examples:
  stele config vet snapshot.yaml
  stele config vet --format json snapshot.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigVet(opts, args[0], cmd)
		},
	}
}

func runConfigVet(opts *ConfigOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	snap, err := config.Load(path)
	if err != nil {
		var se *config.SchemaError
		if errors.As(err, &se) {
			if outErr := outputVetIssues(formatter, se); outErr != nil {
				return outErr
			}
			return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d issue(s)", len(se.Issues)))
		}
		_ = formatter.Error(err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load config snapshot", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(vetResult{Valid: true})
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "✓ config snapshot valid")
	fmt.Fprintf(out, "  project:  %s\n", snap.Project)
	fmt.Fprintf(out, "  model:    %s\n", snap.Model)
	fmt.Fprintf(out, "  platform: %s\n", snap.Platform)
	fmt.Fprintf(out, "  run mode: %s\n", snap.Run.Mode)
	return nil
}

func outputVetIssues(formatter *OutputFormatter, se *config.SchemaError) error {
	if formatter.Format == "json" {
		resp := Response{
			Status: "error",
			Data:   vetResult{Valid: false, Issues: se.Issues},
			Error:  &ErrorBody{Message: se.Error()},
		}
		enc := json.NewEncoder(formatter.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	fmt.Fprintln(formatter.Writer, "✗ config snapshot invalid")
	for _, issue := range se.Issues {
		fmt.Fprintf(formatter.Writer, "  %s: %s\n", issue.Field, issue.Message)
	}
	return nil
}
