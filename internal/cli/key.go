package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/stele-ml/stele/internal/config"
	"github.com/stele-ml/stele/internal/identity"
)

// KeyOptions holds flags shared by the key subcommands.
type KeyOptions struct {
	*RootOptions
	Config  string
	Schema  string
	ShowDoc bool
}

// keyResult is the JSON payload for a computed key.
type keyResult struct {
	Schema    string `json:"schema,omitempty"`
	Kind      string `json:"kind"`
	Hash      string `json:"hash"`
	ShortHash string `json:"short_hash"`
	Document  string `json:"document,omitempty"`
}

// NewKeyCommand creates the key command group.
func NewKeyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &KeyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "key",
		Short: "Compute identity keys from a config snapshot",
		Long: `Compute the content-addressed identity keys a config snapshot
produces: the study key (the exact training configuration), the study
family key (the same grouping without the model, for cross-backbone
comparison), and trial keys (study plus one hyperparameter assignment).

The printed hash is the full 64-character content hash; run names and
counter keys embed a prefix of it.

Examples:
  stele key study --config snapshot.yaml
  stele key study --config snapshot.yaml --schema v1
  stele key family --config snapshot.yaml --doc
  stele key trial --config snapshot.yaml --hparams '{learning_rate: 3.0e-05}'`,
	}

	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "path to config snapshot (required)")
	_ = cmd.MarkPersistentFlagRequired("config")
	cmd.PersistentFlags().StringVar(&opts.Schema, "schema", identity.SchemaV2, "key schema version (v1|v2)")
	cmd.PersistentFlags().BoolVar(&opts.ShowDoc, "doc", false, "also print the canonical key document")

	cmd.AddCommand(newKeyStudyCommand(opts))
	cmd.AddCommand(newKeyFamilyCommand(opts))
	cmd.AddCommand(newKeyTrialCommand(opts))

	return cmd
}

func newKeyStudyCommand(opts *KeyOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "study",
		Short:         "Compute the study key",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := loadSnapshot(opts.Config)
			if err != nil {
				return err
			}
			key, err := studyKey(opts, snap)
			if err != nil {
				return err
			}
			return outputKey(opts, cmd, key)
		},
	}
}

func newKeyFamilyCommand(opts *KeyOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "family",
		Short:         "Compute the study family key",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Schema != identity.SchemaV2 {
				return NewExitError(ExitCommandError, "study family keys exist under schema v2 only")
			}
			snap, err := loadSnapshot(opts.Config)
			if err != nil {
				return err
			}
			dataFP, evalFP, err := fingerprints(snap)
			if err != nil {
				return err
			}
			key, err := identity.StudyFamilyKeyV2(snap.Dataset, snap.HPO, snap.Train, dataFP, evalFP)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to build study family key", err)
			}
			return outputKey(opts, cmd, key)
		},
	}
}

func newKeyTrialCommand(opts *KeyOptions) *cobra.Command {
	var hparams string

	cmd := &cobra.Command{
		Use:   "trial",
		Short: "Compute a trial key",
		Long: `Compute the trial key for one hyperparameter assignment within the
snapshot's study. Hyperparameters are given inline as YAML or JSON:

  stele key trial --config snapshot.yaml --hparams '{learning_rate: 3.0e-05, batch_size: 16}'`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var hp map[string]any
			if err := yaml.Unmarshal([]byte(hparams), &hp); err != nil {
				return WrapExitError(ExitCommandError, "failed to parse --hparams", err)
			}
			snap, err := loadSnapshot(opts.Config)
			if err != nil {
				return err
			}
			study, err := studyKey(opts, snap)
			if err != nil {
				return err
			}
			key, err := identity.TrialKey(study.Hash, hp)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to build trial key", err)
			}
			return outputKey(opts, cmd, key)
		},
	}

	cmd.Flags().StringVar(&hparams, "hparams", "", "trial hyperparameters as inline YAML/JSON (required)")
	_ = cmd.MarkFlagRequired("hparams")

	return cmd
}

// studyKey builds the study key under the schema version the flags ask
// for.
func studyKey(opts *KeyOptions, snap *config.Snapshot) (identity.Key, error) {
	switch opts.Schema {
	case identity.SchemaV1:
		key, err := identity.StudyKeyV1(snap.Dataset, snap.HPO, snap.Model, snap.Benchmark)
		if err != nil {
			return identity.Key{}, WrapExitError(ExitFailure, "failed to build study key", err)
		}
		return key, nil
	case identity.SchemaV2:
		dataFP, evalFP, err := fingerprints(snap)
		if err != nil {
			return identity.Key{}, err
		}
		key, err := identity.StudyKeyV2(snap.Dataset, snap.HPO, snap.Train, snap.Model, dataFP, evalFP)
		if err != nil {
			return identity.Key{}, WrapExitError(ExitFailure, "failed to build study key", err)
		}
		return key, nil
	default:
		return identity.Key{}, NewExitError(ExitCommandError,
			fmt.Sprintf("invalid schema %q: must be %s or %s", opts.Schema, identity.SchemaV1, identity.SchemaV2))
	}
}

func fingerprints(snap *config.Snapshot) (dataFP, evalFP string, err error) {
	dataFP, err = identity.DataFingerprint(snap.Dataset)
	if err != nil {
		return "", "", WrapExitError(ExitFailure, "failed to fingerprint dataset config", err)
	}
	evalFP, err = identity.EvalFingerprint(snap.Evaluation)
	if err != nil {
		return "", "", WrapExitError(ExitFailure, "failed to fingerprint evaluation config", err)
	}
	return dataFP, evalFP, nil
}

func outputKey(opts *KeyOptions, cmd *cobra.Command, key identity.Key) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	if formatter.Format == "json" {
		res := keyResult{
			Schema:    key.Schema,
			Kind:      key.Kind,
			Hash:      key.Hash,
			ShortHash: key.ShortHash(),
		}
		if opts.ShowDoc {
			res.Document = key.Document
		}
		return formatter.Success(res)
	}

	fmt.Fprintln(cmd.OutOrStdout(), key.Hash)
	if opts.ShowDoc {
		fmt.Fprintln(cmd.OutOrStdout(), key.Document)
	}
	return nil
}
