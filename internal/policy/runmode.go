// Package policy holds the run-mode decision logic: given a declarative
// idempotency policy and facts about an existing run, decide whether the
// run is reused, resumed, or recreated. Every pipeline stage routes its
// reuse decision through this package so the semantics cannot drift
// between stages.
package policy

import "fmt"

// RunMode is the declarative idempotency policy for a pipeline stage.
type RunMode string

const (
	// RunModeForceNew always starts fresh, ignoring any existing run.
	// Use when a previous run is known to be poisoned (bad data revision,
	// broken checkpoint) and must not be picked up.
	RunModeForceNew RunMode = "force_new"

	// RunModeReuseIfExists reuses an existing run when one exists.
	// Whether "exists" is enough or the run must also be complete depends
	// on the process type (see ProcessType.RequiresCompletion). This is
	// the default mode.
	RunModeReuseIfExists RunMode = "reuse_if_exists"

	// RunModeResumeIfIncomplete picks up an existing run only to continue
	// it: it reuses an incomplete run and starts fresh when the existing
	// run already finished.
	RunModeResumeIfIncomplete RunMode = "resume_if_incomplete"
)

// ValidateRunMode checks that mode is a known run mode.
// Empty is valid and defaults to reuse_if_exists.
func ValidateRunMode(mode string) error {
	switch RunMode(mode) {
	case RunModeForceNew, RunModeReuseIfExists, RunModeResumeIfIncomplete:
		return nil
	case "":
		return nil
	default:
		return fmt.Errorf("invalid run mode %q: must be force_new, reuse_if_exists, or resume_if_incomplete", mode)
	}
}

// NormalizeRunMode defaults an unset mode to reuse_if_exists.
func NormalizeRunMode(mode RunMode) RunMode {
	if mode == "" {
		return RunModeReuseIfExists
	}
	return mode
}

// ProcessType identifies a pipeline stage for naming and reuse decisions.
type ProcessType string

const (
	ProcessHPOSweep      ProcessType = "hpo_sweep"
	ProcessHPOTrial      ProcessType = "hpo_trial"
	ProcessRefit         ProcessType = "refit"
	ProcessSelection     ProcessType = "selection"
	ProcessBenchmarking  ProcessType = "benchmarking"
	ProcessFinalTraining ProcessType = "final_training"
	ProcessConversion    ProcessType = "conversion"
)

// ValidateProcessType checks that pt is a known process type.
func ValidateProcessType(pt string) error {
	switch ProcessType(pt) {
	case ProcessHPOSweep, ProcessHPOTrial, ProcessRefit, ProcessSelection,
		ProcessBenchmarking, ProcessFinalTraining, ProcessConversion:
		return nil
	default:
		return fmt.Errorf("invalid process type %q", pt)
	}
}

// RequiresCompletion reports whether reuse of this process type demands a
// completed run. An HPO sweep is reusable the moment its storage exists
// (more trials can always be appended), whereas a final-training, refit,
// or conversion run produces a terminal artifact — a half-written
// checkpoint must never be treated as the final model.
func (pt ProcessType) RequiresCompletion() bool {
	switch pt {
	case ProcessFinalTraining, ProcessRefit, ProcessConversion:
		return true
	default:
		return false
	}
}

// ShouldReuse decides whether an existing run satisfies the given mode.
//
//	force_new             → never reuse
//	reuse_if_exists       → reuse when the run exists; process types that
//	                        produce terminal artifacts additionally demand
//	                        completeness
//	resume_if_incomplete  → reuse only an existing, incomplete run
//
// An empty mode carries reuse_if_exists semantics.
func ShouldReuse(mode RunMode, exists, isComplete bool, pt ProcessType) bool {
	switch NormalizeRunMode(mode) {
	case RunModeForceNew:
		return false
	case RunModeResumeIfIncomplete:
		return exists && !isComplete
	default: // reuse_if_exists
		if !exists {
			return false
		}
		if pt.RequiresCompletion() {
			return isComplete
		}
		return true
	}
}

// LoadIfExists decides the library-level resume flag (load existing study
// storage / resume from checkpoint). force_new never loads; the other
// modes load exactly when checkpointing is enabled — with checkpoints
// disabled there is nothing to resume from.
func LoadIfExists(mode RunMode, checkpointEnabled bool) bool {
	if NormalizeRunMode(mode) == RunModeForceNew {
		return false
	}
	return checkpointEnabled
}
