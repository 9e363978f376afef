package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldReuseTruthTable(t *testing.T) {
	tests := []struct {
		name       string
		mode       RunMode
		exists     bool
		isComplete bool
		pt         ProcessType
		want       bool
	}{
		{"force_new ignores existing complete run", RunModeForceNew, true, true, ProcessFinalTraining, false},
		{"force_new ignores existing incomplete run", RunModeForceNew, true, false, ProcessHPOSweep, false},
		{"force_new with nothing existing", RunModeForceNew, false, false, ProcessHPOSweep, false},

		{"reuse_if_exists needs existence", RunModeReuseIfExists, false, false, ProcessHPOSweep, false},
		{"reuse_if_exists: hpo sweep reusable when present", RunModeReuseIfExists, true, false, ProcessHPOSweep, true},
		{"reuse_if_exists: selection reusable when present", RunModeReuseIfExists, true, false, ProcessSelection, true},
		{"reuse_if_exists: benchmarking reusable when present", RunModeReuseIfExists, true, false, ProcessBenchmarking, true},
		{"reuse_if_exists: final training needs completion", RunModeReuseIfExists, true, false, ProcessFinalTraining, false},
		{"reuse_if_exists: complete final training reusable", RunModeReuseIfExists, true, true, ProcessFinalTraining, true},
		{"reuse_if_exists: refit needs completion", RunModeReuseIfExists, true, false, ProcessRefit, false},
		{"reuse_if_exists: conversion needs completion", RunModeReuseIfExists, true, false, ProcessConversion, false},

		{"resume_if_incomplete resumes incomplete run", RunModeResumeIfIncomplete, true, false, ProcessFinalTraining, true},
		{"resume_if_incomplete skips complete run", RunModeResumeIfIncomplete, true, true, ProcessFinalTraining, false},
		{"resume_if_incomplete needs existence", RunModeResumeIfIncomplete, false, false, ProcessFinalTraining, false},
		{"resume_if_incomplete ignores process type", RunModeResumeIfIncomplete, true, false, ProcessHPOSweep, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShouldReuse(tt.mode, tt.exists, tt.isComplete, tt.pt)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestShouldReuseDefaultsToReuseIfExists(t *testing.T) {
	// Unset mode carries reuse_if_exists semantics.
	assert.True(t, ShouldReuse("", true, false, ProcessHPOSweep))
	assert.False(t, ShouldReuse("", true, false, ProcessFinalTraining))
	assert.False(t, ShouldReuse("", false, false, ProcessHPOSweep))
}

func TestLoadIfExists(t *testing.T) {
	assert.False(t, LoadIfExists(RunModeForceNew, true), "force_new never loads")
	assert.False(t, LoadIfExists(RunModeForceNew, false))
	assert.True(t, LoadIfExists(RunModeReuseIfExists, true))
	assert.False(t, LoadIfExists(RunModeReuseIfExists, false), "nothing to resume without checkpoints")
	assert.True(t, LoadIfExists(RunModeResumeIfIncomplete, true))
	assert.False(t, LoadIfExists(RunModeResumeIfIncomplete, false))
	assert.True(t, LoadIfExists("", true), "default mode loads when checkpointing is on")
}

func TestValidateRunMode(t *testing.T) {
	assert.NoError(t, ValidateRunMode("force_new"))
	assert.NoError(t, ValidateRunMode("reuse_if_exists"))
	assert.NoError(t, ValidateRunMode("resume_if_incomplete"))
	assert.NoError(t, ValidateRunMode(""), "empty defaults, so it validates")
	assert.Error(t, ValidateRunMode("rerun"))
	assert.Error(t, ValidateRunMode("FORCE_NEW"))
}

func TestValidateProcessType(t *testing.T) {
	for _, pt := range []string{
		"hpo_sweep", "hpo_trial", "refit", "selection",
		"benchmarking", "final_training", "conversion",
	} {
		assert.NoError(t, ValidateProcessType(pt), pt)
	}
	assert.Error(t, ValidateProcessType("training"))
	assert.Error(t, ValidateProcessType(""))
}

func TestRequiresCompletion(t *testing.T) {
	assert.True(t, ProcessFinalTraining.RequiresCompletion())
	assert.True(t, ProcessRefit.RequiresCompletion())
	assert.True(t, ProcessConversion.RequiresCompletion())
	assert.False(t, ProcessHPOSweep.RequiresCompletion())
	assert.False(t, ProcessHPOTrial.RequiresCompletion())
	assert.False(t, ProcessSelection.RequiresCompletion())
	assert.False(t, ProcessBenchmarking.RequiresCompletion())
}

func TestNormalizeRunMode(t *testing.T) {
	assert.Equal(t, RunModeReuseIfExists, NormalizeRunMode(""))
	assert.Equal(t, RunModeForceNew, NormalizeRunMode(RunModeForceNew))
}
