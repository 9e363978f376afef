package naming

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stele-ml/stele/internal/policy"
)

var (
	testStudyHash = strings.Repeat("ab", 32)
	testTrialHash = strings.Repeat("cd", 32)
	testDataFP    = strings.Repeat("12", 32)
	testEvalFP    = strings.Repeat("ef", 32)
)

func intp(n int) *int { return &n }

func TestRunNameTemplates(t *testing.T) {
	cases := []struct {
		label string
		ctx   Context
	}{
		{"hpo_sweep", Context{
			ProcessType: policy.ProcessHPOSweep, Model: "distilbert",
			StudyKeyHash: testStudyHash}},
		{"hpo_trial", Context{
			ProcessType: policy.ProcessHPOTrial, Model: "distilbert",
			TrialKeyHash: testTrialHash, TrialNumber: intp(7)}},
		{"hpo_trial_unnumbered", Context{
			ProcessType: policy.ProcessHPOTrial, Model: "distilbert",
			TrialKeyHash: testTrialHash}},
		{"refit", Context{
			ProcessType: policy.ProcessRefit, Model: "distilbert",
			StudyKeyHash: testStudyHash}},
		{"selection", Context{
			ProcessType: policy.ProcessSelection, Model: "distilbert",
			StudyKeyHash: testStudyHash}},
		{"benchmarking", Context{
			ProcessType: policy.ProcessBenchmarking, Model: "distilbert",
			EvalFingerprint: testEvalFP}},
		{"final_training", Context{
			ProcessType: policy.ProcessFinalTraining, Model: "distilbert",
			DataFingerprint: testDataFP}},
		{"final_training_fold", Context{
			ProcessType: policy.ProcessFinalTraining, Model: "distilbert",
			DataFingerprint: testDataFP, Fold: intp(2)}},
		{"conversion", Context{
			ProcessType: policy.ProcessConversion, Model: "distilbert",
			StudyKeyHash: testStudyHash}},
		{"hub_model_id", Context{
			ProcessType: policy.ProcessHPOSweep, Model: "dslim/bert-base-NER",
			StudyKeyHash: testStudyHash}},
		{"no_model", Context{
			ProcessType:     policy.ProcessFinalTraining,
			DataFingerprint: testDataFP}},
	}

	var b strings.Builder
	for _, tc := range cases {
		name, err := RunName(tc.ctx)
		require.NoError(t, err, tc.label)
		b.WriteString(tc.label)
		b.WriteString(": ")
		b.WriteString(name)
		b.WriteString("\n")
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"))
	g.Assert(t, "run_names", []byte(b.String()))
}

func TestRunNameDeterministic(t *testing.T) {
	ctx := Context{
		ProcessType:  policy.ProcessHPOSweep,
		Model:        "distilbert",
		StudyKeyHash: testStudyHash,
	}
	first, err := RunName(ctx)
	require.NoError(t, err)
	second, err := RunName(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRunNameDistinguishesEntities(t *testing.T) {
	a := Context{
		ProcessType:  policy.ProcessHPOSweep,
		Model:        "distilbert",
		StudyKeyHash: strings.Repeat("a1", 32),
	}
	b := a
	b.StudyKeyHash = strings.Repeat("b2", 32)

	nameA, err := RunName(a)
	require.NoError(t, err)
	nameB, err := RunName(b)
	require.NoError(t, err)
	assert.NotEqual(t, nameA, nameB, "different identities must render different names")
}

func TestRunNameRequiresPrimaryHash(t *testing.T) {
	_, err := RunName(Context{
		ProcessType: policy.ProcessHPOTrial,
		Model:       "distilbert",
	})
	assert.Error(t, err, "trial names require the trial key hash")

	_, err = RunName(Context{
		ProcessType:  policy.ProcessHPOSweep,
		StudyKeyHash: "abc",
	})
	assert.Error(t, err, "a hash shorter than the prefix cannot anchor a name")

	_, err = RunName(Context{ProcessType: "mystery"})
	assert.Error(t, err)
}

func TestRunNameConversionFallsBackToDataFingerprint(t *testing.T) {
	name, err := RunName(Context{
		ProcessType:     policy.ProcessConversion,
		Model:           "distilbert",
		DataFingerprint: testDataFP,
	})
	require.NoError(t, err)
	assert.Equal(t, "convert-distilbert-12121212", name)
}

func TestVersionedRunName(t *testing.T) {
	ctx := Context{
		ProcessType:     policy.ProcessFinalTraining,
		Model:           "distilbert",
		DataFingerprint: testDataFP,
	}
	name, err := VersionedRunName(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "final-distilbert-12121212-v3", name)

	_, err = VersionedRunName(ctx, 0)
	assert.Error(t, err, "counter versions start at 1")
}

func TestCounterKey(t *testing.T) {
	ctx := Context{
		Project:      "proj",
		Environment:  "local",
		ProcessType:  policy.ProcessHPOSweep,
		Model:        "distilbert",
		StudyKeyHash: "abc12345" + strings.Repeat("0", 56),
	}
	key, err := CounterKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "proj:hpo:abc12345:local", key)
}

func TestCounterKeyDefaultsEnvironment(t *testing.T) {
	ctx := Context{
		Project:      "proj",
		ProcessType:  policy.ProcessHPOSweep,
		StudyKeyHash: testStudyHash,
	}
	key, err := CounterKey(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(key, ":local"), "empty environment defaults to local")
}

func TestCounterKeyRequiresProject(t *testing.T) {
	_, err := CounterKey(Context{
		ProcessType:  policy.ProcessHPOSweep,
		StudyKeyHash: testStudyHash,
	})
	assert.Error(t, err)
}

func TestAutoVersioned(t *testing.T) {
	assert.False(t, AutoVersioned(policy.ProcessHPOTrial),
		"trials are distinguished by trial number, not version")
	assert.True(t, AutoVersioned(policy.ProcessHPOSweep))
	assert.True(t, AutoVersioned(policy.ProcessFinalTraining))
	assert.True(t, AutoVersioned(policy.ProcessBenchmarking))
}
