package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stele-ml/stele/internal/policy"
)

func TestComputeIdentity(t *testing.T) {
	snap := testSnapshot(policy.RunModeReuseIfExists)

	id, err := ComputeIdentity(snap, nil)
	require.NoError(t, err)

	assert.Len(t, id.DataFingerprint, 64)
	assert.Len(t, id.EvalFingerprint, 64)
	assert.Len(t, id.StudyKey.Hash, 64)
	assert.Len(t, id.FamilyKey.Hash, 64)
	assert.Empty(t, id.TrialKey.Hash, "no trial key without hyperparameters")

	again, err := ComputeIdentity(testSnapshot(policy.RunModeReuseIfExists), nil)
	require.NoError(t, err)
	assert.Equal(t, id, again, "identity is a pure function of the snapshot")
}

func TestComputeIdentityModelSensitivity(t *testing.T) {
	distilbert := testSnapshot(policy.RunModeReuseIfExists)
	bert := testSnapshot(policy.RunModeReuseIfExists)
	bert.Model = "bert-base-cased"

	idA, err := ComputeIdentity(distilbert, nil)
	require.NoError(t, err)
	idB, err := ComputeIdentity(bert, nil)
	require.NoError(t, err)

	assert.NotEqual(t, idA.StudyKey.Hash, idB.StudyKey.Hash, "study key binds the model")
	assert.Equal(t, idA.FamilyKey.Hash, idB.FamilyKey.Hash, "family key groups across backbones")
	assert.Equal(t, idA.DataFingerprint, idB.DataFingerprint)
}

func TestComputeIdentityTrialKey(t *testing.T) {
	snap := testSnapshot(policy.RunModeReuseIfExists)
	hparams := map[string]any{"learning_rate": 3e-05, "batch_size": 16}

	id, err := ComputeIdentity(snap, hparams)
	require.NoError(t, err)
	assert.Len(t, id.TrialKey.Hash, 64)

	other, err := ComputeIdentity(snap, map[string]any{"learning_rate": 5e-05, "batch_size": 16})
	require.NoError(t, err)
	assert.NotEqual(t, id.TrialKey.Hash, other.TrialKey.Hash)
	assert.Equal(t, id.StudyKey.Hash, other.StudyKey.Hash, "trials share the study key")
}

func TestComputeIdentityRejectsMissingModel(t *testing.T) {
	snap := testSnapshot(policy.RunModeReuseIfExists)
	snap.Model = ""
	_, err := ComputeIdentity(snap, nil)
	require.Error(t, err)
}

func TestNamingContextCarriesIdentity(t *testing.T) {
	snap := testSnapshot(policy.RunModeReuseIfExists)
	id, err := ComputeIdentity(snap, nil)
	require.NoError(t, err)

	nctx := NamingContext(StageRequest{
		Snapshot:    snap,
		ProcessType: policy.ProcessFinalTraining,
	}, id)

	assert.Equal(t, snap.Project, nctx.Project)
	assert.Equal(t, id.StudyKey.Hash, nctx.StudyKeyHash)
	assert.Equal(t, id.FamilyKey.Hash, nctx.StudyFamilyKeyHash)

	hash, err := nctx.IdentityHash()
	require.NoError(t, err)
	assert.Equal(t, id.DataFingerprint, hash, "final training anchors to the data fingerprint")
}
