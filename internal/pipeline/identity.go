package pipeline

import (
	"fmt"

	"github.com/stele-ml/stele/internal/config"
	"github.com/stele-ml/stele/internal/identity"
	"github.com/stele-ml/stele/internal/naming"
)

// StageIdentity is the full identity block computed for a stage:
// content fingerprints, the study and family keys, and the trial key
// when hyperparameters are in play.
type StageIdentity struct {
	DataFingerprint string
	EvalFingerprint string
	StudyKey        identity.Key
	FamilyKey       identity.Key

	// TrialKey is zero unless trial hyperparameters were supplied.
	TrialKey identity.Key
}

// ComputeIdentity derives the identity block for a snapshot. hparams is
// nil for every stage except trials.
//
// Fingerprints are computed here, once, and then passed into the key
// builders, so the declared identity and any later re-derivation go
// through the same two values and cannot drift.
func ComputeIdentity(snap *config.Snapshot, hparams map[string]any) (StageIdentity, error) {
	dataFP, err := identity.DataFingerprint(snap.Dataset)
	if err != nil {
		return StageIdentity{}, fmt.Errorf("pipeline: %w", err)
	}
	evalFP, err := identity.EvalFingerprint(snap.Evaluation)
	if err != nil {
		return StageIdentity{}, fmt.Errorf("pipeline: %w", err)
	}
	study, err := identity.StudyKeyV2(snap.Dataset, snap.HPO, snap.Train, snap.Model, dataFP, evalFP)
	if err != nil {
		return StageIdentity{}, fmt.Errorf("pipeline: %w", err)
	}
	family, err := identity.StudyFamilyKeyV2(snap.Dataset, snap.HPO, snap.Train, dataFP, evalFP)
	if err != nil {
		return StageIdentity{}, fmt.Errorf("pipeline: %w", err)
	}

	out := StageIdentity{
		DataFingerprint: dataFP,
		EvalFingerprint: evalFP,
		StudyKey:        study,
		FamilyKey:       family,
	}
	if hparams != nil {
		trial, err := identity.TrialKey(study.Hash, hparams)
		if err != nil {
			return StageIdentity{}, fmt.Errorf("pipeline: %w", err)
		}
		out.TrialKey = trial
	}
	return out, nil
}

// NamingContext assembles the naming context for a stage from its
// request and computed identity.
func NamingContext(req StageRequest, id StageIdentity) naming.Context {
	return naming.Context{
		Project:            req.Snapshot.Project,
		Environment:        req.Snapshot.Environment,
		ProcessType:        req.ProcessType,
		Model:              req.Snapshot.Model,
		SchemaVersion:      identity.SchemaV2,
		StudyKeyHash:       id.StudyKey.Hash,
		StudyFamilyKeyHash: id.FamilyKey.Hash,
		TrialKeyHash:       id.TrialKey.Hash,
		DataFingerprint:    id.DataFingerprint,
		EvalFingerprint:    id.EvalFingerprint,
		TrialID:            req.TrialID,
		TrialNumber:        req.TrialNumber,
		Fold:               req.Fold,
	}
}
