package tracking

// Canonical tag keys written at run creation. Discovery filters on them;
// they are the backend-authoritative identity record for a run.
const (
	// TagStudyKey holds the full study key hash (64-hex).
	TagStudyKey = "stele.study_key"

	// TagStudyFamilyKey holds the study-family key hash, grouping
	// studies across model backbones.
	TagStudyFamilyKey = "stele.study_family_key"

	// TagTrialKey holds the trial key hash.
	TagTrialKey = "stele.trial_key"

	// TagRunKey holds the identity hash the run was created under
	// (study key for sweeps, trial key for trials). This is the tag
	// the canonical discovery tier searches by.
	TagRunKey = "stele.run_key"

	// TagSchemaVersion records which key schema (v1/v2) produced the
	// identity hashes on this run. Consumers must never compare hashes
	// across schema versions; this tag is what they check.
	TagSchemaVersion = "stele.schema_version"

	// TagTrialID holds the human trial identifier (study name + trial
	// number), resolvable without knowing any hash.
	TagTrialID = "stele.trial_id"

	// TagRunName mirrors the human-readable run name for backends whose
	// native name field is not searchable.
	TagRunName = "stele.run_name"

	// TagProcessType records the pipeline stage that created the run.
	TagProcessType = "stele.process_type"

	// TagModel records the model backbone.
	TagModel = "stele.model"

	// TagDataFingerprint and TagEvalFingerprint record the content
	// fingerprints bound into the run's identity. The composite
	// discovery fallback matches on these.
	TagDataFingerprint = "stele.data_fingerprint"
	TagEvalFingerprint = "stele.eval_fingerprint"

	// TagInterrupted marks a run whose process observed an interruption
	// (preemption, user abort). Trial lookup skips interrupted runs.
	TagInterrupted = "stele.interrupted"
)
