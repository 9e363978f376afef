package identity

import (
	"errors"
	"fmt"
	"log/slog"
)

// Key document schema versions. Hashes from different schema versions are
// never comparable; callers must not mix them when resolving identity.
const (
	SchemaV1 = "v1"
	SchemaV2 = "v2"
)

// Key kinds.
const (
	KindStudy       = "study"
	KindStudyFamily = "study_family"
	KindTrial       = "trial"
)

// Objective directions. Direction affects which run is "best"; it is part
// of v2 study identity, never inferred at comparison time.
const (
	DirectionMaximize = "maximize"
	DirectionMinimize = "minimize"
)

var (
	// ErrInvalidStudyKeyHash means a value that is not a full content hash
	// was passed where a study key hash is required. This guards against
	// placeholder or stub values silently corrupting trial grouping.
	ErrInvalidStudyKeyHash = errors.New("study key hash is not a 64-char hex hash")

	// ErrInvalidFingerprint means a data or evaluation fingerprint argument
	// is not a full content hash.
	ErrInvalidFingerprint = errors.New("fingerprint is not a 64-char hex hash")

	// ErrMissingModel means a study key was requested without a model name.
	// Model-free grouping is what StudyFamilyKeyV2 is for.
	ErrMissingModel = errors.New("study key requires a model name")
)

// Key is a built identity key: the canonical JSON document that defines
// the identity, and its content hash. Documents are never persisted; only
// hashes travel (tags, index entries, run names).
type Key struct {
	Schema   string // SchemaV1 or SchemaV2; empty for trial keys (inherited from the study)
	Kind     string // KindStudy, KindStudyFamily, or KindTrial
	Document string // canonical JSON
	Hash     string // 64-char hex
}

// ShortHash returns the 16-char prefix of the key hash, the form used in
// human-readable run names.
func (k Key) ShortHash() string {
	if len(k.Hash) < ShortHashLen {
		return k.Hash
	}
	return k.Hash[:ShortHashLen]
}

// StudyKeyV1 builds the legacy v1 study key: dataset config as given
// (including its on-disk path), search space, objective, model, and the
// benchmark config when present.
//
// v1 is kept only so pre-migration studies remain discoverable. Its known
// flaw is path sensitivity: the same data at a different mount point
// produces a different identity. New callers use StudyKeyV2.
func StudyKeyV1(dataset, hpo map[string]any, model string, benchmark map[string]any) (Key, error) {
	if model == "" {
		return Key{}, fmt.Errorf("StudyKeyV1: %w", ErrMissingModel)
	}

	doc := map[string]any{
		"schema_version": SchemaV1,
		"data":           dataset,
		"hpo": map[string]any{
			"search_space": searchSpaceSection(hpo),
			"objective":    hpo["objective"],
		},
		"model": normalizeString(model),
	}
	if len(benchmark) > 0 {
		doc["benchmark"] = benchmark
	}

	return buildKey(SchemaV1, KindStudy, doc)
}

// StudyKeyV2 builds the v2 study key. Compared to v1 it binds the
// objective direction explicitly, the training budget, the seed policy,
// and content fingerprints for data and evaluation config instead of the
// raw blobs; it drops filesystem paths and the benchmark section
// (benchmark ranking is downstream and must not fragment training
// identity).
//
// dataFingerprint and evalFingerprint are explicit arguments, not derived
// here: the caller that declared the identity and the caller that
// re-derives it must both go through DataFingerprint/EvalFingerprint
// against the same config, so the two moments cannot drift apart.
func StudyKeyV2(dataset, hpo, train map[string]any, model, dataFingerprint, evalFingerprint string) (Key, error) {
	if model == "" {
		return Key{}, fmt.Errorf("StudyKeyV2: %w", ErrMissingModel)
	}
	doc, err := studyDocV2(dataset, hpo, train, dataFingerprint, evalFingerprint)
	if err != nil {
		return Key{}, fmt.Errorf("StudyKeyV2: %w", err)
	}
	doc["model"] = normalizeString(model)

	return buildKey(SchemaV2, KindStudy, doc)
}

// StudyFamilyKeyV2 builds the v2 study-family key: identical to the study
// key except the model field is omitted, grouping studies across
// backbones (distilbert vs bert on the same data, space, and budget share
// a family).
func StudyFamilyKeyV2(dataset, hpo, train map[string]any, dataFingerprint, evalFingerprint string) (Key, error) {
	doc, err := studyDocV2(dataset, hpo, train, dataFingerprint, evalFingerprint)
	if err != nil {
		return Key{}, fmt.Errorf("StudyFamilyKeyV2: %w", err)
	}

	return buildKey(SchemaV2, KindStudyFamily, doc)
}

// TrialKey builds the identity key for one trial: the study key hash plus
// the normalized hyperparameters. Run-metadata entries (run id, trial
// number) are stripped by normalization — they say where a trial ran, not
// what it ran.
//
// studyKeyHash must be a full 64-char hex hash. Anything else returns
// ErrInvalidStudyKeyHash: a placeholder leaking in here would silently
// group unrelated trials, so it fails loudly instead.
func TrialKey(studyKeyHash string, hparams map[string]any) (Key, error) {
	if len(studyKeyHash) != FullHashLen || !isHexString(studyKeyHash) {
		return Key{}, fmt.Errorf("TrialKey: %w (got %q)", ErrInvalidStudyKeyHash, truncateForError(studyKeyHash))
	}

	normalized, err := NormalizeHParams(hparams)
	if err != nil {
		return Key{}, fmt.Errorf("TrialKey: %w", err)
	}

	doc := map[string]any{
		"study_key_hash": studyKeyHash,
		"hparams":        normalized,
	}

	return buildKey("", KindTrial, doc)
}

// studyDocV2 assembles the v2 document shared by study and family keys
// (everything except the model field).
func studyDocV2(dataset, hpo, train map[string]any, dataFingerprint, evalFingerprint string) (map[string]any, error) {
	if len(dataFingerprint) != FullHashLen || !isHexString(dataFingerprint) {
		return nil, fmt.Errorf("data %w (got %q)", ErrInvalidFingerprint, truncateForError(dataFingerprint))
	}
	if len(evalFingerprint) != FullHashLen || !isHexString(evalFingerprint) {
		return nil, fmt.Errorf("eval %w (got %q)", ErrInvalidFingerprint, truncateForError(evalFingerprint))
	}

	doc := map[string]any{
		"schema_version": SchemaV2,
		"data":           dataSectionV2(dataset, dataFingerprint),
		"evaluation":     map[string]any{"fingerprint": evalFingerprint},
		"hpo": map[string]any{
			"search_space": searchSpaceSection(hpo),
			"objective":    objectiveSectionV2(hpo),
		},
		"training": trainingSectionV2(train),
	}
	return doc, nil
}

func buildKey(schema, kind string, doc map[string]any) (Key, error) {
	canonical, err := MarshalCanonical(doc)
	if err != nil {
		return Key{}, fmt.Errorf("marshal %s key: %w", kind, err)
	}
	return Key{
		Schema:   schema,
		Kind:     kind,
		Document: string(canonical),
		Hash:     HashFull(string(canonical)),
	}, nil
}

// dataSectionV2 carries the stable dataset coordinates (name, version)
// plus the content fingerprint. Paths and storage hints never enter v2
// identity.
func dataSectionV2(dataset map[string]any, fingerprint string) map[string]any {
	section := map[string]any{"fingerprint": fingerprint}
	if name, ok := dataset["name"].(string); ok && name != "" {
		section["name"] = normalizeString(name)
	}
	if version, ok := dataset["version"]; ok {
		if s, isStr := version.(string); isStr {
			section["version"] = normalizeString(s)
		} else {
			section["version"] = version
		}
	}
	return section
}

// searchSpaceSection extracts the search space from an HPO config: the
// explicit search_space block when present, otherwise the config minus
// its objective-related keys.
func searchSpaceSection(hpo map[string]any) any {
	if ss, ok := hpo["search_space"]; ok {
		return ss
	}
	rest := make(map[string]any)
	for k, v := range hpo {
		switch k {
		case "objective", "direction", "goal", "metric":
			continue
		}
		rest[k] = v
	}
	return rest
}

// objectiveSectionV2 projects the objective down to its two semantic
// fields, metric and direction. Other objective keys (timeouts, display
// names) do not change what a study optimizes and are excluded to avoid
// spurious identity fragmentation.
func objectiveSectionV2(hpo map[string]any) map[string]any {
	objective, _ := hpo["objective"].(map[string]any)

	metric := ""
	if m, ok := objective["metric"].(string); ok {
		metric = normalizeString(m)
	} else if m, ok := hpo["metric"].(string); ok {
		// Flat layout tolerance: objective fields at the top level.
		metric = normalizeString(m)
	}

	return map[string]any{
		"metric":    metric,
		"direction": resolveDirection(objective, hpo),
	}
}

// resolveDirection returns the objective direction, migrating the legacy
// "goal" key with a deprecation warning. Direction decides min-vs-max
// comparison, so a legacy key is migrated loudly, never dropped. Absent
// entirely, the direction defaults to maximize (the convention for the
// F1-style metrics this pipeline optimizes).
func resolveDirection(objective, hpo map[string]any) string {
	for _, src := range []map[string]any{objective, hpo} {
		if src == nil {
			continue
		}
		if d, ok := src["direction"].(string); ok && d != "" {
			return normalizeString(d)
		}
	}
	for _, src := range []map[string]any{objective, hpo} {
		if src == nil {
			continue
		}
		if g, ok := src["goal"].(string); ok && g != "" {
			slog.Warn("objective key \"goal\" is deprecated, migrating to \"direction\"",
				"goal", g,
			)
			return normalizeString(g)
		}
	}
	return DirectionMaximize
}

// trainingSectionV2 projects the training config down to its
// identity-bearing parts: the budget (how long a study may train) and the
// seed policy. Execution details (device, dataloader workers, logging
// cadence) are excluded.
func trainingSectionV2(train map[string]any) map[string]any {
	section := make(map[string]any)

	if budget, ok := train["budget"].(map[string]any); ok {
		section["budget"] = budget
	} else {
		budget := make(map[string]any)
		for _, k := range []string{"max_steps", "max_epochs", "patience", "early_stopping_patience"} {
			if v, ok := train[k]; ok {
				budget[k] = v
			}
		}
		if len(budget) > 0 {
			section["budget"] = budget
		}
	}

	if policy, ok := train["seed_policy"]; ok {
		section["seed_policy"] = policy
	} else if seed, ok := train["seed"]; ok {
		section["seed_policy"] = map[string]any{"seed": seed}
	}

	return section
}

func truncateForError(s string) string {
	const max = 48
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
