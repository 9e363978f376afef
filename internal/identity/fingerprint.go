package identity

import (
	"fmt"
)

// contentHashKeys are dataset config fields that may already carry a
// content or manifest hash, checked in order of preference.
var contentHashKeys = []string{"content_hash", "manifest_hash", "data_hash", "fingerprint"}

// dataProjectionKeys is the reduced semantic projection hashed when no
// content hash is present: the fields that change what the data IS, not
// where it lives or how it is loaded.
var dataProjectionKeys = []string{"name", "version", "split_seed", "labels", "label_mapping", "schema"}

// evalProjectionKeys is the analogous projection for evaluation config.
var evalProjectionKeys = []string{"metric", "metrics", "split", "seed", "label_scheme"}

// DataFingerprint computes the content fingerprint for a dataset config.
//
// Preference order:
//  1. an already-present content/manifest hash field — used verbatim when
//     it is a full 64-char hex hash, re-hashed to one otherwise
//  2. the hash of a reduced semantic projection (name, version, split
//     seed, label mapping, schema)
//
// The whole raw config is never hashed: irrelevant fields (local storage
// hints, cache paths) would fragment identity across platforms even when
// the underlying data is identical.
func DataFingerprint(dataset map[string]any) (string, error) {
	if h, ok := presentContentHash(dataset); ok {
		return h, nil
	}
	return projectionHash("data", dataset, dataProjectionKeys)
}

// EvalFingerprint computes the content fingerprint for an evaluation
// config, with the same preference order as DataFingerprint.
func EvalFingerprint(eval map[string]any) (string, error) {
	if h, ok := presentContentHash(eval); ok {
		return h, nil
	}
	return projectionHash("evaluation", eval, evalProjectionKeys)
}

func presentContentHash(cfg map[string]any) (string, bool) {
	for _, key := range contentHashKeys {
		h, ok := cfg[key].(string)
		if !ok || h == "" {
			continue
		}
		if len(h) == FullHashLen && isHexString(h) {
			return h, true
		}
		// A hash in a foreign format (git sha, etag) is still
		// content-derived; normalize it to our hash space.
		return HashFull(h), true
	}
	return "", false
}

func projectionHash(kind string, cfg map[string]any, keys []string) (string, error) {
	projection := make(map[string]any)
	for _, key := range keys {
		if v, ok := cfg[key]; ok {
			projection[key] = v
		}
	}
	h, err := HashJSON(projection, FullHashLen)
	if err != nil {
		return "", fmt.Errorf("%s fingerprint: %w", kind, err)
	}
	return h, nil
}
