package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeHParamsAbsorbsFloatNoise(t *testing.T) {
	// 0.1 + 0.2 accumulates representation noise below 12 significant
	// figures; both sides must normalize to the same value.
	noisy := map[string]any{"dropout": 0.1 + 0.2}
	clean := map[string]any{"dropout": 0.3}

	n1, err := NormalizeHParams(noisy)
	require.NoError(t, err)
	n2, err := NormalizeHParams(clean)
	require.NoError(t, err)

	assert.Equal(t, n2["dropout"], n1["dropout"], "representation noise must normalize away")
}

func TestNormalizeHParamsIdempotent(t *testing.T) {
	raw := map[string]any{
		"learning_rate": 3.000000000001e-05,
		"optimizer":     "  AdamW ",
		"batch_size":    32,
		"use_crf":       true,
		"schedule":      []any{"linear", 0.1 + 0.2},
	}

	once, err := NormalizeHParams(raw)
	require.NoError(t, err)
	twice, err := NormalizeHParams(once)
	require.NoError(t, err)

	assert.Equal(t, once, twice, "normalize(normalize(x)) must equal normalize(x)")
}

func TestNormalizeHParamsStrings(t *testing.T) {
	n, err := NormalizeHParams(map[string]any{"optimizer": "  AdamW "})
	require.NoError(t, err)

	assert.Equal(t, "adamw", n["optimizer"], "strings are lower-cased and trimmed")
}

func TestNormalizeHParamsPassThrough(t *testing.T) {
	n, err := NormalizeHParams(map[string]any{
		"batch_size": 32,
		"use_crf":    true,
		"steps":      int64(1000),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(32), n["batch_size"], "ints pass through (widened to int64)")
	assert.Equal(t, true, n["use_crf"], "bools pass through")
	assert.Equal(t, int64(1000), n["steps"])
}

func TestNormalizeHParamsStripsRunMetadata(t *testing.T) {
	n, err := NormalizeHParams(map[string]any{
		"learning_rate": 0.001,
		"run_id":        "abc123",
		"mlflow_run_id": "def456",
		"trial_id":      "trial-7",
		"trial_number":  7,
	})
	require.NoError(t, err)

	assert.Len(t, n, 1, "only the real hyperparameter survives")
	assert.Contains(t, n, "learning_rate")
}

func TestNormalizeHParamsRejectsUnsupportedTypes(t *testing.T) {
	type double struct{ calls int }

	_, err := NormalizeHParams(map[string]any{
		"learning_rate": 0.001,
		"tracker":       &double{},
	})
	require.Error(t, err)

	var unsupported *UnsupportedValueError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "tracker", unsupported.Key, "error names the offending key")
}

func TestNormalizeHParamsNestedCollections(t *testing.T) {
	n, err := NormalizeHParams(map[string]any{
		"layers": []any{"  Dense ", 128},
		"schedule": map[string]any{
			"kind":   "Linear",
			"warmup": 0.1 + 0.2,
		},
	})
	require.NoError(t, err)

	layers := n["layers"].([]any)
	assert.Equal(t, "dense", layers[0])
	assert.Equal(t, int64(128), layers[1])

	schedule := n["schedule"].(map[string]any)
	assert.Equal(t, "linear", schedule["kind"])
	assert.Equal(t, 0.3, schedule["warmup"])
}

func TestNormalizeHParamsOrderInsensitiveHash(t *testing.T) {
	a, err := NormalizeHParams(map[string]any{"lr": 0.001, "bs": 32, "opt": "adamw"})
	require.NoError(t, err)
	b, err := NormalizeHParams(map[string]any{"opt": "adamw", "bs": 32, "lr": 0.001})
	require.NoError(t, err)

	assert.Equal(t, MustHashJSON(a, FullHashLen), MustHashJSON(b, FullHashLen),
		"insertion order must not leak into the hash")
}

func TestNormalizeFloatIdempotent(t *testing.T) {
	floats := []float64{0.1, 0.1 + 0.2, 3e-05, 1.0 / 3.0, 12345.6789, 0, -2.5e-8}

	for _, f := range floats {
		once := NormalizeFloat(f)
		assert.Equal(t, once, NormalizeFloat(once), "NormalizeFloat must be idempotent for %v", f)
	}
}

func TestNormalizeFloatClampsAtTwelveSigFigs(t *testing.T) {
	// Differ only at the 13th significant figure.
	a := 0.1234567890123
	b := 0.1234567890124

	assert.Equal(t, NormalizeFloat(a), NormalizeFloat(b),
		"differences below 12 significant figures must vanish")

	// Differ at the 12th: still distinct.
	c := 0.123456789012
	d := 0.123456789013
	assert.NotEqual(t, NormalizeFloat(c), NormalizeFloat(d),
		"differences at 12 significant figures are preserved")
}
