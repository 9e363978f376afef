package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashFullDeterminism(t *testing.T) {
	h1 := HashFull("resume_ner/1.0")
	h2 := HashFull("resume_ner/1.0")

	assert.Equal(t, h1, h2, "HashFull must be deterministic")
	assert.Len(t, h1, 64, "SHA-256 hex is 64 characters")
}

func TestHashShortIsPrefixOfFull(t *testing.T) {
	inputs := []string{"", "a", "resume_ner", strings.Repeat("x", 10_000), "éclair"}

	for _, s := range inputs {
		full := HashFull(s)
		short := HashShort(s)

		assert.Len(t, short, 16, "short hash is 16 characters")
		assert.Equal(t, full[:16], short, "short hash must be a prefix of the full hash for %q", s)
	}
}

func TestHashFullHexEncoding(t *testing.T) {
	h := HashFull("distilbert")

	for _, c := range h {
		valid := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
		assert.True(t, valid, "hash should only contain lowercase hex characters, got: %c", c)
	}
}

func TestHashJSONDeterminism(t *testing.T) {
	cfg := map[string]any{
		"name":    "resume_ner",
		"version": "1.0",
		"labels":  []any{"PER", "ORG", "LOC"},
	}

	h1, err := HashJSON(cfg, FullHashLen)
	require.NoError(t, err)

	h2, err := HashJSON(cfg, FullHashLen)
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "HashJSON must be deterministic across calls")
	assert.Len(t, h1, 64)
}

func TestHashJSONKeyOrdering(t *testing.T) {
	// Go maps don't guarantee iteration order; canonical serialization
	// must erase insertion order entirely.
	cfg1 := map[string]any{"zebra": 1, "alpha": 2, "mid": "m"}
	cfg2 := map[string]any{"mid": "m", "alpha": 2, "zebra": 1}

	h1 := MustHashJSON(cfg1, FullHashLen)
	h2 := MustHashJSON(cfg2, FullHashLen)

	assert.Equal(t, h1, h2, "key insertion order must not affect the hash")
}

func TestHashJSONTruncation(t *testing.T) {
	cfg := map[string]any{"model": "distilbert"}

	full := MustHashJSON(cfg, FullHashLen)
	short := MustHashJSON(cfg, 16)

	assert.Len(t, short, 16)
	assert.Equal(t, full[:16], short, "truncated hash must be a prefix of the full hash")
}

func TestHashJSONLengthFallback(t *testing.T) {
	cfg := map[string]any{"model": "distilbert"}
	full := MustHashJSON(cfg, FullHashLen)

	for _, length := range []int{0, -5, 65, 1000} {
		h := MustHashJSON(cfg, length)
		assert.Equal(t, full, h, "out-of-range length %d falls back to the full hash", length)
	}
}

func TestHashJSONDistinguishesContent(t *testing.T) {
	h1 := MustHashJSON(map[string]any{"model": "distilbert"}, FullHashLen)
	h2 := MustHashJSON(map[string]any{"model": "bert"}, FullHashLen)

	assert.NotEqual(t, h1, h2, "different content must produce different hashes")
}

func TestMustHashJSONDoesNotPanicOnValidInput(t *testing.T) {
	assert.NotPanics(t, func() {
		MustHashJSON(map[string]any{"a": 1, "b": []any{true, nil, "x"}}, 16)
	})
}
