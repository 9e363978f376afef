package naming

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stele-ml/stele/internal/policy"
	"github.com/stele-ml/stele/internal/tracking"
)

func TestTagsFullContext(t *testing.T) {
	ctx := Context{
		ProcessType:     policy.ProcessHPOTrial,
		Model:           "distilbert",
		SchemaVersion:   "v2",
		StudyKeyHash:    testStudyHash,
		TrialKeyHash:    testTrialHash,
		DataFingerprint: testDataFP,
		EvalFingerprint: testEvalFP,
		TrialID:         "42",
	}
	tags := Tags(ctx)

	assert.Equal(t, "hpo_trial", tags[tracking.TagProcessType])
	assert.Equal(t, "distilbert", tags[tracking.TagModel])
	assert.Equal(t, "v2", tags[tracking.TagSchemaVersion])
	assert.Equal(t, testStudyHash, tags[tracking.TagStudyKey])
	assert.Equal(t, testTrialHash, tags[tracking.TagTrialKey])
	assert.Equal(t, testDataFP, tags[tracking.TagDataFingerprint])
	assert.Equal(t, testEvalFP, tags[tracking.TagEvalFingerprint])
	assert.Equal(t, "42", tags[tracking.TagTrialID])
	assert.Equal(t, testTrialHash, tags[tracking.TagRunKey],
		"a trial's run key is its trial key hash")
}

func TestTagsOmitsEmptyFields(t *testing.T) {
	tags := Tags(Context{
		ProcessType:  policy.ProcessHPOSweep,
		Model:        "distilbert",
		StudyKeyHash: testStudyHash,
	})

	_, ok := tags[tracking.TagTrialKey]
	assert.False(t, ok, "empty fields must not produce tags")
	_, ok = tags[tracking.TagSchemaVersion]
	assert.False(t, ok)
	assert.Equal(t, testStudyHash, tags[tracking.TagRunKey])
}

func TestTagsZeroContext(t *testing.T) {
	assert.Empty(t, Tags(Context{}))
}

func TestSanitizeTagValuePassthrough(t *testing.T) {
	assert.Equal(t, "distilbert-base", SanitizeTagValue("distilbert-base"))
	assert.Equal(t, "v2", SanitizeTagValue("  v2  "), "surrounding whitespace is trimmed")
}

func TestSanitizeTagValueStripsControlCharacters(t *testing.T) {
	assert.Equal(t, "abc", SanitizeTagValue("a\x00b\nc"))
	assert.Equal(t, "tabbed", SanitizeTagValue("\ttabbed\t"))
}

func TestSanitizeTagValueHashesNonASCII(t *testing.T) {
	got := SanitizeTagValue("résumé-ner")
	assert.True(t, strings.HasPrefix(got, "sha256:"), "non-ASCII values fall back to a hash")
	assert.Len(t, got, len("sha256:")+16)

	again := SanitizeTagValue("résumé-ner")
	assert.Equal(t, got, again, "hash fallback must be deterministic")
}

func TestSanitizeTagValueNFCBeforeHashing(t *testing.T) {
	composed := "café"
	decomposed := "café"
	assert.Equal(t, SanitizeTagValue(composed), SanitizeTagValue(decomposed),
		"equivalent unicode forms must sanitize identically")
}

func TestSanitizeTagValueBoundsLength(t *testing.T) {
	long := strings.Repeat("x", 300)
	got := SanitizeTagValue(long)
	require.Len(t, got, MaxTagValueLen)
	assert.True(t, strings.HasPrefix(got, "xxxx"), "truncation keeps a readable prefix")

	other := strings.Repeat("x", 299) + "y"
	assert.NotEqual(t, got, SanitizeTagValue(other),
		"distinct long values must not collapse to the same tag")
}
