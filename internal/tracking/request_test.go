package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunRequestRejectsEmptyName(t *testing.T) {
	_, err := NewRunRequest("exp-1", "", map[string]string{"k": "v"})
	assert.ErrorIs(t, err, ErrEmptyRunName)
}

func TestNewRunRequestCopiesTags(t *testing.T) {
	tags := map[string]string{TagModel: "distilbert"}
	req, err := NewRunRequest("exp-1", "hpo_distilbert_abcd1234", tags)
	require.NoError(t, err)

	tags[TagModel] = "mutated"
	assert.Equal(t, "distilbert", req.Tags[TagModel], "request must not alias the caller's map")
}

func TestRunRequestValidate(t *testing.T) {
	req, err := NewRunRequest("exp-1", "named", nil)
	require.NoError(t, err)
	assert.NoError(t, req.Validate())

	var zero RunRequest
	assert.ErrorIs(t, zero.Validate(), ErrEmptyRunName, "a zero request cannot sneak past validation")

	noExp := RunRequest{Name: "named"}
	assert.Error(t, noExp.Validate())
}

func TestRunStatusPredicates(t *testing.T) {
	assert.True(t, StatusFinished.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusKilled.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.False(t, StatusScheduled.Terminal())

	assert.True(t, StatusFinished.Complete())
	assert.False(t, StatusFailed.Complete(), "failed is terminal but not complete")
	assert.False(t, StatusRunning.Complete())
}

func TestRunTagLookup(t *testing.T) {
	run := Run{Tags: map[string]string{TagStudyKey: "abc"}}

	v, ok := run.Tag(TagStudyKey)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	_, ok = run.Tag(TagTrialKey)
	assert.False(t, ok)

	var empty Run
	_, ok = empty.Tag(TagStudyKey)
	assert.False(t, ok, "nil tag map is tolerated")
}
