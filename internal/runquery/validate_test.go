package runquery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateNilMatchesAll(t *testing.T) {
	assert.NoError(t, Validate(nil))
}

func TestValidateTagEquals(t *testing.T) {
	assert.NoError(t, Validate(TagEquals{Key: "stele.study_key", Value: "abc"}))
	assert.NoError(t, Validate(&TagEquals{Key: "k", Value: ""}), "empty values are legal")
	assert.Error(t, Validate(TagEquals{Key: "", Value: "v"}), "empty keys are not")
}

func TestValidateAttrEquals(t *testing.T) {
	assert.NoError(t, Validate(AttrEquals{Attr: AttrStatus, Value: "FINISHED"}))
	assert.NoError(t, Validate(AttrEquals{Attr: AttrRunID, Value: "r1"}))
	assert.NoError(t, Validate(AttrEquals{Attr: AttrExperimentID, Value: "e1"}))
	assert.Error(t, Validate(AttrEquals{Attr: "start_time", Value: "x"}), "unknown attribute")
}

func TestValidateAnd(t *testing.T) {
	assert.NoError(t, Validate(And{}), "empty And is vacuously true")
	assert.NoError(t, Validate(And{Filters: []Filter{
		TagEquals{Key: "a", Value: "1"},
		And{Filters: []Filter{AttrEquals{Attr: AttrStatus, Value: "RUNNING"}}},
	}}))

	err := Validate(And{Filters: []Filter{
		TagEquals{Key: "a", Value: "1"},
		TagEquals{Key: "", Value: "2"},
	}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "and[1]", "error names the failing element")

	assert.Error(t, Validate(And{Filters: []Filter{nil}}))
}
