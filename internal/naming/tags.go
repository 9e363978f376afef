package naming

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/stele-ml/stele/internal/identity"
	"github.com/stele-ml/stele/internal/tracking"
)

// MaxTagValueLen bounds tag values for tracking-backend compatibility.
const MaxTagValueLen = 250

// Tags renders the identity tag block for a run. Empty context fields
// produce no tag; every value passes through SanitizeTagValue.
//
// The run-key tag holds the full identity hash the run is anchored to
// and is what hash-based rediscovery searches for.
func Tags(ctx Context) map[string]string {
	tags := make(map[string]string)
	put := func(key, value string) {
		if value == "" {
			return
		}
		tags[key] = SanitizeTagValue(value)
	}
	put(tracking.TagProcessType, string(ctx.ProcessType))
	put(tracking.TagModel, ctx.Model)
	put(tracking.TagSchemaVersion, ctx.SchemaVersion)
	put(tracking.TagStudyKey, ctx.StudyKeyHash)
	put(tracking.TagStudyFamilyKey, ctx.StudyFamilyKeyHash)
	put(tracking.TagTrialKey, ctx.TrialKeyHash)
	put(tracking.TagDataFingerprint, ctx.DataFingerprint)
	put(tracking.TagEvalFingerprint, ctx.EvalFingerprint)
	put(tracking.TagTrialID, ctx.TrialID)
	if hash, err := ctx.primaryHash(); err == nil {
		put(tracking.TagRunKey, hash)
	}
	return tags
}

// SanitizeTagValue makes a value safe for tracking-backend tag
// constraints: NFC normalized, trimmed, control characters stripped,
// ASCII only, at most MaxTagValueLen bytes.
//
// A value that is not ASCII-representable becomes a hash of itself
// rather than a tag the backend would reject. An overlong value keeps a
// readable prefix plus a disambiguating hash tail, so two distinct long
// values never collapse to the same tag.
func SanitizeTagValue(v string) string {
	v = strings.TrimSpace(norm.NFC.String(v))
	v = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, v)
	v = strings.TrimSpace(v)
	for _, r := range v {
		if r > unicode.MaxASCII {
			return "sha256:" + identity.HashShort(v)
		}
	}
	if len(v) > MaxTagValueLen {
		keep := MaxTagValueLen - identity.ShortHashLen - 1
		return v[:keep] + "-" + identity.HashShort(v)
	}
	return v
}
