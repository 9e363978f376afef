package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hash lengths in hex characters.
const (
	FullHashLen  = 64
	ShortHashLen = 16
)

// HashFull computes the SHA-256 hash of s as 64 lowercase hex characters.
func HashFull(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashShort computes the truncated SHA-256 hash of s: the first 16 hex
// characters of HashFull(s). Truncation is always a prefix of the full
// hash, so short and full hashes of the same input never disagree.
func HashShort(s string) string {
	return HashFull(s)[:ShortHashLen]
}

// HashJSON hashes the canonical JSON serialization of v, truncated to
// length hex characters. Lengths outside [1, 64] fall back to the full
// 64-character hash.
//
// Determinism: identical logical input produces byte-identical canonical
// JSON (sorted keys, NFC strings, no whitespace) and therefore the same
// hash across processes and platforms.
func HashJSON(v any, length int) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("HashJSON: failed to marshal: %w", err)
	}

	sum := sha256.Sum256(canonical)
	full := hex.EncodeToString(sum[:])
	if length < 1 || length > FullHashLen {
		return full, nil
	}
	return full[:length], nil
}

// MustHashJSON is like HashJSON but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustHashJSON(v any, length int) string {
	h, err := HashJSON(v, length)
	if err != nil {
		panic(err)
	}
	return h
}

// isHexString reports whether s is entirely lowercase hex digits.
func isHexString(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
