// Package checksum computes the content digests used to detect external
// writes to the annotation blob, to version annotations for If-Match, and
// to skip unchanged documents when indexing.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SumJSON returns the digest of v's JSON encoding. Values that cannot be
// encoded hash to the digest of nothing.
func SumJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return Sum(nil)
	}
	return Sum(data)
}

// ETag formats a digest as a strong HTTP entity tag.
func ETag(sum string) string {
	return `"` + sum + `"`
}
