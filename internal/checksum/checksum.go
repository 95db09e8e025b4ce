// Package checksum derives HTTP entity tags from response bodies.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ETag returns a strong entity tag for body: its quoted, hex-encoded
// SHA-256 digest.
func ETag(body []byte) string {
	h := sha256.Sum256(body)
	return `"` + hex.EncodeToString(h[:]) + `"`
}

// Match reports whether an If-None-Match header value matches etag. The
// header may list several tags, use weak tags, or be "*".
func Match(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
