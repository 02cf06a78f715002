package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint returns the display fingerprint of exported public key bytes:
// the SHA-256 hex digest split into colon-separated byte pairs
// ("ab:4f:..."). Deterministic, one-way, informational only.
func Fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	digest := hex.EncodeToString(sum[:])

	var b strings.Builder
	b.Grow(len(digest) + len(digest)/2 - 1)
	for i := 0; i < len(digest); i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(digest[i : i+2])
	}
	return b.String()
}
