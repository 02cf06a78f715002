package crypto

import "crypto/subtle"

// zero best-effort overwrites key material once it is no longer needed.
func zero(b []byte) {
	if len(b) == 0 {
		return
	}
	subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
}
