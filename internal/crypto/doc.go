// Package crypto implements the client-side key material and the hybrid
// envelope codec.
//
// Identity is an RSA-2048 key pair generated fresh per join; the private key
// never leaves the process. Envelopes are sealed with AES-256-GCM under a
// one-shot symmetric key, which is then wrapped with RSA-OAEP (SHA-256) once
// per recipient. Fingerprints are SHA-256 digests of the exported public key,
// rendered for eyeball comparison only.
package crypto
