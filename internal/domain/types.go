package domain

import (
	"encoding/json"
	"sort"
	"strings"
)

// Participant is the public identity record of one active room member.
//
// PublicKey is the base64 form of the DER (SubjectPublicKeyInfo) encoding of
// an RSA public key. Fingerprint is a pure function of PublicKey and exists
// for human comparison only; nothing cryptographic may depend on it.
type Participant struct {
	Username    string `json:"username"`
	Fingerprint string `json:"fingerprint"`
	PublicKey   string `json:"public_key"`
}

// SortParticipants orders a roster snapshot by username, case-insensitively.
// Both the relay and the client mirror present rosters in this order so the
// same room looks the same everywhere.
func SortParticipants(ps []Participant) {
	sort.Slice(ps, func(i, j int) bool {
		return strings.ToLower(ps[i].Username) < strings.ToLower(ps[j].Username)
	})
}

// Envelope is one transmitted chat message: ciphertext sealed under a fresh
// symmetric key, plus that key wrapped once per intended recipient.
//
// WrappedKeys maps username to the RSA-OAEP wrapping of the symmetric key.
// A username absent from the map cannot decrypt the message, even if it is
// currently in the roster. []byte fields travel as base64 in JSON.
type Envelope struct {
	From        string            `json:"from"`
	Ciphertext  []byte            `json:"ciphertext"`
	IV          []byte            `json:"iv"`
	Timestamp   int64             `json:"timestamp"`
	WrappedKeys map[string][]byte `json:"envelopes"`
}

// AuditRecord is what the relay retains per relayed envelope: sender and
// opaque ciphertext material, never key material and never plaintext.
type AuditRecord struct {
	Sender     string `json:"from"`
	Ciphertext []byte `json:"ciphertext"`
	IV         []byte `json:"iv"`
	Timestamp  int64  `json:"timestamp"`
	StoredAt   string `json:"stored_at"`
}

// AuditSink is an append-only record of relayed envelopes. Entries returns
// the exported form served on the audit endpoint; for a sealed sink that is
// an opaque {nonce, ciphertext} blob rather than the record itself.
type AuditSink interface {
	Append(rec AuditRecord) error
	Entries() ([]json.RawMessage, error)
	Close() error
}
