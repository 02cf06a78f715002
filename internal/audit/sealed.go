package audit

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sync"

	"parley/internal/domain"
)

// LogKeyBytes is the AES-256 key length for sealing audit entries at rest.
const LogKeyBytes = 32

const sealedNonceBytes = 12

// ErrBadLogKey is returned for a log key of the wrong length.
var ErrBadLogKey = fmt.Errorf("log key must be %d bytes", LogKeyBytes)

// SealedEntry is the exported form of one sealed record: an AES-GCM nonce
// and the ciphertext of the JSON-serialized AuditRecord. Without the log
// key the trail reveals nothing beyond entry count and approximate size.
type SealedEntry struct {
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// SealedSink encrypts every record under a relay-held log key before
// retaining it. The plaintext record never rests in the sink.
type SealedSink struct {
	aead cipher.AEAD

	mu      sync.Mutex
	entries []SealedEntry
}

// NewSealedSink builds a sealed sink from a 32-byte log key.
func NewSealedSink(key []byte) (*SealedSink, error) {
	aead, err := newLogAEAD(key)
	if err != nil {
		return nil, err
	}
	return &SealedSink{aead: aead}, nil
}

// NewLogKey draws a fresh random log key. A key generated this way lives
// only as long as the process, so sealed entries become unreadable after a
// restart unless the operator configured a persistent key.
func NewLogKey() ([]byte, error) {
	key := make([]byte, LogKeyBytes)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// Append seals one record.
func (s *SealedSink) Append(rec domain.AuditRecord) error {
	plaintext, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	nonce := make([]byte, sealedNonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	entry := SealedEntry{
		Nonce:      nonce,
		Ciphertext: s.aead.Seal(nil, nonce, plaintext, nil),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// Entries exports the sealed blobs in append order.
func (s *SealedSink) Entries() ([]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]json.RawMessage, 0, len(s.entries))
	for _, entry := range s.entries {
		raw, err := json.Marshal(entry)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

// Close is a no-op.
func (s *SealedSink) Close() error { return nil }

// Unseal decrypts exported sealed entries with the log key. This is the
// offline reader for operators holding the key; the relay itself never
// calls it.
func Unseal(key []byte, entries []json.RawMessage) ([]domain.AuditRecord, error) {
	aead, err := newLogAEAD(key)
	if err != nil {
		return nil, err
	}

	out := make([]domain.AuditRecord, 0, len(entries))
	for i, raw := range entries {
		var entry SealedEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if len(entry.Nonce) != sealedNonceBytes {
			return nil, fmt.Errorf("entry %d: bad nonce", i)
		}
		plaintext, err := aead.Open(nil, entry.Nonce, entry.Ciphertext, nil)
		if err != nil {
			return nil, fmt.Errorf("entry %d: unseal failed", i)
		}
		var rec domain.AuditRecord
		if err := json.Unmarshal(plaintext, &rec); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func newLogAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != LogKeyBytes {
		return nil, ErrBadLogKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

var _ domain.AuditSink = (*SealedSink)(nil)
