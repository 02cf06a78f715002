package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"parley/internal/domain"
)

const (
	keyBytes = 32
	// NonceBytes is the AES-GCM nonce length; one nonce is used exactly once.
	NonceBytes = 12
)

var (
	// ErrNotAddressed reports that an envelope carries no wrapped key for
	// the caller. Not a failure: the message simply is not ours to read.
	ErrNotAddressed = errors.New("envelope not addressed to this participant")

	// ErrDecrypt is the generic decryption failure. It deliberately carries
	// no detail about which step failed.
	ErrDecrypt = errors.New("decryption failed")

	// ErrNoRecipientKey aborts a seal when a recipient lacks an importable
	// public key. Nothing is emitted for a partially sealable message.
	ErrNoRecipientKey = errors.New("recipient has no usable public key")
)

// Seal encrypts plaintext for every recipient in the given roster snapshot.
//
// A fresh symmetric key and nonce are drawn for this call only. The key is
// wrapped once per recipient; the sender must be in the recipient map so it
// can read its own message back off the fan-out. Any recipient with a nil
// key handle fails the whole seal before anything is sent.
func Seal(plaintext []byte, sender string, recipients map[string]*rsa.PublicKey) (domain.Envelope, error) {
	if len(recipients) == 0 {
		return domain.Envelope{}, fmt.Errorf("%w: empty recipient set", ErrNoRecipientKey)
	}
	for username, pub := range recipients {
		if pub == nil {
			return domain.Envelope{}, fmt.Errorf("%w: %s", ErrNoRecipientKey, username)
		}
	}

	key := make([]byte, keyBytes)
	if _, err := rand.Read(key); err != nil {
		return domain.Envelope{}, err
	}
	defer zero(key)

	nonce := make([]byte, NonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return domain.Envelope{}, err
	}

	aead, err := newGCM(key)
	if err != nil {
		return domain.Envelope{}, err
	}
	ciphertext := aead.Seal(nil, nonce, plaintext, nil)

	wrapped := make(map[string][]byte, len(recipients))
	for username, pub := range recipients {
		wk, err := Wrap(pub, key)
		if err != nil {
			return domain.Envelope{}, fmt.Errorf("wrap key for %s: %w", username, err)
		}
		wrapped[username] = wk
	}

	return domain.Envelope{
		From:        sender,
		Ciphertext:  ciphertext,
		IV:          nonce,
		Timestamp:   time.Now().UnixMilli(),
		WrappedKeys: wrapped,
	}, nil
}

// Open decrypts an envelope for self.
//
// A missing wrapped key yields ErrNotAddressed. Everything else that goes
// wrong (unwrap failure, tampered ciphertext or nonce, truncation) yields
// ErrDecrypt; the two must stay distinguishable so logs can tell "not for
// me" from "corrupted", while end users only ever see the generic failure.
func Open(env domain.Envelope, self string, id *Identity) ([]byte, error) {
	wrapped, ok := env.WrappedKeys[self]
	if !ok {
		return nil, ErrNotAddressed
	}
	if len(env.IV) != NonceBytes {
		// GCM panics on a bad nonce length; a truncated IV must surface as
		// a plain decrypt failure instead.
		return nil, ErrDecrypt
	}

	key, err := id.Unwrap(wrapped)
	if err != nil {
		return nil, ErrDecrypt
	}
	defer zero(key)

	aead, err := newGCM(key)
	if err != nil {
		return nil, ErrDecrypt
	}
	plaintext, err := aead.Open(nil, env.IV, env.Ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
