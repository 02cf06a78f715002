package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"
)

const rsaBits = 2048

// ErrBadPublicKey is returned when key bytes do not parse as an RSA public
// key in SubjectPublicKeyInfo form.
var ErrBadPublicKey = errors.New("not an RSA public key")

// Identity holds one session's RSA key pair. The private key is unexported
// and has no accessor; only Unwrap ever touches it.
type Identity struct {
	priv *rsa.PrivateKey
	der  []byte
}

// NewIdentity generates a fresh RSA-2048 key pair. Keys are never reused
// across sessions, so every join calls this. A generation failure is fatal
// to the join attempt and is returned, not retried.
func NewIdentity() (*Identity, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return nil, fmt.Errorf("generate identity: %w", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("export public key: %w", err)
	}
	return &Identity{priv: priv, der: der}, nil
}

// PublicKeyDER returns the DER (SubjectPublicKeyInfo) encoding of the public
// key, the form registered with the coordinator.
func (id *Identity) PublicKeyDER() []byte {
	return append([]byte(nil), id.der...)
}

// Fingerprint returns the display fingerprint of this identity's public key.
func (id *Identity) Fingerprint() string {
	return Fingerprint(id.der)
}

// Unwrap recovers a symmetric key wrapped for this identity with RSA-OAEP.
func (id *Identity) Unwrap(wrapped []byte) ([]byte, error) {
	key, err := rsa.DecryptOAEP(sha256.New(), nil, id.priv, wrapped, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return key, nil
}

// ImportPublicKey parses DER SubjectPublicKeyInfo bytes into an RSA public
// key handle usable for wrapping.
func ImportPublicKey(der []byte) (*rsa.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPublicKey, err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, ErrBadPublicKey
	}
	return rsaPub, nil
}

// Wrap encrypts a symmetric key to the given public key with RSA-OAEP
// (SHA-256, no label).
func Wrap(pub *rsa.PublicKey, key []byte) ([]byte, error) {
	return rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
}
