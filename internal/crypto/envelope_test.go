package crypto_test

import (
	"bytes"
	"crypto/rsa"
	"errors"
	"testing"

	"parley/internal/crypto"
	"parley/internal/domain"
)

// makeIdentity creates a fresh identity and its public key handle.
func makeIdentity(t *testing.T) (*crypto.Identity, *rsa.PublicKey) {
	t.Helper()
	id, err := crypto.NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity: %v", err)
	}
	pub, err := crypto.ImportPublicKey(id.PublicKeyDER())
	if err != nil {
		t.Fatalf("ImportPublicKey: %v", err)
	}
	return id, pub
}

func TestSealOpen_RoundTrip_AllRecipients(t *testing.T) {
	alice, alicePub := makeIdentity(t)
	bob, bobPub := makeIdentity(t)

	plaintext := []byte("hi")
	env, err := crypto.Seal(plaintext, "alice", map[string]*rsa.PublicKey{
		"alice": alicePub,
		"bob":   bobPub,
	})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if len(env.WrappedKeys) != 2 {
		t.Fatalf("wrapped keys = %d, want 2", len(env.WrappedKeys))
	}
	if env.From != "alice" {
		t.Fatalf("sender = %q", env.From)
	}

	for name, id := range map[string]*crypto.Identity{"alice": alice, "bob": bob} {
		got, err := crypto.Open(env, name, id)
		if err != nil {
			t.Fatalf("Open as %s: %v", name, err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Fatalf("Open as %s = %q, want %q", name, got, plaintext)
		}
	}
}

func TestOpen_NotAddressed(t *testing.T) {
	_, alicePub := makeIdentity(t)
	carol, _ := makeIdentity(t)

	env, err := crypto.Seal([]byte("private"), "alice", map[string]*rsa.PublicKey{"alice": alicePub})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	_, err = crypto.Open(env, "carol", carol)
	if !errors.Is(err, crypto.ErrNotAddressed) {
		t.Fatalf("err = %v, want ErrNotAddressed", err)
	}
}

func TestOpen_TamperDetection(t *testing.T) {
	bob, bobPub := makeIdentity(t)

	env, err := crypto.Seal([]byte("attack at dawn"), "alice", map[string]*rsa.PublicKey{"bob": bobPub})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	cases := map[string]func(e *domain.Envelope){
		"ciphertext bit flip": func(e *domain.Envelope) { e.Ciphertext[0] ^= 0x01 },
		"nonce bit flip":      func(e *domain.Envelope) { e.IV[0] ^= 0x01 },
		"wrapped key flip":    func(e *domain.Envelope) { e.WrappedKeys["bob"][0] ^= 0x01 },
		"truncated cipher":    func(e *domain.Envelope) { e.Ciphertext = e.Ciphertext[:4] },
		"truncated nonce":     func(e *domain.Envelope) { e.IV = e.IV[:4] },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			bad := cloneEnvelope(env)
			mutate(&bad)
			_, err := crypto.Open(bad, "bob", bob)
			if !errors.Is(err, crypto.ErrDecrypt) {
				t.Fatalf("err = %v, want ErrDecrypt", err)
			}
		})
	}
}

func TestSeal_FreshNoncePerCall(t *testing.T) {
	_, alicePub := makeIdentity(t)
	recipients := map[string]*rsa.PublicKey{"alice": alicePub}

	a, err := crypto.Seal([]byte("same text"), "alice", recipients)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	b, err := crypto.Seal([]byte("same text"), "alice", recipients)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Equal(a.IV, b.IV) {
		t.Fatal("nonce reused across seals")
	}
	if bytes.Equal(a.Ciphertext, b.Ciphertext) {
		t.Fatal("identical ciphertext across seals")
	}
}

func TestSeal_MissingRecipientKeyAborts(t *testing.T) {
	_, alicePub := makeIdentity(t)

	_, err := crypto.Seal([]byte("x"), "alice", map[string]*rsa.PublicKey{
		"alice": alicePub,
		"bob":   nil,
	})
	if !errors.Is(err, crypto.ErrNoRecipientKey) {
		t.Fatalf("err = %v, want ErrNoRecipientKey", err)
	}

	_, err = crypto.Seal([]byte("x"), "alice", nil)
	if !errors.Is(err, crypto.ErrNoRecipientKey) {
		t.Fatalf("empty set err = %v, want ErrNoRecipientKey", err)
	}
}

func cloneEnvelope(env domain.Envelope) domain.Envelope {
	out := env
	out.Ciphertext = append([]byte(nil), env.Ciphertext...)
	out.IV = append([]byte(nil), env.IV...)
	out.WrappedKeys = make(map[string][]byte, len(env.WrappedKeys))
	for k, v := range env.WrappedKeys {
		out.WrappedKeys[k] = append([]byte(nil), v...)
	}
	return out
}
