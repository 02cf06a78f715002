package client

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"sync"

	"parley/internal/crypto"
	"parley/internal/domain"
)

// Mirror is the client's shadow of the relay's roster plus a separate,
// lazily-populated cache of imported public-key handles keyed by username.
// The two maps are deliberately distinct: the roster is replaced wholesale
// on every participants push, while key handles are imported on first use
// and invalidated when their owner leaves or re-keys.
type Mirror struct {
	mu           sync.RWMutex
	participants map[string]domain.Participant
	keys         map[string]*rsa.PublicKey
}

// NewMirror returns an empty mirror.
func NewMirror() *Mirror {
	return &Mirror{
		participants: make(map[string]domain.Participant),
		keys:         make(map[string]*rsa.PublicKey),
	}
}

// Replace reconciles the mirror against a full roster snapshot. Cached key
// handles survive only for usernames still present with an unchanged key.
func (m *Mirror) Replace(snapshot []domain.Participant) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make(map[string]domain.Participant, len(snapshot))
	for _, p := range snapshot {
		next[p.Username] = p
	}
	for username, cachedFor := range m.participants {
		now, ok := next[username]
		if !ok || now.PublicKey != cachedFor.PublicKey {
			delete(m.keys, username)
		}
	}
	m.participants = next
}

// Remove drops one participant and its cached key handle.
func (m *Mirror) Remove(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.participants, username)
	delete(m.keys, username)
}

// Snapshot returns the mirrored roster, sorted like the relay sorts it.
func (m *Mirror) Snapshot() []domain.Participant {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Participant, 0, len(m.participants))
	for _, p := range m.participants {
		out = append(out, p)
	}
	domain.SortParticipants(out)
	return out
}

// Len reports the mirrored participant count.
func (m *Mirror) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.participants)
}

// Key returns the imported public-key handle for username, importing and
// caching it on first use.
func (m *Mirror) Key(username string) (*rsa.PublicKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keyLocked(username)
}

// RecipientKeys imports (or reuses) a handle for every mirrored
// participant. One unusable key fails the whole call, so a seal against
// this set aborts before anything is emitted.
func (m *Mirror) RecipientKeys() (map[string]*rsa.PublicKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]*rsa.PublicKey, len(m.participants))
	for username := range m.participants {
		key, err := m.keyLocked(username)
		if err != nil {
			return nil, err
		}
		out[username] = key
	}
	return out, nil
}

func (m *Mirror) keyLocked(username string) (*rsa.PublicKey, error) {
	if key, ok := m.keys[username]; ok {
		return key, nil
	}
	p, ok := m.participants[username]
	if !ok {
		return nil, fmt.Errorf("%w: %s not in roster", crypto.ErrNoRecipientKey, username)
	}
	der, err := base64.StdEncoding.DecodeString(p.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", crypto.ErrNoRecipientKey, username, err)
	}
	key, err := crypto.ImportPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", crypto.ErrNoRecipientKey, username, err)
	}
	m.keys[username] = key
	return key, nil
}
