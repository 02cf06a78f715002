package room

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"parley/internal/crypto"
	"parley/internal/domain"
)

// minUsernameLen is the minimum accepted username length, in runes.
const minUsernameLen = 2

var (
	// ErrUsernameTaken rejects a registration for a username already held
	// by a different live connection.
	ErrUsernameTaken = errors.New("that username is already in use")

	// ErrUsernameTooShort rejects a username below the minimum length.
	ErrUsernameTooShort = fmt.Errorf("username must be at least %d characters", minUsernameLen)

	// ErrMissingIdentity rejects a registration lacking a username or key.
	ErrMissingIdentity = errors.New("username and public key are required")

	// ErrBadPublicKey rejects a public key that is not valid base64.
	ErrBadPublicKey = errors.New("public key must be base64-encoded DER")

	// ErrSenderNotRegistered rejects a send from a connection that does not
	// own the claimed sender username.
	ErrSenderNotRegistered = errors.New("sender not registered")

	// ErrMalformedEnvelope rejects an envelope missing structural fields.
	// The relay never checks cryptographic validity, only presence.
	ErrMalformedEnvelope = errors.New("envelope missing ciphertext, iv, or wrapped keys")

	// ErrMissingEnvelopes rejects a send whose wrapped-key map does not
	// cover every current participant.
	ErrMissingEnvelopes = errors.New("missing envelopes")
)

// Coordinator admits participants into one room, keeps every client's shadow
// roster in sync, and fans sealed envelopes out to the current participant
// set. It owns the room's Store and audit sink.
//
// All mutations and broadcasts are serialized on one mutex so no client can
// observe a sender in the roster without also receiving that sender's join
// notification in the same causal batch.
type Coordinator struct {
	log  logrus.FieldLogger
	sink domain.AuditSink

	mu     sync.Mutex
	roster *Store
	conns  map[string]Conn // every attached socket, registered or not
}

// NewCoordinator builds a coordinator around an owned roster store and audit
// sink.
func NewCoordinator(roster *Store, sink domain.AuditSink, log logrus.FieldLogger) *Coordinator {
	return &Coordinator{
		log:    log,
		sink:   sink,
		roster: roster,
		conns:  make(map[string]Conn),
	}
}

// Attach adds a freshly accepted socket. Unregistered sockets receive room
// broadcasts (they just cannot be addressed in wrapped-key maps), matching
// the rule that fan-out reaches every current socket.
func (c *Coordinator) Attach(conn Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[conn.ID()] = conn
}

// Detach handles transport loss: the implicit leave plus forgetting the
// socket. The username frees promptly and is immediately reusable.
func (c *Coordinator) Detach(connID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	username, ok := c.removeByConnLocked(connID)
	delete(c.conns, connID)
	return username, ok
}

// Register validates a join request and, on success, admits the connection:
// a personal register_success acknowledgment with the roster snapshot, a
// user_joined notification to everyone else (never duplicated to self), and
// a full participants push to the whole room.
//
// A connection that is already registered under another name is renamed:
// the old identity leaves first, with the usual notifications. Rejections
// change no state.
func (c *Coordinator) Register(conn Conn, req domain.RegisterRequest) (domain.Participant, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.PublicKey == "" {
		return domain.Participant{}, ErrMissingIdentity
	}
	if utf8.RuneCountInString(username) < minUsernameLen {
		return domain.Participant{}, ErrUsernameTooShort
	}
	der, err := base64.StdEncoding.DecodeString(req.PublicKey)
	if err != nil || len(der) == 0 {
		return domain.Participant{}, ErrBadPublicKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if held, ok := c.roster.Get(username); ok && held.Conn.ID() != conn.ID() {
		return domain.Participant{}, ErrUsernameTaken
	}

	// A re-register on the same connection releases its previous identity
	// before the new one is announced.
	c.removeByConnLocked(conn.ID())

	member := &Member{
		Participant: domain.Participant{
			Username:    username,
			Fingerprint: crypto.Fingerprint(der),
			PublicKey:   req.PublicKey,
		},
		Conn:     conn,
		JoinedAt: time.Now(),
	}
	c.roster.Add(member)

	c.send(conn, domain.EventRegisterSuccess, domain.RegisterSuccess{
		Username:     username,
		Fingerprint:  member.Fingerprint,
		Participants: c.roster.Snapshot(),
	})
	c.broadcastLocked(domain.EventUserJoined, domain.Presence{
		Username:    username,
		Fingerprint: member.Fingerprint,
	}, conn.ID())
	c.broadcastRosterLocked()

	c.log.WithFields(logrus.Fields{
		"username":    username,
		"fingerprint": member.Fingerprint,
	}).Info("participant joined")
	return member.Participant, nil
}

// Leave handles an explicit leave_chat: the connection's identity is
// released and announced, but the socket stays attached. Idempotent, so a
// username frees exactly once.
func (c *Coordinator) Leave(connID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeByConnLocked(connID)
}

// Relay fans a sealed envelope out to every current participant, the sender
// included, after structural validation and audit capture. The content is
// never inspected beyond field presence.
func (c *Coordinator) Relay(connID string, env domain.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sender, ok := c.roster.UsernameFor(connID)
	if !ok || sender != env.From {
		return ErrSenderNotRegistered
	}
	if len(env.Ciphertext) == 0 || len(env.IV) == 0 || len(env.WrappedKeys) == 0 {
		return ErrMalformedEnvelope
	}

	// Every participant in the room right now must be addressable. A stale
	// snapshot that still names someone who just left is harmless (their
	// handle is gone); one that misses someone who just joined is a
	// client-visible rejection, not a silent partial delivery.
	var missing []string
	for _, m := range c.roster.Members() {
		if _, ok := env.WrappedKeys[m.Username]; !ok {
			missing = append(missing, m.Username)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w for: %s", ErrMissingEnvelopes, strings.Join(missing, ", "))
	}

	if err := c.sink.Append(domain.AuditRecord{
		Sender:     env.From,
		Ciphertext: env.Ciphertext,
		IV:         env.IV,
		Timestamp:  env.Timestamp,
		StoredAt:   time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		// The audit trail is best-effort; delivery still happens.
		c.log.WithError(err).Warn("audit append failed")
	}

	c.broadcastLocked(domain.EventReceiveMessage, env, "")
	return nil
}

// Snapshot returns the current sorted roster, for the read-only query
// surface and for resynchronization.
func (c *Coordinator) Snapshot() []domain.Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roster.Snapshot()
}

// Lookup returns one participant's public record.
func (c *Coordinator) Lookup(username string) (domain.Participant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.roster.Get(username)
	if !ok {
		return domain.Participant{}, false
	}
	return m.Participant, true
}

// Size reports the number of active participants.
func (c *Coordinator) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roster.Len()
}

func (c *Coordinator) removeByConnLocked(connID string) (string, bool) {
	username, ok := c.roster.UsernameFor(connID)
	if !ok {
		return "", false
	}
	m, _ := c.roster.Remove(username)

	c.broadcastLocked(domain.EventUserLeft, domain.Presence{
		Username:    username,
		Fingerprint: m.Fingerprint,
	}, connID)
	c.broadcastRosterLocked()

	c.log.WithField("username", username).Info("participant left")
	return username, true
}

// broadcastLocked pushes one event to every attached socket except
// exceptConnID. Push failures are per-recipient no-ops: a dead handle is an
// implicit leave that the transport layer will report on its own.
func (c *Coordinator) broadcastLocked(event string, data any, exceptConnID string) {
	for id, conn := range c.conns {
		if id == exceptConnID {
			continue
		}
		c.send(conn, event, data)
	}
}

func (c *Coordinator) broadcastRosterLocked() {
	c.broadcastLocked(domain.EventParticipants, domain.RosterPayload{
		Participants: c.roster.Snapshot(),
	}, "")
}

func (c *Coordinator) send(conn Conn, event string, data any) {
	if err := conn.Send(event, data); err != nil {
		c.log.WithError(err).WithField("event", event).Debug("push failed")
	}
}
