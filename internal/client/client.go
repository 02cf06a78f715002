package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"parley/internal/crypto"
	"parley/internal/domain"
)

var (
	// ErrSessionClosed reports reads after Leave or Close.
	ErrSessionClosed = errors.New("session closed")

	// ErrRegisterRejected wraps the relay's register_error message.
	ErrRegisterRejected = errors.New("registration rejected")
)

// Client is one participant's session with the relay.
//
// Join walks the full lifecycle: connect the socket, generate a fresh
// identity, register it, and absorb the acknowledged roster snapshot. After
// that, Send seals against the mirror's current snapshot and Next delivers
// decrypted messages and roster events. Methods on a Client are safe for
// one writer goroutine plus one reader goroutine, the intended shape.
type Client struct {
	base string

	machine machine
	mirror  *Mirror

	id          *crypto.Identity
	username    string
	fingerprint string

	conn    *websocket.Conn
	writeMu sync.Mutex
}

// New builds a client for the relay at base, e.g. http://127.0.0.1:8080.
func New(base string) *Client {
	return &Client{base: base, mirror: NewMirror()}
}

// Join connects, generates this session's key pair, and registers username.
// Key-generation failure is fatal to the attempt and returned immediately;
// nothing retries. On success the mirror holds the acknowledged snapshot
// and the client is ready to send.
func (c *Client) Join(ctx context.Context, username string) error {
	if err := c.machine.to(StateConnecting, StateDisconnected); err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.socketURL(), nil)
	if err != nil {
		c.machine.force(StateDisconnected)
		return fmt.Errorf("connect relay: %w", err)
	}
	c.conn = conn

	if err := c.machine.to(StateKeyGenerating, StateConnecting); err != nil {
		return c.abortJoin(err)
	}
	id, err := crypto.NewIdentity()
	if err != nil {
		return c.abortJoin(err)
	}
	c.id = id

	if err := c.machine.to(StateRegistering, StateKeyGenerating); err != nil {
		return c.abortJoin(err)
	}
	err = c.writeFrame(domain.EventRegister, domain.RegisterRequest{
		Username:  username,
		PublicKey: base64.StdEncoding.EncodeToString(id.PublicKeyDER()),
	})
	if err != nil {
		return c.abortJoin(err)
	}

	ack, err := c.awaitRegistration(ctx)
	if err != nil {
		return c.abortJoin(err)
	}
	if ack.Fingerprint != id.Fingerprint() {
		return c.abortJoin(fmt.Errorf("relay acknowledged a different key: %s", ack.Fingerprint))
	}

	c.username = ack.Username
	c.fingerprint = ack.Fingerprint
	c.mirror.Replace(ack.Participants)
	return c.machine.to(StateJoined, StateRegistering)
}

// awaitRegistration reads frames until the relay answers the registration.
// Roster pushes that race ahead of the acknowledgment are absorbed into the
// mirror; everything else is ignored until we are in the room.
func (c *Client) awaitRegistration(ctx context.Context) (domain.RegisterSuccess, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
		defer c.conn.SetReadDeadline(time.Time{})
	}

	for {
		var frame domain.Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			return domain.RegisterSuccess{}, fmt.Errorf("await registration: %w", err)
		}
		switch frame.Event {
		case domain.EventRegisterSuccess:
			var ack domain.RegisterSuccess
			if err := json.Unmarshal(frame.Data, &ack); err != nil {
				return domain.RegisterSuccess{}, err
			}
			return ack, nil
		case domain.EventRegisterError:
			var payload domain.ErrorPayload
			_ = json.Unmarshal(frame.Data, &payload)
			return domain.RegisterSuccess{}, fmt.Errorf("%w: %s", ErrRegisterRejected, payload.Message)
		case domain.EventParticipants:
			var roster domain.RosterPayload
			if err := json.Unmarshal(frame.Data, &roster); err == nil {
				c.mirror.Replace(roster.Participants)
			}
		}
	}
}

// Send seals plaintext for the roster snapshot current at this moment,
// ourselves included, and emits it. A recipient without a usable key aborts
// the send before anything reaches the network. Acceptance is not
// confirmation of delivery: structural rejections arrive asynchronously as
// DeliveryError events.
func (c *Client) Send(plaintext []byte) error {
	if !c.machine.in(StateJoined) {
		return fmt.Errorf("%w: send requires %s, session is %s",
			ErrBadTransition, StateJoined, c.machine.current())
	}

	recipients, err := c.mirror.RecipientKeys()
	if err != nil {
		return err
	}
	env, err := crypto.Seal(plaintext, c.username, recipients)
	if err != nil {
		return err
	}
	return c.writeFrame(domain.EventSendMessage, env)
}

// RequestPublicKey asks the relay for one participant's key record; the
// answer arrives as a PeerKey event.
func (c *Client) RequestPublicKey(username string) error {
	return c.writeFrame(domain.EventRequestPublicKey, domain.PublicKeyRequest{Username: username})
}

// Next blocks for the next session event.
func (c *Client) Next() (Event, error) {
	for {
		var frame domain.Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if c.machine.in(StateLeft) {
				return nil, ErrSessionClosed
			}
			return nil, err
		}

		event, err := c.dispatch(frame)
		if err != nil {
			return nil, err
		}
		if event != nil {
			return event, nil
		}
	}
}

func (c *Client) dispatch(frame domain.Frame) (Event, error) {
	switch frame.Event {
	case domain.EventReceiveMessage:
		var env domain.Envelope
		if err := json.Unmarshal(frame.Data, &env); err != nil {
			return nil, err
		}
		plaintext, err := crypto.Open(env, c.username, c.id)
		switch {
		case errors.Is(err, crypto.ErrNotAddressed):
			return NotAddressed{From: env.From}, nil
		case err != nil:
			return DecryptFailed{From: env.From}, nil
		}
		return Message{From: env.From, Plaintext: plaintext, Timestamp: env.Timestamp}, nil

	case domain.EventParticipants:
		var roster domain.RosterPayload
		if err := json.Unmarshal(frame.Data, &roster); err != nil {
			return nil, err
		}
		c.mirror.Replace(roster.Participants)
		return RosterUpdate{Participants: roster.Participants}, nil

	case domain.EventUserJoined:
		var p domain.Presence
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return nil, err
		}
		return PeerJoined{Username: p.Username, Fingerprint: p.Fingerprint}, nil

	case domain.EventUserLeft:
		var p domain.Presence
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return nil, err
		}
		c.mirror.Remove(p.Username)
		return PeerLeft{Username: p.Username, Fingerprint: p.Fingerprint}, nil

	case domain.EventDeliveryError:
		var payload domain.ErrorPayload
		_ = json.Unmarshal(frame.Data, &payload)
		return DeliveryError{Message: payload.Message}, nil

	case domain.EventPublicKey:
		var payload domain.PublicKeyPayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return nil, err
		}
		key := PeerKey{Known: payload.PublicKey != nil}
		if payload.Username != nil {
			key.Username = *payload.Username
		}
		if payload.PublicKey != nil {
			key.PublicKey = *payload.PublicKey
			key.Fingerprint = *payload.Fingerprint
		}
		return key, nil
	}
	// Unknown events are skipped, not errors: the relay may grow vocabulary.
	return nil, nil
}

// Leave announces departure and ends the session. The socket closes; the
// relay frees the username immediately.
func (c *Client) Leave() error {
	err := c.writeFrame(domain.EventLeaveChat, nil)
	c.machine.force(StateLeft)
	if closeErr := c.conn.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Close tears the session down without the polite leave_chat; the relay
// treats the disconnect as an implicit leave.
func (c *Client) Close() error {
	c.machine.force(StateLeft)
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Username returns the identity acknowledged by the relay.
func (c *Client) Username() string { return c.username }

// Fingerprint returns the display fingerprint of this session's key.
func (c *Client) Fingerprint() string { return c.fingerprint }

// Roster returns the mirrored roster snapshot.
func (c *Client) Roster() []domain.Participant { return c.mirror.Snapshot() }

// State reports the session lifecycle state.
func (c *Client) State() State { return c.machine.current() }

func (c *Client) abortJoin(err error) error {
	_ = c.conn.Close()
	c.machine.force(StateDisconnected)
	return err
}

func (c *Client) writeFrame(event string, data any) error {
	frame, err := domain.NewFrame(event, data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(frame)
}

func (c *Client) socketURL() string {
	base := strings.TrimSuffix(c.base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}
