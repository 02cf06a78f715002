package relay_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"parley/internal/audit"
	"parley/internal/client"
	"parley/internal/domain"
	"parley/internal/relay"
	"parley/internal/room"
)

// testRelay is one in-process relay with its HTTP surface mounted.
type testRelay struct {
	base string
	sink domain.AuditSink
}

func startRelay(t *testing.T, exportToken string) *testRelay {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	sink := audit.NewMemorySink()
	coordinator := room.NewCoordinator(room.NewStore(), sink, log)
	server := relay.NewServer(coordinator, sink, exportToken, log)

	ts := httptest.NewServer(server.Routes())
	t.Cleanup(ts.Close)
	return &testRelay{base: ts.URL, sink: sink}
}

func joinClient(t *testing.T, r *testRelay, username string) *client.Client {
	t.Helper()
	c := client.New(r.base)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Join(ctx, username))
	t.Cleanup(func() { c.Close() })
	return c
}

// await drains session events until one of type T arrives.
func await[T client.Event](t *testing.T, c *client.Client) T {
	t.Helper()
	deadline := time.After(10 * time.Second)
	got := make(chan client.Event, 1)
	fail := make(chan error, 1)
	go func() {
		for {
			ev, err := c.Next()
			if err != nil {
				fail <- err
				return
			}
			if _, ok := ev.(T); ok {
				got <- ev
				return
			}
		}
	}()
	select {
	case ev := <-got:
		return ev.(T)
	case err := <-fail:
		t.Fatalf("awaiting event: %v", err)
	case <-deadline:
		t.Fatalf("timed out awaiting event")
	}
	panic("unreachable")
}

// rawSocket is a bare websocket speaker for frames the client API would
// not emit on its own.
type rawSocket struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialRaw(t *testing.T, r *testRelay) *rawSocket {
	t.Helper()
	url := "ws" + strings.TrimPrefix(r.base, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &rawSocket{t: t, conn: conn}
}

func (s *rawSocket) send(event string, data any) {
	s.t.Helper()
	frame, err := domain.NewFrame(event, data)
	require.NoError(s.t, err)
	require.NoError(s.t, s.conn.WriteJSON(frame))
}

// await reads frames until event arrives and decodes its payload into out.
func (s *rawSocket) await(event string, out any) {
	s.t.Helper()
	require.NoError(s.t, s.conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	for {
		var frame domain.Frame
		require.NoError(s.t, s.conn.ReadJSON(&frame))
		if frame.Event != event {
			continue
		}
		if out != nil {
			require.NoError(s.t, json.Unmarshal(frame.Data, out))
		}
		return
	}
}

func TestEndToEnd_SealedRoundTrip(t *testing.T) {
	r := startRelay(t, "")

	alice := joinClient(t, r, "alice")
	bob := joinClient(t, r, "bob")

	// Carol is connected but never registers: she sees the fan-out yet has
	// no wrapped key waiting for her. The key request round-trip pins her
	// attachment before alice sends.
	carol := dialRaw(t, r)
	carol.send(domain.EventRequestPublicKey, domain.PublicKeyRequest{Username: "alice"})
	carol.await(domain.EventPublicKey, nil)

	// Alice waits until her mirror includes bob before sealing.
	await[client.PeerJoined](t, alice)
	require.Len(t, alice.Roster(), 2)

	require.NoError(t, alice.Send([]byte("hi")))

	// Both registered participants decrypt; the sender reads her own copy.
	for _, c := range []*client.Client{alice, bob} {
		msg := await[client.Message](t, c)
		require.Equal(t, "alice", msg.From)
		require.Equal(t, "hi", string(msg.Plaintext))
	}

	// Carol received the identical opaque envelope with exactly the two
	// wrapped keys from alice's snapshot, none of them hers.
	var env domain.Envelope
	carol.await(domain.EventReceiveMessage, &env)
	require.Len(t, env.WrappedKeys, 2)
	require.Contains(t, env.WrappedKeys, "alice")
	require.Contains(t, env.WrappedKeys, "bob")
	require.NotContains(t, env.WrappedKeys, "carol")
	require.NotEmpty(t, env.Ciphertext)
}

func TestEndToEnd_TakenUsernameRejected(t *testing.T) {
	r := startRelay(t, "")
	joinClient(t, r, "alice")

	dup := client.New(r.base)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := dup.Join(ctx, "alice")
	require.ErrorIs(t, err, client.ErrRegisterRejected)
	require.Equal(t, client.StateDisconnected, dup.State())
}

func TestEndToEnd_LeaveFreesUsername(t *testing.T) {
	r := startRelay(t, "")

	first := joinClient(t, r, "alice")
	watcher := joinClient(t, r, "watcher")
	await[client.PeerJoined](t, first)

	require.NoError(t, first.Leave())
	left := await[client.PeerLeft](t, watcher)
	require.Equal(t, "alice", left.Username)

	// The name is immediately reusable by a clean reconnection.
	again := joinClient(t, r, "alice")
	require.Equal(t, client.StateJoined, again.State())
}

func TestEndToEnd_DeliveryErrorOnMissingEnvelopes(t *testing.T) {
	r := startRelay(t, "")
	joinClient(t, r, "alice")

	mallory := dialRaw(t, r)
	mallory.send(domain.EventRegister, domain.RegisterRequest{
		Username:  "mallory",
		PublicKey: "ZmFrZS1kZXItYnl0ZXM=",
	})
	mallory.await(domain.EventRegisterSuccess, nil)

	// An envelope that skips alice is rejected at the boundary, never
	// forwarded.
	mallory.send(domain.EventSendMessage, domain.Envelope{
		From:        "mallory",
		Ciphertext:  []byte("ct"),
		IV:          []byte("iv"),
		WrappedKeys: map[string][]byte{"mallory": []byte("wk")},
	})
	var failure domain.ErrorPayload
	mallory.await(domain.EventDeliveryError, &failure)
	require.Contains(t, failure.Message, "alice")

	entries, err := r.sink.Entries()
	require.NoError(t, err)
	require.Empty(t, entries, "rejected envelope must not be audited")
}

func TestEndToEnd_SpoofedSenderRejected(t *testing.T) {
	r := startRelay(t, "")
	joinClient(t, r, "alice")

	ghost := dialRaw(t, r)
	ghost.send(domain.EventSendMessage, domain.Envelope{
		From:        "alice",
		Ciphertext:  []byte("ct"),
		IV:          []byte("iv"),
		WrappedKeys: map[string][]byte{"alice": []byte("wk")},
	})
	var failure domain.ErrorPayload
	ghost.await(domain.EventDeliveryError, &failure)
	require.Contains(t, failure.Message, "not registered")
}

func TestHTTP_RosterAuditHealth(t *testing.T) {
	r := startRelay(t, "")
	alice := joinClient(t, r, "alice")
	require.NoError(t, alice.Send([]byte("for the record")))
	await[client.Message](t, alice)

	queries := relay.NewQueryClient(r.base, nil)
	ctx := context.Background()

	require.NoError(t, queries.Health(ctx))

	roster, err := queries.Roster(ctx)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	require.Equal(t, "alice", roster[0].Username)
	require.Equal(t, alice.Fingerprint(), roster[0].Fingerprint)

	entries, err := queries.AuditEntries(ctx, "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	var rec domain.AuditRecord
	require.NoError(t, json.Unmarshal(entries[0], &rec))
	require.Equal(t, "alice", rec.Sender)
	require.NotContains(t, string(entries[0]), "envelopes")
}

func TestHTTP_LogsExportToken(t *testing.T) {
	r := startRelay(t, "s3cret")
	queries := relay.NewQueryClient(r.base, nil)
	ctx := context.Background()

	_, err := queries.AuditEntries(ctx, "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")

	_, err = queries.AuditEntries(ctx, "s3cret")
	require.NoError(t, err)

	// Health stays open regardless of the token.
	resp, err := http.Get(r.base + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
