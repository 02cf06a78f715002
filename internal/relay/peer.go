package relay

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"parley/internal/domain"
)

const sendQueueSize = 64

var errPeerGone = errors.New("peer connection closed")

// peer adapts one websocket connection to the room.Conn handle. Outbound
// frames go through a buffered queue drained by writePump; a consumer that
// cannot keep up is dropped rather than allowed to stall the room.
type peer struct {
	id   string
	conn *websocket.Conn
	log  logrus.FieldLogger

	mu     sync.Mutex
	queue  chan domain.Frame
	closed bool
}

func newPeer(conn *websocket.Conn, log logrus.FieldLogger) *peer {
	id := uuid.NewString()
	return &peer{
		id:    id,
		conn:  conn,
		log:   log.WithField("conn", id),
		queue: make(chan domain.Frame, sendQueueSize),
	}
}

func (p *peer) ID() string { return p.id }

// Send enqueues one event for the peer. Delivery to a closed or saturated
// peer fails without blocking the caller; the read side notices the closed
// socket and reports the implicit leave.
func (p *peer) Send(event string, data any) error {
	frame, err := domain.NewFrame(event, data)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errPeerGone
	}
	select {
	case p.queue <- frame:
		return nil
	default:
		p.log.Warn("send queue full, dropping connection")
		p.closeLocked()
		return errPeerGone
	}
}

// shutdown stops the write side; safe to call more than once.
func (p *peer) shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
}

func (p *peer) closeLocked() {
	if p.closed {
		return
	}
	p.closed = true
	close(p.queue)
}

// writePump drains the queue onto the socket until the queue closes or a
// write fails.
func (p *peer) writePump() {
	defer p.conn.Close()
	for frame := range p.queue {
		if err := p.conn.WriteJSON(frame); err != nil {
			p.log.WithError(err).Debug("write failed")
			return
		}
	}
	_ = p.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
