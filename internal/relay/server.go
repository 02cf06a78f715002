package relay

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"parley/internal/domain"
	"parley/internal/room"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server exposes one room over websocket plus the read-only HTTP surface.
type Server struct {
	log  *logrus.Logger
	room *room.Coordinator
	sink domain.AuditSink

	// exportToken, when non-empty, gates GET /logs behind an X-Log-Token
	// header match.
	exportToken string
}

// NewServer wires the coordinator and audit sink behind the HTTP surface.
func NewServer(coord *room.Coordinator, sink domain.AuditSink, exportToken string, log *logrus.Logger) *Server {
	return &Server{log: log, room: coord, sink: sink, exportToken: exportToken}
}

// Routes returns the relay's HTTP router.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleSocket)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/users", s.handleRoster).Methods(http.MethodGet)
	r.HandleFunc("/logs", s.handleLogs).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	p := newPeer(conn, s.log)
	s.room.Attach(p)
	openConnections.Inc()
	s.log.WithFields(logrus.Fields{"conn": p.ID(), "remote": r.RemoteAddr}).Info("socket attached")

	go p.writePump()
	s.readLoop(p)

	// Transport loss or client close: implicit leave, slot freed promptly.
	if username, ok := s.room.Detach(p.ID()); ok {
		s.log.WithField("username", username).Info("disconnect treated as leave")
	}
	p.shutdown()
	openConnections.Dec()
	activeParticipants.Set(float64(s.room.Size()))
}

// readLoop processes inbound frames strictly in arrival order. Nothing in
// here is fatal to the relay: every error is scoped to this connection or
// one message.
func (s *Server) readLoop(p *peer) {
	for {
		_, raw, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.log.WithError(err).Debug("read failed")
			}
			return
		}

		var frame domain.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			p.log.WithError(err).Warn("dropping unparseable frame")
			continue
		}

		switch frame.Event {
		case domain.EventRegister:
			s.handleRegister(p, frame.Data)
		case domain.EventSendMessage:
			s.handleSend(p, frame.Data)
		case domain.EventRequestPublicKey:
			s.handleKeyRequest(p, frame.Data)
		case domain.EventLeaveChat:
			s.room.Leave(p.ID())
			activeParticipants.Set(float64(s.room.Size()))
		default:
			p.log.WithField("event", frame.Event).Debug("ignoring unknown event")
		}
	}
}

func (s *Server) handleRegister(p *peer, data json.RawMessage) {
	var req domain.RegisterRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.reject(p, domain.EventRegisterError, "malformed register payload")
		registerErrors.Inc()
		return
	}
	if _, err := s.room.Register(p, req); err != nil {
		s.reject(p, domain.EventRegisterError, err.Error())
		registerErrors.Inc()
		return
	}
	activeParticipants.Set(float64(s.room.Size()))
}

func (s *Server) handleSend(p *peer, data json.RawMessage) {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.reject(p, domain.EventDeliveryError, "malformed message payload")
		deliveryErrors.Inc()
		return
	}
	if err := s.room.Relay(p.ID(), env); err != nil {
		s.reject(p, domain.EventDeliveryError, err.Error())
		deliveryErrors.Inc()
		return
	}
	envelopesRelayed.Inc()
}

func (s *Server) handleKeyRequest(p *peer, data json.RawMessage) {
	var req domain.PublicKeyRequest
	if err := json.Unmarshal(data, &req); err != nil || req.Username == "" {
		_ = p.Send(domain.EventPublicKey, domain.PublicKeyPayload{})
		return
	}
	payload := domain.PublicKeyPayload{Username: &req.Username}
	if participant, ok := s.room.Lookup(req.Username); ok {
		payload.PublicKey = &participant.PublicKey
		payload.Fingerprint = &participant.Fingerprint
	}
	_ = p.Send(domain.EventPublicKey, payload)
}

// reject answers the sender only; rejections never fan out.
func (s *Server) reject(p *peer, event, message string) {
	if err := p.Send(event, domain.ErrorPayload{Message: message}); err != nil {
		p.log.WithError(err).Debug("could not deliver rejection")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleRoster(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, domain.RosterPayload{Participants: s.room.Snapshot()})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.exportToken != "" && r.Header.Get("X-Log-Token") != s.exportToken {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
		return
	}

	entries, err := s.sink.Entries()
	if err != nil {
		s.log.WithError(err).Error("audit export failed")
		http.Error(w, "audit export failed", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []json.RawMessage{}
	}
	s.writeJSON(w, map[string][]json.RawMessage{"entries": entries})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Debug("response write failed")
	}
}
