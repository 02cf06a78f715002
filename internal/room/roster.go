package room

import (
	"time"

	"parley/internal/domain"
)

// Conn is the relay-owned handle to one participant's transport session.
// The coordinator only ever pushes events through it; delivery to a handle
// whose peer is already gone is a no-op, not an error.
type Conn interface {
	ID() string
	Send(event string, data any) error
}

// Member is one admitted participant: the public identity record plus the
// transport handle it arrived on.
type Member struct {
	domain.Participant
	Conn     Conn
	JoinedAt time.Time
}

// Store is the authoritative participant set for a single room.
//
// It is deliberately passive state with no lock of its own: the Coordinator
// owns exactly one Store and serializes every access. One Store per room.
type Store struct {
	members map[string]*Member // username -> member
	byConn  map[string]string  // conn ID -> username
}

// NewStore returns an empty roster.
func NewStore() *Store {
	return &Store{
		members: make(map[string]*Member),
		byConn:  make(map[string]string),
	}
}

// Add inserts a member, replacing nothing: callers check uniqueness first.
func (s *Store) Add(m *Member) {
	s.members[m.Username] = m
	s.byConn[m.Conn.ID()] = m.Username
}

// Remove deletes the member holding username and returns it.
func (s *Store) Remove(username string) (*Member, bool) {
	m, ok := s.members[username]
	if !ok {
		return nil, false
	}
	delete(s.members, username)
	delete(s.byConn, m.Conn.ID())
	return m, true
}

// Get returns the member holding username.
func (s *Store) Get(username string) (*Member, bool) {
	m, ok := s.members[username]
	return m, ok
}

// UsernameFor maps a connection ID back to its registered username.
func (s *Store) UsernameFor(connID string) (string, bool) {
	u, ok := s.byConn[connID]
	return u, ok
}

// Members returns all current members in no particular order.
func (s *Store) Members() []*Member {
	out := make([]*Member, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m)
	}
	return out
}

// Snapshot returns the sorted public view of the roster.
func (s *Store) Snapshot() []domain.Participant {
	out := make([]domain.Participant, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m.Participant)
	}
	domain.SortParticipants(out)
	return out
}

// Len reports the number of active participants.
func (s *Store) Len() int { return len(s.members) }
