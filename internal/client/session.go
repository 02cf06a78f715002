package client

import (
	"errors"
	"fmt"
	"sync"
)

// State is one step of the join lifecycle. The flow is strictly linear:
// Disconnected → Connecting → KeyGenerating → Registering → Joined → Left.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateKeyGenerating
	StateRegistering
	StateJoined
	StateLeft
)

var stateNames = map[State]string{
	StateDisconnected:  "disconnected",
	StateConnecting:    "connecting",
	StateKeyGenerating: "generating-keys",
	StateRegistering:   "registering",
	StateJoined:        "joined",
	StateLeft:          "left",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrBadTransition reports an operation attempted from the wrong state,
// e.g. sending before the join completed.
var ErrBadTransition = errors.New("operation not valid in current session state")

// machine guards the session state. Transitions name the states they are
// legal from; anything else is an ErrBadTransition.
type machine struct {
	mu    sync.Mutex
	state State
}

func (m *machine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *machine) to(next State, from ...State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range from {
		if m.state == f {
			m.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrBadTransition, m.state, next)
}

// force moves to next unconditionally, for teardown paths.
func (m *machine) force(next State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = next
}

// in reports whether the machine currently sits in any of the given states.
func (m *machine) in(states ...State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range states {
		if m.state == s {
			return true
		}
	}
	return false
}
