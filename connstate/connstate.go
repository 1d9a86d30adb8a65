// Package connstate implements the connection state machine (component D):
// a single linearizable state per session, exhaustive transition rules, and
// a state-change event emitted strictly before any state-dependent
// side-effect observes the new state.
//
// Adapted from session/session.go's SessionState/Transition/
// isValidTransition trio in the teacher repo, generalized from the
// teacher's five states (which model a resumable session's lifetime) to
// this spec's six (which model a single socket's connect/reconnect
// lifecycle, including an absorbing destroyed state for a torn-down
// Facade).
package connstate

import (
	"sync"
	"time"

	"github.com/risa-org/wsc/eventbus"
)

// State is the connection's current lifecycle position.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Disconnecting
	Reconnecting
	Destroyed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	case Reconnecting:
		return "reconnecting"
	case Destroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// allowed enumerates every legal transition, mirroring the teacher's
// isValidTransition map literal exactly in shape.
var allowed = map[State][]State{
	Disconnected:  {Connecting, Destroyed},
	Connecting:    {Connected, Disconnected, Destroyed},
	Connected:     {Disconnecting, Disconnected, Reconnecting, Destroyed},
	Disconnecting: {Disconnected, Destroyed},
	Reconnecting:  {Connecting, Disconnected, Destroyed},
	Destroyed:     {}, // terminal, no exits
}

// Change describes a single transition, emitted on the "state-change" event.
type Change struct {
	Old       State
	New       State
	Timestamp time.Time
}

// Machine owns the current state and emits transitions on a bus. It does
// not own the bus (ownership rule: the Facade owns the bus; Machine holds
// only a reference), matching the teacher's convention that subsystems
// never hold each other, only what they need to do their job.
type Machine struct {
	mu    sync.Mutex
	state State
	bus   *eventbus.Bus
}

// New creates a Machine starting in Disconnected, publishing transitions
// on bus.
func New(bus *eventbus.Bus) *Machine {
	return &Machine{state: Disconnected, bus: bus}
}

// State returns the current state. Safe for concurrent use; the returned
// value is a read-only snapshot per the ownership rule in spec section 5
// ("the connection state enum ... read-only to others").
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition attempts to move to next. Returns false if the transition is
// not legal from the current state, in which case no event is emitted and
// state is unchanged.
func (m *Machine) Transition(next State) bool {
	m.mu.Lock()
	if !isAllowed(m.state, next) {
		m.mu.Unlock()
		return false
	}
	old := m.state
	m.state = next
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Emit("state-change", Change{Old: old, New: next, Timestamp: time.Now()})
	}
	return true
}

func isAllowed(from, to State) bool {
	for _, valid := range allowed[from] {
		if to == valid {
			return true
		}
	}
	return false
}
