// Package transport defines the boundary between the runtime's core and a
// concrete socket implementation, adapted from the teacher's
// transport/adapter.go. The teacher's Adapter moved sequence-numbered
// Message values over an already-reliable, already-dialed net.Conn; this
// Adapter instead abstracts an unreliable, not-yet-open wire (a real
// WebSocket that might never open) and reports its lifecycle as a stream
// of Events rather than a single Disconnected() channel, since "failed
// to ever open" is now a case the contract has to represent.
package transport

import (
	"context"
	"errors"

	"github.com/risa-org/wsc/errs"
)

// ErrNotOpen is wrapped into an errs.KindState error by Send/SendBinary
// when the transport is not open, the same "named error, not a raw
// string" idiom as the teacher's ErrTransportClosed.
var ErrNotOpen = errors.New("transport is not open")

// State reports what an Adapter is currently doing.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Kind tags an Event's variant.
type Kind int

const (
	KindOpen Kind = iota
	KindClose
	KindError
	KindMessage
)

// Event is the tagged union an Adapter emits on its Events() channel.
type Event struct {
	Kind     Kind
	Code     int
	Reason   string
	WasClean bool
	Err      error
	Data     []byte
}

// Frame is what a caller passes to Send. Data is JSON-serialized unless
// it is already a string, per the "text frames are JSON-serialized
// unless already strings" contract.
type Frame struct {
	Data any
}

// Adapter is the contract every transport variant satisfies. The core
// only ever talks to this interface — it never imports a concrete
// websocket/socketio/tcp package directly, the same inversion the
// teacher's transport.Adapter established.
type Adapter interface {
	// Connect opens the underlying socket. It returns once the socket is
	// open or fails with an errs.KindConnection error (including on
	// timeout, if ctx carries a deadline). A close received while still
	// connecting is reported as a connect failure, not a normal close.
	Connect(ctx context.Context) error

	// Disconnect closes the socket with the given close code and reason.
	// Safe to call multiple times — subsequent calls are no-ops.
	Disconnect(code int, reason string) error

	// Send delivers a frame. Returns an errs.KindState error wrapping
	// ErrNotOpen if the transport is not open.
	Send(frame Frame) error

	// SendBinary delivers raw bytes unchanged, bypassing JSON framing.
	SendBinary(b []byte) error

	// State reports the transport's current lifecycle state.
	State() State

	// Events returns the channel of lifecycle and inbound-message
	// events. The adapters in this module never close it; the end of a
	// connection is reported as a KindClose event.
	Events() <-chan Event
}

// NotOpenErr builds the errs.KindState error Send/SendBinary return when
// called on a transport that isn't open.
func NotOpenErr(op string) error {
	return errs.New(errs.KindState, op, ErrNotOpen)
}
