// Package socketio implements transport.Adapter over a Socket.IO-like
// client. No Socket.IO Go client appears anywhere in the retrieval pack
// this module was built against, so rather than import or fabricate one,
// this adapter is written against a small Emitter interface any real
// Socket.IO client can satisfy — the same dependency-inversion idiom the
// teacher's handshake.SessionStore interface uses to keep handshake.go
// free of a concrete storage import.
package socketio

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/risa-org/wsc/errs"
	"github.com/risa-org/wsc/transport"
)

// Emitter is the minimal surface a Socket.IO client library must expose
// for this adapter to drive it. A concrete client (e.g. a generated
// wrapper around a socket.io-client-go package) implements this without
// this module needing to import that package directly.
type Emitter interface {
	Connect(ctx context.Context) error
	Close() error
	Emit(event string, data any) error
	On(event string, fn func(data []byte))
}

// messageEvent is the Socket.IO event name this adapter maps the
// runtime's uniform send/receive contract onto, per spec section 4.C
// ("Socket.IO-like wraps a higher-level client and maps
// emit('message', …) to send").
const messageEvent = "message"

// Adapter implements transport.Adapter over an Emitter.
type Adapter struct {
	emitter Emitter

	mu     sync.Mutex
	state  atomic.Int32
	events chan transport.Event
	closeOnce sync.Once
}

// New wraps emitter in a transport.Adapter. Construction never connects.
func New(emitter Emitter) *Adapter {
	a := &Adapter{emitter: emitter, events: make(chan transport.Event, 64)}
	a.state.Store(int32(transport.StateIdle))
	return a
}

func (a *Adapter) State() transport.State {
	return transport.State(a.state.Load())
}

// Connect opens the underlying Socket.IO connection and wires the
// message event through to Events().
func (a *Adapter) Connect(ctx context.Context) error {
	a.state.Store(int32(transport.StateConnecting))

	a.emitter.On(messageEvent, func(data []byte) {
		select {
		case a.events <- transport.Event{Kind: transport.KindMessage, Data: data}:
		default:
		}
	})

	if err := a.emitter.Connect(ctx); err != nil {
		a.state.Store(int32(transport.StateClosed))
		return errs.New(errs.KindConnection, "connect", err)
	}

	a.state.Store(int32(transport.StateOpen))
	select {
	case a.events <- transport.Event{Kind: transport.KindOpen}:
	default:
	}
	return nil
}

// Disconnect closes the underlying connection. Safe to call multiple times.
func (a *Adapter) Disconnect(code int, reason string) error {
	var err error
	a.closeOnce.Do(func() {
		a.state.Store(int32(transport.StateClosed))
		err = a.emitter.Close()
		select {
		case a.events <- transport.Event{Kind: transport.KindClose, Code: code, Reason: reason, WasClean: true}:
		default:
		}
	})
	return err
}

// Send emits frame.Data on the message event, JSON-serialized unless it
// is already a string.
func (a *Adapter) Send(frame transport.Frame) error {
	if a.State() != transport.StateOpen {
		return transport.NotOpenErr("send")
	}
	if s, ok := frame.Data.(string); ok {
		return a.emit(s)
	}
	encoded, err := json.Marshal(frame.Data)
	if err != nil {
		return errs.New(errs.KindProtocol, "send", err)
	}
	return a.emit(string(encoded))
}

// SendBinary emits raw bytes on the message event.
func (a *Adapter) SendBinary(b []byte) error {
	if a.State() != transport.StateOpen {
		return transport.NotOpenErr("send-binary")
	}
	return a.emit(b)
}

func (a *Adapter) emit(data any) error {
	if err := a.emitter.Emit(messageEvent, data); err != nil {
		return errs.New(errs.KindConnection, "emit", err)
	}
	return nil
}

func (a *Adapter) Events() <-chan transport.Event {
	return a.events
}
