// Package websocket implements transport.Adapter over a real WebSocket,
// adapted from the teacher's transport/websocket/websocket.go. The
// teacher wrapped an already-dialed *websocket.Conn and moved
// sequence-numbered Message values with a JSON envelope it invented
// ({seq, payload}); this Adapter instead owns the dial itself (per
// transport.Adapter's Connect(ctx) contract) and puts the caller's data
// directly on the wire — JSON-serialized unless already a string, per
// spec section 4.C — with no seq/payload envelope of its own, since
// sequencing here is the ACK Tracker's concern, not the transport's.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"nhooyr.io/websocket"

	"github.com/risa-org/wsc/errs"
	"github.com/risa-org/wsc/transport"
)

// Adapter implements transport.Adapter over nhooyr.io/websocket, the
// exact dependency the teacher pins.
type Adapter struct {
	url       string
	protocols []string
	header    map[string][]string

	mu     sync.Mutex
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	state atomic.Int32
	closeOnce sync.Once
	events    chan transport.Event
}

// Option configures an Adapter at construction, the same functional-
// options idiom used throughout this module's config package.
type Option func(*Adapter)

// WithProtocols forwards a subprotocol list to the WebSocket handshake.
func WithProtocols(protocols []string) Option {
	return func(a *Adapter) { a.protocols = protocols }
}

// WithHeader forwards additional headers to the WebSocket handshake, if
// the transport supports them (spec section 6, "headers").
func WithHeader(header map[string][]string) Option {
	return func(a *Adapter) { a.header = header }
}

// New creates an Adapter for url. Construction never dials — the socket
// opens only when Connect is called, per spec section 4.P "Construction
// never opens a socket".
func New(url string, opts ...Option) *Adapter {
	a := &Adapter{
		url:    url,
		events: make(chan transport.Event, 64),
	}
	a.state.Store(int32(transport.StateIdle))
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) State() transport.State {
	return transport.State(a.state.Load())
}

// Connect dials the WebSocket. A close received during the handshake, or
// the handshake itself failing, both surface as an errs.KindConnection
// error — the teacher's assumption of an already-open conn meant it
// never had to distinguish "never opened" from "closed after opening".
func (a *Adapter) Connect(ctx context.Context) error {
	a.state.Store(int32(transport.StateConnecting))

	opts := &websocket.DialOptions{Subprotocols: a.protocols}
	if a.header != nil {
		opts.HTTPHeader = a.header
	}

	conn, _, err := websocket.Dial(ctx, a.url, opts)
	if err != nil {
		a.state.Store(int32(transport.StateClosed))
		return errs.New(errs.KindConnection, "connect", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.conn = conn
	a.ctx = runCtx
	a.cancel = cancel
	a.mu.Unlock()

	a.state.Store(int32(transport.StateOpen))
	go a.readLoop()

	select {
	case a.events <- transport.Event{Kind: transport.KindOpen}:
	default:
	}
	return nil
}

// Disconnect closes the socket with the given close code and reason.
// Safe to call multiple times.
func (a *Adapter) Disconnect(code int, reason string) error {
	var err error
	a.closeOnce.Do(func() {
		a.state.Store(int32(transport.StateClosed))
		a.mu.Lock()
		conn := a.conn
		cancel := a.cancel
		a.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if conn != nil {
			err = conn.Close(websocket.StatusCode(code), reason)
		}
		select {
		case a.events <- transport.Event{Kind: transport.KindClose, Code: code, Reason: reason, WasClean: true}:
		default:
		}
	})
	return err
}

// Send JSON-serializes frame.Data unless it is already a string, and
// writes it as a text frame.
func (a *Adapter) Send(frame transport.Frame) error {
	if a.State() != transport.StateOpen {
		return transport.NotOpenErr("send")
	}

	var payload []byte
	if s, ok := frame.Data.(string); ok {
		payload = []byte(s)
	} else {
		encoded, err := json.Marshal(frame.Data)
		if err != nil {
			return errs.New(errs.KindProtocol, "send", err)
		}
		payload = encoded
	}

	a.mu.Lock()
	conn, ctx := a.conn, a.ctx
	a.mu.Unlock()
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return errs.New(errs.KindConnection, "send", err)
	}
	return nil
}

// SendBinary writes b unchanged as a binary frame.
func (a *Adapter) SendBinary(b []byte) error {
	if a.State() != transport.StateOpen {
		return transport.NotOpenErr("send-binary")
	}
	a.mu.Lock()
	conn, ctx := a.conn, a.ctx
	a.mu.Unlock()
	if err := conn.Write(ctx, websocket.MessageBinary, b); err != nil {
		return errs.New(errs.KindConnection, "send-binary", err)
	}
	return nil
}

func (a *Adapter) Events() <-chan transport.Event {
	return a.events
}

// readLoop mirrors the teacher's readLoop goroutine feeding a channel
// that the rest of the code consumes single-threaded — the same shape,
// generalized from a fixed {seq,payload} envelope to raw inbound bytes
// with best-effort JSON left to the caller (spec section 4.C, "inbound
// text is best-effort JSON-parsed; on parse failure, the raw string is
// delivered" — that parse happens in the Client's inbound handling,
// after the codec chain decodes the frame, not here).
func (a *Adapter) readLoop() {
	a.mu.Lock()
	conn, ctx := a.conn, a.ctx
	a.mu.Unlock()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			a.signalClose(err)
			return
		}
		select {
		case a.events <- transport.Event{Kind: transport.KindMessage, Data: data}:
		case <-ctx.Done():
			return
		}
	}
}

// signalClose reports the read loop's terminal error as a close or
// error event and tears the adapter down, exactly once.
func (a *Adapter) signalClose(err error) {
	a.closeOnce.Do(func() {
		a.state.Store(int32(transport.StateClosed))
		status := websocket.CloseStatus(err)
		wasClean := status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway
		a.mu.Lock()
		cancel := a.cancel
		a.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		select {
		case a.events <- transport.Event{Kind: transport.KindClose, Code: int(status), WasClean: wasClean, Err: err}:
		default:
		}
	})
}
