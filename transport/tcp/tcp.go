// Package tcp implements transport.Adapter over a raw net.Conn, adapted
// from the teacher's transport/tcp/tcp.go. The teacher framed a fixed
// {seq uint64, payload} pair; here there is no seq field at the
// transport layer any more (sequencing moved to the ACK Tracker), so the
// wire format shrinks to a single length-prefixed payload. This adapter
// is not part of the public transport surface (spec section 1: the
// public surface is WebSocket-only) — it is the in-process loopback
// transport the test suite dials with net.Pipe() to exercise the
// Adapter contract, ACK, dedup, and queue flush end to end without a
// real socket, still fully transport.Adapter-conformant.
package tcp

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/risa-org/wsc/errs"
	"github.com/risa-org/wsc/transport"
)

// Adapter implements transport.Adapter over a raw net.Conn.
//
// Wire format for each frame: [4 bytes: payload length uint32][N bytes: payload].
type Adapter struct {
	conn    net.Conn
	state   atomic.Int32
	events  chan transport.Event
	writeMu sync.Mutex

	closeOnce sync.Once
}

// New wraps an already-established net.Conn. Dialing/accepting happens
// outside; Connect merely marks the adapter open and starts reading.
func New(conn net.Conn) *Adapter {
	a := &Adapter{conn: conn, events: make(chan transport.Event, 64)}
	a.state.Store(int32(transport.StateIdle))
	return a
}

func (a *Adapter) State() transport.State {
	return transport.State(a.state.Load())
}

// Connect starts the read loop and reports the adapter open. There is no
// dial here — the conn is already established.
func (a *Adapter) Connect(ctx context.Context) error {
	a.state.Store(int32(transport.StateOpen))
	go a.readLoop()
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
		err = a.conn.Close()
		select {
		case a.events <- transport.Event{Kind: transport.KindClose, Code: code, Reason: reason, WasClean: true}:
		default:
		}
	})
	return err
}

// Send JSON-serializes frame.Data unless it is already a string, and
// writes it as a length-prefixed frame.
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
	return a.writeFrame(payload)
}

// SendBinary writes b unchanged as a length-prefixed frame.
func (a *Adapter) SendBinary(b []byte) error {
	if a.State() != transport.StateOpen {
		return transport.NotOpenErr("send-binary")
	}
	return a.writeFrame(b)
}

func (a *Adapter) writeFrame(payload []byte) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := a.conn.Write(lenBuf[:]); err != nil {
		return errs.New(errs.KindConnection, "send", err)
	}
	if _, err := a.conn.Write(payload); err != nil {
		return errs.New(errs.KindConnection, "send", err)
	}
	return nil
}

func (a *Adapter) Events() <-chan transport.Event {
	return a.events
}

// readLoop runs in a goroutine and continuously reads frames from the
// connection. When the connection closes it signals a close event and
// exits, unchanged in shape from the teacher's readLoop.
func (a *Adapter) readLoop() {
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(a.conn, lenBuf[:]); err != nil {
			a.signalClose(err)
			return
		}
		payloadLen := binary.BigEndian.Uint32(lenBuf[:])

		payload := make([]byte, payloadLen)
		if _, err := io.ReadFull(a.conn, payload); err != nil {
			a.signalClose(err)
			return
		}

		select {
		case a.events <- transport.Event{Kind: transport.KindMessage, Data: payload}:
		default:
		}
	}
}

// signalClose reports the read loop's terminal error as a close event
// and tears the adapter down, exactly once.
func (a *Adapter) signalClose(err error) {
	a.closeOnce.Do(func() {
		a.state.Store(int32(transport.StateClosed))
		wasClean := err == nil || err == io.EOF
		a.conn.Close()
		select {
		case a.events <- transport.Event{Kind: transport.KindClose, WasClean: wasClean, Err: err}:
		default:
		}
	})
}
