// Package integration exercises the Client Facade end to end against
// the in-process tcp loopback adapter, one test per scenario in
// spec section 8's "end-to-end scenarios (concrete)" list. Adapted
// from examples/basic/main.go and integration/integration_test.go's
// own connPair/SessionManager shape — the fixtures changed (no more
// handshake.Handler or session.Sequencer), the "build a loopback pair,
// drive both ends, assert on the wire" structure did not.
package integration

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	wsc "github.com/risa-org/wsc"
	"github.com/risa-org/wsc/codec"
	"github.com/risa-org/wsc/config"
	"github.com/risa-org/wsc/connstate"
	"github.com/risa-org/wsc/queue"
	"github.com/risa-org/wsc/transport"
	"github.com/risa-org/wsc/transport/tcp"
)

func connPair(t *testing.T) (*tcp.Adapter, *tcp.Adapter) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	return tcp.New(serverConn), tcp.New(clientConn)
}

func plainCodec(t *testing.T) *codec.Chain {
	t.Helper()
	c, err := codec.New(codec.Config{})
	require.NoError(t, err)
	return c
}

func readEnvelope(t *testing.T, server *tcp.Adapter, c *codec.Chain) map[string]any {
	t.Helper()
	select {
	case ev := <-server.Events():
		require.Equal(t, transport.KindMessage, ev.Kind)
		plaintext, err := c.Decode(string(ev.Data))
		require.NoError(t, err)
		var message map[string]any
		require.NoError(t, json.Unmarshal(plaintext, &message))
		return message
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a message on the wire")
		return nil
	}
}

// readWire decodes the next inbound frame on server and returns its
// plaintext exactly as it arrived, for literal wire-equality assertions.
func readWire(t *testing.T, server *tcp.Adapter, c *codec.Chain) string {
	t.Helper()
	select {
	case ev := <-server.Events():
		require.Equal(t, transport.KindMessage, ev.Kind)
		plaintext, err := c.Decode(string(ev.Data))
		require.NoError(t, err)
		return string(plaintext)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a message on the wire")
		return ""
	}
}

func writeEnvelope(t *testing.T, server *tcp.Adapter, c *codec.Chain, message map[string]any) {
	t.Helper()
	encoded, err := json.Marshal(message)
	require.NoError(t, err)
	wire, err := c.Encode(encoded)
	require.NoError(t, err)
	require.NoError(t, server.Send(transport.Frame{Data: wire}))
}

// Scenario 1: basic round trip.
func TestBasicRoundTrip(t *testing.T) {
	server, clientAdapter := connPair(t)
	defer server.Disconnect(0, "")

	c, err := wsc.New(config.Default("ws://x"), wsc.WithAdapterFactory(func() (transport.Adapter, error) {
		return clientAdapter, nil
	}))
	require.NoError(t, err)
	defer c.Destroy()

	require.NoError(t, server.Connect(context.Background()))
	<-server.Events()
	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, c.IsConnected, time.Second, 5*time.Millisecond)

	codecChain := plainCodec(t)
	// spec section 8, scenario 1: send({type:"hi"}) puts the literal
	// text frame '{"type":"hi"}' on the wire, unwrapped.
	require.NoError(t, c.Send(map[string]any{"type": "hi"}, wsc.SendOptions{}))
	require.Equal(t, `{"type":"hi"}`, readWire(t, server, codecChain))

	messages := make(chan any, 1)
	c.On("message", func(data any) { messages <- data })
	writeEnvelope(t, server, codecChain, map[string]any{"type": "echo", "v": float64(1)})

	select {
	case data := <-messages:
		message, ok := data.(map[string]any)
		require.True(t, ok)
		require.Equal(t, "echo", message["type"])
		require.Equal(t, float64(1), message["v"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message event")
	}
}

// Scenario 2: offline queueing preserves priority order ahead of
// insertion order — three sends before connect, high before normal
// before low, drained in that order once the queue flushes.
func TestOfflineQueueingDrainsInPriorityOrder(t *testing.T) {
	server, clientAdapter := connPair(t)
	defer server.Disconnect(0, "")

	c, err := wsc.New(config.Default("ws://x"), wsc.WithAdapterFactory(func() (transport.Adapter, error) {
		return clientAdapter, nil
	}))
	require.NoError(t, err)
	defer c.Destroy()

	require.NoError(t, c.Send(map[string]any{"a": float64(1)}, wsc.SendOptions{Priority: queue.High}))
	require.NoError(t, c.Send(map[string]any{"a": float64(2)}, wsc.SendOptions{Priority: queue.Low}))
	require.NoError(t, c.Send(map[string]any{"a": float64(3)}, wsc.SendOptions{Priority: queue.Normal}))
	require.Equal(t, 3, c.QueueSize())

	require.NoError(t, server.Connect(context.Background()))
	<-server.Events()
	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, c.IsConnected, time.Second, 5*time.Millisecond)

	codecChain := plainCodec(t)
	want := []float64{1, 3, 2}
	for _, expected := range want {
		got := readEnvelope(t, server, codecChain)
		require.Equal(t, expected, got["a"])
	}
	require.Eventually(t, func() bool { return c.QueueSize() == 0 }, time.Second, 5*time.Millisecond)
}

// Scenario 3: exponential backoff. Every attemptConnect fails (the
// factory returns an adapter whose Connect always errors); the
// reconnecting callback observes delays that double up to maxDelay,
// and reconnect-failed fires exactly once after maxAttempts.
func TestExponentialBackoffReconnectFailure(t *testing.T) {
	cfg := config.Default("ws://x")
	cfg.Reconnect.BaseDelay = 20 * time.Millisecond
	cfg.Reconnect.MaxDelay = 200 * time.Millisecond
	cfg.Reconnect.Factor = 2.0
	cfg.Reconnect.JitterFraction = 0
	cfg.Reconnect.MaxAttempts = 3

	c, err := wsc.New(cfg, wsc.WithAdapterFactory(func() (transport.Adapter, error) {
		return &alwaysFailAdapter{}, nil
	}))
	require.NoError(t, err)
	defer c.Destroy()

	var delays []time.Duration
	failed := make(chan int, 1)
	c.On("reconnecting", func(data any) {
		fields, ok := data.(map[string]any)
		require.True(t, ok)
		delays = append(delays, fields["delay"].(time.Duration))
	})
	c.On("reconnect-failed", func(data any) {
		fields, ok := data.(map[string]any)
		require.True(t, ok)
		failed <- fields["attempts"].(int)
	})

	require.NoError(t, c.Connect(context.Background()))

	select {
	case attempts := <-failed:
		require.Equal(t, 3, attempts)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reconnect-failed")
	}
	require.GreaterOrEqual(t, len(delays), 2)
	require.LessOrEqual(t, delays[1], delays[0]*3) // roughly doubling, capped at maxDelay
}

// alwaysFailAdapter's Connect always errors, simulating a peer that
// never accepts a connection.
type alwaysFailAdapter struct{}

func (a *alwaysFailAdapter) Connect(ctx context.Context) error {
	return transport.NotOpenErr("connect")
}
func (a *alwaysFailAdapter) Disconnect(code int, reason string) error { return nil }
func (a *alwaysFailAdapter) Send(frame transport.Frame) error        { return transport.NotOpenErr("send") }
func (a *alwaysFailAdapter) SendBinary(b []byte) error                { return transport.NotOpenErr("send") }
func (a *alwaysFailAdapter) State() transport.State                   { return transport.StateClosed }
func (a *alwaysFailAdapter) Events() <-chan transport.Event            { return nil }

// Scenario 4: heartbeat death. A peer that never responds to pings
// eventually trips the heartbeat timeout, which the Facade turns into
// a disconnect (and, with reconnect enabled, a transition onward to
// reconnecting).
func TestHeartbeatDeathTriggersDisconnect(t *testing.T) {
	server, clientAdapter := connPair(t)
	defer server.Disconnect(0, "")

	cfg := config.Default("ws://x")
	cfg.Heartbeat.Interval = 30 * time.Millisecond
	cfg.Heartbeat.Timeout = 50 * time.Millisecond
	cfg.Reconnect.Enabled = false

	c, err := wsc.New(cfg, wsc.WithAdapterFactory(func() (transport.Adapter, error) {
		return clientAdapter, nil
	}))
	require.NoError(t, err)
	defer c.Destroy()

	require.NoError(t, server.Connect(context.Background()))
	<-server.Events()
	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, c.IsConnected, time.Second, 5*time.Millisecond)

	// never respond to the client's pings — just drain the wire so the
	// writer doesn't block.
	go func() {
		for range server.Events() {
		}
	}()

	require.Eventually(t, func() bool {
		return c.State() == connstate.Disconnected
	}, 2*time.Second, 10*time.Millisecond)
}

// Scenario 5: ACK with retry. A send that demands an ack the peer
// never provides is retried exactly `retries` times, then times out.
func TestReliableSendRetriesThenTimesOut(t *testing.T) {
	server, clientAdapter := connPair(t)
	defer server.Disconnect(0, "")

	c, err := wsc.New(config.Default("ws://x"), wsc.WithAdapterFactory(func() (transport.Adapter, error) {
		return clientAdapter, nil
	}))
	require.NoError(t, err)
	defer c.Destroy()

	require.NoError(t, server.Connect(context.Background()))
	<-server.Events()
	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, c.IsConnected, time.Second, 5*time.Millisecond)

	codecChain := plainCodec(t)
	timedOut := make(chan error, 1)
	require.NoError(t, c.Send(map[string]any{"x": float64(1)}, wsc.SendOptions{
		Reliable:   true,
		AckTimeout: 50 * time.Millisecond,
		AckRetries: 2,
		OnTimeout:  func(err error) { timedOut <- err },
	}))

	for i := 0; i < 3; i++ {
		got := readEnvelope(t, server, codecChain)
		data, ok := got["data"].(map[string]any)
		require.True(t, ok)
		require.Equal(t, float64(1), data["x"])
	}

	select {
	case err := <-timedOut:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for onTimeout callback")
	}
}

// Scenario 6: RPC round trip.
func TestRPCRoundTrip(t *testing.T) {
	server, clientAdapter := connPair(t)
	defer server.Disconnect(0, "")

	c, err := wsc.New(config.Default("ws://x"), wsc.WithAdapterFactory(func() (transport.Adapter, error) {
		return clientAdapter, nil
	}))
	require.NoError(t, err)
	defer c.Destroy()

	require.NoError(t, server.Connect(context.Background()))
	<-server.Events()
	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, c.IsConnected, time.Second, 5*time.Millisecond)

	codecChain := plainCodec(t)
	id, results, err := c.Request(map[string]any{"op": "sum", "args": []any{1, 2}}, time.Second)
	require.NoError(t, err)

	request := readEnvelope(t, server, codecChain)
	require.Equal(t, "rpc_request", request["type"])
	require.Equal(t, id, request["id"])

	writeEnvelope(t, server, codecChain, map[string]any{
		"type": "rpc_response",
		"id":   id,
		"data": map[string]any{"result": float64(3)},
	})

	select {
	case result := <-results:
		require.NoError(t, result.Err)
		data, ok := result.Data.(map[string]any)
		require.True(t, ok)
		require.Equal(t, float64(3), data["result"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for rpc completion")
	}
}
