// Package wsc is the public surface of a client-side WebSocket runtime:
// reconnect with backoff, an offline send queue, heartbeat liveness
// probing, at-least-once delivery, request/response RPC, pattern
// routing, and a few other concerns, composed behind one Facade (spec
// section 4.P). Grounded on examples/basic/main.go's SessionManager —
// the teacher's own pattern of one type owning every collaborator and
// wiring them together at construction — generalized from "own a map
// of sessions" to "own every subsystem for one logical connection", and
// on other_examples/lightforgemedia-go-websocketmq__client.go's
// Option/clientConfig construction idiom.
package wsc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/risa-org/wsc/ack"
	"github.com/risa-org/wsc/batch"
	"github.com/risa-org/wsc/codec"
	"github.com/risa-org/wsc/config"
	"github.com/risa-org/wsc/connstate"
	"github.com/risa-org/wsc/dedup"
	"github.com/risa-org/wsc/errs"
	"github.com/risa-org/wsc/eventbus"
	"github.com/risa-org/wsc/heartbeat"
	"github.com/risa-org/wsc/idgen"
	"github.com/risa-org/wsc/middleware"
	"github.com/risa-org/wsc/monitor"
	"github.com/risa-org/wsc/queue"
	"github.com/risa-org/wsc/reconnect"
	"github.com/risa-org/wsc/router"
	"github.com/risa-org/wsc/rpc"
	"github.com/risa-org/wsc/session"
	"github.com/risa-org/wsc/transport"
	"github.com/risa-org/wsc/transport/socketio"
	"github.com/risa-org/wsc/transport/websocket"
)

// Client is the runtime's public Facade. It exclusively owns every
// subsystem instance and the current Adapter (spec section 3,
// "Ownership"); subsystems hold only the functional references
// (callbacks) to each other that Client wires at construction.
type Client struct {
	cfg config.Config
	log *zap.Logger

	mu        sync.Mutex
	destroyed bool
	adapter   transport.Adapter
	sess      *session.Session

	bus      *eventbus.Bus
	machine  *connstate.Machine
	reconn   *reconnect.Controller
	heart    *heartbeat.Controller
	q        *queue.Queue
	codecChain *codec.Chain
	acks     *ack.Tracker
	rpcs     *rpc.Correlator
	route    *router.Router
	dedupe   *dedup.Deduplicator
	mon      *monitor.Monitor
	pipeline *middleware.Pipeline
	ids      *idgen.Generator
	batcher  *batch.Sender

	socketioEmitter socketio.Emitter
	adapterFactory  func() (transport.Adapter, error)

	ackDefaultTimeout time.Duration
	ackDefaultRetries int
	rpcDefaultTimeout time.Duration
}

// New constructs a Client from cfg. Construction never opens a socket
// (spec section 4.P).
func New(cfg config.Config, opts ...Option) (*Client, error) {
	c := &Client{
		cfg:               cfg,
		log:               zap.NewNop(),
		bus:               eventbus.New(nil),
		q:                 queue.New(cfg.Queue.MaxSize, cfg.Queue.MaxMessageLen),
		route:             router.New(nil),
		dedupe:            dedup.New(5*time.Minute, 10000),
		mon:               monitor.New(monitor.Config{WindowSize: time.Minute}, nil),
		ids:               idgen.New(),
		ackDefaultTimeout: 5 * time.Second,
		ackDefaultRetries: 2,
		rpcDefaultTimeout: 10 * time.Second,
	}
	c.machine = connstate.New(c.bus)

	// The Send chain's terminal action is the actual codec-encode +
	// adapter-send (middleware.Terminal's documented role); the Receive
	// chain's terminal is a no-op — classification of an inbound
	// envelope happens in handleInbound after Execute returns, not in
	// the chain itself.
	c.pipeline = middleware.NewPipeline(c.sendTerminal, nil)

	for _, opt := range opts {
		opt(c)
	}

	if err := c.wireLifecycle(cfg); err != nil {
		return nil, err
	}

	c.acks = ack.New(func(id string, payload any) error {
		return c.sendEnvelope(id, "message", payload)
	}, c.ackDefaultTimeout, c.log)

	c.rpcs = rpc.New(func(id string, payload any) error {
		return c.sendEnvelope(id, "rpc_request", payload)
	}, c.rpcDefaultTimeout)

	return c, nil
}

// wireLifecycle (re)builds every collaborator whose behavior is pinned
// to a Config snapshot at construction time: the codec chain, the
// batch sender, and the heartbeat and reconnect controllers. Called
// once from New, and again from Reconfigure whenever cfg changes —
// each of those collaborators only reads its Config at its own next
// relevant scheduling point (spec section 3, "Config trees"), so
// rebuilding them here is how that update actually reaches them.
func (c *Client) wireLifecycle(cfg config.Config) error {
	codecChain, err := codec.New(codec.Config{
		CompressionEnabled:   cfg.Compression.Enabled,
		CompressionThreshold: cfg.Compression.Threshold,
		CompressionAlgorithm: codec.CompressionAlgorithm(cfg.Compression.Algorithm),
		EncryptionEnabled:    cfg.Encryption.Enabled,
		EncryptionKey:        cfg.Encryption.Key,
		FixedIV:              cfg.Encryption.FixedIV,
	})
	if err != nil {
		return err
	}
	c.codecChain = codecChain

	c.batcher = batch.New(batch.Config{
		MaxSize:  cfg.Batch.MaxSize,
		MaxBytes: cfg.Batch.MaxBytes,
		MaxWait:  cfg.Batch.MaxWait,
	}, func(messages []any) error {
		return c.sendEnvelope(c.ids.Next(), "batch", messages)
	}, func(message any) int {
		encoded, err := json.Marshal(message)
		if err != nil {
			return 0
		}
		return len(encoded)
	})

	c.heart = heartbeat.New(heartbeat.Config{
		Enabled:  cfg.Heartbeat.Enabled,
		Interval: cfg.Heartbeat.Interval,
		Timeout:  cfg.Heartbeat.Timeout,
		Message:  cfg.Heartbeat.Message,
		PongType: cfg.Heartbeat.PongType,
	}, func(message map[string]any) error {
		return c.dispatchRaw(message)
	}, func(rtt time.Duration) {
		c.mu.Lock()
		if c.sess != nil {
			c.sess.RecordHeartbeat(rtt)
		}
		c.mu.Unlock()
		c.mon.RecordLatency(rtt)
	}, c.handleHeartbeatTimeout)

	c.reconn = reconnect.New(reconnect.Config{
		BaseDelay:      cfg.Reconnect.BaseDelay,
		MaxDelay:       cfg.Reconnect.MaxDelay,
		MaxAttempts:    cfg.Reconnect.MaxAttempts,
		Factor:         cfg.Reconnect.Factor,
		JitterFraction: cfg.Reconnect.JitterFraction,
	}, c.attemptConnect)

	c.reconn.OnReconnecting(func(attempt int, delay time.Duration) {
		c.mu.Lock()
		if c.sess != nil {
			c.sess.BeginReconnect()
		}
		c.mu.Unlock()
		c.bus.Emit("reconnecting", map[string]any{"attempt": attempt, "delay": delay})
	})
	c.reconn.OnReconnected(func(attempts int, duration time.Duration) {
		c.mu.Lock()
		if c.sess != nil {
			c.sess.Resumed()
		}
		c.mu.Unlock()
		c.machine.Transition(connstate.Connected)
		c.mon.RecordReconnect()
		c.bus.Emit("reconnected", map[string]any{"attempts": attempts, "duration": duration})
	})
	c.reconn.OnFailed(func(attempts int, reason string) {
		c.machine.Transition(connstate.Disconnected)
		c.bus.Emit("reconnect-failed", map[string]any{"attempts": attempts, "reason": reason})
	})

	return nil
}

// Reconfigure replaces cfg wholesale (spec section 3, "Config trees ...
// updates replace the snapshot"). The codec chain, batch sender, and
// heartbeat/reconnect controllers are rebuilt against the new values —
// the heartbeat controller restarts immediately if a connection is
// already up, so liveness probing doesn't go dark until the next
// reconnect — and the queue's capacity/message-size limits are updated
// in place for future Enqueue calls. It never itself connects,
// disconnects, or touches the current Adapter; adapter selection picks
// up the new AdapterConfig on the next connection attempt since
// newAdapter reads c.cfg live rather than a captured copy.
func (c *Client) Reconfigure(cfg config.Config) error {
	if c.isDestroyed() {
		return errs.New(errs.KindState, "reconfigure", ErrDestroyed)
	}

	c.heart.Stop()
	c.reconn.Cancel()
	_ = c.batcher.Destroy()

	c.mu.Lock()
	c.cfg = cfg
	connected := c.machine.State() == connstate.Connected
	c.mu.Unlock()
	c.q.SetLimits(cfg.Queue.MaxSize, cfg.Queue.MaxMessageLen)

	if err := c.wireLifecycle(cfg); err != nil {
		return err
	}
	if connected {
		c.heart.Start()
	}
	return nil
}

// newAdapter builds the transport.Adapter for the next connection
// attempt. adapterFactory (WithAdapterFactory) takes priority over
// cfg.Adapter.Kind — the selection this Facade performs in place of a
// transport.Select that would otherwise have to live in the transport
// package and import its own subpackages, an import cycle (see
// DESIGN.md).
func (c *Client) newAdapter() (transport.Adapter, error) {
	if c.adapterFactory != nil {
		return c.adapterFactory()
	}
	switch c.cfg.Adapter.Kind {
	case config.AdapterSocketIO:
		if c.socketioEmitter == nil {
			return nil, errs.New(errs.KindState, "connect", errors.New("socketio adapter selected but no emitter configured (see WithSocketIOEmitter)"))
		}
		return socketio.New(c.socketioEmitter), nil
	default:
		return websocket.New(c.cfg.URL,
			websocket.WithProtocols(c.cfg.Protocols),
			websocket.WithHeader(c.cfg.Adapter.Headers),
		), nil
	}
}

// Connect transitions disconnected -> connecting -> connected. If
// already connecting or connected, it returns immediately. A failure
// with reconnect enabled is absorbed into the reconnect loop; otherwise
// it is surfaced to the caller, per spec section 4.P.
func (c *Client) Connect(ctx context.Context) error {
	if c.isDestroyed() {
		return errs.New(errs.KindState, "connect", ErrDestroyed)
	}

	switch c.machine.State() {
	case connstate.Connecting, connstate.Connected:
		return nil
	}

	if err := c.attemptConnect(ctx); err != nil {
		if c.cfg.Reconnect.Enabled {
			c.machine.Transition(connstate.Reconnecting)
			c.reconn.Start(context.Background())
			return nil
		}
		return err
	}
	return nil
}

// attemptConnect makes exactly one connection attempt and reports its
// outcome; it never itself schedules a retry — that's reconnect.Controller's
// job, whether Connect or the Controller's own retry loop is the caller.
func (c *Client) attemptConnect(ctx context.Context) error {
	c.machine.Transition(connstate.Connecting)

	adapter, err := c.newAdapter()
	if err != nil {
		c.machine.Transition(connstate.Disconnected)
		return err
	}

	dialCtx := ctx
	if c.cfg.ConnectionTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.cfg.ConnectionTimeout)
		defer cancel()
	}

	if err := adapter.Connect(dialCtx); err != nil {
		c.machine.Transition(connstate.Disconnected)
		c.mon.RecordError(err.Error())
		return err
	}

	c.mu.Lock()
	c.adapter = adapter
	if c.sess == nil {
		sess, sessErr := session.New()
		if sessErr == nil {
			c.sess = sess
		}
	}
	c.mu.Unlock()

	c.machine.Transition(connstate.Connected)
	go c.runEventLoop(adapter)
	c.heart.Start()
	c.flushQueue()
	c.bus.Emit("open", nil)
	return nil
}

// runEventLoop is the Facade's single logical task runner for one
// adapter's lifetime: every inbound frame and terminal close/error for
// that adapter passes through here, one at a time.
func (c *Client) runEventLoop(adapter transport.Adapter) {
	for ev := range adapter.Events() {
		switch ev.Kind {
		case transport.KindMessage:
			c.handleInbound(ev.Data)
		case transport.KindClose, transport.KindError:
			c.handleDisconnect()
			return
		}
	}
}

// handleDisconnect runs once per adapter lifetime on an unclean or
// clean close. Pending reliable sends and RPCs are rejected
// unconditionally (spec section 3, PendingRpc "additionally destroyed
// on connection loss"); whether a reconnect attempt follows depends on
// whether the disconnect was requested (Disconnect/Destroy already
// parked the state machine in Disconnecting/Destroyed) or unexpected.
func (c *Client) handleDisconnect() {
	c.heart.Stop()
	c.acks.CancelAll()
	c.rpcs.CancelAll("connection lost")
	c.bus.Emit("close", nil)

	switch c.machine.State() {
	case connstate.Disconnecting, connstate.Destroyed:
		c.machine.Transition(connstate.Disconnected)
		return
	}

	if c.cfg.Reconnect.Enabled {
		c.machine.Transition(connstate.Reconnecting)
		c.reconn.Start(context.Background())
		return
	}
	c.machine.Transition(connstate.Disconnected)
}

// handleHeartbeatTimeout maps a missed pong to disconnect(code=4001,
// "heartbeat timeout") (spec section 4.F). Unlike Disconnect, this does
// not park the state machine in Disconnecting first — the close this
// produces is treated as unexpected by handleDisconnect, so a
// configured reconnect still follows it.
func (c *Client) handleHeartbeatTimeout() {
	c.bus.Emit("heartbeat-timeout", nil)
	c.mu.Lock()
	adapter := c.adapter
	c.mu.Unlock()
	if adapter != nil {
		_ = adapter.Disconnect(4001, "heartbeat timeout")
	}
}

// Disconnect stops heartbeat, cancels any pending reconnect, and tells
// the adapter to close; state settles at disconnected. No error is
// surfaced, per spec section 4.P.
func (c *Client) Disconnect(code int, reason string) error {
	c.reconn.Cancel()
	c.heart.Stop()

	switch c.machine.State() {
	case connstate.Disconnected, connstate.Destroyed:
		return nil
	}
	c.machine.Transition(connstate.Disconnecting)

	c.mu.Lock()
	adapter := c.adapter
	c.mu.Unlock()
	if adapter != nil {
		_ = adapter.Disconnect(code, reason)
	} else {
		c.machine.Transition(connstate.Disconnected)
	}
	return nil
}

// Destroy is idempotent; after it, every further operation fails fast
// with a State error. Reconnect, heartbeat, queue, and codec state are
// reset, per spec section 4.P.
func (c *Client) Destroy() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	adapter := c.adapter
	c.mu.Unlock()

	c.reconn.Cancel()
	c.heart.Stop()
	c.acks.CancelAll()
	c.rpcs.CancelAll("destroyed")
	c.dedupe.Stop()
	c.q.Clear()
	_ = c.batcher.Destroy()

	c.machine.Transition(connstate.Destroyed)
	if adapter != nil {
		_ = adapter.Disconnect(1000, "destroyed")
	}
	return nil
}

func (c *Client) isDestroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

// State returns the current connection state.
func (c *Client) State() connstate.State { return c.machine.State() }

// IsConnected reports whether State() == connstate.Connected.
func (c *Client) IsConnected() bool { return c.machine.State() == connstate.Connected }

// Metrics returns the current performance snapshot.
func (c *Client) Metrics() monitor.Snapshot { return c.mon.Snapshot() }

// QueueSize reports the number of currently queued outbound messages.
func (c *Client) QueueSize() int { return c.q.Len() }

// On registers handler for event.
func (c *Client) On(event string, handler eventbus.Handler) { c.bus.On(event, handler) }

// Once registers handler to fire at most once for event.
func (c *Client) Once(event string, handler eventbus.Handler) { c.bus.Once(event, handler) }

// Off removes handler from event, or every handler when handler is nil.
func (c *Client) Off(event string, handler eventbus.Handler) { c.bus.Off(event, handler) }

// ClearQueue drops every currently queued outbound message.
func (c *Client) ClearQueue() { c.q.Clear() }

// OnRoute registers a pattern-matched inbound message handler (spec
// section 4.L), a thin pass-through to the Router this Facade owns.
func (c *Client) OnRoute(pattern string, handler router.Handler, priority int) {
	c.route.On(pattern, handler, priority)
}

// typeOf and idOf extract the envelope's conventional "type"/"id"
// string fields, used throughout inbound classification and routing.
func typeOf(message map[string]any) string {
	t, _ := message["type"].(string)
	return t
}

func idOf(message map[string]any) string {
	id, _ := message["id"].(string)
	return id
}

// handleInbound decodes a raw wire frame, runs it through the receive
// middleware chain, and classifies it: pong -> heartbeat, ack -> ack
// Tracker, rpc_response -> RPC Correlator, otherwise -> Router and the
// public "message" event (spec section 2, control flow).
func (c *Client) handleInbound(data []byte) {
	plaintext, err := c.codecChain.Decode(string(data))
	if err != nil {
		c.mon.RecordError(err.Error())
		c.bus.Emit("error", err)
		return
	}

	var message map[string]any
	if err := json.Unmarshal(plaintext, &message); err != nil {
		// best-effort: inbound text that isn't a JSON envelope is still
		// delivered as a generic message, per spec section 4.C.
		c.bus.Emit("message", string(plaintext))
		return
	}

	ctx := &middleware.Context{
		Data:      message,
		Direction: middleware.DirectionReceive,
		Type:      typeOf(message),
		ID:        idOf(message),
		Timestamp: time.Now(),
	}
	if err := c.pipeline.Receive.Execute(ctx); err != nil {
		c.mon.RecordError(err.Error())
		return
	}
	if ctx.ShouldSkip {
		return
	}
	if m, ok := ctx.Data.(map[string]any); ok {
		message = m
	}

	c.mu.Lock()
	if c.sess != nil {
		c.sess.RecordReceived()
	}
	c.mu.Unlock()
	c.mon.RecordReceived()

	if c.heart.HandlePong(message) {
		return
	}

	switch typeOf(message) {
	case "ack":
		c.acks.Ack(idOf(message), message["data"])
	case "rpc_response":
		id := idOf(message)
		if errText, ok := message["error"].(string); ok && errText != "" {
			c.rpcs.Reject(id, errors.New(errText))
		} else {
			c.rpcs.Resolve(id, message["data"])
		}
	default:
		id := idOf(message)
		if c.dedupe.IsDuplicate(message, id) {
			return
		}
		c.dedupe.MarkProcessed(message, id)
		c.route.Route(message)
		c.bus.Emit("message", message)
	}
}
