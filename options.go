package wsc

import (
	"time"

	"go.uber.org/zap"

	"github.com/risa-org/wsc/queue"
	"github.com/risa-org/wsc/transport"
	"github.com/risa-org/wsc/transport/socketio"
)

// Option configures a Client at construction, the same functional-
// options idiom config.Option and transport/websocket.Option use.
type Option func(*Client)

// WithLogger sets the structured logger passed down to every subsystem
// that logs (eventbus, ack, and this Facade itself). A nil logger
// (the default) is zap.NewNop().
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithSocketIOEmitter supplies the Emitter a Socket.IO-style adapter
// drives, required when cfg.Adapter.Kind is config.AdapterSocketIO.
func WithSocketIOEmitter(emitter socketio.Emitter) Option {
	return func(c *Client) { c.socketioEmitter = emitter }
}

// WithPersistence attaches a queue.Persistence collaborator under key,
// restoring any previously persisted snapshot immediately.
func WithPersistence(p queue.Persistence, key string) Option {
	return func(c *Client) {
		c.q.AttachPersistence(p, key)
		_ = c.q.Restore()
	}
}

// WithAdapterFactory overrides adapter construction entirely, bypassing
// cfg.Adapter.Kind. factory is called once per connection attempt. This
// is the escape hatch tests use to inject an in-process transport.Adapter
// (transport/tcp's net.Pipe loopback) without dialing a real socket; the
// same need — a caller-supplied transport this module doesn't ship — is
// also a legitimate production use.
func WithAdapterFactory(factory func() (transport.Adapter, error)) Option {
	return func(c *Client) { c.adapterFactory = factory }
}

// WithAckDefaults sets the default timeout and retry count reliable
// sends use when SendOptions doesn't specify them.
func WithAckDefaults(timeout time.Duration, retries int) Option {
	return func(c *Client) {
		c.ackDefaultTimeout = timeout
		c.ackDefaultRetries = retries
	}
}

// WithRPCDefaultTimeout sets the default timeout Request uses when its
// own timeout argument is zero.
func WithRPCDefaultTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.rpcDefaultTimeout = timeout }
}
