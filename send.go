package wsc

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/risa-org/wsc/ack"
	"github.com/risa-org/wsc/errs"
	"github.com/risa-org/wsc/middleware"
	"github.com/risa-org/wsc/queue"
	"github.com/risa-org/wsc/transport"
)

// Send delivers payload onto the wire exactly as given: json.Marshal
// applied directly to payload, with no envelope wrapping (spec section
// 8, End-to-end Scenario 1 — send({type:"hi"}) puts the literal text
// frame '{"type":"hi"}' on the wire). When connected, it goes out
// immediately (through the Send middleware chain and codec chain);
// when disconnected, it is queued if cfg.Queue allows queueing and
// rejected with a State error otherwise (spec section 4.P). id is used
// only as the queue's internal bookkeeping key when queued — it never
// appears in the wire payload itself. When opts.Reliable is set,
// delivery instead goes through sendReliable, whose {type,id,data}
// envelope is a genuine correlation need (see sendEnvelope) rather than
// a blanket wrapping of every send.
func (c *Client) Send(payload any, opts SendOptions) error {
	if c.isDestroyed() {
		return errs.New(errs.KindState, "send", ErrDestroyed)
	}

	if opts.Reliable {
		return c.sendReliable(payload, opts)
	}

	id := c.ids.Next()

	if !c.IsConnected() {
		return c.enqueue(id, payload, opts.Priority)
	}

	if err := c.dispatchRaw(payload); err != nil {
		if c.cfg.Queue.Enabled {
			return c.enqueue(id, payload, opts.Priority)
		}
		return err
	}
	return nil
}

// sendReliable routes payload through the ACK Tracker instead of a bare
// dispatch; the Tracker itself owns retry and timeout, and its SendFunc
// (wired in client.go) wraps payload in the {type,id,data} envelope
// that lets a later "ack" reply be correlated back to this call.
func (c *Client) sendReliable(payload any, opts SendOptions) error {
	if !c.IsConnected() {
		id := c.ids.Next()
		message := map[string]any{"type": "message", "id": id, "data": payload}
		return c.enqueue(id, message, opts.Priority)
	}

	retries := opts.AckRetries
	if retries == 0 {
		retries = c.ackDefaultRetries
	}
	_, err := c.acks.Send(payload, ack.Options{
		Timeout: opts.AckTimeout,
		Retries: retries,
	}, func(ackData any) {
		if opts.OnAck != nil {
			opts.OnAck(ackData)
		}
	}, func(err error) {
		if opts.OnTimeout != nil {
			opts.OnTimeout(err)
		}
	})
	return err
}

// SendBinary delivers b unchanged, bypassing the queue, the middleware
// chain, and the codec chain entirely. It requires an open connection.
func (c *Client) SendBinary(b []byte) error {
	if c.isDestroyed() {
		return errs.New(errs.KindState, "send_binary", ErrDestroyed)
	}
	if !c.IsConnected() {
		return errs.New(errs.KindState, "send_binary", ErrNotConnected)
	}

	c.mu.Lock()
	adapter := c.adapter
	c.mu.Unlock()
	if adapter == nil {
		return errs.New(errs.KindState, "send_binary", ErrNotConnected)
	}

	if err := adapter.SendBinary(b); err != nil {
		c.mon.RecordError(err.Error())
		return err
	}
	c.mon.RecordSent()
	return nil
}

// AddToBatch buffers message in the Batch Sender (spec section 4.M).
// With cfg.Batch.Enabled false, there is nothing to coalesce into, so
// message goes out immediately as a single-element batch instead.
func (c *Client) AddToBatch(message any) error {
	if c.isDestroyed() {
		return errs.New(errs.KindState, "add_to_batch", ErrDestroyed)
	}
	if !c.cfg.Batch.Enabled {
		return c.sendEnvelope(c.ids.Next(), "batch", []any{message})
	}
	c.batcher.Add(message)
	return nil
}

// FlushBatch sends whatever is currently buffered in the Batch Sender,
// ahead of its own size/bytes/wait triggers. A no-op if nothing is
// buffered.
func (c *Client) FlushBatch() error {
	return c.batcher.Flush()
}

// sendEnvelope wraps payload in the {"type","id","data"} shape the ACK
// Tracker and RPC Correlator's SendFunc both need.
func (c *Client) sendEnvelope(id, typ string, payload any) error {
	return c.dispatchRaw(map[string]any{"type": typ, "id": id, "data": payload})
}

// dispatchRaw runs data through the Send middleware chain, whose
// terminal action (sendTerminal) performs the codec-encode and
// adapter-send. Used for every outbound frame except SendBinary's raw
// bytes. data is whatever the caller wants on the wire: a bare payload
// for a plain Send, or a {type,id,data} envelope for sendEnvelope's
// callers (ack/rpc/batch). Type/ID are only populated when data happens
// to be a map carrying them — a bare non-map payload just has no
// classification for the middleware chain to inspect.
func (c *Client) dispatchRaw(data any) error {
	ctx := &middleware.Context{
		Data:      data,
		Direction: middleware.DirectionSend,
		Timestamp: time.Now(),
	}
	if m, ok := data.(map[string]any); ok {
		ctx.Type = typeOf(m)
		ctx.ID = idOf(m)
	}
	return c.pipeline.Send.Execute(ctx)
}

// sendTerminal is the Send chain's terminal action: JSON-marshal
// whatever the middleware chain left in ctx.Data, run it through the
// codec chain, and hand the result to the current Adapter.
func (c *Client) sendTerminal(ctx *middleware.Context) error {
	encoded, err := json.Marshal(ctx.Data)
	if err != nil {
		return errs.New(errs.KindProtocol, "dispatch", err)
	}

	wire, err := c.codecChain.Encode(encoded)
	if err != nil {
		return err
	}

	c.mu.Lock()
	adapter := c.adapter
	c.mu.Unlock()
	if adapter == nil {
		return transport.NotOpenErr("dispatch")
	}

	if err := adapter.Send(transport.Frame{Data: wire}); err != nil {
		c.mon.RecordError(err.Error())
		return err
	}

	c.mu.Lock()
	if c.sess != nil {
		c.sess.RecordSent()
	}
	c.mu.Unlock()
	c.mon.RecordSent()
	return nil
}

// enqueue persists payload in the offline queue under id, keyed by
// priority, failing with a State error if queueing is disabled. id is
// the queue's own bookkeeping key (FindByID/RemoveByID) and is never
// part of payload's wire encoding.
func (c *Client) enqueue(id string, payload any, priority queue.Priority) error {
	if !c.cfg.Queue.Enabled {
		return errs.New(errs.KindState, "send", ErrNotConnected)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return errs.New(errs.KindProtocol, "enqueue", err)
	}
	if err := c.q.Enqueue(id, encoded, priority); err != nil {
		return err
	}
	c.mon.SetQueueUsage(float64(c.q.Len()) / float64(c.cfg.Queue.MaxSize))
	return nil
}

// flushQueue drains the offline queue after a successful connect,
// dispatching each item in priority order exactly as it was originally
// given to Send/enqueue; an item that fails to dispatch is dropped
// after logging, since re-enqueueing it would leave it stuck behind the
// still-failing adapter forever.
func (c *Client) flushQueue() {
	for {
		item, ok := c.q.Dequeue()
		if !ok {
			c.mon.SetQueueUsage(0)
			return
		}
		var payload any
		if err := json.Unmarshal(item.Payload, &payload); err != nil {
			c.log.Warn("dropping malformed queued message", zap.Error(err))
			continue
		}
		if err := c.dispatchRaw(payload); err != nil {
			c.log.Warn("dropping queued message that failed to dispatch", zap.Error(err))
		}
	}
}
