// Package rpc implements request/response pairing with timeout (spec
// section 4.K), a direct generalization of handshake/handshake.go's
// Handler.Resume shape: a pending-entry lookup keyed by id replaces
// store.Get, sequential guards replace the step-numbered validation,
// and errs.Kind-tagged rejections replace the named Reason constants.
// Request returns a channel rather than a bare result struct, since a
// Go completion is idiomatically a channel, not a promise.
package rpc

import (
	"sync"
	"time"

	"github.com/risa-org/wsc/errs"
	"github.com/risa-org/wsc/idgen"
)

// SendFunc dispatches an RPC request frame over the wire. Correlator
// calls it once per Request.
type SendFunc func(id string, payload any) error

// Result is delivered on a Request's completion channel exactly once.
type Result struct {
	Data any
	Err  error
}

type pending struct {
	id        string
	completion chan Result
	timer     *time.Timer
}

// Correlator pairs outbound requests with inbound responses by id.
type Correlator struct {
	mu             sync.Mutex
	pending        map[string]*pending
	send           SendFunc
	ids            *idgen.Generator
	defaultTimeout time.Duration
}

// New creates a Correlator that dispatches requests via send.
// defaultTimeout applies when a Request call doesn't specify one.
func New(send SendFunc, defaultTimeout time.Duration) *Correlator {
	return &Correlator{
		pending:        make(map[string]*pending),
		send:           send,
		ids:            idgen.New(),
		defaultTimeout: defaultTimeout,
	}
}

// Request dispatches payload and returns its id plus a channel that
// receives exactly one Result: on a matching inbound response (via
// Resolve/Reject), on timer expiry (a Timeout error), or on Cancel/
// CancelAll. The channel is buffered so the eventual write never blocks
// on a reader that has stopped listening.
func (c *Correlator) Request(payload any, timeout time.Duration) (string, <-chan Result, error) {
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}

	id := c.ids.Next()
	if err := c.send(id, payload); err != nil {
		return "", nil, err
	}

	p := &pending{id: id, completion: make(chan Result, 1)}

	c.mu.Lock()
	p.timer = time.AfterFunc(timeout, func() { c.onTimeout(id) })
	c.pending[id] = p
	c.mu.Unlock()

	return id, p.completion, nil
}

// Resolve completes a pending request successfully with data, matched
// by the response envelope's id field. A no-op if id is unknown (the
// request already completed or was never made).
func (c *Correlator) Resolve(id string, data any) {
	c.complete(id, Result{Data: data})
}

// Reject completes a pending request with an error payload, matched by
// the response envelope's id field.
func (c *Correlator) Reject(id string, err error) {
	c.complete(id, Result{Err: err})
}

func (c *Correlator) complete(id string, result Result) {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		p.timer.Stop()
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if ok {
		p.completion <- result
	}
}

// Cancel rejects a pending request with a generic error built from
// reason, without waiting for a timer or a response.
func (c *Correlator) Cancel(id string, reason string) {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		p.timer.Stop()
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if ok {
		p.completion <- Result{Err: errs.New(errs.KindProtocol, "rpc-cancel", errorString(reason))}
	}
}

// CancelAll rejects every pending request with the same reason, called
// by the Facade on session loss.
func (c *Correlator) CancelAll(reason string) {
	c.mu.Lock()
	pendingCopy := make([]*pending, 0, len(c.pending))
	for id, p := range c.pending {
		p.timer.Stop()
		pendingCopy = append(pendingCopy, p)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	for _, p := range pendingCopy {
		p.completion <- Result{Err: errs.New(errs.KindConnection, "rpc-cancel-all", errorString(reason))}
	}
}

func (c *Correlator) onTimeout(id string) {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if ok {
		p.completion <- Result{Err: errs.New(errs.KindTimeout, "rpc", nil)}
	}
}

// Pending reports the number of outstanding requests.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// errorString is a minimal error wrapper so Cancel/CancelAll's reason
// strings carry through errs.Error.Err without importing errors.New at
// every call site.
type errorString string

func (e errorString) Error() string { return string(e) }
