// Package ack implements at-least-once delivery with retry and timeout
// (spec section 4.J), adapted from two teacher pieces: the
// only-buffer-on-confirmed-send discipline of transport/sender/sender.go
// ("Sent() is only recorded if the transport send succeeds") and the
// outbound-retry-buffer idea of session/sequence.go's outboundBuffer,
// generalized from a fixed-capacity ring keyed by sequence number to a
// map keyed by message id, each entry owning exactly one timer — the
// same "one owning field, cleared before rearm" discipline
// transport/tcp/tcp.go's closeOnce enforces for close-exactly-once.
package ack

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/risa-org/wsc/errs"
	"github.com/risa-org/wsc/idgen"
)

// SendFunc delivers payload over the wire. Tracker calls it for the
// initial send and every retry.
type SendFunc func(id string, payload any) error

// Options configures a single Send call.
type Options struct {
	Timeout time.Duration
	Retries int
}

// Stats summarizes the tracker's current outstanding work.
type Stats struct {
	Pending      int
	TotalRetries int
	OldestAge    time.Duration
}

type pending struct {
	id        string
	payload   any
	options   Options
	enqueuedAt time.Time
	retries   int
	onAck     func(ackData any)
	onTimeout func(err error)
	timer     *time.Timer
}

// Tracker assigns ids to reliable sends, arms a timeout per entry, and
// retries on expiry up to a configured limit.
type Tracker struct {
	mu           sync.Mutex
	pending      map[string]*pending
	totalRetries int
	send         SendFunc
	ids          *idgen.Generator
	defaultTimeout time.Duration
	log          *zap.Logger
}

// New creates a Tracker that delivers via send. defaultTimeout is used
// when an individual Send call doesn't specify one.
func New(send SendFunc, defaultTimeout time.Duration, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		pending:        make(map[string]*pending),
		send:           send,
		ids:            idgen.New(),
		defaultTimeout: defaultTimeout,
		log:            log,
	}
}

// Send assigns an id, records a pending entry, and arms a timeout timer.
// onAck fires once on receipt of the paired ACK; onTimeout fires once
// after retries are exhausted.
func (t *Tracker) Send(payload any, opts Options, onAck func(ackData any), onTimeout func(err error)) (string, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = t.defaultTimeout
	}

	id := t.ids.Next()
	if err := t.send(id, payload); err != nil {
		return "", err
	}

	p := &pending{
		id:         id,
		payload:    payload,
		options:    opts,
		enqueuedAt: time.Now(),
		onAck:      onAck,
		onTimeout:  onTimeout,
	}

	t.mu.Lock()
	p.timer = time.AfterFunc(opts.Timeout, func() { t.onTimerFire(id) })
	t.pending[id] = p
	t.mu.Unlock()

	return id, nil
}

// Ack completes a pending entry by id: the timer is cancelled, the entry
// removed, and onAck invoked with the paired ACK data.
func (t *Tracker) Ack(id string, ackData any) {
	t.mu.Lock()
	p, ok := t.pending[id]
	if ok {
		p.timer.Stop()
		delete(t.pending, id)
	}
	t.mu.Unlock()

	if ok && p.onAck != nil {
		p.onAck(ackData)
	}
}

// Cancel removes a pending entry without invoking either callback.
func (t *Tracker) Cancel(id string) {
	t.mu.Lock()
	if p, ok := t.pending[id]; ok {
		p.timer.Stop()
		delete(t.pending, id)
	}
	t.mu.Unlock()
}

// CancelAll removes every pending entry without invoking callbacks,
// called on session loss.
func (t *Tracker) CancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, p := range t.pending {
		p.timer.Stop()
		delete(t.pending, id)
	}
}

// onTimerFire runs on the timer goroutine: it either re-sends and rearms,
// or gives up and invokes onTimeout, per spec section 4.J.
func (t *Tracker) onTimerFire(id string) {
	t.mu.Lock()
	p, ok := t.pending[id]
	if !ok {
		t.mu.Unlock()
		return
	}

	if p.retries < p.options.Retries {
		p.retries++
		t.totalRetries++
		t.mu.Unlock()

		if err := t.send(id, p.payload); err != nil {
			t.log.Warn("ack retry send failed", zap.String("id", id), zap.Error(err))
		}

		t.mu.Lock()
		if _, stillPending := t.pending[id]; stillPending {
			p.timer = time.AfterFunc(p.options.Timeout, func() { t.onTimerFire(id) })
		}
		t.mu.Unlock()
		return
	}

	delete(t.pending, id)
	t.mu.Unlock()

	if p.onTimeout != nil {
		p.onTimeout(errs.New(errs.KindTimeout, "ack", nil))
	}
}

// GetStats reports the tracker's current outstanding work.
func (t *Tracker) GetStats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := Stats{Pending: len(t.pending), TotalRetries: t.totalRetries}
	var oldest time.Time
	for _, p := range t.pending {
		if oldest.IsZero() || p.enqueuedAt.Before(oldest) {
			oldest = p.enqueuedAt
		}
	}
	if !oldest.IsZero() {
		stats.OldestAge = time.Since(oldest)
	}
	return stats
}
