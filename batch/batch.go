// Package batch implements a coalescing send buffer with size/byte/time
// triggers (spec section 4.M). Its accounting fields (buffered count,
// cumulative byte estimate, a wall-clock deadline) are the inverse of
// other_examples/niradler-socketflow__socketflow.go's chunking metadata
// (IsChunk/Chunk/TotalChunks splits one large message into pieces;
// Sender coalesces many small messages into one array) — same
// accounting shape, opposite transform.
package batch

import (
	"sync"
	"time"
)

// SendFunc delivers a coalesced batch. It receives the buffered
// messages in arrival order and is responsible for wrapping them for
// the wire.
type SendFunc func(messages []any) error

// Config configures the coalescing triggers. A zero value for any
// field disables that trigger.
type Config struct {
	MaxSize  int
	MaxBytes int
	MaxWait  time.Duration
}

// EstimateSize estimates the wire byte size of a buffered message, used
// against Config.MaxBytes. Callers supply this since the wire encoding
// of `any` is not the Sender's concern.
type EstimateSize func(message any) int

// Sender coalesces Add calls into a buffer and flushes it when any
// configured trigger fires.
type Sender struct {
	mu        sync.Mutex
	cfg       Config
	send      SendFunc
	estimate  EstimateSize
	buffered  []any
	bytes     int
	firstAt   time.Time
	waitTimer *time.Timer
	destroyed bool
}

// New creates a Sender. estimate may be nil if Config.MaxBytes is zero.
func New(cfg Config, send SendFunc, estimate EstimateSize) *Sender {
	return &Sender{cfg: cfg, send: send, estimate: estimate}
}

// Add buffers message, triggering an immediate Flush if maxSize or
// maxBytes is reached, and arming the maxWait deadline on the first
// buffered message.
func (s *Sender) Add(message any) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}

	if len(s.buffered) == 0 {
		s.firstAt = time.Now()
		if s.cfg.MaxWait > 0 {
			s.waitTimer = time.AfterFunc(s.cfg.MaxWait, s.onWaitElapsed)
		}
	}

	s.buffered = append(s.buffered, message)
	if s.estimate != nil {
		s.bytes += s.estimate(message)
	}

	shouldFlush := (s.cfg.MaxSize > 0 && len(s.buffered) >= s.cfg.MaxSize) ||
		(s.cfg.MaxBytes > 0 && s.bytes >= s.cfg.MaxBytes)
	s.mu.Unlock()

	if shouldFlush {
		s.Flush()
	}
}

func (s *Sender) onWaitElapsed() {
	s.Flush()
}

// Flush sends and clears the current buffer. Idempotent: flushing an
// empty buffer is a no-op and never calls send.
func (s *Sender) Flush() error {
	s.mu.Lock()
	if len(s.buffered) == 0 {
		s.mu.Unlock()
		return nil
	}

	batch := s.buffered
	s.buffered = nil
	s.bytes = 0
	if s.waitTimer != nil {
		s.waitTimer.Stop()
		s.waitTimer = nil
	}
	send := s.send
	s.mu.Unlock()

	if send == nil {
		return nil
	}
	return send(batch)
}

// Destroy flushes any buffered messages, then drops the send function
// so subsequent Add/Flush calls are no-ops.
func (s *Sender) Destroy() error {
	err := s.Flush()

	s.mu.Lock()
	s.destroyed = true
	s.send = nil
	if s.waitTimer != nil {
		s.waitTimer.Stop()
		s.waitTimer = nil
	}
	s.mu.Unlock()

	return err
}

// Len reports the number of currently buffered messages.
func (s *Sender) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffered)
}
