// Package session holds the runtime's Session value (spec section 3): the
// conceptual lifespan from a successful open to its terminal close, plus
// the HMAC-signing primitive (TokenIssuer, see token.go) reused elsewhere
// in the module to authenticate persisted state.
//
// Session itself is a new type: the teacher's session.Session (see
// _examples/risa-org-scl/session/session.go) modeled a server-side,
// TTL-gated, resumable session with a Policy. This spec's Session has no
// TTL policy — the client keeps trying to reconnect until told
// otherwise — so what's carried over is the identity-generation idiom
// (generateID, crypto/rand-backed) and the "counters live on the
// session, survive reconnect, reset on full teardown" shape; the Policy
// type and IsExpired/Transition methods are not applicable to a client
// runtime that reconnects until told otherwise and are documented as
// such in DESIGN.md rather than carried over unchanged.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Session tracks one connected lifetime's identity and running counters
// (spec section 3). It is recreated by the Facade when a brand-new socket
// is opened after a full disconnect; counters persist across in-session
// reconnects (a resume, not a fresh session).
type Session struct {
	ID               string
	StartedAt        time.Time
	MessagesSent     uint64
	MessagesReceived uint64
	Reconnects       int
	CurrentAttempt   int
	AvgLatency       time.Duration
	LastHeartbeat    time.Time
	QueueDepth       int
}

// avgLatencyWeight is the exponential moving average smoothing factor
// applied to each new heartbeat round-trip sample.
const avgLatencyWeight = 0.2

// New creates a fresh session with a random, unguessable id.
func New() (*Session, error) {
	id, err := generateID()
	if err != nil {
		return nil, err
	}
	return &Session{ID: id, StartedAt: time.Now()}, nil
}

// RecordSent increments the sent counter.
func (s *Session) RecordSent() { s.MessagesSent++ }

// RecordReceived increments the received counter.
func (s *Session) RecordReceived() { s.MessagesReceived++ }

// RecordHeartbeat folds a new round-trip sample into the moving average
// and updates the last-heartbeat timestamp.
func (s *Session) RecordHeartbeat(rtt time.Duration) {
	s.LastHeartbeat = time.Now()
	if s.AvgLatency == 0 {
		s.AvgLatency = rtt
		return
	}
	s.AvgLatency = time.Duration(float64(s.AvgLatency)*(1-avgLatencyWeight) + float64(rtt)*avgLatencyWeight)
}

// BeginReconnect increments the reconnect attempt counter, called each
// time the reconnect controller starts a new attempt.
func (s *Session) BeginReconnect() { s.CurrentAttempt++ }

// Resumed marks a successful reconnect: the attempt counter resets and
// the lifetime reconnect count increments, but every other counter
// (messages sent/received, average latency) survives untouched.
func (s *Session) Resumed() {
	s.Reconnects++
	s.CurrentAttempt = 0
}

// generateID creates a cryptographically random 32-character hex id,
// unchanged from the teacher's session/session.go generateID.
func generateID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
