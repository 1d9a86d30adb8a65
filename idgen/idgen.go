// Package idgen implements the runtime's monotonic, collision-resistant
// identifier generator (component B): message ids, ACK ids, and RPC
// correlation ids all come from here.
//
// The session id used by session.Session is a separate, deliberately
// unsortable random hex string (session/session.go's generateID,
// crypto/rand based) — session identity should not leak creation order.
// Correlation ids benefit from the opposite property: a human staring at
// logs wants ids that sort the way events happened, so this generator
// prefixes a millisecond timestamp ahead of a random suffix.
package idgen

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Generator produces ids that are monotonic within a single process: two
// ids requested in the same millisecond still sort correctly because a
// per-millisecond counter is folded into the suffix.
type Generator struct {
	mu       sync.Mutex
	lastMs   int64
	counter  uint32
	nowFn    func() time.Time
	randUUID func() uuid.UUID
}

// New creates a Generator using the real clock and a real UUID source.
func New() *Generator {
	return &Generator{nowFn: time.Now, randUUID: uuid.New}
}

// Next returns a new identifier, e.g. "1893456000123-000001-9c2f1a3e".
func (g *Generator) Next() string {
	g.mu.Lock()
	ms := g.nowFn().UnixMilli()
	if ms == g.lastMs {
		g.counter++
	} else {
		g.lastMs = ms
		g.counter = 0
	}
	counter := g.counter
	g.mu.Unlock()

	u := g.randUUID()
	return fmt.Sprintf("%d-%06d-%s", ms, counter, shortUUID(u))
}

// shortUUID returns the first 4 bytes of the UUID, hex encoded — enough
// entropy to disambiguate two generators racing in the same millisecond
// across processes, without bloating every id with a full 36-char UUID.
func shortUUID(u uuid.UUID) string {
	b := u[:4]
	var buf [8]byte
	const hex = "0123456789abcdef"
	for i, v := range b {
		buf[i*2] = hex[v>>4]
		buf[i*2+1] = hex[v&0x0f]
	}
	return string(buf[:])
}
