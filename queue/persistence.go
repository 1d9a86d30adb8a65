package queue

import "errors"

// Persistence is the external key/value collaborator the queue persists
// snapshots to (spec section 6, "Persistence interface"). Implementations
// are synchronous and best-effort: storage errors are recoverable, quota
// exhaustion is a distinguished error the queue reacts to by shrinking
// and retrying once.
type Persistence interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
}

// ErrQuotaExceeded is returned by a Persistence implementation when a
// Set call fails because the backing store is full. The queue responds
// by evicting half of its low-priority contents and retrying once.
var ErrQuotaExceeded = errors.New("queue: persistence quota exceeded")
