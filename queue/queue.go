// Package queue implements the priority-ordered, bounded, optionally
// persistent outbox (component G).
//
// The overflow-eviction rule ("drop the lowest-band oldest item before
// enqueueing the new one") is a direct generalization of
// session/sequence.go's outboundBuffer.store, which evicts index 0
// unconditionally once the fixed-size buffer is full; here the eviction
// target is computed across three bands instead of always being index 0.
package queue

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/risa-org/wsc/errs"
)

// Priority is one of three outbound bands, high sorting before normal
// before low.
type Priority int

const (
	High Priority = iota
	Normal
	Low
)

// Item is a single queued message (spec section 3, QueueItem).
type Item struct {
	ID         string
	Payload    []byte
	Priority   Priority
	EnqueuedAt time.Time
	Retries    int
}

func (it Item) size() int { return len(it.ID) + len(it.Payload) + 24 }

// Stats summarizes queue occupancy for the performance monitor.
type Stats struct {
	Count      int
	Bytes      int
	HighCount  int
	NormalCount int
	LowCount   int
}

// Queue is a priority-ordered bounded outbox.
type Queue struct {
	mu         sync.Mutex
	items      []Item
	maxSize    int
	maxItemLen int
	isSorted   bool
	bytes      int

	persist    Persistence
	storageKey string
}

// New creates a Queue with the given capacity (item count) and per-message
// byte cap. maxSize <= 0 means unbounded.
func New(maxSize, maxMessageLen int) *Queue {
	return &Queue{maxSize: maxSize, maxItemLen: maxMessageLen, isSorted: true}
}

// SetLimits updates the capacity and per-message byte cap a running
// Queue enforces on future Enqueue calls (spec section 3, "Config trees
// ... take effect on the next relevant scheduling point" — here, the
// next Enqueue). Items already queued are left as-is even if they now
// exceed maxSize; the next Enqueue past the new limit evicts as usual.
func (q *Queue) SetLimits(maxSize, maxMessageLen int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.maxSize = maxSize
	q.maxItemLen = maxMessageLen
}

// AttachPersistence wires an external key/value store under key. Existing
// on-disk state, if any, must be loaded separately via Restore.
func (q *Queue) AttachPersistence(p Persistence, key string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.persist = p
	q.storageKey = key
}

// Enqueue adds payload at the given priority. Returns a MessageSize error
// if payload exceeds the configured per-message cap; on capacity overflow
// the oldest lowest-band item is evicted first (invariant iii in spec
// section 4.G), even when the incoming item is itself the lowest band
// present.
func (q *Queue) Enqueue(id string, payload []byte, priority Priority) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.maxItemLen > 0 && len(payload) > q.maxItemLen {
		return errs.New(errs.KindMessageSize, "queue.Enqueue", nil)
	}

	item := Item{ID: id, Payload: payload, Priority: priority, EnqueuedAt: time.Now()}

	if q.maxSize > 0 && len(q.items) >= q.maxSize {
		q.evictLowestBandOldest()
	}

	q.items = append(q.items, item)
	q.bytes += item.size()
	q.isSorted = false

	q.persistLocked()
	return nil
}

// evictLowestBandOldest drops the oldest item in the lowest-priority band
// present in the queue. Must be called with q.mu held.
func (q *Queue) evictLowestBandOldest() {
	if len(q.items) == 0 {
		return
	}
	q.ensureSortedLocked()
	// Sorted order is High..Low, FIFO within a band: the lowest band
	// present forms a contiguous run at the end, sorted oldest-first, so
	// its first element is the oldest item in that band.
	lowestBand := q.items[len(q.items)-1].Priority
	victim := len(q.items) - 1
	for i, it := range q.items {
		if it.Priority == lowestBand {
			victim = i
			break
		}
	}
	q.bytes -= q.items[victim].size()
	q.items = append(q.items[:victim], q.items[victim+1:]...)
}

// ensureSortedLocked restores band+FIFO order if isSorted is false. Must
// be called with q.mu held. This is the "isSorted flag" strategy from
// spec section 4.G: O(n log n) once per dirtied read, O(1) thereafter.
func (q *Queue) ensureSortedLocked() {
	if q.isSorted {
		return
	}
	sort.SliceStable(q.items, func(i, j int) bool {
		if q.items[i].Priority != q.items[j].Priority {
			return q.items[i].Priority < q.items[j].Priority
		}
		return q.items[i].EnqueuedAt.Before(q.items[j].EnqueuedAt)
	})
	q.isSorted = true
}

// Dequeue removes and returns the highest-band, oldest item.
func (q *Queue) Dequeue() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ensureSortedLocked()
	if len(q.items) == 0 {
		return Item{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	q.bytes -= item.size()
	q.persistLocked()
	return item, true
}

// Peek returns the highest-band, oldest item without removing it.
func (q *Queue) Peek() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ensureSortedLocked()
	if len(q.items) == 0 {
		return Item{}, false
	}
	return q.items[0], true
}

// DequeueBatch removes and returns up to n items, in priority order.
func (q *Queue) DequeueBatch(n int) []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ensureSortedLocked()
	if n > len(q.items) {
		n = len(q.items)
	}
	batch := append([]Item(nil), q.items[:n]...)
	for _, it := range batch {
		q.bytes -= it.size()
	}
	q.items = q.items[n:]
	q.persistLocked()
	return batch
}

// SendFunc delivers a single item; flush stops and re-enqueues on error.
type SendFunc func(Item) error

// Flush dequeues and sends one item at a time via send. On send failure
// the item is re-enqueued with Retries+1 at its original priority and
// flush stops, returning the count of items successfully delivered.
func (q *Queue) Flush(send SendFunc) (int, error) {
	delivered := 0
	for {
		item, ok := q.Dequeue()
		if !ok {
			return delivered, nil
		}
		if err := send(item); err != nil {
			item.Retries++
			q.mu.Lock()
			q.items = append(q.items, item)
			q.bytes += item.size()
			q.isSorted = false
			q.persistLocked()
			q.mu.Unlock()
			return delivered, err
		}
		delivered++
	}
}

// Clear removes every queued item.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.bytes = 0
	q.isSorted = true
	q.persistLocked()
}

// FindByID returns the item with the given id, if present.
func (q *Queue) FindByID(id string) (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range q.items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// RemoveByID removes the item with the given id, if present, and reports
// whether anything was removed.
func (q *Queue) RemoveByID(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, it := range q.items {
		if it.ID == id {
			q.bytes -= it.size()
			q.items = append(q.items[:i], q.items[i+1:]...)
			q.persistLocked()
			return true
		}
	}
	return false
}

// GetAll returns every queued item in priority order, without removing
// them.
func (q *Queue) GetAll() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ensureSortedLocked()
	return append([]Item(nil), q.items...)
}

// Len reports the current item count.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// GetStats reports current occupancy broken down by band.
func (q *Queue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := Stats{Count: len(q.items), Bytes: q.bytes}
	for _, it := range q.items {
		switch it.Priority {
		case High:
			st.HighCount++
		case Normal:
			st.NormalCount++
		case Low:
			st.LowCount++
		}
	}
	return st
}

// wireItem is the JSON-serializable form of an Item, since time.Time and
// []byte already round-trip cleanly through encoding/json.
type wireItem struct {
	ID         string    `json:"id"`
	Payload    []byte    `json:"payload"`
	Priority   Priority  `json:"priority"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Retries    int       `json:"retries"`
}

// snapshotExpiry bounds how long a persisted queue snapshot is trusted;
// entries older than this are dropped on restore (spec section 4.G).
const snapshotExpiry = 24 * time.Hour

func toWire(items []Item) []wireItem {
	out := make([]wireItem, len(items))
	for i, it := range items {
		out[i] = wireItem{ID: it.ID, Payload: it.Payload, Priority: it.Priority, EnqueuedAt: it.EnqueuedAt, Retries: it.Retries}
	}
	return out
}

// persistLocked serializes the queue and writes it to the attached
// store. Storage errors are swallowed here (per spec: "storage
// errors are logged; ... continue in memory-only mode"); the caller is
// expected to have a logger wired at a higher layer (the Facade) that
// observes failures via PersistNow's returned error when it chooses to
// call that instead. Must be called with q.mu held.
func (q *Queue) persistLocked() {
	if q.persist == nil {
		return
	}
	_ = q.persistNowLocked()
}

// PersistNow forces an immediate write and returns any storage error,
// for callers (the Facade) that want to observe and log failures. With
// no store attached (never attached, or dropped after a failed retry)
// it returns a State error.
func (q *Queue) PersistNow() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.persist == nil {
		return errs.New(errs.KindState, "queue.PersistNow", nil)
	}
	return q.persistNowLocked()
}

func (q *Queue) persistNowLocked() error {
	data, err := json.Marshal(toWire(q.items))
	if err != nil {
		return err
	}
	if err := q.persist.Set(q.storageKey, string(data)); err != nil {
		if err == ErrQuotaExceeded {
			q.evictHalfOfLowBandLocked()
			data, marshalErr := json.Marshal(toWire(q.items))
			if marshalErr != nil {
				return marshalErr
			}
			if retryErr := q.persist.Set(q.storageKey, string(data)); retryErr != nil {
				q.persist = nil // give up for the remainder of the session, memory-only from here
				return retryErr
			}
			return nil
		}
		return err
	}
	return nil
}

// evictHalfOfLowBandLocked drops half of the low-priority items to shrink
// the snapshot on quota exhaustion, per spec section 4.G. Must be called
// with q.mu held.
func (q *Queue) evictHalfOfLowBandLocked() {
	q.ensureSortedLocked()
	var lowIdx []int
	for i, it := range q.items {
		if it.Priority == Low {
			lowIdx = append(lowIdx, i)
		}
	}
	drop := len(lowIdx) / 2
	if drop == 0 {
		return
	}
	toDrop := make(map[int]bool, drop)
	for _, idx := range lowIdx[len(lowIdx)-drop:] {
		toDrop[idx] = true
	}
	kept := q.items[:0:0]
	for i, it := range q.items {
		if toDrop[i] {
			q.bytes -= it.size()
			continue
		}
		kept = append(kept, it)
	}
	q.items = kept
}

// Restore loads a previously persisted snapshot from the attached store.
// Entries older than snapshotExpiry are dropped. A missing or corrupt
// snapshot is not an error: the queue simply starts empty.
func (q *Queue) Restore() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.persist == nil {
		return nil
	}
	data, ok, err := q.persist.Get(q.storageKey)
	if err != nil || !ok {
		return err
	}
	var wire []wireItem
	if err := json.Unmarshal([]byte(data), &wire); err != nil {
		return nil // corrupt snapshot: start empty rather than fail restore
	}
	cutoff := time.Now().Add(-snapshotExpiry)
	q.items = q.items[:0]
	q.bytes = 0
	for _, wi := range wire {
		if wi.EnqueuedAt.Before(cutoff) {
			continue
		}
		it := Item{ID: wi.ID, Payload: wi.Payload, Priority: wi.Priority, EnqueuedAt: wi.EnqueuedAt, Retries: wi.Retries}
		q.items = append(q.items, it)
		q.bytes += it.size()
	}
	q.isSorted = false
	return nil
}
