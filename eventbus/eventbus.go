// Package eventbus implements the runtime's typed publish/subscribe core
// (component A): a string-keyed map of ordered handler lists, emitted to
// in registration order, with once-semantics and max-listener warnings.
package eventbus

import (
	"reflect"
	"sync"

	"go.uber.org/zap"
)

// Handler receives the data emitted for an event.
type Handler func(data any)

type handlerEntry struct {
	id      uint64
	fn      Handler
	once    bool
	removed bool
}

const defaultMaxListeners = 10

// Bus is a typed event emitter. The zero value is not usable; use New.
type Bus struct {
	mu           sync.Mutex
	handlers     map[string][]*handlerEntry
	maxListeners int
	warned       map[string]bool
	nextID       uint64
	emitting     map[string]int // re-entrancy depth per event, for dirty-snapshot tracking
	dirty        map[string]bool
	log          *zap.Logger
}

// New creates an empty bus. A nil logger is replaced with zap.NewNop(),
// matching the rest of the runtime's "silent unless asked" logging policy.
func New(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		handlers:     make(map[string][]*handlerEntry),
		maxListeners: defaultMaxListeners,
		warned:       make(map[string]bool),
		emitting:     make(map[string]int),
		dirty:        make(map[string]bool),
		log:          log,
	}
}

// SetMaxListeners changes the warning threshold for all events.
func (b *Bus) SetMaxListeners(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maxListeners = n
}

// On registers fn to be invoked every time event is emitted.
func (b *Bus) On(event string, fn Handler) {
	b.add(event, fn, false)
}

// Once registers fn to be invoked at most once. The handler is removed
// from the registry before user code runs, so a panic inside fn still
// results in exactly one invocation ever.
func (b *Bus) Once(event string, fn Handler) {
	b.add(event, fn, true)
}

func (b *Bus) add(event string, fn Handler, once bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := &handlerEntry{id: b.nextID, fn: fn, once: once}
	b.nextID++
	b.handlers[event] = append(b.handlers[event], entry)
	if b.emitting[event] > 0 {
		b.dirty[event] = true
	}

	if n := len(b.handlers[event]); n > b.maxListeners && !b.warned[event] {
		b.warned[event] = true
		b.log.Warn("eventbus: listener count exceeds max",
			zap.String("event", event), zap.Int("count", n), zap.Int("max", b.maxListeners))
	}
}

// Off removes a specific handler from event, or every handler for event
// when fn is nil.
func (b *Bus) Off(event string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if fn == nil {
		delete(b.handlers, event)
		delete(b.warned, event)
		return
	}

	entries := b.handlers[event]
	kept := entries[:0:0]
	target := handlerPtr(fn)
	for _, e := range entries {
		if handlerPtr(e.fn) == target {
			if b.emitting[event] > 0 {
				b.dirty[event] = true
			}
			continue
		}
		kept = append(kept, e)
	}
	b.setOrDelete(event, kept)
}

// handlerPtr gives a comparable identity for a func value via its code
// pointer. Go funcs are not comparable with ==, so Off(event, fn) matches
// by reflect.Value.Pointer() — the standard workaround, with the usual
// caveat that two distinct closures over the same func literal share a
// pointer. Callers that need precise removal should keep the exact
// Handler value they registered rather than passing a fresh closure.
func handlerPtr(h Handler) uintptr {
	return reflect.ValueOf(h).Pointer()
}

// RemoveAll clears every event and all warning state.
func (b *Bus) RemoveAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[string][]*handlerEntry)
	b.warned = make(map[string]bool)
}

// Emit invokes every live handler registered for event, in registration
// order, passing data. A handler that panics is logged and does not stop
// delivery to subsequent handlers.
func (b *Bus) Emit(event string, data any) {
	b.mu.Lock()
	entries := b.handlers[event]
	if len(entries) == 0 {
		b.mu.Unlock()
		return
	}
	// Deliver from a copy of the handler list, so On/Off calls made by a
	// handler do not change which handlers this emit visits; the only
	// entries skipped are once-handlers already consumed by this or a
	// nested emit. The copy is made on every emit: one slice copy per
	// emit, not per handler.
	snapshot := append([]*handlerEntry(nil), entries...)
	b.emitting[event]++
	b.mu.Unlock()

	for _, e := range snapshot {
		if e.removed {
			continue
		}
		if e.once {
			b.mu.Lock()
			e.removed = true
			b.dirty[event] = true
			b.mu.Unlock()
		}
		b.invoke(event, e, data)
	}

	b.mu.Lock()
	b.emitting[event]--
	if b.emitting[event] == 0 && b.dirty[event] {
		b.dirty[event] = false
		b.compact(event)
	}
	b.mu.Unlock()
}

func (b *Bus) invoke(event string, e *handlerEntry, data any) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("eventbus: handler panicked", zap.String("event", event), zap.Any("recover", r))
		}
	}()
	e.fn(data)
}

// compact drops removed entries and deletes the event key once empty.
// Must be called with b.mu held.
func (b *Bus) compact(event string) {
	entries := b.handlers[event]
	kept := entries[:0:0]
	for _, e := range entries {
		if !e.removed {
			kept = append(kept, e)
		}
	}
	b.setOrDelete(event, kept)
}

// setOrDelete must be called with b.mu held.
func (b *Bus) setOrDelete(event string, kept []*handlerEntry) {
	if len(kept) == 0 {
		delete(b.handlers, event)
		delete(b.warned, event)
		return
	}
	b.handlers[event] = kept
}

// ListenerCount returns the number of live handlers registered for event.
func (b *Bus) ListenerCount(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.handlers[event] {
		if !e.removed {
			n++
		}
	}
	return n
}

// HasListeners reports whether event has at least one live handler.
func (b *Bus) HasListeners(event string) bool {
	return b.ListenerCount(event) > 0
}

// EventNames returns the set of events with at least one live handler.
func (b *Bus) EventNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.handlers))
	for name, entries := range b.handlers {
		for _, e := range entries {
			if !e.removed {
				names = append(names, name)
				break
			}
		}
	}
	return names
}
