// Package router implements pattern- and channel-based fan-out of
// inbound messages (spec section 4.L). Route storage and
// priority/once semantics mirror session/sequence.go's "single source
// of truth, stably sorted" framing (there applied to sequence numbers,
// here to routes); handler panic isolation mirrors eventbus.Bus.Emit's
// recover-and-continue discipline. Segment matching (`.` separator,
// `*` one segment, `**` any number of segments) is a small recursive
// matcher over strings.Split — no glob library appears anywhere in the
// retrieval pack, so this one piece is stdlib by necessity (see
// DESIGN.md).
package router

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Handler processes a message that matched a route or the default.
type Handler func(message map[string]any)

type entry struct {
	id       uint64
	pattern  string
	handler  Handler
	priority int
	once     bool
	removed  bool
}

// Router fans inbound messages out to pattern-matched handlers.
type Router struct {
	mu            sync.Mutex
	entries       []*entry
	nextID        uint64
	defaultHandler Handler
	subscriptions map[string]struct{}
	log           *zap.Logger
}

// New creates an empty Router. A nil logger is replaced with zap.NewNop().
func New(log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		subscriptions: make(map[string]struct{}),
		log:           log,
	}
}

// On registers handler against pattern, invoked every time a message's
// type matches. Routes run in descending priority order; ties resolve
// to insertion order (sort.SliceStable preserves that).
func (r *Router) On(pattern string, handler Handler, priority int) {
	r.add(pattern, handler, priority, false)
}

// Once registers handler to fire at most once, then self-remove.
func (r *Router) Once(pattern string, handler Handler, priority int) {
	r.add(pattern, handler, priority, true)
}

func (r *Router) add(pattern string, handler Handler, priority int, once bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := &entry{id: r.nextID, pattern: pattern, handler: handler, priority: priority, once: once}
	r.nextID++
	r.entries = append(r.entries, e)
	sort.SliceStable(r.entries, func(i, j int) bool {
		return r.entries[i].priority > r.entries[j].priority
	})
}

// Off removes every route registered against pattern.
func (r *Router) Off(pattern string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.entries[:0:0]
	for _, e := range r.entries {
		if e.pattern != pattern {
			kept = append(kept, e)
		}
	}
	r.entries = kept
}

// SetDefault installs the handler invoked when no route matches.
func (r *Router) SetDefault(handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultHandler = handler
}

// Subscribe marks channel as subscribed, gating delivery of messages
// bearing that channel.
func (r *Router) Subscribe(channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscriptions[channel] = struct{}{}
}

// Unsubscribe removes channel's subscription.
func (r *Router) Unsubscribe(channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subscriptions, channel)
}

// Route classifies message by its "type" (and optional "channel") field
// and dispatches to every matching route in priority order. If channel
// is present and not subscribed, routing is skipped entirely (the
// message is still delivered as a generic event by the caller — Route
// only owns pattern dispatch). If nothing matches and a default
// handler is installed, it runs instead. A handler's panic is isolated:
// logged, and delivery continues to the remaining handlers.
func (r *Router) Route(message map[string]any) {
	msgType, _ := message["type"].(string)

	if channel, ok := message["channel"].(string); ok && channel != "" {
		r.mu.Lock()
		_, subscribed := r.subscriptions[channel]
		r.mu.Unlock()
		if !subscribed {
			return
		}
	}

	r.mu.Lock()
	var matched []*entry
	for _, e := range r.entries {
		if !e.removed && matches(e.pattern, msgType) {
			matched = append(matched, e)
		}
	}
	var fallback Handler
	if len(matched) == 0 {
		fallback = r.defaultHandler
	}
	r.mu.Unlock()

	if len(matched) == 0 {
		if fallback != nil {
			r.invoke(fallback, message)
		}
		return
	}

	var toRemove []uint64
	for _, e := range matched {
		r.invoke(e.handler, message)
		if e.once {
			toRemove = append(toRemove, e.id)
		}
	}

	if len(toRemove) > 0 {
		r.mu.Lock()
		for _, id := range toRemove {
			for _, e := range r.entries {
				if e.id == id {
					e.removed = true
				}
			}
		}
		kept := r.entries[:0:0]
		for _, e := range r.entries {
			if !e.removed {
				kept = append(kept, e)
			}
		}
		r.entries = kept
		r.mu.Unlock()
	}
}

func (r *Router) invoke(handler Handler, message map[string]any) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("router: handler panicked", zap.Any("recover", rec))
		}
	}()
	handler(message)
}

// matches reports whether msgType satisfies pattern, where `.` separates
// segments, `*` matches exactly one segment, and `**` matches any
// number of remaining segments (including zero).
func matches(pattern, msgType string) bool {
	return matchSegments(strings.Split(pattern, "."), strings.Split(msgType, "."))
}

func matchSegments(pattern, input []string) bool {
	if len(pattern) == 0 {
		return len(input) == 0
	}

	head := pattern[0]
	if head == "**" {
		if matchSegments(pattern[1:], input) {
			return true
		}
		if len(input) == 0 {
			return false
		}
		return matchSegments(pattern, input[1:])
	}

	if len(input) == 0 {
		return false
	}
	if head != "*" && head != input[0] {
		return false
	}
	return matchSegments(pattern[1:], input[1:])
}
