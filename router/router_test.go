package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExactPatternMatches(t *testing.T) {
	r := New(nil)
	var got map[string]any
	r.On("user.created", func(m map[string]any) { got = m }, 0)

	r.Route(map[string]any{"type": "user.created", "id": 1})
	assert.Equal(t, 1, got["id"])
}

func TestSingleSegmentWildcard(t *testing.T) {
	r := New(nil)
	var fired int
	r.On("user.*", func(m map[string]any) { fired++ }, 0)

	r.Route(map[string]any{"type": "user.created"})
	r.Route(map[string]any{"type": "user.deleted"})
	r.Route(map[string]any{"type": "user.profile.updated"})

	assert.Equal(t, 2, fired)
}

func TestDoubleWildcardMatchesAnyDepth(t *testing.T) {
	r := New(nil)
	var fired int
	r.On("user.**", func(m map[string]any) { fired++ }, 0)

	r.Route(map[string]any{"type": "user"})
	r.Route(map[string]any{"type": "user.created"})
	r.Route(map[string]any{"type": "user.profile.updated"})

	assert.Equal(t, 3, fired)
}

func TestRoutesFireInDescendingPriorityOrder(t *testing.T) {
	r := New(nil)
	var order []string
	r.On("ping", func(m map[string]any) { order = append(order, "low") }, 0)
	r.On("ping", func(m map[string]any) { order = append(order, "high") }, 10)
	r.On("ping", func(m map[string]any) { order = append(order, "mid") }, 5)

	r.Route(map[string]any{"type": "ping"})
	assert.Equal(t, []string{"high", "mid", "low"}, order)
}

func TestOnceHandlerFiresExactlyOnce(t *testing.T) {
	r := New(nil)
	var fired int
	r.Once("ping", func(m map[string]any) { fired++ }, 0)

	r.Route(map[string]any{"type": "ping"})
	r.Route(map[string]any{"type": "ping"})
	assert.Equal(t, 1, fired)
}

func TestUnmatchedFallsBackToDefaultHandler(t *testing.T) {
	r := New(nil)
	var defaultFired bool
	r.SetDefault(func(m map[string]any) { defaultFired = true })
	r.On("known", func(m map[string]any) {}, 0)

	r.Route(map[string]any{"type": "unknown"})
	assert.True(t, defaultFired)
}

func TestUnsubscribedChannelMessageIsDropped(t *testing.T) {
	r := New(nil)
	var fired bool
	r.On("chat.message", func(m map[string]any) { fired = true }, 0)

	r.Route(map[string]any{"type": "chat.message", "channel": "room-1"})
	assert.False(t, fired)

	r.Subscribe("room-1")
	r.Route(map[string]any{"type": "chat.message", "channel": "room-1"})
	assert.True(t, fired)
}

func TestHandlerPanicIsIsolatedFromSubsequentHandlers(t *testing.T) {
	r := New(nil)
	var secondFired bool
	r.On("ping", func(m map[string]any) { panic("boom") }, 10)
	r.On("ping", func(m map[string]any) { secondFired = true }, 0)

	assert.NotPanics(t, func() {
		r.Route(map[string]any{"type": "ping"})
	})
	assert.True(t, secondFired)
}

func TestOffRemovesAllRoutesForPattern(t *testing.T) {
	r := New(nil)
	var fired bool
	r.On("ping", func(m map[string]any) { fired = true }, 0)
	r.Off("ping")

	r.Route(map[string]any{"type": "ping"})
	assert.False(t, fired)
}
