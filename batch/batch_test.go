package batch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlushesWhenMaxSizeReached(t *testing.T) {
	var mu sync.Mutex
	var flushed [][]any
	s := New(Config{MaxSize: 3}, func(messages []any) error {
		mu.Lock()
		flushed = append(flushed, messages)
		mu.Unlock()
		return nil
	}, nil)

	s.Add("a")
	s.Add("b")
	s.Add("c")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, flushed, 1)
	assert.Equal(t, []any{"a", "b", "c"}, flushed[0])
	assert.Equal(t, 0, s.Len())
}

func TestFlushesWhenMaxBytesReached(t *testing.T) {
	var flushed [][]any
	s := New(Config{MaxBytes: 5}, func(messages []any) error {
		flushed = append(flushed, messages)
		return nil
	}, func(m any) int { return len(m.(string)) })

	s.Add("abc")
	require.Empty(t, flushed)
	s.Add("def")
	require.Len(t, flushed, 1)
}

func TestFlushesAfterMaxWaitElapses(t *testing.T) {
	flushed := make(chan []any, 1)
	s := New(Config{MaxWait: 10 * time.Millisecond}, func(messages []any) error {
		flushed <- messages
		return nil
	}, nil)

	s.Add("only")

	select {
	case got := <-flushed:
		assert.Equal(t, []any{"only"}, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for time-triggered flush")
	}
}

func TestExplicitFlushIsIdempotentOnEmptyBuffer(t *testing.T) {
	calls := 0
	s := New(Config{}, func(messages []any) error {
		calls++
		return nil
	}, nil)

	require.NoError(t, s.Flush())
	require.NoError(t, s.Flush())
	assert.Equal(t, 0, calls)
}

func TestDestroyFlushesThenDropsSendFunc(t *testing.T) {
	var flushed [][]any
	s := New(Config{}, func(messages []any) error {
		flushed = append(flushed, messages)
		return nil
	}, nil)

	s.Add("pending")
	require.NoError(t, s.Destroy())
	require.Len(t, flushed, 1)

	s.Add("after-destroy")
	assert.Equal(t, 0, s.Len())
	require.NoError(t, s.Flush())
	assert.Len(t, flushed, 1, "no further sends after destroy")
}
