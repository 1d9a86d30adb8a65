package queue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDequeueOrdersByPriorityThenFIFO(t *testing.T) {
	q := New(0, 0)
	require.NoError(t, q.Enqueue("a", []byte("1"), Normal))
	require.NoError(t, q.Enqueue("b", []byte("2"), Low))
	require.NoError(t, q.Enqueue("c", []byte("3"), High))
	require.NoError(t, q.Enqueue("d", []byte("4"), Normal))

	var order []string
	for {
		item, ok := q.Dequeue()
		if !ok {
			break
		}
		order = append(order, item.ID)
	}

	assert.Equal(t, []string{"c", "a", "d", "b"}, order)
}

func TestFIFOWithinSameBand(t *testing.T) {
	q := New(0, 0)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(id, nil, Normal))
	}

	var order []string
	for {
		item, ok := q.Dequeue()
		if !ok {
			break
		}
		order = append(order, item.ID)
	}

	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestOverflowEvictsOldestLowBandItem(t *testing.T) {
	q := New(2, 0)
	require.NoError(t, q.Enqueue("a", nil, Low))
	require.NoError(t, q.Enqueue("b", nil, Normal))
	require.NoError(t, q.Enqueue("c", nil, High)) // should evict "a"

	ids := itemIDs(q.GetAll())
	assert.ElementsMatch(t, []string{"b", "c"}, ids)
}

func TestOverflowAllHighEvictsOldestHigh(t *testing.T) {
	q := New(2, 0)
	require.NoError(t, q.Enqueue("a", nil, High))
	require.NoError(t, q.Enqueue("b", nil, High))
	require.NoError(t, q.Enqueue("c", nil, High)) // all high: oldest high evicted

	ids := itemIDs(q.GetAll())
	assert.ElementsMatch(t, []string{"b", "c"}, ids)
}

func TestOverSizedMessageRejected(t *testing.T) {
	q := New(0, 4)
	err := q.Enqueue("a", []byte("too long"), Normal)
	require.Error(t, err)
}

func TestFlushStopsAndRequeuesOnSendFailure(t *testing.T) {
	q := New(0, 0)
	require.NoError(t, q.Enqueue("a", nil, High))
	require.NoError(t, q.Enqueue("b", nil, High))
	require.NoError(t, q.Enqueue("c", nil, High))

	calls := 0
	delivered, err := q.Flush(func(it Item) error {
		calls++
		if it.ID == "b" {
			return errors.New("boom")
		}
		return nil
	})

	require.Error(t, err)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 2, calls)

	remaining := q.GetAll()
	require.Len(t, remaining, 2)
	assert.Equal(t, "b", remaining[0].ID)
	assert.Equal(t, 1, remaining[0].Retries)
}

func TestFindAndRemoveByID(t *testing.T) {
	q := New(0, 0)
	require.NoError(t, q.Enqueue("a", []byte("x"), Normal))

	item, ok := q.FindByID("a")
	require.True(t, ok)
	assert.Equal(t, []byte("x"), item.Payload)

	assert.True(t, q.RemoveByID("a"))
	assert.False(t, q.RemoveByID("a"))
	assert.Equal(t, 0, q.Len())
}

func TestClearEmptiesQueue(t *testing.T) {
	q := New(0, 0)
	require.NoError(t, q.Enqueue("a", nil, Normal))
	require.NoError(t, q.Enqueue("b", nil, High))
	q.Clear()
	assert.Equal(t, 0, q.Len())
}

func TestGetStatsBreaksDownByBand(t *testing.T) {
	q := New(0, 0)
	require.NoError(t, q.Enqueue("a", nil, High))
	require.NoError(t, q.Enqueue("b", nil, Normal))
	require.NoError(t, q.Enqueue("c", nil, Low))
	require.NoError(t, q.Enqueue("d", nil, Low))

	stats := q.GetStats()
	assert.Equal(t, 4, stats.Count)
	assert.Equal(t, 1, stats.HighCount)
	assert.Equal(t, 1, stats.NormalCount)
	assert.Equal(t, 2, stats.LowCount)
}

func itemIDs(items []Item) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}
