package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextIsUnique(t *testing.T) {
	g := New()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := g.Next()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestNextIsDistinctAcrossCalls(t *testing.T) {
	g := New()
	first := g.Next()
	second := g.Next()
	assert.NotEqual(t, first, second)
}
