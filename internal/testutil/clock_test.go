package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedClock_StaysPut(t *testing.T) {
	start := time.Date(2024, 7, 10, 9, 30, 0, 0, time.UTC)
	clock := NewFixedClock(start)

	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start, clock.Now())
}

func TestFixedClock_AdvanceAndSet(t *testing.T) {
	start := time.Date(2024, 7, 10, 9, 30, 0, 0, time.UTC)
	clock := NewFixedClock(start)

	clock.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), clock.Now())

	later := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock.Set(later)
	assert.Equal(t, later, clock.Now())
}

func TestSequentialIDs_Order(t *testing.T) {
	ids := NewSequentialIDs("audit")

	assert.Equal(t, "audit-1", ids.Next())
	assert.Equal(t, "audit-2", ids.Next())

	ids.Reset()
	assert.Equal(t, "audit-1", ids.Next())
}

func TestSequentialIDs_DefaultPrefix(t *testing.T) {
	assert.Equal(t, "id-1", NewSequentialIDs("").Next())
}

func TestSequentialIDs_ThreadSafe(t *testing.T) {
	ids := NewSequentialIDs("x")
	const numGoroutines = 50
	const callsPerGoroutine = 40

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make([][]string, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		results[i] = make([]string, callsPerGoroutine)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				results[idx][j] = ids.Next()
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, batch := range results {
		for _, id := range batch {
			require.False(t, seen[id], "duplicate id %s", id)
			seen[id] = true
		}
	}
	assert.Len(t, seen, numGoroutines*callsPerGoroutine)
}
