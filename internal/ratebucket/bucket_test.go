package ratebucket

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucket_PrefillStartsFull(t *testing.T) {
	b := New(250, 250.0/60, 250)
	assert.InDelta(t, 250.0, b.Remaining(), 1e-6)
}

func TestBucket_PrefillClampsToCapacity(t *testing.T) {
	b := New(10, 1, 999)
	assert.InDelta(t, 10.0, b.Remaining(), 1e-6)
}

func TestBucket_ReserveDeductsOne(t *testing.T) {
	b := New(10, 0, 10)
	require.True(t, b.Reserve())
	assert.InDelta(t, 9.0, b.Remaining(), 1e-6)
}

func TestBucket_ExhaustionDeniesFurtherReservations(t *testing.T) {
	b := New(3, 0, 3)
	for i := 0; i < 3; i++ {
		require.True(t, b.Reserve())
	}
	assert.False(t, b.Reserve())
	assert.InDelta(t, 0.0, b.Remaining(), 1e-6)
}

func TestBucket_RemainingNeverNegativeOrOverCapacity(t *testing.T) {
	b := New(5, 5, 5)
	for i := 0; i < 50; i++ {
		b.Reserve()
		r := b.Remaining()
		assert.GreaterOrEqual(t, r, 0.0)
		assert.LessOrEqual(t, r, b.Capacity())
	}
}

func TestBucket_RefillIsMonotonicWithoutInterveningReserve(t *testing.T) {
	b := New(10, 10, 0)
	r1 := b.Remaining()
	time.Sleep(10 * time.Millisecond)
	r2 := b.Remaining()
	assert.GreaterOrEqual(t, r2, r1)
}

func TestBucket_RefillRecoversOverTime(t *testing.T) {
	b := New(10, 10, 0) // fully drained, refills at 10/s
	assert.InDelta(t, 0.0, b.Remaining(), 0.05)
	time.Sleep(550 * time.Millisecond)
	r := b.Remaining()
	assert.Greater(t, r, 4.0)
	assert.LessOrEqual(t, r, 10.0)
}

// TestBucket_SixtySecondWindowBudget checks testable property 2 (for any
// 60s window, successful reservations never exceed capacity + prefill) on
// a short 200ms window of a full 250-capacity/250-per-60s bucket, where the
// bound is capacity plus the credit refilled in 200ms (under 1); the
// assertion allows capacity + 10 as slack for timing.
func TestBucket_SixtySecondWindowBudget(t *testing.T) {
	capacity := 250.0
	b := New(capacity, capacity/60, capacity)
	successes := 0
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if b.Reserve() {
			successes++
		}
	}
	// Within 200ms, at most capacity + (refill*0.2s) reservations can
	// succeed; well under capacity*2.
	assert.LessOrEqual(t, successes, int(capacity)+10)
}

func TestBucket_ConcurrentReservesNeverOversubscribe(t *testing.T) {
	b := New(100, 0, 100)
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 500; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Reserve() {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, successes)
	assert.InDelta(t, 0.0, b.Remaining(), 1e-6)
}
