package keypool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(groups map[string][]string) (*Pool, map[string]*Key) {
	tokens := map[string]*Key{}
	for _, toks := range groups {
		for _, tok := range toks {
			if _, ok := tokens[tok]; !ok {
				tokens[tok] = NewKey(tok, "test", 1.0)
			}
		}
	}
	keys := make([]*Key, 0, len(tokens))
	for _, k := range tokens {
		keys = append(keys, k)
	}
	return NewPool(keys, groups), tokens
}

func TestPool_ReservePicksBestKey(t *testing.T) {
	pool, keys := newTestPool(map[string][]string{
		"cpu": {"a", "b"},
	})
	// Drain key "a" partially so "b" has strictly more remaining.
	for i := 0; i < 10; i++ {
		keys["a"].Reserve()
	}
	h, err := pool.Reserve("cpu")
	require.NoError(t, err)
	assert.Equal(t, "b", h.Token)
}

func TestPool_FallsBackToDefaultWhenGroupExhausted(t *testing.T) {
	pool, keys := newTestPool(map[string][]string{
		"cpu":     {"a"},
		"default": {"b"},
	})
	for i := 0; i < minuteCapacity; i++ {
		keys["a"].Reserve()
	}
	h, err := pool.Reserve("cpu")
	require.NoError(t, err)
	assert.Equal(t, "b", h.Token)
}

func TestPool_ExhaustedWhenGroupAndDefaultBothFull(t *testing.T) {
	pool, keys := newTestPool(map[string][]string{
		"cpu":     {"a"},
		"default": {"b"},
	})
	for i := 0; i < minuteCapacity; i++ {
		keys["a"].Reserve()
		keys["b"].Reserve()
	}
	_, err := pool.Reserve("cpu")
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestPool_NoKeysWhenGroupAndDefaultEmpty(t *testing.T) {
	pool, _ := newTestPool(map[string][]string{
		"other": {"a"},
	})
	_, err := pool.Reserve("cpu")
	assert.ErrorIs(t, err, ErrNoKeys)
}

func TestPool_KeyInMultipleGroupsSharesBucketState(t *testing.T) {
	pool, keys := newTestPool(map[string][]string{
		"cpu":    {"shared"},
		"memory": {"shared"},
	})
	_, err := pool.Reserve("cpu")
	require.NoError(t, err)
	remainingAfterCPU := keys["shared"].Remaining(TimeframeMinute)

	_, err = pool.Reserve("memory")
	require.NoError(t, err)
	remainingAfterMemory := keys["shared"].Remaining(TimeframeMinute)

	assert.InDelta(t, remainingAfterCPU-1, remainingAfterMemory, 1e-6)
}
