package internal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func poolWithScores(scores ...float64) Pool {
	pool := make(Pool, len(scores))
	for i, s := range scores {
		pool[i] = Item{Uncertainty: s, Embedding: []float64{1, float64(i)}}
	}
	return pool
}

func TestSelectTopKOrdersByUncertainty(t *testing.T) {
	pool := poolWithScores(0.2, 0.7, 0.1, 0.9, 0.4)

	got, err := SelectTopK(pool, 3)
	require.NoError(t, err)
	assert.Equal(t, CandidateSet{3, 1, 4}, got)
}

func TestSelectTopKTiesByLowestIndex(t *testing.T) {
	pool := poolWithScores(0.9, 0.9, 0.1, 0.5, 0.0)

	got, err := SelectTopK(pool, 3)
	require.NoError(t, err)
	assert.Equal(t, CandidateSet{0, 1, 3}, got)
}

func TestSelectTopKAllEqual(t *testing.T) {
	pool := poolWithScores(0.3, 0.3, 0.3, 0.3)

	got, err := SelectTopK(pool, 4)
	require.NoError(t, err)
	assert.Equal(t, CandidateSet{0, 1, 2, 3}, got)
}

func TestSelectTopKClampsToPoolSize(t *testing.T) {
	pool := poolWithScores(0.1, 0.5)

	got, err := SelectTopK(pool, 10)
	require.NoError(t, err)
	assert.Equal(t, CandidateSet{1, 0}, got)
}

func TestSelectTopKDoesNotMutatePool(t *testing.T) {
	pool := poolWithScores(0.1, 0.8, 0.3)

	_, err := SelectTopK(pool, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.8, 0.3}, []float64{pool[0].Uncertainty, pool[1].Uncertainty, pool[2].Uncertainty})
}

func TestSelectTopKSortedInvariant(t *testing.T) {
	pool := poolWithScores(0.5, 0.1, 0.5, 0.9, 0.0, 0.9, 0.3, 0.5)

	got, err := SelectTopK(pool, len(pool))
	require.NoError(t, err)
	require.Len(t, got, len(pool))

	seen := map[int]bool{}
	for i, idx := range got {
		assert.False(t, seen[idx], "duplicate index %d", idx)
		seen[idx] = true
		if i == 0 {
			continue
		}
		prev, cur := pool[got[i-1]].Uncertainty, pool[idx].Uncertainty
		assert.GreaterOrEqual(t, prev, cur)
		if prev == cur {
			assert.Less(t, got[i-1], idx)
		}
	}
}

func TestSelectTopKErrors(t *testing.T) {
	tests := []struct {
		name string
		pool Pool
		size int
		want error
	}{
		{"empty pool", Pool{}, 1, ErrInvalidArgument},
		{"zero size", poolWithScores(0.1), 0, ErrInvalidArgument},
		{"negative size", poolWithScores(0.1), -2, ErrInvalidArgument},
		{"NaN score", poolWithScores(0.1, math.NaN()), 1, ErrInvalidScore},
		{"negative score", poolWithScores(-0.1, 0.2), 1, ErrInvalidScore},
		{"infinite score", poolWithScores(math.Inf(1)), 1, ErrInvalidScore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SelectTopK(tt.pool, tt.size)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
