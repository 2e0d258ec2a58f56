package internal

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

// CandidateSet holds pool indices ordered by descending uncertainty.
type CandidateSet []int

// SelectTopK returns the size most uncertain pool indices. Equal scores are
// ordered by ascending pool index. A size larger than the pool is clamped.
func SelectTopK(pool Pool, size int) (CandidateSet, error) {
	if len(pool) == 0 {
		return nil, fmt.Errorf("%w: empty pool", ErrInvalidArgument)
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: candidate size must be positive, got %d", ErrInvalidArgument, size)
	}
	if err := validateScores(pool); err != nil {
		return nil, err
	}
	size = min(size, len(pool))

	order := make([]int, len(pool))
	for i := range order {
		order[i] = i
	}

	// Stable sort keeps ascending index order among equal scores.
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(pool[b].Uncertainty, pool[a].Uncertainty)
	})

	return CandidateSet(order[:size:size]), nil
}

func validateScores(pool Pool) error {
	for i, it := range pool {
		u := it.Uncertainty
		switch {
		case math.IsNaN(u):
			return fmt.Errorf("%w: item %d is NaN", ErrInvalidScore, i)
		case math.IsInf(u, 0):
			return fmt.Errorf("%w: item %d is infinite", ErrInvalidScore, i)
		case u < 0:
			return fmt.Errorf("%w: item %d is negative (%g)", ErrInvalidScore, i, u)
		}
	}
	return nil
}
