package internal

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// Subset is the outcome of representative selection, in pick order.
type Subset struct {
	// Positions index into the CandidateSet, not the pool.
	Positions []int
	// Gains holds the marginal coverage each pick added.
	Gains []float64
	// Coverage holds F(S) after each pick.
	Coverage []float64
}

// SelectRepresentative greedily picks k candidates maximizing the facility
// location objective
//
//	F(S) = sum over pool items j of max over i in S of sims(i, j)
//
// Each step adds the candidate with the largest marginal gain. Equal gains go
// to the lowest candidate position. A k above len(candidates) is clamped.
func SelectRepresentative(candidates CandidateSet, sims *SimilarityMatrix, k int) (*Subset, error) {
	if k < 0 {
		return nil, fmt.Errorf("%w: subset size must not be negative, got %d", ErrInvalidArgument, k)
	}
	if k == 0 {
		return &Subset{Positions: []int{}, Gains: []float64{}, Coverage: []float64{}}, nil
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates to select %d from", ErrInvalidArgument, k)
	}
	if sims == nil {
		return nil, fmt.Errorf("%w: nil similarity matrix", ErrInvalidArgument)
	}
	rows, cols := sims.Dims()
	if rows != len(candidates) {
		return nil, fmt.Errorf("%w: similarity matrix has %d rows for %d candidates", ErrInvalidArgument, rows, len(candidates))
	}
	k = min(k, len(candidates))

	remaining := make([]int, len(candidates))
	for i := range remaining {
		remaining[i] = i
	}
	best := make([]float64, cols)

	out := &Subset{
		Positions: make([]int, 0, k),
		Gains:     make([]float64, 0, k),
		Coverage:  make([]float64, 0, k),
	}

	for step := 0; step < k; step++ {
		pick, pickGain := -1, -1.0
		at := -1
		// remaining stays ascending, so a strict comparison keeps the
		// lowest position among ties.
		for r, pos := range remaining {
			if g := marginalGain(sims.Row(pos), best); g > pickGain {
				pick, pickGain, at = pos, g, r
			}
		}

		remaining = slices.Delete(remaining, at, at+1)
		for j, s := range sims.Row(pick) {
			if s > best[j] {
				best[j] = s
			}
		}

		out.Positions = append(out.Positions, pick)
		out.Gains = append(out.Gains, pickGain)
		out.Coverage = append(out.Coverage, floats.Sum(best))
	}

	return out, nil
}

// marginalGain is F(S ∪ {i}) - F(S) given the running best coverage of S.
func marginalGain(row, best []float64) float64 {
	var g float64
	for j, s := range row {
		if d := s - best[j]; d > 0 {
			g += d
		}
	}
	return g
}
