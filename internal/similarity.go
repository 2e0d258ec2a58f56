package internal

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ZeroVectorPolicy decides what happens when an embedding has no direction.
type ZeroVectorPolicy string

const (
	// ZeroVectorError fails the computation with ErrDegenerateVector.
	ZeroVectorError ZeroVectorPolicy = "error"
	// ZeroVectorZero scores every pair involving a zero vector as 0.
	ZeroVectorZero ZeroVectorPolicy = "zero"
)

func ParseZeroVectorPolicy(s string) (ZeroVectorPolicy, error) {
	switch ZeroVectorPolicy(s) {
	case ZeroVectorError, "":
		return ZeroVectorError, nil
	case ZeroVectorZero:
		return ZeroVectorZero, nil
	default:
		return "", fmt.Errorf("%w: unknown zero vector policy %q", ErrInvalidArgument, s)
	}
}

// SimilarityMatrix is a dense candidates x pool matrix with entries in [0, 1].
// It is read-only once built.
type SimilarityMatrix struct {
	dense *mat.Dense
}

// NewSimilarityMatrix wraps row-major data. Every entry must be a finite
// value in [0, 1].
func NewSimilarityMatrix(rows, cols int, data []float64) (*SimilarityMatrix, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: similarity matrix must be non-empty, got %dx%d", ErrInvalidArgument, rows, cols)
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("%w: %d values for a %dx%d matrix", ErrInvalidArgument, len(data), rows, cols)
	}
	for i, v := range data {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return nil, fmt.Errorf("%w: entry (%d, %d) = %g outside [0, 1]", ErrInvalidArgument, i/cols, i%cols, v)
		}
	}
	return &SimilarityMatrix{dense: mat.NewDense(rows, cols, data)}, nil
}

func (m *SimilarityMatrix) Dims() (rows, cols int) {
	return m.dense.Dims()
}

func (m *SimilarityMatrix) At(i, j int) float64 {
	return m.dense.At(i, j)
}

// Row returns a view of row i. Callers must not modify it.
func (m *SimilarityMatrix) Row(i int) []float64 {
	return m.dense.RawRowView(i)
}

// SimilarityComputer builds absolute cosine similarity matrices.
type SimilarityComputer struct {
	policy  ZeroVectorPolicy
	workers int
}

type SimilarityOption func(*SimilarityComputer)

// WithZeroVectorPolicy sets how zero-norm embeddings are handled.
func WithZeroVectorPolicy(p ZeroVectorPolicy) SimilarityOption {
	return func(c *SimilarityComputer) {
		c.policy = p
	}
}

// WithWorkers bounds the number of rows computed concurrently. Values below
// one mean GOMAXPROCS.
func WithWorkers(n int) SimilarityOption {
	return func(c *SimilarityComputer) {
		c.workers = n
	}
}

func NewSimilarityComputer(opts ...SimilarityOption) *SimilarityComputer {
	c := &SimilarityComputer{
		policy: ZeroVectorError,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.workers < 1 {
		c.workers = runtime.GOMAXPROCS(0)
	}
	return c
}

// ComputeMatrix returns the len(candidates) x len(pool) matrix whose entry
// (i, j) is |cos(candidates[i], pool[j])|.
func (c *SimilarityComputer) ComputeMatrix(ctx context.Context, candidates, pool [][]float64) (*SimilarityMatrix, error) {
	if len(candidates) == 0 || len(pool) == 0 {
		return nil, fmt.Errorf("%w: similarity needs candidates and pool, got %d and %d", ErrInvalidArgument, len(candidates), len(pool))
	}
	dim := len(candidates[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: empty embedding", ErrInvalidArgument)
	}

	cand, err := c.normalize(candidates, dim, "candidate")
	if err != nil {
		return nil, err
	}
	items, err := c.normalize(pool, dim, "pool")
	if err != nil {
		return nil, err
	}

	rows, cols := len(candidates), len(pool)
	out := mat.NewDense(rows, cols, nil)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i := 0; i < rows; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fillRow(out.RawRowView(i), cand.RawRowView(i), items)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("compute similarity: %w", err)
	}

	return &SimilarityMatrix{dense: out}, nil
}

func fillRow(dst, u []float64, items *mat.Dense) {
	for j := range dst {
		s := math.Abs(floats.Dot(u, items.RawRowView(j)))
		// rounding can push |u·v| of unit vectors a hair above 1
		dst[j] = min(s, 1)
	}
}

// normalize copies vectors into a matrix of unit rows. Zero rows stay zero
// under ZeroVectorZero.
func (c *SimilarityComputer) normalize(vectors [][]float64, dim int, role string) (*mat.Dense, error) {
	out := mat.NewDense(len(vectors), dim, nil)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: %s vector %d has %d dimensions, expected %d", ErrDimensionMismatch, role, i, len(v), dim)
		}
		for _, x := range v {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return nil, fmt.Errorf("%w: %s vector %d has a non-finite component", ErrInvalidArgument, role, i)
			}
		}

		// scaled by the largest magnitude, the norm neither overflows nor
		// underflows
		scale := 0.0
		for _, x := range v {
			scale = max(scale, math.Abs(x))
		}
		if scale == 0 {
			if c.policy == ZeroVectorZero {
				continue
			}
			return nil, fmt.Errorf("%w: %s vector %d has zero norm", ErrDegenerateVector, role, i)
		}

		row := out.RawRowView(i)
		for k, x := range v {
			row[k] = x / scale
		}
		floats.Scale(1/floats.Norm(row, 2), row)
	}
	return out, nil
}
