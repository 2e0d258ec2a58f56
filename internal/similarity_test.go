package internal

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeMatrixAbsoluteCosine(t *testing.T) {
	c := NewSimilarityComputer(WithWorkers(1))

	candidates := [][]float64{{1, 0}, {1, 1}}
	pool := [][]float64{{2, 0}, {0, 3}, {-1, 0}, {-1, -1}}

	m, err := c.ComputeMatrix(context.Background(), candidates, pool)
	require.NoError(t, err)

	rows, cols := m.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 4, cols)

	assert.InDelta(t, 1.0, m.At(0, 0), 1e-12)
	assert.InDelta(t, 0.0, m.At(0, 1), 1e-12)
	assert.InDelta(t, 1.0, m.At(0, 2), 1e-12, "sign is discarded")
	assert.InDelta(t, math.Sqrt2/2, m.At(0, 3), 1e-12)
	assert.InDelta(t, math.Sqrt2/2, m.At(1, 1), 1e-12)
	assert.InDelta(t, 1.0, m.At(1, 3), 1e-12)
}

func TestComputeMatrixBounds(t *testing.T) {
	c := NewSimilarityComputer()
	vecs := [][]float64{
		{0.3, -1.2, 4.4}, {1e-200, 2e-200, -1e-200}, {5, 5, 5},
		{-3, 0.001, 2}, {1e150, -1e150, 3e150},
	}

	m, err := c.ComputeMatrix(context.Background(), vecs, vecs)
	require.NoError(t, err)

	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := m.At(i, j)
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "entry (%d, %d) not finite", i, j)
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
		assert.InDelta(t, 1.0, m.At(i, i), 1e-12)
	}
}

func TestComputeMatrixSymmetry(t *testing.T) {
	c := NewSimilarityComputer()
	vecs := [][]float64{{1, 2, 3}, {-4, 0.5, 2}, {0, 1, -1}, {7, 7, 0.1}}

	m, err := c.ComputeMatrix(context.Background(), vecs, vecs)
	require.NoError(t, err)

	for i := range vecs {
		for j := range vecs {
			assert.InDelta(t, m.At(i, j), m.At(j, i), 1e-15)
		}
	}
}

func TestComputeMatrixDeterministicAcrossWorkers(t *testing.T) {
	pool := make([][]float64, 64)
	for i := range pool {
		pool[i] = []float64{math.Sin(float64(i)), math.Cos(float64(i) * 0.7), float64(i%5) - 2, 0.25}
	}
	candidates := pool[:16]

	serial, err := NewSimilarityComputer(WithWorkers(1)).ComputeMatrix(context.Background(), candidates, pool)
	require.NoError(t, err)
	parallel, err := NewSimilarityComputer(WithWorkers(8)).ComputeMatrix(context.Background(), candidates, pool)
	require.NoError(t, err)

	for i := range candidates {
		assert.Equal(t, serial.Row(i), parallel.Row(i))
	}
}

func TestComputeMatrixZeroVectorPolicy(t *testing.T) {
	candidates := [][]float64{{1, 0}}
	pool := [][]float64{{1, 0}, {0, 0}}

	_, err := NewSimilarityComputer().ComputeMatrix(context.Background(), candidates, pool)
	assert.ErrorIs(t, err, ErrDegenerateVector)

	m, err := NewSimilarityComputer(WithZeroVectorPolicy(ZeroVectorZero)).ComputeMatrix(context.Background(), candidates, pool)
	require.NoError(t, err)
	assert.Equal(t, 1.0, m.At(0, 0))
	assert.Equal(t, 0.0, m.At(0, 1))
}

func TestComputeMatrixExtremeMagnitudes(t *testing.T) {
	candidates := [][]float64{{1.5e308, 1.5e308}, {1e-310, 0}}
	pool := [][]float64{{1, 1}, {3, 0}, {-1e-320, 1e-320}}

	m, err := NewSimilarityComputer().ComputeMatrix(context.Background(), candidates, pool)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, m.At(0, 0), 1e-12)
	assert.InDelta(t, math.Sqrt2/2, m.At(0, 1), 1e-12)
	assert.InDelta(t, 0.0, m.At(0, 2), 1e-12)
	assert.InDelta(t, 1.0, m.At(1, 1), 1e-12)
	assert.InDelta(t, math.Sqrt2/2, m.At(1, 2), 1e-12)
}

func TestComputeMatrixErrors(t *testing.T) {
	c := NewSimilarityComputer()
	ctx := context.Background()

	_, err := c.ComputeMatrix(ctx, nil, [][]float64{{1}})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = c.ComputeMatrix(ctx, [][]float64{{1, 2}}, [][]float64{{1, 2, 3}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = c.ComputeMatrix(ctx, [][]float64{{1, math.NaN()}}, [][]float64{{1, 2}})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestComputeMatrixCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSimilarityComputer().ComputeMatrix(ctx, [][]float64{{1, 0}}, [][]float64{{0, 1}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseZeroVectorPolicy(t *testing.T) {
	p, err := ParseZeroVectorPolicy("")
	require.NoError(t, err)
	assert.Equal(t, ZeroVectorError, p)

	p, err = ParseZeroVectorPolicy("zero")
	require.NoError(t, err)
	assert.Equal(t, ZeroVectorZero, p)

	_, err = ParseZeroVectorPolicy("skip")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNewSimilarityMatrixValidates(t *testing.T) {
	_, err := NewSimilarityMatrix(1, 2, []float64{0.5, 1.5})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewSimilarityMatrix(2, 2, []float64{0.5})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	m, err := NewSimilarityMatrix(1, 2, []float64{0.5, 1})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 1}, m.Row(0))
}
