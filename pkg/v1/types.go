package v1

import "github.com/4thel00z/poolsel/internal"

// Item is one pool entry: an opaque name, the model's uncertainty about it
// and its feature embedding.
type Item struct {
	Name        string    `json:"name"`
	Uncertainty float64   `json:"uncertainty"`
	Embedding   []float64 `json:"embedding"`
}

// Result is the outcome of one selection.
type Result struct {
	// Indices are positions in the input, in pick order.
	Indices []int    `json:"indices"`
	Names   []string `json:"names"`
	// Gains[i] is the coverage added by the i-th pick.
	Gains []float64 `json:"gains"`
	// Candidates names the most uncertain items the picks were drawn from.
	Candidates []string `json:"candidates"`
	Coverage   float64  `json:"coverage"`
}

var (
	ErrInvalidArgument   = internal.ErrInvalidArgument
	ErrInvalidScore      = internal.ErrInvalidScore
	ErrDegenerateVector  = internal.ErrDegenerateVector
	ErrDimensionMismatch = internal.ErrDimensionMismatch
	ErrNotFound          = internal.ErrNotFound
	ErrNotInitialized    = internal.ErrNotInitialized
)
