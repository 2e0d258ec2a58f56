package internal

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidScore      = errors.New("invalid uncertainty score")
	ErrDegenerateVector  = errors.New("degenerate vector")
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrInvalidName    = errors.New("invalid name")
	ErrNotInitialized = errors.New("workspace not initialized")
	ErrNoIndex        = errors.New("no vector index available")
)

// ErrorKind maps an error onto a stable label used in logs and metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrInvalidScore):
		return "invalid_score"
	case errors.Is(err, ErrDegenerateVector):
		return "degenerate_vector"
	case errors.Is(err, ErrDimensionMismatch):
		return "dimension_mismatch"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrInvalidName):
		return "invalid_name"
	case errors.Is(err, ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, ErrNoIndex):
		return "no_index"
	default:
		return "internal"
	}
}

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._/-]*$`)

// Name identifies pools, items and annotation tags.
type Name string

func NewName(s string) (Name, error) {
	if s == "" || !namePattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, s)
	}
	for _, seg := range strings.Split(s, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("%w: %q has an empty or relative segment", ErrInvalidName, s)
		}
	}
	return Name(s), nil
}

func (n Name) String() string {
	return string(n)
}

// Item is one pool entry as seen by a single selection run.
type Item struct {
	Name        Name
	Uncertainty float64
	Embedding   []float64
}

// Pool is index-stable for the duration of a run: position i is item i.
type Pool []Item

// Dimension returns the shared embedding length of the pool.
func (p Pool) Dimension() (int, error) {
	if len(p) == 0 {
		return 0, fmt.Errorf("%w: empty pool", ErrInvalidArgument)
	}
	d := len(p[0].Embedding)
	if d == 0 {
		return 0, fmt.Errorf("%w: item 0 has an empty embedding", ErrInvalidArgument)
	}
	for i, it := range p {
		if len(it.Embedding) != d {
			return 0, fmt.Errorf("%w: item %d has %d dimensions, expected %d", ErrDimensionMismatch, i, len(it.Embedding), d)
		}
	}
	return d, nil
}

// Embeddings returns the embeddings of the given pool indices, or of the
// whole pool when indices is nil. The vectors are shared, not copied.
func (p Pool) Embeddings(indices []int) [][]float64 {
	if indices == nil {
		out := make([][]float64, len(p))
		for i := range p {
			out[i] = p[i].Embedding
		}
		return out
	}
	out := make([][]float64, len(indices))
	for i, idx := range indices {
		out[i] = p[idx].Embedding
	}
	return out
}

// Names returns the item names at the given pool indices.
func (p Pool) Names(indices []int) []Name {
	out := make([]Name, len(indices))
	for i, idx := range indices {
		out[i] = p[idx].Name
	}
	return out
}

// PoolInfo summarizes a stored pool.
type PoolInfo struct {
	Name      Name
	Dimension int
	Size      int
	CreatedAt time.Time
}

// Annotation is a blank annotation request recorded for a selected item.
type Annotation struct {
	ID          int64
	Pool        Name
	Item        Name
	Tag         Name
	Round       string
	Uncertainty float64
	CreatedAt   time.Time
}
