package internal

import (
	"context"
	"fmt"
)

// UncertaintyOracle scores items; higher means the model is less sure.
type UncertaintyOracle interface {
	Score(ctx context.Context, names []Name) ([]float64, error)
}

// EmbeddingProducer maps items to fixed-length feature vectors.
type EmbeddingProducer interface {
	Embed(ctx context.Context, names []Name) ([][]float64, error)
}

// PoolStore persists pools and the outcome of selection rounds.
type PoolStore interface {
	LoadPool(ctx context.Context, pool Name) (Pool, error)
	Remove(ctx context.Context, pool Name, names []Name) error
	MarkForAnnotation(ctx context.Context, pool Name, items []Item, tag Name, round string) error
}

// BuildPool asks the oracle and the producer about names and zips the
// answers into a pool in the same order.
func BuildPool(ctx context.Context, names []Name, oracle UncertaintyOracle, producer EmbeddingProducer) (Pool, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no items to build a pool from", ErrInvalidArgument)
	}

	scores, err := oracle.Score(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("score items: %w", err)
	}
	if len(scores) != len(names) {
		return nil, fmt.Errorf("%w: oracle returned %d scores for %d items", ErrInvalidArgument, len(scores), len(names))
	}

	vecs, err := producer.Embed(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("embed items: %w", err)
	}
	if len(vecs) != len(names) {
		return nil, fmt.Errorf("%w: producer returned %d embeddings for %d items", ErrInvalidArgument, len(vecs), len(names))
	}

	pool := make(Pool, len(names))
	for i, name := range names {
		pool[i] = Item{Name: name, Uncertainty: scores[i], Embedding: vecs[i]}
	}

	if _, err := pool.Dimension(); err != nil {
		return nil, err
	}
	if err := validateScores(pool); err != nil {
		return nil, err
	}

	return pool, nil
}
