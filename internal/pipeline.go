package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// SelectionResult is the outcome of one pipeline run.
type SelectionResult struct {
	// Indices are pool indices in pick order.
	Indices []int
	// Candidates is the uncertainty-ranked working set.
	Candidates CandidateSet
	// Gains and Coverage are per pick, aligned with Indices.
	Gains    []float64
	Coverage []float64
	Stats    SelectionStats
}

// TotalCoverage returns F(S) of the final selection.
func (r *SelectionResult) TotalCoverage() float64 {
	if len(r.Coverage) == 0 {
		return 0
	}
	return r.Coverage[len(r.Coverage)-1]
}

type SelectionStats struct {
	PoolSize      int
	Dimension     int
	CandidateSize int
	SubsetSize    int
	// CandidatesClamped is set when the requested candidate size exceeded the pool.
	CandidatesClamped bool
	// SubsetClamped is set when the requested subset size exceeded the candidates.
	SubsetClamped bool

	RankDuration       time.Duration
	SimilarityDuration time.Duration
	GreedyDuration     time.Duration
}

// Pipeline chains ranking, similarity and greedy selection. It holds no
// per-run state and may be shared between goroutines.
type Pipeline struct {
	similarity *SimilarityComputer
	logger     logrus.FieldLogger
	metrics    *Metrics
}

type PipelineOption func(*Pipeline)

func WithLogger(logger logrus.FieldLogger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) PipelineOption {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

func WithSimilarityComputer(c *SimilarityComputer) PipelineOption {
	return func(p *Pipeline) {
		p.similarity = c
	}
}

func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}
	if p.similarity == nil {
		p.similarity = NewSimilarityComputer()
	}
	if p.logger == nil {
		p.logger = discardLogger()
	}
	return p
}

// Select picks subsetSize representatives among the candidateSize most
// uncertain items of pool. Nothing is returned on failure.
func (p *Pipeline) Select(ctx context.Context, pool Pool, candidateSize, subsetSize int) (*SelectionResult, error) {
	res, err := p.run(ctx, pool, candidateSize, subsetSize)
	if err != nil {
		p.metrics.ObserveFailure(err)
		p.logger.WithError(err).WithField("kind", ErrorKind(err)).Debug("selection failed")
		return nil, err
	}
	p.metrics.ObserveResult(res)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, pool Pool, candidateSize, subsetSize int) (*SelectionResult, error) {
	if subsetSize < 0 {
		return nil, fmt.Errorf("%w: subset size must not be negative, got %d", ErrInvalidArgument, subsetSize)
	}
	dim, err := pool.Dimension()
	if err != nil {
		return nil, err
	}

	stats := SelectionStats{PoolSize: len(pool), Dimension: dim}
	log := p.logger.WithFields(logrus.Fields{
		"pool_size":  len(pool),
		"candidates": candidateSize,
		"select":     subsetSize,
	})

	if candidateSize > len(pool) {
		stats.CandidatesClamped = true
		log.Warnf("candidate size %d exceeds pool size %d, clamping", candidateSize, len(pool))
	}

	start := time.Now()
	candidates, err := SelectTopK(pool, candidateSize)
	if err != nil {
		return nil, fmt.Errorf("rank: %w", err)
	}
	stats.RankDuration = time.Since(start)
	stats.CandidateSize = len(candidates)
	p.metrics.ObserveStage(StageRank, stats.RankDuration)

	if subsetSize > len(candidates) {
		stats.SubsetClamped = true
		log.Warnf("subset size %d exceeds candidate size %d, clamping", subsetSize, len(candidates))
	}

	start = time.Now()
	sims, err := p.similarity.ComputeMatrix(ctx, pool.Embeddings(candidates), pool.Embeddings(nil))
	if err != nil {
		return nil, fmt.Errorf("similarity: %w", err)
	}
	stats.SimilarityDuration = time.Since(start)
	p.metrics.ObserveStage(StageSimilarity, stats.SimilarityDuration)

	start = time.Now()
	subset, err := SelectRepresentative(candidates, sims, subsetSize)
	if err != nil {
		return nil, fmt.Errorf("greedy: %w", err)
	}
	stats.GreedyDuration = time.Since(start)
	stats.SubsetSize = len(subset.Positions)
	p.metrics.ObserveStage(StageGreedy, stats.GreedyDuration)

	indices := make([]int, len(subset.Positions))
	for i, pos := range subset.Positions {
		indices[i] = candidates[pos]
	}

	res := &SelectionResult{
		Indices:    indices,
		Candidates: candidates,
		Gains:      subset.Gains,
		Coverage:   subset.Coverage,
		Stats:      stats,
	}

	log.WithFields(logrus.Fields{
		"selected":      len(indices),
		"coverage":      res.TotalCoverage(),
		"rank_ms":       stats.RankDuration.Milliseconds(),
		"similarity_ms": stats.SimilarityDuration.Milliseconds(),
		"greedy_ms":     stats.GreedyDuration.Milliseconds(),
	}).Debug("selection complete")

	return res, nil
}
