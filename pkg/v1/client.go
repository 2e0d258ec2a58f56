package v1

import (
	"context"
	"fmt"

	"github.com/4thel00z/poolsel/internal"
)

// Client runs uncertainty-then-diversity selections, either over items held
// in memory or over a pool stored in a poolsel workspace.
type Client struct {
	pipeline *internal.Pipeline
	runtime  *internal.Runtime
}

// New creates a client. Without WithWorkspace, SelectPool looks for a
// workspace from the current directory upwards.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.workers < 0 {
		return nil, fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalidArgument, cfg.workers)
	}

	simOpts := []internal.SimilarityOption{internal.WithWorkers(cfg.workers)}
	if cfg.zeroVectors {
		simOpts = append(simOpts, internal.WithZeroVectorPolicy(internal.ZeroVectorZero))
	}

	pipeOpts := []internal.PipelineOption{
		internal.WithSimilarityComputer(internal.NewSimilarityComputer(simOpts...)),
	}
	rt := internal.NewRuntime()
	rt.Resolver = internal.NewWorkspaceResolver(cfg.workspace)
	if cfg.logger != nil {
		pipeOpts = append(pipeOpts, internal.WithLogger(cfg.logger))
		rt.Logger = cfg.logger
	}

	return &Client{
		pipeline: internal.NewPipeline(pipeOpts...),
		runtime:  rt,
	}, nil
}

// Select ranks items by uncertainty, keeps the top candidates and picks k of
// them covering the whole input as well as possible.
func (c *Client) Select(ctx context.Context, items []Item, candidates, k int) (*Result, error) {
	pool := make(internal.Pool, len(items))
	for i, it := range items {
		pool[i] = internal.Item{
			Name:        internal.Name(it.Name),
			Uncertainty: it.Uncertainty,
			Embedding:   it.Embedding,
		}
	}

	res, err := c.pipeline.Select(ctx, pool, candidates, k)
	if err != nil {
		return nil, err
	}

	out := &Result{
		Indices:    res.Indices,
		Names:      make([]string, len(res.Indices)),
		Gains:      res.Gains,
		Candidates: make([]string, len(res.Candidates)),
		Coverage:   res.TotalCoverage(),
	}
	for i, idx := range res.Indices {
		out.Names[i] = items[idx].Name
	}
	for i, idx := range res.Candidates {
		out.Candidates[i] = items[idx].Name
	}
	return out, nil
}

// SelectPool runs a dry-run selection over a workspace pool. Nothing is
// removed from the pool and no round is recorded. Non-positive candidates
// or k fall back to the workspace configuration.
func (c *Client) SelectPool(ctx context.Context, pool string, candidates, k int) (*Result, error) {
	input := internal.SelectInput{Pool: pool}
	if candidates > 0 {
		input.Candidates = &candidates
	}
	if k > 0 {
		input.Select = &k
	}

	res, err := internal.NewSelectRoundUseCase(c.runtime).Execute(ctx, input)
	if err != nil {
		return nil, err
	}

	out := &Result{
		Indices:    make([]int, len(res.Items)),
		Names:      make([]string, len(res.Items)),
		Gains:      make([]float64, len(res.Items)),
		Candidates: res.Candidates,
		Coverage:   res.Coverage,
	}
	for i, it := range res.Items {
		out.Indices[i] = it.Index
		out.Names[i] = it.Name
		out.Gains[i] = it.Gain
	}
	return out, nil
}
