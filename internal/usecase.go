package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Use case input/output DTOs

type InitInput struct {
	Force bool
}

type InitOutput struct {
	Root    string
	Dir     string
	Created bool
}

type ImportInput struct {
	Pool    string
	Path    string
	Records []Record // used when Path is empty
	Refresh bool
	Reindex bool
}

type ImportOutput struct {
	Pool      string
	Dimension int
	Added     int
	Updated   int
	Ignored   int
	Indexed   bool
}

type SelectInput struct {
	Pool        string
	Candidates  *int // nil means selection.candidates
	Select      *int // nil means selection.select
	Tag         string
	Commit      bool
	MetricsFile string
}

type SelectedItem struct {
	Index       int
	Name        string
	Uncertainty float64
	Gain        float64
}

type SelectOutput struct {
	RoundID    string
	Pool       string
	Tag        string
	Items      []SelectedItem
	Candidates []string
	Coverage   float64
	Stats      SelectionStats
	Committed  bool
	CommitHash string
	HookRan    bool
}

type RemoveInput struct {
	Pool  string
	Items []string
}

type RemoveOutput struct {
	Removed int
}

type ListItemsInput struct {
	Pool          string
	Limit         int
	ByUncertainty bool
}

type ItemOutput struct {
	Name        string
	Uncertainty float64
	Dimension   int
}

type ListItemsOutput struct {
	Pool  string
	Total int
	Items []ItemOutput
}

type ListAnnotationsInput struct {
	Tag string
}

type RoundsInput struct {
	Limit int
}

type ShowRoundInput struct {
	ID string
}

type RebuildIndexInput struct {
	Pool string
}

type RebuildIndexOutput struct {
	Pool  string
	Items int
	Trees int
	// Indexed is false when the pool was too small for an index.
	Indexed bool
}

type NeighborsInput struct {
	Pool  string
	Item  string
	Limit int // 0 means index.neighbors
}

type NeighborOutput struct {
	Name  string
	Score float64
}

type NeighborsOutput struct {
	Pool      string
	Item      string
	Neighbors []NeighborOutput
}

type StatusOutput struct {
	Root        string
	Candidates  int
	Select      int
	ZeroVectors string
	Pools       []PoolStatus
	Annotations int
	Rounds      int
	LastRound   *Round
}

type PoolStatus struct {
	PoolInfo
	Indexed bool
}

// Use cases

type InitUseCase struct {
	rt *Runtime
}

func NewInitUseCase(rt *Runtime) *InitUseCase {
	return &InitUseCase{rt: rt}
}

// Execute creates the workspace layout. Existing pieces are kept, so a
// re-run repairs a partial workspace.
func (uc *InitUseCase) Execute(ctx context.Context, input InitInput) (*InitOutput, error) {
	ws, err := uc.rt.Resolver.Target()
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}

	existed := ws.Exists()
	if existed && !input.Force {
		return nil, fmt.Errorf("%w: workspace at %s", ErrAlreadyExists, ws.Dir)
	}

	for _, dir := range []string{ws.Dir, filepath.Dir(ws.HookPath(PostRoundHook))} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	if _, err := os.Stat(ws.ConfigPath()); os.IsNotExist(err) {
		if err := SaveConfig(ws, DefaultConfig()); err != nil {
			return nil, err
		}
	}

	cfg, err := LoadConfig(ws)
	if err != nil {
		return nil, err
	}

	store, err := uc.rt.OpenStore(ctx, ws.StorePath(cfg))
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}
	if err := store.Close(); err != nil {
		return nil, fmt.Errorf("close store: %w", err)
	}

	if _, err := OpenLedger(ws); err != nil {
		if err := InitLedger(ws); err != nil {
			return nil, err
		}
	}

	hook := ws.HookPath(PostRoundHook) + ".sample"
	if _, err := os.Stat(hook); os.IsNotExist(err) {
		if err := os.WriteFile(hook, []byte(HookScript(PostRoundHook)), 0644); err != nil {
			return nil, fmt.Errorf("write hook sample: %w", err)
		}
	}

	uc.rt.logger().WithField("workspace", ws.Dir).Debug("workspace initialized")

	return &InitOutput{Root: ws.Root, Dir: ws.Dir, Created: !existed}, nil
}

type ImportPoolUseCase struct {
	rt *Runtime
}

func NewImportPoolUseCase(rt *Runtime) *ImportPoolUseCase {
	return &ImportPoolUseCase{rt: rt}
}

// Execute loads precomputed records into a pool, creating it on first
// import. Names already in the pool are an error unless Refresh is set, in
// which case their scores and embeddings are replaced.
func (uc *ImportPoolUseCase) Execute(ctx context.Context, input ImportInput) (*ImportOutput, error) {
	pool, err := NewName(input.Pool)
	if err != nil {
		return nil, err
	}

	records := input.Records
	if input.Path != "" {
		if records, err = ReadRecordsFile(input.Path); err != nil {
			return nil, err
		}
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no records to import", ErrInvalidArgument)
	}

	sess, err := uc.rt.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	src, err := NewStaticSource(records)
	if err != nil {
		return nil, err
	}

	matcher, err := NewIgnoreMatcher(sess.Workspace)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", IgnoreFilename, err)
	}
	var names []Name
	for _, n := range src.Names() {
		if !matcher.MatchName(n) {
			names = append(names, n)
		}
	}
	out := &ImportOutput{Pool: pool.String(), Ignored: len(src.Names()) - len(names)}
	if len(names) == 0 {
		return out, nil
	}

	items, err := BuildPool(ctx, names, src, src)
	if err != nil {
		return nil, err
	}
	dim, _ := items.Dimension()
	out.Dimension = dim

	info, err := sess.Store.PoolInfo(ctx, pool)
	switch {
	case errors.Is(err, ErrNotFound):
		if err := sess.Store.CreatePoolWithItems(ctx, pool, dim, items); err != nil {
			return nil, err
		}
		out.Added = len(items)
	case err != nil:
		return nil, err
	case info.Dimension != dim:
		return nil, fmt.Errorf("%w: pool %q has %d dimensions, records have %d", ErrDimensionMismatch, pool, info.Dimension, dim)
	default:
		if out.Added, out.Updated, err = mergeItems(ctx, sess.Store, pool, items, input.Refresh); err != nil {
			return nil, err
		}
	}

	uc.rt.logger().WithFields(logrus.Fields{
		"pool":    pool,
		"added":   out.Added,
		"updated": out.Updated,
		"ignored": out.Ignored,
	}).Info("pool imported")

	if input.Reindex {
		res, err := rebuildIndex(ctx, uc.rt, sess, pool)
		if err != nil {
			return nil, fmt.Errorf("reindex: %w", err)
		}
		out.Indexed = res.Indexed
	}

	return out, nil
}

// mergeItems appends new items to an existing pool. Items already present
// are updated when refresh is set and rejected otherwise.
func mergeItems(ctx context.Context, store PoolRepository, pool Name, items Pool, refresh bool) (added, updated int, err error) {
	existing, err := store.LoadPool(ctx, pool)
	if err != nil {
		return 0, 0, err
	}
	present := make(map[Name]bool, len(existing))
	for _, it := range existing {
		present[it.Name] = true
	}

	var fresh, known Pool
	for _, it := range items {
		if present[it.Name] {
			known = append(known, it)
		} else {
			fresh = append(fresh, it)
		}
	}
	if len(known) > 0 && !refresh {
		return 0, 0, fmt.Errorf("%w: %d items already in pool %q, e.g. %q", ErrAlreadyExists, len(known), pool, known[0].Name)
	}

	if len(known) > 0 {
		if err := store.UpdateItems(ctx, pool, known); err != nil {
			return 0, 0, err
		}
	}
	if len(fresh) > 0 {
		if err := store.AddItems(ctx, pool, fresh); err != nil {
			return 0, 0, err
		}
	}
	return len(fresh), len(known), nil
}

type SelectRoundUseCase struct {
	rt      *Runtime
	newID   func() string
	now     func() time.Time
	hookOut io.Writer
}

func NewSelectRoundUseCase(rt *Runtime) *SelectRoundUseCase {
	return &SelectRoundUseCase{
		rt:      rt,
		newID:   uuid.NewString,
		now:     time.Now,
		hookOut: os.Stderr,
	}
}

// SetHookOutput directs post-round hook output.
func (uc *SelectRoundUseCase) SetHookOutput(w io.Writer) {
	uc.hookOut = w
}

// Execute runs one selection round over a stored pool. With Commit, the
// chosen items are marked for annotation under Tag, removed from the pool
// and the round is recorded in the ledger.
func (uc *SelectRoundUseCase) Execute(ctx context.Context, input SelectInput) (*SelectOutput, error) {
	pool, err := NewName(input.Pool)
	if err != nil {
		return nil, err
	}

	var tag Name
	if input.Tag != "" || input.Commit {
		if tag, err = NewName(input.Tag); err != nil {
			return nil, fmt.Errorf("tag: %w", err)
		}
	}

	sess, err := uc.rt.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	cfg := sess.Config

	candidates := cfg.Selection.Candidates
	if input.Candidates != nil {
		candidates = *input.Candidates
	}
	subset := cfg.Selection.Select
	if input.Select != nil {
		subset = *input.Select
	}

	items, err := sess.Store.LoadPool(ctx, pool)
	if err != nil {
		return nil, err
	}

	simOpts, err := cfg.SimilarityOptions()
	if err != nil {
		return nil, err
	}
	metrics := NewMetrics()
	log := uc.rt.logger().WithField("pool", pool)
	pipeline := NewPipeline(
		WithSimilarityComputer(NewSimilarityComputer(simOpts...)),
		WithLogger(log),
		WithMetrics(metrics),
	)

	res, selectErr := pipeline.Select(ctx, items, candidates, subset)
	if input.MetricsFile != "" {
		if err := metrics.WriteTextfile(input.MetricsFile); err != nil {
			log.WithError(err).Warn("could not write metrics file")
		}
	}
	if selectErr != nil {
		return nil, selectErr
	}

	out := &SelectOutput{
		RoundID:  uc.newID(),
		Pool:     pool.String(),
		Tag:      tag.String(),
		Coverage: res.TotalCoverage(),
		Stats:    res.Stats,
	}
	chosen := make(Pool, len(res.Indices))
	for i, idx := range res.Indices {
		chosen[i] = items[idx]
		out.Items = append(out.Items, SelectedItem{
			Index:       idx,
			Name:        items[idx].Name.String(),
			Uncertainty: items[idx].Uncertainty,
			Gain:        res.Gains[i],
		})
	}
	for _, idx := range res.Candidates {
		out.Candidates = append(out.Candidates, items[idx].Name.String())
	}

	if !input.Commit {
		return out, nil
	}

	if err := uc.commit(ctx, sess, pool, tag, chosen, res, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (uc *SelectRoundUseCase) commit(ctx context.Context, sess *Session, pool, tag Name, chosen Pool, res *SelectionResult, out *SelectOutput) error {
	ledger, err := uc.rt.OpenLedger(sess.Workspace)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	if err := sess.Store.CommitSelection(ctx, pool, chosen, tag, out.RoundID); err != nil {
		return fmt.Errorf("commit selection: %w", err)
	}

	round := &Round{
		ID:         out.RoundID,
		Pool:       pool,
		Tag:        tag,
		Candidates: res.Stats.CandidateSize,
		Select:     res.Stats.SubsetSize,
		PoolSize:   res.Stats.PoolSize,
		Coverage:   out.Coverage,
		CreatedAt:  uc.now().UTC(),
	}
	for _, it := range out.Items {
		round.Items = append(round.Items, RoundItem{Name: Name(it.Name), Uncertainty: it.Uncertainty, Gain: it.Gain})
	}

	commit, err := ledger.Record(ctx, round)
	if err != nil {
		return fmt.Errorf("record round: %w", err)
	}
	out.Committed = true
	out.CommitHash = commit.Hash

	log := uc.rt.logger().WithFields(logrus.Fields{
		"pool":  pool,
		"tag":   tag,
		"round": out.RoundID,
	})
	log.WithField("items", len(chosen)).Info("round committed")

	if idx, err := uc.rt.loadIndex(ctx, sess.Workspace, pool, res.Stats.Dimension); err == nil {
		for _, it := range chosen {
			_ = idx.Remove(ctx, it.Name)
		}
		if err := idx.Save(ctx); err != nil {
			log.WithError(err).Warn("could not update neighbour index")
		}
	}

	ran, err := RunHook(ctx, sess.Workspace, sess.Config, PostRoundHook, map[string]string{
		"POOLSEL_ROUND":    round.ID,
		"POOLSEL_POOL":     pool.String(),
		"POOLSEL_TAG":      tag.String(),
		"POOLSEL_MANIFEST": filepath.Join(sess.Workspace.RoundsPath(), round.Filename()),
	}, uc.hookOut)
	out.HookRan = ran
	if err != nil {
		log.WithError(err).Warn("post-round hook failed")
	}

	return nil
}

type RemoveItemsUseCase struct {
	rt *Runtime
}

func NewRemoveItemsUseCase(rt *Runtime) *RemoveItemsUseCase {
	return &RemoveItemsUseCase{rt: rt}
}

func (uc *RemoveItemsUseCase) Execute(ctx context.Context, input RemoveInput) (*RemoveOutput, error) {
	pool, err := NewName(input.Pool)
	if err != nil {
		return nil, err
	}
	if len(input.Items) == 0 {
		return nil, fmt.Errorf("%w: no items to remove", ErrInvalidArgument)
	}
	names := make([]Name, len(input.Items))
	for i, s := range input.Items {
		if names[i], err = NewName(s); err != nil {
			return nil, err
		}
	}

	sess, err := uc.rt.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	if err := sess.Store.Remove(ctx, pool, names); err != nil {
		return nil, err
	}

	if info, err := sess.Store.PoolInfo(ctx, pool); err == nil {
		if idx, err := uc.rt.loadIndex(ctx, sess.Workspace, pool, info.Dimension); err == nil {
			for _, n := range names {
				_ = idx.Remove(ctx, n)
			}
			_ = idx.Save(ctx)
		}
	}

	return &RemoveOutput{Removed: len(names)}, nil
}

type ListPoolsUseCase struct {
	rt *Runtime
}

func NewListPoolsUseCase(rt *Runtime) *ListPoolsUseCase {
	return &ListPoolsUseCase{rt: rt}
}

func (uc *ListPoolsUseCase) Execute(ctx context.Context) ([]PoolInfo, error) {
	sess, err := uc.rt.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	return sess.Store.ListPools(ctx)
}

type ListItemsUseCase struct {
	rt *Runtime
}

func NewListItemsUseCase(rt *Runtime) *ListItemsUseCase {
	return &ListItemsUseCase{rt: rt}
}

func (uc *ListItemsUseCase) Execute(ctx context.Context, input ListItemsInput) (*ListItemsOutput, error) {
	pool, err := NewName(input.Pool)
	if err != nil {
		return nil, err
	}

	sess, err := uc.rt.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	items, err := sess.Store.LoadPool(ctx, pool)
	if err != nil {
		return nil, err
	}

	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	if input.ByUncertainty && len(items) > 0 {
		if order, err = SelectTopK(items, len(items)); err != nil {
			return nil, err
		}
	}
	if input.Limit > 0 && input.Limit < len(order) {
		order = order[:input.Limit]
	}

	out := &ListItemsOutput{Pool: pool.String(), Total: len(items)}
	for _, i := range order {
		out.Items = append(out.Items, ItemOutput{
			Name:        items[i].Name.String(),
			Uncertainty: items[i].Uncertainty,
			Dimension:   len(items[i].Embedding),
		})
	}
	return out, nil
}

type ListAnnotationsUseCase struct {
	rt *Runtime
}

func NewListAnnotationsUseCase(rt *Runtime) *ListAnnotationsUseCase {
	return &ListAnnotationsUseCase{rt: rt}
}

func (uc *ListAnnotationsUseCase) Execute(ctx context.Context, input ListAnnotationsInput) ([]Annotation, error) {
	var tag Name
	if input.Tag != "" {
		var err error
		if tag, err = NewName(input.Tag); err != nil {
			return nil, err
		}
	}

	sess, err := uc.rt.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	return sess.Store.Annotations(ctx, tag)
}

type RoundsUseCase struct {
	rt *Runtime
}

func NewRoundsUseCase(rt *Runtime) *RoundsUseCase {
	return &RoundsUseCase{rt: rt}
}

// Execute lists recorded rounds, newest first.
func (uc *RoundsUseCase) Execute(ctx context.Context, input RoundsInput) ([]*Round, error) {
	ledger, err := uc.ledger()
	if err != nil {
		return nil, err
	}

	rounds, err := ledger.Rounds(ctx)
	if err != nil {
		return nil, err
	}
	slices.Reverse(rounds)
	if input.Limit > 0 && input.Limit < len(rounds) {
		rounds = rounds[:input.Limit]
	}
	return rounds, nil
}

func (uc *RoundsUseCase) Show(ctx context.Context, input ShowRoundInput) (*Round, error) {
	ledger, err := uc.ledger()
	if err != nil {
		return nil, err
	}
	return ledger.Get(ctx, input.ID)
}

func (uc *RoundsUseCase) Log(ctx context.Context, input RoundsInput) ([]*Commit, error) {
	ledger, err := uc.ledger()
	if err != nil {
		return nil, err
	}
	return ledger.Log(ctx, input.Limit)
}

func (uc *RoundsUseCase) ledger() (RoundRepository, error) {
	ws, _, err := uc.rt.Config()
	if err != nil {
		return nil, err
	}
	return uc.rt.OpenLedger(ws)
}

type RebuildIndexUseCase struct {
	rt *Runtime
}

func NewRebuildIndexUseCase(rt *Runtime) *RebuildIndexUseCase {
	return &RebuildIndexUseCase{rt: rt}
}

func (uc *RebuildIndexUseCase) Execute(ctx context.Context, input RebuildIndexInput) (*RebuildIndexOutput, error) {
	pool, err := NewName(input.Pool)
	if err != nil {
		return nil, err
	}

	sess, err := uc.rt.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	return rebuildIndex(ctx, uc.rt, sess, pool)
}

func rebuildIndex(ctx context.Context, rt *Runtime, sess *Session, pool Name) (*RebuildIndexOutput, error) {
	info, err := sess.Store.PoolInfo(ctx, pool)
	if err != nil {
		return nil, err
	}
	items, err := sess.Store.LoadPool(ctx, pool)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: pool %q is empty", ErrInvalidArgument, pool)
	}

	path := sess.Workspace.VectorPath(pool)
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("clear index: %w", err)
	}

	log := rt.logger().WithFields(logrus.Fields{"pool": pool, "items": len(items)})
	if len(items) < MinIndexItems {
		log.Warn("pool too small for a neighbor index, skipping")
		return &RebuildIndexOutput{Pool: pool.String(), Items: len(items)}, nil
	}

	idx, err := rt.OpenIndex(path, info.Dimension)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if err := idx.Add(ctx, it.Name, it.Embedding); err != nil {
			return nil, fmt.Errorf("index %q: %w", it.Name, err)
		}
	}

	trees := sess.Config.Index.Trees
	if err := idx.Build(ctx, trees); err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	if err := idx.Save(ctx); err != nil {
		return nil, err
	}

	log.Debug("index rebuilt")

	return &RebuildIndexOutput{Pool: pool.String(), Items: len(items), Trees: trees, Indexed: true}, nil
}

type NeighborsUseCase struct {
	rt *Runtime
}

func NewNeighborsUseCase(rt *Runtime) *NeighborsUseCase {
	return &NeighborsUseCase{rt: rt}
}

// Execute lists the items of a pool closest to one of its members.
func (uc *NeighborsUseCase) Execute(ctx context.Context, input NeighborsInput) (*NeighborsOutput, error) {
	pool, err := NewName(input.Pool)
	if err != nil {
		return nil, err
	}
	item, err := NewName(input.Item)
	if err != nil {
		return nil, err
	}

	sess, err := uc.rt.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	limit := input.Limit
	if limit <= 0 {
		limit = sess.Config.Index.Neighbors
	}

	it, err := sess.Store.Item(ctx, pool, item)
	if err != nil {
		return nil, err
	}

	out := &NeighborsOutput{Pool: pool.String(), Item: item.String()}

	idx, err := uc.rt.loadIndex(ctx, sess.Workspace, pool, len(it.Embedding))
	if errors.Is(err, ErrNoIndex) {
		// a lone item has no neighbors and never gets an index
		if info, infoErr := sess.Store.PoolInfo(ctx, pool); infoErr == nil && info.Size < MinIndexItems {
			return out, nil
		}
	}
	if err != nil {
		return nil, err
	}

	found, err := idx.Search(ctx, it.Embedding, limit+1)
	if err != nil {
		return nil, err
	}

	for _, n := range found {
		if n.Name == item {
			continue
		}
		if len(out.Neighbors) == limit {
			break
		}
		out.Neighbors = append(out.Neighbors, NeighborOutput{Name: n.Name.String(), Score: n.Score})
	}
	return out, nil
}

type StatusUseCase struct {
	rt *Runtime
}

func NewStatusUseCase(rt *Runtime) *StatusUseCase {
	return &StatusUseCase{rt: rt}
}

func (uc *StatusUseCase) Execute(ctx context.Context) (*StatusOutput, error) {
	sess, err := uc.rt.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	out := &StatusOutput{
		Root:        sess.Workspace.Root,
		Candidates:  sess.Config.Selection.Candidates,
		Select:      sess.Config.Selection.Select,
		ZeroVectors: sess.Config.Selection.ZeroVectors,
	}

	pools, err := sess.Store.ListPools(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range pools {
		_, statErr := os.Stat(filepath.Join(sess.Workspace.VectorPath(p.Name), IndexFilename))
		out.Pools = append(out.Pools, PoolStatus{PoolInfo: p, Indexed: statErr == nil})
	}

	annotations, err := sess.Store.Annotations(ctx, "")
	if err != nil {
		return nil, err
	}
	out.Annotations = len(annotations)

	if ledger, err := uc.rt.OpenLedger(sess.Workspace); err == nil {
		rounds, err := ledger.Rounds(ctx)
		if err != nil {
			return nil, err
		}
		out.Rounds = len(rounds)
		if len(rounds) > 0 {
			out.LastRound = rounds[len(rounds)-1]
		}
	}

	return out, nil
}
