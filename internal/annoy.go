package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mariotoffia/goannoy/builder"
	"github.com/mariotoffia/goannoy/interfaces"
)

const (
	IndexFilename   = "index.ann"
	MappingFilename = "mapping.json"

	// MinIndexItems is the smallest forest goannoy can save and reload.
	MinIndexItems = 2
)

var _ VectorIndex = (*AnnoyIndex)(nil)

// AnnoyIndex is an approximate nearest neighbour index over one pool's
// embeddings, used to review what a selected item stands in for.
type AnnoyIndex struct {
	mu        sync.RWMutex
	idx       interfaces.AnnoyIndex[float32, uint32]
	dimension int
	nameToID  map[Name]uint32
	idToName  map[uint32]Name
	nextID    uint32
	basePath  string
	built     bool
	onDisk    bool
}

type indexMapping struct {
	Dimension int             `json:"dimension"`
	NameToID  map[Name]uint32 `json:"name_to_id"`
	IDToName  map[uint32]Name `json:"id_to_name"`
	NextID    uint32          `json:"next_id"`
}

func NewAnnoyIndex(basePath string, dimension int) (*AnnoyIndex, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: index dimension %d", ErrInvalidArgument, dimension)
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	idx := builder.Index[float32, uint32]().
		AngularDistance(dimension).
		UseMultiWorkerPolicy().
		MmapIndexAllocator().
		Build()

	return &AnnoyIndex{
		idx:       idx,
		dimension: dimension,
		nameToID:  make(map[Name]uint32),
		idToName:  make(map[uint32]Name),
		basePath:  basePath,
	}, nil
}

func (a *AnnoyIndex) Add(ctx context.Context, name Name, vec []float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(vec) != a.dimension {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, a.dimension, len(vec))
	}

	id, exists := a.nameToID[name]
	if !exists {
		id = a.nextID
		a.nextID++
		a.nameToID[name] = id
		a.idToName[id] = name
	}

	a.idx.AddItem(id, toFloat32(vec))
	a.built = false

	return nil
}

func (a *AnnoyIndex) Remove(ctx context.Context, name Name) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	id, exists := a.nameToID[name]
	if !exists {
		return nil
	}

	// The vector stays in the forest until the next rebuild. Search skips
	// ids without a name.
	delete(a.nameToID, name)
	delete(a.idToName, id)

	return nil
}

func (a *AnnoyIndex) Search(ctx context.Context, query []float64, k int) ([]Neighbor, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.built {
		return nil, fmt.Errorf("%w: index not built", ErrNoIndex)
	}
	if len(query) != a.dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, a.dimension, len(query))
	}

	k = min(k, len(a.nameToID))
	if k <= 0 {
		return nil, nil
	}

	// removed items stay in the forest until the next rebuild, so ask for
	// enough ids to still find k live ones
	stale := int(a.nextID) - len(a.nameToID)
	fetch := min(k+stale, int(a.nextID))

	searchCtx := a.idx.CreateContext()
	ids, distances := a.idx.GetNnsByVector(toFloat32(query), fetch, -1, searchCtx)

	results := make([]Neighbor, 0, k)
	for i, id := range ids {
		if len(results) == k {
			break
		}
		name, exists := a.idToName[id]
		if !exists {
			continue
		}

		// Angular distance is sqrt(2 - 2cos).
		var score float64
		if i < len(distances) {
			d := float64(distances[i])
			score = 1 - d*d/2
		}

		results = append(results, Neighbor{Name: name, Score: score})
	}

	return results, nil
}

func (a *AnnoyIndex) Build(ctx context.Context, numTrees int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if int(a.nextID) < MinIndexItems {
		return fmt.Errorf("%w: an index needs at least %d items, got %d", ErrInvalidArgument, MinIndexItems, a.nextID)
	}

	a.idx.Build(numTrees, -1)
	a.built = true
	a.onDisk = false
	return nil
}

func (a *AnnoyIndex) Save(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.built {
		return fmt.Errorf("%w: save before build", ErrNoIndex)
	}

	// a loaded forest is mapped from the file, rewriting it would truncate
	// the pages being copied
	if !a.onDisk {
		indexPath := filepath.Join(a.basePath, IndexFilename)
		if err := a.idx.Save(indexPath); err != nil {
			return fmt.Errorf("save index: %w", err)
		}
		a.onDisk = true
	}

	mapping := indexMapping{
		Dimension: a.dimension,
		NameToID:  a.nameToID,
		IDToName:  a.idToName,
		NextID:    a.nextID,
	}

	data, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}

	if err := os.WriteFile(filepath.Join(a.basePath, MappingFilename), data, 0644); err != nil {
		return fmt.Errorf("write mapping: %w", err)
	}

	return nil
}

// Load restores a saved index. A missing index is reported as ErrNoIndex.
func (a *AnnoyIndex) Load(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(a.basePath, MappingFilename))
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: no index at %s", ErrNoIndex, a.basePath)
	}
	if err != nil {
		return fmt.Errorf("read mapping: %w", err)
	}

	var mapping indexMapping
	if err := json.Unmarshal(data, &mapping); err != nil {
		return fmt.Errorf("unmarshal mapping: %w", err)
	}
	if mapping.Dimension != a.dimension {
		return fmt.Errorf("%w: index has %d dimensions, pool has %d", ErrDimensionMismatch, mapping.Dimension, a.dimension)
	}

	indexPath := filepath.Join(a.basePath, IndexFilename)
	if _, err := os.Stat(indexPath); os.IsNotExist(err) {
		return fmt.Errorf("%w: no index at %s", ErrNoIndex, a.basePath)
	}

	if err := a.idx.Load(indexPath); err != nil {
		return fmt.Errorf("load index: %w", err)
	}

	a.nameToID = mapping.NameToID
	a.idToName = mapping.IDToName
	a.nextID = mapping.NextID
	a.built = true
	a.onDisk = true
	return nil
}

func (a *AnnoyIndex) Contains(ctx context.Context, name Name) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	_, exists := a.nameToID[name]
	return exists
}

func (a *AnnoyIndex) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.nameToID)
}
