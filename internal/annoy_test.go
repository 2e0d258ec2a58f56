package internal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnnoyIndexAddAndSearch(t *testing.T) {
	idx, err := NewAnnoyIndex(t.TempDir(), 3)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, "img/one", []float64{1, 0, 0}))
	require.NoError(t, idx.Add(ctx, "img/two", []float64{0, 1, 0}))
	require.NoError(t, idx.Build(ctx, 2))

	results, err := idx.Search(ctx, []float64{1, 0.1, 0}, 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, Name("img/one"), results[0].Name)
	assert.Greater(t, results[0].Score, 0.9)
}

func TestAnnoyIndexRemove(t *testing.T) {
	idx, err := NewAnnoyIndex(t.TempDir(), 3)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, "removeme", []float64{1, 0, 0}))
	assert.True(t, idx.Contains(ctx, "removeme"))

	require.NoError(t, idx.Remove(ctx, "removeme"))
	assert.False(t, idx.Contains(ctx, "removeme"))
	assert.Equal(t, 0, idx.Len())

	require.NoError(t, idx.Remove(ctx, "never-added"))
}

func TestAnnoyIndexDimensionMismatch(t *testing.T) {
	idx, err := NewAnnoyIndex(t.TempDir(), 3)
	require.NoError(t, err)

	ctx := context.Background()
	assert.ErrorIs(t, idx.Add(ctx, "bad", []float64{1, 0}), ErrDimensionMismatch)

	require.NoError(t, idx.Add(ctx, "good", []float64{1, 0, 0}))
	require.NoError(t, idx.Add(ctx, "also-good", []float64{0, 1, 0}))
	require.NoError(t, idx.Build(ctx, 1))

	_, err = idx.Search(ctx, []float64{1, 0}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestAnnoyIndexSearchBeforeBuild(t *testing.T) {
	idx, err := NewAnnoyIndex(t.TempDir(), 3)
	require.NoError(t, err)

	_, err = idx.Search(context.Background(), []float64{1, 0, 0}, 1)
	assert.ErrorIs(t, err, ErrNoIndex)
}

func TestAnnoyIndexInvalidDimension(t *testing.T) {
	_, err := NewAnnoyIndex(t.TempDir(), 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestAnnoyIndexSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	idx1, err := NewAnnoyIndex(dir, 3)
	require.NoError(t, err)
	require.NoError(t, idx1.Add(ctx, "persist/me", []float64{0.5, 0.5, 0}))
	require.NoError(t, idx1.Add(ctx, "persist/other", []float64{0, 0, 1}))
	require.NoError(t, idx1.Build(ctx, 2))
	require.NoError(t, idx1.Save(ctx))

	idx2, err := NewAnnoyIndex(dir, 3)
	require.NoError(t, err)
	require.NoError(t, idx2.Load(ctx))
	assert.True(t, idx2.Contains(ctx, "persist/me"))
	assert.Equal(t, 2, idx2.Len())

	results, err := idx2.Search(ctx, []float64{0.5, 0.5, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, Name("persist/me"), results[0].Name)
}

func TestAnnoyIndexLoadMissing(t *testing.T) {
	idx, err := NewAnnoyIndex(t.TempDir(), 3)
	require.NoError(t, err)
	assert.ErrorIs(t, idx.Load(context.Background()), ErrNoIndex)
}

func TestAnnoyIndexLoadWrongDimension(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	idx1, err := NewAnnoyIndex(dir, 3)
	require.NoError(t, err)
	require.NoError(t, idx1.Add(ctx, "x", []float64{1, 0, 0}))
	require.NoError(t, idx1.Add(ctx, "y", []float64{0, 1, 0}))
	require.NoError(t, idx1.Build(ctx, 1))
	require.NoError(t, idx1.Save(ctx))

	idx2, err := NewAnnoyIndex(dir, 4)
	require.NoError(t, err)
	assert.ErrorIs(t, idx2.Load(ctx), ErrDimensionMismatch)
}

func TestAnnoyIndexNeedsTwoItems(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	idx, err := NewAnnoyIndex(dir, 3)
	require.NoError(t, err)
	assert.ErrorIs(t, idx.Build(ctx, 2), ErrInvalidArgument)

	require.NoError(t, idx.Add(ctx, "alone", []float64{1, 0, 0}))
	assert.ErrorIs(t, idx.Build(ctx, 2), ErrInvalidArgument)
	assert.ErrorIs(t, idx.Save(ctx), ErrNoIndex)
	assert.NoFileExists(t, filepath.Join(dir, IndexFilename))
}

func TestAnnoyIndexSearchSkipsRemoved(t *testing.T) {
	idx, err := NewAnnoyIndex(t.TempDir(), 2)
	require.NoError(t, err)
	ctx := context.Background()

	vectors := map[Name][]float64{
		"a": {1, 0},
		"b": {0.99, 0.1},
		"c": {0.95, 0.3},
		"d": {0.9, 0.4},
		"e": {0, 1},
	}
	for _, name := range []Name{"a", "b", "c", "d", "e"} {
		require.NoError(t, idx.Add(ctx, name, vectors[name]))
	}
	require.NoError(t, idx.Build(ctx, 5))

	// the closest ids to the query are gone
	require.NoError(t, idx.Remove(ctx, "a"))
	require.NoError(t, idx.Remove(ctx, "b"))

	results, err := idx.Search(ctx, []float64{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, Name("c"), results[0].Name)
	assert.Equal(t, Name("d"), results[1].Name)
}

func TestAnnoyIndexRemoveAfterLoad(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	idx, err := NewAnnoyIndex(dir, 2)
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, "a", []float64{1, 0}))
	require.NoError(t, idx.Add(ctx, "b", []float64{0.9, 0.1}))
	require.NoError(t, idx.Add(ctx, "c", []float64{0, 1}))
	require.NoError(t, idx.Build(ctx, 3))
	require.NoError(t, idx.Save(ctx))

	loaded, err := NewAnnoyIndex(dir, 2)
	require.NoError(t, err)
	require.NoError(t, loaded.Load(ctx))
	require.NoError(t, loaded.Remove(ctx, "a"))
	require.NoError(t, loaded.Save(ctx))

	again, err := NewAnnoyIndex(dir, 2)
	require.NoError(t, err)
	require.NoError(t, again.Load(ctx))
	assert.Equal(t, 2, again.Len())
	assert.False(t, again.Contains(ctx, "a"))

	results, err := again.Search(ctx, []float64{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, Name("b"), results[0].Name)
}
