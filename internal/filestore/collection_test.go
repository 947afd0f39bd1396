package filestore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollection_PutPersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	c := NewCollection[string, int](CollectionConfig{FilePath: path, Name: "test"})
	require.NoError(t, c.Load())
	require.NoError(t, c.Put("a", 1))

	reloaded := NewCollection[string, int](CollectionConfig{FilePath: path, Name: "test"})
	require.NoError(t, reloaded.Load())

	v, ok := reloaded.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestCollection_DeleteRemovesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	c := NewCollection[string, int](CollectionConfig{FilePath: path})
	require.NoError(t, c.Load())
	require.NoError(t, c.Put("a", 1))
	require.NoError(t, c.Delete("a"))

	_, ok := c.Get("a")
	assert.False(t, ok)

	reloaded := NewCollection[string, int](CollectionConfig{FilePath: path})
	require.NoError(t, reloaded.Load())
	assert.Equal(t, 0, reloaded.Len())
}

func TestCollection_InMemoryOnlySkipsPersistence(t *testing.T) {
	c := NewCollection[string, int](CollectionConfig{})
	require.NoError(t, c.Load())
	require.NoError(t, c.Put("a", 1))

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestCollection_MutateIsAtomicAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	c := NewCollection[string, int](CollectionConfig{FilePath: path})
	require.NoError(t, c.Load())

	require.NoError(t, c.Mutate(func(items map[string]int) error {
		items["a"] = 1
		items["b"] = 2
		return nil
	}))

	assert.Equal(t, 2, c.Len())
	snap := c.Snapshot()
	assert.Equal(t, 1, snap["a"])
	assert.Equal(t, 2, snap["b"])
}

func TestCollection_LoadMissingFileIsNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	c := NewCollection[string, int](CollectionConfig{FilePath: path})
	require.NoError(t, c.Load())
	assert.Equal(t, 0, c.Len())
}
