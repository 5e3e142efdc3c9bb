package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkFixture(position int) SermonChunk {
	return SermonChunk{
		ID:          "chunk-" + string(rune('a'+position)),
		SermonID:    "sermon-0",
		Title:       "Contentment",
		Author:      "Zac Poonen",
		VideoID:     "vid123",
		Content:     "godliness with contentment is great gain",
		Index:       position,
		StartOffset: position * 300,
	}
}

func builtStore(t *testing.T, vectors [][]float32) *VectorStore {
	t.Helper()
	require.NotEmpty(t, vectors)
	vs, err := New(len(vectors[0]))
	require.NoError(t, err)
	for i, vec := range vectors {
		require.NoError(t, vs.Add(chunkFixture(i), vec))
	}
	return vs
}

func TestNewRejectsInvalidDimension(t *testing.T) {
	for _, dim := range []int{0, -1} {
		_, err := New(dim)
		assert.Error(t, err, "dimension %d", dim)
	}
}

func TestAddRejectsWrongDimension(t *testing.T) {
	vs, err := New(3)
	require.NoError(t, err)
	assert.Error(t, vs.Add(chunkFixture(0), []float32{1, 0}))
	assert.Equal(t, 0, vs.Count())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectorstore")
	vs := builtStore(t, [][]float32{{1, 0, 0}, {0, 1, 0}})

	require.NoError(t, vs.Save(path))
	assert.True(t, Exists(path))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary directory must not survive Save")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Dimension())
	assert.Equal(t, 2, loaded.Count())

	results, err := loaded.Search([]float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, chunkFixture(0), results[0].Chunk)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestSaveEmptyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectorstore")
	vs, err := New(3)
	require.NoError(t, err)

	require.NoError(t, vs.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Count())
	assert.Equal(t, 3, loaded.Dimension())
}

func TestSaveOverwritesExistingStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectorstore")
	require.NoError(t, builtStore(t, [][]float32{{1, 0, 0}, {0, 1, 0}}).Save(path))
	require.NoError(t, builtStore(t, [][]float32{{0, 0, 1}}).Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Count())
}

func TestExistsRequiresBothArtifacts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectorstore")
	assert.False(t, Exists(path))

	require.NoError(t, builtStore(t, [][]float32{{1, 0, 0}}).Save(path))
	require.True(t, Exists(path))

	for _, name := range []string{indexFileName, payloadFileName} {
		t.Run(name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "vectorstore")
			require.NoError(t, builtStore(t, [][]float32{{1, 0, 0}}).Save(dir))
			require.NoError(t, os.Remove(filepath.Join(dir, name)))
			assert.False(t, Exists(dir), "store missing %s must not count as present", name)
		})
	}
}

func TestLoadRejectsCorruptIndex(t *testing.T) {
	writeStore := func(t *testing.T, mutate func(*indexFile)) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "vectorstore")
		require.NoError(t, builtStore(t, [][]float32{{1, 0, 0}, {0, 1, 0}}).Save(path))

		indexPath := filepath.Join(path, indexFileName)
		data, err := os.ReadFile(indexPath)
		require.NoError(t, err)
		var idx indexFile
		require.NoError(t, json.Unmarshal(data, &idx))
		mutate(&idx)
		data, err = json.Marshal(idx)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(indexPath, data, 0o644))
		return path
	}

	t.Run("invalid dimension", func(t *testing.T) {
		path := writeStore(t, func(idx *indexFile) { idx.Dimension = 0 })
		_, err := Load(path)
		assert.ErrorContains(t, err, "invalid dimension")
	})

	t.Run("vector dimension mismatch", func(t *testing.T) {
		path := writeStore(t, func(idx *indexFile) { idx.Vectors[1] = []float32{1, 0} })
		_, err := Load(path)
		assert.ErrorContains(t, err, "dimension")
	})

	t.Run("vector payload count mismatch", func(t *testing.T) {
		path := writeStore(t, func(idx *indexFile) { idx.Vectors = idx.Vectors[:1] })
		_, err := Load(path)
		assert.ErrorContains(t, err, "corrupt")
	})

	t.Run("malformed json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "vectorstore")
		require.NoError(t, builtStore(t, [][]float32{{1, 0, 0}}).Save(path))
		require.NoError(t, os.WriteFile(filepath.Join(path, indexFileName), []byte("{not json"), 0o644))
		_, err := Load(path)
		assert.ErrorContains(t, err, "decode")
	})
}

func TestDeleteRemovesStoreAndStaleTmp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectorstore")
	require.NoError(t, builtStore(t, [][]float32{{1, 0, 0}}).Save(path))
	require.NoError(t, os.MkdirAll(path+".tmp", 0o755))

	require.NoError(t, Delete(path))
	assert.False(t, Exists(path))
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	// Deleting a store that is not there is not an error.
	assert.NoError(t, Delete(path))
}

func TestSearchRanksByCosineSimilarity(t *testing.T) {
	vs := builtStore(t, [][]float32{
		{0, 1, 0},       // orthogonal to query
		{1, 0, 0},       // identical direction
		{0.7, 0.7, 0},   // in between
		{-1, 0, 0},      // opposite
		{0.9, 0.1, 0.1}, // close
	})

	results, err := vs.Search([]float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, 1, results[0].Chunk.Index)
	assert.Equal(t, 4, results[1].Chunk.Index)
	assert.Equal(t, 2, results[2].Chunk.Index)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestSearchTiesKeepInsertionOrder(t *testing.T) {
	vs := builtStore(t, [][]float32{
		{2, 0, 0}, // same direction, different magnitude: identical cosine
		{1, 0, 0},
		{3, 0, 0},
	})

	results, err := vs.Search([]float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 0, results[0].Chunk.Index)
	assert.Equal(t, 1, results[1].Chunk.Index)
	assert.Equal(t, 2, results[2].Chunk.Index)
}

func TestSearchKClamping(t *testing.T) {
	vs := builtStore(t, [][]float32{{1, 0, 0}, {0, 1, 0}})

	results, err := vs.Search([]float32{1, 0, 0}, 50)
	require.NoError(t, err)
	assert.Len(t, results, 2, "k larger than store clamps to the store size")

	results, err = vs.Search([]float32{1, 0, 0}, 0)
	require.NoError(t, err)
	assert.Len(t, results, 2, "non-positive k falls back to the default")
}

func TestSearchRejectsWrongDimension(t *testing.T) {
	vs := builtStore(t, [][]float32{{1, 0, 0}})
	_, err := vs.Search([]float32{1, 0}, 5)
	assert.Error(t, err)
}
