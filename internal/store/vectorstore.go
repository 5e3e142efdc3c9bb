package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/cfcindia/sermon-rag/internal/utils"
)

// On-disk layout: a vectorstore directory holds an index artifact and a
// payload artifact. The store is present only when both files exist.
const (
	indexFileName   = "index.json"
	payloadFileName = "chunks.db"
)

type indexFile struct {
	Dimension int         `json:"dimension"`
	Vectors   [][]float32 `json:"vectors"`
}

// VectorStore is an in-memory nearest-neighbor index over sermon chunk
// embeddings, loaded from or persisted to a directory on disk. It is
// read-only after Load or after the build that produced it completes.
type VectorStore struct {
	dimension int
	vectors   [][]float32
	chunks    []SermonChunk
}

// New returns an empty store accepting vectors of the given dimension.
func New(dimension int) (*VectorStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", dimension)
	}
	return &VectorStore{dimension: dimension}, nil
}

// Exists reports whether a complete vectorstore is present at path.
// A half-written store (either artifact missing) does not count.
func Exists(path string) bool {
	for _, name := range []string{indexFileName, payloadFileName} {
		if _, err := os.Stat(filepath.Join(path, name)); err != nil {
			return false
		}
	}
	return true
}

// Load reads a persisted store, validating that every vector has exactly one
// payload and that all vectors share the recorded dimension.
func Load(path string) (*VectorStore, error) {
	data, err := os.ReadFile(filepath.Join(path, indexFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read index artifact: %w", err)
	}
	var idx indexFile
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("failed to decode index artifact: %w", err)
	}
	if idx.Dimension <= 0 {
		return nil, fmt.Errorf("index artifact has invalid dimension %d", idx.Dimension)
	}
	for i, vec := range idx.Vectors {
		if len(vec) != idx.Dimension {
			return nil, fmt.Errorf("vector %d has dimension %d, index declares %d", i, len(vec), idx.Dimension)
		}
	}

	db, err := openChunkDB(filepath.Join(path, payloadFileName))
	if err != nil {
		return nil, err
	}
	defer db.Close()

	chunks, err := db.readChunks()
	if err != nil {
		return nil, err
	}
	if len(chunks) != len(idx.Vectors) {
		return nil, fmt.Errorf("store is corrupt: %d vectors but %d payloads", len(idx.Vectors), len(chunks))
	}

	return &VectorStore{
		dimension: idx.Dimension,
		vectors:   idx.Vectors,
		chunks:    chunks,
	}, nil
}

// Add appends a chunk and its embedding. Only valid during index build.
func (vs *VectorStore) Add(chunk SermonChunk, vector []float32) error {
	if len(vector) != vs.dimension {
		return fmt.Errorf("vector dimension %d does not match store dimension %d", len(vector), vs.dimension)
	}
	vs.chunks = append(vs.chunks, chunk)
	vs.vectors = append(vs.vectors, vector)
	return nil
}

// Save persists the store atomically: both artifacts are written to a
// temporary directory which is then renamed into place, so an interrupted
// build never leaves a partial store at path. Any previous store at path,
// including a half-present one, is replaced.
func (vs *VectorStore) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create vectorstore parent directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.RemoveAll(tmp); err != nil {
		return fmt.Errorf("failed to clear temporary vectorstore directory: %w", err)
	}
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return fmt.Errorf("failed to create temporary vectorstore directory: %w", err)
	}

	idx := indexFile{Dimension: vs.dimension, Vectors: vs.vectors}
	if idx.Vectors == nil {
		idx.Vectors = [][]float32{}
	}
	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("failed to encode index artifact: %w", err)
	}
	if err := os.WriteFile(filepath.Join(tmp, indexFileName), data, 0o644); err != nil {
		return fmt.Errorf("failed to write index artifact: %w", err)
	}

	db, err := openChunkDB(filepath.Join(tmp, payloadFileName))
	if err != nil {
		return err
	}
	if err := db.insertChunks(vs.chunks); err != nil {
		db.Close()
		return err
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("failed to close payload artifact: %w", err)
	}

	// Rename cannot replace a non-empty directory, so clear any previous
	// store only after the new one is fully written.
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove previous vectorstore: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to publish vectorstore: %w", err)
	}
	return nil
}

// Delete removes any persisted store at path, including a stale temporary
// directory from an interrupted build.
func Delete(path string) error {
	if err := os.RemoveAll(path + ".tmp"); err != nil {
		return fmt.Errorf("failed to remove temporary vectorstore: %w", err)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove vectorstore: %w", err)
	}
	return nil
}

// Search returns the k chunks nearest to the query vector by cosine
// similarity, in descending score order. Ties keep insertion order.
// Fewer than k results are returned when the store holds fewer chunks.
func (vs *VectorStore) Search(vector []float32, k int) ([]SearchResult, error) {
	if len(vector) != vs.dimension {
		return nil, fmt.Errorf("query vector dimension %d does not match store dimension %d", len(vector), vs.dimension)
	}
	if k <= 0 {
		k = 5
	}

	results := make([]SearchResult, 0, len(vs.chunks))
	for i := range vs.vectors {
		score, err := utils.CosineSimilarity(vector, vs.vectors[i])
		if err != nil {
			return nil, fmt.Errorf("failed to score chunk %d: %w", i, err)
		}
		results = append(results, SearchResult{Chunk: vs.chunks[i], Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// Count returns the number of indexed chunks.
func (vs *VectorStore) Count() int {
	return len(vs.chunks)
}

// Dimension returns the embedding dimension the store was built with.
func (vs *VectorStore) Dimension() int {
	return vs.dimension
}
