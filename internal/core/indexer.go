package core

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/cfcindia/sermon-rag/internal/dataset"
	"github.com/cfcindia/sermon-rag/internal/store"
)

const embedBatchMaxRetries = 3

// Indexer builds the persisted vectorstore from the sermon dataset: chunk
// every transcript, embed the chunks in batches, persist atomically. The
// build runs once offline or on first startup; the result is read-only.
type Indexer struct {
	embedder  Embedder
	chunker   *Chunker
	dimension int
	batchSize int
}

func NewIndexer(embedder Embedder, chunker *Chunker, dimension, batchSize int) *Indexer {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Indexer{
		embedder:  embedder,
		chunker:   chunker,
		dimension: dimension,
		batchSize: batchSize,
	}
}

// LoadOrBuild loads the vectorstore at path when one is present, otherwise
// builds it from the dataset. A present store is never rebuilt, and loading
// never touches the dataset. A dimension mismatch between the stored index
// and the configured embedder is an error, not a silent rebuild.
func (ix *Indexer) LoadOrBuild(ctx context.Context, path string, reader dataset.Reader) (*store.VectorStore, error) {
	if store.Exists(path) {
		log.Println("Loading existing vectorstore...")
		vs, err := store.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load vectorstore at %s: %w", path, err)
		}
		if vs.Dimension() != ix.dimension {
			return nil, fmt.Errorf("vectorstore at %s has dimension %d but the configured embedder produces %d", path, vs.Dimension(), ix.dimension)
		}
		log.Printf("Vectorstore loaded with %d chunks.", vs.Count())
		return vs, nil
	}

	log.Println("Vectorstore not found. Building new one...")
	return ix.Build(ctx, path, reader)
}

// ForceRebuild deletes any existing store at path and builds from scratch.
// Operator action only; never triggered implicitly.
func (ix *Indexer) ForceRebuild(ctx context.Context, path string, reader dataset.Reader) (*store.VectorStore, error) {
	if err := store.Delete(path); err != nil {
		return nil, err
	}
	return ix.Build(ctx, path, reader)
}

// Build reads the dataset, chunks and embeds every sermon, and persists the
// assembled store atomically at path.
func (ix *Indexer) Build(ctx context.Context, path string, reader dataset.Reader) (*store.VectorStore, error) {
	sermons, err := reader.ReadSermons()
	if err != nil {
		return nil, fmt.Errorf("failed to read sermon dataset: %w", err)
	}
	log.Printf("Dataset loaded: %d sermons", len(sermons))

	var chunks []store.SermonChunk
	for _, sermon := range sermons {
		for idx, span := range ix.chunker.Split(sermon.Transcript) {
			chunks = append(chunks, store.SermonChunk{
				ID:          uuid.NewString(),
				SermonID:    sermon.ID,
				Title:       sermon.Title,
				Author:      sermon.Author,
				VideoID:     sermon.VideoID,
				Content:     span.Text,
				Index:       idx,
				StartOffset: span.StartOffset,
			})
		}
	}
	log.Printf("Split into %d chunks", len(chunks))

	vs, err := store.New(ix.dimension)
	if err != nil {
		return nil, err
	}

	for start := 0; start < len(chunks); start += ix.batchSize {
		end := start + ix.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Content
		}

		vectors, err := ix.embedBatchWithRetry(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks %d-%d: %w", start, end-1, err)
		}
		for i, vec := range vectors {
			if err := vs.Add(batch[i], vec); err != nil {
				return nil, fmt.Errorf("failed to index chunk %d: %w", start+i, err)
			}
		}

		if end%1000 < ix.batchSize || end == len(chunks) {
			log.Printf("Embedded %d/%d chunks...", end, len(chunks))
		}
	}

	if err := vs.Save(path); err != nil {
		return nil, err
	}
	log.Printf("Vectorstore saved to %s with %d chunks.", path, vs.Count())
	return vs, nil
}

// embedBatchWithRetry retries only the failed batch, so one transient
// provider error does not restart the whole corpus.
func (ix *Indexer) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= embedBatchMaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 2 * time.Second
			log.Printf("Retrying embedding batch in %s (attempt %d/%d) after: %v", backoff, attempt, embedBatchMaxRetries, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		vectors, err := ix.embedder.GetEmbeddingBatch(ctx, texts)
		if err == nil {
			if len(vectors) != len(texts) {
				return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
			}
			return vectors, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
