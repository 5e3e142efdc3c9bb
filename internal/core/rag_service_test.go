package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfcindia/sermon-rag/internal/dataset"
)

// fakeEmbedder produces deterministic low-dimension vectors: a fixed vector
// per known phrase, a shared default for everything else.
type fakeEmbedder struct {
	mu         sync.Mutex
	dim        int
	vectors    map[string][]float32
	batchCalls int
	failBatch  int // fail this many batch calls before succeeding
	embedErr   error
}

func newFakeEmbedder(dim int) *fakeEmbedder {
	return &fakeEmbedder{dim: dim, vectors: make(map[string][]float32)}
}

func (f *fakeEmbedder) vectorFor(text string) []float32 {
	if v, ok := f.vectors[text]; ok {
		return v
	}
	v := make([]float32, f.dim)
	v[0] = 1
	return v
}

func (f *fakeEmbedder) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return f.vectorFor(text), nil
}

func (f *fakeEmbedder) GetEmbeddingBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	if f.failBatch > 0 {
		f.failBatch--
		return nil, errors.New("transient embedding failure")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vectorFor(t)
	}
	return out, nil
}

type fakeGenerator struct {
	mu         sync.Mutex
	answer     string
	err        error
	lastPrompt string
}

func (f *fakeGenerator) GetAnswer(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPrompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

// countingReader counts dataset reads so tests can verify the build runs
// exactly once.
type countingReader struct {
	mu      sync.Mutex
	sermons []dataset.Sermon
	err     error
	calls   int
}

func (r *countingReader) ReadSermons() ([]dataset.Sermon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.sermons, nil
}

func (r *countingReader) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func contentmentSermon() dataset.Sermon {
	transcript := strings.TrimSpace(strings.Repeat("godliness with contentment is great gain ", 14))
	return dataset.Sermon{
		ID:         "sermon-0",
		Title:      "Contentment",
		Author:     "Zac Poonen",
		Transcript: transcript,
		VideoID:    "vid123",
	}
}

func testService(t *testing.T, reader dataset.Reader, emb *fakeEmbedder, gen *fakeGenerator) *RAGService {
	t.Helper()
	return NewRAGService(Options{
		Embedder:           emb,
		Generator:          gen,
		Reader:             reader,
		VectorstorePath:    filepath.Join(t.TempDir(), "vectorstore"),
		EmbeddingDimension: emb.dim,
		ChunkSize:          500,
		ChunkOverlap:       200,
		RetrievalK:         5,
		EmbedBatchSize:     10,
		InitTimeout:        time.Minute,
	})
}

func TestServiceStartsUninitialized(t *testing.T) {
	svc := testService(t, &countingReader{}, newFakeEmbedder(3), &fakeGenerator{answer: "ok"})

	assert.Equal(t, StateUninitialized, svc.State())
	assert.False(t, svc.IsReady())
}

func TestQueryBeforeInitializeReturnsNotReady(t *testing.T) {
	svc := testService(t, &countingReader{}, newFakeEmbedder(3), &fakeGenerator{answer: "ok"})

	result, err := svc.Query(context.Background(), "What is contentment?")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestInitializeSuccess(t *testing.T) {
	reader := &countingReader{sermons: []dataset.Sermon{contentmentSermon()}}
	svc := testService(t, reader, newFakeEmbedder(3), &fakeGenerator{answer: "ok"})

	require.NoError(t, svc.Initialize())
	assert.Equal(t, StateReady, svc.State())
	assert.True(t, svc.IsReady())
	assert.Equal(t, 1, reader.callCount())
}

func TestInitializeFailureSetsFailed(t *testing.T) {
	reader := &countingReader{err: errors.New("dataset missing")}
	svc := testService(t, reader, newFakeEmbedder(3), &fakeGenerator{answer: "ok"})

	err := svc.Initialize()
	require.Error(t, err)

	var initErr *InitializationError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, "vectorstore", initErr.Stage)

	assert.Equal(t, StateFailed, svc.State())
	assert.False(t, svc.IsReady())

	_, qerr := svc.Query(context.Background(), "anything")
	assert.ErrorIs(t, qerr, ErrNotReady)
}

func TestConcurrentInitializeRunsBuildOnce(t *testing.T) {
	reader := &countingReader{sermons: []dataset.Sermon{contentmentSermon()}}
	svc := testService(t, reader, newFakeEmbedder(3), &fakeGenerator{answer: "ok"})

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.Initialize()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, reader.callCount(), "dataset must be read exactly once")
	for i, err := range errs {
		assert.NoError(t, err, "caller %d", i)
	}
	assert.True(t, svc.IsReady())
}

func TestQueryEndToEnd(t *testing.T) {
	sermon := contentmentSermon()
	require.Greater(t, len(sermon.Transcript), 500)
	require.Less(t, len(sermon.Transcript), 620)

	reader := &countingReader{sermons: []dataset.Sermon{sermon}}
	gen := &fakeGenerator{answer: "Contentment is trusting God in every season."}
	svc := testService(t, reader, newFakeEmbedder(3), gen)
	require.NoError(t, svc.Initialize())

	result, err := svc.Query(context.Background(), "What is contentment?")
	require.NoError(t, err)

	assert.NotEmpty(t, result.Answer)
	assert.LessOrEqual(t, result.NumSources, 2)
	assert.Greater(t, result.NumSources, 0)
	assert.Len(t, result.Sources, result.NumSources)
	assert.Equal(t, "Contentment", result.Sources[0].Title)
	assert.Equal(t, "Zac Poonen", result.Sources[0].Author)

	// The generator only ever sees the assembled grounded prompt.
	assert.Contains(t, gen.lastPrompt, "What is contentment?")
	assert.Contains(t, gen.lastPrompt, "Sermon 1: Contentment")
}

func TestQueryEmptyCorpus(t *testing.T) {
	reader := &countingReader{} // zero sermons
	svc := testService(t, reader, newFakeEmbedder(3), &fakeGenerator{answer: "ok"})
	require.NoError(t, svc.Initialize(), "empty dataset must still build a valid store")
	require.True(t, svc.IsReady())

	result, err := svc.Query(context.Background(), "anything")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrEmptyCorpus)
}

func TestQueryEmbeddingFailureIsRetrievalError(t *testing.T) {
	reader := &countingReader{sermons: []dataset.Sermon{contentmentSermon()}}
	emb := newFakeEmbedder(3)
	svc := testService(t, reader, emb, &fakeGenerator{answer: "ok"})
	require.NoError(t, svc.Initialize())

	emb.mu.Lock()
	emb.embedErr = errors.New("provider unavailable")
	emb.mu.Unlock()

	_, err := svc.Query(context.Background(), "anything")
	var retErr *RetrievalError
	assert.ErrorAs(t, err, &retErr)
	assert.True(t, svc.IsReady(), "per-query failure must not change service state")
}

func TestQueryGenerationFailureIsGenerationError(t *testing.T) {
	reader := &countingReader{sermons: []dataset.Sermon{contentmentSermon()}}
	gen := &fakeGenerator{err: fmt.Errorf("quota exceeded for model")}
	svc := testService(t, reader, newFakeEmbedder(3), gen)
	require.NoError(t, svc.Initialize())

	_, err := svc.Query(context.Background(), "anything")
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.True(t, genErr.RateLimited)
	assert.True(t, svc.IsReady())
}

func TestStatusReflectsStateMachine(t *testing.T) {
	reader := &countingReader{sermons: []dataset.Sermon{contentmentSermon()}}
	svc := testService(t, reader, newFakeEmbedder(3), &fakeGenerator{answer: "ok"})

	st := svc.Status()
	assert.False(t, st.Ready)
	assert.Equal(t, "not_ready", st.OverallStatus)
	assert.False(t, st.Components.Vectorstore)

	require.NoError(t, svc.Initialize())

	st = svc.Status()
	assert.True(t, st.Exists)
	assert.True(t, st.Loaded)
	assert.True(t, st.Ready)
	assert.Equal(t, "ready", st.OverallStatus)
	assert.Equal(t, 2, st.DocumentCount)
	assert.Equal(t, ComponentStatus{
		Embeddings:  true,
		LLM:         true,
		Vectorstore: true,
		Retriever:   true,
		RAGChain:    true,
	}, st.Components)
}
