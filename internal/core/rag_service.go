package core

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cfcindia/sermon-rag/internal/config"
	"github.com/cfcindia/sermon-rag/internal/dataset"
	"github.com/cfcindia/sermon-rag/internal/store"
)

// Embedder maps text into the embedding vector space. Index build and query
// time must use the same embedder for distances to be meaningful.
type Embedder interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
	GetEmbeddingBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces a text answer from a fully-assembled prompt.
type Generator interface {
	GetAnswer(ctx context.Context, prompt string) (string, error)
}

// State is the RAG service lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// QueryResult is the answer to one question, with ranked source citations.
// Constructed per request, never persisted.
type QueryResult struct {
	Question   string     `json:"question"`
	Answer     string     `json:"answer"`
	Sources    []Citation `json:"sources"`
	NumSources int        `json:"num_sources"`
}

// ComponentStatus reports each pipeline component, derived from the one
// state machine rather than independently tracked flags.
type ComponentStatus struct {
	Embeddings  bool `json:"embeddings"`
	LLM         bool `json:"llm"`
	Vectorstore bool `json:"vectorstore"`
	Retriever   bool `json:"retriever"`
	RAGChain    bool `json:"rag_chain"`
}

// Status is the detailed service/vectorstore status snapshot.
type Status struct {
	Path          string          `json:"path"`
	Exists        bool            `json:"exists"`
	Loaded        bool            `json:"loaded"`
	Ready         bool            `json:"ready"`
	DocumentCount int             `json:"document_count"`
	State         string          `json:"state"`
	Components    ComponentStatus `json:"components"`
	OverallStatus string          `json:"overall_status"`
	Error         string          `json:"error,omitempty"`
}

// Options configures a RAGService. Embedder and Generator may be left nil,
// in which case a Gemini-backed LLMService is created during initialization.
type Options struct {
	Embedder           Embedder
	Generator          Generator
	Reader             dataset.Reader
	VectorstorePath    string
	EmbeddingDimension int
	ChunkSize          int
	ChunkOverlap       int
	RetrievalK         int
	EmbedBatchSize     int
	InitTimeout        time.Duration
}

// RAGService owns the retrieval-and-answering pipeline lifecycle:
// uninitialized -> initializing -> ready, or -> failed. Effectively
// immutable once ready; concurrent queries need no locking among themselves.
type RAGService struct {
	opts Options

	initOnce sync.Once

	mu          sync.RWMutex
	state       State
	initErr     error
	llm         *LLMService // owned Gemini client, nil when handles were injected
	embedder    Embedder
	vectorstore *store.VectorStore
	generator   Generator
	retriever   *retriever
	ragChain    *ragChain
}

func NewRAGService(opts Options) *RAGService {
	if opts.RetrievalK <= 0 {
		opts.RetrievalK = 5
	}
	if opts.InitTimeout <= 0 {
		opts.InitTimeout = 10 * time.Minute
	}
	return &RAGService{opts: opts, state: StateUninitialized}
}

// Initialize runs the initialization sequence at most once, regardless of
// how many callers race into it; late callers block until the first attempt
// reaches Ready or Failed and then share its outcome. The attempt itself is
// bounded by the configured timeout, so nobody hangs forever.
func (s *RAGService) Initialize() error {
	s.initOnce.Do(func() {
		if err := s.initialize(); err != nil {
			s.mu.Lock()
			s.state = StateFailed
			s.initErr = err
			s.mu.Unlock()
			log.Printf("RAG service initialization failed: %v", err)
		}
	})
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initErr
}

func (s *RAGService) initialize() error {
	s.mu.Lock()
	s.state = StateInitializing
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.InitTimeout)
	defer cancel()

	// Acquire the embedding capability.
	embedder := s.opts.Embedder
	generator := s.opts.Generator
	var llm *LLMService
	if embedder == nil || generator == nil {
		var err error
		llm, err = NewLLMService(ctx, config.AppConfig.GeminiAPIKey)
		if err != nil {
			return &InitializationError{Stage: "embeddings", Err: err}
		}
		if embedder == nil {
			embedder = llm
		}
	}

	// Load the vectorstore, or build it from the dataset.
	indexer := NewIndexer(embedder, NewChunker(s.opts.ChunkSize, s.opts.ChunkOverlap), s.opts.EmbeddingDimension, s.opts.EmbedBatchSize)
	vs, err := indexer.LoadOrBuild(ctx, s.opts.VectorstorePath, s.opts.Reader)
	if err != nil {
		if llm != nil {
			llm.Close()
		}
		return &InitializationError{Stage: "vectorstore", Err: err}
	}

	// Acquire the generation capability.
	if generator == nil {
		generator = llm
	}

	// Assemble the retrieval pipeline.
	ret := &retriever{embedder: embedder, store: vs, k: s.opts.RetrievalK}
	chain := &ragChain{retriever: ret, generator: generator}

	s.mu.Lock()
	s.llm = llm
	s.embedder = embedder
	s.vectorstore = vs
	s.generator = generator
	s.retriever = ret
	s.ragChain = chain
	s.state = StateReady
	s.mu.Unlock()

	log.Printf("RAG service ready with %d indexed chunks.", vs.Count())
	return nil
}

// IsReady is the authoritative readiness predicate: true only when the state
// machine reached Ready and every pipeline component is assembled. All call
// sites use this rather than re-deriving readiness.
func (s *RAGService) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readyLocked()
}

func (s *RAGService) readyLocked() bool {
	return s.state == StateReady &&
		s.embedder != nil &&
		s.vectorstore != nil &&
		s.generator != nil &&
		s.retriever != nil &&
		s.ragChain != nil
}

// State returns the current lifecycle state.
func (s *RAGService) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// InitError returns the recorded initialization failure, if any.
func (s *RAGService) InitError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initErr
}

// Close releases the owned Gemini client, if the service created one.
func (s *RAGService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.llm != nil {
		s.llm.Close()
		s.llm = nil
	}
}

// Query answers a question from the indexed sermons: embed the question,
// retrieve the k nearest chunks, synthesize a grounded answer, and attach
// citations in retrieval-rank order. Returns ErrNotReady before the service
// is ready and ErrEmptyCorpus when nothing is indexed; per-query failures
// come back as RetrievalError or GenerationError and never alter service
// state.
func (s *RAGService) Query(ctx context.Context, question string) (*QueryResult, error) {
	s.mu.RLock()
	if !s.readyLocked() {
		s.mu.RUnlock()
		return nil, ErrNotReady
	}
	vs := s.vectorstore
	chain := s.ragChain
	s.mu.RUnlock()

	if vs.Count() == 0 {
		return nil, ErrEmptyCorpus
	}

	results, err := chain.retriever.retrieve(ctx, question)
	if err != nil {
		return nil, err
	}

	answer, err := chain.answer(ctx, question, results)
	if err != nil {
		return nil, err
	}

	sources := make([]Citation, 0, len(results))
	for _, res := range results {
		sources = append(sources, buildCitation(res.Chunk))
	}

	return &QueryResult{
		Question:   question,
		Answer:     answer,
		Sources:    sources,
		NumSources: len(sources),
	}, nil
}

// Status reports the vectorstore and component state in one snapshot.
func (s *RAGService) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ready := s.readyLocked()
	st := Status{
		Path:       s.opts.VectorstorePath,
		Exists:     store.Exists(s.opts.VectorstorePath),
		Loaded:     s.vectorstore != nil,
		Ready:      ready,
		State:      s.state.String(),
		Components: ComponentStatus{
			Embeddings:  s.embedder != nil,
			LLM:         s.generator != nil,
			Vectorstore: s.vectorstore != nil,
			Retriever:   s.retriever != nil,
			RAGChain:    s.ragChain != nil,
		},
	}
	if s.vectorstore != nil {
		st.DocumentCount = s.vectorstore.Count()
	}
	if ready {
		st.OverallStatus = "ready"
	} else {
		st.OverallStatus = "not_ready"
	}
	if s.initErr != nil {
		st.Error = s.initErr.Error()
	}
	return st
}

// retriever pairs the query-time embedder with the store's top-k search.
type retriever struct {
	embedder Embedder
	store    *store.VectorStore
	k        int
}

func (r *retriever) retrieve(ctx context.Context, question string) ([]store.SearchResult, error) {
	vec, err := r.embedder.GetEmbedding(ctx, question)
	if err != nil {
		return nil, &RetrievalError{Err: fmt.Errorf("failed to embed question: %w", err)}
	}
	results, err := r.store.Search(vec, r.k)
	if err != nil {
		return nil, &RetrievalError{Err: err}
	}
	return results, nil
}

// ragChain combines retrieved context with the question into a grounded
// prompt and calls the generation capability.
type ragChain struct {
	retriever *retriever
	generator Generator
}

const ragPromptTemplate = `You are a helpful assistant that answers questions based on sermon content from Zac Poonen.

Use the following context from the sermons to answer the question. If the context doesn't contain
enough information to answer the question, say so honestly.

Context from sermons:
%s

Question: %s

Answer: Provide a thoughtful response based on the sermon content. Include relevant Bible verses
or spiritual insights when mentioned in the context. Be helpful and encouraging in your tone.`

// contextPreviewLength bounds each chunk's contribution to the prompt.
const contextPreviewLength = 500

func buildPrompt(question string, results []store.SearchResult) string {
	var contextBuilder strings.Builder
	for i, res := range results {
		title := res.Chunk.Title
		if title == "" {
			title = "Unknown Title"
		}
		contextBuilder.WriteString(fmt.Sprintf("Sermon %d: %s\n%s\n\n", i+1, title, cleanContentPreview(res.Chunk.Content, contextPreviewLength)))
	}
	return fmt.Sprintf(ragPromptTemplate, strings.TrimSpace(contextBuilder.String()), question)
}

func (c *ragChain) answer(ctx context.Context, question string, results []store.SearchResult) (string, error) {
	prompt := buildPrompt(question, results)
	answer, err := c.generator.GetAnswer(ctx, prompt)
	if err != nil {
		return "", &GenerationError{Err: err, RateLimited: IsRateLimited(err)}
	}
	return answer, nil
}

// Process-wide singleton: first access creates the service, later accesses
// reuse it. Rebuilding requires explicit operator action, never an implicit
// re-creation per request.
var (
	serviceOnce     sync.Once
	serviceInstance *RAGService
)

// GetRAGService returns the shared RAG service, constructing it from
// AppConfig on first access. Callers still need to run Initialize.
func GetRAGService() *RAGService {
	serviceOnce.Do(func() {
		cfg := config.AppConfig
		serviceInstance = NewRAGService(Options{
			Reader:             dataset.NewCSVReader(cfg.DatasetPath),
			VectorstorePath:    cfg.VectorstorePath,
			EmbeddingDimension: cfg.EmbeddingDimension,
			ChunkSize:          cfg.ChunkSize,
			ChunkOverlap:       cfg.ChunkOverlap,
			RetrievalK:         cfg.RetrievalK,
			EmbedBatchSize:     cfg.EmbedBatchSize,
			InitTimeout:        time.Duration(cfg.InitTimeoutSecs) * time.Second,
		})
	})
	return serviceInstance
}
