package core

import (
	"errors"
	"fmt"
)

// ErrNotReady is returned for query-time operations while the RAG service is
// still initializing or has failed to initialize. Callers should retry later.
var ErrNotReady = errors.New("RAG system is not ready")

// ErrEmptyCorpus is returned when the vectorstore holds zero chunks, so the
// caller can report "no sermons indexed" instead of a generic search failure.
var ErrEmptyCorpus = errors.New("no sermons have been indexed")

// InitializationError records which initialization stage failed. It is fatal
// for the service instance: the state machine moves to Failed.
type InitializationError struct {
	Stage string
	Err   error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("initialization failed at %s: %v", e.Stage, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// RetrievalError wraps a per-query failure in embedding the question or
// searching the store. It does not affect service state.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// GenerationError wraps a per-query failure of the generation capability.
// RateLimited distinguishes quota exhaustion from other provider failures.
type GenerationError struct {
	Err         error
	RateLimited bool
}

func (e *GenerationError) Error() string {
	if e.RateLimited {
		return fmt.Sprintf("generation rate limited: %v", e.Err)
	}
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
