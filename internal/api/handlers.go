package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/cfcindia/sermon-rag/internal/core"
)

// RAGQueryService is what the handlers need from the RAG core.
type RAGQueryService interface {
	IsReady() bool
	Query(ctx context.Context, question string) (*core.QueryResult, error)
	Status() core.Status
}

type APIHandler struct {
	ragService RAGQueryService
}

func NewAPIHandler(rs RAGQueryService) *APIHandler {
	return &APIHandler{ragService: rs}
}

type errorResponse struct {
	Error  string `json:"error"`
	Status string `json:"status,omitempty"`
}

// ReadinessMiddleware gates query routes while the RAG system is still
// initializing, so every not-ready response comes from one place.
func (h *APIHandler) ReadinessMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.ragService.IsReady() {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{
				Error:  "RAG system is initializing. Please try again in a moment.",
				Status: "initializing",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type QueryRequest struct {
	Question string `json:"question"`
}

func (h *APIHandler) QueryHandler(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Question is required"})
		return
	}

	result, err := h.ragService.Query(r.Context(), question)
	if err != nil {
		h.writeQueryError(w, question, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) writeQueryError(w http.ResponseWriter, question string, err error) {
	switch {
	case errors.Is(err, core.ErrNotReady):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error:  "RAG system is not ready. Please try again later.",
			Status: "initializing",
		})
	case errors.Is(err, core.ErrEmptyCorpus):
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "No sermons have been indexed yet."})
	default:
		var genErr *core.GenerationError
		if errors.As(err, &genErr) && genErr.RateLimited {
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "The answer service is rate limited. Please try again shortly."})
			return
		}
		log.Printf("Error processing query %q: %v", question, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "An error occurred while processing your question."})
	}
}

type HealthResponse struct {
	Status   string `json:"status"`
	RAGReady bool   `json:"rag_ready"`
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ready := h.ragService.IsReady()
	status := "initializing"
	if ready {
		status = "healthy"
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: status, RAGReady: ready})
}

func (h *APIHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ragService.Status())
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}
