package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		// Readiness endpoints stay reachable while the system initializes
		r.Get("/health", apiHandler.HealthHandler)
		r.Get("/status", apiHandler.StatusHandler)

		// Query routes are gated on RAG readiness
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.ReadinessMiddleware)

			r.Post("/query", apiHandler.QueryHandler)
		})
	})

	return r
}
