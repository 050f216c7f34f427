// Package http wires the chi router for the chat archive API.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"chatrag/internal/config"
	"chatrag/internal/handlers"
	"chatrag/internal/indexer"
	"chatrag/internal/rag"
	"chatrag/internal/vectorstore"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Config   *config.Config
	Engine   *rag.Engine
	Pipeline *indexer.Pipeline
	Store    vectorstore.VectorStore
	Runs     indexer.RunStore
}

// NewRouter creates the HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)
	r.Use(LoggerMiddleware)

	healthHandler := handlers.NewHealthHandler(deps.Store)
	askHandler := handlers.NewAskHandler(deps.Engine, deps.Config.TopKDefault)
	adminHandler := handlers.NewAdminHandler(deps.Config, deps.Pipeline, deps.Store, deps.Runs)

	r.Method(http.MethodGet, "/health", healthHandler)
	r.Method(http.MethodPost, "/ask", askHandler)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/ingest", adminHandler.Ingest)
		r.Post("/reindex", adminHandler.Reindex)
		r.Get("/stats", adminHandler.Stats)
		r.Post("/collection/reset", adminHandler.ResetCollection)
		r.Delete("/chats/{chat_id}", adminHandler.DeleteChat)
	})

	return r
}
