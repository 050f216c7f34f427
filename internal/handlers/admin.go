package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"chatrag/internal/chunker"
	"chatrag/internal/config"
	"chatrag/internal/contextutil"
	"chatrag/internal/indexer"
	"chatrag/internal/ingest"
	"chatrag/internal/storage"
	"chatrag/internal/vectorstore"
)

// AdminHandler handles the ingestion and maintenance endpoints.
type AdminHandler struct {
	cfg      *config.Config
	pipeline *indexer.Pipeline
	store    vectorstore.VectorStore
	runs     indexer.RunStore
}

// NewAdminHandler creates a new AdminHandler. runs may be nil.
func NewAdminHandler(cfg *config.Config, pipeline *indexer.Pipeline, store vectorstore.VectorStore, runs indexer.RunStore) *AdminHandler {
	return &AdminHandler{
		cfg:      cfg,
		pipeline: pipeline,
		store:    store,
		runs:     runs,
	}
}

// ReindexRequest is the POST /admin/reindex payload.
type ReindexRequest struct {
	ResetCollection bool   `json:"reset_collection"`
	ChunksPath      string `json:"chunks_path,omitempty"`
}

// StatsResponse is the GET /admin/stats payload.
type StatsResponse struct {
	Collection          string        `json:"collection_name"`
	PointsCount         int           `json:"points_count"`
	IndexedVectorsCount int           `json:"indexed_vectors_count"`
	MessagesCount       int           `json:"messages_count"`
	ChunksCount         int           `json:"chunks_count"`
	RecentRuns          []RunResponse `json:"recent_runs,omitempty"`
}

// RunResponse is one ledger entry in the stats payload.
type RunResponse struct {
	ID                    int    `json:"id"`
	Kind                  string `json:"kind"`
	InputPath             string `json:"input_path,omitempty"`
	ProcessedMessageCount int    `json:"processed_message_count"`
	ChunkCount            int    `json:"chunk_count"`
	Status                string `json:"status"`
	Error                 string `json:"error,omitempty"`
	CreatedAt             string `json:"created_at"`
}

// Ingest answers POST /admin/ingest: run the full pipeline over one
// export file.
func (h *AdminHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var opts indexer.IngestOptions
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
			logger.WarnContext(ctx, "invalid ingest request", "error", err)
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	summary, err := h.pipeline.Ingest(ctx, opts)
	if err != nil {
		if errors.Is(err, ingest.ErrNoInput) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if errors.Is(err, ingest.ErrUnsupportedInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.ErrorContext(ctx, "ingest failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Ingest failed")
		return
	}

	writeJSON(w, summary)
}

// Reindex answers POST /admin/reindex: re-embed the chunk log.
func (h *AdminHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req ReindexRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.WarnContext(ctx, "invalid reindex request", "error", err)
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	summary, err := h.pipeline.Reindex(ctx, req.ResetCollection, req.ChunksPath)
	if err != nil {
		logger.ErrorContext(ctx, "reindex failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Reindex failed")
		return
	}

	writeJSON(w, summary)
}

// Stats answers GET /admin/stats: collection counts plus the JSONL log
// sizes and the most recent runs.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	collectionStats, err := h.store.Stats(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to read collection stats", "error", err)
		writeError(w, http.StatusServiceUnavailable, "Vector store unavailable")
		return
	}

	messages, err := ingest.LoadMessagesJSONL(h.cfg.MessagesJSONLPath())
	if err != nil {
		logger.ErrorContext(ctx, "failed to read message log", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to read message log")
		return
	}
	chunks, err := chunker.LoadChunksJSONL(h.cfg.ChunksJSONLPath())
	if err != nil {
		logger.ErrorContext(ctx, "failed to read chunk log", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to read chunk log")
		return
	}

	resp := StatsResponse{
		Collection:          collectionStats.Collection,
		PointsCount:         collectionStats.PointsCount,
		IndexedVectorsCount: collectionStats.IndexedVectorsCount,
		MessagesCount:       len(messages),
		ChunksCount:         len(chunks),
	}

	if h.runs != nil {
		runs, err := h.runs.ListRecent(10)
		if err != nil {
			logger.WarnContext(ctx, "failed to list recent runs", "error", err)
		} else {
			resp.RecentRuns = runResponses(runs)
		}
	}

	writeJSON(w, resp)
}

// ResetCollection answers POST /admin/collection/reset: drop and
// recreate the chunk collection.
func (h *AdminHandler) ResetCollection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if err := h.store.EnsureCollection(ctx, true); err != nil {
		logger.ErrorContext(ctx, "failed to reset collection", "error", err)
		writeError(w, http.StatusServiceUnavailable, "Vector store unavailable")
		return
	}

	writeJSON(w, map[string]string{
		"status":          "ok",
		"collection_name": h.cfg.QdrantCollection,
	})
}

// DeleteChat answers DELETE /admin/chats/{chat_id}: remove one chat's
// chunks from the index.
func (h *AdminHandler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	chatID := chi.URLParam(r, "chat_id")
	if chatID == "" {
		writeError(w, http.StatusBadRequest, "chat_id is required")
		return
	}

	if err := h.store.DeleteByChatID(ctx, chatID); err != nil {
		logger.ErrorContext(ctx, "failed to delete chat", "chat_id", chatID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "Vector store unavailable")
		return
	}

	writeJSON(w, map[string]string{
		"status":  "ok",
		"chat_id": chatID,
	})
}

func runResponses(runs []storage.IngestRun) []RunResponse {
	out := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, RunResponse{
			ID:                    run.ID,
			Kind:                  run.Kind,
			InputPath:             run.InputPath,
			ProcessedMessageCount: run.ProcessedMessageCount,
			ChunkCount:            run.ChunkCount,
			Status:                run.Status,
			Error:                 run.Error,
			CreatedAt:             run.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	return out
}

// writeJSON writes a 200 response with a JSON body.
func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
