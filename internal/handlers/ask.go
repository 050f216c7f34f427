package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"chatrag/internal/contextutil"
	"chatrag/internal/rag"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AskHandler handles HTTP requests for archive questions.
type AskHandler struct {
	engine      *rag.Engine
	topKDefault int
}

// NewAskHandler creates a new AskHandler. topKDefault is applied to
// requests that leave top_k unset.
func NewAskHandler(engine *rag.Engine, topKDefault int) *AskHandler {
	return &AskHandler{engine: engine, topKDefault: topKDefault}
}

// ServeHTTP answers POST /ask: validate, retrieve, generate, cite.
func (h *AskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req rag.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(h.topKDefault); err != nil {
		logger.WarnContext(ctx, "invalid ask request", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.engine.Ask(ctx, req)
	if err != nil {
		handleEngineError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// handleEngineError maps engine errors to HTTP status codes: vector
// store outages are 503, embedding or LLM failures are 502, anything
// else is 500.
func handleEngineError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)
	logger.ErrorContext(ctx, "ask failed", "error", err)

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "search") || strings.Contains(errMsg, "qdrant") || strings.Contains(errMsg, "collection"):
		writeError(w, http.StatusServiceUnavailable, "Vector store unavailable")
	case strings.Contains(errMsg, "embed") || strings.Contains(errMsg, "llm"):
		writeError(w, http.StatusBadGateway, "External service error")
	default:
		writeError(w, http.StatusInternalServerError, "Failed to process question")
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
