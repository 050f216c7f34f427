package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"

	"chatrag/internal/chunker"
	"chatrag/internal/config"
	"chatrag/internal/http"
	"chatrag/internal/indexer"
	"chatrag/internal/llm"
	"chatrag/internal/rag"
	"chatrag/internal/storage"
	"chatrag/internal/vectorstore"
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	// Initialize the run ledger database
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	runRepo := storage.NewRunRepo(db)

	ctx := context.Background()

	// Initialize Qdrant vector store
	vectorStore, err := vectorstore.NewQdrantStore(cfg.QdrantURL, cfg.QdrantCollection, cfg.QdrantVectorSize)
	if err != nil {
		log.Fatalf("Failed to create Qdrant client: %v", err)
	}
	if err := vectorStore.EnsureCollection(ctx, false); err != nil {
		log.Fatalf("Failed to ensure Qdrant collection: %v", err)
	}
	slog.Info("Qdrant collection ready", "collection", cfg.QdrantCollection, "vector_size", cfg.QdrantVectorSize)

	// Validate embedding client vector size (fail-fast)
	embedder := llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModelName, cfg.QdrantVectorSize, cfg.EmbeddingBatchSize)
	if err := verifyEmbedderWidth(ctx, embedder, cfg.QdrantVectorSize); err != nil {
		log.Fatalf("Failed to validate embedding client: %v", err)
	}
	slog.Info("Embedding client validated", "vector_size", cfg.QdrantVectorSize)

	// Create the ingestion pipeline
	pipeline := indexer.NewPipeline(cfg, embedder, vectorStore, runRepo, chunker.NewTokenCounter())

	// Create the chat completion client for LLM answer mode
	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName)

	// Create the retrieval engine
	retriever := rag.NewRetriever(embedder, vectorStore, cfg.ChunksJSONLPath(), cfg.HybridKeyword, cfg.EnableRerank)
	generator := rag.NewGenerator(llmClient, cfg.ConfidenceThreshold, cfg.AnswerMode)
	engine := rag.NewEngine(retriever, generator)
	slog.Info("Retrieval engine initialized", "mode", cfg.AnswerMode, "hybrid", cfg.HybridKeyword, "rerank", cfg.EnableRerank)

	deps := &http.Deps{
		Config:   cfg,
		Engine:   engine,
		Pipeline: pipeline,
		Store:    vectorStore,
		Runs:     runRepo,
	}
	router := http.NewRouter(deps)

	addr := ":" + cfg.APIPort
	slog.Info("Starting API server", "addr", addr)
	slog.Debug("LLM configuration", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModelName)
	if err := nethttp.ListenAndServe(addr, router); err != nil {
		log.Fatalf("API server failed to start: %v", err)
	}
}

// verifyEmbedderWidth embeds one test input and checks the vector width
// against the configured collection size before anything is indexed.
func verifyEmbedderWidth(ctx context.Context, embedder llm.Embedder, size int) error {
	vectors, err := embedder.EmbedTexts(ctx, []string{"test"})
	if err != nil {
		return err
	}
	if len(vectors) == 0 {
		return fmt.Errorf("embedder returned no vectors")
	}
	if len(vectors[0]) != size {
		return fmt.Errorf("embedding vector size mismatch: expected %d, got %d", size, len(vectors[0]))
	}
	return nil
}
