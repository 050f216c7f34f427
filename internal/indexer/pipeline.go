// Package indexer orchestrates the ingestion pipeline: export parsing,
// privacy redaction, topic tagging, chat filtering, chunking, embedding
// and vector indexing, with every run recorded in the SQLite ledger.
package indexer

import (
	"context"
	"fmt"

	"chatrag/internal/chunker"
	"chatrag/internal/config"
	"chatrag/internal/contextutil"
	"chatrag/internal/ingest"
	"chatrag/internal/llm"
	"chatrag/internal/schema"
	"chatrag/internal/storage"
	"chatrag/internal/vectorstore"
)

// RunStore records pipeline executions.
type RunStore interface {
	Insert(run storage.IngestRun) (storage.IngestRun, error)
	ListRecent(limit int) ([]storage.IngestRun, error)
}

// Pipeline orchestrates export ingestion into the JSONL logs and Qdrant.
type Pipeline struct {
	cfg      *config.Config
	embedder llm.Embedder
	store    vectorstore.VectorStore
	runs     RunStore
	builder  *chunker.Builder
}

// NewPipeline creates a new ingestion pipeline. runs may be nil when no
// ledger is wanted.
func NewPipeline(cfg *config.Config, embedder llm.Embedder, store vectorstore.VectorStore, runs RunStore, counter *chunker.TokenCounter) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		embedder: embedder,
		store:    store,
		runs:     runs,
		builder:  chunker.NewBuilder(counter, cfg.MaxChunkTokens, cfg.OverlapMessages),
	}
}

// IngestOptions overrides per-run ingestion behavior. Nil pointer fields
// fall back to the configured defaults.
type IngestOptions struct {
	InputPath            string    `json:"input_path,omitempty"`
	AllowlistITOnly      *bool     `json:"allowlist_it_only,omitempty"`
	ExcludeTitleKeywords *[]string `json:"exclude_title_keywords,omitempty"`
}

// IngestSummary reports what one ingest run did.
type IngestSummary struct {
	InputPath             string                `json:"input_path"`
	RawMessageCount       int                   `json:"raw_message_count"`
	ProcessedMessageCount int                   `json:"processed_message_count"`
	ChatCount             int                   `json:"chat_count"`
	Redaction             schema.RedactionStats `json:"redaction"`
	ChunkCount            int                   `json:"chunk_count"`
	OutputMessagesPath    string                `json:"output_messages_path"`
	OutputChunksPath      string                `json:"output_chunks_path"`
}

// Ingest runs the full pipeline over one export file: parse, redact,
// tag topics, filter chats, persist the message and chunk logs, then
// embed and index the chunks.
func (p *Pipeline) Ingest(ctx context.Context, opts IngestOptions) (*IngestSummary, error) {
	logger := contextutil.LoggerFromContext(ctx)

	inputPath, err := ingest.ResolveInputPath(p.cfg.RawDataDir, opts.InputPath)
	if err != nil {
		return nil, err
	}

	allowlistITOnly := p.cfg.AllowlistITOnly
	if opts.AllowlistITOnly != nil {
		allowlistITOnly = *opts.AllowlistITOnly
	}
	excludeTitleKeywords := p.cfg.ExcludeTitleKeywords
	if opts.ExcludeTitleKeywords != nil {
		excludeTitleKeywords = *opts.ExcludeTitleKeywords
	}

	summary, err := p.ingest(ctx, inputPath, allowlistITOnly, excludeTitleKeywords)
	p.recordRun(ctx, storage.RunKindIngest, inputPath, summary, err)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "ingest completed",
		"input_path", summary.InputPath,
		"raw_messages", summary.RawMessageCount,
		"processed_messages", summary.ProcessedMessageCount,
		"chats", summary.ChatCount,
		"chunks", summary.ChunkCount,
	)
	return summary, nil
}

func (p *Pipeline) ingest(ctx context.Context, inputPath string, allowlistITOnly bool, excludeTitleKeywords []string) (*IngestSummary, error) {
	logger := contextutil.LoggerFromContext(ctx)
	logger.InfoContext(ctx, "reading export", "input_path", inputPath)

	messages, err := ingest.ReadExportFile(ctx, inputPath)
	if err != nil {
		return nil, err
	}
	rawCount := len(messages)

	messages, redaction := ingest.ApplyPrivacy(messages)
	ingest.ApplyTopics(messages)
	messages = ingest.FilterChats(messages, allowlistITOnly, excludeTitleKeywords)

	messagesPath := p.cfg.MessagesJSONLPath()
	if err := ingest.WriteMessagesJSONL(messagesPath, messages); err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "wrote message log", "path", messagesPath, "count", len(messages))

	chunks := p.builder.Build(messages)
	chunksPath := p.cfg.ChunksJSONLPath()
	if err := chunker.WriteChunksJSONL(chunksPath, chunks); err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "wrote chunk log", "path", chunksPath, "count", len(chunks))

	if err := p.store.EnsureCollection(ctx, false); err != nil {
		return nil, err
	}
	if err := p.index(ctx, chunks); err != nil {
		return nil, err
	}

	chats := make(map[string]struct{})
	for _, m := range messages {
		chats[m.ChatID] = struct{}{}
	}

	return &IngestSummary{
		InputPath:             inputPath,
		RawMessageCount:       rawCount,
		ProcessedMessageCount: len(messages),
		ChatCount:             len(chats),
		Redaction:             redaction,
		ChunkCount:            len(chunks),
		OutputMessagesPath:    messagesPath,
		OutputChunksPath:      chunksPath,
	}, nil
}

// ReindexSummary reports what one reindex run did.
type ReindexSummary struct {
	Collection    string `json:"collection_name"`
	IndexedChunks int    `json:"indexed_chunks"`
	ChunksPath    string `json:"chunks_path"`
	Message       string `json:"message,omitempty"`
}

// Reindex re-embeds the chunk log and upserts it into the collection,
// optionally dropping the collection first. chunksPath overrides the
// configured chunk log location when non-empty.
func (p *Pipeline) Reindex(ctx context.Context, reset bool, chunksPath string) (*ReindexSummary, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if chunksPath == "" {
		chunksPath = p.cfg.ChunksJSONLPath()
	}

	summary, err := p.reindex(ctx, reset, chunksPath)
	p.recordRun(ctx, storage.RunKindReindex, chunksPath, reindexAsIngestSummary(summary), err)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "reindex completed", "chunks_path", chunksPath, "indexed_chunks", summary.IndexedChunks, "reset", reset)
	return summary, nil
}

func (p *Pipeline) reindex(ctx context.Context, reset bool, chunksPath string) (*ReindexSummary, error) {
	chunks, err := chunker.LoadChunksJSONL(chunksPath)
	if err != nil {
		return nil, err
	}

	if err := p.store.EnsureCollection(ctx, reset); err != nil {
		return nil, err
	}

	summary := &ReindexSummary{
		Collection: p.cfg.QdrantCollection,
		ChunksPath: chunksPath,
	}
	if len(chunks) == 0 {
		summary.Message = fmt.Sprintf("No chunks found at %s", chunksPath)
		return summary, nil
	}

	if err := p.index(ctx, chunks); err != nil {
		return nil, err
	}
	summary.IndexedChunks = len(chunks)
	return summary, nil
}

// index embeds chunk texts and upserts them. An embedding count that
// disagrees with the chunk count is a data error, never silently
// truncated.
func (p *Pipeline) index(ctx context.Context, chunks []schema.ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}

	vectors, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(chunks), len(vectors))
	}

	return p.store.UpsertChunks(ctx, chunks, vectors)
}

// recordRun writes the run to the ledger. Ledger failures are logged,
// never fatal.
func (p *Pipeline) recordRun(ctx context.Context, kind, inputPath string, summary *IngestSummary, runErr error) {
	if p.runs == nil {
		return
	}
	logger := contextutil.LoggerFromContext(ctx)

	run := storage.IngestRun{
		Kind:      kind,
		InputPath: inputPath,
		Status:    storage.RunStatusOK,
	}
	if summary != nil {
		run.RawMessageCount = summary.RawMessageCount
		run.ProcessedMessageCount = summary.ProcessedMessageCount
		run.ChatCount = summary.ChatCount
		run.ChunkCount = summary.ChunkCount
		run.RedactedEmails = summary.Redaction.Emails
		run.RedactedPhones = summary.Redaction.Phones
		run.RedactedTokens = summary.Redaction.Tokens
		run.RedactedPasswords = summary.Redaction.Passwords
	}
	if runErr != nil {
		run.Status = storage.RunStatusFailed
		run.Error = runErr.Error()
	}

	if _, err := p.runs.Insert(run); err != nil {
		logger.WarnContext(ctx, "failed to record run", "kind", kind, "error", err)
	}
}

func reindexAsIngestSummary(summary *ReindexSummary) *IngestSummary {
	if summary == nil {
		return nil
	}
	return &IngestSummary{
		InputPath:        summary.ChunksPath,
		ChunkCount:       summary.IndexedChunks,
		OutputChunksPath: summary.ChunksPath,
	}
}
