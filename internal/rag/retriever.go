package rag

import (
	"context"
	"fmt"
	"sort"

	"chatrag/internal/chunker"
	"chatrag/internal/contextutil"
	"chatrag/internal/ingest"
	"chatrag/internal/llm"
	"chatrag/internal/schema"
	"chatrag/internal/vectorstore"
)

// Retriever runs the hybrid search: vector similarity against the
// store, optionally unioned with a lexical pass over the chunk log,
// optionally reranked by query-term overlap.
type Retriever struct {
	embedder      llm.Embedder
	store         vectorstore.VectorStore
	chunksPath    string
	hybridKeyword bool
	enableRerank  bool
}

// NewRetriever creates a retriever. chunksPath locates the chunk log
// backing the lexical pass.
func NewRetriever(embedder llm.Embedder, store vectorstore.VectorStore, chunksPath string, hybridKeyword, enableRerank bool) *Retriever {
	return &Retriever{
		embedder:      embedder,
		store:         store,
		chunksPath:    chunksPath,
		hybridKeyword: hybridKeyword,
		enableRerank:  enableRerank,
	}
}

// Retrieve returns at most req.TopK scored contexts for the question.
func (r *Retriever) Retrieve(ctx context.Context, req AskRequest) ([]schema.RetrievalContext, error) {
	logger := contextutil.LoggerFromContext(ctx)

	queryVector, err := r.embedder.EmbedQuery(ctx, req.Question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	filter := vectorstore.SearchFilter{
		Topic:    req.Topic,
		ChatIDs:  req.ChatIDs,
		DateFrom: req.DateFrom,
		DateTo:   req.DateTo,
	}
	vectorResults, err := r.store.Search(ctx, queryVector, req.TopK, filter)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	merged := vectorResults
	if r.hybridKeyword {
		keywordResults, err := r.keywordSearch(req)
		if err != nil {
			logger.WarnContext(ctx, "keyword search failed, using vector results only", "error", err)
		} else {
			merged = mergeResults(vectorResults, keywordResults, req.TopK*2)
		}
	}

	if r.enableRerank {
		merged = rerank(req.Question, merged, req.TopK)
	} else if len(merged) > req.TopK {
		merged = merged[:req.TopK]
	}

	logger.InfoContext(ctx, "retrieval completed", "results", len(merged), "hybrid", r.hybridKeyword, "rerank", r.enableRerank)
	return merged, nil
}

// keywordSearch scores chunk-log entries by the fraction of query
// tokens they contain. Chunks sharing no token with the query are
// discarded rather than scored zero.
func (r *Retriever) keywordSearch(req AskRequest) ([]schema.RetrievalContext, error) {
	chunks, err := chunker.LoadChunksJSONL(r.chunksPath)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	queryTokens := tokenize(req.Question)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	fromTS, hasFrom := ingest.EpochSeconds(req.DateFrom)
	toTS, hasTo := ingest.EpochSeconds(req.DateTo)

	chatIDs := make(map[string]struct{}, len(req.ChatIDs))
	for _, id := range req.ChatIDs {
		chatIDs[id] = struct{}{}
	}

	var results []schema.RetrievalContext
	for i := range chunks {
		chunk := &chunks[i]
		if req.Topic != "" && chunk.Topic != req.Topic {
			continue
		}
		if len(chatIDs) > 0 {
			if _, ok := chatIDs[chunk.ChatID]; !ok {
				continue
			}
		}
		// Date bounds only apply to chunks that carry a timestamp.
		if chunkTS, ok := ingest.EpochSeconds(chunk.StartAt); ok {
			if hasFrom && chunkTS < fromTS {
				continue
			}
			if hasTo && chunkTS > toTS {
				continue
			}
		}

		docTokens := tokenize(chunk.Text)
		if len(docTokens) == 0 {
			continue
		}
		overlap := overlapCount(queryTokens, docTokens)
		if overlap == 0 {
			continue
		}

		results = append(results, schema.RetrievalContext{
			ChunkID:    chunk.ChunkID,
			ChatID:     chunk.ChatID,
			ChatTitle:  chunk.ChatTitle,
			MessageIDs: chunk.MessageIDs,
			Topic:      chunk.Topic,
			Text:       chunk.Text,
			Score:      float64(overlap) / float64(len(queryTokens)),
			CreatedAt:  chunk.StartAt,
		})
	}

	sortByScore(results)
	if len(results) > req.TopK {
		results = results[:req.TopK]
	}
	return results, nil
}

// mergeResults unions the two result lists by chunk id, keeping the
// higher score when both passes found the same chunk, then truncates
// to limit.
func mergeResults(vectorResults, keywordResults []schema.RetrievalContext, limit int) []schema.RetrievalContext {
	best := make(map[string]schema.RetrievalContext)
	order := make([]string, 0, len(vectorResults)+len(keywordResults))

	for _, ctx := range append(append([]schema.RetrievalContext(nil), vectorResults...), keywordResults...) {
		existing, seen := best[ctx.ChunkID]
		if !seen {
			order = append(order, ctx.ChunkID)
			best[ctx.ChunkID] = ctx
			continue
		}
		if ctx.Score > existing.Score {
			best[ctx.ChunkID] = ctx
		}
	}

	merged := make([]schema.RetrievalContext, 0, len(order))
	for _, id := range order {
		merged = append(merged, best[id])
	}
	sortByScore(merged)
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// sortByScore orders contexts by descending score, preserving relative
// order among equal scores.
func sortByScore(contexts []schema.RetrievalContext) {
	sort.SliceStable(contexts, func(i, j int) bool {
		return contexts[i].Score > contexts[j].Score
	})
}
