package rag

import (
	"context"
	"time"
)

// citationSnippetLen bounds a citation's quoted text.
const citationSnippetLen = 300

// Engine ties retrieval and answer generation into the full question
// flow. Callers validate the request before asking.
type Engine struct {
	retriever *Retriever
	generator *Generator
}

// NewEngine creates an engine over the given retriever and generator.
func NewEngine(retriever *Retriever, generator *Generator) *Engine {
	return &Engine{
		retriever: retriever,
		generator: generator,
	}
}

// Ask retrieves contexts, generates the answer and assembles citations
// for every retrieved context, measuring end-to-end latency.
func (e *Engine) Ask(ctx context.Context, req AskRequest) (*AskResponse, error) {
	started := time.Now()

	contexts, err := e.retriever.Retrieve(ctx, req)
	if err != nil {
		return nil, err
	}

	answer, confidence := e.generator.Generate(ctx, req.Question, contexts, req.Mode)

	citations := make([]Citation, 0, len(contexts))
	for _, c := range contexts {
		snippet := c.Text
		if runes := []rune(snippet); len(runes) > citationSnippetLen {
			snippet = string(runes[:citationSnippetLen]) + "..."
		}
		citations = append(citations, Citation{
			ChatID:     c.ChatID,
			MessageIDs: c.MessageIDs,
			Snippet:    snippet,
			Score:      c.Score,
			CreatedAt:  c.CreatedAt,
		})
	}

	return &AskResponse{
		Answer:     answer,
		Citations:  citations,
		Confidence: confidence,
		LatencyMS:  float64(time.Since(started).Microseconds()) / 1000.0,
	}, nil
}
