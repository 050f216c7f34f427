package rag

import (
	"context"
	"fmt"
	"strings"

	"chatrag/internal/contextutil"
	"chatrag/internal/llm"
	"chatrag/internal/schema"
)

// systemPrompt pins the grounding rules for LLM mode.
const systemPrompt = `You are a careful assistant answering from retrieved private chat excerpts.
Rules:
1) Use only provided context.
2) If context is insufficient, reply with "insufficient context" and ask a clarifying question.
3) Never invent facts, code, dates, or citations.
4) Cite evidence in square brackets as [C1], [C2], etc.
5) Keep answers concise and factual.`

const (
	snippetMaxLen        = 220
	extractiveContexts   = 5
	llmContexts          = 8
	abstainSnippetsLimit = 3
)

// Generator turns retrieved contexts into an answer, abstaining when
// the evidence is too weak.
type Generator struct {
	completer   llm.ChatCompleter
	threshold   float64
	defaultMode string
}

// NewGenerator creates an answer generator. completer may be nil, in
// which case LLM mode silently degrades to extractive mode.
func NewGenerator(completer llm.ChatCompleter, threshold float64, defaultMode string) *Generator {
	return &Generator{
		completer:   completer,
		threshold:   threshold,
		defaultMode: defaultMode,
	}
}

// Generate produces the answer text and its confidence. Confidence is
// the best context score, or zero with no contexts at all. Below the
// threshold the generator abstains instead of answering.
func (g *Generator) Generate(ctx context.Context, question string, contexts []schema.RetrievalContext, mode string) (string, float64) {
	if len(contexts) == 0 {
		return g.insufficientContext(contexts)
	}

	confidence := contexts[0].Score
	for _, c := range contexts[1:] {
		if c.Score > confidence {
			confidence = c.Score
		}
	}
	if confidence < g.threshold {
		return g.insufficientContext(contexts)
	}

	chosenMode := mode
	if chosenMode == "" {
		chosenMode = g.defaultMode
	}
	if chosenMode == ModeLLM {
		return g.llmAnswer(ctx, question, contexts), confidence
	}
	return extractiveAnswer(question, contexts), confidence
}

// insufficientContext builds the abstention message, quoting the
// closest snippets so the caller can still see what was found.
func (g *Generator) insufficientContext(contexts []schema.RetrievalContext) (string, float64) {
	limit := len(contexts)
	if limit > abstainSnippetsLimit {
		limit = abstainSnippetsLimit
	}
	snippets := make([]string, 0, limit)
	for _, ctx := range contexts[:limit] {
		snippets = append(snippets, "- "+shortSnippet(ctx.Text))
	}
	details := "- No matching snippets found."
	if len(snippets) > 0 {
		details = strings.Join(snippets, "\n")
	}

	text := "insufficient context. I do not have enough grounded evidence in your indexed chats to answer reliably. " +
		"Please narrow the question (topic/date/chat) or provide more details.\n\nClosest snippets:\n" + details

	confidence := 0.0
	for _, ctx := range contexts {
		if ctx.Score > confidence {
			confidence = ctx.Score
		}
	}
	return text, confidence
}

// extractiveAnswer quotes, per context, the first line sharing a token
// with the question (else the first line), tagged with its citation
// marker.
func extractiveAnswer(question string, contexts []schema.RetrievalContext) string {
	queryTokens := tokenize(question)
	var selected []string

	limit := len(contexts)
	if limit > extractiveContexts {
		limit = extractiveContexts
	}
	for idx, ctx := range contexts[:limit] {
		var lines []string
		for _, line := range strings.Split(ctx.Text, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				lines = append(lines, trimmed)
			}
		}

		chosen := ""
		for _, line := range lines {
			if len(queryTokens) > 0 && overlapCount(queryTokens, tokenize(line)) > 0 {
				chosen = line
				break
			}
		}
		if chosen == "" && len(lines) > 0 {
			chosen = lines[0]
		}
		if chosen != "" {
			selected = append(selected, fmt.Sprintf("%s [C%d]", chosen, idx+1))
		}
	}

	if len(selected) == 0 {
		selected = []string{shortSnippet(contexts[0].Text) + " [C1]"}
	}
	return strings.Join(selected, "\n")
}

// llmAnswer asks the chat model, falling back to extractive mode on
// any failure so /ask never surfaces a collaborator outage.
func (g *Generator) llmAnswer(ctx context.Context, question string, contexts []schema.RetrievalContext) string {
	logger := contextutil.LoggerFromContext(ctx)

	if g.completer == nil {
		return extractiveAnswer(question, contexts)
	}

	limit := len(contexts)
	if limit > llmContexts {
		limit = llmContexts
	}
	blocks := make([]string, 0, limit)
	for idx, c := range contexts[:limit] {
		blocks = append(blocks, fmt.Sprintf("[C%d] score=%.3f\n%s", idx+1, c.Score, c.Text))
	}

	answer, err := g.completer.ChatWithMessages(ctx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf("Question: %s\n\nContext:\n%s", question, strings.Join(blocks, "\n\n"))},
	}, llm.ChatParams{Temperature: 0})
	if err != nil {
		logger.WarnContext(ctx, "LLM mode failed, falling back to extractive mode", "error", err)
		return extractiveAnswer(question, contexts)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "Insufficient context"
	}
	return answer
}

// shortSnippet collapses whitespace and clips to snippetMaxLen runes.
func shortSnippet(text string) string {
	clean := strings.Join(strings.Fields(text), " ")
	runes := []rune(clean)
	if len(runes) <= snippetMaxLen {
		return clean
	}
	return string(runes[:snippetMaxLen-3]) + "..."
}
