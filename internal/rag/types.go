// Package rag implements hybrid retrieval over indexed chat chunks and
// confidence-gated, citation-grounded answer generation.
package rag

import (
	"fmt"
	"regexp"
	"strings"
)

// Answer modes.
const (
	ModeExtractive = "extractive"
	ModeLLM        = "llm"
)

// Default and bounds for the per-question result count.
const (
	defaultTopK = 10
	minTopK     = 1
	maxTopK     = 50
)

// AskRequest is one retrieval question with optional scoping filters.
type AskRequest struct {
	Question string   `json:"question"`
	TopK     int      `json:"top_k"`
	Topic    string   `json:"topic,omitempty"`
	DateFrom string   `json:"date_from,omitempty"`
	DateTo   string   `json:"date_to,omitempty"`
	ChatIDs  []string `json:"chat_ids,omitempty"`
	Mode     string   `json:"mode,omitempty"`
}

// Validate checks the request, filling an unset top_k with defaultK.
// A non-positive defaultK falls back to the package default.
func (r *AskRequest) Validate(defaultK int) error {
	if strings.TrimSpace(r.Question) == "" {
		return fmt.Errorf("question is required")
	}
	if r.TopK == 0 {
		if defaultK <= 0 {
			defaultK = defaultTopK
		}
		r.TopK = defaultK
	}
	if r.TopK < minTopK || r.TopK > maxTopK {
		return fmt.Errorf("top_k must be between %d and %d", minTopK, maxTopK)
	}
	switch r.Mode {
	case "", ModeExtractive, ModeLLM:
	default:
		return fmt.Errorf("mode must be %q or %q", ModeExtractive, ModeLLM)
	}
	return nil
}

// Citation points an answer back at the evidence it came from.
type Citation struct {
	ChatID     string   `json:"chat_id"`
	MessageIDs []string `json:"message_ids"`
	Snippet    string   `json:"snippet"`
	Score      float64  `json:"score"`
	CreatedAt  string   `json:"created_at,omitempty"`
}

// AskResponse is the full answer payload.
type AskResponse struct {
	Answer     string     `json:"answer"`
	Citations  []Citation `json:"citations"`
	Confidence float64    `json:"confidence"`
	LatencyMS  float64    `json:"latency_ms"`
}

// tokenPattern matches word tokens of three or more characters. Shorter
// tokens add noise without adding signal.
var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9_]{3,}`)

// tokenize lowercases and deduplicates the word tokens of a text.
func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range tokenPattern.FindAllString(text, -1) {
		tokens[strings.ToLower(tok)] = struct{}{}
	}
	return tokens
}

// overlapCount counts query tokens present in the document token set.
func overlapCount(query, doc map[string]struct{}) int {
	count := 0
	for tok := range query {
		if _, ok := doc[tok]; ok {
			count++
		}
	}
	return count
}
