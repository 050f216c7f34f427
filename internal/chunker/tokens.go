package chunker

import (
	"log/slog"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates token counts for chunk budgeting. It uses the
// cl100k_base encoder when loadable and otherwise falls back to a
// model-agnostic subword estimate (length/4, floor 1). Both paths are
// deterministic for identical input.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTokenCounter builds a counter backed by the cl100k_base encoder,
// degrading to the heuristic estimate when the encoding cannot be
// loaded (for example with no BPE data available).
func NewTokenCounter() *TokenCounter {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		slog.Warn("tiktoken encoding unavailable, using heuristic token estimate", "error", err)
		return &TokenCounter{}
	}
	return &TokenCounter{encoding: encoding}
}

// NewHeuristicTokenCounter builds a counter that always uses the
// subword estimate. Used in tests and offline runs.
func NewHeuristicTokenCounter() *TokenCounter {
	return &TokenCounter{}
}

// Count returns the approximate token count of text.
func (c *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.encoding == nil {
		estimate := len(text) / 4
		if estimate < 1 {
			return 1
		}
		return estimate
	}
	return len(c.encoding.Encode(text, nil, nil))
}
