// Package chunker packs normalized messages into token-budgeted,
// overlapping retrieval units. Chunking is a pure function of the
// message sequence and the configuration, so chunk logs can always be
// re-derived from the message log.
package chunker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"chatrag/internal/ingest"
	"chatrag/internal/schema"
)

// Builder accumulates chat messages into chunks under a token budget.
type Builder struct {
	counter         *TokenCounter
	maxTokens       int
	overlapMessages int
}

// NewBuilder creates a chunk builder. overlapMessages is the number of
// trailing messages re-seeded into the next chunk when a budget overflow
// forces a split.
func NewBuilder(counter *TokenCounter, maxTokens, overlapMessages int) *Builder {
	return &Builder{
		counter:         counter,
		maxTokens:       maxTokens,
		overlapMessages: overlapMessages,
	}
}

// entry pairs a message with its rendered line and that line's token
// cost, so overlap re-seeding never recounts differently.
type entry struct {
	message *schema.NormalizedMessage
	line    string
	tokens  int
}

// Build chunks the messages chat by chat. Each chat is processed
// independently and chronologically; chunks never span chats.
func (b *Builder) Build(messages []*schema.NormalizedMessage) []schema.ChunkRecord {
	grouped := make(map[string][]*schema.NormalizedMessage)
	order := make([]string, 0)
	for _, m := range messages {
		if _, ok := grouped[m.ChatID]; !ok {
			order = append(order, m.ChatID)
		}
		grouped[m.ChatID] = append(grouped[m.ChatID], m)
	}

	var chunks []schema.ChunkRecord
	for _, chatID := range order {
		chunks = append(chunks, b.buildChat(grouped[chatID])...)
	}
	return chunks
}

func (b *Builder) buildChat(chatMessages []*schema.NormalizedMessage) []schema.ChunkRecord {
	sorted := make([]*schema.NormalizedMessage, len(chatMessages))
	copy(sorted, chatMessages)
	// Messages without a timestamp sort after all timestamped ones;
	// message id breaks ties for determinism.
	sort.SliceStable(sorted, func(i, j int) bool {
		ki, kj := timestampSortKey(sorted[i].CreatedAt), timestampSortKey(sorted[j].CreatedAt)
		if ki != kj {
			return ki < kj
		}
		return sorted[i].MessageID < sorted[j].MessageID
	})

	var chunks []schema.ChunkRecord
	var current []entry
	currentTokens := 0

	emit := func(entries []entry) {
		if len(entries) == 0 {
			return
		}
		chunks = append(chunks, b.newChunk(entries))
	}

	for _, message := range sorted {
		line := renderLine(message)
		lineTokens := b.counter.Count(line)

		if len(current) > 0 && currentTokens+lineTokens > b.maxTokens {
			emit(current)
			if b.overlapMessages > 0 {
				seed := current[max(0, len(current)-b.overlapMessages):]
				current = append([]entry(nil), seed...)
				currentTokens = 0
				for _, item := range current {
					currentTokens += item.tokens
				}
			} else {
				current = nil
				currentTokens = 0
			}
		}

		if lineTokens > b.maxTokens {
			// An oversized message becomes its own unsplit chunk and
			// never combines with carried-over overlap context.
			current = nil
			currentTokens = 0
			emit([]entry{{message: message, line: line, tokens: lineTokens}})
			continue
		}

		// The overlap seed itself may already be too large to hold the
		// next line; drop it rather than emitting it twice.
		if len(current) > 0 && currentTokens+lineTokens > b.maxTokens {
			current = nil
			currentTokens = 0
		}

		current = append(current, entry{message: message, line: line, tokens: lineTokens})
		currentTokens += lineTokens
	}

	emit(current)
	return chunks
}

func (b *Builder) newChunk(entries []entry) schema.ChunkRecord {
	selected := make([]*schema.NormalizedMessage, len(entries))
	lines := make([]string, len(entries))
	messageIDs := make([]string, len(entries))
	for i, item := range entries {
		selected[i] = item.message
		lines[i] = item.line
		messageIDs[i] = item.message.MessageID
	}

	first := selected[0]
	last := selected[len(selected)-1]

	hasCode := false
	for _, m := range selected {
		if m.HasCode {
			hasCode = true
			break
		}
	}

	return schema.ChunkRecord{
		ChunkID:    uuid.New().String(),
		ChatID:     first.ChatID,
		ChatTitle:  first.ChatTitle,
		MessageIDs: messageIDs,
		StartAt:    first.CreatedAt,
		EndAt:      last.CreatedAt,
		Topic:      chooseTopic(selected),
		Text:       strings.Join(lines, "\n\n"),
		Metadata: schema.ChunkMetadata{
			Title:        first.ChatTitle,
			RolesCount:   ingest.CountRoles(selected),
			MessageCount: len(selected),
			HasCode:      hasCode,
		},
	}
}

// renderLine formats one message as a chunk line carrying role,
// timestamp and id, so citations can point back at exact turns.
func renderLine(message *schema.NormalizedMessage) string {
	stamp := message.CreatedAt
	if stamp == "" {
		stamp = "unknown_time"
	}
	return strings.TrimSpace(fmt.Sprintf("[%s | %s | %s]\n%s", message.Role, stamp, message.MessageID, message.Text))
}

// timestampSortKey gives absent timestamps a canonical late sentinel.
func timestampSortKey(createdAt string) string {
	if createdAt == "" {
		return "￿"
	}
	return createdAt
}

// chooseTopic inherits the first member's known topic.
func chooseTopic(messages []*schema.NormalizedMessage) string {
	for _, m := range messages {
		if m.Topic != "" {
			return m.Topic
		}
	}
	return "unknown"
}
