// Package schema declares the record types shared by the ingestion,
// chunking and retrieval layers.
package schema

// Role values a normalized message may carry. Anything else maps to
// RoleUnknown during normalization.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
	RoleUnknown   = "unknown"
)

// Source tags identifying the export format a message came from.
const (
	SourceExportJSON = "chat_export_json"
	SourceExportHTML = "chat_export_html"
)

// Attachment describes a non-text payload attached to a message.
type Attachment struct {
	Type    string `json:"type"`
	Name    string `json:"name,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// NormalizedMessage is one conversational turn in canonical form.
// It is created once by a parser, rewritten in place by redaction and
// topic inference, and immutable afterwards.
type NormalizedMessage struct {
	ChatID          string       `json:"chat_id"`
	ChatTitle       string       `json:"chat_title,omitempty"`
	MessageID       string       `json:"message_id"`
	ParentMessageID string       `json:"parent_message_id,omitempty"`
	Role            string       `json:"role"`
	CreatedAt       string       `json:"created_at,omitempty"`
	Text            string       `json:"text"`
	HasCode         bool         `json:"has_code"`
	Attachments     []Attachment `json:"attachments,omitempty"`
	Topic           string       `json:"topic"`
	Source          string       `json:"source"`
}

// ChunkMetadata summarizes the messages packed into a chunk.
type ChunkMetadata struct {
	Title        string         `json:"title,omitempty"`
	RolesCount   map[string]int `json:"roles_count"`
	MessageCount int            `json:"message_count"`
	HasCode      bool           `json:"has_code"`
}

// ChunkRecord is a retrieval unit: a chronologically contiguous run of
// messages from exactly one chat, immutable once emitted. Chunking is a
// pure function of the message log plus config, so a chunk log can
// always be re-derived.
type ChunkRecord struct {
	ChunkID    string        `json:"chunk_id"`
	ChatID     string        `json:"chat_id"`
	ChatTitle  string        `json:"chat_title,omitempty"`
	MessageIDs []string      `json:"message_ids"`
	StartAt    string        `json:"start_at,omitempty"`
	EndAt      string        `json:"end_at,omitempty"`
	Topic      string        `json:"topic"`
	Text       string        `json:"text"`
	Metadata   ChunkMetadata `json:"metadata"`
}

// RetrievalContext is a chunk projection scored against a single query.
// Never persisted.
type RetrievalContext struct {
	ChunkID    string   `json:"chunk_id"`
	ChatID     string   `json:"chat_id"`
	ChatTitle  string   `json:"chat_title,omitempty"`
	MessageIDs []string `json:"message_ids"`
	Topic      string   `json:"topic"`
	Text       string   `json:"text"`
	Score      float64  `json:"score"`
	CreatedAt  string   `json:"created_at,omitempty"`
}

// RedactionStats counts removed entities per sensitive class.
type RedactionStats struct {
	Emails    int `json:"emails"`
	Phones    int `json:"phones"`
	Tokens    int `json:"tokens"`
	Passwords int `json:"passwords"`
}

// Add accumulates another stats value into s.
func (s *RedactionStats) Add(other RedactionStats) {
	s.Emails += other.Emails
	s.Phones += other.Phones
	s.Tokens += other.Tokens
	s.Passwords += other.Passwords
}
