package ingest

import (
	"math"
	"strings"
	"time"

	"chatrag/internal/schema"
)

// ITTopics is the curated allowlist of IT-related topic names used by the
// chat filter when ALLOWLIST_IT_ONLY is enabled.
var ITTopics = map[string]struct{}{
	"python":     {},
	"backend":    {},
	"fastapi":    {},
	"django":     {},
	"devops":     {},
	"linux":      {},
	"databases":  {},
	"algorithms": {},
	"networking": {},
}

// topicEntry associates a topic name with its trigger keywords. The table
// is an ordered slice so "first matching topic" is deterministic.
type topicEntry struct {
	name     string
	keywords []string
}

var topicKeywords = []topicEntry{
	{"python", []string{"python", "pip", "venv", "pandas", "numpy", "pytest"}},
	{"backend", []string{"backend", "api", "rest", "graphql", "microservice", "flask"}},
	{"fastapi", []string{"fastapi", "uvicorn", "pydantic", "asgi"}},
	{"django", []string{"django", "orm", "admin.py", "manage.py"}},
	{"devops", []string{"docker", "kubernetes", "ci", "cd", "terraform", "ansible"}},
	{"linux", []string{"linux", "bash", "shell", "systemd", "ubuntu", "debian"}},
	{"databases", []string{"database", "postgres", "mysql", "sqlite", "qdrant", "redis", "sql"}},
	{"algorithms", []string{"algorithm", "complexity", "big o", "graph", "dynamic programming"}},
	{"networking", []string{"network", "tcp", "udp", "http", "dns", "socket"}},
}

// timestampLayouts are tried in order when parsing ISO-8601 strings.
// Layouts without an offset are interpreted as UTC.
var timestampLayouts = []struct {
	layout    string
	hasOffset bool
}{
	{time.RFC3339Nano, true},
	{"2006-01-02T15:04:05.999999999", false},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02 15:04:05.999999999", false},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02", false},
}

// NormalizeTimestamp converts a raw timestamp value (ISO-8601 string,
// digit-only string, or numeric epoch in seconds or milliseconds) to a
// canonical UTC RFC 3339 string with a literal "Z" suffix. Unparseable
// input yields "" rather than an error.
func NormalizeTimestamp(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		stripped := strings.TrimSpace(v)
		if stripped == "" {
			return ""
		}
		if isDigits(stripped) {
			var epoch float64
			for _, r := range stripped {
				epoch = epoch*10 + float64(r-'0')
			}
			return NormalizeTimestamp(epoch)
		}
		for _, candidate := range timestampLayouts {
			parsed, err := time.Parse(candidate.layout, stripped)
			if err != nil {
				continue
			}
			if !candidate.hasOffset {
				parsed = parsed.UTC()
			}
			return formatUTC(parsed)
		}
		return ""
	case float64:
		return epochToUTC(v)
	case float32:
		return epochToUTC(float64(v))
	case int:
		return epochToUTC(float64(v))
	case int64:
		return epochToUTC(float64(v))
	default:
		return ""
	}
}

// epochToUTC treats values above 10 billion as milliseconds.
func epochToUTC(epoch float64) string {
	if math.IsNaN(epoch) || math.IsInf(epoch, 0) {
		return ""
	}
	if epoch > 10_000_000_000 {
		epoch = epoch / 1000.0
	}
	sec, frac := math.Modf(epoch)
	t := time.Unix(int64(sec), int64(frac*float64(time.Second)))
	return formatUTC(t)
}

func formatUTC(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// EpochSeconds converts a timestamp value to Unix seconds using the same
// conversion rules as NormalizeTimestamp. The second return is false for
// absent or unparseable input.
func EpochSeconds(value any) (float64, bool) {
	normalized := NormalizeTimestamp(value)
	if normalized == "" {
		return 0, false
	}
	t, err := time.Parse(time.RFC3339, normalized)
	if err != nil {
		return 0, false
	}
	return float64(t.Unix()), true
}

// RoleFromRaw maps an arbitrary source role string onto the fixed role
// enum, defaulting to "unknown".
func RoleFromRaw(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case schema.RoleUser:
		return schema.RoleUser
	case schema.RoleAssistant:
		return schema.RoleAssistant
	case schema.RoleSystem:
		return schema.RoleSystem
	case schema.RoleTool:
		return schema.RoleTool
	default:
		return schema.RoleUnknown
	}
}

// InferTopic returns the first topic whose keyword set matches the text,
// or "other" when nothing matches.
func InferTopic(text string) string {
	lowered := strings.ToLower(text)
	for _, entry := range topicKeywords {
		for _, keyword := range entry.keywords {
			if strings.Contains(lowered, keyword) {
				return entry.name
			}
		}
	}
	return "other"
}

// inferChatTopic infers a whole conversation's topic: first from the
// title, then from the concatenation of its first 12 messages.
func inferChatTopic(messages []*schema.NormalizedMessage, chatTitle string) string {
	titleTopic := InferTopic(chatTitle)
	if titleTopic != "other" {
		return titleTopic
	}

	limit := len(messages)
	if limit > 12 {
		limit = 12
	}
	texts := make([]string, 0, limit)
	for _, m := range messages[:limit] {
		texts = append(texts, m.Text)
	}
	return InferTopic(strings.Join(texts, "\n"))
}

// ApplyTopics computes one topic per chat and applies it uniformly to
// every message of that chat. A recognized topic outside the IT allowlist
// maps to "unknown"; "other" stays "other" so that "unknown" remains
// reserved for topics that exist but are not curated.
func ApplyTopics(messages []*schema.NormalizedMessage) {
	grouped := groupByChat(messages)
	for _, msgs := range grouped {
		title := ""
		if len(msgs) > 0 {
			title = msgs[0].ChatTitle
		}
		topic := inferChatTopic(msgs, title)
		if _, allowed := ITTopics[topic]; !allowed && topic != "other" {
			topic = "unknown"
		}
		for _, m := range msgs {
			m.Topic = topic
		}
	}
}

// CountRoles builds a role histogram over the given messages.
func CountRoles(messages []*schema.NormalizedMessage) map[string]int {
	counts := make(map[string]int)
	for _, m := range messages {
		counts[m.Role]++
	}
	return counts
}

// groupByChat groups messages by chat id, preserving insertion order of
// both chats and messages.
func groupByChat(messages []*schema.NormalizedMessage) map[string][]*schema.NormalizedMessage {
	grouped := make(map[string][]*schema.NormalizedMessage)
	for _, m := range messages {
		grouped[m.ChatID] = append(grouped[m.ChatID], m)
	}
	return grouped
}

// chatOrder returns chat ids in first-appearance order so that callers
// iterating grouped messages produce reproducible output.
func chatOrder(messages []*schema.NormalizedMessage) []string {
	seen := make(map[string]struct{})
	order := make([]string, 0)
	for _, m := range messages {
		if _, ok := seen[m.ChatID]; ok {
			continue
		}
		seen[m.ChatID] = struct{}{}
		order = append(order, m.ChatID)
	}
	return order
}
