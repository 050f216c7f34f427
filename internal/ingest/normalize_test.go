package ingest

import (
	"testing"

	"chatrag/internal/schema"
)

func TestNormalizeTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{
			name:  "RFC3339 with offset",
			value: "2024-05-01T10:00:00+02:00",
			want:  "2024-05-01T08:00:00Z",
		},
		{
			name:  "RFC3339 with Z",
			value: "2024-05-01T08:00:00Z",
			want:  "2024-05-01T08:00:00Z",
		},
		{
			name:  "offset-less treated as UTC",
			value: "2024-05-01T08:00:00",
			want:  "2024-05-01T08:00:00Z",
		},
		{
			name:  "space separated",
			value: "2024-05-01 08:00:00",
			want:  "2024-05-01T08:00:00Z",
		},
		{
			name:  "date only",
			value: "2024-05-01",
			want:  "2024-05-01T00:00:00Z",
		},
		{
			name:  "digit string epoch seconds",
			value: "1714550400",
			want:  "2024-05-01T08:00:00Z",
		},
		{
			name:  "float epoch seconds",
			value: float64(1714550400),
			want:  "2024-05-01T08:00:00Z",
		},
		{
			name:  "epoch milliseconds",
			value: float64(1714550400000),
			want:  "2024-05-01T08:00:00Z",
		},
		{
			name:  "fractional epoch keeps second precision",
			value: 1714550400.75,
			want:  "2024-05-01T08:00:00Z",
		},
		{
			name:  "nil",
			value: nil,
			want:  "",
		},
		{
			name:  "empty string",
			value: "   ",
			want:  "",
		},
		{
			name:  "garbage",
			value: "not a timestamp",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeTimestamp(tt.value); got != tt.want {
				t.Errorf("NormalizeTimestamp(%v) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestEpochSeconds(t *testing.T) {
	ts, ok := EpochSeconds("2024-05-01T08:00:00Z")
	if !ok {
		t.Fatal("EpochSeconds() ok = false, want true")
	}
	if ts != 1714550400 {
		t.Errorf("EpochSeconds() = %v, want 1714550400", ts)
	}

	if _, ok := EpochSeconds(""); ok {
		t.Error("EpochSeconds(\"\") ok = true, want false")
	}
	if _, ok := EpochSeconds("garbage"); ok {
		t.Error("EpochSeconds(garbage) ok = true, want false")
	}
}

func TestRoleFromRaw(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{"user", schema.RoleUser},
		{"  Assistant ", schema.RoleAssistant},
		{"SYSTEM", schema.RoleSystem},
		{"tool", schema.RoleTool},
		{"bot", schema.RoleUnknown},
		{"", schema.RoleUnknown},
	}

	for _, tt := range tests {
		if got := RoleFromRaw(tt.value); got != tt.want {
			t.Errorf("RoleFromRaw(%q) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestInferTopic(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"python keyword", "How do I install pandas with pip?", "python"},
		{"case insensitive", "DOCKER compose restart loop", "devops"},
		{"first matching topic wins", "pytest for my fastapi app", "python"},
		{"no match", "favorite pizza toppings", "other"},
		{"empty", "", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InferTopic(tt.text); got != tt.want {
				t.Errorf("InferTopic(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestApplyTopics(t *testing.T) {
	messages := []*schema.NormalizedMessage{
		{ChatID: "c1", ChatTitle: "Django migrations", MessageID: "m1", Text: "hello"},
		{ChatID: "c1", ChatTitle: "Django migrations", MessageID: "m2", Text: "world"},
		{ChatID: "c2", ChatTitle: "Chit chat", MessageID: "m3", Text: "my docker build is stuck"},
		{ChatID: "c3", ChatTitle: "Dinner plans", MessageID: "m4", Text: "pasta tonight?"},
	}

	ApplyTopics(messages)

	// Title keywords take priority over message bodies.
	if messages[0].Topic != "django" || messages[1].Topic != "django" {
		t.Errorf("chat c1 topics = %q/%q, want django", messages[0].Topic, messages[1].Topic)
	}
	// Falls back to the first messages when the title says nothing.
	if messages[2].Topic != "devops" {
		t.Errorf("chat c2 topic = %q, want devops", messages[2].Topic)
	}
	// A chat with no recognizable keywords stays "other", never "unknown".
	if messages[3].Topic != "other" {
		t.Errorf("chat c3 topic = %q, want other", messages[3].Topic)
	}
}

func TestApplyTopics_UniformPerChat(t *testing.T) {
	messages := []*schema.NormalizedMessage{
		{ChatID: "c1", ChatTitle: "", MessageID: "m1", Text: "tell me about postgres indexes"},
		{ChatID: "c1", ChatTitle: "", MessageID: "m2", Text: "and completely unrelated gardening"},
	}

	ApplyTopics(messages)

	if messages[0].Topic != messages[1].Topic {
		t.Errorf("topics differ within one chat: %q vs %q", messages[0].Topic, messages[1].Topic)
	}
	if messages[0].Topic != "databases" {
		t.Errorf("chat topic = %q, want databases", messages[0].Topic)
	}
}

func TestCountRoles(t *testing.T) {
	messages := []*schema.NormalizedMessage{
		{Role: schema.RoleUser},
		{Role: schema.RoleAssistant},
		{Role: schema.RoleUser},
		{Role: schema.RoleUnknown},
	}

	counts := CountRoles(messages)
	if counts[schema.RoleUser] != 2 || counts[schema.RoleAssistant] != 1 || counts[schema.RoleUnknown] != 1 {
		t.Errorf("CountRoles() = %v", counts)
	}
}
