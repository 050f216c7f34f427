package ingest

import (
	"testing"

	"chatrag/internal/schema"
)

func TestParseExportHTML_RoleAttributes(t *testing.T) {
	raw := []byte(`<html><head><title>My Export</title></head><body>
		<div data-message-author-role="user" data-message-created-at="2024-05-01T08:00:00Z">hello there</div>
		<div data-message-author-role="assistant"><p>sure,</p><p>run <code>ls -la</code></p></div>
		<div data-message-author-role="system"></div>
	</body></html>`)

	messages, err := ParseExportHTML(raw, "conversations.html")
	if err != nil {
		t.Fatalf("ParseExportHTML() error = %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}

	first, second := messages[0], messages[1]
	if first.ChatID != "conversations" {
		t.Errorf("ChatID = %q, want conversations", first.ChatID)
	}
	if first.ChatTitle != "My Export" {
		t.Errorf("ChatTitle = %q, want My Export", first.ChatTitle)
	}
	if first.Role != schema.RoleUser || second.Role != schema.RoleAssistant {
		t.Errorf("roles = %q, %q", first.Role, second.Role)
	}
	if first.CreatedAt != "2024-05-01T08:00:00Z" {
		t.Errorf("CreatedAt = %q", first.CreatedAt)
	}
	if second.ParentMessageID != first.MessageID {
		t.Errorf("ParentMessageID = %q, want %q", second.ParentMessageID, first.MessageID)
	}
	// The <code> element marks the message even without backticks.
	if !second.HasCode {
		t.Error("second.HasCode = false, want true")
	}
	if first.Source != schema.SourceExportHTML {
		t.Errorf("Source = %q", first.Source)
	}
}

func TestParseExportHTML_FallbackRoleLabels(t *testing.T) {
	raw := []byte(`<html><body>
		<p>User: how do I exit vim?</p>
		<p>Assistant: press escape then :q</p>
		<p>no label on this one</p>
	</body></html>`)

	messages, err := ParseExportHTML(raw, "chat.html")
	if err != nil {
		t.Fatalf("ParseExportHTML() error = %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(messages))
	}

	if messages[0].Role != schema.RoleUser || messages[0].Text != "how do I exit vim?" {
		t.Errorf("first = %q %q", messages[0].Role, messages[0].Text)
	}
	if messages[1].Role != schema.RoleAssistant || messages[1].Text != "press escape then :q" {
		t.Errorf("second = %q %q", messages[1].Role, messages[1].Text)
	}
	// Unlabeled blocks survive with an unknown role.
	if messages[2].Role != schema.RoleUnknown {
		t.Errorf("third role = %q, want unknown", messages[2].Role)
	}
}

func TestParseExportHTML_SkipsScriptAndStyle(t *testing.T) {
	raw := []byte(`<html><body>
		<div data-message-author-role="user">visible<script>hidden()</script><style>.x{}</style></div>
	</body></html>`)

	messages, err := ParseExportHTML(raw, "x.html")
	if err != nil {
		t.Fatalf("ParseExportHTML() error = %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(messages))
	}
	if messages[0].Text != "visible" {
		t.Errorf("Text = %q, want visible", messages[0].Text)
	}
}
