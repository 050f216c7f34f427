package ingest

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"chatrag/internal/schema"
)

// ParseExportJSON decodes a JSON export document into normalized
// messages. Two shapes are auto-detected per conversation: a mapping
// tree (node-id → node with parent reference and embedded message) and a
// flat message list. A payload matching neither shape yields zero
// messages, which is not an error.
func ParseExportJSON(raw []byte) ([]*schema.NormalizedMessage, error) {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("invalid export JSON: %w", err)
	}
	return parseExportPayload(payload), nil
}

func parseExportPayload(payload any) []*schema.NormalizedMessage {
	conversations := extractConversations(payload)
	var output []*schema.NormalizedMessage

	for idx, convo := range conversations {
		chatID := firstString(convo, "id", "conversation_id")
		if chatID == "" {
			chatID = fmt.Sprintf("chat-%d-%s", idx, uuid.New().String())
		}
		chatTitle, _ := convo["title"].(string)

		if mapping, ok := convo["mapping"].(map[string]any); ok {
			output = append(output, parseMappingTree(mapping, chatID, chatTitle)...)
			continue
		}

		if rawMessages, ok := convo["messages"].([]any); ok {
			output = append(output, parseMessageList(rawMessages, chatID, chatTitle)...)
			continue
		}

		if nested, ok := convo["conversation"].(map[string]any); ok {
			output = append(output, parseExportPayload(nested)...)
		}
	}

	return output
}

// extractConversations probes the payload for the conversation container:
// a bare list, a dict with a "conversations" or "items" list, or a single
// conversation object.
func extractConversations(payload any) []map[string]any {
	switch v := payload.(type) {
	case []any:
		return onlyMaps(v)
	case map[string]any:
		if list, ok := v["conversations"].([]any); ok {
			return onlyMaps(list)
		}
		if list, ok := v["items"].([]any); ok {
			return onlyMaps(list)
		}
		for _, key := range []string{"mapping", "messages", "id", "conversation_id"} {
			if _, ok := v[key]; ok {
				return []map[string]any{v}
			}
		}
	}
	return nil
}

// parseMappingTree resolves a mapping-tree conversation in two passes:
// first a node-id → message-id table, then message construction that
// rewrites parent node references through the table. This keeps parent
// links valid when a node's message id differs from its tree key and
// stays stable across branch/regeneration variants reusing node ids.
func parseMappingTree(mapping map[string]any, chatID, chatTitle string) []*schema.NormalizedMessage {
	keys := make([]string, 0, len(mapping))
	for key := range mapping {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	nodeToMessageID := make(map[string]string, len(keys))
	for _, key := range keys {
		node, ok := mapping[key].(map[string]any)
		if !ok {
			continue
		}
		messageObj := node
		if embedded, ok := node["message"].(map[string]any); ok {
			messageObj = embedded
		}
		resolved := firstString(messageObj, "id")
		if resolved == "" {
			resolved = firstString(node, "id")
		}
		if resolved == "" {
			resolved = fmt.Sprintf("%s-node-%s", chatID, key)
		}
		nodeToMessageID[key] = resolved
	}

	var messages []*schema.NormalizedMessage
	for _, key := range keys {
		node, ok := mapping[key].(map[string]any)
		if !ok {
			continue
		}
		parentID := ""
		if parentNode := firstString(node, "parent", "parent_id"); parentNode != "" {
			if resolved, ok := nodeToMessageID[parentNode]; ok {
				parentID = resolved
			} else {
				parentID = parentNode
			}
		}

		if parsed := nodeToMessage(chatID, chatTitle, node, parentID, nodeToMessageID[key]); parsed != nil {
			messages = append(messages, parsed)
		}
	}
	return messages
}

// parseMessageList handles the flat-list shape. When an item carries no
// explicit parent field, the parent defaults to the previous surviving
// message (positional chaining).
func parseMessageList(rawMessages []any, chatID, chatTitle string) []*schema.NormalizedMessage {
	var messages []*schema.NormalizedMessage
	previousID := ""

	for idx, rawItem := range rawMessages {
		item, ok := rawItem.(map[string]any)
		if !ok {
			continue
		}
		messageID := firstString(item, "id", "message_id")
		if messageID == "" {
			messageID = fmt.Sprintf("%s-m-%d", chatID, idx)
		}
		parentID := firstString(item, "parent_message_id", "parent")
		if parentID == "" {
			parentID = previousID
		}

		if parsed := nodeToMessage(chatID, chatTitle, item, parentID, messageID); parsed != nil {
			messages = append(messages, parsed)
			previousID = parsed.MessageID
		}
	}
	return messages
}

// nodeToMessage builds one normalized message from a tree node or list
// item. A node with neither extractable text nor attachments yields nil
// and is dropped silently.
func nodeToMessage(chatID, chatTitle string, sourceObj map[string]any, parentID, messageID string) *schema.NormalizedMessage {
	messageObj := sourceObj
	if embedded, ok := sourceObj["message"].(map[string]any); ok {
		messageObj = embedded
	}

	text := extractText(messageObj)
	attachments := extractAttachments(messageObj)
	if text == "" && len(attachments) == 0 {
		return nil
	}

	role := schema.RoleUnknown
	if author, ok := messageObj["author"].(map[string]any); ok {
		role = RoleFromRaw(firstString(author, "role"))
	}
	if role == schema.RoleUnknown {
		rawRole := firstString(messageObj, "role")
		if rawRole == "" {
			rawRole = firstString(sourceObj, "role")
		}
		role = RoleFromRaw(rawRole)
	}

	createdRaw := messageObj["create_time"]
	if createdRaw == nil {
		createdRaw = sourceObj["create_time"]
	}
	if createdRaw == nil {
		createdRaw = sourceObj["created_at"]
	}

	if messageID == "" {
		messageID = firstString(messageObj, "id")
	}
	if messageID == "" {
		messageID = firstString(sourceObj, "id")
	}
	if messageID == "" {
		messageID = uuid.New().String()
	}

	return &schema.NormalizedMessage{
		ChatID:          chatID,
		ChatTitle:       chatTitle,
		MessageID:       messageID,
		ParentMessageID: parentID,
		Role:            role,
		CreatedAt:       NormalizeTimestamp(createdRaw),
		Text:            text,
		HasCode:         ContainsCode(text),
		Attachments:     attachments,
		Topic:           "unknown",
		Source:          schema.SourceExportJSON,
	}
}

// extractText unions the payload encodings seen across export variants:
// a structured parts list (strings, or dicts with text/caption), a flat
// content.text, and top-level text/parts/body fields, joining non-empty
// fragments in source order.
func extractText(messageObj map[string]any) string {
	var fragments []string

	if content, ok := messageObj["content"].(map[string]any); ok {
		if parts, ok := content["parts"].([]any); ok {
			for _, rawPart := range parts {
				switch part := rawPart.(type) {
				case string:
					if strings.TrimSpace(part) != "" {
						fragments = append(fragments, part)
					}
				case map[string]any:
					if partText, ok := part["text"].(string); ok && strings.TrimSpace(partText) != "" {
						fragments = append(fragments, partText)
					} else if caption, ok := part["caption"].(string); ok && strings.TrimSpace(caption) != "" {
						fragments = append(fragments, caption)
					}
				}
			}
		} else if contentText, ok := content["text"].(string); ok {
			fragments = append(fragments, contentText)
		}
	}

	if text, ok := messageObj["text"].(string); ok {
		fragments = append(fragments, text)
	}

	if parts, ok := messageObj["parts"].([]any); ok {
		for _, rawPart := range parts {
			if part, ok := rawPart.(string); ok && strings.TrimSpace(part) != "" {
				fragments = append(fragments, part)
			}
		}
	}

	if body, ok := messageObj["body"].(string); ok {
		fragments = append(fragments, body)
	}

	nonEmpty := make([]string, 0, len(fragments))
	for _, fragment := range fragments {
		if fragment != "" {
			nonEmpty = append(nonEmpty, fragment)
		}
	}
	return strings.TrimSpace(strings.Join(nonEmpty, "\n"))
}

// extractAttachments collects attachment descriptors from message
// metadata and from non-text content parts.
func extractAttachments(messageObj map[string]any) []schema.Attachment {
	var attachments []schema.Attachment

	if metadata, ok := messageObj["metadata"].(map[string]any); ok {
		if rawList, ok := metadata["attachments"].([]any); ok {
			for _, rawItem := range rawList {
				item, ok := rawItem.(map[string]any)
				if !ok {
					continue
				}
				attachmentType := firstString(item, "mime_type", "type")
				if attachmentType == "" {
					attachmentType = "attachment"
				}
				caption := firstString(item, "caption", "text")
				attachments = append(attachments, schema.Attachment{
					Type:    attachmentType,
					Name:    firstString(item, "name"),
					Caption: caption,
				})
			}
		}
	}

	if content, ok := messageObj["content"].(map[string]any); ok {
		if parts, ok := content["parts"].([]any); ok {
			for _, rawPart := range parts {
				part, ok := rawPart.(map[string]any)
				if !ok {
					continue
				}
				partType := firstString(part, "content_type", "type")
				if partType == "" {
					partType = "text"
				}
				if partType == "text" {
					continue
				}
				attachments = append(attachments, schema.Attachment{
					Type:    partType,
					Name:    firstString(part, "name"),
					Caption: firstString(part, "caption", "text"),
				})
			}
		}
	}

	return attachments
}

func onlyMaps(list []any) []map[string]any {
	maps := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			maps = append(maps, m)
		}
	}
	return maps
}

// firstString returns the first non-empty string value among the given
// keys, stringifying numeric ids the way duck-typed exports require.
func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			if v == float64(int64(v)) {
				return fmt.Sprintf("%d", int64(v))
			}
			return fmt.Sprintf("%v", v)
		}
	}
	return ""
}
