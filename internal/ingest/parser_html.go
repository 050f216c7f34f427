package ingest

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/net/html"

	"chatrag/internal/schema"
)

const (
	roleAttr      = "data-message-author-role"
	createdAtAttr = "data-message-created-at"
)

// ParseExportHTML decodes an HTML export document into normalized
// messages. The primary strategy selects elements carrying an explicit
// role attribute; when none exist, a fallback heuristic scans block
// elements and classifies roles by a leading "User:"/"Assistant:"/
// "System:" label. Elements with no resulting text are dropped.
func ParseExportHTML(raw []byte, fileName string) ([]*schema.NormalizedMessage, error) {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid export HTML: %w", err)
	}

	chatID := fileStem(fileName)
	if chatID == "" {
		chatID = "html-chat-" + uuid.New().String()
	}
	chatTitle := documentTitle(doc)

	roleNodes := collectRoleNodes(doc)
	if len(roleNodes) > 0 {
		return parseRoleNodes(roleNodes, chatID, chatTitle), nil
	}
	return parseFallbackNodes(doc, chatID, chatTitle), nil
}

func parseRoleNodes(nodes []*html.Node, chatID, chatTitle string) []*schema.NormalizedMessage {
	var messages []*schema.NormalizedMessage
	previousID := ""

	for idx, node := range nodes {
		text := nodeText(node)
		if text == "" {
			continue
		}
		messageID := fmt.Sprintf("%s-html-%d", chatID, idx)
		messages = append(messages, &schema.NormalizedMessage{
			ChatID:          chatID,
			ChatTitle:       chatTitle,
			MessageID:       messageID,
			ParentMessageID: previousID,
			Role:            RoleFromRaw(attrValue(node, roleAttr)),
			CreatedAt:       NormalizeTimestamp(attrValue(node, createdAtAttr)),
			Text:            text,
			HasCode:         ContainsCode(text) || hasElement(node, "code"),
			Topic:           "unknown",
			Source:          schema.SourceExportHTML,
		})
		previousID = messageID
	}
	return messages
}

func parseFallbackNodes(doc *html.Node, chatID, chatTitle string) []*schema.NormalizedMessage {
	var messages []*schema.NormalizedMessage
	previousID := ""
	idx := 0

	walkElements(doc, func(node *html.Node) bool {
		switch node.Data {
		case "article", "div", "p", "li":
		default:
			return true
		}

		text := nodeText(node)
		if text == "" {
			idx++
			return false
		}

		role := schema.RoleUnknown
		lowered := strings.ToLower(text)
		switch {
		case strings.HasPrefix(lowered, "user:"):
			role = schema.RoleUser
			text = strings.TrimSpace(text[len("user:"):])
		case strings.HasPrefix(lowered, "assistant:"):
			role = schema.RoleAssistant
			text = strings.TrimSpace(text[len("assistant:"):])
		case strings.HasPrefix(lowered, "system:"):
			role = schema.RoleSystem
			text = strings.TrimSpace(text[len("system:"):])
		}
		if text == "" {
			idx++
			return false
		}

		messageID := fmt.Sprintf("%s-fallback-%d", chatID, idx)
		messages = append(messages, &schema.NormalizedMessage{
			ChatID:          chatID,
			ChatTitle:       chatTitle,
			MessageID:       messageID,
			ParentMessageID: previousID,
			Role:            role,
			Text:            text,
			HasCode:         ContainsCode(text) || hasElement(node, "code"),
			Topic:           "unknown",
			Source:          schema.SourceExportHTML,
		})
		previousID = messageID
		idx++
		return false
	})
	return messages
}

// collectRoleNodes returns elements carrying the role attribute in
// document order, without descending into matched subtrees.
func collectRoleNodes(doc *html.Node) []*html.Node {
	var nodes []*html.Node
	walkElements(doc, func(node *html.Node) bool {
		if attrValue(node, roleAttr) != "" {
			nodes = append(nodes, node)
			return false
		}
		return true
	})
	return nodes
}

// walkElements visits element nodes in document order. The visitor
// returns false to skip a node's subtree.
func walkElements(n *html.Node, visit func(*html.Node) bool) {
	if n.Type == html.ElementNode {
		if !visit(n) {
			return
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		walkElements(child, visit)
	}
}

// nodeText joins the trimmed text descendants of a node with newlines,
// skipping script and style subtrees.
func nodeText(n *html.Node) string {
	var fragments []string
	var collect func(*html.Node)
	collect = func(node *html.Node) {
		if node.Type == html.ElementNode && (node.Data == "script" || node.Data == "style") {
			return
		}
		if node.Type == html.TextNode {
			if trimmed := strings.TrimSpace(node.Data); trimmed != "" {
				fragments = append(fragments, trimmed)
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			collect(child)
		}
	}
	collect(n)
	return strings.Join(fragments, "\n")
}

func hasElement(n *html.Node, name string) bool {
	found := false
	walkElements(n, func(node *html.Node) bool {
		if node.Data == name {
			found = true
			return false
		}
		return !found
	})
	return found
}

func attrValue(n *html.Node, name string) string {
	for _, attr := range n.Attr {
		if attr.Key == name {
			return attr.Val
		}
	}
	return ""
}

func documentTitle(doc *html.Node) string {
	title := ""
	walkElements(doc, func(node *html.Node) bool {
		if node.Data == "title" && title == "" {
			title = nodeText(node)
			return false
		}
		return title == ""
	})
	return title
}

func fileStem(fileName string) string {
	base := filepath.Base(fileName)
	if ext := filepath.Ext(base); ext != "" {
		base = base[:len(base)-len(ext)]
	}
	if base == "." || base == "/" {
		return ""
	}
	return base
}
