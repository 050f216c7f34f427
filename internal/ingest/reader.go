package ingest

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"chatrag/internal/contextutil"
	"chatrag/internal/schema"
)

// ErrUnsupportedInput marks a fatal input error: a file whose extension
// is not a supported export container.
var ErrUnsupportedInput = errors.New("unsupported input type")

// ErrNoInput is returned when no export file can be resolved.
var ErrNoInput = errors.New("no export file found")

var supportedExtensions = map[string]struct{}{
	".zip":  {},
	".json": {},
	".html": {},
	".htm":  {},
}

// ReadExportFile parses an export file into normalized messages based on
// its extension: .json, .html/.htm, or .zip archives containing either.
func ReadExportFile(ctx context.Context, path string) ([]*schema.NormalizedMessage, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read export file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseExportJSON(raw)
	case ".html", ".htm":
		return ParseExportHTML(raw, filepath.Base(path))
	case ".zip":
		return readZip(ctx, raw)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedInput, filepath.Ext(path))
	}
}

// readZip parses every JSON and HTML entry of an export archive. A
// malformed JSON entry is skipped with a warning rather than failing the
// whole archive.
func readZip(ctx context.Context, raw []byte) ([]*schema.NormalizedMessage, error) {
	logger := contextutil.LoggerFromContext(ctx)

	reader, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("failed to open zip archive: %w", err)
	}

	var messages []*schema.NormalizedMessage
	for _, entry := range reader.File {
		lowered := strings.ToLower(entry.Name)
		isJSON := strings.HasSuffix(lowered, ".json")
		isHTML := strings.HasSuffix(lowered, ".html") || strings.HasSuffix(lowered, ".htm")
		if !isJSON && !isHTML {
			continue
		}

		entryBytes, err := readZipEntry(entry)
		if err != nil {
			logger.WarnContext(ctx, "skipping unreadable zip entry", "entry", entry.Name, "error", err)
			continue
		}

		if isJSON {
			parsed, err := ParseExportJSON(entryBytes)
			if err != nil {
				logger.WarnContext(ctx, "skipping invalid JSON inside zip", "entry", entry.Name, "error", err)
				continue
			}
			messages = append(messages, parsed...)
			continue
		}

		parsed, err := ParseExportHTML(entryBytes, entry.Name)
		if err != nil {
			logger.WarnContext(ctx, "skipping invalid HTML inside zip", "entry", entry.Name, "error", err)
			continue
		}
		messages = append(messages, parsed...)
	}
	return messages, nil
}

func readZipEntry(entry *zip.File) ([]byte, error) {
	fp, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = fp.Close()
	}()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(fp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ResolveInputPath locates the export to ingest: an explicit path
// (absolute, or relative to the raw data dir), or the newest supported
// file in the raw data dir when none is given.
func ResolveInputPath(rawDataDir, userInputPath string) (string, error) {
	if userInputPath != "" {
		if _, err := os.Stat(userInputPath); err == nil {
			return userInputPath, nil
		}
		candidate := filepath.Join(rawDataDir, userInputPath)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		return "", fmt.Errorf("%w: %s", ErrNoInput, userInputPath)
	}

	entries, err := os.ReadDir(rawDataDir)
	if err != nil {
		return "", fmt.Errorf("failed to read raw data dir: %w", err)
	}

	type option struct {
		path    string
		modTime int64
	}
	var options []option
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := supportedExtensions[strings.ToLower(filepath.Ext(entry.Name()))]; !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		options = append(options, option{
			path:    filepath.Join(rawDataDir, entry.Name()),
			modTime: info.ModTime().UnixNano(),
		})
	}
	if len(options) == 0 {
		return "", fmt.Errorf("%w in %s: add a ZIP/JSON/HTML export first", ErrNoInput, rawDataDir)
	}

	sort.Slice(options, func(i, j int) bool {
		if options[i].modTime != options[j].modTime {
			return options[i].modTime > options[j].modTime
		}
		return options[i].path < options[j].path
	})
	return options[0].path, nil
}

// ApplyPrivacy redacts every message in place and recomputes its code
// flag, accumulating redaction stats. A message whose text becomes empty
// with no attachments is removed from the corpus entirely, so no
// degenerate all-sentinel chunks can form downstream.
func ApplyPrivacy(messages []*schema.NormalizedMessage) ([]*schema.NormalizedMessage, schema.RedactionStats) {
	var total schema.RedactionStats
	cleaned := make([]*schema.NormalizedMessage, 0, len(messages))

	for _, message := range messages {
		redacted, stats := RedactText(message.Text)
		message.Text = redacted
		message.HasCode = ContainsCode(redacted)
		total.Add(stats)

		if strings.TrimSpace(message.Text) == "" && len(message.Attachments) == 0 {
			continue
		}
		cleaned = append(cleaned, message)
	}
	return cleaned, total
}

// FilterChats excludes conversations wholesale: by title keyword
// denylist, and by the IT-topic allowlist when enabled. Both predicates
// look at the chat's first message; exclusion removes every message of
// the chat.
func FilterChats(messages []*schema.NormalizedMessage, allowlistITOnly bool, excludeTitleKeywords []string) []*schema.NormalizedMessage {
	grouped := groupByChat(messages)

	var filtered []*schema.NormalizedMessage
	for _, chatID := range chatOrder(messages) {
		chatMessages := grouped[chatID]
		if len(chatMessages) == 0 {
			continue
		}

		title := strings.ToLower(chatMessages[0].ChatTitle)
		excluded := false
		for _, keyword := range excludeTitleKeywords {
			if keyword != "" && strings.Contains(title, keyword) {
				excluded = true
				break
			}
		}
		if excluded {
			continue
		}

		if allowlistITOnly {
			if _, ok := ITTopics[chatMessages[0].Topic]; !ok {
				continue
			}
		}

		filtered = append(filtered, chatMessages...)
	}
	return filtered
}

// WriteMessagesJSONL persists messages append-order to a newline
// delimited JSON log, one record per line.
func WriteMessagesJSONL(path string, messages []*schema.NormalizedMessage) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create message log dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create message log: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	writer := bufio.NewWriter(f)
	encoder := json.NewEncoder(writer)
	for _, message := range messages {
		if err := encoder.Encode(message); err != nil {
			return fmt.Errorf("failed to encode message %s: %w", message.MessageID, err)
		}
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush message log: %w", err)
	}
	return nil
}

// LoadMessagesJSONL reads the message log back. A missing file yields an
// empty slice, matching the log's append-only lifecycle.
func LoadMessagesJSONL(path string) ([]*schema.NormalizedMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open message log: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var messages []*schema.NormalizedMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var message schema.NormalizedMessage
		if err := json.Unmarshal([]byte(line), &message); err != nil {
			return nil, fmt.Errorf("failed to decode message log line: %w", err)
		}
		messages = append(messages, &message)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read message log: %w", err)
	}
	return messages, nil
}
