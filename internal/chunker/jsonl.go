package chunker

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"chatrag/internal/schema"
)

// WriteChunksJSONL persists chunks to a newline-delimited JSON log, one
// record per line.
func WriteChunksJSONL(path string, chunks []schema.ChunkRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create chunk log dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create chunk log: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	writer := bufio.NewWriter(f)
	encoder := json.NewEncoder(writer)
	for i := range chunks {
		if err := encoder.Encode(&chunks[i]); err != nil {
			return fmt.Errorf("failed to encode chunk %s: %w", chunks[i].ChunkID, err)
		}
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush chunk log: %w", err)
	}
	return nil
}

// LoadChunksJSONL reads the chunk log back. A missing file yields an
// empty slice.
func LoadChunksJSONL(path string) ([]schema.ChunkRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open chunk log: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var chunks []schema.ChunkRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var chunk schema.ChunkRecord
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return nil, fmt.Errorf("failed to decode chunk log line: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunk log: %w", err)
	}
	return chunks, nil
}
