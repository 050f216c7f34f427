package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel  slog.Level
	LogFormat string

	QdrantURL        string
	QdrantCollection string
	QdrantVectorSize int

	EmbeddingBaseURL   string
	EmbeddingModelName string
	EmbeddingBatchSize int

	LLMBaseURL   string
	LLMModelName string
	LLMAPIKey    string

	MaxChunkTokens  int
	OverlapMessages int

	TopKDefault         int
	ConfidenceThreshold float64
	AnswerMode          string
	HybridKeyword       bool
	EnableRerank        bool

	AllowlistITOnly      bool
	ExcludeTitleKeywords []string

	RawDataDir       string
	ProcessedDataDir string
	DBPath           string
	APIPort          string
}

// MessagesJSONLPath is the message log location under the processed data dir.
func (c *Config) MessagesJSONLPath() string {
	return filepath.Join(c.ProcessedDataDir, "messages.jsonl")
}

// ChunksJSONLPath is the chunk log location under the processed data dir.
func (c *Config) ChunksJSONLPath() string {
	return filepath.Join(c.ProcessedDataDir, "chunks.jsonl")
}

// Load reads configuration from environment variables and returns a Config.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or project root, it is
// loaded automatically; variables already set take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load() // Try current directory

	// Walk up a few levels to find a project-root .env.
	if wd, err := os.Getwd(); err == nil {
		dir := wd
		for i := 0; i < 5; i++ {
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	cfg := &Config{
		LogFormat:          getEnv("LOG_FORMAT", "text"),
		QdrantURL:          getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection:   getEnv("QDRANT_COLLECTION", "chat_chunks"),
		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL_NAME", "all-MiniLM-L6-v2"),
		LLMBaseURL:         getEnv("LLM_BASE_URL", "http://localhost:8080"),
		LLMModelName:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMAPIKey:          getEnv("LLM_API_KEY", ""),
		AnswerMode:         getEnv("ANSWER_MODE", "extractive"),
		RawDataDir:         getEnv("RAW_DATA_DIR", "./data/raw"),
		ProcessedDataDir:   getEnv("PROCESSED_DATA_DIR", "./data/processed"),
		DBPath:             getEnv("DB_PATH", "./data/chatrag.db"),
		APIPort:            getEnv("API_PORT", "8000"),
	}

	level, err := parseLogLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	// QDRANT_VECTOR_SIZE must match the embedding model's output width.
	// A mismatch is a fatal configuration error, so there is no default.
	vectorSizeStr := getEnv("QDRANT_VECTOR_SIZE", "")
	if vectorSizeStr == "" {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE is required")
	}
	vectorSize, err := strconv.Atoi(vectorSizeStr)
	if err != nil {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE must be a valid integer: %w", err)
	}
	if vectorSize <= 0 {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE must be greater than 0")
	}
	cfg.QdrantVectorSize = vectorSize

	if cfg.EmbeddingBatchSize, err = getEnvInt("EMBEDDING_BATCH_SIZE", 32); err != nil {
		return nil, err
	}
	if cfg.EmbeddingBatchSize <= 0 {
		return nil, fmt.Errorf("EMBEDDING_BATCH_SIZE must be greater than 0")
	}
	if cfg.MaxChunkTokens, err = getEnvInt("MAX_CHUNK_TOKENS", 900); err != nil {
		return nil, err
	}
	if cfg.MaxChunkTokens <= 0 {
		return nil, fmt.Errorf("MAX_CHUNK_TOKENS must be greater than 0")
	}
	if cfg.OverlapMessages, err = getEnvInt("OVERLAP_MESSAGES", 2); err != nil {
		return nil, err
	}
	if cfg.OverlapMessages < 0 {
		return nil, fmt.Errorf("OVERLAP_MESSAGES must not be negative")
	}
	if cfg.TopKDefault, err = getEnvInt("TOP_K_DEFAULT", 10); err != nil {
		return nil, err
	}
	if cfg.TopKDefault <= 0 {
		return nil, fmt.Errorf("TOP_K_DEFAULT must be greater than 0")
	}

	thresholdStr := getEnv("CONFIDENCE_THRESHOLD", "0.35")
	threshold, err := strconv.ParseFloat(thresholdStr, 64)
	if err != nil {
		return nil, fmt.Errorf("CONFIDENCE_THRESHOLD must be a valid float: %w", err)
	}
	cfg.ConfidenceThreshold = threshold

	if cfg.AnswerMode != "extractive" && cfg.AnswerMode != "llm" {
		return nil, fmt.Errorf("ANSWER_MODE must be %q or %q, got %q", "extractive", "llm", cfg.AnswerMode)
	}

	cfg.HybridKeyword = getEnvBool("HYBRID_KEYWORD", false)
	cfg.EnableRerank = getEnvBool("ENABLE_RERANK", false)
	cfg.AllowlistITOnly = getEnvBool("ALLOWLIST_IT_ONLY", false)
	cfg.ExcludeTitleKeywords = splitKeywords(getEnv("EXCLUDE_TITLE_KEYWORDS", ""))

	for _, dir := range []string{cfg.RawDataDir, cfg.ProcessedDataDir, filepath.Dir(cfg.DBPath)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
		}
	}

	return cfg, nil
}

func parseLogLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL: %q", value)
	}
}

// splitKeywords parses a comma-separated keyword list, lowercasing and
// trimming each entry and dropping empties.
func splitKeywords(raw string) []string {
	parts := strings.Split(raw, ",")
	keywords := make([]string, 0, len(parts))
	for _, part := range parts {
		cleaned := strings.ToLower(strings.TrimSpace(part))
		if cleaned != "" {
			keywords = append(keywords, cleaned)
		}
	}
	return keywords
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return parsed, nil
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}
