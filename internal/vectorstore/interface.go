package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vector_store.go -package=mocks chatrag/internal/vectorstore VectorStore

import (
	"context"

	"chatrag/internal/schema"
)

// SearchFilter narrows a similarity search. Zero-valued fields are
// ignored. Date bounds are ISO-8601 strings interpreted with the same
// conversion rules as message normalization.
type SearchFilter struct {
	Topic    string
	ChatIDs  []string
	DateFrom string
	DateTo   string
}

// CollectionStats reports the state of the chunk collection.
type CollectionStats struct {
	Collection          string `json:"collection"`
	PointsCount         int    `json:"points_count"`
	IndexedVectorsCount int    `json:"indexed_vectors_count"`
	Status              string `json:"status"`
}

// VectorStore defines the interface for chunk vector storage.
type VectorStore interface {
	// EnsureCollection creates the collection if missing. With reset it
	// drops any existing collection first.
	EnsureCollection(ctx context.Context, reset bool) error

	// UpsertChunks stores chunks with their vectors. The two slices must
	// pair up one to one.
	UpsertChunks(ctx context.Context, chunks []schema.ChunkRecord, vectors [][]float32) error

	// Search performs a filtered similarity search and returns scored
	// contexts in descending score order.
	Search(ctx context.Context, query []float32, topK int, filter SearchFilter) ([]schema.RetrievalContext, error)

	// DeleteByChatID removes every stored chunk of one chat.
	DeleteByChatID(ctx context.Context, chatID string) error

	// Stats returns collection point counts.
	Stats(ctx context.Context) (CollectionStats, error)
}
