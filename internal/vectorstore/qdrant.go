package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"chatrag/internal/contextutil"
	"chatrag/internal/ingest"
	"chatrag/internal/schema"
)

// upsertBatchSize bounds a single Upsert request.
const upsertBatchSize = 128

// QdrantStore implements VectorStore using Qdrant.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	vectorSize int
}

// NewQdrantStore creates a new Qdrant vector store client.
// urlStr should be in the format "http://host:port" (e.g., "http://localhost:6333").
// The gRPC port (typically 6334) will be derived from the HTTP port.
func NewQdrantStore(urlStr, collection string, vectorSize int) (*QdrantStore, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host := parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}

	port := 6334 // Default gRPC port
	if parsedURL.Port() != "" {
		httpPort, err := strconv.Atoi(parsedURL.Port())
		if err == nil {
			// gRPC port is typically HTTP port + 1
			port = httpPort + 1
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	return &QdrantStore{
		client:     client,
		collection: collection,
		vectorSize: vectorSize,
	}, nil
}

// EnsureCollection creates the chunk collection with cosine distance and
// the payload indexes the search filters rely on. With reset, any
// existing collection is dropped first.
func (s *QdrantStore) EnsureCollection(ctx context.Context, reset bool) error {
	logger := contextutil.LoggerFromContext(ctx)

	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}

	if exists && reset {
		logger.InfoContext(ctx, "dropping collection", "collection", s.collection)
		if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
			return fmt.Errorf("failed to drop collection: %w", err)
		}
		exists = false
	}

	if !exists {
		logger.InfoContext(ctx, "creating collection", "collection", s.collection, "vector_size", s.vectorSize)
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.vectorSize),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		if err := s.createPayloadIndexes(ctx); err != nil {
			return err
		}
		logger.InfoContext(ctx, "collection created", "collection", s.collection, "vector_size", s.vectorSize)
		return nil
	}

	// Collection exists, validate vector size.
	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to get collection info: %w", err)
	}

	config := info.Config
	if config == nil || config.Params == nil {
		return fmt.Errorf("collection config is invalid")
	}

	vectorsConfig := config.Params.GetVectorsConfig()
	if vectorsConfig == nil {
		return fmt.Errorf("collection vectors config is invalid")
	}

	params := vectorsConfig.GetParams()
	if params == nil {
		return fmt.Errorf("collection vector params are invalid")
	}

	if int(params.Size) != s.vectorSize {
		return fmt.Errorf("collection vector size mismatch: expected %d, got %d", s.vectorSize, params.Size)
	}

	logger.InfoContext(ctx, "collection validated", "collection", s.collection, "vector_size", s.vectorSize)
	return nil
}

// createPayloadIndexes indexes the fields used as search filters.
func (s *QdrantStore) createPayloadIndexes(ctx context.Context) error {
	keywordFields := []string{"topic", "chat_id"}
	for _, field := range keywordFields {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to index payload field %s: %w", field, err)
		}
	}

	_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.collection,
		FieldName:      "created_at_ts",
		FieldType:      qdrant.FieldType_FieldTypeFloat.Enum(),
	})
	if err != nil {
		return fmt.Errorf("failed to index payload field created_at_ts: %w", err)
	}
	return nil
}

// UpsertChunks stores chunks with their vectors in bounded batches.
func (s *QdrantStore) UpsertChunks(ctx context.Context, chunks []schema.ChunkRecord, vectors [][]float32) error {
	logger := contextutil.LoggerFromContext(ctx)

	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}

	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		points := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewID(chunks[i].ChunkID),
				Vectors: qdrant.NewVectors(vectors[i]...),
				Payload: qdrant.NewValueMap(chunkPayload(&chunks[i])),
			})
		}

		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points,
		})
		if err != nil {
			logger.ErrorContext(ctx, "failed to upsert chunks", "collection", s.collection, "count", end-start, "error", err)
			return fmt.Errorf("failed to upsert chunks: %w", err)
		}
	}

	logger.InfoContext(ctx, "upserted chunks", "collection", s.collection, "count", len(chunks))
	return nil
}

// chunkPayload flattens a chunk into the stored payload shape. The
// created_at_ts field duplicates start_at as epoch seconds so date
// filters can use a numeric range.
func chunkPayload(chunk *schema.ChunkRecord) map[string]any {
	messageIDs := make([]any, len(chunk.MessageIDs))
	for i, id := range chunk.MessageIDs {
		messageIDs[i] = id
	}

	rolesCount := make(map[string]any, len(chunk.Metadata.RolesCount))
	for role, count := range chunk.Metadata.RolesCount {
		rolesCount[role] = count
	}

	payload := map[string]any{
		"chunk_id":         chunk.ChunkID,
		"chat_id":          chunk.ChatID,
		"chat_title":       chunk.ChatTitle,
		"topic":            chunk.Topic,
		"created_at_start": chunk.StartAt,
		"created_at_end":   chunk.EndAt,
		"message_ids":      messageIDs,
		"text":             chunk.Text,
		"metadata": map[string]any{
			"title":         chunk.Metadata.Title,
			"roles_count":   rolesCount,
			"message_count": chunk.Metadata.MessageCount,
			"has_code":      chunk.Metadata.HasCode,
		},
	}
	if ts, ok := ingest.EpochSeconds(chunk.StartAt); ok {
		payload["created_at_ts"] = ts
	}
	return payload
}

// Search performs a filtered similarity search.
func (s *QdrantStore) Search(ctx context.Context, query []float32, topK int, filter SearchFilter) ([]schema.RetrievalContext, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if topK <= 0 {
		return nil, fmt.Errorf("topK must be greater than 0")
	}

	qdrantFilter := buildFilter(filter)

	limit := uint64(topK)
	queryReq := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if qdrantFilter != nil {
		queryReq.Filter = qdrantFilter
	}

	scoredPoints, err := s.client.Query(ctx, queryReq)
	if err != nil {
		logger.ErrorContext(ctx, "failed to search chunks", "collection", s.collection, "top_k", topK, "error", err)
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	results := make([]schema.RetrievalContext, 0, len(scoredPoints))
	for _, point := range scoredPoints {
		results = append(results, contextFromPoint(point))
	}

	logger.InfoContext(ctx, "search completed", "collection", s.collection, "top_k", topK, "results", len(results))
	return results, nil
}

// buildFilter translates a SearchFilter to Qdrant must conditions,
// returning nil when every field is empty.
func buildFilter(filter SearchFilter) *qdrant.Filter {
	conditions := make([]*qdrant.Condition, 0)

	if filter.Topic != "" {
		conditions = append(conditions, qdrant.NewMatch("topic", filter.Topic))
	}
	if len(filter.ChatIDs) > 0 {
		conditions = append(conditions, qdrant.NewMatchKeywords("chat_id", filter.ChatIDs...))
	}

	dateRange := &qdrant.Range{}
	hasRange := false
	if from, ok := ingest.EpochSeconds(filter.DateFrom); ok {
		dateRange.Gte = &from
		hasRange = true
	}
	if to, ok := ingest.EpochSeconds(filter.DateTo); ok {
		dateRange.Lte = &to
		hasRange = true
	}
	if hasRange {
		conditions = append(conditions, qdrant.NewRange("created_at_ts", dateRange))
	}

	if len(conditions) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: conditions}
}

// contextFromPoint rebuilds a retrieval context from a scored point's
// payload. The point id backs chunk_id when the payload lacks one.
func contextFromPoint(point *qdrant.ScoredPoint) schema.RetrievalContext {
	meta := make(map[string]any)
	if point.Payload != nil {
		meta = convertPayloadToMap(point.Payload)
	}

	chunkID := payloadString(meta, "chunk_id")
	if chunkID == "" && point.Id != nil {
		chunkID = point.Id.GetUuid()
	}

	var messageIDs []string
	if list, ok := meta["message_ids"].([]any); ok {
		for _, item := range list {
			if id, ok := item.(string); ok {
				messageIDs = append(messageIDs, id)
			}
		}
	}

	return schema.RetrievalContext{
		ChunkID:    chunkID,
		ChatID:     payloadString(meta, "chat_id"),
		ChatTitle:  payloadString(meta, "chat_title"),
		MessageIDs: messageIDs,
		Topic:      payloadString(meta, "topic"),
		Text:       payloadString(meta, "text"),
		Score:      float64(point.Score),
		CreatedAt:  payloadString(meta, "created_at_start"),
	}
}

func payloadString(meta map[string]any, key string) string {
	if value, ok := meta[key].(string); ok {
		return value
	}
	return ""
}

// DeleteByChatID removes every stored chunk of one chat via a payload
// filter selector.
func (s *QdrantStore) DeleteByChatID(ctx context.Context, chatID string) error {
	logger := contextutil.LoggerFromContext(ctx)

	if chatID == "" {
		return fmt.Errorf("chat id is required")
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{qdrant.NewMatch("chat_id", chatID)},
				},
			},
		},
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to delete chat chunks", "collection", s.collection, "chat_id", chatID, "error", err)
		return fmt.Errorf("failed to delete chat chunks: %w", err)
	}

	logger.InfoContext(ctx, "deleted chat chunks", "collection", s.collection, "chat_id", chatID)
	return nil
}

// Stats returns collection point counts. A missing collection reports
// zero counts rather than an error.
func (s *QdrantStore) Stats(ctx context.Context) (CollectionStats, error) {
	stats := CollectionStats{Collection: s.collection, Status: "missing"}

	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return stats, fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !exists {
		return stats, nil
	}

	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return stats, fmt.Errorf("failed to get collection info: %w", err)
	}

	if info.PointsCount != nil {
		stats.PointsCount = int(*info.PointsCount)
	}
	if info.IndexedVectorsCount != nil {
		stats.IndexedVectorsCount = int(*info.IndexedVectorsCount)
	}
	stats.Status = "unknown"
	if info.Status != 0 {
		stats.Status = info.Status.String()
	}
	return stats, nil
}

// convertPayloadToMap converts Qdrant payload to map[string]any.
func convertPayloadToMap(payload map[string]*qdrant.Value) map[string]any {
	result := make(map[string]any, len(payload))
	for k, v := range payload {
		if v == nil {
			continue
		}
		result[k] = convertValue(v)
	}
	return result
}

// convertValue converts a Qdrant Value to a plain Go value.
func convertValue(v *qdrant.Value) any {
	switch val := v.Kind.(type) {
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_ListValue:
		list := make([]any, len(val.ListValue.Values))
		for i, item := range val.ListValue.Values {
			list[i] = convertValue(item)
		}
		return list
	case *qdrant.Value_StructValue:
		return convertPayloadToMap(val.StructValue.Fields)
	default:
		return nil
	}
}
