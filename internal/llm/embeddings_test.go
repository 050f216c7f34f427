package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// embeddingsServer answers /v1/embeddings with deterministic vectors
// derived from each input's position in the request, recording batch
// sizes as they arrive.
func embeddingsServer(t *testing.T, width int, batchSizes *[]int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}

		var req embeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if batchSizes != nil {
			*batchSizes = append(*batchSizes, len(req.Input))
		}

		resp := embeddingsResponse{Data: make([]embeddingData, len(req.Input))}
		for i, text := range req.Input {
			vec := make([]float64, width)
			// Encode the text's length so ordering is observable.
			vec[0] = float64(len(text))
			resp.Data[i] = embeddingData{Embedding: vec}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
}

func TestEmbedTexts_BatchesAndPreservesOrder(t *testing.T) {
	var batchSizes []int
	server := embeddingsServer(t, 4, &batchSizes)
	defer server.Close()

	client := NewEmbeddingsClient(server.URL, "test-key", "embed-model", 4, 2)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := client.EmbedTexts(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedTexts() error = %v", err)
	}

	if len(vectors) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vectors), len(texts))
	}
	for i, text := range texts {
		if vectors[i][0] != float32(len(text)) {
			t.Errorf("vector %d came from the wrong input: %v", i, vectors[i][0])
		}
		if len(vectors[i]) != 4 {
			t.Errorf("vector %d width = %d, want 4", i, len(vectors[i]))
		}
	}
	// Five inputs at batch size two arrive as 2+2+1.
	if len(batchSizes) != 3 || batchSizes[0] != 2 || batchSizes[1] != 2 || batchSizes[2] != 1 {
		t.Errorf("batch sizes = %v, want [2 2 1]", batchSizes)
	}
}

func TestEmbedTexts_EmptyInputSkipsRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty input")
	}))
	defer server.Close()

	client := NewEmbeddingsClient(server.URL, "test-key", "embed-model", 4, 2)
	vectors, err := client.EmbedTexts(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedTexts() error = %v", err)
	}
	if len(vectors) != 0 {
		t.Errorf("got %d vectors, want 0", len(vectors))
	}
}

func TestEmbedTexts_WidthMismatch(t *testing.T) {
	server := embeddingsServer(t, 3, nil)
	defer server.Close()

	client := NewEmbeddingsClient(server.URL, "test-key", "embed-model", 4, 2)
	_, err := client.EmbedTexts(context.Background(), []string{"x"})
	if err == nil || !strings.Contains(err.Error(), "size 3, expected 4") {
		t.Fatalf("EmbedTexts() error = %v, want width mismatch", err)
	}
}

func TestEmbedTexts_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": [{"embedding": [0, 0, 0, 0]}]}`)
	}))
	defer server.Close()

	client := NewEmbeddingsClient(server.URL, "test-key", "embed-model", 4, 8)
	_, err := client.EmbedTexts(context.Background(), []string{"x", "y"})
	if err == nil || !strings.Contains(err.Error(), "expected 2 embeddings, got 1") {
		t.Fatalf("EmbedTexts() error = %v, want count mismatch", err)
	}
}

func TestEmbedTexts_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewEmbeddingsClient(server.URL, "test-key", "embed-model", 4, 2)
	_, err := client.EmbedTexts(context.Background(), []string{"x"})
	if err == nil || !strings.Contains(err.Error(), "bad status 429") {
		t.Fatalf("EmbedTexts() error = %v, want bad status", err)
	}
}

func TestEmbedQuery(t *testing.T) {
	server := embeddingsServer(t, 4, nil)
	defer server.Close()

	client := NewEmbeddingsClient(server.URL, "test-key", "embed-model", 4, 2)
	vector, err := client.EmbedQuery(context.Background(), "hello")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vector) != 4 || vector[0] != 5 {
		t.Errorf("vector = %v", vector)
	}
}

func TestNewEmbeddingsClient_DefaultsBatchSize(t *testing.T) {
	client := NewEmbeddingsClient("http://x", "k", "m", 4, 0)
	if client.BatchSize != 32 {
		t.Errorf("BatchSize = %d, want 32", client.BatchSize)
	}
}
