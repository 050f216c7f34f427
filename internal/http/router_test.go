package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"chatrag/internal/config"
	llmmocks "chatrag/internal/llm/mocks"
	"chatrag/internal/rag"
	"chatrag/internal/schema"
	"chatrag/internal/vectorstore"
	vsmocks "chatrag/internal/vectorstore/mocks"
)

func testRouter(t *testing.T, ctrl *gomock.Controller) http.Handler {
	t.Helper()

	embedder := llmmocks.NewMockEmbedder(ctrl)
	embedder.EXPECT().EmbedQuery(gomock.Any(), gomock.Any()).Return([]float32{0.1}, nil).AnyTimes()

	store := vsmocks.NewMockVectorStore(ctrl)
	store.EXPECT().Stats(gomock.Any()).Return(vectorstore.CollectionStats{Collection: "chat_chunks"}, nil).AnyTimes()
	store.EXPECT().Search(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return([]schema.RetrievalContext{
		{ChunkID: "a", ChatID: "c1", Text: "indexed text", Score: 0.9},
	}, nil).AnyTimes()
	store.EXPECT().DeleteByChatID(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	store.EXPECT().EnsureCollection(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	cfg := &config.Config{
		QdrantCollection: "chat_chunks",
		ProcessedDataDir: t.TempDir(),
		RawDataDir:       t.TempDir(),
	}
	engine := rag.NewEngine(
		rag.NewRetriever(embedder, store, "", false, false),
		rag.NewGenerator(nil, 0.25, rag.ModeExtractive),
	)

	return NewRouter(&Deps{
		Config: cfg,
		Engine: engine,
		Store:  store,
	})
}

func TestRouter_Routes(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	router := testRouter(t, ctrl)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"health", http.MethodGet, "/health", "", http.StatusOK},
		{"ask", http.MethodPost, "/ask", `{"question": "indexed"}`, http.StatusOK},
		{"admin stats", http.MethodGet, "/admin/stats", "", http.StatusOK},
		{"admin collection reset", http.MethodPost, "/admin/collection/reset", "", http.StatusOK},
		{"admin delete chat", http.MethodDelete, "/admin/chats/c1", "", http.StatusOK},
		{"unknown route", http.MethodGet, "/nope", "", http.StatusNotFound},
		{"wrong method", http.MethodDelete, "/ask", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req *http.Request
			if tt.body != "" {
				req = httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			} else {
				req = httptest.NewRequest(tt.method, tt.path, nil)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("%s %s = %d, want %d: %s", tt.method, tt.path, rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	router := testRouter(t, ctrl)

	req := httptest.NewRequest(http.MethodOptions, "/ask", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "DELETE") {
		t.Errorf("Access-Control-Allow-Methods = %q", got)
	}
}
