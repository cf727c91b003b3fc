package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsage/docsage/internal/answer"
	"github.com/docsage/docsage/internal/chunker"
	"github.com/docsage/docsage/internal/docstore"
	"github.com/docsage/docsage/internal/generation"
	"github.com/docsage/docsage/internal/indexer"
	"github.com/docsage/docsage/internal/retriever"
	"github.com/docsage/docsage/internal/store"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, float32(i), 0}
	}
	return vectors, nil
}

func (stubEmbedder) Model() string { return "test-model" }

type stubQueryEmbedder struct{}

func (stubQueryEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

type stubAnswerer struct {
	ans *answer.Answer
	err error
}

func (s *stubAnswerer) Answer(ctx context.Context, query string, mode answer.Mode, maxSources int, scope retriever.Scope) (*answer.Answer, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.ans, nil
}

type testEnv struct {
	server *Server
	router *gin.Engine
	docs   *docstore.Store
	chunks *store.MemoryStore
}

func newTestEnv(t *testing.T, answerer Answerer) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	docs, err := docstore.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { docs.Close() })

	chunks := store.NewMemoryStore()
	require.NoError(t, chunks.Init(context.Background(), 3))

	ck, err := chunker.New(20, 5)
	require.NoError(t, err)
	ix := indexer.New(docs, ck, stubEmbedder{}, chunks, nil)
	ret := retriever.New(stubQueryEmbedder{}, docs, chunks, nil)

	srv := New(Config{
		Docs:       docs,
		Chunks:     chunks,
		Indexer:    ix,
		Searcher:   ret,
		Answerer:   answerer,
		MaxSources: 5,
	})
	return &testEnv{server: srv, router: srv.Router(), docs: docs, chunks: chunks}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestUploadDocument_IndexesInBackground(t *testing.T) {
	env := newTestEnv(t, &stubAnswerer{})

	rec := env.do(t, http.MethodPost, "/documents", gin.H{
		"filename": "report.txt",
		"content":  "Alpha beta gamma. Delta epsilon zeta.",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	body := decode(t, rec)
	docID := body["id"].(string)
	assert.Equal(t, "pending", body["status"])
	assert.Empty(t, body["content"], "upload response omits full text")

	require.Eventually(t, func() bool {
		doc, err := env.docs.GetDocument(context.Background(), docID)
		return err == nil && doc.Status == docstore.StatusIndexed
	}, 5*time.Second, 10*time.Millisecond)

	doc, err := env.docs.GetDocument(context.Background(), docID)
	require.NoError(t, err)
	assert.Equal(t, 3, doc.ChunkCount)
}

func TestUploadDocument_Validation(t *testing.T) {
	env := newTestEnv(t, &stubAnswerer{})
	rec := env.do(t, http.MethodPost, "/documents", gin.H{"filename": "no-content.txt"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDocument_NotFound(t *testing.T) {
	env := newTestEnv(t, &stubAnswerer{})
	rec := env.do(t, http.MethodGet, "/documents/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearch_EndToEnd(t *testing.T) {
	env := newTestEnv(t, &stubAnswerer{})
	ctx := context.Background()

	require.NoError(t, env.docs.CreateDocument(ctx, &docstore.Document{
		ID: "doc1", Filename: "a.txt", Content: "Alpha beta gamma. Delta epsilon zeta.",
	}))
	ck, err := chunker.New(20, 5)
	require.NoError(t, err)
	ix := indexer.New(env.docs, ck, stubEmbedder{}, env.chunks, nil)
	_, err = ix.Index(ctx, "doc1")
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/search", gin.H{"query": "What is in the document?", "k": 2})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	results := body["results"].([]any)
	require.Len(t, results, 2)
	first := results[0].(map[string]any)
	assert.Equal(t, "doc1", first["document_id"])
	assert.EqualValues(t, 1, first["rank"])
}

func TestSearch_PendingDocumentInvisible(t *testing.T) {
	env := newTestEnv(t, &stubAnswerer{})
	ctx := context.Background()

	// Chunks exist in the vector store but the document never reached
	// indexed status, so retrieval must not surface them.
	require.NoError(t, env.docs.CreateDocument(ctx, &docstore.Document{
		ID: "doc1", Filename: "a.txt", Content: "text",
	}))
	require.NoError(t, env.chunks.ReplaceChunks(ctx, "doc1", []*store.Chunk{
		{ID: "c1", DocumentID: "doc1", Index: 0, Content: "text", Embedding: []float32{1, 0, 0}},
	}))

	rec := env.do(t, http.MethodPost, "/search", gin.H{"query": "text"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["results"])
}

func TestChat_SavesConversation(t *testing.T) {
	env := newTestEnv(t, &stubAnswerer{ans: &answer.Answer{
		Text: "Grounded answer [S1].",
		Sources: []answer.Source{
			{DocumentID: "doc1", ChunkID: "c1", Relevance: 0.9, Preview: "Alpha"},
		},
		Confidence: 0.8,
		Mode:       answer.ModeChat,
	}})

	rec := env.do(t, http.MethodPost, "/chat", gin.H{
		"message":    "What is alpha?",
		"session_id": "sess-1",
		"mode":       "chat",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "Grounded answer [S1].", body["response"])
	assert.EqualValues(t, 0.8, body["confidence"])

	history, err := env.docs.History(context.Background(), "sess-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "What is alpha?", history[0].UserMsg)
	assert.Equal(t, "chat", history[0].Mode)
	require.Len(t, history[0].Sources, 1)
	assert.Equal(t, "doc1", history[0].Sources[0].DocumentID)
}

func TestChat_InvalidMode(t *testing.T) {
	env := newTestEnv(t, &stubAnswerer{})
	rec := env.do(t, http.MethodPost, "/chat", gin.H{
		"message":    "hello",
		"session_id": "sess-1",
		"mode":       "interpretive-dance",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat_GenerationUnavailable(t *testing.T) {
	env := newTestEnv(t, &stubAnswerer{err: generation.ErrGenerationUnavailable})
	rec := env.do(t, http.MethodPost, "/chat", gin.H{
		"message":    "hello",
		"session_id": "sess-1",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestChatHistory_Empty(t *testing.T) {
	env := newTestEnv(t, &stubAnswerer{})
	rec := env.do(t, http.MethodGet, "/chat/history/nothing", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, decode(t, rec)["history"])
}

func TestDeleteDocument_RemovesChunks(t *testing.T) {
	env := newTestEnv(t, &stubAnswerer{})
	ctx := context.Background()

	require.NoError(t, env.docs.CreateDocument(ctx, &docstore.Document{ID: "doc1", Filename: "a.txt"}))
	require.NoError(t, env.chunks.ReplaceChunks(ctx, "doc1", []*store.Chunk{
		{ID: "c1", DocumentID: "doc1", Index: 0, Content: "text", Embedding: []float32{1, 0, 0}},
	}))

	rec := env.do(t, http.MethodDelete, "/documents/doc1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	n, err := env.chunks.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = env.docs.GetDocument(ctx, "doc1")
	assert.ErrorIs(t, err, docstore.ErrDocumentNotFound)
}

func TestShare_CreateAndResolve(t *testing.T) {
	env := newTestEnv(t, &stubAnswerer{})
	ctx := context.Background()

	require.NoError(t, env.docs.CreateDocument(ctx, &docstore.Document{ID: "doc1", Filename: "a.txt", Content: "text"}))

	rec := env.do(t, http.MethodPost, "/documents/doc1/share", gin.H{})
	require.Equal(t, http.StatusCreated, rec.Code)
	token := decode(t, rec)["share_token"].(string)
	require.NotEmpty(t, token)

	rec = env.do(t, http.MethodGet, "/shared/"+token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "doc1", decode(t, rec)["id"])

	rec = env.do(t, http.MethodGet, "/shared/bogus-token", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShare_Revoke(t *testing.T) {
	env := newTestEnv(t, &stubAnswerer{})
	ctx := context.Background()

	require.NoError(t, env.docs.CreateDocument(ctx, &docstore.Document{ID: "doc1", Filename: "a.txt", Content: "text"}))

	rec := env.do(t, http.MethodPost, "/documents/doc1/share", gin.H{})
	require.Equal(t, http.StatusCreated, rec.Code)
	token := decode(t, rec)["share_token"].(string)

	rec = env.do(t, http.MethodDelete, "/shared/"+token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The token is dead and the document is private again.
	rec = env.do(t, http.MethodGet, "/shared/"+token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	doc, err := env.docs.GetDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.False(t, doc.Public)

	rec = env.do(t, http.MethodDelete, "/shared/"+token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, &stubAnswerer{})
	rec := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}
