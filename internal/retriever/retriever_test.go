package retriever

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsage/docsage/internal/docstore"
	"github.com/docsage/docsage/internal/store"
)

type stubEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	return s.vector, s.err
}

type stubResolver struct {
	refs []docstore.DocumentRef
	err  error

	gotPublicOnly bool
	gotIDs        []string
}

func (s *stubResolver) IndexedDocuments(ctx context.Context, publicOnly bool, ids []string) ([]docstore.DocumentRef, error) {
	s.gotPublicOnly = publicOnly
	s.gotIDs = ids
	if s.err != nil {
		return nil, s.err
	}
	if ids == nil {
		return s.refs, nil
	}
	allowed := make(map[string]bool, len(ids))
	for _, id := range ids {
		allowed[id] = true
	}
	var out []docstore.DocumentRef
	for _, ref := range s.refs {
		if allowed[ref.ID] {
			out = append(out, ref)
		}
	}
	return out, nil
}

func seedChunks(t *testing.T, s *store.MemoryStore, docID string, vectors ...[]float32) {
	t.Helper()
	chunks := make([]*store.Chunk, len(vectors))
	for i, v := range vectors {
		chunks[i] = &store.Chunk{
			ID:         docID + "-" + string(rune('a'+i)),
			DocumentID: docID,
			Index:      i,
			Content:    "chunk content",
			Embedding:  v,
		}
	}
	require.NoError(t, s.ReplaceChunks(context.Background(), docID, chunks))
}

func newTestRetriever(t *testing.T, resolver *stubResolver) (*Retriever, *store.MemoryStore, *stubEmbedder) {
	t.Helper()
	chunks := store.NewMemoryStore()
	require.NoError(t, chunks.Init(context.Background(), 3))
	embedder := &stubEmbedder{vector: []float32{1, 0, 0}}
	return New(embedder, resolver, chunks, nil), chunks, embedder
}

func TestSearch_RankedByScore(t *testing.T) {
	ctx := context.Background()
	resolver := &stubResolver{refs: []docstore.DocumentRef{{ID: "doc1", CreatedAt: time.Now()}}}
	r, chunks, _ := newTestRetriever(t, resolver)

	seedChunks(t, chunks, "doc1",
		[]float32{0, 1, 0},      // orthogonal
		[]float32{1, 0, 0},      // exact match
		[]float32{0.7, 0.7, 0},  // partial
	)

	evidence, err := r.Search(ctx, "what is alpha", 3, Scope{})
	require.NoError(t, err)
	require.Len(t, evidence, 3)

	assert.Equal(t, 1, evidence[0].Chunk.Index, "exact match first")
	assert.Equal(t, 2, evidence[1].Chunk.Index)
	assert.Equal(t, 0, evidence[2].Chunk.Index)
	assert.InDelta(t, 1.0, evidence[0].Score, 1e-6)
	for i, ev := range evidence {
		assert.Equal(t, i+1, ev.Rank)
	}
}

func TestSearch_InputValidation(t *testing.T) {
	r, _, embedder := newTestRetriever(t, &stubResolver{})

	_, err := r.Search(context.Background(), "", 5, Scope{})
	assert.Error(t, err)

	_, err = r.Search(context.Background(), "query", 0, Scope{})
	assert.Error(t, err)

	assert.Zero(t, embedder.calls, "invalid input must not reach the provider")
}

func TestSearch_EmptyScopeSkipsEmbedding(t *testing.T) {
	// No indexed documents: the query is never embedded.
	resolver := &stubResolver{}
	r, _, embedder := newTestRetriever(t, resolver)

	evidence, err := r.Search(context.Background(), "query", 5, Scope{})
	require.NoError(t, err)
	assert.Empty(t, evidence)
	assert.Zero(t, embedder.calls)
}

func TestSearch_ScopeRestrictsDocuments(t *testing.T) {
	ctx := context.Background()
	resolver := &stubResolver{refs: []docstore.DocumentRef{
		{ID: "doc1", CreatedAt: time.Now()},
		{ID: "doc2", CreatedAt: time.Now()},
	}}
	r, chunks, _ := newTestRetriever(t, resolver)

	seedChunks(t, chunks, "doc1", []float32{1, 0, 0})
	seedChunks(t, chunks, "doc2", []float32{1, 0, 0})

	evidence, err := r.Search(ctx, "query", 10, Scope{DocumentIDs: []string{"doc2"}})
	require.NoError(t, err)
	require.Len(t, evidence, 1)
	assert.Equal(t, "doc2", evidence[0].Chunk.DocumentID)

	_, err = r.Search(ctx, "query", 10, Scope{PublicOnly: true})
	require.NoError(t, err)
	assert.True(t, resolver.gotPublicOnly)
}

func TestSearch_TieBreakDeterministic(t *testing.T) {
	ctx := context.Background()
	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	resolver := &stubResolver{refs: []docstore.DocumentRef{
		{ID: "newer", CreatedAt: newer},
		{ID: "older", CreatedAt: older},
	}}
	r, chunks, _ := newTestRetriever(t, resolver)

	// Identical vectors, so every score ties.
	seedChunks(t, chunks, "newer", []float32{1, 0, 0}, []float32{1, 0, 0})
	seedChunks(t, chunks, "older", []float32{1, 0, 0}, []float32{1, 0, 0})

	for range 10 {
		evidence, err := r.Search(ctx, "query", 4, Scope{})
		require.NoError(t, err)
		require.Len(t, evidence, 4)

		// Lower chunk index wins, then earlier document creation.
		assert.Equal(t, 0, evidence[0].Chunk.Index)
		assert.Equal(t, "older", evidence[0].Chunk.DocumentID)
		assert.Equal(t, 0, evidence[1].Chunk.Index)
		assert.Equal(t, "newer", evidence[1].Chunk.DocumentID)
		assert.Equal(t, 1, evidence[2].Chunk.Index)
		assert.Equal(t, "older", evidence[2].Chunk.DocumentID)
	}
}

func TestSearch_EmbedderErrorPropagates(t *testing.T) {
	resolver := &stubResolver{refs: []docstore.DocumentRef{{ID: "doc1"}}}
	r, _, embedder := newTestRetriever(t, resolver)
	embedder.err = errors.New("provider down")

	_, err := r.Search(context.Background(), "query", 5, Scope{})
	assert.Error(t, err)
}

func TestSearch_LimitRespected(t *testing.T) {
	ctx := context.Background()
	resolver := &stubResolver{refs: []docstore.DocumentRef{{ID: "doc1", CreatedAt: time.Now()}}}
	r, chunks, _ := newTestRetriever(t, resolver)

	seedChunks(t, chunks, "doc1",
		[]float32{1, 0, 0}, []float32{0.9, 0.1, 0}, []float32{0.8, 0.2, 0})

	evidence, err := r.Search(ctx, "query", 2, Scope{})
	require.NoError(t, err)
	assert.Len(t, evidence, 2)
}
