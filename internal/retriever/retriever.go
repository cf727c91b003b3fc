// Package retriever answers similarity queries over indexed chunks.
// It resolves a search scope to the set of fully indexed documents
// before touching the vector store, which keeps half-indexed documents
// invisible to readers.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/docsage/docsage/internal/docstore"
	"github.com/docsage/docsage/internal/store"
)

// QueryEmbedder embeds a single query string.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Scope restricts which documents a search may draw evidence from.
// The zero value searches every indexed document.
type Scope struct {
	// DocumentIDs limits the search to specific documents. nil means
	// no restriction; an empty non-nil slice matches nothing.
	DocumentIDs []string
	// PublicOnly limits the search to publicly shared documents.
	PublicOnly bool
}

// DocumentResolver maps a scope to the searchable document set.
type DocumentResolver interface {
	IndexedDocuments(ctx context.Context, publicOnly bool, ids []string) ([]docstore.DocumentRef, error)
}

// Evidence is one retrieved chunk with its similarity score and final
// rank within the result set.
type Evidence struct {
	Chunk *store.Chunk
	Score float64
	Rank  int
}

// Retriever performs scoped vector searches.
type Retriever struct {
	embedder QueryEmbedder
	docs     DocumentResolver
	chunks   store.ChunkStore
	logger   *slog.Logger
}

// New creates a retriever.
func New(embedder QueryEmbedder, docs DocumentResolver, chunks store.ChunkStore, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embedder: embedder, docs: docs, chunks: chunks, logger: logger}
}

// Search embeds the query and returns up to k chunks from documents in
// scope, ordered by descending similarity. Equal scores break ties by
// lower chunk index, then earlier document creation time.
func (r *Retriever) Search(ctx context.Context, query string, k int, scope Scope) ([]Evidence, error) {
	if query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	refs, err := r.docs.IndexedDocuments(ctx, scope.PublicOnly, scope.DocumentIDs)
	if err != nil {
		return nil, fmt.Errorf("resolving scope: %w", err)
	}
	if len(refs) == 0 {
		return nil, nil
	}

	createdAt := make(map[string]time.Time, len(refs))
	allowed := make([]string, len(refs))
	for i, ref := range refs {
		allowed[i] = ref.ID
		createdAt[ref.ID] = ref.CreatedAt
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := r.chunks.Search(ctx, vector, k, store.Filter{AllowedDocuments: allowed})
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Chunk.Index != b.Chunk.Index {
			return a.Chunk.Index < b.Chunk.Index
		}
		return createdAt[a.Chunk.DocumentID].Before(createdAt[b.Chunk.DocumentID])
	})

	evidence := make([]Evidence, len(hits))
	for i, hit := range hits {
		evidence[i] = Evidence{Chunk: hit.Chunk, Score: hit.Score, Rank: i + 1}
	}
	r.logger.Debug("retrieved evidence", "query_len", len(query), "k", k, "results", len(evidence))
	return evidence, nil
}
