// Package store persists chunk embeddings and serves vector similarity
// search. Two implementations exist: a Qdrant-backed store for
// production and an in-memory brute-force store for tests and small
// local corpora.
package store

import "context"

// Chunk is the persisted unit of retrieval: a text segment with its
// exact source position and embedding vector. Chunks are written once
// during indexing and never mutated.
type Chunk struct {
	ID         string
	DocumentID string
	Index      int
	Content    string
	StartChar  int
	EndChar    int
	Page       int // 0 when unknown
	Embedding  []float32
}

// ScoredChunk pairs a chunk with its cosine similarity to a query.
type ScoredChunk struct {
	Chunk *Chunk
	Score float64
}

// Filter restricts a search to chunks of specific documents.
// A nil AllowedDocuments slice means no restriction.
type Filter struct {
	AllowedDocuments []string
}

// ChunkStore is the persistence contract shared by the Qdrant and
// in-memory backends.
//
// ReplaceChunks must be atomic per document: after it returns, readers
// see either the document's previous chunk set or the complete new one,
// never a mixture. Search is read-only and safe to call concurrently
// with writes for other documents.
type ChunkStore interface {
	// Init validates the store against the configured embedding
	// dimension. It must be called once before any write.
	Init(ctx context.Context, dimension int) error

	// ReplaceChunks atomically swaps the chunk set of one document.
	ReplaceChunks(ctx context.Context, documentID string, chunks []*Chunk) error

	// DeleteDocument removes all chunks of a document.
	DeleteDocument(ctx context.Context, documentID string) error

	// Search returns up to limit chunks by descending cosine
	// similarity to the query vector, restricted by the filter.
	// An empty store yields an empty result, not an error.
	Search(ctx context.Context, vector []float32, limit int, filter Filter) ([]*ScoredChunk, error)

	// Count reports the number of stored chunks.
	Count(ctx context.Context) (int, error)
}
