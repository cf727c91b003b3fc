package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is a brute-force cosine similarity store. Chunk sets are
// swapped per document under a single lock, which gives ReplaceChunks
// its all-or-nothing visibility for free.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	docs      map[string][]*Chunk
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]*Chunk)}
}

// Init fixes the vector dimension for all subsequent writes.
func (s *MemoryStore) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrDimensionMismatch, dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	return nil
}

// ReplaceChunks swaps the chunk set of one document atomically.
func (s *MemoryStore) ReplaceChunks(_ context.Context, documentID string, chunks []*Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		return fmt.Errorf("store not initialized")
	}
	for i, c := range chunks {
		if len(c.Embedding) != s.dimension {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(c.Embedding), s.dimension)
		}
	}
	copied := make([]*Chunk, len(chunks))
	copy(copied, chunks)
	s.docs[documentID] = copied
	return nil
}

// DeleteDocument removes all chunks of a document.
func (s *MemoryStore) DeleteDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, documentID)
	return nil
}

// Search scans every candidate chunk and returns the top matches by
// cosine similarity. Ties are broken by chunk index, then by document
// position in the allow-list (callers pass documents oldest first),
// then by document ID, so truncation to limit cuts the same way the
// retriever orders its final results.
func (s *MemoryStore) Search(_ context.Context, vector []float32, limit int, filter Filter) ([]*ScoredChunk, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dimension > 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), s.dimension)
	}

	var allowed map[string]int
	if filter.AllowedDocuments != nil {
		allowed = make(map[string]int, len(filter.AllowedDocuments))
		for rank, id := range filter.AllowedDocuments {
			if _, ok := allowed[id]; !ok {
				allowed[id] = rank
			}
		}
	}

	var scored []*ScoredChunk
	for docID, chunks := range s.docs {
		if allowed != nil {
			if _, ok := allowed[docID]; !ok {
				continue
			}
		}
		for _, c := range chunks {
			scored = append(scored, &ScoredChunk{
				Chunk: c,
				Score: cosineSimilarity(vector, c.Embedding),
			})
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		ci, cj := scored[i].Chunk, scored[j].Chunk
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if ci.Index != cj.Index {
			return ci.Index < cj.Index
		}
		if allowed != nil && ci.DocumentID != cj.DocumentID {
			return allowed[ci.DocumentID] < allowed[cj.DocumentID]
		}
		return ci.DocumentID < cj.DocumentID
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// Count reports the total number of stored chunks.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, chunks := range s.docs {
		total += len(chunks)
	}
	return total, nil
}

// cosineSimilarity returns the cosine of the angle between two vectors,
// 0 when either vector has zero magnitude.
func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
