// Package indexer orchestrates the ingestion pipeline: chunk a
// document's extracted text, embed the chunks, and publish them to the
// vector store. Chunks only become searchable once the owning document
// is marked indexed, so a failed run never exposes partial results.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/docsage/docsage/internal/chunker"
	"github.com/docsage/docsage/internal/docstore"
	"github.com/docsage/docsage/internal/extract"
	"github.com/docsage/docsage/internal/store"
)

// ErrIndexingInProgress is returned when a document is already being
// indexed by another call.
var ErrIndexingInProgress = errors.New("indexing already in progress for document")

// chunkNamespace seeds deterministic chunk IDs so re-indexing the same
// document with the same model yields the same point IDs.
var chunkNamespace = uuid.MustParse("b1f8e2c4-7a5d-4e39-9c06-d41a83f2b570")

// Embedder produces embedding vectors for chunk content.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Result contains statistics about indexing a single document.
type Result struct {
	DocumentID string
	Chunks     int
	Duration   time.Duration
}

// FailedDoc records a document that could not be indexed during a
// batch run.
type FailedDoc struct {
	DocumentID string
	Reason     string
}

// BatchResult contains statistics about a batch indexing operation.
type BatchResult struct {
	TotalDocs      int
	TotalChunks    int
	SuccessfulDocs int
	FailedDocs     []FailedDoc
	Duration       time.Duration
}

// Indexer runs the chunk-embed-store pipeline for documents held in
// the document store.
type Indexer struct {
	docs     *docstore.Store
	chunker  *chunker.Chunker
	embedder Embedder
	chunks   store.ChunkStore
	logger   *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New creates an indexer wired to the given stores and embedder.
func New(docs *docstore.Store, ck *chunker.Chunker, embedder Embedder, chunks store.ChunkStore, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		docs:     docs,
		chunker:  ck,
		embedder: embedder,
		chunks:   chunks,
		logger:   logger,
		inFlight: make(map[string]struct{}),
	}
}

// Index runs the full pipeline for one document. Concurrent calls for
// the same document fail fast with ErrIndexingInProgress; the caller
// already has a run producing the outcome it wants.
func (ix *Indexer) Index(ctx context.Context, documentID string) (*Result, error) {
	if err := ix.acquire(documentID); err != nil {
		return nil, err
	}
	defer ix.release(documentID)

	start := time.Now()
	doc, err := ix.docs.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("loading document: %w", err)
	}

	count, err := ix.indexContent(ctx, doc)
	if err != nil {
		if serr := ix.docs.SetDocumentStatus(ctx, documentID, docstore.StatusFailed, 0); serr != nil {
			ix.logger.Error("recording failed status", "document", documentID, "error", serr)
		}
		return nil, err
	}

	if err := ix.docs.SetDocumentStatus(ctx, documentID, docstore.StatusIndexed, count); err != nil {
		return nil, fmt.Errorf("marking document indexed: %w", err)
	}

	result := &Result{DocumentID: documentID, Chunks: count, Duration: time.Since(start)}
	ix.logger.Info("indexed document", "document", documentID, "chunks", count, "duration", result.Duration)
	return result, nil
}

func (ix *Indexer) indexContent(ctx context.Context, doc *docstore.Document) (int, error) {
	pieces := ix.chunker.Split(doc.Content)
	if len(pieces) == 0 {
		if err := ix.chunks.ReplaceChunks(ctx, doc.ID, nil); err != nil {
			return 0, fmt.Errorf("clearing chunks: %w", err)
		}
		return 0, nil
	}

	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Text
	}
	embeddings, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding chunks: %w", err)
	}
	if len(embeddings) != len(pieces) {
		return 0, fmt.Errorf("embedding count mismatch: got %d for %d chunks", len(embeddings), len(pieces))
	}

	pages := extract.NewPageMap(doc.Content)
	chunks := make([]*store.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = &store.Chunk{
			ID:         ChunkID(doc.ID, p.Index, ix.embedder.Model()),
			DocumentID: doc.ID,
			Index:      p.Index,
			Content:    p.Text,
			StartChar:  p.Start,
			EndChar:    p.End,
			Page:       pages.PageFor(p.Start),
			Embedding:  embeddings[i],
		}
	}

	if err := ix.chunks.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		return 0, fmt.Errorf("storing chunks: %w", err)
	}
	return len(chunks), nil
}

// IndexAll indexes the given documents with bounded concurrency.
// Per-document failures are collected rather than aborting the batch.
func (ix *Indexer) IndexAll(ctx context.Context, documentIDs []string, concurrency int) (*BatchResult, error) {
	if concurrency <= 0 {
		concurrency = 4
	}
	start := time.Now()
	result := &BatchResult{TotalDocs: len(documentIDs)}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, id := range documentIDs {
		g.Go(func() error {
			res, err := ix.Index(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				ix.logger.Warn("failed to index document", "document", id, "error", err)
				result.FailedDocs = append(result.FailedDocs, FailedDoc{DocumentID: id, Reason: err.Error()})
				return nil
			}
			result.SuccessfulDocs++
			result.TotalChunks += res.Chunks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	ix.logger.Info("batch indexing complete",
		"successful", result.SuccessfulDocs,
		"failed", len(result.FailedDocs),
		"chunks", result.TotalChunks,
		"duration", result.Duration,
	)
	return result, nil
}

// ChunkID derives a stable chunk identifier from the document, chunk
// position, and embedding model.
func ChunkID(documentID string, index int, model string) string {
	name := fmt.Sprintf("%s/%d/%s", documentID, index, model)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}

func (ix *Indexer) acquire(documentID string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, busy := ix.inFlight[documentID]; busy {
		return fmt.Errorf("%w: %s", ErrIndexingInProgress, documentID)
	}
	ix.inFlight[documentID] = struct{}{}
	return nil
}

func (ix *Indexer) release(documentID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.inFlight, documentID)
}
