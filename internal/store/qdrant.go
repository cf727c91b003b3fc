package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

// DefaultCollection is the Qdrant collection holding all chunks.
const DefaultCollection = "chunks"

const upsertBatchSize = 100

// QdrantStore implements ChunkStore on a Qdrant collection.
//
// Qdrant offers no multi-point transaction. ReplaceChunks keeps
// concurrent readers consistent by upserting the new points in place
// (chunk IDs are deterministic) and pruning leftovers last, so a
// document never appears empty mid-replace. First-time visibility is
// additionally gated by the record-store status: the retriever only
// searches documents already marked "indexed".
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// NewQdrantStore connects to Qdrant and verifies health with retry,
// failing fast when the server is unreachable.
func NewQdrantStore(host string, port int, collection string) (*QdrantStore, error) {
	if collection == "" {
		collection = DefaultCollection
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	s := &QdrantStore{client: client, collection: collection}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	ctx := context.Background()
	if err := backoff.Retry(func() error { return s.Health(ctx) }, b); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}
	return s, nil
}

// Health performs a single health check.
func (s *QdrantStore) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// Init ensures the collection exists with the configured dimension and
// cosine distance, and rejects a pre-existing collection whose vector
// size differs. Safe to call multiple times.
func (s *QdrantStore) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrDimensionMismatch, dimension)
	}
	s.dimension = dimension

	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, name := range collections {
		if name != s.collection {
			continue
		}
		info, err := s.client.GetCollectionInfo(ctx, s.collection)
		if err != nil {
			return fmt.Errorf("get collection: %w", err)
		}
		params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
		if params != nil && int(params.GetSize()) != dimension {
			return fmt.Errorf("%w: collection %q holds %d-dimension vectors, embedding model produces %d",
				ErrDimensionMismatch, s.collection, params.GetSize(), dimension)
		}
		if err := s.ensurePayloadIndexes(ctx); err != nil {
			return err
		}
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	return s.ensurePayloadIndexes(ctx)
}

// ensurePayloadIndexes indexes the document_id field used by every
// scoped search filter.
func (s *QdrantStore) ensurePayloadIndexes(ctx context.Context) error {
	_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.collection,
		FieldName:      "document_id",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("create payload index: %w", err)
	}
	return nil
}

// ReplaceChunks writes the new point set before touching the old one.
// Chunk IDs are deterministic per (document, index, model), so
// re-indexed content overwrites its previous points in place; only
// points absent from the new set are pruned afterwards. A concurrent
// reader therefore sees the old set or the new set, never an empty or
// partial document.
func (s *QdrantStore) ReplaceChunks(ctx context.Context, documentID string, chunks []*Chunk) error {
	for i, c := range chunks {
		if len(c.Embedding) != s.dimension {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(c.Embedding), s.dimension)
		}
	}

	if len(chunks) == 0 {
		return s.DeleteDocument(ctx, documentID)
	}

	for i := 0; i < len(chunks); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(chunks))
		batch := chunks[i:end]

		points := make([]*qdrant.PointStruct, len(batch))
		for j, c := range batch {
			points[j] = &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(c.ID),
				Vectors: qdrant.NewVectors(c.Embedding...),
				Payload: qdrant.NewValueMap(map[string]any{
					"document_id": c.DocumentID,
					"chunk_index": c.Index,
					"content":     c.Content,
					"start_char":  c.StartChar,
					"end_char":    c.EndChar,
					"page_number": c.Page,
				}),
			}
		}
		if err := s.upsertWithRetry(ctx, points); err != nil {
			return fmt.Errorf("upsert batch %d-%d: %w", i, end, err)
		}
	}

	keep := make([]*qdrant.PointId, len(chunks))
	for i, c := range chunks {
		keep[i] = qdrant.NewIDUUID(c.ID)
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("document_id", documentID),
			},
			MustNot: []*qdrant.Condition{
				qdrant.NewHasID(keep...),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("prune stale chunks: %w", err)
	}
	return nil
}

func (s *QdrantStore) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	operation := func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points,
		})
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

// DeleteDocument removes every point belonging to a document.
func (s *QdrantStore) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("document_id", documentID),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("delete document chunks: %w", err)
	}
	return nil
}

// Search runs a vector similarity query restricted to the allowed
// documents.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, limit int, filter Filter) ([]*ScoredChunk, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	if s.dimension > 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), s.dimension)
	}

	var qf *qdrant.Filter
	if filter.AllowedDocuments != nil {
		if len(filter.AllowedDocuments) == 0 {
			return nil, nil
		}
		qf = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatchKeywords("document_id", filter.AllowedDocuments...),
			},
		}
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         qf,
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	scored := make([]*ScoredChunk, 0, len(results))
	for _, result := range results {
		payload := result.Payload
		scored = append(scored, &ScoredChunk{
			Chunk: &Chunk{
				ID:         result.Id.GetUuid(),
				DocumentID: payload["document_id"].GetStringValue(),
				Index:      int(payload["chunk_index"].GetIntegerValue()),
				Content:    payload["content"].GetStringValue(),
				StartChar:  int(payload["start_char"].GetIntegerValue()),
				EndChar:    int(payload["end_char"].GetIntegerValue()),
				Page:       int(payload["page_number"].GetIntegerValue()),
			},
			Score: float64(result.Score),
		})
	}
	return scored, nil
}

// Count reports the number of points in the collection.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("get collection: %w", err)
	}
	return int(info.GetPointsCount()), nil
}

// Close closes the underlying client connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
