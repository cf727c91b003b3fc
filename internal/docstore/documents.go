package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status tracks a document through the indexing pipeline. A document is
// searchable if and only if its status is StatusIndexed; this gate is
// what makes chunk visibility all-or-nothing for readers.
type Status string

const (
	StatusPending Status = "pending"
	StatusIndexed Status = "indexed"
	StatusFailed  Status = "indexing_failed"
)

// Document is an ingested document record. Content is the extracted
// full text; the pipeline treats it as immutable once set. Metadata
// carries free-form processing details such as extraction method and
// OCR confidence.
type Document struct {
	ID         string         `json:"id"`
	Filename   string         `json:"filename"`
	Content    string         `json:"content,omitempty"`
	FileSize   int64          `json:"file_size"`
	Public     bool           `json:"is_public"`
	Status     Status         `json:"status"`
	ChunkCount int            `json:"chunk_count"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// DocumentRef is the slim projection the retriever needs for scope
// resolution and tie-breaking.
type DocumentRef struct {
	ID        string
	CreatedAt time.Time
}

// CreateDocument inserts a new document in pending status.
func (s *Store) CreateDocument(ctx context.Context, doc *Document) error {
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = StatusPending
	}
	meta, err := json.Marshal(orEmptyMeta(doc.Metadata))
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, filename, content, file_size, is_public, status, chunk_count, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.Content, doc.FileSize, boolToInt(doc.Public),
		string(doc.Status), doc.ChunkCount, string(meta),
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	return nil
}

// GetDocument loads a document by id, including its content.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, filename, content, file_size, is_public, status, chunk_count, metadata, created_at, updated_at
		FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// ListDocuments returns documents newest first, without content.
// publicOnly restricts the listing to publicly shared documents.
func (s *Store) ListDocuments(ctx context.Context, publicOnly bool, limit, offset int) ([]*Document, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, filename, '', file_size, is_public, status, chunk_count, metadata, created_at, updated_at
		FROM documents`
	if publicOnly {
		query += ` WHERE is_public = 1`
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document record. Chunk removal from the
// vector store is the caller's responsibility.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// SetDocumentStatus records the indexing outcome for a document.
func (s *Store) SetDocumentStatus(ctx context.Context, id string, status Status, chunkCount int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET status = ?, chunk_count = ?, updated_at = ? WHERE id = ?`,
		string(status), chunkCount, formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("updating document status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// SetDocumentPublic flips the public visibility flag.
func (s *Store) SetDocumentPublic(ctx context.Context, id string, public bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET is_public = ?, updated_at = ? WHERE id = ?`,
		boolToInt(public), formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("updating document visibility: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// IndexedDocuments resolves a retrieval scope to the set of searchable
// documents. ids nil means all documents; publicOnly further restricts
// to publicly shared ones. Only fully indexed documents are returned.
func (s *Store) IndexedDocuments(ctx context.Context, publicOnly bool, ids []string) ([]DocumentRef, error) {
	query := `SELECT id, created_at FROM documents WHERE status = ?`
	args := []any{string(StatusIndexed)}
	if publicOnly {
		query += ` AND is_public = 1`
	}
	if ids != nil {
		if len(ids) == 0 {
			return nil, nil
		}
		query += ` AND id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("resolving indexed documents: %w", err)
	}
	defer rows.Close()

	var refs []DocumentRef
	for rows.Next() {
		var ref DocumentRef
		var created string
		if err := rows.Scan(&ref.ID, &created); err != nil {
			return nil, fmt.Errorf("scanning document ref: %w", err)
		}
		ref.CreatedAt = parseTime(created)
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var public int
	var status, meta, created, updated string
	err := row.Scan(&doc.ID, &doc.Filename, &doc.Content, &doc.FileSize,
		&public, &status, &doc.ChunkCount, &meta, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	doc.Public = public != 0
	doc.Status = Status(status)
	doc.CreatedAt = parseTime(created)
	doc.UpdatedAt = parseTime(updated)
	if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
		doc.Metadata = nil
	}
	return &doc, nil
}

func orEmptyMeta(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// timeLayout is fixed width so the TEXT columns order correctly under
// lexicographic ORDER BY (RFC3339Nano trims trailing zeros and would
// not).
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
