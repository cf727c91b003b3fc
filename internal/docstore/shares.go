package docstore

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Share grants public access to a document via an opaque token.
type Share struct {
	ID         string     `json:"id"`
	DocumentID string     `json:"document_id"`
	Token      string     `json:"share_token"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// CreateShare issues (or rotates) the share token for a document and
// marks the document public. expiresAt nil means no expiration.
func (s *Store) CreateShare(ctx context.Context, documentID string, expiresAt *time.Time) (*Share, error) {
	if _, err := s.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}

	token, err := newShareToken()
	if err != nil {
		return nil, err
	}
	share := &Share{
		ID:         uuid.New().String(),
		DocumentID: documentID,
		Token:      token,
		CreatedAt:  time.Now().UTC(),
		ExpiresAt:  expiresAt,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var expires any
	if expiresAt != nil {
		expires = formatTime(expiresAt.UTC())
	}
	// One share per document: rotating replaces the old token.
	if _, err := tx.ExecContext(ctx, `DELETE FROM public_shares WHERE document_id = ?`, documentID); err != nil {
		return nil, fmt.Errorf("removing old share: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO public_shares (id, document_id, share_token, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)`,
		share.ID, share.DocumentID, share.Token, formatTime(share.CreatedAt), expires); err != nil {
		return nil, fmt.Errorf("inserting share: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE documents SET is_public = 1, updated_at = ? WHERE id = ?`,
		formatTime(time.Now().UTC()), documentID); err != nil {
		return nil, fmt.Errorf("marking document public: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing share: %w", err)
	}
	return share, nil
}

// GetShareByToken resolves a token to its share, rejecting expired
// tokens with ErrShareNotFound.
func (s *Store) GetShareByToken(ctx context.Context, token string) (*Share, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, share_token, created_at, expires_at
		FROM public_shares WHERE share_token = ?`, token)

	var share Share
	var created string
	var expires sql.NullString
	err := row.Scan(&share.ID, &share.DocumentID, &share.Token, &created, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrShareNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning share: %w", err)
	}
	share.CreatedAt = parseTime(created)
	if expires.Valid {
		t := parseTime(expires.String)
		share.ExpiresAt = &t
		if time.Now().UTC().After(t) {
			return nil, ErrShareNotFound
		}
	}
	return &share, nil
}

// RevokeShare deletes the share a token points at and flips the
// document back to private. Unknown tokens yield ErrShareNotFound;
// expired tokens can still be revoked.
func (s *Store) RevokeShare(ctx context.Context, token string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var documentID string
	err = tx.QueryRowContext(ctx, `
		SELECT document_id FROM public_shares WHERE share_token = ?`, token).Scan(&documentID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrShareNotFound
	}
	if err != nil {
		return fmt.Errorf("looking up share: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM public_shares WHERE share_token = ?`, token); err != nil {
		return fmt.Errorf("deleting share: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE documents SET is_public = 0, updated_at = ? WHERE id = ?`,
		formatTime(time.Now().UTC()), documentID); err != nil {
		return fmt.Errorf("marking document private: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing revocation: %w", err)
	}
	return nil
}

// newShareToken returns a 32-byte URL-safe random token.
func newShareToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating share token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
