package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SourceRef records one piece of evidence an answer was grounded on.
type SourceRef struct {
	DocumentID string  `json:"document_id"`
	ChunkID    string  `json:"chunk_id"`
	ChunkIndex int     `json:"chunk_index"`
	Relevance  float64 `json:"relevance"`
	Preview    string  `json:"preview"`
	Page       int     `json:"page_number,omitempty"`
}

// Conversation is one answered question. Turns are immutable after
// creation.
type Conversation struct {
	ID         string      `json:"id"`
	SessionID  string      `json:"session_id"`
	UserMsg    string      `json:"user_message"`
	AIResponse string      `json:"ai_response"`
	Mode       string      `json:"mode"`
	Sources    []SourceRef `json:"sources_used"`
	Confidence float64     `json:"confidence_score"`
	CreatedAt  time.Time   `json:"created_at"`
}

// SaveConversation persists a turn.
func (s *Store) SaveConversation(ctx context.Context, conv *Conversation) error {
	conv.CreatedAt = time.Now().UTC()
	sources := conv.Sources
	if sources == nil {
		sources = []SourceRef{}
	}
	encoded, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("marshaling sources: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, session_id, user_message, ai_response, mode, sources_used, confidence_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.SessionID, conv.UserMsg, conv.AIResponse, conv.Mode,
		string(encoded), conv.Confidence, formatTime(conv.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}
	return nil
}

// History returns a session's turns, newest first.
func (s *Store) History(ctx context.Context, sessionID string, limit int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, user_message, ai_response, mode, sources_used, confidence_score, created_at
		FROM conversations WHERE session_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var history []*Conversation
	for rows.Next() {
		var conv Conversation
		var sources, created string
		if err := rows.Scan(&conv.ID, &conv.SessionID, &conv.UserMsg, &conv.AIResponse,
			&conv.Mode, &sources, &conv.Confidence, &created); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		if err := json.Unmarshal([]byte(sources), &conv.Sources); err != nil {
			conv.Sources = nil
		}
		conv.CreatedAt = parseTime(created)
		history = append(history, &conv)
	}
	return history, rows.Err()
}
