package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docsage/docsage/internal/answer"
	"github.com/docsage/docsage/internal/docstore"
	"github.com/docsage/docsage/internal/embedding"
	"github.com/docsage/docsage/internal/generation"
	"github.com/docsage/docsage/internal/indexer"
	"github.com/docsage/docsage/internal/retriever"
)

type uploadRequest struct {
	Filename string         `json:"filename" binding:"required"`
	Content  string         `json:"content" binding:"required"`
	Metadata map[string]any `json:"metadata"`
}

type chatRequest struct {
	Message     string   `json:"message" binding:"required"`
	SessionID   string   `json:"session_id" binding:"required"`
	Mode        string   `json:"mode"`
	MaxSources  int      `json:"max_sources"`
	DocumentIDs []string `json:"document_ids"`
}

type searchRequest struct {
	Query       string   `json:"query" binding:"required"`
	K           int      `json:"k"`
	DocumentIDs []string `json:"document_ids"`
}

type shareRequest struct {
	ExpiresInHours int `json:"expires_in_hours"`
}

func (s *Server) handleHealth(c *gin.Context) {
	count, err := s.chunks.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "reason": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "chunks": count})
}

// handleUploadDocument receives already-extracted text from the file
// handling boundary, records the document, and kicks off indexing in
// the background. The response reports pending status; clients poll
// the document until it flips to indexed or indexing_failed.
func (s *Server) handleUploadDocument(c *gin.Context) {
	var req uploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc := &docstore.Document{
		ID:       uuid.New().String(),
		Filename: req.Filename,
		Content:  req.Content,
		FileSize: int64(len(req.Content)),
		Metadata: req.Metadata,
	}
	if err := s.docs.CreateDocument(c.Request.Context(), doc); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := s.indexer.Index(ctx, doc.ID); err != nil {
			s.logger.Error("background indexing failed", "document", doc.ID, "error", err)
		}
	}()

	doc.Content = ""
	c.JSON(http.StatusAccepted, doc)
}

func (s *Server) handleListDocuments(c *gin.Context) {
	docs, err := s.docs.ListDocuments(c.Request.Context(), c.Query("public") == "true", 100, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if docs == nil {
		docs = []*docstore.Document{}
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (s *Server) handleGetDocument(c *gin.Context) {
	doc, err := s.docs.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	// Chunks go first so a half-failed delete never leaves orphaned
	// vectors behind a missing document record.
	if err := s.chunks.DeleteDocument(ctx, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := s.docs.DeleteDocument(ctx, id); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (s *Server) handleReindexDocument(c *gin.Context) {
	result, err := s.indexer.Index(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleCreateShare(c *gin.Context) {
	var req shareRequest
	_ = c.ShouldBindJSON(&req) // body is optional

	var expires *time.Time
	if req.ExpiresInHours > 0 {
		t := time.Now().UTC().Add(time.Duration(req.ExpiresInHours) * time.Hour)
		expires = &t
	}

	share, err := s.docs.CreateShare(c.Request.Context(), c.Param("id"), expires)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, share)
}

func (s *Server) handleGetShared(c *gin.Context) {
	ctx := c.Request.Context()
	share, err := s.docs.GetShareByToken(ctx, c.Param("token"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	doc, err := s.docs.GetDocument(ctx, share.DocumentID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) handleRevokeShare(c *gin.Context) {
	if err := s.docs.RevokeShare(c.Request.Context(), c.Param("token")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": true})
}

func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.K <= 0 {
		req.K = s.maxSources
	}

	evidence, err := s.searcher.Search(c.Request.Context(), req.Query, req.K, retriever.Scope{
		DocumentIDs: req.DocumentIDs,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	results := make([]gin.H, len(evidence))
	for i, ev := range evidence {
		results[i] = gin.H{
			"document_id": ev.Chunk.DocumentID,
			"chunk_id":    ev.Chunk.ID,
			"chunk_index": ev.Chunk.Index,
			"content":     ev.Chunk.Content,
			"score":       ev.Score,
			"rank":        ev.Rank,
			"page_number": ev.Chunk.Page,
		}
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// handleChat answers a question and records the turn in the session's
// conversation history.
func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mode, err := answer.ParseMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	maxSources := req.MaxSources
	if maxSources <= 0 {
		maxSources = s.maxSources
	}

	ctx := c.Request.Context()
	ans, err := s.answerer.Answer(ctx, req.Message, mode, maxSources, retriever.Scope{
		DocumentIDs: req.DocumentIDs,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	conv := &docstore.Conversation{
		ID:         uuid.New().String(),
		SessionID:  req.SessionID,
		UserMsg:    req.Message,
		AIResponse: ans.Text,
		Mode:       string(ans.Mode),
		Sources:    toSourceRefs(ans.Sources),
		Confidence: ans.Confidence,
	}
	if err := s.docs.SaveConversation(ctx, conv); err != nil {
		s.logger.Error("saving conversation", "session", req.SessionID, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"response":   ans.Text,
		"sources":    ans.Sources,
		"confidence": ans.Confidence,
		"mode":       ans.Mode,
		"session_id": req.SessionID,
	})
}

func (s *Server) handleChatHistory(c *gin.Context) {
	history, err := s.docs.History(c.Request.Context(), c.Param("session"), 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if history == nil {
		history = []*docstore.Conversation{}
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

// writeError maps domain errors to HTTP status codes.
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, docstore.ErrDocumentNotFound), errors.Is(err, docstore.ErrShareNotFound):
		status = http.StatusNotFound
	case errors.Is(err, indexer.ErrIndexingInProgress):
		status = http.StatusConflict
	case errors.Is(err, embedding.ErrProviderUnavailable), errors.Is(err, generation.ErrGenerationUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, answer.ErrAttributionMismatch):
		status = http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		status = 499 // client closed request
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func toSourceRefs(sources []answer.Source) []docstore.SourceRef {
	refs := make([]docstore.SourceRef, len(sources))
	for i, src := range sources {
		refs[i] = docstore.SourceRef{
			DocumentID: src.DocumentID,
			ChunkID:    src.ChunkID,
			ChunkIndex: src.ChunkIndex,
			Relevance:  src.Relevance,
			Preview:    src.Preview,
			Page:       src.Page,
		}
	}
	return refs
}
