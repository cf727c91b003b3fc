// Package server exposes the ingestion and answering pipeline over
// HTTP. Handlers translate transport concerns into calls on the
// internal components and map domain errors onto status codes.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docsage/docsage/internal/answer"
	"github.com/docsage/docsage/internal/docstore"
	"github.com/docsage/docsage/internal/indexer"
	"github.com/docsage/docsage/internal/retriever"
	"github.com/docsage/docsage/internal/store"
)

// Answerer synthesizes an attributed answer for a question.
type Answerer interface {
	Answer(ctx context.Context, query string, mode answer.Mode, maxSources int, scope retriever.Scope) (*answer.Answer, error)
}

// Searcher retrieves scoped evidence for a query.
type Searcher interface {
	Search(ctx context.Context, query string, k int, scope retriever.Scope) ([]retriever.Evidence, error)
}

// DocumentIndexer runs the ingestion pipeline for one document.
type DocumentIndexer interface {
	Index(ctx context.Context, documentID string) (*indexer.Result, error)
}

// Server wires the HTTP API to the pipeline components.
type Server struct {
	docs       *docstore.Store
	chunks     store.ChunkStore
	indexer    DocumentIndexer
	searcher   Searcher
	answerer   Answerer
	mcp        http.Handler
	maxSources int
	logger     *slog.Logger
}

// Config carries the Server's dependencies.
type Config struct {
	Docs       *docstore.Store
	Chunks     store.ChunkStore
	Indexer    DocumentIndexer
	Searcher   Searcher
	Answerer   Answerer
	// MCP optionally mounts a Model Context Protocol endpoint at /mcp.
	MCP        http.Handler
	MaxSources int
	Logger     *slog.Logger
}

// New creates a server.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxSources <= 0 {
		cfg.MaxSources = 5
	}
	return &Server{
		docs:       cfg.Docs,
		chunks:     cfg.Chunks,
		indexer:    cfg.Indexer,
		searcher:   cfg.Searcher,
		answerer:   cfg.Answerer,
		mcp:        cfg.MCP,
		maxSources: cfg.MaxSources,
		logger:     cfg.Logger,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", s.handleHealth)

	r.POST("/documents", s.handleUploadDocument)
	r.GET("/documents", s.handleListDocuments)
	r.GET("/documents/:id", s.handleGetDocument)
	r.DELETE("/documents/:id", s.handleDeleteDocument)
	r.POST("/documents/:id/reindex", s.handleReindexDocument)
	r.POST("/documents/:id/share", s.handleCreateShare)

	r.GET("/shared/:token", s.handleGetShared)
	r.DELETE("/shared/:token", s.handleRevokeShare)

	r.POST("/search", s.handleSearch)
	r.POST("/chat", s.handleChat)
	r.GET("/chat/history/:session", s.handleChatHistory)

	if s.mcp != nil {
		r.Any("/mcp", gin.WrapH(s.mcp))
	}

	return r
}

// Run serves the API until the context is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
