// Package main runs the document answering API server.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/docsage/docsage/internal/answer"
	"github.com/docsage/docsage/internal/chunker"
	"github.com/docsage/docsage/internal/config"
	"github.com/docsage/docsage/internal/docstore"
	"github.com/docsage/docsage/internal/embedding"
	"github.com/docsage/docsage/internal/generation"
	"github.com/docsage/docsage/internal/indexer"
	mcpserver "github.com/docsage/docsage/internal/mcp"
	"github.com/docsage/docsage/internal/retriever"
	"github.com/docsage/docsage/internal/server"
	"github.com/docsage/docsage/internal/store"
)

func main() {
	// Load .env if present (local development), ignore if missing.
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	docs, err := docstore.NewStore(cfg.DataDir)
	if err != nil {
		logger.Error("opening document store", "error", err)
		os.Exit(1)
	}
	defer docs.Close()

	chunks, cleanup, err := openChunkStore(ctx, cfg)
	if err != nil {
		logger.Error("opening chunk store", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	client, err := embedding.NewClient(cfg.OpenAIAPIKey)
	if err != nil {
		logger.Error("creating embedding client", "error", err)
		os.Exit(1)
	}
	embedder := embedding.NewEmbedder(client, embedding.Config{
		Model:             cfg.EmbeddingModel,
		Dimension:         cfg.EmbeddingDimension,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, logger)
	generator := generation.NewClient(client.Client(), generation.Config{
		Model: cfg.GenerationModel,
	}, logger)

	ck, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		logger.Error("creating chunker", "error", err)
		os.Exit(1)
	}

	ix := indexer.New(docs, ck, embedder, chunks, logger)
	ret := retriever.New(embedder, docs, chunks, logger)
	synth := answer.New(ret, generator, logger)

	mcpSrv := mcpserver.NewServer(&mcpserver.Config{
		Searcher: ret,
		Answerer: synth,
		Docs:     docs,
	})

	srv := server.New(server.Config{
		Docs:       docs,
		Chunks:     chunks,
		Indexer:    ix,
		Searcher:   ret,
		Answerer:   synth,
		MCP:        mcpserver.NewHTTPHandler(mcpSrv, nil),
		MaxSources: cfg.MaxSources,
		Logger:     logger,
	})

	addr := "0.0.0.0:" + cfg.Port
	logger.Info("starting server", "addr", addr, "vector_store", cfg.VectorStore)
	if err := srv.Run(ctx, addr); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// openChunkStore creates the configured vector store backend and
// validates its dimension.
func openChunkStore(ctx context.Context, cfg *config.Config) (store.ChunkStore, func(), error) {
	switch cfg.VectorStore {
	case "memory":
		s := store.NewMemoryStore()
		if err := s.Init(ctx, cfg.EmbeddingDimension); err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	default:
		s, err := store.NewQdrantStore(cfg.QdrantHost, cfg.QdrantPort, cfg.QdrantCollection)
		if err != nil {
			return nil, nil, err
		}
		if err := s.Init(ctx, cfg.EmbeddingDimension); err != nil {
			s.Close()
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
}
