// Package main provides the ingest CLI for loading documents into the
// index from the command line.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/docsage/docsage/internal/chunker"
	"github.com/docsage/docsage/internal/config"
	"github.com/docsage/docsage/internal/docstore"
	"github.com/docsage/docsage/internal/embedding"
	"github.com/docsage/docsage/internal/extract"
	"github.com/docsage/docsage/internal/indexer"
	"github.com/docsage/docsage/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "docsage-ingest",
	Short: "Document ingestion tool",
	Long: `CLI for loading documents into the vector index.

Environment variables:
  OPENAI_API_KEY OpenAI API key for embeddings (required)
  QDRANT_HOST    Qdrant hostname (default: localhost)
  QDRANT_PORT    Qdrant gRPC port (default: 6334)
  DATA_DIR       Document store directory (default: ./data)`,
}

var addCmd = &cobra.Command{
	Use:   "add [files...]",
	Short: "Extract, chunk, embed, and index local files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAdd,
}

var reindexCmd = &cobra.Command{
	Use:   "reindex [document-ids...]",
	Short: "Re-run indexing for documents (all failed ones when no id is given)",
	RunE:  runReindex,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents and their indexing status",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(addCmd, reindexCmd, listCmd)
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// pipeline bundles the components a command needs.
type pipeline struct {
	docs    *docstore.Store
	indexer *indexer.Indexer
	cfg     *config.Config
	close   func()
}

func buildPipeline(ctx context.Context) (*pipeline, error) {
	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	docs, err := docstore.NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening document store: %w", err)
	}

	chunks, err := store.NewQdrantStore(cfg.QdrantHost, cfg.QdrantPort, cfg.QdrantCollection)
	if err != nil {
		docs.Close()
		return nil, fmt.Errorf("connecting to Qdrant: %w", err)
	}
	if err := chunks.Init(ctx, cfg.EmbeddingDimension); err != nil {
		chunks.Close()
		docs.Close()
		return nil, fmt.Errorf("initializing collection: %w", err)
	}

	client, err := embedding.NewClient(cfg.OpenAIAPIKey)
	if err != nil {
		chunks.Close()
		docs.Close()
		return nil, err
	}
	embedder := embedding.NewEmbedder(client, embedding.Config{
		Model:             cfg.EmbeddingModel,
		Dimension:         cfg.EmbeddingDimension,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, logger)

	ck, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		chunks.Close()
		docs.Close()
		return nil, err
	}

	return &pipeline{
		docs:    docs,
		indexer: indexer.New(docs, ck, embedder, chunks, logger),
		cfg:     cfg,
		close: func() {
			chunks.Close()
			docs.Close()
		},
	}, nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.close()

	ids := make([]string, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		result, err := extract.FromBytes(path, data)
		if err != nil {
			return fmt.Errorf("extracting %s: %w", path, err)
		}

		doc := &docstore.Document{
			ID:       uuid.New().String(),
			Filename: filepath.Base(path),
			Content:  result.Text,
			FileSize: int64(len(data)),
			Metadata: map[string]any{
				"extraction_method":     result.Method,
				"extraction_confidence": result.Confidence,
			},
		}
		if err := p.docs.CreateDocument(ctx, doc); err != nil {
			return fmt.Errorf("recording %s: %w", path, err)
		}
		ids = append(ids, doc.ID)
		fmt.Printf("added %s as %s\n", path, doc.ID)
	}

	result, err := p.indexer.IndexAll(ctx, ids, p.cfg.IndexConcurrency)
	if err != nil {
		return err
	}
	printBatchResult(result)
	fmt.Printf("total time: %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func runReindex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.close()

	ids := args
	if len(ids) == 0 {
		docs, err := p.docs.ListDocuments(ctx, false, 1000, 0)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if doc.Status == docstore.StatusFailed {
				ids = append(ids, doc.ID)
			}
		}
		if len(ids) == 0 {
			fmt.Println("no failed documents to reindex")
			return nil
		}
	}

	result, err := p.indexer.IndexAll(ctx, ids, p.cfg.IndexConcurrency)
	if err != nil {
		return err
	}
	printBatchResult(result)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg := config.FromEnv()
	docs, err := docstore.NewStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer docs.Close()

	list, err := docs.ListDocuments(ctx, false, 1000, 0)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("no documents")
		return nil
	}
	for _, doc := range list {
		fmt.Printf("%s  %-16s %4d chunks  %s\n", doc.ID, doc.Status, doc.ChunkCount, doc.Filename)
	}
	return nil
}

func printBatchResult(result *indexer.BatchResult) {
	fmt.Printf("indexed %d/%d documents, %d chunks, %s\n",
		result.SuccessfulDocs, result.TotalDocs, result.TotalChunks,
		result.Duration.Round(time.Millisecond))
	for _, failed := range result.FailedDocs {
		fmt.Printf("  failed %s: %s\n", failed.DocumentID, failed.Reason)
	}
}
