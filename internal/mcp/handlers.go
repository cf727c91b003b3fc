package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/docsage/docsage/internal/answer"
	"github.com/docsage/docsage/internal/docstore"
	"github.com/docsage/docsage/internal/retriever"
)

// makeSearchHandler creates the search_documents tool handler.
func makeSearchHandler(searcher Searcher) func(
	context.Context, *mcp.CallToolRequest, SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (
		*mcp.CallToolResult, SearchOutput, error,
	) {
		maxResults := input.MaxResults
		if maxResults <= 0 {
			maxResults = 5
		}

		evidence, err := searcher.Search(ctx, input.Query, maxResults, retriever.Scope{
			DocumentIDs: input.DocumentIDs,
		})
		if err != nil {
			return nil, SearchOutput{}, fmt.Errorf("search failed: %w", err)
		}

		results := make([]SearchResult, 0, len(evidence))
		for _, ev := range evidence {
			if ev.Score < input.MinScore {
				continue
			}
			results = append(results, SearchResult{
				DocumentID: ev.Chunk.DocumentID,
				ChunkID:    ev.Chunk.ID,
				ChunkIndex: ev.Chunk.Index,
				Content:    ev.Chunk.Content,
				Score:      ev.Score,
				Page:       ev.Chunk.Page,
			})
		}

		if len(results) == 0 {
			return nil, SearchOutput{
				Results: []SearchResult{},
				Message: "No matching passages found. Try broader search terms.",
			}, nil
		}
		return nil, SearchOutput{Results: results}, nil
	}
}

// makeAskHandler creates the ask_documents tool handler.
func makeAskHandler(answerer Answerer) func(
	context.Context, *mcp.CallToolRequest, AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskInput) (
		*mcp.CallToolResult, AskOutput, error,
	) {
		mode, err := answer.ParseMode(input.Mode)
		if err != nil {
			return nil, AskOutput{}, err
		}
		maxSources := input.MaxSources
		if maxSources <= 0 {
			maxSources = 5
		}

		ans, err := answerer.Answer(ctx, input.Question, mode, maxSources, retriever.Scope{
			DocumentIDs: input.DocumentIDs,
		})
		if err != nil {
			return nil, AskOutput{}, fmt.Errorf("answer failed: %w", err)
		}

		sources := make([]SourceInfo, len(ans.Sources))
		for i, src := range ans.Sources {
			sources[i] = SourceInfo{
				DocumentID: src.DocumentID,
				ChunkID:    src.ChunkID,
				Relevance:  src.Relevance,
				Preview:    src.Preview,
				Page:       src.Page,
			}
		}
		return nil, AskOutput{
			Answer:     ans.Text,
			Sources:    sources,
			Confidence: ans.Confidence,
			Mode:       string(ans.Mode),
		}, nil
	}
}

// makeListHandler creates the list_documents tool handler.
func makeListHandler(docs DocumentLister) func(
	context.Context, *mcp.CallToolRequest, ListInput,
) (*mcp.CallToolResult, ListOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListInput) (
		*mcp.CallToolResult, ListOutput, error,
	) {
		documents, err := docs.ListDocuments(ctx, false, 100, 0)
		if err != nil {
			return nil, ListOutput{}, fmt.Errorf("failed to list documents: %w", err)
		}

		infos := make([]DocumentInfo, len(documents))
		for i, doc := range documents {
			infos[i] = DocumentInfo{
				ID:         doc.ID,
				Filename:   doc.Filename,
				Status:     string(doc.Status),
				ChunkCount: doc.ChunkCount,
				CreatedAt:  doc.CreatedAt,
			}
		}
		return nil, ListOutput{Documents: infos, Count: len(infos)}, nil
	}
}

// DocumentLister lists document records for the list_documents tool.
type DocumentLister interface {
	ListDocuments(ctx context.Context, publicOnly bool, limit, offset int) ([]*docstore.Document, error)
}
