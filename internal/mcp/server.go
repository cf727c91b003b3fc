package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/docsage/docsage/internal/answer"
	"github.com/docsage/docsage/internal/retriever"
)

// Searcher retrieves scoped evidence for a query.
type Searcher interface {
	Search(ctx context.Context, query string, k int, scope retriever.Scope) ([]retriever.Evidence, error)
}

// Answerer synthesizes an attributed answer for a question.
type Answerer interface {
	Answer(ctx context.Context, query string, mode answer.Mode, maxSources int, scope retriever.Scope) (*answer.Answer, error)
}

// Server wraps the MCP server with its dependencies.
type Server struct {
	server *mcp.Server
}

// Config holds server dependencies.
type Config struct {
	Searcher Searcher
	Answerer Answerer
	Docs     DocumentLister
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	impl := &mcp.Implementation{
		Name:    "docsage-server",
		Version: "v0.1.0",
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_documents",
		Description: "Semantically search the indexed documents. Returns matching passages with similarity scores and offsets.",
	}, makeSearchHandler(cfg.Searcher))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_documents",
		Description: "Ask a natural-language question over the indexed documents. Returns a grounded answer with cited sources and a confidence score.",
	}, makeAskHandler(cfg.Answerer))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List the indexed documents with their status and chunk counts.",
	}, makeListHandler(cfg.Docs))

	return &Server{server: server}
}

// Run starts the server with stdio transport (blocks until the client
// disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance. Used by
// transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
