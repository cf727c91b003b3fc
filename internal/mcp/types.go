// Package mcp exposes the document answering pipeline as Model
// Context Protocol tools.
package mcp

import "time"

// SearchInput defines the input parameters for the search_documents tool.
type SearchInput struct {
	// Query is the semantic search query.
	Query string `json:"query" jsonschema:"required,description=The semantic search query for finding relevant passages"`
	// MaxResults is the maximum number of passages to return.
	MaxResults int `json:"max_results,omitempty" jsonschema:"minimum=1,maximum=20,default=5,description=Maximum number of passages to return"`
	// MinScore is the minimum similarity threshold (0-1).
	MinScore float64 `json:"min_score,omitempty" jsonschema:"minimum=0,maximum=1,description=Minimum similarity score threshold (0-1)"`
	// DocumentIDs restricts the search to specific documents.
	DocumentIDs []string `json:"document_ids,omitempty" jsonschema:"description=Restrict the search to these document ids"`
}

// SearchOutput contains the search results.
type SearchOutput struct {
	Results []SearchResult `json:"results"`
	// Message provides informational context (e.g., "No matching passages found").
	Message string `json:"message,omitempty"`
}

// SearchResult is a single matching passage.
type SearchResult struct {
	DocumentID string  `json:"document_id"`
	ChunkID    string  `json:"chunk_id"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
	Page       int     `json:"page_number,omitempty"`
}

// AskInput defines the input parameters for the ask_documents tool.
type AskInput struct {
	// Question is the natural-language question to answer.
	Question string `json:"question" jsonschema:"required,description=The question to answer from the indexed documents"`
	// Mode selects the synthesis strategy.
	Mode string `json:"mode,omitempty" jsonschema:"enum=chat,enum=summarize,enum=insights,enum=planning,default=chat,description=Synthesis strategy"`
	// MaxSources caps the evidence set size.
	MaxSources int `json:"max_sources,omitempty" jsonschema:"minimum=1,maximum=20,default=5,description=Maximum number of sources to ground the answer on"`
	// DocumentIDs restricts retrieval to specific documents.
	DocumentIDs []string `json:"document_ids,omitempty" jsonschema:"description=Restrict retrieval to these document ids"`
}

// AskOutput contains the synthesized answer with attribution.
type AskOutput struct {
	Answer     string       `json:"answer"`
	Sources    []SourceInfo `json:"sources"`
	Confidence float64      `json:"confidence"`
	Mode       string       `json:"mode"`
}

// SourceInfo is one piece of evidence the answer draws on.
type SourceInfo struct {
	DocumentID string  `json:"document_id"`
	ChunkID    string  `json:"chunk_id"`
	Relevance  float64 `json:"relevance"`
	Preview    string  `json:"preview"`
	Page       int     `json:"page_number,omitempty"`
}

// ListInput defines the input for the list_documents tool. It takes no
// parameters.
type ListInput struct{}

// ListOutput contains the available documents.
type ListOutput struct {
	Documents []DocumentInfo `json:"documents"`
	Count     int            `json:"count"`
}

// DocumentInfo summarizes one indexed document.
type DocumentInfo struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Status     string    `json:"status"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}
