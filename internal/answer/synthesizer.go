// Package answer turns a question plus retrieved evidence into a
// structured, attributed response. The generation model only ever sees
// the evidence block built here, and every citation it emits is mapped
// back to a retrieved chunk before the answer leaves the package.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/docsage/docsage/internal/retriever"
)

// ErrAttributionMismatch means the model cited a source outside the
// supplied evidence even after one corrective re-prompt.
var ErrAttributionMismatch = errors.New("generated answer cites a source outside the supplied evidence")

// NoEvidenceAnswer is returned verbatim when retrieval finds nothing;
// the generation provider is not called in that case.
const NoEvidenceAnswer = "No relevant information found in the available documents."

const previewLength = 200

var citationRe = regexp.MustCompile(`\[S(\d+)\]`)

// Generator produces completion text from a system and user message.
type Generator interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Searcher retrieves scoped evidence for a query.
type Searcher interface {
	Search(ctx context.Context, query string, k int, scope retriever.Scope) ([]retriever.Evidence, error)
}

// Source is one piece of evidence the answer draws on.
type Source struct {
	DocumentID string  `json:"document_id"`
	ChunkID    string  `json:"chunk_id"`
	ChunkIndex int     `json:"chunk_index"`
	Relevance  float64 `json:"relevance"`
	Preview    string  `json:"preview"`
	Page       int     `json:"page,omitempty"`
}

// Answer is a synthesized response with attribution and confidence.
type Answer struct {
	Text       string   `json:"text"`
	Sources    []Source `json:"sources"`
	Confidence float64  `json:"confidence"`
	Mode       Mode     `json:"mode"`
}

// Synthesizer runs retrieve-prompt-generate-attribute for one question.
type Synthesizer struct {
	retriever      Searcher
	generator      Generator
	score          ScoreFunc
	evidenceBudget int
	logger         *slog.Logger
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithScoreFunc replaces the default confidence function.
func WithScoreFunc(f ScoreFunc) Option {
	return func(s *Synthesizer) { s.score = f }
}

// WithEvidenceBudget overrides the evidence block token budget.
func WithEvidenceBudget(tokens int) Option {
	return func(s *Synthesizer) { s.evidenceBudget = tokens }
}

// New creates a synthesizer.
func New(ret Searcher, gen Generator, logger *slog.Logger, opts ...Option) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Synthesizer{
		retriever:      ret,
		generator:      gen,
		score:          Score,
		evidenceBudget: defaultEvidenceBudget,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Answer retrieves evidence for the query and synthesizes a grounded,
// mode-specific response. Zero evidence short-circuits to a fixed
// answer with confidence 0 without calling the generation provider.
func (s *Synthesizer) Answer(ctx context.Context, query string, mode Mode, maxSources int, scope retriever.Scope) (*Answer, error) {
	mode, err := ParseMode(string(mode))
	if err != nil {
		return nil, err
	}
	if maxSources <= 0 {
		return nil, fmt.Errorf("max sources must be positive, got %d", maxSources)
	}

	evidence, err := s.retriever.Search(ctx, query, maxSources, scope)
	if err != nil {
		return nil, fmt.Errorf("retrieving evidence: %w", err)
	}
	if len(evidence) == 0 {
		return &Answer{Text: NoEvidenceAnswer, Sources: []Source{}, Confidence: 0, Mode: mode}, nil
	}

	// Check for abandonment before dispatching a billed call.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	block, included := buildEvidenceBlock(evidence, s.evidenceBudget)
	user := buildUserPrompt(query, mode, block)

	text, err := s.generator.Complete(ctx, systemPrompt, user)
	if err != nil {
		return nil, err
	}

	cited, ok := citedIndexes(text, len(included))
	if !ok {
		s.logger.Warn("answer cited unknown source, re-prompting", "mode", mode)
		text, err = s.generator.Complete(ctx, systemPrompt, user+correctivePrompt)
		if err != nil {
			return nil, err
		}
		cited, ok = citedIndexes(text, len(included))
		if !ok {
			return nil, ErrAttributionMismatch
		}
	}

	return &Answer{
		Text:       text,
		Sources:    buildSources(included, cited),
		Confidence: s.score(included),
		Mode:       mode,
	}, nil
}

// citedIndexes extracts zero-based evidence indexes cited in text. ok
// is false when any marker falls outside [1, n].
func citedIndexes(text string, n int) ([]int, bool) {
	var cited []int
	seen := make(map[int]bool)
	for _, match := range citationRe.FindAllStringSubmatch(text, -1) {
		num, err := strconv.Atoi(match[1])
		if err != nil || num < 1 || num > n {
			return nil, false
		}
		if !seen[num] {
			seen[num] = true
			cited = append(cited, num-1)
		}
	}
	return cited, true
}

// buildSources maps citations back to evidence, ordered by retrieval
// rank. An answer with no citation markers keeps the full evidence set
// as its sources; the whole block grounded it.
func buildSources(evidence []retriever.Evidence, cited []int) []Source {
	use := cited
	if len(use) == 0 {
		use = make([]int, len(evidence))
		for i := range evidence {
			use[i] = i
		}
	}

	picked := make(map[int]bool, len(use))
	for _, i := range use {
		picked[i] = true
	}

	sources := make([]Source, 0, len(use))
	for i, ev := range evidence {
		if !picked[i] {
			continue
		}
		sources = append(sources, Source{
			DocumentID: ev.Chunk.DocumentID,
			ChunkID:    ev.Chunk.ID,
			ChunkIndex: ev.Chunk.Index,
			Relevance:  ev.Score,
			Preview:    preview(ev.Chunk.Content),
			Page:       ev.Chunk.Page,
		})
	}
	return sources
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength]) + "…"
}
