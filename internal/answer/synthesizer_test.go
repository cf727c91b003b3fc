package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsage/docsage/internal/retriever"
	"github.com/docsage/docsage/internal/store"
)

type stubSearcher struct {
	evidence []retriever.Evidence
	err      error
	calls    int
}

func (s *stubSearcher) Search(ctx context.Context, query string, k int, scope retriever.Scope) ([]retriever.Evidence, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if k < len(s.evidence) {
		return s.evidence[:k], nil
	}
	return s.evidence, nil
}

type stubGenerator struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (g *stubGenerator) Complete(ctx context.Context, system, user string) (string, error) {
	g.calls++
	g.prompts = append(g.prompts, user)
	if g.err != nil {
		return "", g.err
	}
	i := g.calls - 1
	if i >= len(g.responses) {
		i = len(g.responses) - 1
	}
	return g.responses[i], nil
}

func testEvidence(scores ...float64) []retriever.Evidence {
	evidence := make([]retriever.Evidence, len(scores))
	for i, score := range scores {
		evidence[i] = retriever.Evidence{
			Chunk: &store.Chunk{
				ID:         "chunk-" + string(rune('a'+i)),
				DocumentID: "doc1",
				Index:      i,
				Content:    "Evidence passage number " + string(rune('1'+i)),
				Page:       i + 1,
			},
			Score: score,
			Rank:  i + 1,
		}
	}
	return evidence
}

func TestAnswer_NoEvidence(t *testing.T) {
	searcher := &stubSearcher{}
	generator := &stubGenerator{responses: []string{"should not run"}}
	s := New(searcher, generator, nil)

	ans, err := s.Answer(context.Background(), "anything?", ModeChat, 5, retriever.Scope{})
	require.NoError(t, err)
	assert.Equal(t, NoEvidenceAnswer, ans.Text)
	assert.Empty(t, ans.Sources)
	assert.Zero(t, ans.Confidence)
	assert.Zero(t, generator.calls, "generation must not be invoked without evidence")
}

func TestAnswer_CitedSources(t *testing.T) {
	searcher := &stubSearcher{evidence: testEvidence(0.9, 0.8, 0.7)}
	generator := &stubGenerator{responses: []string{"Alpha is covered [S1], and also [S3]."}}
	s := New(searcher, generator, nil)

	ans, err := s.Answer(context.Background(), "what is alpha?", ModeChat, 5, retriever.Scope{})
	require.NoError(t, err)
	assert.Equal(t, 1, generator.calls)

	require.Len(t, ans.Sources, 2)
	assert.Equal(t, 0, ans.Sources[0].ChunkIndex, "sources follow retrieval rank order")
	assert.Equal(t, 2, ans.Sources[1].ChunkIndex)
	assert.Equal(t, "doc1", ans.Sources[0].DocumentID)
	assert.Equal(t, 0.9, ans.Sources[0].Relevance)
	assert.NotEmpty(t, ans.Sources[0].Preview)
	assert.Equal(t, 1, ans.Sources[0].Page)
	assert.Positive(t, ans.Confidence)
	assert.Equal(t, ModeChat, ans.Mode)
}

func TestAnswer_NoCitationsKeepsAllEvidence(t *testing.T) {
	searcher := &stubSearcher{evidence: testEvidence(0.9, 0.8)}
	generator := &stubGenerator{responses: []string{"An answer without any markers."}}
	s := New(searcher, generator, nil)

	ans, err := s.Answer(context.Background(), "question", ModeSummarize, 5, retriever.Scope{})
	require.NoError(t, err)
	assert.Len(t, ans.Sources, 2)
}

func TestAnswer_RepromptOnBadCitation(t *testing.T) {
	searcher := &stubSearcher{evidence: testEvidence(0.9)}
	generator := &stubGenerator{responses: []string{
		"Bogus claim [S7].",
		"Corrected claim [S1].",
	}}
	s := New(searcher, generator, nil)

	ans, err := s.Answer(context.Background(), "question", ModeChat, 5, retriever.Scope{})
	require.NoError(t, err)
	assert.Equal(t, 2, generator.calls)
	assert.Contains(t, generator.prompts[1], "previous answer cited a source number that does not exist")
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, "Corrected claim [S1].", ans.Text)
}

func TestAnswer_AttributionMismatchAfterReprompt(t *testing.T) {
	searcher := &stubSearcher{evidence: testEvidence(0.9)}
	generator := &stubGenerator{responses: []string{"Bad [S7].", "Still bad [S9]."}}
	s := New(searcher, generator, nil)

	_, err := s.Answer(context.Background(), "question", ModeChat, 5, retriever.Scope{})
	assert.ErrorIs(t, err, ErrAttributionMismatch)
	assert.Equal(t, 2, generator.calls, "exactly one corrective re-prompt")
}

func TestAnswer_GeneratorErrorPropagates(t *testing.T) {
	searcher := &stubSearcher{evidence: testEvidence(0.9)}
	generator := &stubGenerator{err: errors.New("provider down")}
	s := New(searcher, generator, nil)

	_, err := s.Answer(context.Background(), "question", ModeChat, 5, retriever.Scope{})
	assert.Error(t, err)
}

func TestAnswer_CancelledBeforeGeneration(t *testing.T) {
	searcher := &stubSearcher{evidence: testEvidence(0.9)}
	generator := &stubGenerator{responses: []string{"unused"}}
	s := New(searcher, generator, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Answer(ctx, "question", ModeChat, 5, retriever.Scope{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, generator.calls, "cancellation must prevent the billed call")
}

func TestAnswer_InputValidation(t *testing.T) {
	s := New(&stubSearcher{}, &stubGenerator{}, nil)

	_, err := s.Answer(context.Background(), "q", Mode("haiku"), 5, retriever.Scope{})
	assert.Error(t, err)

	_, err = s.Answer(context.Background(), "q", ModeChat, 0, retriever.Scope{})
	assert.Error(t, err)
}

func TestAnswer_ModeDirectiveInPrompt(t *testing.T) {
	for _, mode := range []Mode{ModeChat, ModeSummarize, ModeInsights, ModePlanning} {
		searcher := &stubSearcher{evidence: testEvidence(0.9)}
		generator := &stubGenerator{responses: []string{"Answer [S1]."}}
		s := New(searcher, generator, nil)

		_, err := s.Answer(context.Background(), "question", mode, 5, retriever.Scope{})
		require.NoError(t, err)
		require.Len(t, generator.prompts, 1)
		assert.Contains(t, generator.prompts[0], mode.directive())
		assert.Contains(t, generator.prompts[0], "[S1]", "evidence block is shared across modes")
	}
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("insights")
	require.NoError(t, err)
	assert.Equal(t, ModeInsights, mode)

	mode, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeChat, mode, "empty mode defaults to chat")

	_, err = ParseMode("freeform")
	assert.Error(t, err)
}

func TestScore_EmptyEvidence(t *testing.T) {
	assert.Zero(t, Score(nil))
	assert.Zero(t, Score([]retriever.Evidence{}))
}

func TestScore_MonotonicInTopSimilarity(t *testing.T) {
	low := Score(testEvidence(0.5, 0.4))
	high := Score(testEvidence(0.9, 0.4))
	assert.Greater(t, high, low)
}

func TestScore_Bounds(t *testing.T) {
	assert.LessOrEqual(t, Score(testEvidence(1, 1, 1, 1, 1)), 1.0)
	assert.GreaterOrEqual(t, Score(testEvidence(0, 0)), 0.0)

	// Perfect similarity with full support approaches the maximum.
	assert.InDelta(t, 1.0, Score(testEvidence(1, 1, 1, 1, 1)), 1e-9)
}

func TestScore_MoreEvidenceHelps(t *testing.T) {
	one := Score(testEvidence(0.8))
	three := Score(testEvidence(0.8, 0.8, 0.8))
	assert.Greater(t, three, one)
}

func TestBuildEvidenceBlock_Budget(t *testing.T) {
	evidence := testEvidence(0.9, 0.8, 0.7)

	block, included := buildEvidenceBlock(evidence, 1_000_000)
	assert.Len(t, included, 3)
	assert.Contains(t, block, "[S1]")
	assert.Contains(t, block, "[S3]")

	// A tight budget drops trailing evidence but never the top result.
	block, included = buildEvidenceBlock(evidence, 8)
	require.NotEmpty(t, included)
	assert.Equal(t, 0, included[0].Chunk.Index)
	assert.True(t, strings.HasPrefix(block, "[S1]"))
	assert.NotContains(t, block, "[S3]")
}
