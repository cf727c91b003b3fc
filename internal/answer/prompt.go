package answer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/docsage/docsage/internal/retriever"
)

const systemPrompt = `You answer questions using only the numbered sources provided.
Cite every claim with the marker of the supporting source, e.g. [S1] or [S2].
Never cite a source number that was not provided. If the sources do not contain the answer, say so plainly instead of guessing.`

// correctivePrompt is appended for the single re-prompt after an
// attribution mismatch.
const correctivePrompt = `

Your previous answer cited a source number that does not exist. Answer again citing only the source markers listed above.`

// defaultEvidenceBudget caps the evidence block size in tokens so the
// prompt stays inside the model's context window.
const defaultEvidenceBudget = 6000

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// countTokens measures text with the cl100k_base tokenizer, falling
// back to a 4-characters-per-token estimate if the encoding cannot be
// loaded.
func countTokens(text string) int {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	if encoding == nil {
		return len(text) / 4
	}
	return len(encoding.Encode(text, nil, nil))
}

// buildEvidenceBlock renders evidence as numbered sources within the
// token budget. Evidence that does not fit is dropped from the back;
// the returned slice holds what was actually included, so citation
// bounds and attribution reflect only text the model saw. The top
// result is always included, truncated if it alone exceeds the budget.
func buildEvidenceBlock(evidence []retriever.Evidence, budget int) (string, []retriever.Evidence) {
	if budget <= 0 {
		budget = defaultEvidenceBudget
	}

	var b strings.Builder
	var included []retriever.Evidence
	remaining := budget
	for _, ev := range evidence {
		entry := fmt.Sprintf("[S%d] %s\n\n", len(included)+1, ev.Chunk.Content)
		cost := countTokens(entry)
		if cost > remaining {
			if len(included) > 0 {
				break
			}
			entry = fmt.Sprintf("[S1] %s\n\n", truncateToTokens(ev.Chunk.Content, remaining))
		}
		b.WriteString(entry)
		remaining -= cost
		included = append(included, ev)
		if remaining <= 0 {
			break
		}
	}
	return strings.TrimRight(b.String(), "\n"), included
}

// truncateToTokens cuts text down to roughly the given token budget.
func truncateToTokens(text string, budget int) string {
	runes := []rune(text)
	// Estimate first, then shrink until within budget.
	limit := budget * 4
	if limit > len(runes) {
		limit = len(runes)
	}
	for limit > 0 && countTokens(string(runes[:limit])) > budget {
		limit = limit * 3 / 4
	}
	return string(runes[:limit])
}

// buildUserPrompt assembles the full user message: the shared evidence
// block, the mode directive, and the question.
func buildUserPrompt(query string, mode Mode, evidenceBlock string) string {
	var b strings.Builder
	b.WriteString("Sources:\n\n")
	b.WriteString(evidenceBlock)
	b.WriteString("\n\n")
	b.WriteString(mode.directive())
	b.WriteString("\n\nQuestion: ")
	b.WriteString(query)
	return b.String()
}
