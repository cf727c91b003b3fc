package answer

import "fmt"

// Mode selects the synthesis strategy. Retrieval is identical across
// modes; only the instruction appended to the evidence block differs.
type Mode string

const (
	ModeChat      Mode = "chat"
	ModeSummarize Mode = "summarize"
	ModeInsights  Mode = "insights"
	ModePlanning  Mode = "planning"
)

// ParseMode validates a mode string from the API boundary.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeChat, ModeSummarize, ModeInsights, ModePlanning:
		return Mode(s), nil
	case "":
		return ModeChat, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// directive returns the mode-specific synthesis instruction.
func (m Mode) directive() string {
	switch m {
	case ModeSummarize:
		return "Synthesize a coherent summary across all the provided sources. Cover the main topics and how they relate; direct quotation is not required."
	case ModeInsights:
		return "Extract patterns, themes, and notable connections that span the provided sources. Call out agreements, contradictions, and gaps."
	case ModePlanning:
		return "Frame your answer as actionable recommendations grounded in the provided sources. Identify concrete next steps and flag risks or open questions."
	default:
		return "Answer the question directly and concisely, grounded strictly in the provided sources."
	}
}
