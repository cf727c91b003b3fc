package answer

import "github.com/docsage/docsage/internal/retriever"

// Confidence weights. Top-1 similarity dominates so confidence tracks
// the best single piece of evidence; the mean term rewards broad
// support and the count term rewards having several sources at all.
const (
	topWeight   = 0.65
	meanWeight  = 0.25
	countWeight = 0.10

	// fullSupportCount is the evidence count at which the count term
	// saturates.
	fullSupportCount = 5
)

// ScoreFunc computes a confidence value from retrieval scores only.
// Generation output never feeds back into confidence.
type ScoreFunc func(evidence []retriever.Evidence) float64

// Score is the default confidence function. It is deterministic,
// monotonic in the top-1 similarity, and clamped to [0,1]. Empty
// evidence scores 0.
func Score(evidence []retriever.Evidence) float64 {
	if len(evidence) == 0 {
		return 0
	}

	top := evidence[0].Score
	var sum float64
	for _, ev := range evidence {
		if ev.Score > top {
			top = ev.Score
		}
		sum += ev.Score
	}
	mean := sum / float64(len(evidence))

	countFactor := float64(len(evidence)) / fullSupportCount
	if countFactor > 1 {
		countFactor = 1
	}

	return clamp01(topWeight*top + meanWeight*mean + countWeight*countFactor)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
