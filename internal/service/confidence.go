package service

import "github.com/cloo-solutions/copilot/internal/domain"

const (
	highConfidenceMinCitations    = 2
	highConfidenceMinSimilarity   = 0.70
	mediumConfidenceMinCitations  = 1
	mediumConfidenceMinSimilarity = 0.55
)

// AverageSimilarity is the mean clamped similarity over chunks that carry a
// distance, or 0 when none do.
func AverageSimilarity(chunks []domain.Chunk) float64 {
	var sum float64
	var n int
	for _, c := range chunks {
		if sim, ok := c.Similarity(); ok {
			sum += sim
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// ScoreConfidence grades an answer from its citation count and the average
// similarity of the chunks those citations matched.
func ScoreConfidence(citationCount int, avgSimilarity float64) domain.Confidence {
	switch {
	case citationCount >= highConfidenceMinCitations && avgSimilarity >= highConfidenceMinSimilarity:
		return domain.ConfidenceHigh
	case citationCount >= mediumConfidenceMinCitations && avgSimilarity >= mediumConfidenceMinSimilarity:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}
