package ranking

import "github.com/kirillkom/dermafusion/internal/core/domain"

// Normalize maps raw distances onto [0,1] with the smallest distance at 1.
// A degenerate input (all scores equal) maps every entry to 0.
func Normalize(pairs []domain.LabelScore) []domain.LabelScore {
	out := make([]domain.LabelScore, 0, len(pairs))
	if len(pairs) == 0 {
		return out
	}

	minScore := pairs[0].Score
	maxScore := pairs[0].Score
	for _, p := range pairs[1:] {
		if p.Score < minScore {
			minScore = p.Score
		}
		if p.Score > maxScore {
			maxScore = p.Score
		}
	}

	rangeScore := maxScore - minScore
	for _, p := range pairs {
		score := 0.0
		if rangeScore > 0 {
			score = 1 - (p.Score-minScore)/rangeScore
		}
		out = append(out, domain.LabelScore{Label: p.Label, Score: score})
	}
	return out
}

// InvertSimilarity flips scores in [0,1] between distance and similarity form.
func InvertSimilarity(pairs []domain.LabelScore) []domain.LabelScore {
	out := make([]domain.LabelScore, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, domain.LabelScore{Label: p.Label, Score: 1 - p.Score})
	}
	return out
}
