package ranking

import (
	"sort"

	"github.com/kirillkom/dermafusion/internal/core/domain"
)

// Aggregate collapses repeated hits per label into one ascending score
// (lower is better). Ties keep the order in which labels were first seen.
func Aggregate(hits []domain.ScoredHit, strategy domain.ScoringStrategy) []domain.LabelScore {
	if len(hits) == 0 {
		return []domain.LabelScore{}
	}

	order := make([]string, 0, len(hits))
	sums := make(map[string]float64, len(hits))
	counts := make(map[string]int, len(hits))
	mins := make(map[string]float64, len(hits))
	for _, hit := range hits {
		if _, seen := counts[hit.Label]; !seen {
			order = append(order, hit.Label)
			mins[hit.Label] = hit.Distance
		}
		sums[hit.Label] += hit.Distance
		counts[hit.Label]++
		if hit.Distance < mins[hit.Label] {
			mins[hit.Label] = hit.Distance
		}
	}

	total := float64(len(hits))
	out := make([]domain.LabelScore, 0, len(order))

	switch strategy {
	case domain.ScoringAverage:
		for _, label := range order {
			out = append(out, domain.LabelScore{Label: label, Score: sums[label] / float64(counts[label])})
		}
	case domain.ScoringMin:
		for _, label := range order {
			out = append(out, domain.LabelScore{Label: label, Score: mins[label]})
		}
	case domain.ScoringFrequency:
		for _, label := range order {
			out = append(out, domain.LabelScore{Label: label, Score: 1 - float64(counts[label])/total})
		}
	default:
		maxScore := weightedReference(order, sums, counts)
		for _, label := range order {
			weight := float64(counts[label]) / total
			avg := sums[label] / float64(counts[label])
			normalized := avg
			if maxScore > 0 {
				normalized = avg / maxScore
			}
			out = append(out, domain.LabelScore{Label: label, Score: normalized * (1 - weight)})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score < out[j].Score
	})
	return out
}

// weightedReference is max(sum)/min(count). Every label in order has count >= 1,
// so the zero-count branch only guards malformed maps.
func weightedReference(order []string, sums map[string]float64, counts map[string]int) float64 {
	maxSum := 0.0
	minCount := 0
	for i, label := range order {
		if i == 0 || sums[label] > maxSum {
			maxSum = sums[label]
		}
		if i == 0 || counts[label] < minCount {
			minCount = counts[label]
		}
	}
	if minCount <= 0 {
		return 1
	}
	return maxSum / float64(minCount)
}
