package ranking

import (
	"math"
	"sort"

	"github.com/kirillkom/dermafusion/internal/core/domain"
)

const (
	DefaultTopLabels      = 5
	DefaultShortlistBonus = 0.05
)

// Softmax rescales scores so they sum to 1 without changing their order.
func Softmax(pairs []domain.LabelScore) []domain.LabelScore {
	out := make([]domain.LabelScore, 0, len(pairs))
	if len(pairs) == 0 {
		return out
	}

	maxScore := pairs[0].Score
	for _, p := range pairs[1:] {
		if p.Score > maxScore {
			maxScore = p.Score
		}
	}

	exps := make([]float64, len(pairs))
	sum := 0.0
	for i, p := range pairs {
		exps[i] = math.Exp(p.Score - maxScore)
		sum += exps[i]
	}
	for i, p := range pairs {
		out = append(out, domain.LabelScore{Label: p.Label, Score: exps[i] / sum})
	}
	return out
}

// TopLabels sorts by score (descending when higherIsBetter), keeps the first
// occurrence of each label, takes topK and finalizes with softmax.
func TopLabels(pairs []domain.LabelScore, topK int, higherIsBetter bool) domain.FusedRanking {
	if topK <= 0 {
		topK = DefaultTopLabels
	}

	sorted := make([]domain.LabelScore, len(pairs))
	copy(sorted, pairs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if higherIsBetter {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].Score < sorted[j].Score
	})

	seen := make(map[string]struct{}, len(sorted))
	head := make([]domain.LabelScore, 0, topK)
	for _, p := range sorted {
		if _, ok := seen[p.Label]; ok {
			continue
		}
		seen[p.Label] = struct{}{}
		head = append(head, p)
		if len(head) == topK {
			break
		}
	}
	return domain.FusedRanking(Softmax(head))
}

// MergeSources normalizes each source independently and concatenates them in
// the fixed order graph+keyword, document, image.
func MergeSources(bundle domain.RetrievalBundle) []domain.LabelScore {
	graph := make([]domain.LabelScore, 0, len(bundle.GraphLabels)+len(bundle.KeywordDiseaseLabels))
	graph = append(graph, bundle.GraphLabels...)
	graph = append(graph, bundle.KeywordDiseaseLabels...)

	out := make([]domain.LabelScore, 0, len(graph)+len(bundle.DocumentLabels)+len(bundle.ImageLabels))
	out = append(out, Normalize(graph)...)
	out = append(out, Normalize(bundle.DocumentLabels)...)
	out = append(out, Normalize(bundle.ImageLabels)...)
	return out
}

// FuseBundle produces the final ranking for a single pipeline.
func FuseBundle(bundle domain.RetrievalBundle, topK int) domain.FusedRanking {
	return TopLabels(MergeSources(bundle), topK, true)
}

// ScoreFusion adds a fixed bonus to every shortlisted label on top of the
// visual candidates, inserting missing labels at the bonus, then applies softmax.
// The result is sorted descending; ties keep visual candidates ahead of new labels.
func ScoreFusion(visual []domain.LabelScore, shortlist []string, bonus float64) domain.FusedRanking {
	order := make([]string, 0, len(visual)+len(shortlist))
	scores := make(map[string]float64, len(visual)+len(shortlist))
	for _, v := range visual {
		if _, ok := scores[v.Label]; !ok {
			order = append(order, v.Label)
		}
		scores[v.Label] = v.Score
	}
	for _, label := range shortlist {
		if _, ok := scores[label]; !ok {
			order = append(order, label)
		}
		scores[label] += bonus
	}

	combined := make([]domain.LabelScore, 0, len(order))
	for _, label := range order {
		combined = append(combined, domain.LabelScore{Label: label, Score: scores[label]})
	}
	fused := Softmax(combined)
	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Score > fused[j].Score
	})
	return domain.FusedRanking(fused)
}
