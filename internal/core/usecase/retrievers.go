package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/dermafusion/internal/core/domain"
	"github.com/kirillkom/dermafusion/internal/core/ranking"
)

// visualHits encodes the image, queries the visual store and trims the
// ascending hit list with the dynamic cutoff.
func (uc *DiagnosisUseCase) visualHits(ctx context.Context, image []byte) ([]domain.VisualHit, error) {
	if len(image) == 0 {
		return nil, nil
	}
	vectors, err := uc.encoder.Encode(ctx, [][]byte{image})
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("encode image: empty embedding")
	}

	hits, err := uc.visual.QueryImages(ctx, vectors[0], uc.opts.VisualResults)
	if err != nil {
		return nil, fmt.Errorf("query visual store: %w", err)
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})

	distances := make([]float64, len(hits))
	for i, hit := range hits {
		distances[i] = hit.Distance
	}
	if cutoff := ranking.SelectCutoff(distances, uc.opts.Cutoff); cutoff < len(hits) {
		hits = hits[:cutoff]
	}
	return hits, nil
}

func (uc *DiagnosisUseCase) visualLabels(ctx context.Context, image []byte) []domain.LabelScore {
	hits, err := uc.visualHits(ctx, image)
	if err != nil {
		sourceFailed("visual", err)
		return []domain.LabelScore{}
	}

	scored := make([]domain.ScoredHit, 0, len(hits))
	for _, hit := range hits {
		label := trimVisualLabel(hit.Label)
		if label == "" {
			continue
		}
		scored = append(scored, domain.ScoredHit{Label: label, Distance: hit.Distance})
	}
	return ranking.Aggregate(scored, uc.opts.Strategy)
}

func (uc *DiagnosisUseCase) keywordDiseaseLabels(ctx context.Context, keywords []string) []domain.LabelScore {
	if len(keywords) == 0 {
		return []domain.LabelScore{}
	}
	matches, err := uc.keywords.RetrieveKeywords(ctx, keywords, domain.EntityDisease)
	if err != nil {
		sourceFailed("keyword_disease", err)
		return []domain.LabelScore{}
	}
	return uc.groupKeywordMatches(matches)
}

func (uc *DiagnosisUseCase) symptomAnatomyMatches(ctx context.Context, keywords []string) (domain.KeywordMatches, domain.KeywordMatches) {
	var symptoms, anatomies domain.KeywordMatches
	if len(keywords) == 0 {
		return symptoms, anatomies
	}

	var err error
	symptoms, err = uc.keywords.RetrieveKeywords(ctx, keywords, domain.EntitySymptom)
	if err != nil {
		sourceFailed("keyword_symptom", err)
		symptoms = domain.KeywordMatches{}
	}
	anatomies, err = uc.keywords.RetrieveKeywords(ctx, keywords, domain.EntityAnatomy)
	if err != nil {
		sourceFailed("keyword_anatomy", err)
		anatomies = domain.KeywordMatches{}
	}
	return symptoms, anatomies
}

// graphLabels counts diseases reached from matched symptoms and anatomies and
// re-queries the most frequent ones against the keyword index.
func (uc *DiagnosisUseCase) graphLabels(ctx context.Context, symptoms, anatomies domain.KeywordMatches) []domain.LabelScore {
	if symptoms.Total()+anatomies.Total() == 0 {
		return []domain.LabelScore{}
	}

	order := make([]string, 0)
	counts := make(map[string]int)
	visit := func(matches domain.KeywordMatches, relation domain.RelationType) {
		for _, keyword := range matches.Keywords {
			for _, match := range matches.Matches[keyword] {
				edges, err := uc.graph.DiseasesByEntity(ctx, match.Entity, relation, uc.opts.GraphEntityLimit)
				if err != nil {
					sourceFailed("graph", err)
					continue
				}
				for _, edge := range edges {
					disease := strings.TrimSpace(edge.SubjectName)
					if disease == "" {
						continue
					}
					if _, seen := counts[disease]; !seen {
						order = append(order, disease)
					}
					counts[disease]++
				}
			}
		}
	}
	visit(symptoms, domain.RelationHasSymptom)
	visit(anatomies, domain.RelationAffects)
	if len(order) == 0 {
		return []domain.LabelScore{}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > uc.opts.GraphTopDiseases {
		order = order[:uc.opts.GraphTopDiseases]
	}

	matches, err := uc.keywords.RetrieveKeywords(ctx, order, domain.EntityDisease)
	if err != nil {
		sourceFailed("graph_disease_lookup", err)
		return []domain.LabelScore{}
	}
	return uc.groupKeywordMatches(matches)
}

func (uc *DiagnosisUseCase) documentLabels(ctx context.Context, text string) []domain.LabelScore {
	if !nonEmpty(text) {
		return []domain.LabelScore{}
	}
	hits, err := uc.documents.QueryDocuments(ctx, text, uc.opts.DocumentResults)
	if err != nil {
		sourceFailed("document", err)
		return []domain.LabelScore{}
	}

	scored := make([]domain.ScoredHit, 0, len(hits))
	for _, hit := range hits {
		if !nonEmpty(hit.Disease) {
			continue
		}
		scored = append(scored, domain.ScoredHit{Label: hit.Disease, Distance: hit.Distance})
	}
	return headOf(ranking.Aggregate(scored, uc.opts.Strategy), uc.opts.SourceTopK)
}

// groupKeywordMatches expands every match into its document labels and
// aggregates them, keeping the best SourceTopK.
func (uc *DiagnosisUseCase) groupKeywordMatches(matches domain.KeywordMatches) []domain.LabelScore {
	scored := make([]domain.ScoredHit, 0, matches.Total())
	for _, keyword := range matches.Keywords {
		for _, match := range matches.Matches[keyword] {
			for _, doc := range match.Docs {
				label := cleanDocumentLabel(doc)
				if label == "" {
					continue
				}
				scored = append(scored, domain.ScoredHit{Label: label, Distance: match.Distance})
			}
		}
	}
	return headOf(ranking.Aggregate(scored, uc.opts.Strategy), uc.opts.SourceTopK)
}

// trimVisualLabel drops everything from the first "(" on.
func trimVisualLabel(label string) string {
	if idx := strings.Index(label, "("); idx >= 0 {
		label = label[:idx]
	}
	return strings.TrimSpace(label)
}

func cleanDocumentLabel(doc string) string {
	doc = strings.ReplaceAll(doc, ".txt", "")
	doc = strings.ReplaceAll(doc, "_", " ")
	return strings.TrimSpace(doc)
}
