package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/dermafusion/internal/core/domain"
	"github.com/kirillkom/dermafusion/internal/core/labelmatch"
	"github.com/kirillkom/dermafusion/internal/core/listparse"
	"github.com/kirillkom/dermafusion/internal/core/ranking"
)

// StartConversation runs the first stage: visual candidates promoted to
// canonical labels are fused with a generated shortlist, then narrated.
func (uc *DiagnosisUseCase) StartConversation(ctx context.Context, input domain.FirstStageInput) (*domain.FirstStageResult, error) {
	if len(input.Image) == 0 {
		return nil, domain.WrapError(domain.ErrNoInput, "start conversation", errors.New("image is required"))
	}
	mimeType := input.MimeType
	if !nonEmpty(mimeType) {
		mimeType = domain.DetectImageMimeType(input.Image)
	}

	canonical, err := uc.taxonomy.ListCanonicalLabels(ctx, true)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "list canonical labels", err)
	}

	var visual []domain.LabelScore
	var shortlist []string
	var g errgroup.Group
	g.Go(func() error {
		visual = uc.visualCandidates(ctx, input.Image, canonical)
		return nil
	})
	g.Go(func() error {
		var err error
		shortlist, err = uc.shortlist(ctx, input.Image, mimeType, canonical)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("shortlist candidates: %w", err)
	}

	matched := matchShortlist(shortlist, canonical, uc.opts.MatchMinScore)
	labels := ranking.ScoreFusion(visual, matched, uc.opts.ShortlistBonus)
	related := formatContext(labels, uc.describeLabels(ctx, labels))

	hasText := ""
	if nonEmpty(input.Text) {
		hasText = uc.prompts.ReasoningHasText + "\n" + input.Text
	}
	user, err := renderPrompt("first_stage_user", uc.prompts.FirstStageUser, promptData{
		HasText:     hasText,
		HasImage:    uc.prompts.ReasoningHasImg,
		RelatedData: related,
	})
	if err != nil {
		return nil, err
	}

	image := domain.ImagePart(input.Image, mimeType)
	narrative, err := uc.generator.Generate(ctx, domain.GenerationRequest{
		SystemInstruction: uc.prompts.FirstStageSystem,
		UserInstruction:   user,
		Images:            []domain.Part{image},
		Temperature:       reasoningTemperature,
		MaxTokens:         reasoningMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generate first-stage narrative: %w", err)
	}

	userParts := make([]domain.Part, 0, 2)
	if nonEmpty(input.Text) {
		userParts = append(userParts, domain.TextPart(input.Text))
	}
	userParts = append(userParts, image)
	history := domain.ConversationState{
		{Role: domain.RoleUser, Content: userParts},
		{Role: domain.RoleAssistant, Content: []domain.Part{domain.TextPart(narrative)}},
	}

	uc.publish(ctx, domain.DiagnosisEvent{
		Kind:     domain.EventKindFirst,
		Mode:     domain.ModeImage,
		Text:     input.Text,
		HasImage: true,
		Labels:   labels,
		Response: narrative,
	})
	return &domain.FirstStageResult{
		Labels:      labels,
		Response:    narrative,
		ChatHistory: history,
		Stage:       domain.StageAwaitingFollowUp,
	}, nil
}

// ContinueConversation appends one user and one assistant turn without any retrieval.
func (uc *DiagnosisUseCase) ContinueConversation(ctx context.Context, input domain.FollowUpInput) (*domain.FollowUpResult, error) {
	if !nonEmpty(input.Text) {
		return nil, domain.WrapError(domain.ErrNoInput, "continue conversation", errors.New("text is required"))
	}
	if len(input.History) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "continue conversation", errors.New("chat history is required"))
	}

	prompt, err := renderPrompt("follow_up_user", uc.prompts.FollowUpUser, promptData{Text: input.Text})
	if err != nil {
		return nil, err
	}

	history := input.History.Clone()
	history = append(history, domain.Turn{Role: domain.RoleUser, Content: []domain.Part{domain.TextPart(prompt)}})

	reply, err := uc.generator.Chat(ctx, domain.ChatRequest{
		SystemInstruction: uc.prompts.FollowUpSystem,
		History:           history,
		Temperature:       followUpTemperature,
		MaxTokens:         followUpMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generate follow-up: %w", err)
	}
	history = append(history, domain.Turn{Role: domain.RoleAssistant, Content: []domain.Part{domain.TextPart(reply)}})

	uc.publish(ctx, domain.DiagnosisEvent{
		Kind:     domain.EventKindFollowUp,
		Text:     input.Text,
		Response: reply,
	})
	return &domain.FollowUpResult{
		Response:    reply,
		ChatHistory: history,
		Stage:       domain.StageAwaitingFollowUp,
	}, nil
}

// visualCandidates promotes visual hits to canonical labels, either directly
// or through the cross-map, and returns up to VisualCandidates similarity scores.
func (uc *DiagnosisUseCase) visualCandidates(ctx context.Context, image []byte, canonical []string) []domain.LabelScore {
	hits, err := uc.visualHits(ctx, image)
	if err != nil {
		sourceFailed("visual", err)
		return []domain.LabelScore{}
	}

	byKey := make(map[string]string, 2*len(canonical))
	for _, label := range canonical {
		for _, key := range []string{canonicalKey(label), canonicalKey(trimVisualLabel(label))} {
			if _, ok := byKey[key]; !ok && key != "" {
				byKey[key] = label
			}
		}
	}

	type crossKey struct{ domainID, diseaseID string }
	resolved := make(map[crossKey]string)

	scored := make([]domain.ScoredHit, 0, len(hits))
	for _, hit := range hits {
		if label, ok := byKey[canonicalKey(hit.Label)]; ok {
			scored = append(scored, domain.ScoredHit{Label: label, Distance: hit.Distance})
			continue
		}
		if label, ok := byKey[canonicalKey(trimVisualLabel(hit.Label))]; ok {
			scored = append(scored, domain.ScoredHit{Label: label, Distance: hit.Distance})
			continue
		}
		if hit.DomainID == "" || hit.DomainDiseaseID == "" || uc.crossMaps == nil {
			continue
		}

		key := crossKey{hit.DomainID, hit.DomainDiseaseID}
		label, cached := resolved[key]
		if !cached {
			mapped, ok, err := uc.crossMaps.LookupCanonical(ctx, hit.DomainID, hit.DomainDiseaseID)
			if err != nil {
				slog.Warn("cross_map_lookup_failed",
					"domain_id", hit.DomainID,
					"disease_id", hit.DomainDiseaseID,
					"error", err,
				)
			}
			if ok {
				label = mapped
			}
			resolved[key] = label
		}
		if label != "" {
			scored = append(scored, domain.ScoredHit{Label: label, Distance: hit.Distance})
		}
	}

	grouped := headOf(ranking.Aggregate(scored, uc.opts.Strategy), uc.opts.VisualCandidates)
	return ranking.InvertSimilarity(grouped)
}

// shortlist asks the generator to pick candidate labels for the image from the
// canonical list. Generator failures propagate; unparseable output is retried
// and finally degrades to an empty shortlist.
func (uc *DiagnosisUseCase) shortlist(ctx context.Context, image []byte, mimeType string, canonical []string) ([]string, error) {
	if len(canonical) == 0 {
		slog.Warn("shortlist_skipped", "reason", "empty canonical label set")
		return []string{}, nil
	}
	encoded, err := json.Marshal(canonical)
	if err != nil {
		return nil, fmt.Errorf("encode canonical labels: %w", err)
	}
	user, err := renderPrompt("shortlist_user", uc.prompts.ShortlistUser, promptData{
		Labels: string(encoded),
		TopK:   uc.opts.ShortlistSize,
	})
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= uc.opts.ExtractionAttempts; attempt++ {
		raw, err := uc.generator.Generate(ctx, domain.GenerationRequest{
			SystemInstruction: uc.prompts.ShortlistSystem,
			UserInstruction:   user,
			Images:            []domain.Part{domain.ImagePart(image, mimeType)},
			Temperature:       shortlistTemperature,
			MaxTokens:         shortlistMaxTokens,
		})
		if err != nil {
			return nil, err
		}
		items, err := listparse.Parse(raw)
		if err != nil {
			slog.Warn("shortlist_unparseable",
				"attempt", attempt,
				"max_attempts", uc.opts.ExtractionAttempts,
				"error", err,
				"response", truncate(raw, loggedResponseLimit),
			)
			continue
		}
		return items, nil
	}
	return []string{}, nil
}

// matchShortlist maps shortlisted names onto canonical labels, dropping
// unmatched names and duplicates.
func matchShortlist(items, canonical []string, minScore int) []string {
	if len(items) == 0 {
		return []string{}
	}
	matcher := labelmatch.NewMatcher(canonical)
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		match, ok := matcher.FindBestMatch(item, minScore)
		if !ok {
			slog.Info("shortlist_label_unmatched", "label", item)
			continue
		}
		if _, dup := seen[match.MatchedLabel]; dup {
			continue
		}
		seen[match.MatchedLabel] = struct{}{}
		out = append(out, match.MatchedLabel)
	}
	return out
}

func canonicalKey(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
