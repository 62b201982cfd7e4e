package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/dermafusion/internal/core/domain"
	"github.com/kirillkom/dermafusion/internal/core/listparse"
	"github.com/kirillkom/dermafusion/internal/core/ports"
)

const loggedResponseLimit = 300

// extractKeywords asks the generator for domain keywords. Malformed output and
// generator failures are retried; exhaustion yields an empty list.
func (uc *DiagnosisUseCase) extractKeywords(ctx context.Context, text string) []string {
	if !nonEmpty(text) {
		return []string{}
	}
	user, err := renderPrompt("keyword_user", uc.prompts.KeywordUser, promptData{Text: text})
	if err != nil {
		slog.Error("keyword_prompt_render_failed", "error", err)
		return []string{}
	}

	for attempt := 1; attempt <= uc.opts.ExtractionAttempts; attempt++ {
		if ctx.Err() != nil {
			break
		}
		raw, err := uc.generator.Generate(ctx, domain.GenerationRequest{
			SystemInstruction: uc.prompts.KeywordSystem,
			UserInstruction:   user,
			Temperature:       extractionTemperature,
			MaxTokens:         extractionMaxTokens,
		})
		if err != nil {
			slog.Warn("keyword_extraction_failed",
				"attempt", attempt,
				"max_attempts", uc.opts.ExtractionAttempts,
				"error", err,
			)
			continue
		}
		keywords, err := listparse.Parse(raw)
		if err != nil {
			slog.Warn("keyword_extraction_unparseable",
				"attempt", attempt,
				"max_attempts", uc.opts.ExtractionAttempts,
				"error", err,
				"response", truncate(raw, loggedResponseLimit),
			)
			continue
		}
		return dedupeStrings(keywords)
	}
	return []string{}
}

func (uc *DiagnosisUseCase) captionImage(ctx context.Context, image []byte, mimeType string) (string, error) {
	user, err := renderPrompt("caption_user", uc.prompts.CaptionUser, promptData{})
	if err != nil {
		return "", err
	}
	caption, err := uc.generator.Generate(ctx, domain.GenerationRequest{
		SystemInstruction: uc.prompts.CaptionSystem,
		UserInstruction:   user,
		Images:            []domain.Part{domain.ImagePart(image, mimeType)},
		Temperature:       captionTemperature,
		MaxTokens:         captionMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("caption image: %w", err)
	}
	return strings.TrimSpace(caption), nil
}

// QueryTypeUseCase classifies a free-text question into a graph query type.
type QueryTypeUseCase struct {
	generator ports.Generator
	prompts   domain.PromptCatalog
	attempts  int
}

func NewQueryTypeUseCase(generator ports.Generator, prompts domain.PromptCatalog, attempts int) *QueryTypeUseCase {
	if attempts <= 0 {
		attempts = 3
	}
	return &QueryTypeUseCase{generator: generator, prompts: prompts, attempts: attempts}
}

func (uc *QueryTypeUseCase) DetectQueryType(ctx context.Context, text string) (domain.QueryClassification, error) {
	if !nonEmpty(text) {
		return domain.QueryClassification{}, domain.WrapError(domain.ErrInvalidInput, "detect query type", fmt.Errorf("text is required"))
	}
	result := domain.QueryClassification{QueryType: domain.QueryUnknown, QueryText: text}

	user, err := renderPrompt("query_type_user", uc.prompts.QueryTypeUser, promptData{Text: text})
	if err != nil {
		return domain.QueryClassification{}, err
	}

	for attempt := 1; attempt <= uc.attempts; attempt++ {
		if ctx.Err() != nil {
			break
		}
		raw, err := uc.generator.Generate(ctx, domain.GenerationRequest{
			SystemInstruction: uc.prompts.QueryTypeSystem,
			UserInstruction:   user,
			Temperature:       extractionTemperature,
			MaxTokens:         extractionMaxTokens,
		})
		if err != nil {
			slog.Warn("query_type_detection_failed", "attempt", attempt, "error", err)
			continue
		}
		candidate := domain.QueryType(strings.Trim(strings.TrimSpace(raw), "\"'"))
		for _, known := range domain.AllQueryTypes() {
			if candidate == known {
				result.QueryType = known
				return result, nil
			}
		}
		slog.Warn("query_type_unrecognized", "attempt", attempt, "response", truncate(raw, loggedResponseLimit))
	}
	return result, nil
}

func dedupeStrings(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
