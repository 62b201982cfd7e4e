package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/dermafusion/internal/core/domain"
	"github.com/kirillkom/dermafusion/internal/core/ports"
	"github.com/kirillkom/dermafusion/internal/core/ranking"
)

const (
	captionTemperature    = 0.01
	captionMaxTokens      = 1000
	extractionTemperature = 0.0
	extractionMaxTokens   = 1000
	shortlistTemperature  = 0.01
	shortlistMaxTokens    = 1000
	reasoningTemperature  = 0.0
	reasoningMaxTokens    = 10000
	followUpTemperature   = 0.0
	followUpMaxTokens     = 5000
)

// DiagnosisDependencies are the collaborators of DiagnosisUseCase. Events is optional.
type DiagnosisDependencies struct {
	Taxonomy  ports.TaxonomyProvider
	CrossMaps ports.CrossMapProvider
	Encoder   ports.ImageEncoder
	Visual    ports.VisualStore
	Documents ports.DocumentStore
	Keywords  ports.KeywordIndex
	Graph     ports.GraphStore
	Generator ports.Generator
	Events    ports.EventPublisher
}

type DiagnosisOptions struct {
	Strategy domain.ScoringStrategy
	Cutoff   ranking.CutoffOptions

	VisualResults      int
	DocumentResults    int
	SourceTopK         int
	GraphEntityLimit   int
	GraphTopDiseases   int
	TopLabels          int
	VisualCandidates   int
	ShortlistSize      int
	ShortlistBonus     float64
	MatchMinScore      int
	ExtractionAttempts int
}

func DefaultDiagnosisOptions() DiagnosisOptions {
	return DiagnosisOptions{
		Strategy:           domain.ScoringWeighted,
		Cutoff:             ranking.DefaultCutoffOptions(),
		VisualResults:      15,
		DocumentResults:    3,
		SourceTopK:         3,
		GraphEntityLimit:   5,
		GraphTopDiseases:   5,
		TopLabels:          ranking.DefaultTopLabels,
		VisualCandidates:   5,
		ShortlistSize:      5,
		ShortlistBonus:     ranking.DefaultShortlistBonus,
		MatchMinScore:      60,
		ExtractionAttempts: 3,
	}
}

type DiagnosisUseCase struct {
	taxonomy  ports.TaxonomyProvider
	crossMaps ports.CrossMapProvider
	encoder   ports.ImageEncoder
	visual    ports.VisualStore
	documents ports.DocumentStore
	keywords  ports.KeywordIndex
	graph     ports.GraphStore
	generator ports.Generator
	events    ports.EventPublisher

	prompts domain.PromptCatalog
	opts    DiagnosisOptions
	now     func() time.Time
}

func NewDiagnosisUseCase(deps DiagnosisDependencies, prompts domain.PromptCatalog, opts DiagnosisOptions) *DiagnosisUseCase {
	defaults := DefaultDiagnosisOptions()
	if opts.Cutoff.MaxK <= 0 {
		opts.Cutoff = defaults.Cutoff
	}
	if opts.VisualResults <= 0 {
		opts.VisualResults = defaults.VisualResults
	}
	if opts.DocumentResults <= 0 {
		opts.DocumentResults = defaults.DocumentResults
	}
	if opts.SourceTopK <= 0 {
		opts.SourceTopK = defaults.SourceTopK
	}
	if opts.GraphEntityLimit <= 0 {
		opts.GraphEntityLimit = defaults.GraphEntityLimit
	}
	if opts.GraphTopDiseases <= 0 {
		opts.GraphTopDiseases = defaults.GraphTopDiseases
	}
	if opts.TopLabels <= 0 {
		opts.TopLabels = defaults.TopLabels
	}
	if opts.VisualCandidates <= 0 {
		opts.VisualCandidates = defaults.VisualCandidates
	}
	if opts.ShortlistSize <= 0 {
		opts.ShortlistSize = defaults.ShortlistSize
	}
	if opts.ShortlistBonus <= 0 {
		opts.ShortlistBonus = defaults.ShortlistBonus
	}
	if opts.MatchMinScore <= 0 {
		opts.MatchMinScore = defaults.MatchMinScore
	}
	if opts.ExtractionAttempts <= 0 {
		opts.ExtractionAttempts = defaults.ExtractionAttempts
	}

	return &DiagnosisUseCase{
		taxonomy:  deps.Taxonomy,
		crossMaps: deps.CrossMaps,
		encoder:   deps.Encoder,
		visual:    deps.Visual,
		documents: deps.Documents,
		keywords:  deps.Keywords,
		graph:     deps.Graph,
		generator: deps.Generator,
		events:    deps.Events,
		prompts:   prompts,
		opts:      opts,
		now:       time.Now,
	}
}

// GetContext returns the fused ranking and the descriptive evidence of every ranked label.
func (uc *DiagnosisUseCase) GetContext(ctx context.Context, input domain.DiagnosisInput) (*domain.ContextResult, error) {
	mode, err := input.Mode()
	if err != nil {
		return nil, err
	}

	labels := uc.rank(ctx, mode, input)
	result := &domain.ContextResult{
		Labels:    labels,
		Documents: uc.describeLabels(ctx, labels),
		Mode:      mode,
	}
	uc.publish(ctx, domain.DiagnosisEvent{
		Kind:     domain.EventKindContext,
		Mode:     mode,
		Text:     input.Text,
		HasImage: input.HasImage(),
		Labels:   labels,
	})
	return result, nil
}

// GetDiagnosis ranks like GetContext and adds one reasoning call over the evidence.
func (uc *DiagnosisUseCase) GetDiagnosis(ctx context.Context, input domain.DiagnosisInput) (*domain.DiagnosisResult, error) {
	mode, err := input.Mode()
	if err != nil {
		return nil, err
	}

	labels := uc.rank(ctx, mode, input)
	related := formatContext(labels, uc.describeLabels(ctx, labels))

	hasText := ""
	if input.HasText() {
		hasText = uc.prompts.ReasoningHasText + "\n" + input.Text
	}
	hasImage := ""
	req := domain.GenerationRequest{
		SystemInstruction: uc.prompts.ReasoningSystem,
		Temperature:       reasoningTemperature,
		MaxTokens:         reasoningMaxTokens,
	}
	if image := input.PrimaryImage(); image != nil {
		hasImage = uc.prompts.ReasoningHasImg
		req.Images = []domain.Part{domain.ImagePart(image, domain.DetectImageMimeType(image))}
	}

	req.UserInstruction, err = renderPrompt("reasoning_user", uc.prompts.ReasoningUser, promptData{
		HasText:     hasText,
		HasImage:    hasImage,
		RelatedData: related,
	})
	if err != nil {
		return nil, err
	}

	response, err := uc.generator.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("generate diagnosis: %w", err)
	}

	uc.publish(ctx, domain.DiagnosisEvent{
		Kind:     domain.EventKindAnalyze,
		Mode:     mode,
		Text:     input.Text,
		HasImage: input.HasImage(),
		Labels:   labels,
		Response: response,
	})
	return &domain.DiagnosisResult{
		Labels:   labels,
		Response: response,
		Mode:     mode,
		Stage:    domain.StageTerminal,
	}, nil
}

func (uc *DiagnosisUseCase) rank(ctx context.Context, mode domain.DiagnosisMode, input domain.DiagnosisInput) domain.FusedRanking {
	switch mode {
	case domain.ModeImage:
		return uc.imagePipeline(ctx, input.PrimaryImage())
	case domain.ModeText:
		return uc.textPipeline(ctx, input.Text)
	}

	var imageRanking, textRanking domain.FusedRanking
	var g errgroup.Group
	g.Go(func() error {
		imageRanking = uc.imagePipeline(ctx, input.PrimaryImage())
		return nil
	})
	g.Go(func() error {
		textRanking = uc.textPipeline(ctx, input.Text)
		return nil
	})
	_ = g.Wait()

	combined := make([]domain.LabelScore, 0, len(imageRanking)+len(textRanking))
	combined = append(combined, imageRanking...)
	combined = append(combined, textRanking...)
	return ranking.TopLabels(combined, uc.opts.TopLabels, true)
}

func (uc *DiagnosisUseCase) publish(ctx context.Context, event domain.DiagnosisEvent) {
	if uc.events == nil {
		return
	}
	event.ID = uuid.NewString()
	event.CompletedAt = uc.now().UTC()
	if event.Labels == nil {
		event.Labels = domain.FusedRanking{}
	}
	if err := uc.events.PublishDiagnosisCompleted(ctx, event); err != nil {
		slog.Warn("diagnosis_event_publish_failed", "kind", event.Kind, "error", err)
	}
}

func sourceFailed(source string, err error) {
	slog.Warn("retrieval_source_failed", "source", source, "error", err)
}

func headOf(pairs []domain.LabelScore, n int) []domain.LabelScore {
	if n > 0 && len(pairs) > n {
		return pairs[:n]
	}
	return pairs
}

func nonEmpty(s string) bool {
	return strings.TrimSpace(s) != ""
}
