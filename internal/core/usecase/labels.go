package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/dermafusion/internal/core/domain"
	"github.com/kirillkom/dermafusion/internal/core/labelmatch"
	"github.com/kirillkom/dermafusion/internal/core/ports"
)

// LabelMatchUseCase matches free-form names against the live canonical set.
type LabelMatchUseCase struct {
	taxonomy ports.TaxonomyProvider
}

func NewLabelMatchUseCase(taxonomy ports.TaxonomyProvider) *LabelMatchUseCase {
	return &LabelMatchUseCase{taxonomy: taxonomy}
}

func (uc *LabelMatchUseCase) MatchLabel(ctx context.Context, query string, minScore int) (domain.MatchResult, bool, error) {
	if !nonEmpty(query) {
		return domain.MatchResult{}, false, domain.WrapError(domain.ErrInvalidInput, "match label", errors.New("query is required"))
	}
	canonical, err := uc.taxonomy.ListCanonicalLabels(ctx, true)
	if err != nil {
		return domain.MatchResult{}, false, domain.WrapError(domain.ErrTemporary, "list canonical labels", err)
	}
	match, ok := labelmatch.FindBestMatch(query, canonical, minScore)
	return match, ok, nil
}

// CrossMapImportUseCase maps a foreign label set onto canonical labels and stores the pairs.
type CrossMapImportUseCase struct {
	taxonomy ports.TaxonomyProvider
	writer   ports.CrossMapWriter
}

func NewCrossMapImportUseCase(taxonomy ports.TaxonomyProvider, writer ports.CrossMapWriter) *CrossMapImportUseCase {
	return &CrossMapImportUseCase{taxonomy: taxonomy, writer: writer}
}

// Import matches every row and, unless dryRun is set, upserts the matched pairs.
func (uc *CrossMapImportUseCase) Import(
	ctx context.Context,
	foreignDomainID string,
	rows []domain.ForeignLabel,
	minScore int,
	dryRun bool,
) (*domain.CrossMapImportReport, error) {
	foreignDomainID = strings.TrimSpace(foreignDomainID)
	if foreignDomainID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "import cross maps", errors.New("foreign domain id is required"))
	}

	canonical, err := uc.taxonomy.ListCanonicalLabels(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list canonical labels: %w", err)
	}
	matcher := labelmatch.NewMatcher(canonical)

	report := &domain.CrossMapImportReport{
		Matched:   make([]domain.CrossMap, 0, len(rows)),
		Unmatched: make([]domain.ForeignLabel, 0),
	}
	for _, row := range rows {
		if !nonEmpty(row.DiseaseID) || !nonEmpty(row.Label) {
			report.Unmatched = append(report.Unmatched, row)
			continue
		}
		match, ok := matcher.FindBestMatch(row.Label, minScore)
		if !ok {
			slog.Info("cross_map_row_unmatched", "disease_id", row.DiseaseID, "label", row.Label)
			report.Unmatched = append(report.Unmatched, row)
			continue
		}
		report.Matched = append(report.Matched, domain.CrossMap{
			ForeignDomainID:  foreignDomainID,
			ForeignDiseaseID: strings.TrimSpace(row.DiseaseID),
			CanonicalLabel:   match.MatchedLabel,
		})
	}

	if dryRun || len(report.Matched) == 0 {
		return report, nil
	}
	stored, err := uc.writer.UpsertCrossMaps(ctx, report.Matched)
	if err != nil {
		return nil, fmt.Errorf("upsert cross maps: %w", err)
	}
	report.Stored = stored
	return report, nil
}
