package usecase

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/dermafusion/internal/core/domain"
	"github.com/kirillkom/dermafusion/internal/core/ranking"
)

// imagePipeline captions the image, extracts keywords from the caption and
// fuses visual, keyword, document and graph signals.
func (uc *DiagnosisUseCase) imagePipeline(ctx context.Context, image []byte) domain.FusedRanking {
	caption, err := uc.captionImage(ctx, image, domain.DetectImageMimeType(image))
	if err != nil {
		sourceFailed("caption", err)
		caption = ""
	}
	keywords := uc.extractKeywords(ctx, caption)

	var bundle domain.RetrievalBundle
	var symptoms, anatomies domain.KeywordMatches
	var g errgroup.Group
	g.Go(func() error {
		bundle.KeywordDiseaseLabels = uc.keywordDiseaseLabels(ctx, keywords)
		return nil
	})
	g.Go(func() error {
		symptoms, anatomies = uc.symptomAnatomyMatches(ctx, keywords)
		return nil
	})
	g.Go(func() error {
		bundle.ImageLabels = uc.visualLabels(ctx, image)
		return nil
	})
	g.Go(func() error {
		bundle.DocumentLabels = uc.documentLabels(ctx, caption)
		return nil
	})
	_ = g.Wait()

	bundle.GraphLabels = uc.graphLabels(ctx, symptoms, anatomies)
	return uc.fuse("image", bundle)
}

// textPipeline is imagePipeline without the visual source, driven by the user text.
func (uc *DiagnosisUseCase) textPipeline(ctx context.Context, text string) domain.FusedRanking {
	keywords := uc.extractKeywords(ctx, text)

	var bundle domain.RetrievalBundle
	var symptoms, anatomies domain.KeywordMatches
	var g errgroup.Group
	g.Go(func() error {
		bundle.KeywordDiseaseLabels = uc.keywordDiseaseLabels(ctx, keywords)
		return nil
	})
	g.Go(func() error {
		symptoms, anatomies = uc.symptomAnatomyMatches(ctx, keywords)
		return nil
	})
	g.Go(func() error {
		bundle.DocumentLabels = uc.documentLabels(ctx, text)
		return nil
	})
	_ = g.Wait()

	bundle.GraphLabels = uc.graphLabels(ctx, symptoms, anatomies)
	return uc.fuse("text", bundle)
}

func (uc *DiagnosisUseCase) fuse(pipeline string, bundle domain.RetrievalBundle) domain.FusedRanking {
	slog.Debug("retrieval_bundle",
		"pipeline", pipeline,
		"image_labels", len(bundle.ImageLabels),
		"graph_labels", len(bundle.GraphLabels),
		"document_labels", len(bundle.DocumentLabels),
		"keyword_disease_labels", len(bundle.KeywordDiseaseLabels),
	)
	if bundle.Empty() {
		return domain.FusedRanking{}
	}
	return ranking.FuseBundle(bundle, uc.opts.TopLabels)
}
