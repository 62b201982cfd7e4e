package ports

import (
	"context"

	"github.com/kirillkom/dermafusion/internal/core/domain"
)

// TaxonomyProvider reads the canonical disease taxonomy.
type TaxonomyProvider interface {
	ListCanonicalLabels(ctx context.Context, activeOnly bool) ([]string, error)
	// FindDescriptions returns exact case-insensitive matches, falling back to
	// substring matches in either direction. No match is an empty slice.
	FindDescriptions(ctx context.Context, label string) ([]domain.DiseaseDescription, error)
}

// CrossMapProvider resolves foreign (domain, disease) pairs to canonical labels.
type CrossMapProvider interface {
	LookupCanonical(ctx context.Context, domainID, diseaseID string) (string, bool, error)
}

// CrossMapWriter stores cross-map associations produced by imports.
type CrossMapWriter interface {
	UpsertCrossMaps(ctx context.Context, maps []domain.CrossMap) (int, error)
}

// Embedder builds vectors for query text.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ImageEncoder builds vectors for images.
type ImageEncoder interface {
	Encode(ctx context.Context, images [][]byte) ([][]float32, error)
}

// VisualStore returns nearest labelled images for an image vector, ascending by distance.
type VisualStore interface {
	QueryImages(ctx context.Context, vector []float32, limit int) ([]domain.VisualHit, error)
}

// DocumentStore returns nearest description documents for free text.
type DocumentStore interface {
	QueryDocuments(ctx context.Context, text string, limit int) ([]domain.DocumentHit, error)
}

// KeywordIndex resolves extracted keywords to known graph entities of one type.
type KeywordIndex interface {
	RetrieveKeywords(ctx context.Context, keywords []string, entityType domain.EntityType) (domain.KeywordMatches, error)
}

// GraphStore traverses disease relations in the knowledge graph.
type GraphStore interface {
	// DiseasesByEntity follows relation backwards from the entity to diseases.
	DiseasesByEntity(ctx context.Context, entityID string, relation domain.RelationType, limit int) ([]domain.GraphEdge, error)
}

// Generator produces free text from a generative model.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (string, error)
	Chat(ctx context.Context, req domain.ChatRequest) (string, error)
}

// DiagnosisEventQueue publishes and consumes completed-diagnosis events.
type DiagnosisEventQueue interface {
	PublishDiagnosisCompleted(ctx context.Context, event domain.DiagnosisEvent) error
	SubscribeDiagnosisCompleted(ctx context.Context, handler func(context.Context, domain.DiagnosisEvent) error) error
}

// EventPublisher is the publishing half of DiagnosisEventQueue.
type EventPublisher interface {
	PublishDiagnosisCompleted(ctx context.Context, event domain.DiagnosisEvent) error
}

// DiagnosisLogRepository persists diagnosis events.
type DiagnosisLogRepository interface {
	SaveDiagnosisLog(ctx context.Context, event domain.DiagnosisEvent) error
}
