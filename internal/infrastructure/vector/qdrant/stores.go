package qdrant

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/dermafusion/internal/core/domain"
	"github.com/kirillkom/dermafusion/internal/core/ports"
)

const (
	DefaultImageMaxDistance    = 0.5
	DefaultDocumentMaxDistance = 0.5
	DefaultKeywordMaxDistance  = 0.2

	DefaultKeywordsPerQuery = 3
	keywordCandidateFactor  = 9
)

// ImageStore searches reference images by image embedding.
type ImageStore struct {
	client      *Client
	collection  string
	maxDistance float64
}

func NewImageStore(client *Client, collection string, maxDistance float64) *ImageStore {
	if maxDistance <= 0 {
		maxDistance = DefaultImageMaxDistance
	}
	return &ImageStore{client: client, collection: collection, maxDistance: maxDistance}
}

func (s *ImageStore) QueryImages(ctx context.Context, vector []float32, limit int) ([]domain.VisualHit, error) {
	points, err := s.client.search(ctx, s.collection, vector, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.VisualHit, 0, len(points))
	for _, p := range points {
		if p.distance() > s.maxDistance {
			continue
		}
		out = append(out, domain.VisualHit{
			ID:              pointID(p.ID),
			Distance:        p.distance(),
			Label:           getStringPayload(p.Payload, "label"),
			DomainID:        getStringPayload(p.Payload, "domain_id"),
			DomainDiseaseID: getStringPayload(p.Payload, "domain_disease_id"),
		})
	}
	return out, nil
}

// DocumentStore searches disease description documents by text.
type DocumentStore struct {
	client      *Client
	embedder    ports.Embedder
	collection  string
	maxDistance float64
}

func NewDocumentStore(client *Client, embedder ports.Embedder, collection string, maxDistance float64) *DocumentStore {
	if maxDistance <= 0 {
		maxDistance = DefaultDocumentMaxDistance
	}
	return &DocumentStore{client: client, embedder: embedder, collection: collection, maxDistance: maxDistance}
}

func (s *DocumentStore) QueryDocuments(ctx context.Context, text string, limit int) ([]domain.DocumentHit, error) {
	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed document query: %w", err)
	}
	points, err := s.client.search(ctx, s.collection, vector, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.DocumentHit, 0, len(points))
	for _, p := range points {
		if p.distance() > s.maxDistance {
			continue
		}
		out = append(out, domain.DocumentHit{
			Disease:  getStringPayload(p.Payload, "disease"),
			Text:     getStringPayload(p.Payload, "text"),
			Distance: p.distance(),
		})
	}
	return out, nil
}

// KeywordIndex maps extracted keywords onto knowledge-graph entities.
type KeywordIndex struct {
	client      *Client
	embedder    ports.Embedder
	collection  string
	maxDistance float64
	perKeyword  int
}

func NewKeywordIndex(client *Client, embedder ports.Embedder, collection string, maxDistance float64, perKeyword int) *KeywordIndex {
	if maxDistance <= 0 {
		maxDistance = DefaultKeywordMaxDistance
	}
	if perKeyword <= 0 {
		perKeyword = DefaultKeywordsPerQuery
	}
	return &KeywordIndex{
		client:      client,
		embedder:    embedder,
		collection:  collection,
		maxDistance: maxDistance,
		perKeyword:  perKeyword,
	}
}

// RetrieveKeywords over-fetches candidates per keyword, keeps those of the
// requested entity type within the distance threshold and stops at perKeyword.
func (k *KeywordIndex) RetrieveKeywords(ctx context.Context, keywords []string, entityType domain.EntityType) (domain.KeywordMatches, error) {
	result := domain.KeywordMatches{
		Keywords: make([]string, 0, len(keywords)),
		Matches:  make(map[string][]domain.KeywordMatch, len(keywords)),
	}
	for _, keyword := range keywords {
		if _, seen := result.Matches[keyword]; seen {
			continue
		}
		vector, err := k.embedder.EmbedQuery(ctx, keyword)
		if err != nil {
			return domain.KeywordMatches{}, fmt.Errorf("embed keyword %q: %w", keyword, err)
		}
		points, err := k.client.search(ctx, k.collection, vector, k.perKeyword*keywordCandidateFactor)
		if err != nil {
			return domain.KeywordMatches{}, err
		}

		matches := make([]domain.KeywordMatch, 0, k.perKeyword)
		for _, p := range points {
			pointType := getStringPayload(p.Payload, "type")
			if entityType != "" && !strings.Contains(pointType, string(entityType)) {
				continue
			}
			if p.distance() > k.maxDistance {
				continue
			}
			entity := getStringPayload(p.Payload, "entity")
			if entity == "" {
				entity = pointID(p.ID)
			}
			matches = append(matches, domain.KeywordMatch{
				Entity:   entity,
				Type:     domain.EntityType(pointType),
				Docs:     getStringListPayload(p.Payload, "docs"),
				Distance: p.distance(),
			})
			if len(matches) >= k.perKeyword {
				break
			}
		}
		result.Keywords = append(result.Keywords, keyword)
		result.Matches[keyword] = matches
	}
	return result, nil
}
