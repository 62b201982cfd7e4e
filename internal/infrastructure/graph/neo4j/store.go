// Package neo4j reads disease relations from the medical knowledge graph.
package neo4j

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kirillkom/dermafusion/internal/core/domain"
)

type queryRunner interface {
	ExecuteQuery(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error)
}

type driverRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

func (r driverRunner) ExecuteQuery(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	opts := []neo4j.ExecuteQueryConfigurationOption{}
	if r.database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(r.database))
	}
	return neo4j.ExecuteQuery(ctx, r.driver, query, params, neo4j.EagerResultTransformer, opts...)
}

// entityLabels lists the node label on the far side of each relation that
// points from a Disease. Cypher cannot parameterize labels, so only these are allowed.
var entityLabels = map[domain.RelationType]domain.EntityType{
	domain.RelationHasSymptom:      domain.EntitySymptom,
	domain.RelationAffects:         domain.EntityAnatomy,
	domain.RelationCausedBy:        domain.EntityCause,
	domain.RelationTreatedWith:     domain.EntityTreatment,
	domain.RelationDiagnosedBy:     domain.EntityDiagnosis,
	domain.RelationPreventedBy:     domain.EntityPrevention,
	domain.RelationComplicationOf:  domain.EntityComplication,
	domain.RelationContraindicates: domain.EntityContraindication,
}

type Store struct {
	runner  queryRunner
	closeFn func(context.Context) error
}

func New(ctx context.Context, uri, username, password, database string) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return &Store{
		runner:  driverRunner{driver: driver, database: database},
		closeFn: driver.Close,
	}, nil
}

func newWithRunner(runner queryRunner) *Store {
	return &Store{runner: runner}
}

func (s *Store) Close(ctx context.Context) error {
	if s.closeFn == nil {
		return nil
	}
	return s.closeFn(ctx)
}

// DiseasesByEntity returns diseases linked to the entity through relation.
// SubjectName is the disease and ObjectName the entity.
func (s *Store) DiseasesByEntity(ctx context.Context, entityID string, relation domain.RelationType, limit int) ([]domain.GraphEdge, error) {
	label, ok := entityLabels[relation]
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "graph diseases by entity", fmt.Errorf("unsupported relation %q", relation))
	}
	if strings.TrimSpace(entityID) == "" {
		return []domain.GraphEdge{}, nil
	}
	if limit <= 0 {
		limit = 5
	}

	query := fmt.Sprintf(
		"MATCH (e:%s {id: $id})<-[:%s]-(d:Disease) RETURN d.name AS Disease, e.name AS Entity LIMIT $limit",
		label, relation,
	)
	result, err := s.runner.ExecuteQuery(ctx, query, map[string]any{"id": entityID, "limit": limit})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrTemporary, "graph diseases by entity", err)
	}
	if result == nil {
		return []domain.GraphEdge{}, nil
	}

	out := make([]domain.GraphEdge, 0, len(result.Records))
	for _, record := range result.Records {
		disease := recordString(record, "Disease")
		if disease == "" {
			continue
		}
		out = append(out, domain.GraphEdge{
			SubjectName: disease,
			ObjectName:  recordString(record, "Entity"),
		})
	}
	return out, nil
}

func recordString(record *neo4j.Record, key string) string {
	if record == nil {
		return ""
	}
	v, ok := record.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
