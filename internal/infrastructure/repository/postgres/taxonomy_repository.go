package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kirillkom/dermafusion/internal/core/domain"
)

// standardDiseases selects live diseases of the canonical domain.
const standardDiseases = `
FROM diseases d
JOIN domains s ON s.id = d.domain_id
WHERE upper(s.domain) = upper($1)
	AND s.deleted_at IS NULL
	AND d.deleted_at IS NULL
`

// TaxonomyRepository reads the canonical label set and maintains cross-domain mappings.
type TaxonomyRepository struct {
	db             *sql.DB
	standardDomain string
}

func NewTaxonomyRepository(db *sql.DB) *TaxonomyRepository {
	return &TaxonomyRepository{db: db, standardDomain: domain.StandardDomain}
}

func (r *TaxonomyRepository) ListCanonicalLabels(ctx context.Context, activeOnly bool) ([]string, error) {
	query := "SELECT DISTINCT d.label" + standardDiseases
	if activeOnly {
		query += "\tAND d.included_in_diagnosis\n"
	}
	query += "ORDER BY d.label"

	rows, err := r.db.QueryContext(ctx, query, r.standardDomain)
	if err != nil {
		return nil, fmt.Errorf("list canonical labels: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, fmt.Errorf("scan canonical label: %w", err)
		}
		out = append(out, label)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate canonical labels: %w", err)
	}
	return out, nil
}

// FindDescriptions returns case-insensitive exact matches, falling back to
// labels that contain or are contained in the query.
func (r *TaxonomyRepository) FindDescriptions(ctx context.Context, label string) ([]domain.DiseaseDescription, error) {
	exact, err := r.queryDescriptions(ctx, "\tAND lower(d.label) = lower($2)\n", label)
	if err != nil {
		return nil, err
	}
	if len(exact) > 0 {
		return exact, nil
	}
	return r.queryDescriptions(ctx,
		"\tAND (strpos(lower(d.label), lower($2)) > 0 OR strpos(lower($2), lower(d.label)) > 0)\n",
		label,
	)
}

func (r *TaxonomyRepository) queryDescriptions(ctx context.Context, filter, label string) ([]domain.DiseaseDescription, error) {
	query := "SELECT d.label, COALESCE(d.description, '')" + standardDiseases + filter + "ORDER BY d.label"
	rows, err := r.db.QueryContext(ctx, query, r.standardDomain, label)
	if err != nil {
		return nil, fmt.Errorf("find disease descriptions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.DiseaseDescription, 0)
	for rows.Next() {
		var d domain.DiseaseDescription
		if err := rows.Scan(&d.Label, &d.Description); err != nil {
			return nil, fmt.Errorf("scan disease description: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate disease descriptions: %w", err)
	}
	return out, nil
}

// LookupCanonical resolves a foreign (domain, disease) pair to its canonical label.
func (r *TaxonomyRepository) LookupCanonical(ctx context.Context, domainID, diseaseID string) (string, bool, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT d.label
FROM disease_domain_crossmap m
JOIN diseases d ON d.id = m.disease_id_1
JOIN domains s ON s.id = m.domain_id_1
WHERE m.domain_id_2 = $1
	AND m.disease_id_2 = $2
	AND upper(s.domain) = upper($3)
	AND d.deleted_at IS NULL
LIMIT 1
`, domainID, diseaseID, r.standardDomain)

	var label string
	if err := row.Scan(&label); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("lookup cross map %s/%s: %w", domainID, diseaseID, err)
	}
	return label, true, nil
}

// UpsertCrossMaps stores every pair whose canonical label exists and returns
// how many rows were written.
func (r *TaxonomyRepository) UpsertCrossMaps(ctx context.Context, maps []domain.CrossMap) (int, error) {
	if len(maps) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin cross map tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stored := 0
	for _, m := range maps {
		res, err := tx.ExecContext(ctx, `
INSERT INTO disease_domain_crossmap (id, disease_id_1, domain_id_1, disease_id_2, domain_id_2, updated_at)
SELECT $1, d.id, d.domain_id, $2, $3, now()
FROM diseases d
JOIN domains s ON s.id = d.domain_id
WHERE upper(s.domain) = upper($4)
	AND d.label = $5
	AND d.deleted_at IS NULL
LIMIT 1
ON CONFLICT (domain_id_2, disease_id_2) DO UPDATE
SET disease_id_1 = EXCLUDED.disease_id_1,
	domain_id_1 = EXCLUDED.domain_id_1,
	updated_at = EXCLUDED.updated_at
`, uuid.NewString(), m.ForeignDiseaseID, m.ForeignDomainID, r.standardDomain, m.CanonicalLabel)
		if err != nil {
			return 0, fmt.Errorf("upsert cross map %s/%s: %w", m.ForeignDomainID, m.ForeignDiseaseID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("cross map rows affected: %w", err)
		}
		stored += int(affected)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit cross map tx: %w", err)
	}
	return stored, nil
}
