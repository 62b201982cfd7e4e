package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/dermafusion/internal/core/domain"
)

type DiagnosisLogRepository struct {
	db *sql.DB
}

func NewDiagnosisLogRepository(db *sql.DB) *DiagnosisLogRepository {
	return &DiagnosisLogRepository{db: db}
}

// SaveDiagnosisLog is idempotent on event ID so redelivered events are harmless.
func (r *DiagnosisLogRepository) SaveDiagnosisLog(ctx context.Context, event domain.DiagnosisEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin diagnosis log tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `
INSERT INTO diagnosis_log (id, kind, mode, text_content, has_image, result_text, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO NOTHING
`, event.ID, event.Kind, string(event.Mode), event.Text, event.HasImage, event.Response, event.CompletedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert diagnosis log: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("diagnosis log rows affected: %w", err)
	}
	labels := event.Labels
	if inserted == 0 {
		labels = nil
	}

	for i, item := range labels {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO diagnosis_log_disease (diagnosis_log_id, rank, label, score, disease_id)
VALUES ($1, $2, $3, $4, (
	SELECT d.id FROM diseases d
	JOIN domains s ON s.id = d.domain_id
	WHERE upper(s.domain) = upper($5) AND d.label = $3 AND d.deleted_at IS NULL
	LIMIT 1
))
`, event.ID, i+1, item.Label, item.Score, domain.StandardDomain); err != nil {
			return fmt.Errorf("insert diagnosis log disease %q: %w", item.Label, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit diagnosis log tx: %w", err)
	}
	return nil
}
