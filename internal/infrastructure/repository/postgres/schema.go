package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const schemaLockID int64 = 2026101901

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the taxonomy, cross-map and diagnosis log tables.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS domains (
	id TEXT PRIMARY KEY,
	domain TEXT NOT NULL,
	description TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	deleted_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS diseases (
	id TEXT PRIMARY KEY,
	label TEXT NOT NULL,
	domain_id TEXT NOT NULL REFERENCES domains(id),
	description TEXT,
	included_in_diagnosis BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	deleted_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_diseases_domain_label ON diseases(domain_id, label);

CREATE TABLE IF NOT EXISTS disease_domain_crossmap (
	id TEXT PRIMARY KEY,
	disease_id_1 TEXT NOT NULL REFERENCES diseases(id),
	domain_id_1 TEXT NOT NULL REFERENCES domains(id),
	disease_id_2 TEXT NOT NULL,
	domain_id_2 TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (domain_id_2, disease_id_2)
);

CREATE TABLE IF NOT EXISTS diagnosis_log (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	mode TEXT,
	text_content TEXT,
	has_image BOOLEAN NOT NULL DEFAULT FALSE,
	result_text TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_diagnosis_log_created_at ON diagnosis_log(created_at DESC);

CREATE TABLE IF NOT EXISTS diagnosis_log_disease (
	diagnosis_log_id TEXT NOT NULL REFERENCES diagnosis_log(id) ON DELETE CASCADE,
	rank INTEGER NOT NULL,
	label TEXT NOT NULL,
	score DOUBLE PRECISION NOT NULL,
	disease_id TEXT REFERENCES diseases(id),
	PRIMARY KEY (diagnosis_log_id, rank)
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
