package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

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

// EnsureSchema bootstraps the tables used by this service.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026051402)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	original_filename TEXT NOT NULL,
	normalized_key TEXT NOT NULL,
	scan_type TEXT NOT NULL,
	status TEXT NOT NULL,
	assigned_staff_id TEXT,
	assigned_at TIMESTAMPTZ,
	similarity_report_path TEXT,
	ai_report_path TEXT,
	similarity_percentage DOUBLE PRECISION,
	ai_percentage DOUBLE PRECISION,
	needs_review BOOLEAN NOT NULL DEFAULT FALSE,
	remarks TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_normalized_key ON documents(normalized_key);
CREATE INDEX IF NOT EXISTS idx_documents_assigned_staff ON documents(assigned_staff_id) WHERE assigned_staff_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS unmatched_reports (
	id TEXT PRIMARY KEY,
	batch_id TEXT NOT NULL,
	file_name TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	detected_type TEXT,
	detected_percentage DOUBLE PRECISION,
	reason TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_unmatched_reports_batch ON unmatched_reports(batch_id);

CREATE TABLE IF NOT EXISTS report_batches (
	id TEXT PRIMARY KEY,
	submitted_by TEXT NOT NULL,
	status TEXT NOT NULL,
	files JSONB NOT NULL DEFAULT '[]'::jsonb,
	assignments JSONB,
	result JSONB,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS staff_settings (
	staff_id TEXT PRIMARY KEY,
	max_concurrent_files INTEGER NOT NULL,
	time_limit_minutes INTEGER NOT NULL
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
