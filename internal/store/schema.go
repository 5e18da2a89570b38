package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied at startup. Statements are idempotent so restarting
// the service against an existing database is safe.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id       TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS data_sources (
		id                TEXT PRIMARY KEY,
		name              TEXT NOT NULL,
		description       TEXT NOT NULL DEFAULT '',
		user_id           TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		source_name       TEXT NOT NULL,
		source_data_type  TEXT NOT NULL,
		source_data_paths JSONB NOT NULL DEFAULT '{}',
		recording_kwargs  JSONB NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id             TEXT PRIMARY KEY,
		identifier     TEXT NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		run_at         TEXT NOT NULL,
		last_run_at    TIMESTAMPTZ NOT NULL,
		status         TEXT NOT NULL,
		data_source_id TEXT NOT NULL REFERENCES data_sources(id) ON DELETE CASCADE,
		user_id        TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		config         JSONB NOT NULL DEFAULT '{}',
		logs           TEXT NOT NULL DEFAULT '',
		output_path    TEXT NOT NULL DEFAULT '',
		UNIQUE (user_id, identifier)
	)`,
	`CREATE INDEX IF NOT EXISTS runs_user_last_run_at_idx ON runs (user_id, last_run_at DESC)`,
}

// EnsureSchema creates the tables the service needs.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
