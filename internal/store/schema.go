package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the current schema version.
const SchemaVersion = 1

// schemaV1 is the initial schema for the run store.
const schemaV1 = `
-- One row per sampler run
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    model TEXT NOT NULL,
    objective TEXT NOT NULL,  -- 'local_likelihood', 'local_posterior', 'synthetic_likelihood', 'analytic'
    sampler TEXT NOT NULL,    -- 'rwm', 'ula', 'rula'
    dim INTEGER NOT NULL,
    steps INTEGER NOT NULL,
    seed TEXT NOT NULL,       -- uint64 as decimal text
    parent_id TEXT REFERENCES runs(id) ON DELETE SET NULL,
    acceptance_rate REAL,
    final_objective REAL,
    config TEXT,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);

-- Recorded trajectory, one row per step
CREATE TABLE IF NOT EXISTS run_steps (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    step INTEGER NOT NULL,
    current TEXT,     -- JSON array, chain position after the step
    proposed TEXT,    -- JSON array
    objective REAL,
    accepted INTEGER,
    halvings INTEGER,
    PRIMARY KEY (run_id, step)
);

-- Final sampler state for continuation
CREATE TABLE IF NOT EXISTS run_state (
    run_id TEXT PRIMARY KEY REFERENCES runs(id) ON DELETE CASCADE,
    theta TEXT NOT NULL,   -- JSON array
    objective REAL,        -- NULL when not evaluated or non-finite
    gradient TEXT,         -- JSON array
    hessian TEXT,          -- JSON array, row-major n×n
    counter INTEGER NOT NULL
);

-- Schema version
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// InitSchema initializes the database schema.
// It creates all tables and applies migrations as needed.
// Runs integrity validation before migrations on existing databases.
func InitSchema(ctx context.Context, db *sql.DB) error {
	currentVersion, err := getSchemaVersion(ctx, db)
	if err != nil {
		// Schema version table doesn't exist yet, create fresh schema
		if err := createSchema(ctx, db); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		return nil
	}

	if err := ValidateIntegrity(ctx, db); err != nil {
		return fmt.Errorf("database integrity check failed: %w", err)
	}

	if currentVersion < SchemaVersion {
		if err := migrateSchema(ctx, db, currentVersion); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

// getSchemaVersion returns the current schema version from the database.
// Returns 0 and an error if the schema_version table doesn't exist.
func getSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`,
		SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return tx.Commit()
}

// migrateSchema applies migrations from currentVersion to SchemaVersion.
func migrateSchema(ctx context.Context, db *sql.DB, currentVersion int) error {
	for v := currentVersion; v < SchemaVersion; v++ {
		switch v {
		default:
			return fmt.Errorf("no migration from schema version %d", v)
		}
	}
	return nil
}

// ValidateIntegrity runs PRAGMA integrity_check and PRAGMA
// foreign_key_check and returns an error if either reports a problem.
func ValidateIntegrity(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `PRAGMA integrity_check`)
	if err != nil {
		return fmt.Errorf("failed to run integrity_check: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var result string
		if err := rows.Scan(&result); err != nil {
			return fmt.Errorf("failed to scan integrity_check result: %w", err)
		}
		if result != "ok" {
			return fmt.Errorf("integrity_check failed: %s", result)
		}
	}

	fkRows, err := db.QueryContext(ctx, `PRAGMA foreign_key_check`)
	if err != nil {
		return fmt.Errorf("failed to run foreign_key_check: %w", err)
	}
	defer fkRows.Close()

	var fkErrors []string
	for fkRows.Next() {
		var table, rowid, parent, fkid string
		if err := fkRows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return fmt.Errorf("failed to scan foreign_key_check result: %w", err)
		}
		fkErrors = append(fkErrors, fmt.Sprintf("table=%s rowid=%s parent=%s fkid=%s", table, rowid, parent, fkid))
	}
	if len(fkErrors) > 0 {
		return fmt.Errorf("foreign_key_check failed: %v", fkErrors)
	}
	return nil
}
