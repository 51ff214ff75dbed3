package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// migration is one ordered schema step. Steps run once per store, at open.
type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		name:    "fetch and objects",
		sql: `
CREATE TABLE IF NOT EXISTS fetch (
    id           INTEGER PRIMARY KEY CHECK (id = 1),
    bucket_name  TEXT NOT NULL,
    prefix       TEXT,
    started_at   TEXT NOT NULL,
    ended_at     TEXT,
    record_count INTEGER NOT NULL DEFAULT 0,
    db_size_mb   REAL NOT NULL DEFAULT 0.0,
    status       TEXT NOT NULL CHECK (status IN ('running', 'success', 'error', 'canceled')),
    error        TEXT
);

CREATE TABLE IF NOT EXISTS objects (
    name         TEXT PRIMARY KEY,
    size         INTEGER NOT NULL DEFAULT 0,
    updated      TEXT NOT NULL,
    time_created TEXT,
    custom_time  TEXT
);
CREATE INDEX IF NOT EXISTS idx_objects_name ON objects(name);
CREATE INDEX IF NOT EXISTS idx_objects_time_created ON objects(time_created);
CREATE INDEX IF NOT EXISTS idx_objects_custom_time ON objects(custom_time);
CREATE INDEX IF NOT EXISTS idx_objects_time_created_name ON objects(time_created, name);
CREATE INDEX IF NOT EXISTS idx_objects_custom_time_name ON objects(custom_time, name);
`,
	},
	{
		version: 2,
		name:    "manifest linking",
		sql: `
CREATE TABLE IF NOT EXISTS manifest (
    id            INTEGER PRIMARY KEY CHECK (id = 1),
    source_url    TEXT NOT NULL,
    content_hash  TEXT NOT NULL,
    loaded_at     TEXT NOT NULL,
    pattern_count INTEGER NOT NULL DEFAULT 0,
    status        TEXT NOT NULL DEFAULT 'idle' CHECK (status IN ('idle', 'processing'))
);

CREATE TABLE IF NOT EXISTS manifest_entries (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    group_key   TEXT NOT NULL,
    pretty_name TEXT NOT NULL,
    destination TEXT NOT NULL,
    pattern     TEXT NOT NULL UNIQUE
);

ALTER TABLE objects ADD COLUMN manifest_entry_id INTEGER REFERENCES manifest_entries(id);
CREATE INDEX IF NOT EXISTS idx_objects_manifest_entry ON objects(manifest_entry_id);
`,
	},
}

// schemaVersion is the version a fully migrated store reports.
func schemaVersion() int {
	return migrations[len(migrations)-1].version
}

const migrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TEXT NOT NULL
)`

// migrate brings a store up to the latest schema version.
// Stores written before versioning existed are baselined at version 1
// when their fetch table is already present.
func migrate(ctx context.Context, db *sql.DB) error {
	current, err := currentVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return err
		}
	}
	return nil
}

func currentVersion(ctx context.Context, db *sql.DB) (int, error) {
	hasTable := func(name string) (bool, error) {
		var n int
		err := db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
		return n > 0, err
	}

	tracked, err := hasTable("schema_migrations")
	if err != nil {
		return 0, fmt.Errorf("inspect schema: %w", err)
	}
	if !tracked {
		legacy, err := hasTable("fetch")
		if err != nil {
			return 0, fmt.Errorf("inspect schema: %w", err)
		}
		if _, err := db.ExecContext(ctx, migrationsTable); err != nil {
			return 0, fmt.Errorf("create schema_migrations: %w", err)
		}
		if !legacy {
			return 0, nil
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name, applied_at) VALUES (1, 'baseline', ?)`,
			formatTime(time.Now())); err != nil {
			return 0, fmt.Errorf("baseline schema: %w", err)
		}
		return 1, nil
	}

	var version sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(version.Int64), nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %d: begin: %w", m.version, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
		m.version, m.name, formatTime(time.Now())); err != nil {
		return fmt.Errorf("migration %d: record: %w", m.version, err)
	}
	return tx.Commit()
}
