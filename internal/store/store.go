// Package store provides the embedded SQLite record store for field-
// collected forestry trial data.
//
// The store is the sole owner of durable state: trial records with their
// per-record sync flags, operator profiles, and the single-row app state
// that tracks the active profile. All other components interact with
// persisted data only through it.
//
// The database runs in embedded mode with WAL for concurrency. Every
// operation opens, executes, and commits within itself: no transaction
// spans multiple store calls, so a sync tick firing mid-operation can
// never observe a half-applied record.
//
// Data flow:
//  1. The UI collaborator creates/edits trials through the store
//  2. Writes set per-record dirty flags (synced=0 or assess_updated=1)
//  3. The sync engine drains dirty records to the remote endpoint and
//     applies remote deltas back through UpsertFromRemote
//  4. Dirty flags are cleared only on confirmed success
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB wraps the SQLite database connection.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a new database connection at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// If the database doesn't exist, it is created; call InitSchema to create
// the tables. The caller MUST call Close() when done.
//
// Example:
//
//	db, err := store.Open("~/.trialfield/trialfield.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(path string) (*DB, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn: conn,
		path: path,
	}

	// Enable WAL mode for concurrent reads
	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set busy timeout to 5 seconds
	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// RawDB returns the underlying sql.DB connection.
// This is useful for integrating with other libraries that expect *sql.DB.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Path returns the filesystem path of the database file.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	// Checkpoint WAL before closing
	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
//
// This creates the trials, users, and app_state tables along with the
// indexes used by the dirty-record queries. Idempotent - safe to call
// multiple times.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	-- Core tables
	CREATE TABLE IF NOT EXISTS trials (
		id INTEGER PRIMARY KEY AUTOINCREMENT,  -- local only, never synced
		uuid TEXT NOT NULL UNIQUE,
		species TEXT NOT NULL DEFAULT '',
		seedlings INTEGER NOT NULL DEFAULT 0,
		seedlot TEXT NOT NULL DEFAULT '',
		spacing TEXT NOT NULL DEFAULT '',
		site_series TEXT NOT NULL DEFAULT '',
		smr TEXT NOT NULL DEFAULT '',
		snr TEXT NOT NULL DEFAULT '',
		site_factors TEXT NOT NULL DEFAULT '',
		site_prep TEXT NOT NULL DEFAULT '',
		lat REAL NOT NULL DEFAULT 0,
		lon REAL NOT NULL DEFAULT 0,
		timestamp TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		synced INTEGER NOT NULL DEFAULT 0,
		assess_updated INTEGER NOT NULL DEFAULT 0,
		growth_grid TEXT
	);

	CREATE TABLE IF NOT EXISTS users (
		user_uuid TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		username TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Singleton key/value state, currently only current_user_uuid
	CREATE TABLE IF NOT EXISTS app_state (
		key TEXT PRIMARY KEY,
		value TEXT
	);

	-- Indexes for the sync engine's dirty-record queries
	CREATE INDEX IF NOT EXISTS idx_trials_synced ON trials(synced);
	CREATE INDEX IF NOT EXISTS idx_trials_assess ON trials(assess_updated);
	CREATE INDEX IF NOT EXISTS idx_trials_user ON trials(user_id);
	CREATE INDEX IF NOT EXISTS idx_trials_timestamp ON trials(timestamp);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// fmtTime formats a timestamp for storage. All stored timestamps are
// RFC3339 in UTC so lexicographic MAX() matches chronological order.
func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime parses a stored timestamp, returning the zero time when the
// stored value is malformed.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// nullIfEmpty converts an empty string to SQL NULL.
func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
