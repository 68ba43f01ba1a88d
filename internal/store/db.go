package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const currentVersion = 1

// DB wraps a SQLite database connection for issuelens storage.
type DB struct {
	db   *sql.DB
	dims int
}

// Open opens (or creates) a SQLite database at the given path and runs
// migrations. vectorDims is the embedding width the issues table accepts;
// inserts with a different dimensionality are rejected. Use ":memory:" for
// an in-memory database (useful for testing).
func Open(path string, vectorDims int) (*DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	} else {
		dsn = ":memory:?_pragma=foreign_keys(ON)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set connection pool to 1 for SQLite
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &DB{db: sqlDB, dims: vectorDims}
	if err := store.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Conn returns the underlying *sql.DB for advanced use cases.
func (d *DB) Conn() *sql.DB {
	return d.db
}

func (d *DB) migrate() error {
	var version int
	err := d.db.QueryRow("PRAGMA user_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("reading user_version: %w", err)
	}

	if version >= currentVersion {
		return nil
	}

	if version < 1 {
		if err := d.migrateV1(); err != nil {
			return err
		}
	}

	_, err = d.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentVersion))
	if err != nil {
		return fmt.Errorf("setting user_version: %w", err)
	}

	return nil
}

func (d *DB) migrateV1() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS issues (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			github_issue_id INTEGER NOT NULL UNIQUE,
			number INTEGER NOT NULL,
			title TEXT NOT NULL,
			url TEXT NOT NULL,
			state TEXT NOT NULL,
			category TEXT NOT NULL,
			summary TEXT NOT NULL,
			root_cause TEXT,
			solution TEXT NOT NULL,
			confidence TEXT NOT NULL,
			embedding BLOB NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_issues_category ON issues(category)`,
		`CREATE INDEX IF NOT EXISTS idx_issues_confidence ON issues(confidence)`,
		`CREATE TABLE IF NOT EXISTS staging_issues (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sync_id TEXT NOT NULL,
			github_issue_id INTEGER NOT NULL,
			number INTEGER NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			url TEXT NOT NULL,
			comments_count INTEGER NOT NULL,
			comments_fetched INTEGER NOT NULL DEFAULT 0,
			comments TEXT NOT NULL DEFAULT '[]',
			UNIQUE(sync_id, github_issue_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_staging_sync_fetched ON staging_issues(sync_id, comments_fetched)`,
		`CREATE TABLE IF NOT EXISTS issue_stats (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			total INTEGER NOT NULL DEFAULT 0,
			bug INTEGER NOT NULL DEFAULT 0,
			feature_request INTEGER NOT NULL DEFAULT 0,
			question INTEGER NOT NULL DEFAULT 0,
			other INTEGER NOT NULL DEFAULT 0,
			high INTEGER NOT NULL DEFAULT 0,
			medium INTEGER NOT NULL DEFAULT 0,
			low INTEGER NOT NULL DEFAULT 0,
			last_sync TEXT
		)`,
		`INSERT OR IGNORE INTO issue_stats (id) VALUES (1)`,
		`CREATE TABLE IF NOT EXISTS sync_status (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			is_running INTEGER NOT NULL DEFAULT 0,
			started_at TEXT,
			completed_at TEXT,
			processed INTEGER NOT NULL DEFAULT 0,
			total INTEGER NOT NULL DEFAULT 0,
			errors INTEGER NOT NULL DEFAULT 0,
			message TEXT NOT NULL DEFAULT ''
		)`,
		`INSERT OR IGNORE INTO sync_status (id) VALUES (1)`,
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration statement: %w", err)
		}
	}

	return tx.Commit()
}
