// Package db opens the SQLite database used by the sqlite baseline backend.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const SCHEMA_VERSION = "2"

type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema.
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS store_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create store_meta table: %w", err)
	}

	// one row per (group, member); value keeps the exact decimal text
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS group_baselines (
			group_id TEXT NOT NULL,
			member_id TEXT NOT NULL,
			value TEXT NOT NULL,
			unit TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (group_id, member_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create group_baselines table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS group_totals (
			group_id TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			unit TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			seeding INTEGER NOT NULL DEFAULT 0
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create group_totals table: %w", err)
	}

	// databases created before seeding was tracked
	if err := addColumnIfMissing(db, "group_totals", "seeding", "INTEGER NOT NULL DEFAULT 0"); err != nil {
		return err
	}

	_, err = db.Exec(`
		INSERT INTO store_meta (key, value) VALUES ('schema_version', ?)
		ON CONFLICT(key) DO NOTHING;
	`, SCHEMA_VERSION)
	if err != nil {
		return fmt.Errorf("failed to write schema version: %w", err)
	}

	return nil
}

func addColumnIfMissing(db *sql.DB, table, column, definition string) error {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)); err != nil {
		return fmt.Errorf("failed to add %s.%s: %w", table, column, err)
	}
	return nil
}

// SchemaVersion returns the version recorded when the database was created.
func (db *DB) SchemaVersion() (string, error) {
	var v string
	err := db.QueryRow(`SELECT value FROM store_meta WHERE key = 'schema_version'`).Scan(&v)
	return v, err
}

// HasTable reports whether a table exists.
func (db *DB) HasTable(name string) (bool, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	return n > 0, err
}
