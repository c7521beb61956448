// Package db is a secondary, rebuildable accelerator over the Cache's
// canonical JSON state: a reverse index from fingerprint to profile, and an
// append-only event log in which the Cache records its admissions
// (activations and GC runs are not recorded). It is never the
// source of truth — CacheIndex and ProfileIndex JSON documents are — and is
// fully reconstructable from them, following the teacher's
// internal/storage/db package almost directly but repurposed from "the
// installed-mods table of record" to "a read-through accelerator."
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite connection holding the reverse-index and event-log
// tables.
type DB struct {
	*sql.DB
}

// Open opens (creating if absent) the SQLite database at path and runs
// migrations.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	database := &DB{DB: sqlDB}

	if err := database.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return database, nil
}

// Reset drops and recreates every table this package owns. It is always
// safe to throw this database away and rebuild it from the CacheIndex; the
// Cache itself never calls Reset.
func (d *DB) Reset() error {
	statements := []string{
		`DROP TABLE IF EXISTS fingerprint_profiles`,
		`DROP TABLE IF EXISTS events`,
		`DROP TABLE IF EXISTS schema_migrations`,
	}
	for _, stmt := range statements {
		if _, err := d.Exec(stmt); err != nil {
			return fmt.Errorf("dropping table: %w", err)
		}
	}
	return d.migrate()
}
