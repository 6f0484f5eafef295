package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"      // postgres driver, for installations with a server
	_ "modernc.org/sqlite"     // pure-go sqlite driver, the default local store
)

// Dialect identifies the SQL engine behind the shared *sql.DB. Queries use
// $N placeholders, which both engines accept; only DDL and catalog lookups
// differ per dialect.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Config selects and locates the store.
type Config struct {
	Driver string // "sqlite" (default) or "postgres"
	Path   string // sqlite database file
	DSN    string // postgres connection string
}

// Open connects to the configured store and verifies the connection.
// For sqlite the parent directory of the database file is created.
func Open(cfg Config) (*sql.DB, Dialect, error) {
	switch cfg.Driver {
	case "", string(DialectSQLite):
		path := cfg.Path
		if path == "" {
			path = "patients.db"
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
				return nil, "", fmt.Errorf("create store dir: %w", err)
			}
		}
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, "", fmt.Errorf("open sqlite: %w", err)
		}
		// A single local writer; more connections only invite SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		if err := db.Ping(); err != nil {
			return nil, "", fmt.Errorf("ping sqlite: %w", err)
		}
		return db, DialectSQLite, nil

	case string(DialectPostgres):
		db, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, "", fmt.Errorf("open postgres: %w", err)
		}
		if err := db.Ping(); err != nil {
			return nil, "", fmt.Errorf("ping postgres: %w", err)
		}
		return db, DialectPostgres, nil

	default:
		return nil, "", fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// Close closes the database handle, tolerating a nil one.
func Close(db *sql.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}
