// Package store provides SQLite-backed persistence for cases, artifact
// packs, the activity log, case memory snapshots, and the procurement
// data tables queried by the retrieval and analytics phases.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"caseflow/pkg/logx"
)

// Store wraps a SQLite connection. One Store per process; SQLite has a
// single writer, so the pool is pinned to one connection.
type Store struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open opens (or creates) the database at dbPath and brings the schema
// to the current version.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initializeSchemaWithMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: logx.NewLogger("store")}
	s.logger.Info("database initialized: %s", dbPath)
	return s, nil
}

// OpenInMemory opens a fresh in-memory database. Used by tests and the
// CLI demo mode.
func OpenInMemory() (*Store, error) {
	return Open(":memory:")
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// DB exposes the raw connection for schema inspection in tests.
func (s *Store) DB() *sql.DB { return s.db }
