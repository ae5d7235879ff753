package state

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// MemoryPath opens the store on an in-memory database. Used by tests
// and by runs that disable the on-disk cache.
const MemoryPath = ":memory:"

// Store is the SQLite-backed analysis cache.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// New creates an unopened store. Open must be called before use.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{logger: logger}
}

// Open opens the cache database at path, creating the file and its
// parent directory as needed, and brings the schema up to date.
// Use MemoryPath for an in-memory database.
func (s *Store) Open(path string) error {
	if s.db != nil {
		return fmt.Errorf("database already opened")
	}

	if path != MemoryPath {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create cache directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// The driver gives every :memory: connection its own database, and
	// SQLite allows a single writer anyway, so the pool is pinned to
	// one connection. busy_timeout covers file locking.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if err := MigrateWithDB(db); err != nil {
		db.Close()
		return err
	}

	s.db = db
	s.path = path
	return nil
}

func dsn(path string) string {
	if path == MemoryPath {
		return path
	}
	return fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
}

// Path returns the location the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection. Closing an unopened store is
// a no-op.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Flush checkpoints the write-ahead log into the main database file
// so the cache survives abrupt exits. In-memory databases have
// nothing to flush.
func (s *Store) Flush(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if s.path == MemoryPath {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to checkpoint cache database: %w", err)
	}
	return nil
}

// generateID creates a new UUID.
func generateID() string {
	return uuid.New().String()
}
