// Package store provides durable storage for police events on SQLite.
//
// The database runs in WAL mode: one writer, many concurrent readers, with
// crash recovery through the write-ahead log. The connection pool is capped
// at a single connection so every write executes under SQLite's native lock
// one row at a time.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the SQLite database holding events, fetch log, and backup log.
type Store struct {
	db    *sql.DB
	path  string
	clock clockwork.Clock
}

// Open creates or opens the SQLite database at path, applies pragmas, runs
// an integrity check, and applies pending migrations. A failed integrity
// check or migration is fatal: serving on an inconsistent schema would
// silently corrupt future writes.
//
// Open is idempotent and safe to call against an already-migrated database.
func Open(path string, clock clockwork.Clock) (*Store, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite supports one writer at a time; a single pooled connection
	// avoids SQLITE_BUSY on the write path.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, path: path, clock: clock}

	if err := s.IntegrityCheck(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// IntegrityCheck runs PRAGMA integrity_check and returns an error describing
// the first problem found, or nil when the database is sound.
func (s *Store) IntegrityCheck(ctx context.Context) error {
	return integrityCheck(ctx, s.db)
}

func integrityCheck(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var result string
		if err := rows.Scan(&result); err != nil {
			return fmt.Errorf("integrity check scan: %w", err)
		}
		if result != "ok" {
			return fmt.Errorf("integrity check failed: %s", result)
		}
	}
	return rows.Err()
}

// CheckpointWAL forces buffered WAL frames into the main database file and
// truncates the log. Called before backups so the copy sees every committed
// write.
func (s *Store) CheckpointWAL(ctx context.Context) error {
	var blocked, pagesWritten, pagesRemaining int
	err := s.db.QueryRowContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)").
		Scan(&blocked, &pagesWritten, &pagesRemaining)
	if err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	if blocked != 0 {
		return fmt.Errorf("wal checkpoint blocked by concurrent reader")
	}
	return nil
}

// SnapshotTo writes a point-in-time copy of the database to destPath using
// VACUUM INTO, which produces a consistent standalone database file without
// blocking concurrent readers.
func (s *Store) SnapshotTo(ctx context.Context, destPath string) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("vacuum into %s: %w", destPath, err)
	}
	return nil
}

// CheckReadiness reports whether the database is reachable. Used by the
// readiness probe.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database not reachable: %w", err)
	}
	return nil
}

// CountEvents returns the total number of stored events.
func (s *Store) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}
