package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sambandhq/samband-ingest/internal/domain"
)

// FetchLogEntry is one row of the append-only fetch history.
type FetchLogEntry struct {
	ID        int64  `json:"id"`
	FetchedAt string `json:"fetched_at"`
	Fetched   int    `json:"events_fetched"`
	New       int    `json:"events_new"`
	Updated   int    `json:"events_updated"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// AppendFetchLog records one fetch attempt. Entries are never mutated.
func (s *Store) AppendFetchLog(ctx context.Context, result domain.FetchResult) error {
	var errMsg any
	if result.Error != "" {
		errMsg = result.Error
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fetch_log (fetched_at, events_fetched, events_new, events_updated, success, error_message)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.clock.Now().UTC().Format(time.RFC3339),
		result.Fetched, result.New, result.Updated,
		boolToInt(result.Success), errMsg)
	if err != nil {
		return fmt.Errorf("append fetch log: %w", err)
	}
	return nil
}

// LastFetchTime returns the timestamp of the most recent fetch attempt,
// successful or not, and false when no fetch has been logged yet.
func (s *Store) LastFetchTime(ctx context.Context) (time.Time, bool, error) {
	var fetchedAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT fetched_at FROM fetch_log ORDER BY id DESC LIMIT 1").Scan(&fetchedAt)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last fetch time: %w", err)
	}

	t, err := time.Parse(time.RFC3339, fetchedAt)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse last fetch time %q: %w", fetchedAt, err)
	}
	return t, true, nil
}

// RecentFetches returns the newest fetch log entries, most recent first.
func (s *Store) RecentFetches(ctx context.Context, limit int) ([]FetchLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, fetched_at, events_fetched, events_new, events_updated, success, error_message
		FROM fetch_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent fetches: %w", err)
	}
	defer rows.Close()

	var out []FetchLogEntry
	for rows.Next() {
		var (
			entry   FetchLogEntry
			success int
			errMsg  sql.NullString
		)
		err := rows.Scan(&entry.ID, &entry.FetchedAt, &entry.Fetched,
			&entry.New, &entry.Updated, &success, &errMsg)
		if err != nil {
			return nil, err
		}
		entry.Success = success == 1
		entry.Error = errMsg.String
		out = append(out, entry)
	}
	return out, rows.Err()
}

// PruneFetchLog deletes fetch log entries older than the cutoff and returns
// the number removed. Events are never touched by pruning.
func (s *Store) PruneFetchLog(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM fetch_log WHERE fetched_at < ?",
		olderThan.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("prune fetch log: %w", err)
	}
	return res.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
