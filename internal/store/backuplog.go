package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// BackupLogEntry is one row of the append-only backup history.
type BackupLogEntry struct {
	ID        int64  `json:"id"`
	BackupAt  string `json:"backup_at"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// AppendBackupLog records one backup attempt. Entries are never mutated.
func (s *Store) AppendBackupLog(ctx context.Context, filename string, sizeBytes int64, success bool, errMsg string) error {
	var size any
	if sizeBytes > 0 {
		size = sizeBytes
	}
	var msg any
	if errMsg != "" {
		msg = errMsg
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO backup_log (backup_at, filename, size_bytes, success, error_message)
		VALUES (?, ?, ?, ?, ?)`,
		s.clock.Now().UTC().Format(time.RFC3339),
		filename, size, boolToInt(success), msg)
	if err != nil {
		return fmt.Errorf("append backup log: %w", err)
	}
	return nil
}

// LastBackup returns the most recent successful backup, and false when no
// backup has ever succeeded.
func (s *Store) LastBackup(ctx context.Context) (BackupLogEntry, bool, error) {
	var (
		entry BackupLogEntry
		size  sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, backup_at, filename, size_bytes FROM backup_log
		WHERE success = 1 ORDER BY id DESC LIMIT 1`).
		Scan(&entry.ID, &entry.BackupAt, &entry.Filename, &size)
	if err == sql.ErrNoRows {
		return BackupLogEntry{}, false, nil
	}
	if err != nil {
		return BackupLogEntry{}, false, fmt.Errorf("last backup: %w", err)
	}
	entry.SizeBytes = size.Int64
	entry.Success = true
	return entry, true, nil
}
