// Package backup produces and verifies point-in-time copies of the event
// database. Snapshots are taken with VACUUM INTO so readers are never
// blocked, then reopened and checked before they count as good.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sambandhq/samband-ingest/internal/observability"
	"github.com/sambandhq/samband-ingest/internal/store"
)

const filenameLayout = "events_backup_20060102_150405.db"

// Service runs scheduled database backups with post-copy verification and
// age-based retention.
type Service struct {
	store    *store.Store
	dir      string
	keepDays int
	logger   *slog.Logger
	metrics  *observability.Metrics
	clock    clockwork.Clock
}

// Options configures a backup Service.
type Options struct {
	Dir      string
	KeepDays int
	Clock    clockwork.Clock
}

func NewService(st *store.Store, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Service {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	keep := opts.KeepDays
	if keep < 1 {
		keep = 7
	}
	return &Service{
		store:    st,
		dir:      opts.Dir,
		keepDays: keep,
		logger:   logger,
		metrics:  metrics,
		clock:    clock,
	}
}

// Run performs a backup on every interval tick until the context is
// cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("backup loop started", "interval", interval, "dir", s.dir)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("backup loop stopped")
			return
		case <-ticker.Chan():
			if _, err := s.Backup(ctx); err != nil {
				s.logger.Error("scheduled backup failed", "error", err)
			}
		}
	}
}

// Backup snapshots the database into a timestamped file, verifies the copy,
// logs the outcome, and prunes expired backups. A snapshot that fails
// verification is deleted and reported as a failure.
func (s *Service) Backup(ctx context.Context) (string, error) {
	start := s.clock.Now()
	filename := start.UTC().Format(filenameLayout)
	dest := filepath.Join(s.dir, filename)

	size, err := s.backupTo(ctx, dest)
	if err != nil {
		os.Remove(dest)
		if logErr := s.store.AppendBackupLog(ctx, filename, 0, false, err.Error()); logErr != nil {
			s.logger.Error("append backup log failed", "error", logErr)
		}
		s.metrics.BackupAttempts.WithLabelValues("failure").Inc()
		return "", err
	}

	if err := s.store.AppendBackupLog(ctx, filename, size, true, ""); err != nil {
		s.logger.Error("append backup log failed", "error", err)
	}
	s.metrics.BackupAttempts.WithLabelValues("success").Inc()
	s.metrics.BackupSize.Set(float64(size))
	s.metrics.BackupDuration.Observe(s.clock.Since(start).Seconds())

	pruned, err := s.pruneOld()
	if err != nil {
		s.logger.Warn("backup retention pruning failed", "error", err)
	} else if pruned > 0 {
		s.logger.Info("pruned expired backups", "removed", pruned)
	}

	s.logger.Info("backup completed", "file", filename, "size_bytes", size)
	return dest, nil
}

func (s *Service) backupTo(ctx context.Context, dest string) (int64, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return 0, fmt.Errorf("create backup dir: %w", err)
	}
	if err := s.store.CheckpointWAL(ctx); err != nil {
		return 0, fmt.Errorf("checkpoint before backup: %w", err)
	}
	if err := s.store.SnapshotTo(ctx, dest); err != nil {
		return 0, fmt.Errorf("snapshot: %w", err)
	}
	if err := s.verify(ctx, dest); err != nil {
		return 0, fmt.Errorf("verify %s: %w", filepath.Base(dest), err)
	}

	fi, err := os.Stat(dest)
	if err != nil {
		return 0, fmt.Errorf("stat backup: %w", err)
	}
	return fi.Size(), nil
}

// verify reopens the copy read-only, runs an integrity check, and compares
// its event count against the live database.
func (s *Service) verify(ctx context.Context, path string) error {
	copyDB, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open copy: %w", err)
	}
	defer copyDB.Close()

	var result string
	if err := copyDB.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check: %s", result)
	}

	var copied int64
	if err := copyDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&copied); err != nil {
		return fmt.Errorf("count copied events: %w", err)
	}
	live, err := s.store.CountEvents(ctx)
	if err != nil {
		return fmt.Errorf("count live events: %w", err)
	}
	if copied != live {
		return fmt.Errorf("copy has %d events, source has %d", copied, live)
	}
	return nil
}

// pruneOld removes backup files older than the retention window, keyed off
// the timestamp embedded in the filename.
func (s *Service) pruneOld() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	cutoff := s.clock.Now().UTC().AddDate(0, 0, -s.keepDays)

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "events_backup_") || !strings.HasSuffix(name, ".db") {
			continue
		}
		ts, err := time.Parse(filenameLayout, name)
		if err != nil {
			continue
		}
		if ts.Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}
