package store

import (
	"context"
	"fmt"
	"os"
)

// DatabaseInfo summarizes store health for operational dashboards.
type DatabaseInfo struct {
	TotalEvents     int64           `json:"total_events"`
	UniqueLocations int64           `json:"unique_locations"`
	OldestEvent     string          `json:"oldest_event,omitempty"`
	NewestEvent     string          `json:"newest_event,omitempty"`
	SizeBytes       int64           `json:"database_size_bytes"`
	LastFetch       *FetchLogEntry  `json:"last_fetch,omitempty"`
	LastBackup      *BackupLogEntry `json:"last_backup,omitempty"`
}

// Info gathers row counts, the stored date range, file size, and the most
// recent fetch and backup metadata.
func (s *Store) Info(ctx context.Context) (DatabaseInfo, error) {
	var info DatabaseInfo

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT location_name),
		       COALESCE(MIN(event_time), ''), COALESCE(MAX(event_time), '')
		FROM events`).
		Scan(&info.TotalEvents, &info.UniqueLocations, &info.OldestEvent, &info.NewestEvent)
	if err != nil {
		return DatabaseInfo{}, fmt.Errorf("database info: %w", err)
	}

	if fi, err := os.Stat(s.path); err == nil {
		info.SizeBytes = fi.Size()
	}

	fetches, err := s.RecentFetches(ctx, 1)
	if err != nil {
		return DatabaseInfo{}, err
	}
	if len(fetches) > 0 {
		info.LastFetch = &fetches[0]
	}

	backup, ok, err := s.LastBackup(ctx)
	if err != nil {
		return DatabaseInfo{}, err
	}
	if ok {
		info.LastBackup = &backup
	}

	return info, nil
}
