package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sambandhq/samband-ingest/internal/domain"
)

// A migration is a one-time schema upgrade identified by name. Applied names
// are recorded in schema_migrations and never re-run, which makes schema
// evolution idempotent across restarts.
type migration struct {
	name  string
	apply func(ctx context.Context, tx *sql.Tx) error
}

var migrations = []migration{
	{"0001_initial_schema", migrateInitialSchema},
	{"0002_event_time_and_fingerprint", migrateEventTimeAndFingerprint},
	{"0003_fetch_log_updated_count", migrateFetchLogUpdatedCount},
}

// Migrate applies all pending migrations in order, each inside its own
// transaction, and returns the number applied. An already-recorded
// migration name is never re-run.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`)
	if err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		done, err := s.migrationApplied(ctx, m.name)
		if err != nil {
			return applied, err
		}
		if done {
			continue
		}
		if err := s.runMigration(ctx, m); err != nil {
			return applied, fmt.Errorf("migration %s: %w", m.name, err)
		}
		applied++
	}
	return applied, nil
}

func (s *Store) migrationApplied(ctx context.Context, name string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM schema_migrations WHERE name = ?", name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", name, err)
	}
	return true, nil
}

func (s *Store) runMigration(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := m.apply(ctx, tx); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)",
		m.name, s.clock.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return err
	}
	return tx.Commit()
}

// migrateInitialSchema creates the original table set: events keyed by the
// feed id, plus the append-only fetch and backup logs.
func migrateInitialSchema(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS events (
			id            INTEGER PRIMARY KEY,
			datetime      TEXT NOT NULL,
			name          TEXT NOT NULL,
			summary       TEXT NOT NULL DEFAULT '',
			url           TEXT NOT NULL DEFAULT '',
			type          TEXT NOT NULL,
			location_name TEXT NOT NULL,
			location_gps  TEXT NOT NULL DEFAULT '',
			raw_data      TEXT NOT NULL,
			fetched_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_location ON events(location_name);
		CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);

		CREATE TABLE IF NOT EXISTS fetch_log (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			fetched_at     TEXT NOT NULL,
			events_fetched INTEGER NOT NULL,
			events_new     INTEGER NOT NULL,
			success        INTEGER NOT NULL,
			error_message  TEXT
		);

		CREATE TABLE IF NOT EXISTS backup_log (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			backup_at     TEXT NOT NULL,
			filename      TEXT NOT NULL,
			size_bytes    INTEGER,
			success       INTEGER NOT NULL,
			error_message TEXT
		)`)
	return err
}

// migrateEventTimeAndFingerprint splits the single feed timestamp into
// publish_time and a derived event_time, and adds change-detection columns.
// Existing rows are backfilled from their stored raw payloads; this is the
// one sanctioned re-derivation of event_time.
func migrateEventTimeAndFingerprint(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		ALTER TABLE events RENAME COLUMN datetime TO publish_time;
		ALTER TABLE events ADD COLUMN event_time TEXT NOT NULL DEFAULT '';
		ALTER TABLE events ADD COLUMN last_updated TEXT NOT NULL DEFAULT '';
		ALTER TABLE events ADD COLUMN content_fingerprint TEXT NOT NULL DEFAULT '';

		CREATE INDEX IF NOT EXISTS idx_events_event_time ON events(event_time DESC);
		CREATE INDEX IF NOT EXISTS idx_events_location_event_time ON events(location_name, event_time DESC);
		CREATE INDEX IF NOT EXISTS idx_events_type_event_time ON events(type, event_time DESC)`)
	if err != nil {
		return err
	}
	return backfillEventMetadata(ctx, tx)
}

// backfillEventMetadata derives event_time and content_fingerprint for rows
// created before those columns existed. Rows whose raw payload no longer
// parses are left untouched.
func backfillEventMetadata(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx,
		"SELECT id, publish_time, raw_data FROM events WHERE content_fingerprint = ''")
	if err != nil {
		return err
	}
	defer rows.Close()

	type backfill struct {
		id          int64
		eventTime   string
		publishTime string
		fingerprint string
	}
	var pending []backfill

	for rows.Next() {
		var (
			id          int64
			publishTime string
			rawData     []byte
		)
		if err := rows.Scan(&id, &publishTime, &rawData); err != nil {
			return err
		}

		raw, published, perr := parseStoredPayload(rawData, publishTime)
		if perr != nil {
			// Leave the row as-is rather than writing zero timestamps.
			continue
		}
		eventTime := domain.DeriveEventTime(raw, published)
		pending = append(pending, backfill{
			id:          id,
			eventTime:   eventTime.Format(time.RFC3339),
			publishTime: published.Format(time.RFC3339),
			fingerprint: domain.Fingerprint(raw),
		})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, b := range pending {
		_, err := tx.ExecContext(ctx, `
			UPDATE events
			SET event_time = ?, publish_time = ?, last_updated = ?, content_fingerprint = ?
			WHERE id = ?`,
			b.eventTime, b.publishTime, b.publishTime, b.fingerprint, b.id)
		if err != nil {
			return err
		}
	}
	return nil
}

func migrateFetchLogUpdatedCount(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx,
		"ALTER TABLE fetch_log ADD COLUMN events_updated INTEGER NOT NULL DEFAULT 0")
	return err
}
