package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sambandhq/samband-ingest/internal/domain"
)

// UpsertEvent stores one raw feed record, keyed by the upstream id.
//
//   - Unknown id: event_time is derived once, the full row is inserted, and
//     last_updated starts at the publish time. Outcome: New.
//   - Known id, unchanged fingerprint: no write. Outcome: Unchanged.
//   - Known id, changed fingerprint: mutable display fields, raw payload,
//     and fingerprint are rewritten and last_updated advances, while
//     event_time and publish_time stay untouched so chronological order is
//     stable across editorial corrections. Outcome: Updated.
//
// Each call is a single-row write under SQLite's native lock, which keeps
// partially processed batches safe to resume.
func (s *Store) UpsertEvent(ctx context.Context, raw domain.RawEvent) (domain.UpsertOutcome, error) {
	if err := raw.Validate(); err != nil {
		return 0, fmt.Errorf("invalid event: %w", err)
	}
	published, err := domain.ParsePublishTime(raw.Datetime)
	if err != nil {
		return 0, fmt.Errorf("invalid event %d: parse datetime: %w", raw.ID, err)
	}

	fingerprint := domain.Fingerprint(raw)
	payload, err := rawPayload(raw)
	if err != nil {
		return 0, err
	}
	now := s.clock.Now()

	var existing string
	err = s.db.QueryRowContext(ctx,
		"SELECT content_fingerprint FROM events WHERE id = ?", raw.ID).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		return domain.OutcomeNew, s.insertEvent(ctx, raw, published, fingerprint, payload, now)
	case err != nil:
		return 0, fmt.Errorf("look up event %d: %w", raw.ID, err)
	case existing == fingerprint:
		return domain.OutcomeUnchanged, nil
	default:
		return domain.OutcomeUpdated, s.updateEvent(ctx, raw, fingerprint, payload, now)
	}
}

func (s *Store) insertEvent(ctx context.Context, raw domain.RawEvent, published time.Time, fingerprint string, payload []byte, now time.Time) error {
	eventTime := domain.DeriveEventTime(raw, published)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events
			(id, name, summary, url, type, location_name, location_gps,
			 event_time, publish_time, last_updated, content_fingerprint,
			 raw_data, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		raw.ID, raw.Name, raw.Summary, raw.URL, raw.Type,
		raw.Location.Name, raw.Location.GPS,
		eventTime.Format(time.RFC3339),
		published.Format(time.RFC3339),
		published.Format(time.RFC3339),
		fingerprint,
		payload,
		now.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert event %d: %w", raw.ID, err)
	}
	return nil
}

func (s *Store) updateEvent(ctx context.Context, raw domain.RawEvent, fingerprint string, payload []byte, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE events
		SET name = ?, summary = ?, url = ?, type = ?,
		    location_name = ?, location_gps = ?,
		    last_updated = ?, content_fingerprint = ?,
		    raw_data = ?, fetched_at = ?
		WHERE id = ?`,
		raw.Name, raw.Summary, raw.URL, raw.Type,
		raw.Location.Name, raw.Location.GPS,
		now.UTC().Format(time.RFC3339), fingerprint,
		payload,
		now.UTC().Format(time.RFC3339),
		raw.ID)
	if err != nil {
		return fmt.Errorf("update event %d: %w", raw.ID, err)
	}
	return nil
}

// GetEvent returns the stored event for id, or sql.ErrNoRows.
func (s *Store) GetEvent(ctx context.Context, id int64) (domain.Event, error) {
	var (
		e                                   domain.Event
		eventTime, publishTime, lastUpdated string
		fetchedAt                           string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, summary, url, type, location_name, location_gps,
		       event_time, publish_time, last_updated, content_fingerprint,
		       raw_data, fetched_at
		FROM events WHERE id = ?`, id).Scan(
		&e.ID, &e.Name, &e.Summary, &e.URL, &e.Type,
		&e.LocationName, &e.LocationGPS,
		&eventTime, &publishTime, &lastUpdated, &e.Fingerprint,
		&e.RawPayload, &fetchedAt)
	if err != nil {
		return domain.Event{}, err
	}

	e.EventTime, _ = time.Parse(time.RFC3339, eventTime)
	e.PublishTime, _ = time.Parse(time.RFC3339, publishTime)
	e.LastUpdated, _ = time.Parse(time.RFC3339, lastUpdated)
	e.FetchedAt, _ = time.Parse(time.RFC3339, fetchedAt)
	return e, nil
}

// rawPayload returns the verbatim upstream document when the fetch client
// captured one, otherwise a re-serialization of the decoded record.
func rawPayload(raw domain.RawEvent) ([]byte, error) {
	if len(raw.Payload) > 0 {
		return raw.Payload, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("serialize event %d: %w", raw.ID, err)
	}
	return data, nil
}

// parseStoredPayload decodes a stored raw document and its publish
// timestamp, accepting both the feed layout (legacy rows) and RFC 3339.
func parseStoredPayload(rawData []byte, publishTime string) (domain.RawEvent, time.Time, error) {
	var raw domain.RawEvent
	if err := json.Unmarshal(rawData, &raw); err != nil {
		return domain.RawEvent{}, time.Time{}, err
	}

	for _, layout := range []string{domain.PublishTimeLayout, time.RFC3339} {
		if t, err := time.Parse(layout, publishTime); err == nil {
			return raw, t, nil
		}
	}
	if t, err := domain.ParsePublishTime(raw.Datetime); err == nil {
		return raw, t, nil
	}
	return raw, time.Time{}, fmt.Errorf("unparseable publish time %q", publishTime)
}
