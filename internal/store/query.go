package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventFilter narrows event listings. Zero values mean "no filter".
type EventFilter struct {
	Location string // exact match on location_name
	Type     string // exact match on type
	Date     string // event_time prefix: YYYY, YYYY-MM, or YYYY-MM-DD
	From     string // inclusive lower bound, YYYY-MM-DD
	To       string // inclusive upper bound, YYYY-MM-DD
	Query    string // free-text search across name, summary, location_name
	Limit    int
	Offset   int
	Sort     string // "asc" or "desc", default "desc"
	SortBy   string // one of sortColumns, default "event_time"
}

// sortColumns is the explicit safelist of orderable columns. Sort targets
// are resolved through this map, never interpolated from caller strings.
var sortColumns = map[string]string{
	"event_time":   "event_time",
	"publish_time": "publish_time",
	"last_updated": "last_updated",
}

// ValidSortColumn reports whether name is an allowed sort target.
func ValidSortColumn(name string) bool {
	_, ok := sortColumns[name]
	return ok
}

func (f EventFilter) orderBy() (string, error) {
	column := "event_time"
	if f.SortBy != "" {
		c, ok := sortColumns[f.SortBy]
		if !ok {
			return "", fmt.Errorf("unknown sort column %q", f.SortBy)
		}
		column = c
	}
	direction := "DESC"
	if strings.EqualFold(f.Sort, "asc") {
		direction = "ASC"
	}
	return column + " " + direction, nil
}

func (f EventFilter) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.Location != "" {
		clauses = append(clauses, "location_name = ?")
		args = append(args, f.Location)
	}
	if f.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, f.Type)
	}
	if f.Date != "" {
		clauses = append(clauses, "event_time LIKE ?")
		args = append(args, f.Date+"%")
	}
	if f.From != "" {
		clauses = append(clauses, "event_time >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		clauses = append(clauses, "event_time <= ?")
		args = append(args, f.To+"T23:59:59")
	}
	if f.Query != "" {
		clauses = append(clauses, "(name LIKE ? OR summary LIKE ? OR location_name LIKE ?)")
		pattern := "%" + f.Query + "%"
		args = append(args, pattern, pattern, pattern)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListEvents returns matching events as raw feed documents, preserving the
// upstream shape for feed-compatible responses.
func (s *Store) ListEvents(ctx context.Context, f EventFilter) ([]json.RawMessage, error) {
	order, err := f.orderBy()
	if err != nil {
		return nil, err
	}
	where, args := f.where()

	limit := f.Limit
	if limit <= 0 {
		limit = 500
	}
	args = append(args, limit, f.Offset)

	query := "SELECT raw_data FROM events" + where + " ORDER BY " + order + " LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]json.RawMessage, 0, limit)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, json.RawMessage(raw))
	}
	return events, rows.Err()
}

// CountFiltered returns the number of events matching the filter, ignoring
// pagination.
func (s *Store) CountFiltered(ctx context.Context, f EventFilter) (int64, error) {
	where, args := f.where()
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events"+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// ValueCount pairs a distinct column value with its event count.
type ValueCount struct {
	Value string `json:"name"`
	Count int64  `json:"count"`
}

// Locations returns all distinct location names with event counts, most
// frequent first.
func (s *Store) Locations(ctx context.Context) ([]ValueCount, error) {
	return s.valueCounts(ctx, "location_name")
}

// Types returns all distinct event categories with counts, most frequent first.
func (s *Store) Types(ctx context.Context) ([]ValueCount, error) {
	return s.valueCounts(ctx, "type")
}

func (s *Store) valueCounts(ctx context.Context, column string) ([]ValueCount, error) {
	// column is one of two compile-time constants, never caller input.
	query := fmt.Sprintf(
		"SELECT %s, COUNT(*) FROM events GROUP BY %s ORDER BY COUNT(*) DESC", column, column)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("group by %s: %w", column, err)
	}
	defer rows.Close()

	var out []ValueCount
	for rows.Next() {
		var vc ValueCount
		if err := rows.Scan(&vc.Value, &vc.Count); err != nil {
			return nil, err
		}
		out = append(out, vc)
	}
	return out, rows.Err()
}

// Stats aggregates event counts along several axes, optionally restricted
// to a single location.
type Stats struct {
	Total      int64            `json:"total"`
	ByType     map[string]int64 `json:"by_type"`
	ByMonth    map[string]int64 `json:"by_month"`
	ByHour     map[string]int64 `json:"by_hour"`
	ByWeekday  map[string]int64 `json:"by_weekday"`
	Last7Days  int64            `json:"last_7_days"`
	Last30Days int64            `json:"last_30_days"`
	Oldest     string           `json:"oldest,omitempty"`
	Latest     string           `json:"latest,omitempty"`
}

// EventStats computes aggregate statistics over event_time. Hour and
// weekday buckets use SQLite's strftime on the stored RFC 3339 timestamps;
// weekday 0 is Sunday.
func (s *Store) EventStats(ctx context.Context, location string) (Stats, error) {
	where := ""
	var args []any
	if location != "" {
		where = " WHERE location_name = ?"
		args = []any{location}
	}

	stats := Stats{
		ByType:    map[string]int64{},
		ByMonth:   map[string]int64{},
		ByHour:    map[string]int64{},
		ByWeekday: map[string]int64{},
	}

	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events"+where, args...).Scan(&stats.Total)
	if err != nil {
		return Stats{}, fmt.Errorf("stats total: %w", err)
	}

	if err := s.groupInto(ctx, "type", where, args, stats.ByType); err != nil {
		return Stats{}, err
	}
	if err := s.groupInto(ctx, "strftime('%Y-%m', event_time)", where, args, stats.ByMonth); err != nil {
		return Stats{}, err
	}
	if err := s.groupInto(ctx, "strftime('%H', event_time)", where, args, stats.ByHour); err != nil {
		return Stats{}, err
	}
	if err := s.groupInto(ctx, "strftime('%w', event_time)", where, args, stats.ByWeekday); err != nil {
		return Stats{}, err
	}

	now := s.clock.Now()
	for _, window := range []struct {
		days int
		dest *int64
	}{
		{7, &stats.Last7Days},
		{30, &stats.Last30Days},
	} {
		cutoff := now.AddDate(0, 0, -window.days).Format(time.RFC3339)
		query := "SELECT COUNT(*) FROM events" + where
		wargs := args
		if where == "" {
			query += " WHERE event_time >= ?"
		} else {
			query += " AND event_time >= ?"
		}
		wargs = append(wargs, cutoff)
		if err := s.db.QueryRowContext(ctx, query, wargs...).Scan(window.dest); err != nil {
			return Stats{}, fmt.Errorf("stats window: %w", err)
		}
	}

	err = s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MIN(event_time), ''), COALESCE(MAX(event_time), '') FROM events"+where,
		args...).Scan(&stats.Oldest, &stats.Latest)
	if err != nil {
		return Stats{}, fmt.Errorf("stats range: %w", err)
	}

	return stats, nil
}

func (s *Store) groupInto(ctx context.Context, expr, where string, args []any, dest map[string]int64) error {
	// expr is one of four compile-time constants, never caller input.
	query := fmt.Sprintf("SELECT %s, COUNT(*) FROM events%s GROUP BY 1", expr, where)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("stats group by %s: %w", expr, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   sql.NullString
			count int64
		)
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		if key.Valid {
			dest[key.String] = count
		}
	}
	return rows.Err()
}
