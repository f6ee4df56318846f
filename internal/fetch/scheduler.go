package fetch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sambandhq/samband-ingest/internal/domain"
	"github.com/sambandhq/samband-ingest/internal/observability"
	"github.com/sambandhq/samband-ingest/internal/store"
)

// FeedClient retrieves the current feed batch.
type FeedClient interface {
	Fetch(ctx context.Context) ([]domain.RawEvent, error)
}

// Change is one event whose stored content changed during a refresh.
type Change struct {
	Raw     domain.RawEvent
	Outcome domain.UpsertOutcome
}

// ChangePublisher forwards changed events to a downstream consumer.
type ChangePublisher interface {
	PublishChanges(ctx context.Context, changes []Change) error
}

// Scheduler decides when a refresh is due and drives the upsert engine over
// fetched batches.
//
// Refresh attempts are serialized by a mutex so concurrent callers never
// trigger duplicate fetches against the upstream feed. A failed fetch
// degrades freshness, never availability: callers keep serving whatever is
// already stored.
type Scheduler struct {
	store     *store.Store
	client    FeedClient
	publisher ChangePublisher // nil when downstream publishing is disabled
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock

	interval   time.Duration
	retries    int
	retryDelay time.Duration

	mu sync.Mutex
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	Interval   time.Duration
	Retries    int
	RetryDelay time.Duration
	Publisher  ChangePublisher
	Clock      clockwork.Clock
}

// NewScheduler creates a Scheduler over the given store and feed client.
func NewScheduler(st *store.Store, client FeedClient, logger *slog.Logger, metrics *observability.Metrics, opts SchedulerOptions) *Scheduler {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	retries := opts.Retries
	if retries < 1 {
		retries = 1
	}
	return &Scheduler{
		store:      st,
		client:     client,
		publisher:  opts.Publisher,
		logger:     logger,
		metrics:    metrics,
		clock:      clock,
		interval:   opts.Interval,
		retries:    retries,
		retryDelay: opts.RetryDelay,
	}
}

// RefreshIfNeeded fetches and stores the feed unless the most recent fetch
// log entry is younger than the configured interval, in which case it
// returns immediately with zero counts. Safe to call on every page load.
func (s *Scheduler) RefreshIfNeeded(ctx context.Context) domain.FetchResult {
	return s.refresh(ctx, false)
}

// Refresh fetches and stores the feed regardless of when the last fetch
// ran. Used by the administrative trigger endpoint.
func (s *Scheduler) Refresh(ctx context.Context) domain.FetchResult {
	return s.refresh(ctx, true)
}

// Run drives RefreshIfNeeded on a ticker until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("fetch scheduler stopping", "reason", ctx.Err())
			return
		case <-ticker.Chan():
			s.RefreshIfNeeded(ctx)
		}
	}
}

func (s *Scheduler) refresh(ctx context.Context, force bool) domain.FetchResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !force && !s.due(ctx) {
		s.metrics.FetchAttempts.WithLabelValues("skipped").Inc()
		return domain.FetchResult{Skipped: true, Success: true}
	}

	start := s.clock.Now()
	events, err := s.fetchWithRetries(ctx)
	if err != nil {
		s.logger.Error("feed fetch failed", "error", err, "attempts", s.retries)
		result := domain.FetchResult{Success: false, Error: err.Error()}
		if logErr := s.store.AppendFetchLog(ctx, result); logErr != nil {
			s.logger.Error("append fetch log failed", "error", logErr)
		}
		s.metrics.FetchAttempts.WithLabelValues("failure").Inc()
		return result
	}

	result := s.storeBatch(ctx, events)
	s.metrics.FetchDuration.Observe(s.clock.Since(start).Seconds())
	s.metrics.FetchAttempts.WithLabelValues("success").Inc()
	s.metrics.LastFetchSuccess.Set(float64(s.clock.Now().Unix()))

	if total, err := s.store.CountEvents(ctx); err == nil {
		s.metrics.StoredEvents.Set(float64(total))
	}

	s.logger.Info("feed refreshed",
		"fetched", result.Fetched,
		"new", result.New,
		"updated", result.Updated,
		"unchanged", result.Unchanged,
		"duration", s.clock.Since(start))
	return result
}

// due consults the fetch log for the most recent attempt. A log read
// failure counts as due so a broken log never wedges fetching.
func (s *Scheduler) due(ctx context.Context) bool {
	last, ok, err := s.store.LastFetchTime(ctx)
	if err != nil {
		s.logger.Warn("last fetch time lookup failed", "error", err)
		return true
	}
	if !ok {
		return true
	}
	return s.clock.Since(last) >= s.interval
}

// fetchWithRetries calls the feed up to the configured number of attempts
// with a fixed delay between failures. A timed-out attempt consumes one
// retry.
func (s *Scheduler) fetchWithRetries(ctx context.Context) ([]domain.RawEvent, error) {
	var lastErr error
	for attempt := 1; attempt <= s.retries; attempt++ {
		events, err := s.client.Fetch(ctx)
		if err == nil {
			return events, nil
		}
		lastErr = err
		s.logger.Warn("feed fetch attempt failed", "attempt", attempt, "error", err)

		if attempt < s.retries && !sleepWithContext(ctx, s.retryDelay) {
			break
		}
	}
	return nil, lastErr
}

// storeBatch upserts every record in the batch one row at a time. A record
// that fails validation or parsing is skipped and never aborts the rest;
// rows already upserted before an interruption remain correctly upserted.
func (s *Scheduler) storeBatch(ctx context.Context, events []domain.RawEvent) domain.FetchResult {
	result := domain.FetchResult{Fetched: len(events), Success: true}
	s.metrics.EventsFetched.Add(float64(len(events)))

	var changes []Change
	for _, raw := range events {
		outcome, err := s.store.UpsertEvent(ctx, raw)
		if err != nil {
			s.logger.Warn("skipping event", "id", raw.ID, "error", err)
			s.metrics.RecordsSkipped.Inc()
			continue
		}
		switch outcome {
		case domain.OutcomeNew:
			result.New++
			s.metrics.EventsNew.Inc()
			changes = append(changes, Change{Raw: raw, Outcome: outcome})
		case domain.OutcomeUpdated:
			result.Updated++
			s.metrics.EventsUpdated.Inc()
			changes = append(changes, Change{Raw: raw, Outcome: outcome})
		case domain.OutcomeUnchanged:
			result.Unchanged++
			s.metrics.EventsUnchanged.Inc()
		}
	}

	if err := s.store.AppendFetchLog(ctx, result); err != nil {
		s.logger.Error("append fetch log failed", "error", err)
	}

	// Publishing is best-effort: a broken sink must not fail the refresh.
	if s.publisher != nil && len(changes) > 0 {
		if err := s.publisher.PublishChanges(ctx, changes); err != nil {
			s.logger.Error("publish changes failed", "error", err, "changes", len(changes))
			s.metrics.PublishErrors.Inc()
		} else {
			s.metrics.PublishedEvents.Add(float64(len(changes)))
		}
	}

	return result
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
