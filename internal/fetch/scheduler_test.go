package fetch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sambandhq/samband-ingest/internal/domain"
	"github.com/sambandhq/samband-ingest/internal/observability"
	"github.com/sambandhq/samband-ingest/internal/store"
)

type schedulerHarness struct {
	scheduler *Scheduler
	store     *store.Store
	clock     *clockwork.FakeClock
	calls     *atomic.Int64
}

// newHarness wires a scheduler against a real temp-file store and a stubbed
// feed endpoint.
func newHarness(t *testing.T, handler http.HandlerFunc, opts SchedulerOptions) *schedulerHarness {
	t.Helper()

	calls := &atomic.Int64{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	clk := clockwork.NewFakeClockAt(time.Date(2024, 1, 17, 6, 0, 0, 0, time.UTC))
	st, err := store.Open(filepath.Join(t.TempDir(), "events.db"), clk)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := slog.Default()
	client := NewClient(srv.URL, 5*time.Second, logger)

	if opts.Interval == 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.Retries == 0 {
		opts.Retries = 3
	}
	opts.Clock = clk

	s := NewScheduler(st, client, logger, observability.NewMetricsForTesting(), opts)
	return &schedulerHarness{scheduler: s, store: st, clock: clk, calls: calls}
}

func serveFeed(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}
}

const twoEventFeed = `[
	{"id":1,"datetime":"2024-01-17 01:00:00 +01:00","name":"16 januari 20.29, Stöld/inbrott, Nacka","summary":"Inbrott.","type":"Stöld/inbrott","location":{"name":"Nacka"}},
	{"id":2,"datetime":"2024-01-17 05:40:00 +01:00","name":"17 januari 05.25, Brand, Solna","summary":"Brand i container.","type":"Brand","location":{"name":"Solna"}}
]`

func TestRefreshIfNeeded_StoresBatch(t *testing.T) {
	h := newHarness(t, serveFeed(twoEventFeed), SchedulerOptions{})

	result := h.scheduler.RefreshIfNeeded(context.Background())

	assert.True(t, result.Success)
	assert.False(t, result.Skipped)
	assert.Equal(t, 2, result.Fetched)
	assert.Equal(t, 2, result.New)
	assert.Equal(t, 0, result.Updated)

	n, err := h.store.CountEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	entries, err := h.store.RecentFetches(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Success)
	assert.Equal(t, 2, entries[0].New)
}

func TestRefreshIfNeeded_SecondCallWithinIntervalIsNoOp(t *testing.T) {
	h := newHarness(t, serveFeed(twoEventFeed), SchedulerOptions{})
	ctx := context.Background()

	first := h.scheduler.RefreshIfNeeded(ctx)
	require.True(t, first.Success)

	second := h.scheduler.RefreshIfNeeded(ctx)
	assert.True(t, second.Success)
	assert.True(t, second.Skipped)
	assert.Zero(t, second.Fetched)

	assert.Equal(t, int64(1), h.calls.Load(), "second refresh must not hit the network")
}

func TestRefreshIfNeeded_DueAgainAfterInterval(t *testing.T) {
	h := newHarness(t, serveFeed(twoEventFeed), SchedulerOptions{Interval: 5 * time.Minute})
	ctx := context.Background()

	h.scheduler.RefreshIfNeeded(ctx)
	h.clock.Advance(6 * time.Minute)
	result := h.scheduler.RefreshIfNeeded(ctx)

	assert.False(t, result.Skipped)
	assert.Equal(t, 2, result.Unchanged)
	assert.Equal(t, int64(2), h.calls.Load())
}

func TestRefresh_ForcesFetchWithinInterval(t *testing.T) {
	h := newHarness(t, serveFeed(twoEventFeed), SchedulerOptions{})
	ctx := context.Background()

	h.scheduler.RefreshIfNeeded(ctx)
	result := h.scheduler.Refresh(ctx)

	assert.False(t, result.Skipped)
	assert.Equal(t, int64(2), h.calls.Load())
}

func TestRefresh_FailureIsRetriedThenLogged(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}, SchedulerOptions{Retries: 3})
	ctx := context.Background()

	result := h.scheduler.Refresh(ctx)

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, int64(3), h.calls.Load(), "each attempt consumes one retry")

	entries, err := h.store.RecentFetches(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
	assert.NotEmpty(t, entries[0].Error)

	n, err := h.store.CountEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestRefresh_MalformedRecordDoesNotAbortBatch(t *testing.T) {
	feed := `[
		{"id":1,"datetime":"2024-01-17 01:00:00 +01:00","name":"16 januari 20.29, Stöld/inbrott, Nacka","type":"Stöld/inbrott","location":{"name":"Nacka"}},
		{"id":2,"datetime":"","name":"Trasig post","type":"Brand","location":{"name":"Solna"}},
		{"id":3,"datetime":"2024-01-17 02:00:00 +01:00","name":"17 januari 01.45, Misshandel, Umeå","type":"Misshandel","location":{"name":"Umeå"}}
	]`
	h := newHarness(t, serveFeed(feed), SchedulerOptions{})

	result := h.scheduler.Refresh(context.Background())

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Fetched)
	assert.Equal(t, 2, result.New)

	n, err := h.store.CountEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

type capturePublisher struct {
	changes []Change
	err     error
}

func (p *capturePublisher) PublishChanges(_ context.Context, changes []Change) error {
	p.changes = append(p.changes, changes...)
	return p.err
}

func TestRefresh_PublishesNewAndUpdatedOnly(t *testing.T) {
	pub := &capturePublisher{}
	h := newHarness(t, serveFeed(twoEventFeed), SchedulerOptions{Publisher: pub})
	ctx := context.Background()

	h.scheduler.Refresh(ctx)
	require.Len(t, pub.changes, 2)
	assert.Equal(t, domain.OutcomeNew, pub.changes[0].Outcome)

	// Unchanged batch: nothing new to publish.
	h.scheduler.Refresh(ctx)
	assert.Len(t, pub.changes, 2)
}

func TestRefresh_PublishFailureDoesNotFailFetch(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	h := newHarness(t, serveFeed(twoEventFeed), SchedulerOptions{Publisher: pub})

	result := h.scheduler.Refresh(context.Background())

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.New)
}
