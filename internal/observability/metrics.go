package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingest service.
type Metrics struct {
	FetchAttempts    *prometheus.CounterVec // labels: outcome={success,failure,skipped}
	FetchDuration    prometheus.Histogram
	EventsFetched    prometheus.Counter
	EventsNew        prometheus.Counter
	EventsUpdated    prometheus.Counter
	EventsUnchanged  prometheus.Counter
	RecordsSkipped   prometheus.Counter
	LastFetchSuccess prometheus.Gauge // unix seconds of the last successful fetch
	StoredEvents     prometheus.Gauge

	BackupAttempts *prometheus.CounterVec // labels: outcome={success,failure}
	BackupSize     prometheus.Gauge
	BackupDuration prometheus.Histogram

	PublishedEvents prometheus.Counter
	PublishErrors   prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FetchAttempts,
		m.FetchDuration,
		m.EventsFetched,
		m.EventsNew,
		m.EventsUpdated,
		m.EventsUnchanged,
		m.RecordsSkipped,
		m.LastFetchSuccess,
		m.StoredEvents,
		m.BackupAttempts,
		m.BackupSize,
		m.BackupDuration,
		m.PublishedEvents,
		m.PublishErrors,
	)
	return m
}

// NewMetricsForTesting creates Metrics with unregistered collectors to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "samband",
			Name:      "fetch_attempts_total",
			Help:      "Feed refresh attempts by outcome.",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "samband",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of a complete fetch-and-upsert cycle.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		EventsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "samband",
			Name:      "events_fetched_total",
			Help:      "Total raw records received from the feed.",
		}),
		EventsNew: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "samband",
			Name:      "events_new_total",
			Help:      "Total events inserted for a previously unseen id.",
		}),
		EventsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "samband",
			Name:      "events_updated_total",
			Help:      "Total events rewritten after a content change.",
		}),
		EventsUnchanged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "samband",
			Name:      "events_unchanged_total",
			Help:      "Total records whose fingerprint matched the stored row.",
		}),
		RecordsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "samband",
			Name:      "records_skipped_total",
			Help:      "Total malformed feed records skipped during upsert.",
		}),
		LastFetchSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "samband",
			Name:      "last_fetch_success_timestamp_seconds",
			Help:      "Unix time of the last successful feed refresh.",
		}),
		StoredEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "samband",
			Name:      "stored_events",
			Help:      "Number of event rows in the store.",
		}),
		BackupAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "samband",
			Name:      "backup_attempts_total",
			Help:      "Backup attempts by outcome.",
		}, []string{"outcome"}),
		BackupSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "samband",
			Name:      "backup_size_bytes",
			Help:      "Size of the most recent verified backup.",
		}),
		BackupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "samband",
			Name:      "backup_duration_seconds",
			Help:      "Duration of a checkpoint-copy-verify cycle.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60},
		}),
		PublishedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "samband",
			Name:      "published_events_total",
			Help:      "Changed events published to the Kafka sink topic.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "samband",
			Name:      "publish_errors_total",
			Help:      "Failed Kafka publish attempts.",
		}),
	}
}
