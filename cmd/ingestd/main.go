package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sambandhq/samband-ingest/internal/adapter/httpapi"
	kafkaadapter "github.com/sambandhq/samband-ingest/internal/adapter/kafka"
	"github.com/sambandhq/samband-ingest/internal/backup"
	"github.com/sambandhq/samband-ingest/internal/config"
	"github.com/sambandhq/samband-ingest/internal/fetch"
	"github.com/sambandhq/samband-ingest/internal/observability"
	"github.com/sambandhq/samband-ingest/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	st, err := store.Open(cfg.DatabasePath, clock)
	if err != nil {
		logger.Error("failed to open event store", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// Kafka publishing is feature-flagged via KAFKA_BROKERS.
	var publisher fetch.ChangePublisher
	var kafkaWriter *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		kafkaWriter = kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		publisher = kafkaWriter
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	client := fetch.NewClient(cfg.FeedURL, cfg.FeedTimeout, logger)
	scheduler := fetch.NewScheduler(st, client, logger, metrics, fetch.SchedulerOptions{
		Interval:   cfg.FetchInterval,
		Retries:    cfg.FetchRetries,
		RetryDelay: cfg.FetchRetryDelay,
		Publisher:  publisher,
		Clock:      clock,
	})

	backups := backup.NewService(st, logger, metrics, backup.Options{
		Dir:      cfg.BackupPath,
		KeepDays: cfg.BackupKeepDays,
		Clock:    clock,
	})

	srv := httpapi.NewServer(cfg.HTTPAddr, cfg.APIKey, st, scheduler, backups, st, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	if cfg.FetchOnStart {
		result := scheduler.RefreshIfNeeded(ctx)
		logger.Info("startup fetch", "success", result.Success, "new", result.New, "skipped", result.Skipped)
	}
	if _, ok, err := st.LastBackup(ctx); err == nil && !ok {
		if _, err := backups.Backup(ctx); err != nil {
			logger.Warn("initial backup failed", "error", err)
		}
	}

	go scheduler.Run(ctx)
	go backups.Run(ctx, cfg.BackupInterval)
	go pruneLogsLoop(ctx, st, clock, cfg.LogPruneInterval, cfg.LogKeepDays, logger)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if kafkaWriter != nil {
		if err := kafkaWriter.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if err := st.CheckpointWAL(shutdownCtx); err != nil {
		logger.Warn("final wal checkpoint failed", "error", err)
	}

	logger.Info("shutdown complete")
}

// pruneLogsLoop trims fetch log entries past the retention window on a fixed
// interval. Events themselves are never pruned.
func pruneLogsLoop(ctx context.Context, st *store.Store, clock clockwork.Clock, interval time.Duration, keepDays int, logger *slog.Logger) {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			cutoff := clock.Now().AddDate(0, 0, -keepDays)
			removed, err := st.PruneFetchLog(ctx, cutoff)
			if err != nil {
				logger.Error("fetch log pruning failed", "error", err)
				continue
			}
			if removed > 0 {
				logger.Info("pruned fetch log", "removed", removed, "older_than", cutoff.Format(time.RFC3339))
			}
		}
	}
}
