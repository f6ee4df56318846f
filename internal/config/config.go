package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	APIKey          string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	DatabasePath string
	BackupPath   string

	FeedURL         string
	FeedTimeout     time.Duration
	FetchInterval   time.Duration
	FetchRetries    int
	FetchRetryDelay time.Duration
	FetchOnStart    bool

	BackupInterval time.Duration
	BackupKeepDays int

	LogPruneInterval time.Duration
	LogKeepDays      int

	// Kafka publishing of changed events, enabled when brokers are set.
	KafkaBrokers []string
	KafkaTopic   string
	KafkaEnabled bool
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:     envOrDefault("HTTP_ADDR", ":8080"),
		APIKey:       os.Getenv("API_KEY"),
		LogLevel:     envOrDefault("LOG_LEVEL", "info"),
		LogFormat:    envOrDefault("LOG_FORMAT", "json"),
		DatabasePath: envOrDefault("DATABASE_PATH", "./data/events.db"),
		BackupPath:   envOrDefault("BACKUP_PATH", "./data/backups"),
		FeedURL:      envOrDefault("FEED_URL", "https://polisen.se/api/events"),
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "police-events"),
	}

	var err error
	if cfg.ShutdownTimeout, err = durationEnv("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.FeedTimeout, err = durationEnv("FEED_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.FetchInterval, err = durationEnv("FETCH_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.FetchRetryDelay, err = durationEnv("FETCH_RETRY_DELAY", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.BackupInterval, err = durationEnv("BACKUP_INTERVAL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.LogPruneInterval, err = durationEnv("LOG_PRUNE_INTERVAL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.FetchRetries, err = intEnv("FETCH_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.BackupKeepDays, err = intEnv("BACKUP_KEEP", 30); err != nil {
		return nil, err
	}
	if cfg.LogKeepDays, err = intEnv("LOG_KEEP", 30); err != nil {
		return nil, err
	}
	if cfg.FetchOnStart, err = boolEnv("FETCH_ON_START", true); err != nil {
		return nil, err
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
		cfg.KafkaEnabled = len(cfg.KafkaBrokers) > 0
	}

	if cfg.APIKey == "" {
		return nil, errors.New("API_KEY is required")
	}
	if cfg.FeedURL == "" {
		return nil, errors.New("FEED_URL is required")
	}
	if cfg.FetchRetries < 1 {
		return nil, errors.New("FETCH_RETRIES must be at least 1")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_BROKERS is set but KAFKA_TOPIC is empty")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", key, v)
	}
	return b, nil
}
