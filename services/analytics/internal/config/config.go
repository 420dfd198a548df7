package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the analytics sink settings.
type Config struct {
	NATSURL          string
	PostHogAPIKey    string
	PostHogHost      string
	FlushInterval    time.Duration
	PostHogBatchSize int
	FetchBatchSize   int
	FetchWait        time.Duration
}

func Load() (Config, error) {
	key := strings.TrimSpace(os.Getenv("POSTHOG_API_KEY"))
	if key == "" {
		return Config{}, errors.New("POSTHOG_API_KEY is required")
	}
	host := strings.TrimSpace(os.Getenv("POSTHOG_HOST"))
	if host == "" {
		host = "https://app.posthog.com"
	}
	return Config{
		NATSURL:          strings.TrimSpace(os.Getenv("NATS_URL")),
		PostHogAPIKey:    key,
		PostHogHost:      host,
		FlushInterval:    envDuration("POSTHOG_FLUSH_INTERVAL", 5*time.Second),
		PostHogBatchSize: envInt("POSTHOG_BATCH_SIZE", 100),
		FetchBatchSize:   envInt("WORKER_BATCH_SIZE", 200),
		FetchWait:        envDuration("WORKER_FETCH_WAIT", 2*time.Second),
	}, nil
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
