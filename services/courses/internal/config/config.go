package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Catalog sources.
const (
	CatalogFile     = "file"
	CatalogPostgres = "postgres"
	CatalogRemote   = "remote"
)

type Config struct {
	CatalogSource string
	CatalogPath   string
	CatalogURL    string
	DatabaseURL   string
	RedisURL      string
	CacheTTL      time.Duration
	// InvalidateSubject is the NATS subject carrying catalog cache
	// invalidations (a course id or ALL).
	InvalidateSubject string

	ProgressBackend string
	ProgressDir     string

	DeviceSecret []byte
	DeviceCookie string
	DeviceTTL    time.Duration

	SampleInterval time.Duration
	SessionIdleTTL time.Duration
	// Per-device limit on player reports and selections.
	ReportRate  float64
	ReportBurst int

	// GRPCAddr enables the gRPC health server when set.
	GRPCAddr string
	NATSURL  string

	// Retry and circuit-breaker settings for the remote catalog.
	MaxRetries         int
	RetryBaseDelay     time.Duration
	CBMaxRequests      uint32
	CBInterval         time.Duration
	CBTimeout          time.Duration
	CBFailureThreshold uint32
}

func Load() (Config, error) {
	source := strings.ToLower(strings.TrimSpace(os.Getenv("CATALOG_SOURCE")))
	if source == "" {
		source = CatalogFile
	}
	cfg := Config{
		CatalogSource:     source,
		CatalogPath:       envString("CATALOG_PATH", "data/courses.json"),
		CatalogURL:        strings.TrimSpace(os.Getenv("CATALOG_URL")),
		DatabaseURL:       strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisURL:          strings.TrimSpace(os.Getenv("REDIS_URL")),
		CacheTTL:          envDuration("CATALOG_CACHE_TTL", 5*time.Minute),
		InvalidateSubject: envString("CATALOG_INVALIDATE_SUBJECT", "catalog.courses.invalidate"),

		ProgressBackend: strings.ToLower(strings.TrimSpace(os.Getenv("PROGRESS_BACKEND"))),
		ProgressDir:     strings.TrimSpace(os.Getenv("PROGRESS_DIR")),

		DeviceSecret: []byte(strings.TrimSpace(os.Getenv("DEVICE_SECRET"))),
		DeviceCookie: envString("DEVICE_COOKIE", "device_token"),
		DeviceTTL:    envDuration("DEVICE_TTL", 365*24*time.Hour),

		SampleInterval: envDuration("PLAYBACK_SAMPLE_INTERVAL", time.Second),
		SessionIdleTTL: envDuration("SESSION_IDLE_TTL", 30*time.Minute),
		ReportRate:     envFloat("PLAYER_RATE_LIMIT", 10),
		ReportBurst:    envInt("PLAYER_RATE_BURST", 20),

		GRPCAddr: strings.TrimSpace(os.Getenv("GRPC_ADDR")),
		NATSURL:  strings.TrimSpace(os.Getenv("NATS_URL")),

		MaxRetries:         envInt("CATALOG_MAX_RETRIES", 3),
		RetryBaseDelay:     envDuration("CATALOG_RETRY_BASE_DELAY", 500*time.Millisecond),
		CBMaxRequests:      uint32(envInt("CB_MAX_REQUESTS", 5)),
		CBInterval:         envDuration("CB_INTERVAL", 60*time.Second),
		CBTimeout:          envDuration("CB_TIMEOUT", 30*time.Second),
		CBFailureThreshold: uint32(envInt("CB_FAILURE_THRESHOLD", 5)),
	}

	switch cfg.CatalogSource {
	case CatalogFile:
	case CatalogPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, errors.New("DATABASE_URL is required for CATALOG_SOURCE=postgres")
		}
	case CatalogRemote:
		if cfg.CatalogURL == "" {
			return Config{}, errors.New("CATALOG_URL is required for CATALOG_SOURCE=remote")
		}
	default:
		return Config{}, errors.New("CATALOG_SOURCE must be file, postgres or remote")
	}
	if cfg.SampleInterval <= 0 {
		return Config{}, errors.New("PLAYBACK_SAMPLE_INTERVAL must be positive")
	}
	return cfg, nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return def
	}
	return f
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
