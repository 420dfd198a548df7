package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

type HTTPConfig struct {
	Addr string
}

// AppConfig is what every binary in the course platform reads before its own
// service-specific settings.
type AppConfig struct {
	ServiceName     string
	LogLevel        string
	Env             string
	HTTP            HTTPConfig
	ShutdownTimeout time.Duration
}

// IsProduction reports whether APP_ENV selects production, where dev-only
// fallbacks (in-memory progress, file catalog, ephemeral device secret) are
// refused.
func (c AppConfig) IsProduction() bool {
	return c.Env == EnvProduction
}

// Load reads the shared settings. SERVICE_NAME falls back to service, the
// binary's own name.
func Load(service string) (AppConfig, error) {
	cfg := AppConfig{
		ServiceName:     strings.TrimSpace(os.Getenv("SERVICE_NAME")),
		LogLevel:        strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))),
		Env:             strings.ToLower(strings.TrimSpace(os.Getenv("APP_ENV"))),
		HTTP:            HTTPConfig{Addr: strings.TrimSpace(os.Getenv("HTTP_ADDR"))},
		ShutdownTimeout: 10 * time.Second,
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = strings.TrimSpace(service)
	}
	if cfg.ServiceName == "" {
		return AppConfig{}, fmt.Errorf("SERVICE_NAME is required")
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	switch cfg.Env {
	case "":
		cfg.Env = EnvDevelopment
	case "dev":
		cfg.Env = EnvDevelopment
	case "prod":
		cfg.Env = EnvProduction
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		return AppConfig{}, fmt.Errorf("APP_ENV %q is not one of development, staging, production", cfg.Env)
	}
	if v := strings.TrimSpace(os.Getenv("SHUTDOWN_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return AppConfig{}, fmt.Errorf("SHUTDOWN_TIMEOUT: invalid duration %q", v)
		}
		cfg.ShutdownTimeout = d
	}
	return cfg, nil
}
