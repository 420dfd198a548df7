package config

import (
	"testing"
	"time"
)

func TestLoad_ServiceNameFallback(t *testing.T) {
	t.Setenv("SERVICE_NAME", "")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error without SERVICE_NAME or a default")
	}
	cfg, err := Load("courses")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "courses" {
		t.Fatalf("expected courses, got %q", cfg.ServiceName)
	}

	t.Setenv("SERVICE_NAME", "courses-eu")
	cfg, err = Load("courses")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "courses-eu" {
		t.Fatalf("env should win, got %q", cfg.ServiceName)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SERVICE_NAME", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("APP_ENV", "")
	t.Setenv("SHUTDOWN_TIMEOUT", "")

	cfg, err := Load("courses")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("expected :8080, got %q", cfg.HTTP.Addr)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected info, got %q", cfg.LogLevel)
	}
	if cfg.Env != EnvDevelopment || cfg.IsProduction() {
		t.Fatalf("expected development by default, got %q", cfg.Env)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("expected 10s shutdown timeout, got %v", cfg.ShutdownTimeout)
	}
}

func TestLoad_Env(t *testing.T) {
	cases := map[string]string{
		"Production": EnvProduction,
		"prod":       EnvProduction,
		"staging":    EnvStaging,
		"dev":        EnvDevelopment,
	}
	for in, want := range cases {
		t.Setenv("APP_ENV", in)
		cfg, err := Load("courses")
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if cfg.Env != want {
			t.Fatalf("%s: expected %q, got %q", in, want, cfg.Env)
		}
	}

	t.Setenv("APP_ENV", "qa")
	if _, err := Load("courses"); err == nil {
		t.Fatal("expected error for unknown APP_ENV")
	}
}

func TestLoad_ShutdownTimeout(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")
	cfg, err := Load("courses")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Fatalf("expected 3s, got %v", cfg.ShutdownTimeout)
	}

	t.Setenv("SHUTDOWN_TIMEOUT", "soon")
	if _, err := Load("courses"); err == nil {
		t.Fatal("expected error for bad SHUTDOWN_TIMEOUT")
	}
}
