package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/course-platform/internal/platform/config"
	"github.com/example/course-platform/internal/platform/logging"
	"github.com/example/course-platform/internal/platform/natsconn"
	"github.com/example/course-platform/internal/platform/run"
	analyticsconfig "github.com/example/course-platform/services/analytics/internal/config"
	"github.com/example/course-platform/services/analytics/internal/consumer"
	"github.com/example/course-platform/services/analytics/internal/handler"
	"github.com/example/course-platform/services/analytics/internal/posthog"
)

func main() {
	cfg, err := config.Load("analytics")
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	acfg, err := analyticsconfig.Load()
	if err != nil {
		log.Error("load analytics config", zap.Error(err))
		run.Exit(1)
	}

	ph, err := posthog.New(acfg.PostHogAPIKey, acfg.PostHogHost, acfg.FlushInterval, acfg.PostHogBatchSize, log)
	if err != nil {
		log.Error("posthog init", zap.Error(err))
		run.Exit(1)
	}

	nc, err := natsconn.Connect(natsconn.Options{URL: acfg.NATSURL, Name: cfg.ServiceName, Logger: log})
	if err != nil {
		log.Error("nats connect", zap.Error(err))
		_ = ph.Close()
		run.Exit(1)
	}

	c, err := consumer.New(nc, handler.New(ph, log), acfg.FetchBatchSize, acfg.FetchWait, log)
	if err != nil {
		log.Error("consumer init", zap.Error(err))
		nc.Close()
		_ = ph.Close()
		run.Exit(1)
	}

	runner := run.New(log, cfg.ShutdownTimeout)
	log.Info("analytics consumer started")
	code := runner.WithSignals(func(ctx context.Context) error {
		c.Run(ctx)
		return nil
	})

	nc.Close()
	if err := ph.Close(); err != nil {
		log.Warn("posthog close", zap.Error(err))
	}
	log.Info("analytics consumer stopped", zap.Int("code", code))
	_ = log.Sync()
	run.Exit(code)
}
