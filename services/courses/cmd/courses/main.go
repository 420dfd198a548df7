package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/example/course-platform/internal/platform/analytics"
	"github.com/example/course-platform/internal/platform/config"
	"github.com/example/course-platform/internal/platform/db"
	"github.com/example/course-platform/internal/platform/device"
	"github.com/example/course-platform/internal/platform/httpserver"
	"github.com/example/course-platform/internal/platform/logging"
	"github.com/example/course-platform/internal/platform/natsconn"
	"github.com/example/course-platform/internal/platform/run"
	"github.com/example/course-platform/services/courses/internal/catalog"
	coursesconfig "github.com/example/course-platform/services/courses/internal/config"
	"github.com/example/course-platform/services/courses/internal/handlers"
	"github.com/example/course-platform/services/courses/internal/progress"
	"github.com/example/course-platform/services/courses/internal/session"
)

func main() {
	cfg, err := config.Load("courses")
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	coursesCfg, err := coursesconfig.Load()
	if err != nil {
		log.Error("load courses config", zap.Error(err))
		run.Exit(1)
	}

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(msg string, fields ...zap.Field) {
		log.Error(msg, fields...)
		closeAll()
		_ = log.Sync()
		run.Exit(1)
	}

	// NATS is optional: without it there are no analytics and no cache
	// invalidation.
	var nc *nats.Conn
	publisher := analytics.New(nil, log)
	if conn, err := natsconn.Connect(natsconn.Options{URL: coursesCfg.NATSURL, Name: cfg.ServiceName, Logger: log}); err != nil {
		log.Warn("nats unavailable, running without analytics", zap.Error(err))
	} else {
		nc = conn
		closers = append(closers, nc.Close)
		if js, err := nc.JetStream(); err != nil {
			log.Warn("jetstream unavailable, running without analytics", zap.Error(err))
		} else {
			if err := analytics.EnsureStream(js, log); err != nil {
				log.Warn("analytics stream unavailable", zap.Error(err))
			}
			publisher = analytics.New(js, log)
		}
	}

	courses, closeCatalog, err := initCatalog(context.Background(), log, cfg, coursesCfg, nc)
	if err != nil {
		fail("init catalog", zap.Error(err))
	}
	closers = append(closers, closeCatalog)

	store, closeProgress, err := initProgress(context.Background(), log, cfg, coursesCfg)
	if err != nil {
		fail("init progress store", zap.Error(err))
	}
	closers = append(closers, closeProgress)

	secret := coursesCfg.DeviceSecret
	if len(secret) == 0 {
		if cfg.IsProduction() {
			fail("DEVICE_SECRET is required in production")
		}
		log.Warn("DEVICE_SECRET not set, device cookies will not survive a restart (development only)")
		secret = []byte(uuid.NewString())
	}
	tokens := device.Tokens{Secret: secret, TTL: coursesCfg.DeviceTTL}

	sessions := session.NewManager(session.ManagerConfig{
		Store:    store,
		Interval: coursesCfg.SampleInterval,
		IdleTTL:  coursesCfg.SessionIdleTTL,
		Events:   publisher,
	}, log)

	limiter := httpserver.NewRateLimiter(coursesCfg.ReportRate, coursesCfg.ReportBurst, func(r *http.Request) string {
		if id, ok := device.IDFromContext(r.Context()); ok {
			return id
		}
		return httpserver.RemoteIP(r)
	})

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		Logger: log,
		ReadyFunc: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_, err := courses.ListCourses(ctx)
			return err
		},
	})
	r.Group(func(r chi.Router) {
		r.Use(device.Middleware(tokens, coursesCfg.DeviceCookie, log))

		r.Get("/v1/courses", handlers.ListCourses(courses))
		r.Get("/v1/courses/{course_id}", handlers.GetCourse(courses, store, publisher))
		r.Post("/v1/courses/{course_id}/sessions", handlers.StartSession(courses, sessions, log))

		r.Get("/v1/sessions/{session_id}", handlers.GetSession(sessions, log))
		r.With(limiter.Middleware).Post("/v1/sessions/{session_id}/select", handlers.SelectVideo(sessions, log))
		r.With(limiter.Middleware).Post("/v1/sessions/{session_id}/player", handlers.ReportPlayer(sessions, log))
		r.Delete("/v1/sessions/{session_id}", handlers.EndSession(sessions))
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, Logger: log, Router: r})

	var grpcSrv *grpc.Server
	if coursesCfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", coursesCfg.GRPCAddr)
		if err != nil {
			fail("grpc listen", zap.Error(err))
		}
		grpcSrv = grpc.NewServer()
		hs := health.NewServer()
		hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		hs.SetServingStatus(cfg.ServiceName, healthpb.HealthCheckResponse_SERVING)
		healthpb.RegisterHealthServer(grpcSrv, hs)
		reflection.Register(grpcSrv)
		go func() {
			log.Info("grpc server starting", zap.String("addr", coursesCfg.GRPCAddr))
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				log.Error("grpc serve", zap.Error(err))
			}
		}()
	}

	runner := run.New(log, cfg.ShutdownTimeout)
	code := runner.WithSignals(func(ctx context.Context) error {
		go sessions.Run(ctx)
		return srv.Start()
	})

	runner.Graceful("http", srv.Shutdown)
	sessions.CloseAll()
	if grpcSrv != nil {
		runner.Graceful("grpc", func(ctx context.Context) error {
			stopped := make(chan struct{})
			go func() {
				grpcSrv.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
				return nil
			case <-ctx.Done():
				grpcSrv.Stop()
				return ctx.Err()
			}
		})
	}
	closeAll()

	log.Info("exit", zap.Int("code", code))
	_ = log.Sync()
	run.Exit(code)
}

// initCatalog builds the Catalog Accessor for CATALOG_SOURCE. Database and
// remote sources sit behind a cache: Redis when REDIS_URL is set, otherwise an
// in-process TTL cache invalidated over NATS.
func initCatalog(ctx context.Context, log *zap.Logger, cfg config.AppConfig, cc coursesconfig.Config, nc *nats.Conn) (catalog.Accessor, func(), error) {
	noop := func() {}

	var (
		src     catalog.Accessor
		closers []func()
	)
	switch cc.CatalogSource {
	case coursesconfig.CatalogFile:
		static, err := catalog.LoadFile(cc.CatalogPath)
		if err != nil {
			return nil, noop, err
		}
		log.Info("catalog source: file", zap.String("path", cc.CatalogPath))
		return static, noop, nil

	case coursesconfig.CatalogPostgres:
		pool, err := db.Open(ctx, db.Options{DSN: cc.DatabaseURL, AppName: cfg.ServiceName})
		if err != nil {
			if cfg.IsProduction() {
				return nil, noop, err
			}
			log.Warn("postgres unavailable, falling back to file catalog (development only)", zap.Error(err))
			static, ferr := catalog.LoadFile(cc.CatalogPath)
			if ferr != nil {
				return nil, noop, errors.Join(err, ferr)
			}
			return static, noop, nil
		}
		closers = append(closers, pool.Close)
		src = catalog.NewPostgresSource(pool)
		log.Info("catalog source: postgres")
		if nc != nil && cc.InvalidateSubject != "" {
			relayCtx, stopRelay := context.WithCancel(context.Background())
			closers = append(closers, stopRelay)
			go catalog.NewInvalidationRelay(log, pool, nc, cc.InvalidateSubject).Run(relayCtx)
		}

	case coursesconfig.CatalogRemote:
		cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "catalog",
			MaxRequests: cc.CBMaxRequests,
			Interval:    cc.CBInterval,
			Timeout:     cc.CBTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cc.CBFailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Info("circuit-breaker state change", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
		src = catalog.NewRemoteSource(cc.CatalogURL, catalog.RemoteConfig{
			MaxRetries:     cc.MaxRetries,
			RetryBaseDelay: cc.RetryBaseDelay,
		}, catalog.WithCircuitBreaker(cb), catalog.WithLogger(log))
		log.Info("catalog source: remote", zap.String("url", cc.CatalogURL))
	}

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var cache catalog.Cache
	if cc.RedisURL != "" {
		rc, err := catalog.NewRedisCache(cc.RedisURL, cc.CacheTTL, log)
		if err != nil {
			log.Warn("redis catalog cache unavailable, using in-process cache", zap.Error(err))
		} else {
			closers = append(closers, func() { _ = rc.Close() })
			cache = rc
		}
	}
	if cache == nil {
		tc := catalog.NewTTLCache(cc.CacheTTL, nc, cc.InvalidateSubject, log)
		closers = append(closers, func() { _ = tc.Close() })
		cache = tc
	}
	return catalog.NewCached(src, cache), closeAll, nil
}

// initProgress selects the progress backend. In production the in-memory
// backend is refused; in development any failure falls back to it.
func initProgress(ctx context.Context, log *zap.Logger, cfg config.AppConfig, cc coursesconfig.Config) (*progress.Store, func(), error) {
	noop := func() {}
	kv, err := progress.NewKV(progress.Options{
		Backend:  cc.ProgressBackend,
		Dir:      cc.ProgressDir,
		RedisURL: cc.RedisURL,
		IsProd:   cfg.IsProduction(),
	})
	if err != nil {
		if cfg.IsProduction() {
			return nil, noop, err
		}
		log.Warn("progress backend unavailable, using in-memory store (development only)", zap.Error(err))
		return progress.NewStore(progress.NewMemoryKV(), log), noop, nil
	}

	closeKV := noop
	if rkv, ok := kv.(*progress.RedisKV); ok {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := rkv.Ping(pingCtx); err != nil {
			_ = rkv.Close()
			if cfg.IsProduction() {
				return nil, noop, err
			}
			log.Warn("redis ping failed, using in-memory progress store (development only)", zap.Error(err))
			return progress.NewStore(progress.NewMemoryKV(), log), noop, nil
		}
		closeKV = func() { _ = rkv.Close() }
	}

	switch kv.(type) {
	case *progress.RedisKV:
		log.Info("progress store: redis")
	case *progress.FileKV:
		log.Info("progress store: file", zap.String("dir", cc.ProgressDir))
	default:
		log.Warn("progress store: in-memory (development only)")
	}
	return progress.NewStore(kv, log), closeKV, nil
}
