package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/certprep/internal/auth/jwt"
	"github.com/gokatarajesh/certprep/internal/config"
	"github.com/gokatarajesh/certprep/internal/db"
	"github.com/gokatarajesh/certprep/internal/db/repository"
	"github.com/gokatarajesh/certprep/internal/docstore"
	"github.com/gokatarajesh/certprep/internal/logging"
	"github.com/gokatarajesh/certprep/internal/metrics"
	"github.com/gokatarajesh/certprep/internal/question"
	"github.com/gokatarajesh/certprep/internal/report"
	"github.com/gokatarajesh/certprep/internal/server"
	"github.com/gokatarajesh/certprep/internal/session"
	"github.com/gokatarajesh/certprep/internal/session/scoring"
	ws "github.com/gokatarajesh/certprep/pkg/http/ws"
)

// Application aggregates shared infrastructure (DB, cache, HTTP server).
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	db    *sql.DB
	redis *redis.Client
	http  *http.Server

	sessions   *session.Service
	tracker    *report.Tracker
	prefetcher *question.Prefetcher
	hub        *ws.Hub
	bgCancels  []context.CancelFunc
}

// New bootstraps the document store, optional Redis, services and HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env, cfg.LogLevel)
	logger.Info().Str("driver", cfg.Database.Driver).Msg("starting application bootstrap")

	driver := db.Driver(cfg.Database.Driver)
	dsn := cfg.Database.SQLitePath
	if driver == db.DriverPostgres {
		dsn = cfg.Database.Postgres.DSN()
	}
	conn, err := db.Open(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if driver == db.DriverPostgres && cfg.Database.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx, conn, driver); err != nil {
			conn.Close()
			return nil, err
		}
		logger.Info().Msg("migrations applied")
	}

	store := docstore.NewSQLStore(conn, db.Dialect(driver))
	questionRepo := repository.NewQuestionRepository(store, cfg.Question.PageSize)
	resultRepo := repository.NewResultRepository(store)

	var redisClient *redis.Client
	var poolCache question.PoolCache
	var locker report.Locker
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		poolCache = question.NewCache(redisClient, cfg.Question.PoolCacheTTL)
		locker = report.NewRedisLocker(redisClient)
	} else {
		logger.Warn().Msg("REDIS_ADDR not set; pool cache disabled and report locks are process-local")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	tokens := jwt.NewManager(jwt.TokenConfig{
		AccessSecret: []byte(cfg.Security.JWTSecret),
		Issuer:       cfg.Security.TokenIssuer,
	})

	hub := ws.NewHub(logger)
	pools := question.NewService(questionRepo, poolCache, logger)
	var prefetcher *question.Prefetcher
	if poolCache != nil && len(cfg.Question.PrefetchModules) > 0 {
		prefetcher = question.NewPrefetcher(pools, logger, 0)
		for _, id := range cfg.Question.PrefetchModules {
			prefetcher.Enqueue(id)
		}
	}
	selector := question.NewSelector(nil, question.Composition{
		EasyPercent:   cfg.Session.EasyPercent,
		MediumPercent: cfg.Session.MediumPercent,
	})
	sessions := session.NewService(pools, selector, report.NewGenerator(resultRepo), hub, session.Options{
		TickInterval:   cfg.Session.TickInterval,
		AllowedLengths: cfg.Session.TestLengths,
		Scoring:        scoring.Config{SecondsPerQuestion: cfg.Session.SecondsPerQuestion},
		Metrics:        m,
	}, logger)

	viewer := report.NewViewer(resultRepo, report.ViewerOptions{
		Locker:  locker,
		LockTTL: cfg.Report.LockTTL,
		Metrics: m,
	}, logger)
	tracker := report.NewTracker(viewer, cfg.Report.ViewTTL, cfg.Report.SweepInterval, logger)

	pingers := map[string]server.Pinger{"database": conn.PingContext}
	if redisClient != nil {
		pingers["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	router := server.NewRouter(server.Deps{
		Logger:    logger,
		Validator: tokens,
		Metrics:   m,
		Gatherer:  registry,
		CORS:      cfg.CORS,
		Limiter:   server.NewUserLimiter(cfg.RateLimit.StartsPerMinute, cfg.RateLimit.Burst),
		Pingers:   pingers,
		Sessions:  session.NewHTTPHandlers(sessions, logger),
		SessionWS: session.NewWSHandler(sessions, hub, tokens, logger),
		Reports:   report.NewHTTPHandlers(viewer, tracker, cfg.Report.HistoryLimit, logger),
	})

	return &Application{
		cfg:        cfg,
		logger:     logger,
		db:         conn,
		redis:      redisClient,
		http:       server.NewHTTPServer(cfg, router),
		sessions:   sessions,
		tracker:    tracker,
		prefetcher: prefetcher,
		hub:        hub,
		bgCancels:  make([]context.CancelFunc, 0, 2),
	}, nil
}

// Run starts the HTTP server and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	a.startBackgroundWorkers(ctx)

	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		runErr = fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}

	for _, cancel := range a.bgCancels {
		cancel()
	}

	// running sessions are abandoned and open reports closed before the stores go away
	if err := a.sessions.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("session shutdown error")
	}
	if closed := a.tracker.CloseAll(shutdownCtx); closed > 0 {
		a.logger.Info().Int("closed", closed).Msg("open report views closed")
	}
	a.hub.CloseAll()

	if err := a.db.Close(); err != nil {
		a.logger.Error().Err(err).Msg("database shutdown error")
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error().Err(err).Msg("redis shutdown error")
		}
	}

	a.logger.Info().Msg("shutdown complete")
	return runErr
}

func (a *Application) startBackgroundWorkers(ctx context.Context) {
	bgCtx, cancel := context.WithCancel(ctx)
	a.bgCancels = append(a.bgCancels, cancel)
	go func() {
		if err := a.tracker.Run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn().Err(err).Msg("report view sweeper stopped")
		}
	}()

	if a.prefetcher != nil {
		bgCtx, cancel := context.WithCancel(ctx)
		a.bgCancels = append(a.bgCancels, cancel)
		go func() {
			if err := a.prefetcher.Run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn().Err(err).Msg("question prefetcher stopped")
			}
		}()
	}
}
