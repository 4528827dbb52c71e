package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"PollutionSync/internal/config"
	"PollutionSync/internal/httpapi"
	"PollutionSync/internal/infrastructure/cache"
	"PollutionSync/internal/infrastructure/pollution"
	"PollutionSync/internal/infrastructure/scheduler"
	"PollutionSync/internal/infrastructure/storage"
	"PollutionSync/internal/infrastructure/wikipedia"
	"PollutionSync/internal/logging"
	"PollutionSync/internal/metrics"
	"PollutionSync/internal/ports"
	"PollutionSync/internal/usecase"
)

// Job names accepted by RunJob.
const (
	JobIngestion  = "ingestion"
	JobEnrichment = "enrichment"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	db        *sql.DB
	redis     *redis.Client
	registry  *prometheus.Registry
	scheduler *usecase.Scheduler
	router    http.Handler
}

// New opens the store and optional Redis cache and builds every component.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	db, err := storage.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	a := &Application{
		cfg:      cfg,
		logger:   baseLogger,
		db:       db,
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(a.registry)

	responseCache, err := a.responseCache(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	repository := storage.NewPostgresRepository(db)
	source := pollution.NewClient(cfg.PollutionAPI, responseCache, pollution.NewSession(),
		baseLogger.With("component", "pollution"), m)
	describer := wikipedia.NewClient(cfg.Wikipedia, baseLogger.With("component", "wikipedia"))

	ingestion := usecase.NewIngestionJob(usecase.IngestionDeps{
		Source:     source,
		Repository: repository,
		PageLimit:  cfg.PollutionAPI.PageLimit,
		Logger:     baseLogger.With("component", "ingestion"),
		Metrics:    m,
	})
	enrichment := usecase.NewEnrichmentJob(usecase.EnrichmentDeps{
		Repository:     repository,
		Describer:      describer,
		BatchSize:      cfg.Enrichment.BatchSize,
		CandidateLimit: cfg.Enrichment.CandidateLimit,
		BatchPause:     cfg.Enrichment.BatchPause,
		Logger:         baseLogger.With("component", "enrichment"),
		Metrics:        m,
	})

	loc := cfg.Scheduler.Location()
	a.scheduler = usecase.NewScheduler(baseLogger.With("component", "scheduler"), m)
	a.scheduler.Register(JobIngestion,
		scheduler.NewIntervalScheduler(cfg.Scheduler.IngestionInterval, cfg.Scheduler.RunOnStart, loc),
		func(ctx context.Context) error {
			_, err := ingestion.Run(ctx)
			return err
		})
	a.scheduler.Register(JobEnrichment,
		scheduler.NewIntervalScheduler(cfg.Scheduler.EnrichmentInterval, cfg.Scheduler.RunOnStart, loc),
		func(ctx context.Context) error {
			_, err := enrichment.Run(ctx)
			return err
		})

	gin.SetMode(gin.ReleaseMode)
	a.router = httpapi.NewRouter(httpapi.Deps{
		Repository:     repository,
		Logger:         baseLogger.With("component", "http"),
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Metrics:        promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
	})

	return a, nil
}

func (a *Application) responseCache(ctx context.Context) (ports.ResponseCache, error) {
	if a.cfg.Redis.URL == "" {
		a.logger.Info("using in-memory response cache")
		return cache.NewMemoryCache(), nil
	}

	client, err := cache.NewRedisClient(ctx, a.cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	a.redis = client
	a.logger.Info("using redis response cache", "prefix", a.cfg.Redis.KeyPrefix)
	return cache.NewRedisCache(client, a.cfg.Redis.KeyPrefix), nil
}

// Migrate applies pending schema migrations.
func (a *Application) Migrate(ctx context.Context) error {
	a.logger.Info("applying database migrations")
	if err := storage.Migrate(ctx, a.db); err != nil {
		return err
	}
	a.logger.Info("database migrations applied")
	return nil
}

// RunJob executes one job immediately and returns its error.
func (a *Application) RunJob(ctx context.Context, name string) error {
	return a.scheduler.RunNow(ctx, name)
}

// Serve starts the scheduled jobs and the read API, and blocks until ctx ends
// or the listener fails.
func (a *Application) Serve(ctx context.Context) error {
	if a.cfg.Database.AutoMigrate {
		if err := a.Migrate(ctx); err != nil {
			return err
		}
	}

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown requested")
	case err := <-errCh:
		if err != nil {
			serveErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		serveErr = errors.Join(serveErr, fmt.Errorf("shutdown http server: %w", err))
	}
	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		serveErr = errors.Join(serveErr, fmt.Errorf("stop scheduler: %w", err))
	}

	return serveErr
}

// Close releases the database and cache connections.
func (a *Application) Close() error {
	var errs []error
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
