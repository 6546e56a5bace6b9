package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radiusdt/vector-attribution/internal/attribution"
	"github.com/radiusdt/vector-attribution/internal/catalog"
	"github.com/radiusdt/vector-attribution/internal/config"
	"github.com/radiusdt/vector-attribution/internal/database"
	"github.com/radiusdt/vector-attribution/internal/httpserver"
	"github.com/radiusdt/vector-attribution/internal/metrics"
	"github.com/radiusdt/vector-attribution/internal/middleware"
	"github.com/radiusdt/vector-attribution/internal/report"
	"github.com/radiusdt/vector-attribution/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use logger yet, fall back to panic
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	logger, err := middleware.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("starting attribution service",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr),
		zap.String("engine", cfg.Engine),
	)

	// Create context for background workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewMetrics("attribution", prometheus.DefaultRegisterer)

	// Client catalog
	cat := catalog.Default()
	if cfg.Query.CatalogPath != "" {
		cat, err = catalog.LoadFile(cfg.Query.CatalogPath)
		if err != nil {
			logger.Fatal("failed to load catalog", zap.String("path", cfg.Query.CatalogPath), zap.Error(err))
		}
	}
	if err := cat.Validate(); err != nil {
		logger.Fatal("invalid catalog", zap.Error(err))
	}
	logger.Info("catalog loaded", zap.Strings("clients", cat.ClientNames()))

	checks := make(map[string]httpserver.HealthCheck)

	// Event store
	var store storage.EventStore
	switch cfg.Engine {
	case config.EngineClickHouse:
		ch, err := database.NewClickHouseDB(ctx, cfg.ClickHouse, logger)
		if err != nil {
			logger.Fatal("failed to connect to ClickHouse", zap.Error(err))
		}
		defer ch.Close()

		store, err = storage.NewClickHouseEventStore(ch.Conn, ch.Database, logger)
		if err != nil {
			logger.Fatal("failed to create ClickHouse event store", zap.Error(err))
		}
		checks["clickhouse"] = ch.Health

	case config.EnginePostgres:
		db, err := database.NewPostgresDB(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
		}
		defer db.Close()

		store = storage.NewPostgresEventStore(db.Pool, logger)
		checks["postgres"] = db.Health
		go runEvery(ctx, 15*time.Second, func() {
			m.UpdateDBStats(db.Stats())
		})

	case config.EngineMemory:
		mem := storage.NewInMemoryEventStore()
		if cfg.Query.FixturesPath != "" {
			if err := mem.LoadFixtures(ctx, cfg.Query.FixturesPath); err != nil {
				logger.Fatal("failed to load fixtures", zap.String("path", cfg.Query.FixturesPath), zap.Error(err))
			}
			logger.Info("fixtures loaded", zap.String("path", cfg.Query.FixturesPath))
		}
		store = mem
	}

	// Session result store
	var results storage.ResultStore
	if cfg.Redis.Enabled {
		rdb, err := database.NewRedisDB(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		defer rdb.Close()

		results = storage.NewRedisResultStore(rdb.Client, cfg.Redis.ResultTTL)
		checks["redis"] = rdb.Health
	} else {
		memResults := storage.NewInMemoryResultStore(cfg.Redis.ResultTTL)
		results = memResults
		go runEvery(ctx, 10*time.Minute, func() {
			if n := memResults.Cleanup(); n > 0 {
				logger.Debug("expired held results", zap.Int("count", n))
			}
		})
	}

	limits := attribution.Limits{
		MinDate:       cfg.Query.MinDate,
		MinWindowDays: cfg.Query.MinWindowDays,
		MaxWindowDays: cfg.Query.MaxWindowDays,
	}
	builder := attribution.NewBuilder(cat, attribution.NewValidator(cat, limits, nil))
	service := report.NewService(builder, store, m, logger, cfg.Query.Timeout)

	handler := httpserver.NewServer(&httpserver.Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: m,
		Catalog: cat,
		Service: service,
		Results: results,
		Limits:  limits,
		Checks:  checks,
	})

	// Apply middleware chain (order matters: outermost first)
	// Recovery -> Logging -> RateLimit -> Auth -> Handler
	recoveryMW := middleware.NewRecoveryMiddleware(logger)
	loggingMW := middleware.NewLoggingMiddleware(logger)
	rateLimitMW := middleware.NewRateLimitMiddleware(cfg.RateLimit, logger)
	rateLimitMW.SetMetrics(m)
	authMW := middleware.NewAuthMiddleware(cfg.Auth, logger)

	finalHandler := recoveryMW.Handler(
		loggingMW.Handler(
			rateLimitMW.Handler(
				authMW.Handler(handler),
			),
		),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           finalHandler,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       5 * time.Second,
		// Responses wait on the warehouse, so the write deadline trails the query timeout.
		WriteTimeout:   cfg.Query.Timeout + 10*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Info("HTTP server starting", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	go runEvery(ctx, time.Hour, func() {
		rateLimitMW.CleanupIPLimiters(time.Hour)
	})

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	// Stop background goroutines
	cancel()

	logger.Info("server stopped")
}

func runEvery(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fn()
		case <-ctx.Done():
			return
		}
	}
}
