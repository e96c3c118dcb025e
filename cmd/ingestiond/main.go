// Copyright (c) 2026 Minsik. All rights reserved.
// Author: contact@minsik.app

// Command ingestiond is the entry point for the Minsik ingestion daemon.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Wire source adapters, pipeline, orchestrator, importer, schedulers.
//  7. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/minsik-app/ingestion/internal/api"
	"github.com/minsik-app/ingestion/internal/catalog"
	"github.com/minsik-app/ingestion/internal/ingest/coverage"
	"github.com/minsik-app/ingestion/internal/ingest/dump"
	"github.com/minsik-app/ingestion/internal/ingest/job"
	"github.com/minsik-app/ingestion/internal/ingest/match"
	"github.com/minsik-app/ingestion/internal/ingest/pipeline"
	"github.com/minsik-app/ingestion/internal/ingest/record"
	"github.com/minsik-app/ingestion/internal/ingest/source"
	"github.com/minsik-app/ingestion/internal/ingest/sweep"
	"github.com/minsik-app/ingestion/internal/platform/config"
	"github.com/minsik-app/ingestion/internal/platform/constants"
	"github.com/minsik-app/ingestion/internal/platform/migration"
	pgstore "github.com/minsik-app/ingestion/internal/platform/postgres"
	redisstore "github.com/minsik-app/ingestion/internal/platform/redis"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", constants.AppName))
	slog.SetDefault(log)

	log.Info("[Minsik] ingestion_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", constants.AppName))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Health handlers (wired with real dependency checkers) ──────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckCache: func() error {
			return redisstore.Ping(context.Background(), rdb)
		},
	}, log)

	// ── 7. Domain Wiring ──────────────────────────────────────────────────
	store := catalog.NewPostgresStore(pool)

	sourceClient := source.NewClient(source.ClientOptions{
		Timeout:    cfg.SourceRequestTimeout,
		MaxRetries: cfg.SourceMaxRetries,
		RetryDelay: cfg.SourceRetryDelay,
		RateLimit:  cfg.SourceRateLimitRPS,
	})
	openLibrary := source.NewOpenLibrary(sourceClient, cfg.OpenLibraryBaseURL, cfg.SourceKnownTotalFallback)
	googleBooks := source.NewGoogleBooks(sourceClient, cfg.GoogleBooksBaseURL, cfg.GoogleBooksAPIKey, cfg.SourceKnownTotalFallback)
	adapters := map[string]source.Incremental{
		record.SourceOpenLibrary: openLibrary,
		record.SourceGoogleBooks: googleBooks,
	}

	matcher := match.New(store, cfg.FuzzyMatchThreshold, log)
	proc := pipeline.New(store, matcher, log)

	// workerCtx outlives individual HTTP requests; cancelling it stops all
	// background work at the next batch boundary.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	jobStore := job.NewRedisStore(rdb)
	orchestrator := job.NewOrchestrator(workerCtx, jobStore, adapters, proc, job.Options{
		BatchSize:    cfg.IngestionBatchSize,
		BatchTimeout: cfg.BatchTimeout,
	}, log)

	importer := dump.NewImporter(store, rdb, sourceClient, dump.Options{
		BaseURL:           cfg.DumpBaseURL,
		TmpDir:            cfg.DumpTmpDir,
		BatchSize:         cfg.DumpBatchSize,
		WikidataEnabled:   cfg.DumpWikidataEnabled,
		EditionsEnabled:   cfg.DumpEditionsEnabled,
		RatingsEnabled:    cfg.DumpRatingsEnabled,
		ReadingLogEnabled: cfg.DumpReadingLogEnabled,
	}, log)

	estimator := coverage.New(store, openLibrary, coverage.NewRedisCache(rdb), cfg.CoverageCacheTTL, log)

	// ── 8. Background loops ───────────────────────────────────────────────
	var cleaner *sweep.Cleaner
	if cfg.CleanupEnabled {
		cleaner = sweep.NewCleaner(store, sweep.CleanupOptions{
			MinQualityScore: cfg.CleanupMinQualityScore,
			AuthorMinBooks:  cfg.CleanupAuthorMinBooks,
			BatchSize:       cfg.CleanupBatchSize,
		}, log)
	}

	var enricher *sweep.Enricher
	if cfg.EnrichEnabled {
		wikipedia := source.NewWikipedia(sourceClient)
		enricher = sweep.NewEnricher(store, wikipedia, sweep.EnrichOptions{
			BatchSize: cfg.EnrichBatchSize,
			MinLength: cfg.EnrichMinLength,
		}, log)
	}

	var sweeps []sweep.SourceSweep
	if cfg.SweepEnabled {
		sweeps = []sweep.SourceSweep{
			{Adapter: openLibrary, Interval: cfg.SweepOLInterval, BooksPerRun: cfg.SweepOLBooksPerRun, Language: "en"},
			{Adapter: googleBooks, Interval: cfg.SweepGBInterval, BooksPerRun: cfg.SweepGBBooksPerRun, Language: "en"},
		}
	}

	scheduler := sweep.NewScheduler(rdb, proc, importer, sweeps,
		cleaner, cfg.CleanupInterval,
		enricher, cfg.EnrichInterval,
		log,
	)
	scheduler.Start(workerCtx)

	// ── 9. HTTP Server ────────────────────────────────────────────────────
	ingestionHandler := api.NewHandler(orchestrator, importer, estimator, map[string]api.Searcher{
		record.SourceOpenLibrary: openLibrary,
		record.SourceGoogleBooks: googleBooks,
	}, log)

	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Ingestion: ingestionHandler,
	}

	server := api.NewServer(workerCtx, cfg, log, handlers)

	// ── 10. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	// Stop background loops and wait for running jobs to reach a batch
	// boundary before releasing the process.
	workerCancel()
	scheduler.Wait()
	orchestrator.Wait()

	log.Info("server stopped cleanly")
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
