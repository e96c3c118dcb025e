// Copyright (c) 2026 Minsik. All rights reserved.
// Author: contact@minsik.app

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, source adapters) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the Minsik ingestion daemon.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8084"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Store (Redis): job state, running locks, sweep cursors,
	// dump resume state, coverage cache.
	RedisURL string `env:"REDIS_URL,required"`

	// External sources
	OpenLibraryBaseURL   string        `env:"OPEN_LIBRARY_BASE_URL"   envDefault:"https://openlibrary.org"`
	GoogleBooksBaseURL   string        `env:"GOOGLE_BOOKS_BASE_URL"   envDefault:"https://www.googleapis.com/books/v1"`
	GoogleBooksAPIKey    string        `env:"GOOGLE_BOOKS_API_KEY"`
	SourceRequestTimeout time.Duration `env:"SOURCE_REQUEST_TIMEOUT"  envDefault:"30s"`
	SourceMaxRetries     int           `env:"SOURCE_MAX_RETRIES"      envDefault:"3"`
	SourceRetryDelay     time.Duration `env:"SOURCE_RETRY_DELAY"      envDefault:"5s"`
	SourceRateLimitRPS   float64       `env:"SOURCE_RATE_LIMIT_RPS"   envDefault:"3"`

	// Incremental ingestion jobs
	IngestionBatchSize int           `env:"INGESTION_BATCH_SIZE" envDefault:"50"`
	BatchTimeout       time.Duration `env:"BATCH_TIMEOUT"        envDefault:"5m"`

	// Matching
	FuzzyMatchThreshold float64 `env:"FUZZY_MATCH_THRESHOLD" envDefault:"0.82"`

	// Bulk dump import
	DumpBaseURL           string `env:"DUMP_BASE_URL"            envDefault:"https://openlibrary.org/data"`
	DumpTmpDir            string `env:"DUMP_TMP_DIR"             envDefault:"/tmp"`
	DumpBatchSize         int    `env:"DUMP_BATCH_SIZE"          envDefault:"500"`
	DumpWikidataEnabled   bool   `env:"DUMP_WIKIDATA_ENABLED"    envDefault:"true"`
	DumpEditionsEnabled   bool   `env:"DUMP_EDITIONS_ENABLED"    envDefault:"true"`
	DumpRatingsEnabled    bool   `env:"DUMP_RATINGS_ENABLED"     envDefault:"true"`
	DumpReadingLogEnabled bool   `env:"DUMP_READING_LOG_ENABLED" envDefault:"true"`

	// Continuous incremental sweeps
	SweepEnabled       bool          `env:"SWEEP_ENABLED"          envDefault:"true"`
	SweepOLInterval    time.Duration `env:"SWEEP_OL_INTERVAL"      envDefault:"1h"`
	SweepOLBooksPerRun int           `env:"SWEEP_OL_BOOKS_PER_RUN" envDefault:"100"`
	SweepGBInterval    time.Duration `env:"SWEEP_GB_INTERVAL"      envDefault:"6h"`
	SweepGBBooksPerRun int           `env:"SWEEP_GB_BOOKS_PER_RUN" envDefault:"40"`

	// Cleanup sweeper
	CleanupEnabled         bool          `env:"CLEANUP_ENABLED"           envDefault:"true"`
	CleanupInterval        time.Duration `env:"CLEANUP_INTERVAL"          envDefault:"24h"`
	CleanupBatchSize       int           `env:"CLEANUP_BATCH_SIZE"        envDefault:"500"`
	CleanupMinQualityScore int           `env:"CLEANUP_MIN_QUALITY_SCORE" envDefault:"3"`
	CleanupAuthorMinBooks  int           `env:"CLEANUP_AUTHOR_MIN_BOOKS"  envDefault:"1"`

	// Description enrichment (Wikipedia backfill)
	EnrichEnabled   bool          `env:"ENRICH_ENABLED"    envDefault:"true"`
	EnrichInterval  time.Duration `env:"ENRICH_INTERVAL"   envDefault:"2h"`
	EnrichBatchSize int           `env:"ENRICH_BATCH_SIZE" envDefault:"5"`
	EnrichMinLength int           `env:"ENRICH_MIN_LENGTH" envDefault:"100"`

	// Coverage estimator
	CoverageCacheTTL         time.Duration `env:"COVERAGE_CACHE_TTL"          envDefault:"10m"`
	SourceKnownTotalFallback int64         `env:"SOURCE_KNOWN_TOTAL_FALLBACK" envDefault:"10000000"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	return cfg, nil
}

// IsDevelopment reports whether the daemon is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the daemon is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
