// Package coverage estimates how much of a source's known catalog the
// local database already holds.
package coverage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/minsik-app/ingestion/internal/catalog"
	"github.com/minsik-app/ingestion/internal/platform/constants"
)

// KnownTotalSource answers how many records the external source knows for a
// language. Satisfied by the incremental source adapters.
type KnownTotalSource interface {
	KnownTotal(ctx context.Context, language string) (int64, error)
}

// Cache stores computed reports for the cache TTL. The canonical
// implementation is [RedisCache]; tests use an in-memory map.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Report is one coverage estimate.
type Report struct {
	DBBooksCount     int64   `json:"dbBooksCount"`
	DBAuthorsCount   int64   `json:"dbAuthorsCount"`
	DBSeriesCount    int64   `json:"dbSeriesCount"`
	SourceKnownTotal int64   `json:"sourceKnownTotal"`
	CoveragePercent  float64 `json:"coveragePercent"`
	Cached           bool    `json:"cached"`
}

// Estimator computes coverage reports, serving them from cache while fresh.
// Counting is approximate by design; the report is an operator signal, not
// an accounting value.
type Estimator struct {
	store    catalog.Store
	source   KnownTotalSource
	cache    Cache
	cacheTTL time.Duration
	logger   *slog.Logger
}

// New wires a coverage estimator.
func New(store catalog.Store, src KnownTotalSource, cache Cache, cacheTTL time.Duration, logger *slog.Logger) *Estimator {
	return &Estimator{
		store:    store,
		source:   src,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// Estimate returns the coverage report for a language. A cache hit returns
// the stored report with Cached set; cache failures fall through to a fresh
// computation.
func (e *Estimator) Estimate(ctx context.Context, language string) (*Report, error) {
	key := constants.RedisPrefixCoverage + language

	if value, hit, err := e.cache.Get(ctx, key); err != nil {
		e.logger.Warn("coverage_cache_read_failed", slog.Any("error", err))
	} else if hit {
		report := &Report{}
		if err := json.Unmarshal([]byte(value), report); err == nil {
			report.Cached = true
			return report, nil
		}
	}

	report, err := e.compute(ctx, language)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(report); err == nil {
		if err := e.cache.Set(ctx, key, string(encoded), e.cacheTTL); err != nil {
			e.logger.Warn("coverage_cache_write_failed", slog.Any("error", err))
		}
	}
	return report, nil
}

func (e *Estimator) compute(ctx context.Context, language string) (*Report, error) {
	report := &Report{}
	var err error

	if report.DBBooksCount, err = e.store.CountBooks(ctx, language); err != nil {
		return nil, err
	}
	if report.DBAuthorsCount, err = e.store.CountAuthors(ctx); err != nil {
		return nil, err
	}
	if report.DBSeriesCount, err = e.store.CountSeries(ctx); err != nil {
		return nil, err
	}

	report.SourceKnownTotal, err = e.source.KnownTotal(ctx, language)
	if err != nil {
		return nil, fmt.Errorf("coverage: known total: %w", err)
	}

	if report.SourceKnownTotal > 0 {
		percent := float64(report.DBBooksCount) / float64(report.SourceKnownTotal) * 100
		report.CoveragePercent = math.Round(percent*100) / 100
	}
	return report, nil
}

// RedisCache is the Redis-backed report cache.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps a Redis client as a [Cache].
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}
