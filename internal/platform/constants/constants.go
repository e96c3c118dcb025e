// Copyright (c) 2026 Minsik. All rights reserved.
// Author: contact@minsik.app

/*
Package constants provides centralized, immutable values for the entire platform.

It defines default timeouts, rate limits, and cross-cutting keys that are shared
between different layers of the system.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the HTTP server.
  - Rate Limiting: Burst capacities and IP tracking TTLs.
  - Redis Taxonomy: Key prefixes for job state, locks, cursors and caches.

Using this package ensures Magic Strings and Magic Numbers are eliminated
from the business logic.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "minsik-ingestion"
	AppVersion = "0.1.0-dev"

	// UserAgent identifies the daemon to external sources. Open Library's
	// API policy requires a contact address in the agent string.
	UserAgent = "Minsik/1.0 (contact@minsik.app)"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests and running
	// jobs to wind down during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # Rate Limiting

const (
	// DefaultRateLimitRPS is the requests per second allowed per IP.
	DefaultRateLimitRPS = 100.0

	// DefaultRateLimitBurst is the maximum burst allowed for the rate limiter.
	DefaultRateLimitBurst = 150

	// RateLimitCleanupInterval is how often old IP entries are removed from memory.
	RateLimitCleanupInterval = 1 * time.Minute

	// RateLimitClientTTL is how long a client must be idle before its entry is deleted.
	RateLimitClientTTL = 3 * time.Minute
)

// # HTTP Headers

const (
	HeaderXRequestID    = "X-Request-ID"
	HeaderXRealIP       = "X-Real-IP"
	HeaderXForwardedFor = "X-Forwarded-For"
)

// # JSON Field Identifiers

const (
	FieldData    = "data"
	FieldMeta    = "meta"
	FieldError   = "error"
	FieldCode    = "code"
	FieldDetails = "details"
	FieldMessage = "message"
	FieldStatus  = "status"
	FieldApp     = "app"
	FieldVersion = "version"
	FieldChecks  = "checks"
)

// # Database Schemas

const (
	SchemaBooks    = "books"
	SchemaUserData = "user_data"
)

// # Redis Prefixes (State Taxonomy)

const (
	// RedisPrefixJob is the hash holding one ingestion job's state.
	RedisPrefixJob = "ingestion:job:"

	// RedisPrefixRunning is the per-(kind,source) running lock.
	RedisPrefixRunning = "ingestion:running:"

	// RedisPrefixCursor is the per-source continuous-sweep offset.
	RedisPrefixCursor = "ingestion:cursor:"

	// RedisKeyDumpState is the hash of cumulative dump-import counters.
	RedisKeyDumpState = "ingestion:dump:state"

	// RedisKeyDumpRunning marks an in-flight dump import. Sweeps and
	// cleanup skip their cycle while it is set.
	RedisKeyDumpRunning = "ingestion:dump:running"

	// RedisPrefixCoverage caches coverage estimates per language.
	RedisPrefixCoverage = "ingestion:coverage:"
)

// # State TTLs

const (
	// JobStateTTL is how long a finished job's state remains queryable.
	JobStateTTL = 7 * 24 * time.Hour

	// RunningLockTTL bounds a stale running lock after a crashed worker.
	RunningLockTTL = 24 * time.Hour
)
