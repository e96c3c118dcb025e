package sweep

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/minsik-app/ingestion/internal/ingest/record"
	"github.com/minsik-app/ingestion/internal/ingest/source"
	"github.com/minsik-app/ingestion/internal/platform/constants"
)

// Processor applies a batch of fetched records to the catalog.
type Processor interface {
	ProcessBatch(ctx context.Context, records []record.Raw) (successful, failed int64, err error)
}

// DumpGate reports whether a bulk dump import is running. Sweep loops skip
// their cycle while one is, so the two paths never fight over the catalog.
type DumpGate interface {
	Running(ctx context.Context) (bool, error)
}

// SourceSweep configures one per-source incremental sweep loop.
type SourceSweep struct {
	Adapter     source.Incremental
	Interval    time.Duration
	BooksPerRun int
	Language    string
}

// Scheduler runs the interval loops: one incremental sweep per source, the
// cleanup pass, and the description enrichment pass. Each loop is an
// independent goroutine shut down through the context.
type Scheduler struct {
	redis    *redis.Client
	proc     Processor
	gate     DumpGate
	cleaner  *Cleaner
	enricher *Enricher
	logger   *slog.Logger

	sweeps          []SourceSweep
	cleanupInterval time.Duration
	enrichInterval  time.Duration

	wg sync.WaitGroup
}

// NewScheduler wires the background loops. A nil cleaner or enricher
// disables the respective loop; an empty sweeps list disables sweeping.
func NewScheduler(
	redisClient *redis.Client,
	proc Processor,
	gate DumpGate,
	sweeps []SourceSweep,
	cleaner *Cleaner, cleanupInterval time.Duration,
	enricher *Enricher, enrichInterval time.Duration,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		redis:           redisClient,
		proc:            proc,
		gate:            gate,
		cleaner:         cleaner,
		enricher:        enricher,
		logger:          logger,
		sweeps:          sweeps,
		cleanupInterval: cleanupInterval,
		enrichInterval:  enrichInterval,
	}
}

// Start launches the loops. They stop when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	for _, sweep := range s.sweeps {
		s.wg.Add(1)
		go func(sw SourceSweep) {
			defer s.wg.Done()
			s.loop(ctx, sw.Interval, sw.Adapter.Name()+"_sweep", func(ctx context.Context) {
				s.runSweep(ctx, sw)
			})
		}(sweep)
	}

	if s.cleaner != nil && s.cleanupInterval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.loop(ctx, s.cleanupInterval, "cleanup", func(ctx context.Context) {
				if _, err := s.cleaner.RunOnce(ctx); err != nil {
					s.logger.Error("cleanup_pass_failed", slog.Any("error", err))
				}
			})
		}()
	}

	if s.enricher != nil && s.enrichInterval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.loop(ctx, s.enrichInterval, "enrich", func(ctx context.Context) {
				if _, err := s.enricher.RunOnce(ctx); err != nil {
					s.logger.Error("enrich_pass_failed", slog.Any("error", err))
				}
			})
		}()
	}
}

// Wait blocks until every loop has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// loop runs fn every interval, skipping cycles while a dump import runs.
func (s *Scheduler) loop(ctx context.Context, interval time.Duration, name string, fn func(context.Context)) {
	s.logger.Info("scheduler_loop_started",
		slog.String("loop", name), slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler_loop_stopped", slog.String("loop", name))
			return
		case <-ticker.C:
		}

		if running, err := s.gate.Running(ctx); err != nil {
			s.logger.Warn("scheduler_gate_check_failed",
				slog.String("loop", name), slog.Any("error", err))
			continue
		} else if running {
			s.logger.Info("scheduler_cycle_skipped",
				slog.String("loop", name), slog.String("reason", "dump import running"))
			continue
		}

		fn(ctx)
	}
}

// runSweep fetches one incremental batch from the source at its persisted
// cursor and feeds it through the processor. When the source reports
// exhaustion the cursor resets so the next cycle starts over.
func (s *Scheduler) runSweep(ctx context.Context, sw SourceSweep) {
	cursorKey := constants.RedisPrefixCursor + sw.Adapter.Name()
	cursor, err := s.loadCursor(ctx, cursorKey)
	if err != nil {
		s.logger.Warn("sweep_cursor_load_failed",
			slog.String("source", sw.Adapter.Name()), slog.Any("error", err))
		return
	}

	records, nextCursor, done, err := sw.Adapter.NextBatch(ctx, cursor, sw.BooksPerRun, sw.Language)
	if err != nil {
		s.logger.Warn("sweep_fetch_failed",
			slog.String("source", sw.Adapter.Name()), slog.Any("error", err))
		return
	}

	successful, failed, err := s.proc.ProcessBatch(ctx, records)
	if err != nil {
		s.logger.Error("sweep_batch_failed",
			slog.String("source", sw.Adapter.Name()), slog.Any("error", err))
		return
	}

	if done {
		nextCursor = 0
	}
	if err := s.redis.Set(ctx, cursorKey, strconv.FormatInt(nextCursor, 10), 0).Err(); err != nil {
		s.logger.Warn("sweep_cursor_save_failed",
			slog.String("source", sw.Adapter.Name()), slog.Any("error", err))
	}

	s.logger.Info("sweep_cycle_complete",
		slog.String("source", sw.Adapter.Name()),
		slog.Int("fetched", len(records)),
		slog.Int64("successful", successful),
		slog.Int64("failed", failed),
		slog.Int64("next_cursor", nextCursor),
	)
}

func (s *Scheduler) loadCursor(ctx context.Context, key string) (int64, error) {
	value, err := s.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	cursor, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, nil
	}
	return cursor, nil
}
