package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/minsik-app/ingestion/internal/ingest/ingesterr"
	"github.com/minsik-app/ingestion/internal/ingest/record"
	"github.com/minsik-app/ingestion/internal/ingest/source"
	"github.com/minsik-app/ingestion/internal/platform/apperr"
	"github.com/minsik-app/ingestion/pkg/uuidv7"
)

// Processor applies one batch of normalized records to the catalog.
// Per-record failures are counted, never propagated; a returned error is
// fatal for the job.
type Processor interface {
	ProcessBatch(ctx context.Context, records []record.Raw) (successful, failed int64, err error)
}

// Options tunes the orchestrator.
type Options struct {
	BatchSize    int
	BatchTimeout time.Duration
}

// Orchestrator runs ingestion jobs: one worker goroutine per running job,
// batches processed sequentially within a job so counters stay
// deterministic.
type Orchestrator struct {
	store     Store
	adapters  map[string]source.Incremental
	processor Processor
	opts      Options
	logger    *slog.Logger

	// workerCtx outlives the trigger request; jobs stop via the
	// cooperative cancel flag or process shutdown, not request timeout.
	workerCtx context.Context
	wg        sync.WaitGroup
}

// NewOrchestrator wires the orchestrator. workerCtx bounds all spawned
// workers; cancelling it stops every job at its next batch boundary.
func NewOrchestrator(workerCtx context.Context, store Store, adapters map[string]source.Incremental, processor Processor, opts Options, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:     store,
		adapters:  adapters,
		processor: processor,
		opts:      opts,
		logger:    logger,
		workerCtx: workerCtx,
	}
}

// Trigger starts an incremental ingestion job. At most one running job per
// (kind, source) pair is permitted; a duplicate trigger is rejected, not
// queued.
func (o *Orchestrator) Trigger(ctx context.Context, totalBooks int64, src, language string) (*Job, error) {
	if totalBooks <= 0 {
		return nil, apperr.ValidationError("total_books must be positive")
	}
	if !record.ValidSource(src) {
		return nil, apperr.ValidationError("unknown source: "+src)
	}
	if len(language) < 2 {
		return nil, apperr.ValidationError("language must be an ISO 639-1 code")
	}

	adapters := o.resolveAdapters(src)
	if len(adapters) == 0 {
		return nil, ingesterr.Configuration("job.trigger", fmt.Errorf("no adapter configured for source %s", src))
	}

	j := &Job{
		ID:        uuidv7.New(),
		Kind:      KindIncremental,
		Source:    src,
		Language:  language,
		Status:    StatusPending,
		Total:     totalBooks,
		StartedAt: time.Now().UTC(),
	}

	acquired, err := o.store.AcquireRunning(ctx, j.Kind, src, j.ID)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, apperr.Conflict(fmt.Sprintf("an ingestion job for source %s is already running", src))
	}

	if err := o.store.Create(ctx, j); err != nil {
		_ = o.store.ReleaseRunning(ctx, j.Kind, src, j.ID)
		return nil, err
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(j, adapters)
	}()

	return j, nil
}

// Status returns the persisted state of a job.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (*Job, error) {
	j, err := o.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return nil, apperr.NotFound("ingestion job")
		}
		return nil, err
	}
	return j, nil
}

// Cancel requests cooperative cancellation. The worker observes the flag at
// its next batch boundary; an immediate stop is not guaranteed.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) error {
	j, err := o.Status(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status.Terminal() {
		return apperr.Conflict(fmt.Sprintf("job %s already %s", jobID, j.Status))
	}
	return o.store.RequestCancel(ctx, jobID)
}

// Wait blocks until every spawned worker has finished. Used at shutdown.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) resolveAdapters(src string) []source.Incremental {
	if src == record.SourceBoth {
		var adapters []source.Incremental
		for _, name := range []string{record.SourceOpenLibrary, record.SourceGoogleBooks} {
			if adapter, ok := o.adapters[name]; ok {
				adapters = append(adapters, adapter)
			}
		}
		return adapters
	}
	if adapter, ok := o.adapters[src]; ok {
		return []source.Incremental{adapter}
	}
	return nil
}

// run is the worker loop for one job. Adapters are drained round-robin,
// each with its own cursor; counters persist after every batch and survive
// failure or cancellation.
func (o *Orchestrator) run(j *Job, adapters []source.Incremental) {
	ctx := o.workerCtx
	logger := o.logger.With(
		slog.String("job_id", j.ID),
		slog.String("source", j.Source),
		slog.String("language", j.Language),
	)

	defer func() {
		if err := o.store.ReleaseRunning(context.WithoutCancel(ctx), j.Kind, j.Source, j.ID); err != nil {
			logger.Warn("running_lock_release_failed", slog.Any("error", err))
		}
	}()

	j.Status = StatusRunning
	if err := o.store.Update(ctx, j); err != nil {
		logger.Error("job_claim_failed", slog.Any("error", err))
		return
	}
	logger.Info("ingestion_job_started", slog.Int64("total", j.Total))

	cursors := make([]int64, len(adapters))
	exhausted := make([]bool, len(adapters))

	for j.Processed < j.Total {
		if o.finishIfCancelled(ctx, j, logger) {
			return
		}

		progressed := false
		for i, adapter := range adapters {
			if exhausted[i] || j.Processed >= j.Total {
				continue
			}

			batchSize := o.opts.BatchSize
			if remaining := j.Total - j.Processed; remaining < int64(batchSize) {
				batchSize = int(remaining)
			}

			ok, err := o.runBatch(ctx, j, adapter, cursors, exhausted, i, batchSize)
			if err != nil {
				o.finalize(ctx, j, StatusFailed, err.Error(), logger)
				return
			}
			if ok {
				progressed = true
			}

			if err := o.store.Update(ctx, j); err != nil {
				logger.Warn("job_counter_persist_failed", slog.Any("error", err))
			}
			if o.finishIfCancelled(ctx, j, logger) {
				return
			}
		}

		if !progressed {
			break
		}
	}

	o.finalize(ctx, j, StatusCompleted, "", logger)
}

// runBatch pulls and processes one batch from one adapter. Returns whether
// any record was consumed; a returned error fails the whole job.
func (o *Orchestrator) runBatch(ctx context.Context, j *Job, adapter source.Incremental, cursors []int64, exhausted []bool, i, batchSize int) (bool, error) {
	batchCtx, cancel := context.WithTimeout(ctx, o.opts.BatchTimeout)
	defer cancel()

	records, nextCursor, done, err := adapter.NextBatch(batchCtx, cursors[i], batchSize, j.Language)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return false, nil
		}
		return false, fmt.Errorf("source %s: %w", adapter.Name(), err)
	}
	cursors[i] = nextCursor
	if done {
		exhausted[i] = true
	}
	if len(records) == 0 {
		return false, nil
	}

	successful, failed, err := o.processor.ProcessBatch(batchCtx, records)
	j.Processed += successful + failed
	j.Successful += successful
	j.Failed += failed
	if err != nil {
		return true, fmt.Errorf("source %s: %w", adapter.Name(), err)
	}
	return true, nil
}

// finishIfCancelled checks the cooperative flag and, when set, finalizes
// the job as cancelled keeping all committed counters.
func (o *Orchestrator) finishIfCancelled(ctx context.Context, j *Job, logger *slog.Logger) bool {
	if ctx.Err() != nil {
		o.finalize(ctx, j, StatusCancelled, "", logger)
		return true
	}

	cancelled, err := o.store.IsCancelRequested(ctx, j.ID)
	if err != nil {
		logger.Warn("cancel_flag_check_failed", slog.Any("error", err))
		return false
	}
	if cancelled {
		o.finalize(ctx, j, StatusCancelled, "", logger)
	}
	return cancelled
}

func (o *Orchestrator) finalize(ctx context.Context, j *Job, status Status, errMessage string, logger *slog.Logger) {
	now := time.Now().UTC()
	j.Status = status
	j.Error = errMessage
	j.CompletedAt = &now

	if err := o.store.Update(context.WithoutCancel(ctx), j); err != nil {
		logger.Error("job_finalize_failed", slog.Any("error", err))
		return
	}

	logger.Info("ingestion_job_finished",
		slog.String("status", string(status)),
		slog.Int64("processed", j.Processed),
		slog.Int64("successful", j.Successful),
		slog.Int64("failed", j.Failed),
	)
}
