package job

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned for unknown or expired job IDs.
var ErrJobNotFound = errors.New("job: not found")

// Store persists job state outside the worker process so status queries see
// a job regardless of which process runs it.
type Store interface {
	// Create persists a new job record.
	Create(ctx context.Context, j *Job) error

	// Get returns the job, or [ErrJobNotFound].
	Get(ctx context.Context, jobID string) (*Job, error)

	// Update rewrites the job's mutable fields (status, counters, error,
	// completion time).
	Update(ctx context.Context, j *Job) error

	// RequestCancel sets the cancellation flag the worker polls between
	// batches. Returns [ErrJobNotFound] for unknown jobs.
	RequestCancel(ctx context.Context, jobID string) error

	// IsCancelRequested reports whether cancellation has been requested.
	IsCancelRequested(ctx context.Context, jobID string) (bool, error)

	// AcquireRunning claims the per-(kind, source) running slot for jobID.
	// Returns false when another job already holds it.
	AcquireRunning(ctx context.Context, kind Kind, source, jobID string) (bool, error)

	// ReleaseRunning frees the slot if jobID still holds it.
	ReleaseRunning(ctx context.Context, kind Kind, source, jobID string) error
}
