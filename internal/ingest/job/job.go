// Package job owns the lifecycle of an ingestion run: triggering, batch
// processing with cumulative counters, cooperative cancellation, and job
// state persistence visible across processes.
package job

import "time"

// Status is an ingestion job's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Kind distinguishes the two ingestion paths.
type Kind string

const (
	KindIncremental Kind = "incremental"
	KindBulkImport  Kind = "bulk_import"
)

// Job is one ingestion run's persisted state.
type Job struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"kind"`
	Source   string `json:"source"`
	Language string `json:"language"`
	Status   Status `json:"status"`

	// Cumulative counters, updated after every batch and never rolled
	// back. Processed never exceeds Total.
	Total      int64 `json:"total"`
	Processed  int64 `json:"processed"`
	Successful int64 `json:"successful"`
	Failed     int64 `json:"failed"`

	Error string `json:"error,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
