// Package ingesterr defines the error taxonomy shared by all ingestion
// components. Callers classify failures with [errors.Is] against the
// sentinel values, or [As] when they need the wrapped detail.
package ingesterr

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every failure leaving an ingestion component wraps
// exactly one of these.
var (
	// ErrSourceUnavailable marks transient upstream failures (timeouts,
	// HTTP 429/5xx). Retryable with backoff; surfaces as 503.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrMalformedRecord marks a record the adapter could not normalize.
	// Never retried; the record is counted failed and the batch continues.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrPersistenceConflict marks a concurrent-write collision. Batch
	// persistence retries once before counting the records failed.
	ErrPersistenceConflict = errors.New("persistence conflict")

	// ErrConfiguration marks an invalid operation request (unknown source,
	// non-positive total). Fails the operation immediately; surfaces as 400.
	ErrConfiguration = errors.New("configuration error")

	// ErrCancellationRequested is the terminal cause recorded when a job
	// observes its cancel flag at a batch boundary.
	ErrCancellationRequested = errors.New("cancellation requested")
)

// Error couples a sentinel with context about where it happened.
type Error struct {
	// Kind is one of the package sentinels.
	Kind error
	// Op names the failing operation, e.g. "source.fetch" or "job.persist".
	Op string
	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Cause)
}

// Is reports whether target matches the sentinel kind.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// Unwrap exposes the underlying cause for [errors.As] traversal.
func (e *Error) Unwrap() error { return e.Cause }

// SourceUnavailable wraps cause as a retryable upstream failure.
func SourceUnavailable(op string, cause error) error {
	return &Error{Kind: ErrSourceUnavailable, Op: op, Cause: cause}
}

// MalformedRecord wraps cause as an unrecoverable per-record failure.
func MalformedRecord(op string, cause error) error {
	return &Error{Kind: ErrMalformedRecord, Op: op, Cause: cause}
}

// PersistenceConflict wraps cause as a concurrent-write collision.
func PersistenceConflict(op string, cause error) error {
	return &Error{Kind: ErrPersistenceConflict, Op: op, Cause: cause}
}

// Configuration wraps cause as an invalid-request failure.
func Configuration(op string, cause error) error {
	return &Error{Kind: ErrConfiguration, Op: op, Cause: cause}
}

// Cancelled marks op as stopped by an observed cancel request.
func Cancelled(op string) error {
	return &Error{Kind: ErrCancellationRequested, Op: op}
}

// As extracts the taxonomy [*Error] from err's chain, or nil.
func As(err error) *Error {
	var ie *Error
	if errors.As(err, &ie) {
		return ie
	}
	return nil
}
