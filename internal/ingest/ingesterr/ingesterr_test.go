package ingesterr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minsik-app/ingestion/internal/ingest/ingesterr"
)

/*
TestError_Is verifies sentinel classification through wrapped chains.
*/
func TestError_Is(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"source_unavailable", ingesterr.SourceUnavailable("source.fetch", errors.New("429")), ingesterr.ErrSourceUnavailable},
		{"malformed_record", ingesterr.MalformedRecord("adapter.parse", errors.New("no title")), ingesterr.ErrMalformedRecord},
		{"persistence_conflict", ingesterr.PersistenceConflict("catalog.upsert", errors.New("23505")), ingesterr.ErrPersistenceConflict},
		{"configuration", ingesterr.Configuration("job.trigger", errors.New("bad source")), ingesterr.ErrConfiguration},
		{"cancelled", ingesterr.Cancelled("job.batch"), ingesterr.ErrCancellationRequested},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel)

			// Wrapping one more level must not break classification
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
		})
	}
}

/*
TestError_DoesNotMatchOtherSentinels ensures kinds stay distinct.
*/
func TestError_DoesNotMatchOtherSentinels(t *testing.T) {
	err := ingesterr.SourceUnavailable("source.fetch", errors.New("timeout"))

	assert.NotErrorIs(t, err, ingesterr.ErrMalformedRecord)
	assert.NotErrorIs(t, err, ingesterr.ErrPersistenceConflict)
	assert.NotErrorIs(t, err, ingesterr.ErrConfiguration)
}

/*
TestError_As extracts the structured error with its operation name.
*/
func TestError_As(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("batch 3: %w", ingesterr.SourceUnavailable("openlibrary.next_batch", cause))

	ie := ingesterr.As(err)
	require.NotNil(t, ie)
	assert.Equal(t, "openlibrary.next_batch", ie.Op)
	assert.ErrorIs(t, ie.Cause, cause)
}

/*
TestError_Message checks the rendered text includes op, kind, and cause.
*/
func TestError_Message(t *testing.T) {
	err := ingesterr.MalformedRecord("adapter.parse", errors.New("missing language"))
	assert.Contains(t, err.Error(), "adapter.parse")
	assert.Contains(t, err.Error(), "malformed record")
	assert.Contains(t, err.Error(), "missing language")

	noCause := ingesterr.Cancelled("job.worker")
	assert.Contains(t, noCause.Error(), "cancellation requested")
}
