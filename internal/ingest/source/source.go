// Package source implements the external book-metadata adapters: the Open
// Library and Google Books incremental APIs and the Open Library bulk dump
// reader. Adapters normalize source payloads into [record.Raw] and map
// transport failures into the ingestion error taxonomy.
package source

import (
	"context"

	"github.com/minsik-app/ingestion/internal/ingest/record"
)

// Incremental is the contract every incremental source adapter satisfies.
type Incremental interface {
	// Name returns the adapter's source identifier
	// (record.SourceOpenLibrary or record.SourceGoogleBooks).
	Name() string

	// NextBatch fetches up to batchSize normalized records starting at
	// cursor. It returns the records, the cursor for the following call,
	// and done when the source is exhausted for this cursor position.
	// Records failing normalization are silently skipped.
	NextBatch(ctx context.Context, cursor int64, batchSize int, language string) (records []record.Raw, nextCursor int64, done bool, err error)

	// Search looks up records by title and author without touching the
	// catalog. Used by the read-through search operation.
	Search(ctx context.Context, title, author string, limit int) ([]record.Raw, error)

	// KnownTotal estimates the number of records the source knows for a
	// language. Used by the coverage estimator; a source that cannot
	// answer returns its configured fallback.
	KnownTotal(ctx context.Context, language string) (int64, error)
}
