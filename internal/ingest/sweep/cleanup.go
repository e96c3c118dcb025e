// Package sweep hosts the periodic background loops: the per-source
// incremental catalog sweep, the low-quality cleanup pass, and the
// Wikipedia description enricher.
package sweep

import (
	"context"
	"log/slog"

	"github.com/minsik-app/ingestion/internal/catalog"
)

// CleanupOptions tunes one cleanup pass.
type CleanupOptions struct {
	MinQualityScore int
	AuthorMinBooks  int
	BatchSize       int
}

// CleanupSummary reports what one pass removed.
type CleanupSummary struct {
	BooksEligible  int64 `json:"booksEligible"`
	BooksDeleted   int64 `json:"booksDeleted"`
	AuthorsDeleted int64 `json:"authorsDeleted"`
	SeriesDeleted  int64 `json:"seriesDeleted"`
	GenresDeleted  int64 `json:"genresDeleted"`
}

// Cleaner removes metadata-poor books nobody has touched and the authors,
// series, and genres left orphaned afterwards.
type Cleaner struct {
	store  catalog.Store
	opts   CleanupOptions
	logger *slog.Logger
}

// NewCleaner wires a cleanup pass runner.
func NewCleaner(store catalog.Store, opts CleanupOptions, logger *slog.Logger) *Cleaner {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	return &Cleaner{store: store, opts: opts, logger: logger}
}

// RunOnce executes one full cleanup pass. Books go first so the orphan
// passes see the links they released.
func (c *Cleaner) RunOnce(ctx context.Context) (CleanupSummary, error) {
	summary := CleanupSummary{}

	books, err := c.store.DeleteLowQualityBooks(ctx, c.opts.MinQualityScore, c.opts.BatchSize)
	if err != nil {
		return summary, err
	}
	summary.BooksEligible = books.Eligible
	summary.BooksDeleted = books.Deleted

	authors, err := c.store.DeleteOrphanAuthors(ctx, c.opts.AuthorMinBooks, c.opts.BatchSize)
	if err != nil {
		return summary, err
	}
	summary.AuthorsDeleted = authors.Deleted

	if summary.SeriesDeleted, err = c.store.DeleteOrphanSeries(ctx, c.opts.BatchSize); err != nil {
		return summary, err
	}
	if summary.GenresDeleted, err = c.store.DeleteOrphanGenres(ctx, c.opts.BatchSize); err != nil {
		return summary, err
	}

	c.logger.Info("cleanup_pass_complete",
		slog.Int64("books_deleted", summary.BooksDeleted),
		slog.Int64("authors_deleted", summary.AuthorsDeleted),
		slog.Int64("series_deleted", summary.SeriesDeleted),
		slog.Int64("genres_deleted", summary.GenresDeleted),
	)
	return summary, nil
}
