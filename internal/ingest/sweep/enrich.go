package sweep

import (
	"context"
	"log/slog"

	"github.com/minsik-app/ingestion/internal/catalog"
)

// DescriptionSource answers free-text lookups for the enricher. Satisfied
// by [source.Wikipedia].
type DescriptionSource interface {
	Description(ctx context.Context, searchTerm string) (string, error)
}

// EnrichOptions tunes one enrichment pass.
type EnrichOptions struct {
	BatchSize int
	MinLength int
}

// EnrichSummary reports how many rows one pass backfilled.
type EnrichSummary struct {
	Books   int `json:"books"`
	Authors int `json:"authors"`
	Series  int `json:"series"`
}

// Enricher backfills missing or stubby descriptions from Wikipedia. A
// fetched text shorter than MinLength is discarded; the store-side guard
// keeps a better description from being replaced by a worse one.
type Enricher struct {
	store  catalog.Store
	source DescriptionSource
	opts   EnrichOptions
	logger *slog.Logger
}

// NewEnricher wires a description enrichment runner.
func NewEnricher(store catalog.Store, src DescriptionSource, opts EnrichOptions, logger *slog.Logger) *Enricher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if opts.MinLength <= 0 {
		opts.MinLength = 100
	}
	return &Enricher{store: store, source: src, opts: opts, logger: logger}
}

// RunOnce executes one enrichment pass over books, authors, and series.
func (e *Enricher) RunOnce(ctx context.Context) (EnrichSummary, error) {
	summary := EnrichSummary{}
	var err error

	if summary.Books, err = e.enrichBooks(ctx); err != nil {
		return summary, err
	}
	if summary.Authors, err = e.enrichAuthors(ctx); err != nil {
		return summary, err
	}
	if summary.Series, err = e.enrichSeries(ctx); err != nil {
		return summary, err
	}

	e.logger.Info("enrich_pass_complete",
		slog.Int("books", summary.Books),
		slog.Int("authors", summary.Authors),
		slog.Int("series", summary.Series),
	)
	return summary, nil
}

func (e *Enricher) enrichBooks(ctx context.Context) (int, error) {
	books, err := e.store.BooksNeedingDescription(ctx, e.opts.MinLength, e.opts.BatchSize)
	if err != nil {
		return 0, err
	}

	updated := 0
	for i := range books {
		book := &books[i]
		searchTerm := book.Title + " novel"
		if book.FirstAuthorName != nil && *book.FirstAuthorName != "" {
			searchTerm = book.Title + " " + *book.FirstAuthorName + " novel"
		}

		description := e.lookup(ctx, searchTerm)
		if description == "" {
			continue
		}
		if err := e.store.SetBookDescription(ctx, book.ID, description); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

func (e *Enricher) enrichAuthors(ctx context.Context) (int, error) {
	authors, err := e.store.AuthorsNeedingBio(ctx, e.opts.MinLength, e.opts.BatchSize)
	if err != nil {
		return 0, err
	}

	updated := 0
	for i := range authors {
		bio := e.lookup(ctx, authors[i].Name+" author")
		if bio == "" {
			continue
		}
		if err := e.store.SetAuthorBio(ctx, authors[i].ID, bio); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

func (e *Enricher) enrichSeries(ctx context.Context) (int, error) {
	series, err := e.store.SeriesNeedingDescription(ctx, e.opts.MinLength, e.opts.BatchSize)
	if err != nil {
		return 0, err
	}

	updated := 0
	for i := range series {
		description := e.lookup(ctx, series[i].Name+" book series")
		if description == "" {
			continue
		}
		if err := e.store.SetSeriesDescription(ctx, series[i].ID, description); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

// lookup fetches one description, returning "" on failure or when the text
// is too short to be worth writing. Lookup failures never fail a pass.
func (e *Enricher) lookup(ctx context.Context, searchTerm string) string {
	description, err := e.source.Description(ctx, searchTerm)
	if err != nil {
		e.logger.Debug("enrich_lookup_failed",
			slog.String("search_term", searchTerm), slog.Any("error", err))
		return ""
	}
	if len(description) < e.opts.MinLength {
		return ""
	}
	return description
}
