// Package match resolves normalized source records against the catalog:
// external-ID lookup first, then a language-scoped fuzzy comparison on
// (slug, first author). The decision is deterministic so that re-ingesting
// the same snapshot is idempotent.
package match

import (
	"context"
	"errors"
	"log/slog"

	"github.com/minsik-app/ingestion/internal/catalog"
	"github.com/minsik-app/ingestion/internal/ingest/record"
	"github.com/minsik-app/ingestion/internal/platform/dberr"
)

// Confidence tags how a book match was established.
type Confidence string

const (
	// ConfidenceExact means the record's source-native external ID is
	// already present on a catalog book.
	ConfidenceExact Confidence = "exact"

	// ConfidenceFuzzy means the book was found via (language, slug) plus
	// first-author similarity above the configured threshold.
	ConfidenceFuzzy Confidence = "fuzzy"

	// ConfidenceNone means no existing book matched; the record creates a
	// new entity.
	ConfidenceNone Confidence = "none"
)

// Result is the outcome of matching one record. A book match does not imply
// its authors or series exist; each is resolved independently.
type Result struct {
	Book       *catalog.Book
	Confidence Confidence

	// AuthorIDs maps author slug to an existing author ID, only for the
	// record's authors that already exist.
	AuthorIDs map[string]int64

	// SeriesID is set when the record's series already exists.
	SeriesID *int64
}

// Matcher resolves records against the catalog store.
type Matcher struct {
	store     catalog.Store
	threshold float64
	logger    *slog.Logger
}

// New builds a Matcher. threshold is the minimum first-author similarity for
// the fuzzy path.
func New(store catalog.Store, threshold float64, logger *slog.Logger) *Matcher {
	return &Matcher{store: store, threshold: threshold, logger: logger}
}

// Match resolves raw to an existing book (or none), plus its authors and
// series.
func (m *Matcher) Match(ctx context.Context, raw *record.Raw) (*Result, error) {
	result := &Result{
		Confidence: ConfidenceNone,
		AuthorIDs:  make(map[string]int64, len(raw.Authors)),
	}

	book, confidence, err := m.matchBook(ctx, raw)
	if err != nil {
		return nil, err
	}
	result.Book = book
	result.Confidence = confidence

	for i := range raw.Authors {
		author, err := m.matchAuthor(ctx, &raw.Authors[i])
		if err != nil {
			return nil, err
		}
		if author != nil {
			result.AuthorIDs[raw.Authors[i].Slug] = author.ID
		}
	}

	if raw.Series != nil {
		series, err := m.store.SeriesBySlug(ctx, raw.Series.Slug)
		if err != nil && !errors.Is(err, dberr.ErrNotFound) {
			return nil, err
		}
		if series != nil {
			result.SeriesID = &series.ID
		}
	}

	return result, nil
}

// matchBook runs the two-stage book lookup: exact by external ID, then fuzzy
// by (language, slug) with first-author similarity.
func (m *Matcher) matchBook(ctx context.Context, raw *record.Raw) (*catalog.Book, Confidence, error) {
	if id := raw.ExternalID(); id != "" {
		book, err := m.store.BookByExternalID(ctx, raw.Source, id, raw.Language)
		if err == nil {
			return book, ConfidenceExact, nil
		}
		if !errors.Is(err, dberr.ErrNotFound) {
			return nil, ConfidenceNone, err
		}
	}

	candidates, err := m.store.BookCandidates(ctx, raw.Language, raw.Slug)
	if err != nil {
		return nil, ConfidenceNone, err
	}
	if len(candidates) == 0 {
		return nil, ConfidenceNone, nil
	}

	recordAuthor := raw.FirstAuthorName()

	// Candidates arrive ordered by rating count, then view count, then ID,
	// so the first eligible hit is also the tie-break winner.
	var eligible []*catalog.Book
	for i := range candidates {
		if m.authorsAgree(recordAuthor, &candidates[i]) {
			eligible = append(eligible, &candidates[i])
		}
	}

	switch len(eligible) {
	case 0:
		return nil, ConfidenceNone, nil
	case 1:
	default:
		m.logger.Warn("fuzzy_match_collision",
			slog.String("language", raw.Language),
			slog.String("slug", raw.Slug),
			slog.String("author", recordAuthor),
			slog.Int("candidates", len(eligible)),
			slog.Int64("chosen_book_id", eligible[0].ID),
		)
	}

	return eligible[0], ConfidenceFuzzy, nil
}

// authorsAgree reports whether the record's first author is close enough to
// the candidate's. A record without authors matches any candidate sharing
// the slug; a candidate without a linked author matches any record.
func (m *Matcher) authorsAgree(recordAuthor string, candidate *catalog.Book) bool {
	if recordAuthor == "" || candidate.FirstAuthorName == nil {
		return true
	}
	return Similarity(recordAuthor, *candidate.FirstAuthorName) >= m.threshold
}

// matchAuthor resolves one author by external ID, then by slug.
func (m *Matcher) matchAuthor(ctx context.Context, author *record.Author) (*catalog.Author, error) {
	if author.OpenLibraryID != nil && *author.OpenLibraryID != "" {
		existing, err := m.store.AuthorByOpenLibraryID(ctx, *author.OpenLibraryID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, dberr.ErrNotFound) {
			return nil, err
		}
	}

	existing, err := m.store.AuthorBySlug(ctx, author.Slug)
	if err != nil {
		if errors.Is(err, dberr.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return existing, nil
}
