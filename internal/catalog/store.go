package catalog

import (
	"context"

	"github.com/minsik-app/ingestion/internal/ingest/record"
)

// BookWrite carries the fully merged field set persisted for one book.
// The merger computes it; the store never re-derives merge decisions.
type BookWrite struct {
	Title       string
	Language    string
	Slug        string
	Description *string

	OriginalPublicationYear *int
	NumberOfPages           *int

	Formats         []string
	CoverHistory    []record.CoverVersion
	PrimaryCoverURL *string

	ISBN        []string
	Publisher   *string
	ExternalIDs map[string]string

	OpenLibraryID *string
	GoogleBooksID *string

	SeriesID       *int64
	SeriesPosition *float64
}

// AuthorWrite carries the merged field set persisted for one author.
type AuthorWrite struct {
	Name           string
	Slug           string
	AlternateNames []string
	Bio            *string
	BirthDate      *string
	DeathDate      *string
	BirthPlace     *string
	Nationality    *string
	PhotoURL       *string
	OpenLibraryID  *string
	WikidataID     *string
	WikipediaURL   *string
	RemoteIDs      map[string]string
}

// SeriesWrite carries the field set persisted for one series.
type SeriesWrite struct {
	Name        string
	Slug        string
	Description *string
}

// BookRef is a (book_id, language) pair for one Open Library work.
type BookRef struct {
	ID       int64
	Language string
}

// EditionEnrichment carries the best edition's fields, applied onto an
// existing book row with keep-populated semantics.
type EditionEnrichment struct {
	ISBN        []string
	Pages       *int
	Publisher   *string
	Format      *string
	ExternalIDs map[string]string
	CoverURL    *string
	Description *string
}

// CleanupResult summarizes one low-quality deletion pass.
type CleanupResult struct {
	Eligible int64
	Deleted  int64
}

// Store is the catalog persistence contract.
//
// # Review Process
//
// The interface lives apart from the entity files so schema changes and
// contract changes can be reviewed independently.
//
// # Implementations
//
// The canonical implementation is PostgreSQL ([PostgresStore]). Tests use
// in-memory fakes scoped to the methods they exercise.
type Store interface {
	// # Matching lookups

	// BookByExternalID returns the book carrying the source-native ID in
	// the given language. Sibling translation rows share external IDs, so
	// the lookup is always language-scoped. Returns [dberr.ErrNotFound]
	// when no row matches.
	BookByExternalID(ctx context.Context, source, externalID, language string) (*Book, error)

	// BookCandidates returns all books sharing (language, slug), each with
	// FirstAuthorName populated for similarity scoring. Order is
	// deterministic: rating_count desc, view_count desc, book_id asc.
	BookCandidates(ctx context.Context, language, slug string) ([]Book, error)

	// AuthorByOpenLibraryID returns the author with the given OL ID.
	AuthorByOpenLibraryID(ctx context.Context, olID string) (*Author, error)

	// AuthorBySlug returns the author with the given slug.
	AuthorBySlug(ctx context.Context, slug string) (*Author, error)

	// SeriesBySlug returns the series with the given slug.
	SeriesBySlug(ctx context.Context, slug string) (*Series, error)

	// # Merged writes

	// InsertBook inserts a new book row. On a concurrent (language, slug)
	// collision it falls back to a keep-populated update of the existing
	// row. Returns the row's ID.
	InsertBook(ctx context.Context, w *BookWrite) (int64, error)

	// UpdateBook rewrites the merged fields of an existing row. The row is
	// locked (SELECT ... FOR UPDATE) for the duration of the transaction.
	UpdateBook(ctx context.Context, bookID int64, w *BookWrite) error

	// CloneBookLanguage inserts w as a sibling language row of bookID and
	// copies its authorship and genre links. Returns the new row's ID.
	CloneBookLanguage(ctx context.Context, bookID int64, w *BookWrite) (int64, error)

	// UpsertAuthors writes the batch with keep-populated semantics and
	// returns slug -> author_id for every input.
	UpsertAuthors(ctx context.Context, ws []AuthorWrite) (map[string]int64, error)

	// UpsertGenres writes the batch and returns slug -> genre_id.
	UpsertGenres(ctx context.Context, gs []Genre) (map[string]int64, error)

	// UpsertSeries writes the batch and returns slug -> series_id.
	UpsertSeries(ctx context.Context, ws []SeriesWrite) (map[string]int64, error)

	// LinkBookAuthors attaches authors in order; existing links are kept.
	LinkBookAuthors(ctx context.Context, bookID int64, authorIDs []int64) error

	// LinkBookGenres attaches genres; existing links are kept.
	LinkBookGenres(ctx context.Context, bookID int64, genreIDs []int64) error

	// RecomputeAuthorBookCounts refreshes book_count for the given authors.
	RecomputeAuthorBookCounts(ctx context.Context, authorIDs []int64) error

	// # Dump import support

	// AuthorIDsByOpenLibraryIDs resolves OL author IDs to author_id.
	AuthorIDsByOpenLibraryIDs(ctx context.Context, olIDs []string) (map[string]int64, error)

	// EnrichAuthorWikidata backfills nationality, birth place, and
	// Wikipedia URL without overwriting populated values.
	EnrichAuthorWikidata(ctx context.Context, wikidataID string, nationality, birthPlace, wikipediaURL *string) (bool, error)

	// WikidataIDsMissingEnrichment lists authors with a Wikidata ID but no
	// nationality yet, up to limit.
	WikidataIDsMissingEnrichment(ctx context.Context, limit int) ([]string, error)

	// KnownOpenLibraryWorks streams (OL work ID, book_id, language) for
	// every book carrying an OL ID. Used to build the edition filter.
	KnownOpenLibraryWorks(ctx context.Context, fn func(olID string, bookID int64, language string) error) error

	// BookByID returns a single book row.
	BookByID(ctx context.Context, bookID int64) (*Book, error)

	// BooksByOpenLibraryIDs resolves OL work IDs to their catalog rows,
	// one entry per language row.
	BooksByOpenLibraryIDs(ctx context.Context, olIDs []string) (map[string][]BookRef, error)

	// EnrichBookEdition backfills edition-level fields without overwriting
	// populated values; formats are unioned.
	EnrichBookEdition(ctx context.Context, bookID int64, e *EditionEnrichment) error

	// UpdateOLRatings writes the dump-aggregated rating signals.
	UpdateOLRatings(ctx context.Context, olWorkID string, count int, avg float64) (int64, error)

	// UpdateOLReadingLog writes the dump-aggregated shelf counts.
	UpdateOLReadingLog(ctx context.Context, olWorkID string, want, reading, read int) (int64, error)

	// # Cleanup and enrichment

	// DeleteLowQualityBooks removes books scoring below minScore that pass
	// the engagement guard, in batches. Never touches books with ratings,
	// shelves, comments, views, or OL popularity.
	DeleteLowQualityBooks(ctx context.Context, minScore, batchSize int) (CleanupResult, error)

	// DeleteOrphanAuthors removes authors below minBooks with zero views.
	DeleteOrphanAuthors(ctx context.Context, minBooks, batchSize int) (CleanupResult, error)

	// DeleteOrphanSeries removes series no book references.
	DeleteOrphanSeries(ctx context.Context, batchSize int) (int64, error)

	// DeleteOrphanGenres removes genres no book references.
	DeleteOrphanGenres(ctx context.Context, batchSize int) (int64, error)

	// BooksNeedingDescription lists books whose description is missing or
	// shorter than minLen, newest first, with FirstAuthorName populated.
	BooksNeedingDescription(ctx context.Context, minLen, limit int) ([]Book, error)

	// AuthorsNeedingBio lists authors whose bio is missing or short.
	AuthorsNeedingBio(ctx context.Context, minLen, limit int) ([]Author, error)

	// SeriesNeedingDescription lists series whose description is missing or
	// shorter than minLen.
	SeriesNeedingDescription(ctx context.Context, minLen, limit int) ([]Series, error)

	// SetBookDescription backfills a description if still absent or short.
	SetBookDescription(ctx context.Context, bookID int64, description string) error

	// SetAuthorBio backfills a bio if still absent or short.
	SetAuthorBio(ctx context.Context, authorID int64, bio string) error

	// SetSeriesDescription backfills a description if still absent or short.
	SetSeriesDescription(ctx context.Context, seriesID int64, description string) error

	// # Coverage counts

	// CountBooks counts catalog books, optionally scoped to a language.
	CountBooks(ctx context.Context, language string) (int64, error)

	// CountAuthors counts all catalog authors.
	CountAuthors(ctx context.Context) (int64, error)

	// CountSeries counts all catalog series.
	CountSeries(ctx context.Context) (int64, error)
}
