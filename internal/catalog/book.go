package catalog

import (
	"time"

	"github.com/minsik-app/ingestion/internal/ingest/record"
)

// Book is a catalog row in books.books. One row represents a book in one
// language; translations of the same work are separate rows sharing a slug.
type Book struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Language    string  `json:"language"`
	Slug        string  `json:"slug"`
	Description *string `json:"description"`

	OriginalPublicationYear *int `json:"original_publication_year"`
	NumberOfPages           *int `json:"number_of_pages"`

	Formats         []string              `json:"formats"`
	CoverHistory    []record.CoverVersion `json:"cover_history"`
	PrimaryCoverURL *string               `json:"primary_cover_url"`

	ISBN        []string          `json:"isbn"`
	Publisher   *string           `json:"publisher"`
	ExternalIDs map[string]string `json:"external_ids"`

	OpenLibraryID *string `json:"open_library_id"`
	GoogleBooksID *string `json:"google_books_id"`

	SeriesID       *int64   `json:"series_id"`
	SeriesPosition *float64 `json:"series_position"`

	// Denormalized engagement counters maintained by the user-data services.
	RatingCount   int     `json:"rating_count"`
	AverageRating float64 `json:"average_rating"`
	ViewCount     int     `json:"view_count"`

	// Popularity signals aggregated from Open Library dumps.
	OLRatingCount           int      `json:"ol_rating_count"`
	OLAvgRating             *float64 `json:"ol_avg_rating"`
	OLWantToReadCount       int      `json:"ol_want_to_read_count"`
	OLCurrentlyReadingCount int      `json:"ol_currently_reading_count"`
	OLAlreadyReadCount      int      `json:"ol_already_read_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// FirstAuthorName is populated by candidate queries (join against
	// book_authors at position 0). It is not a column of books.books.
	FirstAuthorName *string `json:"-"`
}

// HasExternalID reports whether the book already carries the given
// source-native identifier.
func (b *Book) HasExternalID(source, id string) bool {
	switch source {
	case record.SourceOpenLibrary:
		return b.OpenLibraryID != nil && *b.OpenLibraryID == id
	case record.SourceGoogleBooks:
		return b.GoogleBooksID != nil && *b.GoogleBooksID == id
	}
	return b.ExternalIDs[source] == id
}
