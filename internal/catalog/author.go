package catalog

import "time"

// Author is a catalog row in books.authors. Authors are global across
// languages; the slug is the unique natural key.
type Author struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`

	AlternateNames []string `json:"alternate_names"`

	Bio       *string `json:"bio"`
	BirthDate *string `json:"birth_date"`
	DeathDate *string `json:"death_date"`

	// Wikidata enrichment (dump phase 2).
	BirthPlace  *string `json:"birth_place"`
	Nationality *string `json:"nationality"`

	PhotoURL      *string           `json:"photo_url"`
	OpenLibraryID *string           `json:"open_library_id"`
	WikidataID    *string           `json:"wikidata_id"`
	WikipediaURL  *string           `json:"wikipedia_url"`
	RemoteIDs     map[string]string `json:"remote_ids"`

	// BookCount is recomputed after link changes, never incremented ad hoc.
	BookCount int `json:"book_count"`
	ViewCount int `json:"view_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Series is a catalog row in books.series.
type Series struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	Description *string `json:"description"`
	TotalBooks  int     `json:"total_books"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Genre is a catalog row in books.genres.
type Genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}
