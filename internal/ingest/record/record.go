// Package record defines the normalized representation of a book record
// fetched from an external source, before matching and merging.
package record

import (
	"strings"
	"unicode/utf8"

	"github.com/minsik-app/ingestion/pkg/slug"
)

// Source names accepted across the ingestion pipeline.
const (
	SourceOpenLibrary = "open_library"
	SourceGoogleBooks = "google_books"
	SourceBoth        = "both"
)

// maxPublisherLen caps publisher strings to the column width.
const maxPublisherLen = 500

// Raw is a source-normalized book record. Adapters produce it, the matcher
// and merger consume it. Optional fields are pointers so "absent" and
// "empty" stay distinguishable during merging.
type Raw struct {
	Title       string  `json:"title"`
	Language    string  `json:"language"`
	Slug        string  `json:"slug"`
	Description *string `json:"description"`

	OriginalPublicationYear *int `json:"original_publication_year"`
	NumberOfPages           *int `json:"number_of_pages"`

	Formats         []string       `json:"formats"`
	CoverHistory    []CoverVersion `json:"cover_history"`
	PrimaryCoverURL *string        `json:"primary_cover_url"`

	ISBN        []string          `json:"isbn"`
	Publisher   *string           `json:"publisher"`
	ExternalIDs map[string]string `json:"external_ids"`

	OpenLibraryID *string `json:"open_library_id"`
	GoogleBooksID *string `json:"google_books_id"`

	Authors []Author `json:"authors"`
	Genres  []Genre  `json:"genres"`
	Series  *Series  `json:"series"`

	// Source names the adapter that produced this record.
	Source string `json:"source"`
}

// Author is the per-author payload carried inside a [Raw] record.
type Author struct {
	Name           string            `json:"name"`
	Slug           string            `json:"slug"`
	Bio            *string           `json:"bio"`
	BirthDate      *string           `json:"birth_date"`
	DeathDate      *string           `json:"death_date"`
	PhotoURL       *string           `json:"photo_url"`
	OpenLibraryID  *string           `json:"open_library_id"`
	WikidataID     *string           `json:"wikidata_id"`
	WikipediaURL   *string           `json:"wikipedia_url"`
	RemoteIDs      map[string]string `json:"remote_ids"`
	AlternateNames []string          `json:"alternate_names"`
}

// Genre is a subject/category tag attached to a record.
type Genre struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Series carries the series membership parsed from edition data,
// e.g. "Discworld #14" becomes {Name: "Discworld", Position: 14}.
type Series struct {
	Name     string   `json:"name"`
	Slug     string   `json:"slug"`
	Position *float64 `json:"position"`
}

// CoverVersion is one historical cover of a book, ordered by year.
type CoverVersion struct {
	Year      int    `json:"year"`
	CoverURL  string `json:"cover_url"`
	Publisher string `json:"publisher"`
}

// Clean normalizes a record in place and reports whether it is usable.
// Records without a title or language are dropped (counted as skipped by
// callers, never failing a whole batch).
func (r *Raw) Clean() bool {
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return false
	}

	r.Language = strings.ToLower(strings.TrimSpace(r.Language))
	if r.Language == "" {
		return false
	}

	if r.Slug == "" {
		r.Slug = slug.From(r.Title)
	}
	if r.Slug == "" {
		return false
	}

	for i, f := range r.Formats {
		r.Formats[i] = strings.ToLower(f)
	}

	if r.Publisher != nil {
		p := strings.TrimSpace(*r.Publisher)
		if p == "" {
			r.Publisher = nil
		} else {
			p = Truncate(p, maxPublisherLen)
			r.Publisher = &p
		}
	}

	if r.NumberOfPages != nil && *r.NumberOfPages <= 0 {
		r.NumberOfPages = nil
	}

	for i := range r.Authors {
		a := &r.Authors[i]
		a.Name = strings.TrimSpace(a.Name)
		if a.Slug == "" {
			a.Slug = slug.From(a.Name)
		}
	}

	for i := range r.Genres {
		g := &r.Genres[i]
		g.Name = strings.ToLower(strings.TrimSpace(g.Name))
		if g.Slug == "" {
			g.Slug = slug.From(g.Name)
		}
	}

	if r.Series != nil {
		r.Series.Name = strings.TrimSpace(r.Series.Name)
		if r.Series.Name == "" {
			r.Series = nil
		} else if r.Series.Slug == "" {
			r.Series.Slug = slug.From(r.Series.Name)
		}
	}

	return true
}

// ExternalID returns the record's source-native identifier, or "" when the
// source did not provide one.
func (r *Raw) ExternalID() string {
	switch r.Source {
	case SourceOpenLibrary:
		if r.OpenLibraryID != nil {
			return *r.OpenLibraryID
		}
	case SourceGoogleBooks:
		if r.GoogleBooksID != nil {
			return *r.GoogleBooksID
		}
	}
	return ""
}

// FirstAuthorName returns the name of the first listed author, or "".
func (r *Raw) FirstAuthorName() string {
	if len(r.Authors) == 0 {
		return ""
	}
	return r.Authors[0].Name
}

// Truncate caps s at max bytes without splitting a multibyte rune, so the
// result is always valid UTF-8 and fits the column width.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// ValidSource reports whether s is a recognized ingestion source selector.
func ValidSource(s string) bool {
	switch s {
	case SourceOpenLibrary, SourceGoogleBooks, SourceBoth:
		return true
	}
	return false
}
