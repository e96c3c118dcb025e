// Package merge turns a matched record into the mutation the catalog store
// persists. The rules are enrichment-only: a populated field is never
// replaced by an empty one, and conflicting non-empty values defer to the
// source that is primary for that field. Open Library (the bulk dump's
// source) is primary for biographical facts; the incremental APIs fill
// descriptions and covers the primary lacks.
package merge

import (
	"sort"

	"github.com/minsik-app/ingestion/internal/catalog"
	"github.com/minsik-app/ingestion/internal/ingest/record"
)

// maxCoverHistory bounds the per-book cover timeline.
const maxCoverHistory = 10

// Book merges raw onto existing and returns the write to persist. A nil
// existing produces a create with every available field.
func Book(existing *catalog.Book, raw *record.Raw) *catalog.BookWrite {
	if existing == nil {
		return newBook(raw)
	}

	write := &catalog.BookWrite{
		Title:                   existing.Title,
		Language:                existing.Language,
		Slug:                    existing.Slug,
		Description:             existing.Description,
		OriginalPublicationYear: existing.OriginalPublicationYear,
		NumberOfPages:           existing.NumberOfPages,
		Formats:                 existing.Formats,
		CoverHistory:            existing.CoverHistory,
		PrimaryCoverURL:         existing.PrimaryCoverURL,
		ISBN:                    existing.ISBN,
		Publisher:               existing.Publisher,
		ExternalIDs:             existing.ExternalIDs,
		OpenLibraryID:           existing.OpenLibraryID,
		GoogleBooksID:           existing.GoogleBooksID,
		SeriesID:                existing.SeriesID,
		SeriesPosition:          existing.SeriesPosition,
	}

	// Descriptions and covers are fill-only regardless of source.
	if isEmpty(write.Description) && !isEmpty(raw.Description) {
		write.Description = raw.Description
	}
	if isEmpty(write.PrimaryCoverURL) && !isEmpty(raw.PrimaryCoverURL) {
		write.PrimaryCoverURL = raw.PrimaryCoverURL
	}

	// Biographical facts: the dump source overwrites, the incremental API
	// only fills gaps.
	primary := raw.Source == record.SourceOpenLibrary
	write.OriginalPublicationYear = mergeInt(write.OriginalPublicationYear, raw.OriginalPublicationYear, primary)
	write.NumberOfPages = mergeInt(write.NumberOfPages, raw.NumberOfPages, primary)
	write.Publisher = mergeString(write.Publisher, raw.Publisher, primary)

	write.ISBN = unionStrings(write.ISBN, raw.ISBN)
	write.Formats = unionStrings(write.Formats, raw.Formats)
	write.ExternalIDs = unionIDs(write.ExternalIDs, raw.ExternalIDs)

	if write.OpenLibraryID == nil && raw.OpenLibraryID != nil {
		write.OpenLibraryID = raw.OpenLibraryID
	}
	if write.GoogleBooksID == nil && raw.GoogleBooksID != nil {
		write.GoogleBooksID = raw.GoogleBooksID
	}

	write.CoverHistory = appendCoverHistory(write.CoverHistory, raw.CoverHistory)

	if raw.Series != nil && raw.Series.Position != nil && write.SeriesPosition == nil {
		write.SeriesPosition = raw.Series.Position
	}

	return write
}

func newBook(raw *record.Raw) *catalog.BookWrite {
	write := &catalog.BookWrite{
		Title:                   raw.Title,
		Language:                raw.Language,
		Slug:                    raw.Slug,
		Description:             raw.Description,
		OriginalPublicationYear: raw.OriginalPublicationYear,
		NumberOfPages:           raw.NumberOfPages,
		Formats:                 raw.Formats,
		CoverHistory:            sortCoverHistory(raw.CoverHistory),
		PrimaryCoverURL:         raw.PrimaryCoverURL,
		ISBN:                    raw.ISBN,
		Publisher:               raw.Publisher,
		ExternalIDs:             raw.ExternalIDs,
		OpenLibraryID:           raw.OpenLibraryID,
		GoogleBooksID:           raw.GoogleBooksID,
	}
	if raw.Series != nil {
		write.SeriesPosition = raw.Series.Position
	}
	return write
}

// Author projects a record author to its write. Field-level keep-populated
// semantics are enforced by the store's upsert.
func Author(a *record.Author) catalog.AuthorWrite {
	return catalog.AuthorWrite{
		Name:           a.Name,
		Slug:           a.Slug,
		AlternateNames: a.AlternateNames,
		Bio:            a.Bio,
		BirthDate:      a.BirthDate,
		DeathDate:      a.DeathDate,
		PhotoURL:       a.PhotoURL,
		OpenLibraryID:  a.OpenLibraryID,
		WikidataID:     a.WikidataID,
		WikipediaURL:   a.WikipediaURL,
		RemoteIDs:      a.RemoteIDs,
	}
}

// Series projects a record series to its write.
func Series(s *record.Series) catalog.SeriesWrite {
	return catalog.SeriesWrite{Name: s.Name, Slug: s.Slug}
}

// # Field helpers

func isEmpty(s *string) bool {
	return s == nil || *s == ""
}

// mergeString keeps existing unless it is empty, or the incoming side is the
// primary source for the field and carries a value.
func mergeString(existing, incoming *string, primary bool) *string {
	if isEmpty(incoming) {
		return existing
	}
	if isEmpty(existing) || primary {
		return incoming
	}
	return existing
}

func mergeInt(existing, incoming *int, primary bool) *int {
	if incoming == nil {
		return existing
	}
	if existing == nil || primary {
		return incoming
	}
	return existing
}

func unionStrings(existing, incoming []string) []string {
	if len(incoming) == 0 {
		return existing
	}

	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged := make([]string, 0, len(existing)+len(incoming))
	for _, s := range existing {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			merged = append(merged, s)
		}
	}
	for _, s := range incoming {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			merged = append(merged, s)
		}
	}
	return merged
}

// unionIDs unions external-ID maps; existing entries win on key collision.
func unionIDs(existing, incoming map[string]string) map[string]string {
	if len(incoming) == 0 {
		return existing
	}

	merged := make(map[string]string, len(existing)+len(incoming))
	for key, value := range incoming {
		merged[key] = value
	}
	for key, value := range existing {
		merged[key] = value
	}
	return merged
}

// appendCoverHistory appends covers not already present (by URL) and keeps
// the timeline in chronological order.
func appendCoverHistory(existing, incoming []record.CoverVersion) []record.CoverVersion {
	if len(incoming) == 0 {
		return existing
	}

	seen := make(map[string]struct{}, len(existing))
	for _, cover := range existing {
		seen[cover.CoverURL] = struct{}{}
	}

	merged := append([]record.CoverVersion(nil), existing...)
	for _, cover := range incoming {
		if _, ok := seen[cover.CoverURL]; ok {
			continue
		}
		seen[cover.CoverURL] = struct{}{}
		merged = append(merged, cover)
	}

	merged = sortCoverHistory(merged)
	if len(merged) > maxCoverHistory {
		merged = merged[:maxCoverHistory]
	}
	return merged
}

func sortCoverHistory(covers []record.CoverVersion) []record.CoverVersion {
	sort.SliceStable(covers, func(i, j int) bool {
		return covers[i].Year < covers[j].Year
	})
	return covers
}
