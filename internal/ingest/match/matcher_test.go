package match

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minsik-app/ingestion/internal/catalog"
	"github.com/minsik-app/ingestion/internal/ingest/record"
	"github.com/minsik-app/ingestion/internal/platform/dberr"
)

// fakeStore implements the lookup slice of [catalog.Store]; everything else
// panics via the embedded nil interface.
type fakeStore struct {
	catalog.Store

	booksByExternalID map[string]*catalog.Book
	candidates        map[string][]catalog.Book
	authorsByOLID     map[string]*catalog.Author
	authorsBySlug     map[string]*catalog.Author
	seriesBySlug      map[string]*catalog.Series
}

func (f *fakeStore) BookByExternalID(_ context.Context, source, externalID, language string) (*catalog.Book, error) {
	if book, ok := f.booksByExternalID[source+":"+externalID+":"+language]; ok {
		return book, nil
	}
	return nil, dberr.ErrNotFound
}

func (f *fakeStore) BookCandidates(_ context.Context, language, slug string) ([]catalog.Book, error) {
	return f.candidates[language+":"+slug], nil
}

func (f *fakeStore) AuthorByOpenLibraryID(_ context.Context, olID string) (*catalog.Author, error) {
	if author, ok := f.authorsByOLID[olID]; ok {
		return author, nil
	}
	return nil, dberr.ErrNotFound
}

func (f *fakeStore) AuthorBySlug(_ context.Context, slug string) (*catalog.Author, error) {
	if author, ok := f.authorsBySlug[slug]; ok {
		return author, nil
	}
	return nil, dberr.ErrNotFound
}

func (f *fakeStore) SeriesBySlug(_ context.Context, slug string) (*catalog.Series, error) {
	if series, ok := f.seriesBySlug[slug]; ok {
		return series, nil
	}
	return nil, dberr.ErrNotFound
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strptr(s string) *string { return &s }

func TestMatcher_ExactByExternalID(t *testing.T) {
	store := &fakeStore{
		booksByExternalID: map[string]*catalog.Book{
			"open_library:OL123W:en": {ID: 7, Title: "Dune", Slug: "dune", Language: "en"},
		},
	}
	matcher := New(store, 0.82, discardLogger())

	raw := &record.Raw{
		Title:         "Dune",
		Language:      "en",
		Slug:          "dune",
		Source:        record.SourceOpenLibrary,
		OpenLibraryID: strptr("OL123W"),
	}

	result, err := matcher.Match(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, ConfidenceExact, result.Confidence)
	require.NotNil(t, result.Book)
	assert.Equal(t, int64(7), result.Book.ID)
}

func TestMatcher_ExternalIDScopedToLanguage(t *testing.T) {
	// Translation rows share the work's external ID. A record in another
	// language must not exact-match the English row; it falls through to
	// the fuzzy path and, with no sibling in its language, creates a new
	// entity.
	store := &fakeStore{
		booksByExternalID: map[string]*catalog.Book{
			"open_library:OL123W:en": {ID: 7, Title: "Dune", Slug: "dune", Language: "en"},
		},
	}
	matcher := New(store, 0.82, discardLogger())

	raw := &record.Raw{
		Title:         "Dune",
		Language:      "fr",
		Slug:          "dune",
		Source:        record.SourceOpenLibrary,
		OpenLibraryID: strptr("OL123W"),
	}

	result, err := matcher.Match(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, ConfidenceNone, result.Confidence)
	assert.Nil(t, result.Book)
}

func TestMatcher_FuzzyBySlugAndAuthor(t *testing.T) {
	store := &fakeStore{
		candidates: map[string][]catalog.Book{
			"en:dune": {
				{ID: 3, Title: "Dune", Slug: "dune", Language: "en", FirstAuthorName: strptr("Frank Herbert")},
			},
		},
	}
	matcher := New(store, 0.82, discardLogger())

	raw := &record.Raw{
		Title:    "Dune",
		Language: "en",
		Slug:     "dune",
		Source:   record.SourceGoogleBooks,
		Authors:  []record.Author{{Name: "Frank  Herbert", Slug: "frank-herbert"}},
	}

	result, err := matcher.Match(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, ConfidenceFuzzy, result.Confidence)
	require.NotNil(t, result.Book)
	assert.Equal(t, int64(3), result.Book.ID)
}

func TestMatcher_FuzzyRejectsDifferentAuthor(t *testing.T) {
	store := &fakeStore{
		candidates: map[string][]catalog.Book{
			"en:dune": {
				{ID: 3, Title: "Dune", Slug: "dune", Language: "en", FirstAuthorName: strptr("Frank Herbert")},
			},
		},
	}
	matcher := New(store, 0.82, discardLogger())

	raw := &record.Raw{
		Title:    "Dune",
		Language: "en",
		Slug:     "dune",
		Source:   record.SourceGoogleBooks,
		Authors:  []record.Author{{Name: "Hari Kunzru", Slug: "hari-kunzru"}},
	}

	result, err := matcher.Match(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, ConfidenceNone, result.Confidence)
	assert.Nil(t, result.Book)
}

func TestMatcher_TieBreakPrefersFirstCandidate(t *testing.T) {
	// Candidates arrive pre-ordered by rating count; both match the author.
	store := &fakeStore{
		candidates: map[string][]catalog.Book{
			"en:dune": {
				{ID: 1, Title: "Dune", Slug: "dune", Language: "en", RatingCount: 900, FirstAuthorName: strptr("Frank Herbert")},
				{ID: 2, Title: "Dune", Slug: "dune", Language: "en", RatingCount: 4, FirstAuthorName: strptr("Frank Herbert")},
			},
		},
	}
	matcher := New(store, 0.82, discardLogger())

	raw := &record.Raw{
		Title:    "Dune",
		Language: "en",
		Slug:     "dune",
		Source:   record.SourceGoogleBooks,
		Authors:  []record.Author{{Name: "Frank Herbert", Slug: "frank-herbert"}},
	}

	result, err := matcher.Match(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, ConfidenceFuzzy, result.Confidence)
	assert.Equal(t, int64(1), result.Book.ID)
}

func TestMatcher_NoAuthorsMatchesOnSlugAlone(t *testing.T) {
	store := &fakeStore{
		candidates: map[string][]catalog.Book{
			"en:solaris": {
				{ID: 5, Title: "Solaris", Slug: "solaris", Language: "en", FirstAuthorName: strptr("Stanislaw Lem")},
			},
		},
	}
	matcher := New(store, 0.82, discardLogger())

	raw := &record.Raw{
		Title:    "Solaris",
		Language: "en",
		Slug:     "solaris",
		Source:   record.SourceGoogleBooks,
	}

	result, err := matcher.Match(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, ConfidenceFuzzy, result.Confidence)
	assert.Equal(t, int64(5), result.Book.ID)
}

func TestMatcher_ResolvesAuthorsAndSeries(t *testing.T) {
	store := &fakeStore{
		authorsByOLID: map[string]*catalog.Author{
			"OL9A": {ID: 11, Name: "Frank Herbert", Slug: "frank-herbert"},
		},
		authorsBySlug: map[string]*catalog.Author{
			"brian-herbert": {ID: 12, Name: "Brian Herbert", Slug: "brian-herbert"},
		},
		seriesBySlug: map[string]*catalog.Series{
			"dune-chronicles": {ID: 21, Name: "Dune Chronicles", Slug: "dune-chronicles"},
		},
	}
	matcher := New(store, 0.82, discardLogger())

	raw := &record.Raw{
		Title:    "Heretics of Dune",
		Language: "en",
		Slug:     "heretics-of-dune",
		Source:   record.SourceOpenLibrary,
		Authors: []record.Author{
			{Name: "Frank Herbert", Slug: "frank-herbert", OpenLibraryID: strptr("OL9A")},
			{Name: "Brian Herbert", Slug: "brian-herbert"},
			{Name: "Kevin J. Anderson", Slug: "kevin-j-anderson"},
		},
		Series: &record.Series{Name: "Dune Chronicles", Slug: "dune-chronicles"},
	}

	result, err := matcher.Match(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, ConfidenceNone, result.Confidence)
	assert.Equal(t, map[string]int64{
		"frank-herbert": 11,
		"brian-herbert": 12,
	}, result.AuthorIDs)
	require.NotNil(t, result.SeriesID)
	assert.Equal(t, int64(21), *result.SeriesID)
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		min  float64
		max  float64
	}{
		{"identical", "Frank Herbert", "Frank Herbert", 1, 1},
		{"case and punctuation folded", "frank herbert", "Frank  Herbert.", 1, 1},
		{"close variant", "J. R. R. Tolkien", "JRR Tolkien", 0.6, 1},
		{"unrelated", "Frank Herbert", "Jane Austen", 0, 0.3},
		{"empty", "", "Frank Herbert", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := Similarity(tt.a, tt.b)
			assert.GreaterOrEqual(t, score, tt.min)
			assert.LessOrEqual(t, score, tt.max)
			// Symmetric and deterministic.
			assert.Equal(t, score, Similarity(tt.b, tt.a))
		})
	}
}
