package sweep

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minsik-app/ingestion/internal/catalog"
	"github.com/minsik-app/ingestion/pkg/pointer"
)

type fakeCatalog struct {
	catalog.Store

	books   []catalog.Book
	authors []catalog.Author
	series  []catalog.Series

	bookDescriptions   map[int64]string
	authorBios         map[int64]string
	seriesDescriptions map[int64]string

	cleanupBooks   catalog.CleanupResult
	cleanupAuthors catalog.CleanupResult
	orphanSeries   int64
	orphanGenres   int64
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		bookDescriptions:   make(map[int64]string),
		authorBios:         make(map[int64]string),
		seriesDescriptions: make(map[int64]string),
	}
}

func (f *fakeCatalog) BooksNeedingDescription(_ context.Context, _, _ int) ([]catalog.Book, error) {
	return f.books, nil
}

func (f *fakeCatalog) AuthorsNeedingBio(_ context.Context, _, _ int) ([]catalog.Author, error) {
	return f.authors, nil
}

func (f *fakeCatalog) SeriesNeedingDescription(_ context.Context, _, _ int) ([]catalog.Series, error) {
	return f.series, nil
}

func (f *fakeCatalog) SetBookDescription(_ context.Context, bookID int64, description string) error {
	f.bookDescriptions[bookID] = description
	return nil
}

func (f *fakeCatalog) SetAuthorBio(_ context.Context, authorID int64, bio string) error {
	f.authorBios[authorID] = bio
	return nil
}

func (f *fakeCatalog) SetSeriesDescription(_ context.Context, seriesID int64, description string) error {
	f.seriesDescriptions[seriesID] = description
	return nil
}

func (f *fakeCatalog) DeleteLowQualityBooks(_ context.Context, _, _ int) (catalog.CleanupResult, error) {
	return f.cleanupBooks, nil
}

func (f *fakeCatalog) DeleteOrphanAuthors(_ context.Context, _, _ int) (catalog.CleanupResult, error) {
	return f.cleanupAuthors, nil
}

func (f *fakeCatalog) DeleteOrphanSeries(_ context.Context, _ int) (int64, error) {
	return f.orphanSeries, nil
}

func (f *fakeCatalog) DeleteOrphanGenres(_ context.Context, _ int) (int64, error) {
	return f.orphanGenres, nil
}

// fakeDescriptions answers lookups from a term-substring map.
type fakeDescriptions struct {
	byTerm map[string]string
	terms  []string
}

func (f *fakeDescriptions) Description(_ context.Context, searchTerm string) (string, error) {
	f.terms = append(f.terms, searchTerm)
	for substring, text := range f.byTerm {
		if strings.Contains(searchTerm, substring) {
			return text, nil
		}
	}
	return "", nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnricher_BackfillsBooksAuthorsAndSeries(t *testing.T) {
	longText := strings.Repeat("A fine description. ", 10)

	store := newFakeCatalog()
	store.books = []catalog.Book{
		{ID: 1, Title: "Dune", FirstAuthorName: pointer.To("Frank Herbert")},
	}
	store.authors = []catalog.Author{{ID: 7, Name: "Frank Herbert"}}
	store.series = []catalog.Series{{ID: 3, Name: "Dune Saga"}}

	src := &fakeDescriptions{byTerm: map[string]string{
		"Dune Frank Herbert novel": longText,
		"Frank Herbert author":     longText,
		"Dune Saga book series":    longText,
	}}

	enricher := NewEnricher(store, src, EnrichOptions{BatchSize: 5, MinLength: 100}, discardLogger())
	summary, err := enricher.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, EnrichSummary{Books: 1, Authors: 1, Series: 1}, summary)
	assert.Equal(t, longText, store.bookDescriptions[1])
	assert.Equal(t, longText, store.authorBios[7])
	assert.Equal(t, longText, store.seriesDescriptions[3])
	assert.Contains(t, src.terms, "Dune Frank Herbert novel")
}

func TestEnricher_DiscardsShortResults(t *testing.T) {
	store := newFakeCatalog()
	store.books = []catalog.Book{{ID: 1, Title: "Dune"}}

	src := &fakeDescriptions{byTerm: map[string]string{"Dune": "Too short."}}

	enricher := NewEnricher(store, src, EnrichOptions{BatchSize: 5, MinLength: 100}, discardLogger())
	summary, err := enricher.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Zero(t, summary.Books)
	assert.Empty(t, store.bookDescriptions)
}

func TestEnricher_SearchTermWithoutAuthor(t *testing.T) {
	longText := strings.Repeat("Words about the book. ", 10)

	store := newFakeCatalog()
	store.books = []catalog.Book{{ID: 2, Title: "Anonymous Work"}}
	src := &fakeDescriptions{byTerm: map[string]string{"Anonymous Work novel": longText}}

	enricher := NewEnricher(store, src, EnrichOptions{BatchSize: 5, MinLength: 100}, discardLogger())
	_, err := enricher.RunOnce(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, src.terms)
	assert.Equal(t, "Anonymous Work novel", src.terms[0])
}

func TestCleaner_RunOnceAggregatesResults(t *testing.T) {
	store := newFakeCatalog()
	store.cleanupBooks = catalog.CleanupResult{Eligible: 12, Deleted: 12}
	store.cleanupAuthors = catalog.CleanupResult{Eligible: 4, Deleted: 4}
	store.orphanSeries = 2
	store.orphanGenres = 9

	cleaner := NewCleaner(store, CleanupOptions{MinQualityScore: 3, AuthorMinBooks: 1}, discardLogger())
	summary, err := cleaner.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, CleanupSummary{
		BooksEligible:  12,
		BooksDeleted:   12,
		AuthorsDeleted: 4,
		SeriesDeleted:  2,
		GenresDeleted:  9,
	}, summary)
}
