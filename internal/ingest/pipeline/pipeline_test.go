package pipeline

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minsik-app/ingestion/internal/catalog"
	"github.com/minsik-app/ingestion/internal/ingest/match"
	"github.com/minsik-app/ingestion/internal/ingest/record"
	"github.com/minsik-app/ingestion/internal/platform/dberr"
)

// memCatalog is an in-memory catalog covering the pipeline's write path.
type memCatalog struct {
	catalog.Store

	nextBookID   int64
	nextAuthorID int64
	nextGenreID  int64
	nextSeriesID int64

	books       map[int64]*catalog.Book
	authors     map[string]*catalog.Author
	genres      map[string]int64
	series      map[string]int64
	bookAuthors map[int64][]int64
	bookGenres  map[int64][]int64

	updateConflicts int
}

func newMemCatalog() *memCatalog {
	return &memCatalog{
		books:       make(map[int64]*catalog.Book),
		authors:     make(map[string]*catalog.Author),
		genres:      make(map[string]int64),
		series:      make(map[string]int64),
		bookAuthors: make(map[int64][]int64),
		bookGenres:  make(map[int64][]int64),
	}
}

func (m *memCatalog) BookByExternalID(_ context.Context, source, externalID, language string) (*catalog.Book, error) {
	for _, book := range m.books {
		if book.Language == language && book.HasExternalID(source, externalID) {
			return book, nil
		}
	}
	return nil, dberr.ErrNotFound
}

func (m *memCatalog) BookCandidates(_ context.Context, language, slug string) ([]catalog.Book, error) {
	var candidates []catalog.Book
	for _, book := range m.books {
		if book.Language == language && book.Slug == slug {
			candidates = append(candidates, *book)
		}
	}
	return candidates, nil
}

func (m *memCatalog) AuthorByOpenLibraryID(_ context.Context, olID string) (*catalog.Author, error) {
	for _, author := range m.authors {
		if author.OpenLibraryID != nil && *author.OpenLibraryID == olID {
			return author, nil
		}
	}
	return nil, dberr.ErrNotFound
}

func (m *memCatalog) AuthorBySlug(_ context.Context, slug string) (*catalog.Author, error) {
	if author, ok := m.authors[slug]; ok {
		return author, nil
	}
	return nil, dberr.ErrNotFound
}

func (m *memCatalog) SeriesBySlug(_ context.Context, slug string) (*catalog.Series, error) {
	if id, ok := m.series[slug]; ok {
		return &catalog.Series{ID: id, Slug: slug}, nil
	}
	return nil, dberr.ErrNotFound
}

func (m *memCatalog) InsertBook(_ context.Context, w *catalog.BookWrite) (int64, error) {
	m.nextBookID++
	m.books[m.nextBookID] = bookFromWrite(m.nextBookID, w)
	return m.nextBookID, nil
}

func (m *memCatalog) UpdateBook(_ context.Context, bookID int64, w *catalog.BookWrite) error {
	if m.updateConflicts > 0 {
		m.updateConflicts--
		return dberr.ErrConflict
	}
	m.books[bookID] = bookFromWrite(bookID, w)
	return nil
}

func bookFromWrite(id int64, w *catalog.BookWrite) *catalog.Book {
	return &catalog.Book{
		ID:                      id,
		Title:                   w.Title,
		Language:                w.Language,
		Slug:                    w.Slug,
		Description:             w.Description,
		OriginalPublicationYear: w.OriginalPublicationYear,
		NumberOfPages:           w.NumberOfPages,
		Formats:                 w.Formats,
		CoverHistory:            w.CoverHistory,
		PrimaryCoverURL:         w.PrimaryCoverURL,
		ISBN:                    w.ISBN,
		Publisher:               w.Publisher,
		ExternalIDs:             w.ExternalIDs,
		OpenLibraryID:           w.OpenLibraryID,
		GoogleBooksID:           w.GoogleBooksID,
		SeriesID:                w.SeriesID,
		SeriesPosition:          w.SeriesPosition,
	}
}

func (m *memCatalog) UpsertAuthors(_ context.Context, ws []catalog.AuthorWrite) (map[string]int64, error) {
	ids := make(map[string]int64, len(ws))
	for i := range ws {
		author, ok := m.authors[ws[i].Slug]
		if !ok {
			m.nextAuthorID++
			author = &catalog.Author{
				ID:            m.nextAuthorID,
				Name:          ws[i].Name,
				Slug:          ws[i].Slug,
				OpenLibraryID: ws[i].OpenLibraryID,
			}
			m.authors[ws[i].Slug] = author
		}
		ids[ws[i].Slug] = author.ID
	}
	return ids, nil
}

func (m *memCatalog) UpsertGenres(_ context.Context, gs []catalog.Genre) (map[string]int64, error) {
	ids := make(map[string]int64, len(gs))
	for _, g := range gs {
		if _, ok := m.genres[g.Slug]; !ok {
			m.nextGenreID++
			m.genres[g.Slug] = m.nextGenreID
		}
		ids[g.Slug] = m.genres[g.Slug]
	}
	return ids, nil
}

func (m *memCatalog) UpsertSeries(_ context.Context, ws []catalog.SeriesWrite) (map[string]int64, error) {
	ids := make(map[string]int64, len(ws))
	for _, w := range ws {
		if _, ok := m.series[w.Slug]; !ok {
			m.nextSeriesID++
			m.series[w.Slug] = m.nextSeriesID
		}
		ids[w.Slug] = m.series[w.Slug]
	}
	return ids, nil
}

func (m *memCatalog) LinkBookAuthors(_ context.Context, bookID int64, authorIDs []int64) error {
	existing := m.bookAuthors[bookID]
	for _, id := range authorIDs {
		if !containsID(existing, id) {
			existing = append(existing, id)
		}
	}
	m.bookAuthors[bookID] = existing
	return nil
}

func (m *memCatalog) LinkBookGenres(_ context.Context, bookID int64, genreIDs []int64) error {
	existing := m.bookGenres[bookID]
	for _, id := range genreIDs {
		if !containsID(existing, id) {
			existing = append(existing, id)
		}
	}
	m.bookGenres[bookID] = existing
	return nil
}

func (m *memCatalog) RecomputeAuthorBookCounts(_ context.Context, _ []int64) error {
	return nil
}

func containsID(ids []int64, id int64) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

func testPipeline(store catalog.Store) *Pipeline {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, match.New(store, 0.82, logger), logger)
}

func strptr(s string) *string { return &s }

func TestPipeline_SameExternalIDMergesIntoOneBook(t *testing.T) {
	store := newMemCatalog()
	pipeline := testPipeline(store)

	first := record.Raw{
		Title:         "Dune",
		Language:      "en",
		Source:        record.SourceOpenLibrary,
		OpenLibraryID: strptr("OL123"),
		Authors:       []record.Author{{Name: "Frank Herbert"}},
	}
	second := record.Raw{
		Title:         "Dune",
		Language:      "en",
		Source:        record.SourceOpenLibrary,
		OpenLibraryID: strptr("OL123"),
		Description:   strptr("A desert planet..."),
		Authors:       []record.Author{{Name: "Frank Herbert"}},
	}

	successful, failed, err := pipeline.ProcessBatch(context.Background(), []record.Raw{first, second})
	require.NoError(t, err)
	assert.Equal(t, int64(2), successful)
	assert.Equal(t, int64(0), failed)

	require.Len(t, store.books, 1)
	book := store.books[1]
	assert.Equal(t, "dune", book.Slug)
	assert.Equal(t, "en", book.Language)
	require.NotNil(t, book.Description)
	assert.Equal(t, "A desert planet...", *book.Description)
	// Author linked once despite two records.
	assert.Equal(t, []int64{1}, store.bookAuthors[1])
}

func TestPipeline_SameSlugDifferentLanguageStaysSeparate(t *testing.T) {
	store := newMemCatalog()
	pipeline := testPipeline(store)

	english := record.Raw{Title: "Dune", Language: "en", Source: record.SourceOpenLibrary, OpenLibraryID: strptr("OL123")}
	french := record.Raw{Title: "Dune", Language: "fr", Source: record.SourceOpenLibrary, OpenLibraryID: strptr("OL124")}

	_, _, err := pipeline.ProcessBatch(context.Background(), []record.Raw{english, french})
	require.NoError(t, err)
	assert.Len(t, store.books, 2)
}

func TestPipeline_InvalidRecordCountedFailedBatchContinues(t *testing.T) {
	store := newMemCatalog()
	pipeline := testPipeline(store)

	records := []record.Raw{
		{Title: "", Language: "en", Source: record.SourceOpenLibrary},
		{Title: "Solaris", Language: "en", Source: record.SourceOpenLibrary, OpenLibraryID: strptr("OL9")},
	}

	successful, failed, err := pipeline.ProcessBatch(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, int64(1), successful)
	assert.Equal(t, int64(1), failed)
	assert.Len(t, store.books, 1)
}

func TestPipeline_ConflictRetriedOnce(t *testing.T) {
	store := newMemCatalog()
	pipeline := testPipeline(store)

	seed := record.Raw{Title: "Dune", Language: "en", Source: record.SourceOpenLibrary, OpenLibraryID: strptr("OL123")}
	_, _, err := pipeline.ProcessBatch(context.Background(), []record.Raw{seed})
	require.NoError(t, err)

	store.updateConflicts = 1
	update := record.Raw{
		Title:         "Dune",
		Language:      "en",
		Source:        record.SourceOpenLibrary,
		OpenLibraryID: strptr("OL123"),
		Description:   strptr("Retried description"),
	}

	successful, failed, err := pipeline.ProcessBatch(context.Background(), []record.Raw{update})
	require.NoError(t, err)
	assert.Equal(t, int64(1), successful)
	assert.Equal(t, int64(0), failed)
	require.NotNil(t, store.books[1].Description)
	assert.Equal(t, "Retried description", *store.books[1].Description)
}

func TestPipeline_PersistentConflictCountedFailed(t *testing.T) {
	store := newMemCatalog()
	pipeline := testPipeline(store)

	seed := record.Raw{Title: "Dune", Language: "en", Source: record.SourceOpenLibrary, OpenLibraryID: strptr("OL123")}
	_, _, err := pipeline.ProcessBatch(context.Background(), []record.Raw{seed})
	require.NoError(t, err)

	store.updateConflicts = 2
	update := record.Raw{Title: "Dune", Language: "en", Source: record.SourceOpenLibrary, OpenLibraryID: strptr("OL123")}

	successful, failed, err := pipeline.ProcessBatch(context.Background(), []record.Raw{update})
	require.NoError(t, err)
	assert.Equal(t, int64(0), successful)
	assert.Equal(t, int64(1), failed)
}

func TestPipeline_SeriesAndGenresLinked(t *testing.T) {
	store := newMemCatalog()
	pipeline := testPipeline(store)

	raw := record.Raw{
		Title:         "Dune Messiah",
		Language:      "en",
		Source:        record.SourceOpenLibrary,
		OpenLibraryID: strptr("OL200"),
		Genres:        []record.Genre{{Name: "Science Fiction"}},
		Series:        &record.Series{Name: "Dune"},
	}

	successful, _, err := pipeline.ProcessBatch(context.Background(), []record.Raw{raw})
	require.NoError(t, err)
	assert.Equal(t, int64(1), successful)

	book := store.books[1]
	require.NotNil(t, book.SeriesID)
	assert.Equal(t, int64(1), *book.SeriesID)
	assert.Equal(t, []int64{1}, store.bookGenres[1])
}
