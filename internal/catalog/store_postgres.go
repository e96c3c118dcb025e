// Package catalog implements the book-catalog persistence layer over
// PostgreSQL.
//
// # Architecture
//
// The store is strictly separated from ingestion logic. It implements the
// [Store] contract using the [pgxpool.Pool] connection manager; merge
// decisions arrive pre-computed in the *Write structs.
//
// # Error Mapping
//
// Storage-specific errors (pgx.ErrNoRows, SQLSTATE codes) are mapped via
// [dberr.Wrap] so callers can classify conflicts without importing pgx.
package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/minsik-app/ingestion/internal/ingest/record"
	"github.com/minsik-app/ingestion/internal/platform/dberr"
)

// PostgresStore implements [Store] using pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates the PostgreSQL implementation of [Store].
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// bookColumns is the canonical select list for books.books rows.
const bookColumns = `
	b.book_id, b.title, b.language, b.slug, b.description,
	b.original_publication_year, b.number_of_pages,
	b.formats, b.cover_history, b.primary_cover_url,
	b.isbn, b.publisher, b.external_ids,
	b.open_library_id, b.google_books_id,
	b.series_id, b.series_position,
	b.rating_count, b.average_rating, b.view_count,
	b.ol_rating_count, b.ol_avg_rating,
	b.ol_want_to_read_count, b.ol_currently_reading_count, b.ol_already_read_count,
	b.created_at, b.updated_at`

// scanBook reads one row produced by a bookColumns select. When
// withFirstAuthor is set, one trailing first_author column is expected.
func scanBook(row pgx.Row, withFirstAuthor bool) (*Book, error) {
	b := &Book{}
	dest := []any{
		&b.ID, &b.Title, &b.Language, &b.Slug, &b.Description,
		&b.OriginalPublicationYear, &b.NumberOfPages,
		&b.Formats, &b.CoverHistory, &b.PrimaryCoverURL,
		&b.ISBN, &b.Publisher, &b.ExternalIDs,
		&b.OpenLibraryID, &b.GoogleBooksID,
		&b.SeriesID, &b.SeriesPosition,
		&b.RatingCount, &b.AverageRating, &b.ViewCount,
		&b.OLRatingCount, &b.OLAvgRating,
		&b.OLWantToReadCount, &b.OLCurrentlyReadingCount, &b.OLAlreadyReadCount,
		&b.CreatedAt, &b.UpdatedAt,
	}
	if withFirstAuthor {
		dest = append(dest, &b.FirstAuthorName)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return b, nil
}

// BookByExternalID returns the book carrying the source-native identifier
// in the given language. Translation rows cloned during the dump's editions
// phase share the work's external ID, so an unscoped lookup could hand a
// record of one language a sibling row of another.
func (s *PostgresStore) BookByExternalID(ctx context.Context, source, externalID, language string) (*Book, error) {
	var where string
	switch source {
	case record.SourceOpenLibrary:
		where = `b.open_library_id = $1`
	case record.SourceGoogleBooks:
		where = `b.google_books_id = $1`
	default:
		// Generic sources live inside the external_ids map. Source names
		// are internal constants, never user input; still, reject anything
		// that could break out of the key position.
		if !validSourceKey(source) {
			return nil, fmt.Errorf("catalog: invalid source key %q", source)
		}
		where = `b.external_ids ->> '` + source + `' = $1`
	}

	query := `SELECT ` + bookColumns + ` FROM books.books b
		WHERE ` + where + ` AND b.language = $2
		ORDER BY b.book_id
		LIMIT 1`

	book, err := scanBook(s.pool.QueryRow(ctx, query, externalID, language), false)
	if err != nil {
		return nil, dberr.Wrap(err, "catalog_book_by_external_id")
	}
	return book, nil
}

// validSourceKey restricts external-ID map keys to identifier characters.
func validSourceKey(source string) bool {
	for _, r := range source {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return source != ""
}

// BookCandidates returns all books sharing (language, slug) with their first
// author attached, ordered by engagement so ties resolve deterministically.
func (s *PostgresStore) BookCandidates(ctx context.Context, language, slug string) ([]Book, error) {
	query := `
		SELECT ` + bookColumns + `, (
			SELECT a.name
			FROM books.book_authors ba
			JOIN books.authors a ON a.author_id = ba.author_id
			WHERE ba.book_id = b.book_id
			ORDER BY ba.author_position
			LIMIT 1
		) AS first_author
		FROM books.books b
		WHERE b.language = $1 AND b.slug = $2
		ORDER BY b.rating_count DESC, b.view_count DESC, b.book_id ASC`

	rows, err := s.pool.Query(ctx, query, language, slug)
	if err != nil {
		return nil, dberr.Wrap(err, "catalog_book_candidates")
	}
	defer rows.Close()

	var books []Book
	for rows.Next() {
		b, err := scanBook(rows, true)
		if err != nil {
			return nil, dberr.Wrap(err, "catalog_book_candidates_scan")
		}
		books = append(books, *b)
	}
	return books, dberr.Wrap(rows.Err(), "catalog_book_candidates_rows")
}

// BookByID returns a single book row.
func (s *PostgresStore) BookByID(ctx context.Context, bookID int64) (*Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books.books b WHERE b.book_id = $1`

	book, err := scanBook(s.pool.QueryRow(ctx, query, bookID), false)
	if err != nil {
		return nil, dberr.Wrap(err, "catalog_book_by_id")
	}
	return book, nil
}

// InsertBook inserts a new book row. A concurrent (language, slug) collision
// degrades into a keep-populated update of the winner row.
func (s *PostgresStore) InsertBook(ctx context.Context, w *BookWrite) (int64, error) {
	const query = `
		INSERT INTO books.books (
			title, language, slug, description,
			original_publication_year, number_of_pages,
			formats, cover_history, primary_cover_url,
			isbn, publisher, external_ids,
			open_library_id, google_books_id,
			series_id, series_position
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (language, slug) DO UPDATE SET
			description = COALESCE(books.books.description, EXCLUDED.description),
			original_publication_year = COALESCE(books.books.original_publication_year, EXCLUDED.original_publication_year),
			number_of_pages = COALESCE(books.books.number_of_pages, EXCLUDED.number_of_pages),
			primary_cover_url = COALESCE(books.books.primary_cover_url, EXCLUDED.primary_cover_url),
			publisher = COALESCE(books.books.publisher, EXCLUDED.publisher),
			external_ids = EXCLUDED.external_ids || books.books.external_ids,
			open_library_id = COALESCE(books.books.open_library_id, EXCLUDED.open_library_id),
			google_books_id = COALESCE(books.books.google_books_id, EXCLUDED.google_books_id),
			series_id = COALESCE(books.books.series_id, EXCLUDED.series_id),
			series_position = COALESCE(books.books.series_position, EXCLUDED.series_position),
			updated_at = NOW()
		RETURNING book_id`

	var bookID int64
	err := s.pool.QueryRow(ctx, query,
		w.Title, w.Language, w.Slug, w.Description,
		w.OriginalPublicationYear, w.NumberOfPages,
		w.Formats, w.CoverHistory, w.PrimaryCoverURL,
		w.ISBN, w.Publisher, w.ExternalIDs,
		w.OpenLibraryID, w.GoogleBooksID,
		w.SeriesID, w.SeriesPosition,
	).Scan(&bookID)
	if err != nil {
		return 0, dberr.Wrap(err, "catalog_insert_book")
	}
	return bookID, nil
}

// UpdateBook rewrites the merged fields of an existing row under a row lock.
func (s *PostgresStore) UpdateBook(ctx context.Context, bookID int64, w *BookWrite) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return dberr.Wrap(err, "catalog_update_book_begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock acquired at persistence time so concurrent jobs updating the
	// same entity serialize here.
	var locked int64
	err = tx.QueryRow(ctx, `SELECT book_id FROM books.books WHERE book_id = $1 FOR UPDATE`, bookID).Scan(&locked)
	if err != nil {
		return dberr.Wrap(err, "catalog_update_book_lock")
	}

	const query = `
		UPDATE books.books SET
			title = $2,
			description = $3,
			original_publication_year = $4,
			number_of_pages = $5,
			formats = $6,
			cover_history = $7,
			primary_cover_url = $8,
			isbn = $9,
			publisher = $10,
			external_ids = $11,
			open_library_id = $12,
			google_books_id = $13,
			series_id = $14,
			series_position = $15,
			updated_at = NOW()
		WHERE book_id = $1`

	_, err = tx.Exec(ctx, query,
		bookID,
		w.Title, w.Description,
		w.OriginalPublicationYear, w.NumberOfPages,
		w.Formats, w.CoverHistory, w.PrimaryCoverURL,
		w.ISBN, w.Publisher, w.ExternalIDs,
		w.OpenLibraryID, w.GoogleBooksID,
		w.SeriesID, w.SeriesPosition,
	)
	if err != nil {
		return dberr.Wrap(err, "catalog_update_book")
	}

	return dberr.Wrap(tx.Commit(ctx), "catalog_update_book_commit")
}

// CloneBookLanguage inserts w as a sibling language row of bookID and copies
// its authorship and genre links inside one transaction.
func (s *PostgresStore) CloneBookLanguage(ctx context.Context, bookID int64, w *BookWrite) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, dberr.Wrap(err, "catalog_clone_book_begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertQuery = `
		INSERT INTO books.books (
			title, language, slug, description,
			original_publication_year, number_of_pages,
			formats, cover_history, primary_cover_url,
			isbn, publisher, external_ids,
			open_library_id, google_books_id,
			series_id, series_position
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (language, slug) DO NOTHING
		RETURNING book_id`

	var newID int64
	err = tx.QueryRow(ctx, insertQuery,
		w.Title, w.Language, w.Slug, w.Description,
		w.OriginalPublicationYear, w.NumberOfPages,
		w.Formats, w.CoverHistory, w.PrimaryCoverURL,
		w.ISBN, w.Publisher, w.ExternalIDs,
		w.OpenLibraryID, w.GoogleBooksID,
		w.SeriesID, w.SeriesPosition,
	).Scan(&newID)
	if err != nil {
		// ErrNoRows here means another writer created the sibling first.
		return 0, dberr.Wrap(err, "catalog_clone_book_insert")
	}

	const copyAuthors = `
		INSERT INTO books.book_authors (book_id, author_id, author_position)
		SELECT $2, author_id, author_position
		FROM books.book_authors WHERE book_id = $1
		ON CONFLICT (book_id, author_id) DO NOTHING`
	if _, err := tx.Exec(ctx, copyAuthors, bookID, newID); err != nil {
		return 0, dberr.Wrap(err, "catalog_clone_book_authors")
	}

	const copyGenres = `
		INSERT INTO books.book_genres (book_id, genre_id)
		SELECT $2, genre_id
		FROM books.book_genres WHERE book_id = $1
		ON CONFLICT (book_id, genre_id) DO NOTHING`
	if _, err := tx.Exec(ctx, copyGenres, bookID, newID); err != nil {
		return 0, dberr.Wrap(err, "catalog_clone_book_genres")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, dberr.Wrap(err, "catalog_clone_book_commit")
	}
	return newID, nil
}

// # Coverage counts

// CountBooks counts catalog books, optionally scoped to a language.
func (s *PostgresStore) CountBooks(ctx context.Context, language string) (int64, error) {
	var count int64
	var err error
	if language == "" {
		err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM books.books`).Scan(&count)
	} else {
		err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM books.books WHERE language = $1`, language).Scan(&count)
	}
	return count, dberr.Wrap(err, "catalog_count_books")
}

// CountAuthors counts all catalog authors.
func (s *PostgresStore) CountAuthors(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM books.authors`).Scan(&count)
	return count, dberr.Wrap(err, "catalog_count_authors")
}

// CountSeries counts all catalog series.
func (s *PostgresStore) CountSeries(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM books.series`).Scan(&count)
	return count, dberr.Wrap(err, "catalog_count_series")
}
