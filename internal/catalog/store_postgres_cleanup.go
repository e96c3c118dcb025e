package catalog

import (
	"context"

	"github.com/minsik-app/ingestion/internal/platform/dberr"
)

// qualityScoreSQL computes the 8-signal completeness score of a book row.
// Each present field contributes one point: description, cover, author link,
// genre link, publication year, isbn, pages, publisher.
const qualityScoreSQL = `
	(CASE WHEN b.description IS NOT NULL AND b.description != '' THEN 1 ELSE 0 END) +
	(CASE WHEN b.primary_cover_url IS NOT NULL THEN 1 ELSE 0 END) +
	(CASE WHEN EXISTS (SELECT 1 FROM books.book_authors ba WHERE ba.book_id = b.book_id) THEN 1 ELSE 0 END) +
	(CASE WHEN EXISTS (SELECT 1 FROM books.book_genres bg WHERE bg.book_id = b.book_id) THEN 1 ELSE 0 END) +
	(CASE WHEN b.original_publication_year IS NOT NULL THEN 1 ELSE 0 END) +
	(CASE WHEN b.isbn IS NOT NULL AND b.isbn != '[]'::jsonb THEN 1 ELSE 0 END) +
	(CASE WHEN b.number_of_pages IS NOT NULL AND b.number_of_pages > 0 THEN 1 ELSE 0 END) +
	(CASE WHEN b.publisher IS NOT NULL AND b.publisher != '' THEN 1 ELSE 0 END)`

// engagementGuardSQL excludes any book a user has touched. A row matching
// the guard is never deleted regardless of its quality score.
const engagementGuardSQL = `
	b.rating_count = 0
	AND b.view_count = 0
	AND COALESCE(b.ol_rating_count, 0) = 0
	AND COALESCE(b.ol_already_read_count, 0) = 0
	AND b.created_at < NOW() - INTERVAL '1 day'
	AND NOT EXISTS (SELECT 1 FROM user_data.bookshelves bs WHERE bs.book_id = b.book_id)
	AND NOT EXISTS (SELECT 1 FROM user_data.ratings r WHERE r.book_id = b.book_id)
	AND NOT EXISTS (SELECT 1 FROM user_data.comments c WHERE c.book_id = b.book_id)`

// DeleteLowQualityBooks removes metadata-poor, untouched books in batches.
// Junction rows cascade via their foreign keys.
func (s *PostgresStore) DeleteLowQualityBooks(ctx context.Context, minScore, batchSize int) (CleanupResult, error) {
	result := CleanupResult{}

	countQuery := `
		SELECT COUNT(*) FROM books.books b
		WHERE (` + qualityScoreSQL + `) < $1
		  AND ` + engagementGuardSQL

	if err := s.pool.QueryRow(ctx, countQuery, minScore).Scan(&result.Eligible); err != nil {
		return result, dberr.Wrap(err, "catalog_cleanup_count")
	}
	if result.Eligible == 0 {
		return result, nil
	}

	deleteQuery := `
		DELETE FROM books.books
		WHERE book_id IN (
			SELECT b.book_id FROM books.books b
			WHERE (` + qualityScoreSQL + `) < $1
			  AND ` + engagementGuardSQL + `
			LIMIT $2
		)`

	for {
		tag, err := s.pool.Exec(ctx, deleteQuery, minScore, batchSize)
		if err != nil {
			return result, dberr.Wrap(err, "catalog_cleanup_delete")
		}
		if tag.RowsAffected() == 0 {
			break
		}
		result.Deleted += tag.RowsAffected()

		if ctx.Err() != nil {
			return result, ctx.Err()
		}
	}
	return result, nil
}

// DeleteOrphanAuthors removes authors below minBooks linked books with zero
// views, at least a day old.
func (s *PostgresStore) DeleteOrphanAuthors(ctx context.Context, minBooks, batchSize int) (CleanupResult, error) {
	result := CleanupResult{}

	const countQuery = `
		SELECT COUNT(*) FROM books.authors a
		WHERE (
			SELECT COUNT(*) FROM books.book_authors ba WHERE ba.author_id = a.author_id
		) < $1
		AND a.view_count = 0
		AND a.created_at < NOW() - INTERVAL '1 day'`

	if err := s.pool.QueryRow(ctx, countQuery, minBooks).Scan(&result.Eligible); err != nil {
		return result, dberr.Wrap(err, "catalog_cleanup_authors_count")
	}
	if result.Eligible == 0 {
		return result, nil
	}

	const deleteQuery = `
		DELETE FROM books.authors
		WHERE author_id IN (
			SELECT a.author_id FROM books.authors a
			WHERE (
				SELECT COUNT(*) FROM books.book_authors ba WHERE ba.author_id = a.author_id
			) < $1
			AND a.view_count = 0
			AND a.created_at < NOW() - INTERVAL '1 day'
			LIMIT $2
		)`

	for {
		tag, err := s.pool.Exec(ctx, deleteQuery, minBooks, batchSize)
		if err != nil {
			return result, dberr.Wrap(err, "catalog_cleanup_authors_delete")
		}
		if tag.RowsAffected() == 0 {
			break
		}
		result.Deleted += tag.RowsAffected()

		if ctx.Err() != nil {
			return result, ctx.Err()
		}
	}
	return result, nil
}

// DeleteOrphanSeries removes series no book references.
func (s *PostgresStore) DeleteOrphanSeries(ctx context.Context, batchSize int) (int64, error) {
	const query = `
		DELETE FROM books.series
		WHERE series_id IN (
			SELECT s.series_id FROM books.series s
			WHERE NOT EXISTS (
				SELECT 1 FROM books.books b WHERE b.series_id = s.series_id
			)
			AND s.created_at < NOW() - INTERVAL '1 day'
			LIMIT $1
		)`

	return s.deleteLoop(ctx, query, batchSize, "catalog_cleanup_series")
}

// DeleteOrphanGenres removes genres no book references.
func (s *PostgresStore) DeleteOrphanGenres(ctx context.Context, batchSize int) (int64, error) {
	const query = `
		DELETE FROM books.genres
		WHERE genre_id IN (
			SELECT g.genre_id FROM books.genres g
			WHERE NOT EXISTS (
				SELECT 1 FROM books.book_genres bg WHERE bg.genre_id = g.genre_id
			)
			LIMIT $1
		)`

	return s.deleteLoop(ctx, query, batchSize, "catalog_cleanup_genres")
}

// deleteLoop runs a batched DELETE until no rows remain.
func (s *PostgresStore) deleteLoop(ctx context.Context, query string, batchSize int, action string) (int64, error) {
	var total int64
	for {
		tag, err := s.pool.Exec(ctx, query, batchSize)
		if err != nil {
			return total, dberr.Wrap(err, action)
		}
		if tag.RowsAffected() == 0 {
			return total, nil
		}
		total += tag.RowsAffected()

		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}
}

// # Description enrichment

// BooksNeedingDescription lists books whose description is missing or
// shorter than minLen, newest first. The first author is attached so the
// enricher can build an author-qualified search term.
func (s *PostgresStore) BooksNeedingDescription(ctx context.Context, minLen, limit int) ([]Book, error) {
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
		WHERE b.description IS NULL OR LENGTH(b.description) < $1
		ORDER BY b.created_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, minLen, limit)
	if err != nil {
		return nil, dberr.Wrap(err, "catalog_books_needing_description")
	}
	defer rows.Close()

	var books []Book
	for rows.Next() {
		b, err := scanBook(rows, true)
		if err != nil {
			return nil, dberr.Wrap(err, "catalog_books_needing_description_scan")
		}
		books = append(books, *b)
	}
	return books, dberr.Wrap(rows.Err(), "catalog_books_needing_description_rows")
}

// AuthorsNeedingBio lists authors whose bio is missing or short.
func (s *PostgresStore) AuthorsNeedingBio(ctx context.Context, minLen, limit int) ([]Author, error) {
	query := `
		SELECT ` + authorColumns + `
		FROM books.authors a
		WHERE a.bio IS NULL OR LENGTH(a.bio) < $1
		ORDER BY a.created_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, minLen, limit)
	if err != nil {
		return nil, dberr.Wrap(err, "catalog_authors_needing_bio")
	}
	defer rows.Close()

	var authors []Author
	for rows.Next() {
		a, err := scanAuthor(rows)
		if err != nil {
			return nil, dberr.Wrap(err, "catalog_authors_needing_bio_scan")
		}
		authors = append(authors, *a)
	}
	return authors, dberr.Wrap(rows.Err(), "catalog_authors_needing_bio_rows")
}

// SeriesNeedingDescription lists series whose description is missing or
// short.
func (s *PostgresStore) SeriesNeedingDescription(ctx context.Context, minLen, limit int) ([]Series, error) {
	const query = `
		SELECT series_id, name, slug, description, total_books, created_at, updated_at
		FROM books.series
		WHERE description IS NULL OR LENGTH(description) < $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, minLen, limit)
	if err != nil {
		return nil, dberr.Wrap(err, "catalog_series_needing_description")
	}
	defer rows.Close()

	var series []Series
	for rows.Next() {
		var sr Series
		if err := rows.Scan(
			&sr.ID, &sr.Name, &sr.Slug, &sr.Description,
			&sr.TotalBooks, &sr.CreatedAt, &sr.UpdatedAt,
		); err != nil {
			return nil, dberr.Wrap(err, "catalog_series_needing_description_scan")
		}
		series = append(series, sr)
	}
	return series, dberr.Wrap(rows.Err(), "catalog_series_needing_description_rows")
}

// SetBookDescription backfills a description, only while still absent or
// shorter than the replacement.
func (s *PostgresStore) SetBookDescription(ctx context.Context, bookID int64, description string) error {
	const query = `
		UPDATE books.books SET description = $2, updated_at = NOW()
		WHERE book_id = $1
		  AND (description IS NULL OR LENGTH(description) < LENGTH($2))`

	_, err := s.pool.Exec(ctx, query, bookID, description)
	return dberr.Wrap(err, "catalog_set_book_description")
}

// SetAuthorBio backfills a bio, only while still absent or shorter than the
// replacement.
func (s *PostgresStore) SetAuthorBio(ctx context.Context, authorID int64, bio string) error {
	const query = `
		UPDATE books.authors SET bio = $2, updated_at = NOW()
		WHERE author_id = $1
		  AND (bio IS NULL OR LENGTH(bio) < LENGTH($2))`

	_, err := s.pool.Exec(ctx, query, authorID, bio)
	return dberr.Wrap(err, "catalog_set_author_bio")
}

// SetSeriesDescription backfills a description, only while still absent or
// shorter than the replacement.
func (s *PostgresStore) SetSeriesDescription(ctx context.Context, seriesID int64, description string) error {
	const query = `
		UPDATE books.series SET description = $2, updated_at = NOW()
		WHERE series_id = $1
		  AND (description IS NULL OR LENGTH(description) < LENGTH($2))`

	_, err := s.pool.Exec(ctx, query, seriesID, description)
	return dberr.Wrap(err, "catalog_set_series_description")
}
