package catalog

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/minsik-app/ingestion/internal/platform/dberr"
)

// authorColumns is the canonical select list for books.authors rows.
const authorColumns = `
	a.author_id, a.name, a.slug, a.alternate_names,
	a.bio, a.birth_date, a.death_date,
	a.birth_place, a.nationality,
	a.photo_url, a.open_library_id, a.wikidata_id, a.wikipedia_url,
	a.remote_ids, a.book_count, a.view_count,
	a.created_at, a.updated_at`

func scanAuthor(row pgx.Row) (*Author, error) {
	a := &Author{}
	err := row.Scan(
		&a.ID, &a.Name, &a.Slug, &a.AlternateNames,
		&a.Bio, &a.BirthDate, &a.DeathDate,
		&a.BirthPlace, &a.Nationality,
		&a.PhotoURL, &a.OpenLibraryID, &a.WikidataID, &a.WikipediaURL,
		&a.RemoteIDs, &a.BookCount, &a.ViewCount,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// AuthorByOpenLibraryID returns the author carrying the given OL ID.
func (s *PostgresStore) AuthorByOpenLibraryID(ctx context.Context, olID string) (*Author, error) {
	query := `SELECT ` + authorColumns + ` FROM books.authors a WHERE a.open_library_id = $1 LIMIT 1`

	author, err := scanAuthor(s.pool.QueryRow(ctx, query, olID))
	if err != nil {
		return nil, dberr.Wrap(err, "catalog_author_by_ol_id")
	}
	return author, nil
}

// AuthorBySlug returns the author with the given slug.
func (s *PostgresStore) AuthorBySlug(ctx context.Context, slug string) (*Author, error) {
	query := `SELECT ` + authorColumns + ` FROM books.authors a WHERE a.slug = $1`

	author, err := scanAuthor(s.pool.QueryRow(ctx, query, slug))
	if err != nil {
		return nil, dberr.Wrap(err, "catalog_author_by_slug")
	}
	return author, nil
}

// SeriesBySlug returns the series with the given slug.
func (s *PostgresStore) SeriesBySlug(ctx context.Context, slug string) (*Series, error) {
	const query = `
		SELECT series_id, name, slug, description, total_books, created_at, updated_at
		FROM books.series WHERE slug = $1`

	series := &Series{}
	err := s.pool.QueryRow(ctx, query, slug).Scan(
		&series.ID, &series.Name, &series.Slug, &series.Description,
		&series.TotalBooks, &series.CreatedAt, &series.UpdatedAt,
	)
	if err != nil {
		return nil, dberr.Wrap(err, "catalog_series_by_slug")
	}
	return series, nil
}

// UpsertAuthors writes the batch with keep-populated semantics: an existing
// populated field is never replaced, only absent fields are filled in.
func (s *PostgresStore) UpsertAuthors(ctx context.Context, ws []AuthorWrite) (map[string]int64, error) {
	if len(ws) == 0 {
		return map[string]int64{}, nil
	}

	const query = `
		INSERT INTO books.authors (
			name, slug, alternate_names, bio, birth_date, death_date,
			photo_url, open_library_id, wikidata_id, wikipedia_url, remote_ids
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (slug) DO UPDATE SET
			bio = COALESCE(books.authors.bio, EXCLUDED.bio),
			birth_date = COALESCE(books.authors.birth_date, EXCLUDED.birth_date),
			death_date = COALESCE(books.authors.death_date, EXCLUDED.death_date),
			photo_url = COALESCE(books.authors.photo_url, EXCLUDED.photo_url),
			open_library_id = COALESCE(books.authors.open_library_id, EXCLUDED.open_library_id),
			wikidata_id = COALESCE(books.authors.wikidata_id, EXCLUDED.wikidata_id),
			wikipedia_url = COALESCE(books.authors.wikipedia_url, EXCLUDED.wikipedia_url),
			remote_ids = EXCLUDED.remote_ids || books.authors.remote_ids,
			alternate_names = CASE
				WHEN books.authors.alternate_names = '[]'::jsonb THEN EXCLUDED.alternate_names
				ELSE books.authors.alternate_names
			END,
			updated_at = NOW()
		RETURNING slug, author_id`

	ids := make(map[string]int64, len(ws))

	batch := &pgx.Batch{}
	for i := range ws {
		w := &ws[i]
		batch.Queue(query,
			w.Name, w.Slug, w.AlternateNames, w.Bio, w.BirthDate, w.DeathDate,
			w.PhotoURL, w.OpenLibraryID, w.WikidataID, w.WikipediaURL, w.RemoteIDs,
		).QueryRow(func(row pgx.Row) error {
			var slug string
			var id int64
			if err := row.Scan(&slug, &id); err != nil {
				return err
			}
			ids[slug] = id
			return nil
		})
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return nil, dberr.Wrap(err, "catalog_upsert_authors")
	}
	return ids, nil
}

// UpsertGenres writes the batch and returns slug -> genre_id.
func (s *PostgresStore) UpsertGenres(ctx context.Context, gs []Genre) (map[string]int64, error) {
	if len(gs) == 0 {
		return map[string]int64{}, nil
	}

	// The no-op update makes RETURNING yield the existing row's ID too.
	const query = `
		INSERT INTO books.genres (name, slug)
		VALUES ($1, $2)
		ON CONFLICT (slug) DO UPDATE SET name = books.genres.name
		RETURNING slug, genre_id`

	ids := make(map[string]int64, len(gs))

	batch := &pgx.Batch{}
	for i := range gs {
		g := &gs[i]
		batch.Queue(query, g.Name, g.Slug).QueryRow(func(row pgx.Row) error {
			var slug string
			var id int64
			if err := row.Scan(&slug, &id); err != nil {
				return err
			}
			ids[slug] = id
			return nil
		})
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return nil, dberr.Wrap(err, "catalog_upsert_genres")
	}
	return ids, nil
}

// UpsertSeries writes the batch and returns slug -> series_id.
func (s *PostgresStore) UpsertSeries(ctx context.Context, ws []SeriesWrite) (map[string]int64, error) {
	if len(ws) == 0 {
		return map[string]int64{}, nil
	}

	const query = `
		INSERT INTO books.series (name, slug, description)
		VALUES ($1, $2, $3)
		ON CONFLICT (slug) DO UPDATE SET
			description = COALESCE(books.series.description, EXCLUDED.description),
			updated_at = NOW()
		RETURNING slug, series_id`

	ids := make(map[string]int64, len(ws))

	batch := &pgx.Batch{}
	for i := range ws {
		w := &ws[i]
		batch.Queue(query, w.Name, w.Slug, w.Description).QueryRow(func(row pgx.Row) error {
			var slug string
			var id int64
			if err := row.Scan(&slug, &id); err != nil {
				return err
			}
			ids[slug] = id
			return nil
		})
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return nil, dberr.Wrap(err, "catalog_upsert_series")
	}
	return ids, nil
}

// LinkBookAuthors attaches authors in listed order. Existing links keep
// their position.
func (s *PostgresStore) LinkBookAuthors(ctx context.Context, bookID int64, authorIDs []int64) error {
	if len(authorIDs) == 0 {
		return nil
	}

	const query = `
		INSERT INTO books.book_authors (book_id, author_id, author_position)
		VALUES ($1, $2, $3)
		ON CONFLICT (book_id, author_id) DO NOTHING`

	batch := &pgx.Batch{}
	for position, authorID := range authorIDs {
		batch.Queue(query, bookID, authorID, position)
	}

	return dberr.Wrap(s.pool.SendBatch(ctx, batch).Close(), "catalog_link_book_authors")
}

// LinkBookGenres attaches genres; existing links are kept.
func (s *PostgresStore) LinkBookGenres(ctx context.Context, bookID int64, genreIDs []int64) error {
	if len(genreIDs) == 0 {
		return nil
	}

	const query = `
		INSERT INTO books.book_genres (book_id, genre_id)
		VALUES ($1, $2)
		ON CONFLICT (book_id, genre_id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, genreID := range genreIDs {
		batch.Queue(query, bookID, genreID)
	}

	return dberr.Wrap(s.pool.SendBatch(ctx, batch).Close(), "catalog_link_book_genres")
}

// RecomputeAuthorBookCounts refreshes book_count from the junction table.
func (s *PostgresStore) RecomputeAuthorBookCounts(ctx context.Context, authorIDs []int64) error {
	if len(authorIDs) == 0 {
		return nil
	}

	const query = `
		UPDATE books.authors a SET book_count = (
			SELECT COUNT(*) FROM books.book_authors ba WHERE ba.author_id = a.author_id
		), updated_at = NOW()
		WHERE a.author_id = ANY($1)`

	_, err := s.pool.Exec(ctx, query, authorIDs)
	return dberr.Wrap(err, "catalog_recompute_author_book_counts")
}

// # Dump import support

// AuthorIDsByOpenLibraryIDs resolves OL author IDs to author_id.
func (s *PostgresStore) AuthorIDsByOpenLibraryIDs(ctx context.Context, olIDs []string) (map[string]int64, error) {
	if len(olIDs) == 0 {
		return map[string]int64{}, nil
	}

	const query = `
		SELECT open_library_id, author_id
		FROM books.authors
		WHERE open_library_id = ANY($1)`

	rows, err := s.pool.Query(ctx, query, olIDs)
	if err != nil {
		return nil, dberr.Wrap(err, "catalog_author_ids_by_ol_ids")
	}
	defer rows.Close()

	ids := make(map[string]int64, len(olIDs))
	for rows.Next() {
		var olID string
		var id int64
		if err := rows.Scan(&olID, &id); err != nil {
			return nil, dberr.Wrap(err, "catalog_author_ids_by_ol_ids_scan")
		}
		ids[olID] = id
	}
	return ids, dberr.Wrap(rows.Err(), "catalog_author_ids_by_ol_ids_rows")
}

// EnrichAuthorWikidata backfills nationality, birth place, and Wikipedia URL
// without overwriting populated values. Reports whether a row changed.
func (s *PostgresStore) EnrichAuthorWikidata(ctx context.Context, wikidataID string, nationality, birthPlace, wikipediaURL *string) (bool, error) {
	const query = `
		UPDATE books.authors SET
			nationality = COALESCE(nationality, $2),
			birth_place = COALESCE(birth_place, $3),
			wikipedia_url = COALESCE(wikipedia_url, $4),
			updated_at = NOW()
		WHERE wikidata_id = $1`

	tag, err := s.pool.Exec(ctx, query, wikidataID, nationality, birthPlace, wikipediaURL)
	if err != nil {
		return false, dberr.Wrap(err, "catalog_enrich_author_wikidata")
	}
	return tag.RowsAffected() > 0, nil
}

// WikidataIDsMissingEnrichment lists authors that carry a Wikidata ID but no
// nationality yet.
func (s *PostgresStore) WikidataIDsMissingEnrichment(ctx context.Context, limit int) ([]string, error) {
	const query = `
		SELECT wikidata_id FROM books.authors
		WHERE wikidata_id IS NOT NULL AND nationality IS NULL
		ORDER BY author_id
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, dberr.Wrap(err, "catalog_wikidata_missing")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, dberr.Wrap(err, "catalog_wikidata_missing_scan")
		}
		ids = append(ids, id)
	}
	return ids, dberr.Wrap(rows.Err(), "catalog_wikidata_missing_rows")
}

// KnownOpenLibraryWorks streams every (OL work ID, book_id, language) triple.
func (s *PostgresStore) KnownOpenLibraryWorks(ctx context.Context, fn func(olID string, bookID int64, language string) error) error {
	const query = `
		SELECT open_library_id, book_id, language
		FROM books.books
		WHERE open_library_id IS NOT NULL`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return dberr.Wrap(err, "catalog_known_ol_works")
	}
	defer rows.Close()

	for rows.Next() {
		var olID string
		var bookID int64
		var language string
		if err := rows.Scan(&olID, &bookID, &language); err != nil {
			return dberr.Wrap(err, "catalog_known_ol_works_scan")
		}
		if err := fn(olID, bookID, language); err != nil {
			return err
		}
	}
	return dberr.Wrap(rows.Err(), "catalog_known_ol_works_rows")
}

// UpdateOLRatings writes dump-aggregated rating signals to every language
// row of the work. Returns the number of rows touched.
func (s *PostgresStore) UpdateOLRatings(ctx context.Context, olWorkID string, count int, avg float64) (int64, error) {
	const query = `
		UPDATE books.books SET
			ol_rating_count = $2,
			ol_avg_rating = $3,
			updated_at = NOW()
		WHERE open_library_id = $1`

	tag, err := s.pool.Exec(ctx, query, olWorkID, count, avg)
	if err != nil {
		return 0, dberr.Wrap(err, "catalog_update_ol_ratings")
	}
	return tag.RowsAffected(), nil
}

// UpdateOLReadingLog writes dump-aggregated shelf counts to every language
// row of the work. Returns the number of rows touched.
func (s *PostgresStore) UpdateOLReadingLog(ctx context.Context, olWorkID string, want, reading, read int) (int64, error) {
	const query = `
		UPDATE books.books SET
			ol_want_to_read_count = $2,
			ol_currently_reading_count = $3,
			ol_already_read_count = $4,
			updated_at = NOW()
		WHERE open_library_id = $1`

	tag, err := s.pool.Exec(ctx, query, olWorkID, want, reading, read)
	if err != nil {
		return 0, dberr.Wrap(err, "catalog_update_ol_reading_log")
	}
	return tag.RowsAffected(), nil
}
