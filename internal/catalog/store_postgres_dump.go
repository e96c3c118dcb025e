package catalog

import (
	"context"

	"github.com/minsik-app/ingestion/internal/platform/dberr"
)

// BooksByOpenLibraryIDs resolves OL work IDs to their catalog rows, one
// entry per language row of the work.
func (s *PostgresStore) BooksByOpenLibraryIDs(ctx context.Context, olIDs []string) (map[string][]BookRef, error) {
	if len(olIDs) == 0 {
		return map[string][]BookRef{}, nil
	}

	const query = `
		SELECT open_library_id, book_id, language
		FROM books.books
		WHERE open_library_id = ANY($1)`

	rows, err := s.pool.Query(ctx, query, olIDs)
	if err != nil {
		return nil, dberr.Wrap(err, "catalog_books_by_ol_ids")
	}
	defer rows.Close()

	refs := make(map[string][]BookRef, len(olIDs))
	for rows.Next() {
		var olID string
		var ref BookRef
		if err := rows.Scan(&olID, &ref.ID, &ref.Language); err != nil {
			return nil, dberr.Wrap(err, "catalog_books_by_ol_ids_scan")
		}
		refs[olID] = append(refs[olID], ref)
	}
	return refs, dberr.Wrap(rows.Err(), "catalog_books_by_ol_ids_rows")
}

// EnrichBookEdition backfills edition-level fields onto an existing row.
// Populated scalars are kept; a non-empty incoming ISBN list replaces the
// stored one and the format is appended when not yet present.
func (s *PostgresStore) EnrichBookEdition(ctx context.Context, bookID int64, e *EditionEnrichment) error {
	const query = `
		UPDATE books.books SET
			isbn = CASE WHEN $2::jsonb IS NOT NULL THEN $2::jsonb ELSE isbn END,
			number_of_pages = COALESCE(number_of_pages, $3),
			publisher = COALESCE(publisher, $4),
			external_ids = CASE WHEN $5::jsonb IS NOT NULL THEN $5::jsonb || external_ids ELSE external_ids END,
			primary_cover_url = COALESCE(primary_cover_url, $6),
			description = COALESCE(description, $7),
			formats = CASE
				WHEN $8::jsonb IS NOT NULL AND NOT formats @> $8::jsonb
				THEN formats || $8::jsonb ELSE formats
			END,
			updated_at = NOW()
		WHERE book_id = $1`

	var isbn any
	if len(e.ISBN) > 0 {
		isbn = e.ISBN
	}
	var externalIDs any
	if len(e.ExternalIDs) > 0 {
		externalIDs = e.ExternalIDs
	}
	var format any
	if e.Format != nil {
		format = []string{*e.Format}
	}

	_, err := s.pool.Exec(ctx, query,
		bookID, isbn, e.Pages, e.Publisher, externalIDs, e.CoverURL, e.Description, format,
	)
	return dberr.Wrap(err, "catalog_enrich_book_edition")
}
