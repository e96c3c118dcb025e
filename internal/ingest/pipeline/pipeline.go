// Package pipeline applies normalized records to the catalog: match against
// existing entities, merge fields, persist books with their author, genre,
// and series links. It is the shared write path of incremental jobs and the
// read-through behind them.
package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/minsik-app/ingestion/internal/catalog"
	"github.com/minsik-app/ingestion/internal/ingest/match"
	"github.com/minsik-app/ingestion/internal/ingest/merge"
	"github.com/minsik-app/ingestion/internal/ingest/record"
	"github.com/minsik-app/ingestion/internal/platform/dberr"
)

// Pipeline persists one batch of records at a time. Per-record failures are
// logged and counted, never propagated; a row-contention conflict is retried
// once before being counted as failed.
type Pipeline struct {
	store   catalog.Store
	matcher *match.Matcher
	logger  *slog.Logger
}

// New wires the batch processor.
func New(store catalog.Store, matcher *match.Matcher, logger *slog.Logger) *Pipeline {
	return &Pipeline{store: store, matcher: matcher, logger: logger}
}

// ProcessBatch applies records sequentially and returns how many succeeded
// and failed. When the batch context ends, the remaining records are counted
// as failed and the batch returns cleanly.
func (p *Pipeline) ProcessBatch(ctx context.Context, records []record.Raw) (successful, failed int64, err error) {
	for i := range records {
		if ctx.Err() != nil {
			failed += int64(len(records) - i)
			break
		}

		if err := p.processRecord(ctx, &records[i]); err != nil {
			failed++
			p.logger.Warn("record_persist_failed",
				slog.String("title", records[i].Title),
				slog.String("source", records[i].Source),
				slog.Any("error", err),
			)
			continue
		}
		successful++
	}
	return successful, failed, nil
}

func (p *Pipeline) processRecord(ctx context.Context, raw *record.Raw) error {
	if !raw.Clean() {
		return errors.New("record dropped: missing title or language")
	}

	err := p.persistRecord(ctx, raw)
	if dberr.IsConflict(err) {
		// Row contention with a concurrent job; one retry re-reads the
		// current state through the matcher.
		err = p.persistRecord(ctx, raw)
	}
	return err
}

func (p *Pipeline) persistRecord(ctx context.Context, raw *record.Raw) error {
	result, err := p.matcher.Match(ctx, raw)
	if err != nil {
		return err
	}

	authorIDs, err := p.upsertAuthors(ctx, raw)
	if err != nil {
		return err
	}

	genreIDs, err := p.upsertGenres(ctx, raw)
	if err != nil {
		return err
	}

	seriesID, err := p.resolveSeries(ctx, raw, result)
	if err != nil {
		return err
	}

	write := merge.Book(result.Book, raw)
	if write.SeriesID == nil {
		write.SeriesID = seriesID
	}

	var bookID int64
	if result.Book != nil {
		bookID = result.Book.ID
		if err := p.store.UpdateBook(ctx, bookID, write); err != nil {
			return err
		}
	} else {
		bookID, err = p.store.InsertBook(ctx, write)
		if err != nil {
			return err
		}
	}

	ordered := orderedAuthorIDs(raw, authorIDs)
	if len(ordered) > 0 {
		if err := p.store.LinkBookAuthors(ctx, bookID, ordered); err != nil {
			return err
		}
		if err := p.store.RecomputeAuthorBookCounts(ctx, ordered); err != nil {
			return err
		}
	}
	if len(genreIDs) > 0 {
		if err := p.store.LinkBookGenres(ctx, bookID, genreIDs); err != nil {
			return err
		}
	}

	return nil
}

func (p *Pipeline) upsertAuthors(ctx context.Context, raw *record.Raw) (map[string]int64, error) {
	if len(raw.Authors) == 0 {
		return nil, nil
	}

	writes := make([]catalog.AuthorWrite, 0, len(raw.Authors))
	for i := range raw.Authors {
		writes = append(writes, merge.Author(&raw.Authors[i]))
	}
	return p.store.UpsertAuthors(ctx, writes)
}

func (p *Pipeline) upsertGenres(ctx context.Context, raw *record.Raw) ([]int64, error) {
	if len(raw.Genres) == 0 {
		return nil, nil
	}

	genres := make([]catalog.Genre, 0, len(raw.Genres))
	for _, g := range raw.Genres {
		genres = append(genres, catalog.Genre{Name: g.Name, Slug: g.Slug})
	}
	bySlug, err := p.store.UpsertGenres(ctx, genres)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(genres))
	for _, g := range genres {
		if id, ok := bySlug[g.Slug]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (p *Pipeline) resolveSeries(ctx context.Context, raw *record.Raw, result *match.Result) (*int64, error) {
	if raw.Series == nil {
		return nil, nil
	}
	if result.SeriesID != nil {
		return result.SeriesID, nil
	}

	bySlug, err := p.store.UpsertSeries(ctx, []catalog.SeriesWrite{merge.Series(raw.Series)})
	if err != nil {
		return nil, err
	}
	if id, ok := bySlug[raw.Series.Slug]; ok {
		return &id, nil
	}
	return nil, nil
}

// orderedAuthorIDs preserves the record's author order for author_position.
func orderedAuthorIDs(raw *record.Raw, bySlug map[string]int64) []int64 {
	ids := make([]int64, 0, len(raw.Authors))
	seen := make(map[int64]struct{}, len(raw.Authors))
	for i := range raw.Authors {
		id, ok := bySlug[raw.Authors[i].Slug]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
