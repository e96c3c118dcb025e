package dump

import (
	"context"
	"log/slog"

	"github.com/minsik-app/ingestion/internal/catalog"
	"github.com/minsik-app/ingestion/internal/ingest/merge"
	"github.com/minsik-app/ingestion/internal/ingest/record"
	"github.com/minsik-app/ingestion/internal/ingest/source"
)

// runWorks is phase 3: insert every work in the works dump as an English
// catalog row and link the authors imported in phase 1.
func (im *Importer) runWorks(ctx context.Context, state *State) error {
	path, cleanup, err := im.dumpFile(ctx, "ol_dump_works_latest.txt.gz")
	if err != nil {
		return err
	}
	defer cleanup()

	reader, err := source.OpenDump(path, "/type/work")
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	var scanned int64
	for {
		batch, done, err := reader.NextBatch(ctx, im.opts.BatchSize)
		if err != nil {
			return err
		}
		scanned += int64(len(batch))

		works := make([]*source.DumpWork, 0, len(batch))
		authorOLIDs := make(map[string]struct{})
		for _, payload := range batch {
			work, ok := source.ParseDumpWork(payload)
			if !ok || !work.Raw.Clean() {
				continue
			}
			works = append(works, work)
			for _, olID := range work.AuthorOLID {
				authorOLIDs[olID] = struct{}{}
			}
		}

		if err := im.persistWorks(ctx, state, works, authorOLIDs); err != nil {
			return err
		}
		im.saveState(ctx, state)

		if scanned%1_000_000 < int64(im.opts.BatchSize) {
			im.logger.Info("dump_works_progress",
				slog.Int64("scanned", scanned),
				slog.Int64("imported", state.Counters.WorksCount),
			)
		}

		if done {
			return nil
		}
	}
}

func (im *Importer) persistWorks(ctx context.Context, state *State, works []*source.DumpWork, authorOLIDs map[string]struct{}) error {
	if len(works) == 0 {
		return nil
	}

	olIDs := make([]string, 0, len(authorOLIDs))
	for olID := range authorOLIDs {
		olIDs = append(olIDs, olID)
	}
	authorIDs, err := im.store.AuthorIDsByOpenLibraryIDs(ctx, olIDs)
	if err != nil {
		return err
	}

	touched := make(map[int64]struct{})
	for _, work := range works {
		bookID, err := im.store.InsertBook(ctx, merge.Book(nil, &work.Raw))
		if err != nil {
			im.logger.Warn("dump_work_insert_failed",
				slog.String("title", work.Raw.Title), slog.Any("error", err))
			continue
		}

		ordered := make([]int64, 0, len(work.AuthorOLID))
		for _, olID := range work.AuthorOLID {
			if authorID, ok := authorIDs[olID]; ok {
				ordered = append(ordered, authorID)
				touched[authorID] = struct{}{}
			}
		}
		if len(ordered) > 0 {
			if err := im.store.LinkBookAuthors(ctx, bookID, ordered); err != nil {
				return err
			}
		}

		if err := im.linkWorkGenres(ctx, bookID, work.Raw.Genres); err != nil {
			return err
		}
		state.Counters.WorksCount++
	}

	if len(touched) > 0 {
		ids := make([]int64, 0, len(touched))
		for id := range touched {
			ids = append(ids, id)
		}
		if err := im.store.RecomputeAuthorBookCounts(ctx, ids); err != nil {
			return err
		}
	}
	return nil
}

func (im *Importer) linkWorkGenres(ctx context.Context, bookID int64, genres []record.Genre) error {
	if len(genres) == 0 {
		return nil
	}

	writes := make([]catalog.Genre, 0, len(genres))
	for _, genre := range genres {
		writes = append(writes, catalog.Genre{Name: genre.Name, Slug: genre.Slug})
	}
	genreIDs, err := im.store.UpsertGenres(ctx, writes)
	if err != nil {
		return err
	}

	ids := make([]int64, 0, len(genreIDs))
	for _, id := range genreIDs {
		ids = append(ids, id)
	}
	return im.store.LinkBookGenres(ctx, bookID, ids)
}
