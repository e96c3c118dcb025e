package dump

import (
	"context"
	"log/slog"

	"github.com/minsik-app/ingestion/internal/catalog"
	"github.com/minsik-app/ingestion/internal/ingest/merge"
	"github.com/minsik-app/ingestion/internal/ingest/source"
)

// runAuthors is phase 1: upsert every author in the authors dump with
// keep-populated semantics.
func (im *Importer) runAuthors(ctx context.Context, state *State) error {
	path, cleanup, err := im.dumpFile(ctx, "ol_dump_authors_latest.txt.gz")
	if err != nil {
		return err
	}
	defer cleanup()

	reader, err := source.OpenDump(path, "/type/author")
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

		// Within one batch the last occurrence of a slug wins; cross-batch
		// duplicates are handled by the upsert itself.
		writes := make([]catalog.AuthorWrite, 0, len(batch))
		index := make(map[string]int, len(batch))
		for _, payload := range batch {
			author, ok := source.ParseDumpAuthor(payload)
			if !ok {
				continue
			}
			write := merge.Author(author)
			if at, dup := index[write.Slug]; dup {
				writes[at] = write
				continue
			}
			index[write.Slug] = len(writes)
			writes = append(writes, write)
		}
		scanned += int64(len(batch))

		if len(writes) > 0 {
			if _, err := im.store.UpsertAuthors(ctx, writes); err != nil {
				return err
			}
			state.Counters.AuthorsCount += int64(len(writes))
			im.saveState(ctx, state)
		}

		if scanned%1_000_000 < int64(im.opts.BatchSize) {
			im.logger.Info("dump_authors_progress",
				slog.Int64("scanned", scanned),
				slog.Int64("upserted", state.Counters.AuthorsCount),
			)
		}

		if done {
			return nil
		}
	}
}
