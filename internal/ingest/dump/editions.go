package dump

import (
	"context"
	"log/slog"

	"github.com/minsik-app/ingestion/internal/catalog"
	"github.com/minsik-app/ingestion/internal/ingest/source"
)

const (
	// maxOLWorkID bounds the known-works bitmap. OL work IDs above it are
	// skipped; the dump has none anywhere near this range today.
	maxOLWorkID = 60_000_000

	// editionFlushSize caps the best-of buffer before flushing to the store.
	editionFlushSize = 50_000

	// maxISBNPerBook caps the ISBN list written onto a cloned language row.
	maxISBNPerBook = 20

	// maxSeriesPosition guards against junk positions in edition data.
	maxSeriesPosition = 999.99
)

// runEditions is phase 4: pick the most complete edition per
// (work, language), enrich the matching catalog row, and clone a new
// language row when a translation has no row yet.
func (im *Importer) runEditions(ctx context.Context, state *State) error {
	known, err := im.knownWorksBitmap(ctx)
	if err != nil {
		return err
	}

	path, cleanup, err := im.dumpFile(ctx, "ol_dump_editions_latest.txt.gz")
	if err != nil {
		return err
	}
	defer cleanup()

	reader, err := source.OpenDump(path, "/type/edition")
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	best := make(map[string]*source.DumpEdition)
	var scanned int64
	for {
		batch, done, err := reader.NextBatch(ctx, im.opts.BatchSize)
		if err != nil {
			return err
		}
		scanned += int64(len(batch))

		for _, payload := range batch {
			edition, ok := source.ParseDumpEdition(payload)
			if !ok || !known.has(edition.WorkOLID) {
				continue
			}

			key := edition.WorkOLID + ":" + edition.Language
			current, seen := best[key]
			switch {
			case !seen:
				best[key] = edition
			case edition.Score > current.Score:
				edition.ISBN = unionISBN(edition.ISBN, current.ISBN)
				best[key] = edition
			default:
				current.ISBN = unionISBN(current.ISBN, edition.ISBN)
			}
		}

		if len(best) >= editionFlushSize {
			if err := im.flushEditions(ctx, state, best); err != nil {
				return err
			}
			best = make(map[string]*source.DumpEdition)
		}

		if scanned%1_000_000 < int64(im.opts.BatchSize) {
			im.logger.Info("dump_editions_progress",
				slog.Int64("scanned", scanned),
				slog.Int64("enriched", state.Counters.EditionsEnriched),
				slog.Int64("new_lang_rows", state.Counters.EditionsNewLang),
			)
		}

		if done {
			return im.flushEditions(ctx, state, best)
		}
	}
}

// flushEditions applies the buffered best editions: matching language rows
// are enriched in place, translations without a row are cloned from the
// English row. Per-edition failures are logged and skipped.
func (im *Importer) flushEditions(ctx context.Context, state *State, best map[string]*source.DumpEdition) error {
	if len(best) == 0 {
		return nil
	}

	workOLIDs := make(map[string]struct{}, len(best))
	for _, edition := range best {
		workOLIDs[edition.WorkOLID] = struct{}{}
	}

	const chunkSize = 1000
	chunk := make([]string, 0, chunkSize)
	refs := make(map[string][]catalog.BookRef, len(workOLIDs))
	for olID := range workOLIDs {
		chunk = append(chunk, olID)
		if len(chunk) == chunkSize {
			if err := im.lookupWorkRefs(ctx, chunk, refs); err != nil {
				return err
			}
			chunk = chunk[:0]
		}
	}
	if len(chunk) > 0 {
		if err := im.lookupWorkRefs(ctx, chunk, refs); err != nil {
			return err
		}
	}

	for _, edition := range best {
		rows := refs[edition.WorkOLID]
		if len(rows) == 0 {
			continue
		}

		var match, english *catalog.BookRef
		for i := range rows {
			if rows[i].Language == edition.Language {
				match = &rows[i]
			}
			if rows[i].Language == "en" {
				english = &rows[i]
			}
		}

		switch {
		case match != nil:
			if err := im.enrichRow(ctx, match.ID, edition); err != nil {
				im.logger.Warn("dump_edition_enrich_failed",
					slog.String("work", edition.WorkOLID), slog.Any("error", err))
				continue
			}
			state.Counters.EditionsEnriched++
		case english != nil:
			if err := im.cloneLanguageRow(ctx, english.ID, edition); err != nil {
				im.logger.Warn("dump_edition_clone_failed",
					slog.String("work", edition.WorkOLID),
					slog.String("language", edition.Language), slog.Any("error", err))
				continue
			}
			state.Counters.EditionsNewLang++
		}
	}

	im.saveState(ctx, state)
	return nil
}

func (im *Importer) lookupWorkRefs(ctx context.Context, olIDs []string, into map[string][]catalog.BookRef) error {
	found, err := im.store.BooksByOpenLibraryIDs(ctx, olIDs)
	if err != nil {
		return err
	}
	for olID, rows := range found {
		into[olID] = rows
	}
	return nil
}

func (im *Importer) enrichRow(ctx context.Context, bookID int64, edition *source.DumpEdition) error {
	return im.store.EnrichBookEdition(ctx, bookID, &catalog.EditionEnrichment{
		ISBN:        edition.ISBN,
		Pages:       edition.Pages,
		Publisher:   edition.Publisher,
		Format:      edition.Format,
		ExternalIDs: edition.ExternalIDs,
		CoverURL:    edition.CoverURL,
		Description: edition.Description,
	})
}

// cloneLanguageRow inserts a sibling row for a translated edition, copying
// the work-level fields of the English row and the edition-level fields of
// the translation.
func (im *Importer) cloneLanguageRow(ctx context.Context, englishID int64, edition *source.DumpEdition) error {
	base, err := im.store.BookByID(ctx, englishID)
	if err != nil {
		return err
	}

	olID := edition.WorkOLID
	write := &catalog.BookWrite{
		Title:                   base.Title,
		Language:                edition.Language,
		Slug:                    base.Slug,
		Description:             base.Description,
		OriginalPublicationYear: base.OriginalPublicationYear,
		NumberOfPages:           edition.Pages,
		PrimaryCoverURL:         base.PrimaryCoverURL,
		ISBN:                    edition.ISBN,
		Publisher:               edition.Publisher,
		ExternalIDs:             edition.ExternalIDs,
		OpenLibraryID:           &olID,
		SeriesID:                base.SeriesID,
		SeriesPosition:          base.SeriesPosition,
	}
	if write.Description == nil {
		write.Description = edition.Description
	}
	if write.PrimaryCoverURL == nil {
		write.PrimaryCoverURL = edition.CoverURL
	}
	if len(write.ISBN) > maxISBNPerBook {
		write.ISBN = write.ISBN[:maxISBNPerBook]
	}
	if edition.Format != nil {
		write.Formats = []string{*edition.Format}
	}
	if write.SeriesPosition != nil && *write.SeriesPosition > maxSeriesPosition {
		write.SeriesPosition = nil
	}

	_, err = im.store.CloneBookLanguage(ctx, englishID, write)
	return err
}

// # Known-works bitmap

// workBitmap is a presence filter over OL numeric work IDs. Holding one bit
// per possible ID keeps the editions scan memory-bound at ~7.5 MB instead of
// a multi-gigabyte string set.
type workBitmap struct {
	bits []byte
}

func (im *Importer) knownWorksBitmap(ctx context.Context) (*workBitmap, error) {
	bitmap := &workBitmap{bits: make([]byte, maxOLWorkID/8+1)}
	var count int64
	err := im.store.KnownOpenLibraryWorks(ctx, func(olID string, _ int64, _ string) error {
		if bitmap.set(olID) {
			count++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	im.logger.Info("dump_editions_known_works", slog.Int64("count", count))
	return bitmap, nil
}

func (b *workBitmap) set(olID string) bool {
	num := source.OLIDToInt(olID)
	if num < 0 || num >= maxOLWorkID {
		return false
	}
	b.bits[num/8] |= 1 << (num % 8)
	return true
}

func (b *workBitmap) has(olID string) bool {
	num := source.OLIDToInt(olID)
	if num < 0 || num >= maxOLWorkID {
		return false
	}
	return b.bits[num/8]&(1<<(num%8)) != 0
}

func unionISBN(primary, extra []string) []string {
	seen := make(map[string]struct{}, len(primary))
	for _, isbn := range primary {
		seen[isbn] = struct{}{}
	}
	for _, isbn := range extra {
		if _, dup := seen[isbn]; dup {
			continue
		}
		seen[isbn] = struct{}{}
		primary = append(primary, isbn)
	}
	return primary
}
