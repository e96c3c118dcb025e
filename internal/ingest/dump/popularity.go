package dump

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
)

// Phases 5 and 6 aggregate the ratings and reading-log dumps into per-work
// popularity signals. These dumps are plain TSV without the type/key/json
// columns of the entity dumps, so they get their own scanner.

type ratingAggregate struct {
	Count int
	Total int
}

type shelfAggregate struct {
	WantToRead       int
	CurrentlyReading int
	AlreadyRead      int
}

// runRatings is phase 5.
func (im *Importer) runRatings(ctx context.Context, state *State) error {
	path, cleanup, err := im.dumpFile(ctx, "ol_dump_ratings_latest.txt.gz")
	if err != nil {
		return err
	}
	defer cleanup()

	ratings, err := withGzipReader(path, aggregateRatings)
	if err != nil {
		return err
	}
	im.logger.Info("dump_ratings_aggregated", slog.Int("works", len(ratings)))

	var sinceSave int64
	for workOLID, agg := range ratings {
		if err := ctx.Err(); err != nil {
			return err
		}
		avg := math.Round(float64(agg.Total)/float64(agg.Count)*100) / 100
		updated, err := im.store.UpdateOLRatings(ctx, workOLID, agg.Count, avg)
		if err != nil {
			return err
		}
		state.Counters.RatingsCount += updated
		if sinceSave += updated; sinceSave >= 100_000 {
			sinceSave = 0
			im.saveState(ctx, state)
		}
	}
	im.saveState(ctx, state)
	return nil
}

// runReadingLog is phase 6.
func (im *Importer) runReadingLog(ctx context.Context, state *State) error {
	path, cleanup, err := im.dumpFile(ctx, "ol_dump_reading-log_latest.txt.gz")
	if err != nil {
		return err
	}
	defer cleanup()

	shelves, err := withGzipReader(path, aggregateShelves)
	if err != nil {
		return err
	}
	im.logger.Info("dump_reading_log_aggregated", slog.Int("works", len(shelves)))

	var sinceSave int64
	for workOLID, agg := range shelves {
		if err := ctx.Err(); err != nil {
			return err
		}
		updated, err := im.store.UpdateOLReadingLog(ctx, workOLID,
			agg.WantToRead, agg.CurrentlyReading, agg.AlreadyRead)
		if err != nil {
			return err
		}
		state.Counters.ReadingLogCount += updated
		if sinceSave += updated; sinceSave >= 100_000 {
			sinceSave = 0
			im.saveState(ctx, state)
		}
	}
	im.saveState(ctx, state)
	return nil
}

// aggregateRatings folds rating lines (work key, edition key, rating, date)
// into per-work count and sum. Malformed lines are skipped.
func aggregateRatings(r io.Reader) (map[string]ratingAggregate, error) {
	ratings := make(map[string]ratingAggregate)
	err := scanTSV(r, func(parts []string) {
		workOLID := workIDFromKey(parts[0])
		if workOLID == "" {
			return
		}
		rating, err := strconv.Atoi(parts[2])
		if err != nil || rating < 1 || rating > 5 {
			return
		}
		agg := ratings[workOLID]
		agg.Count++
		agg.Total += rating
		ratings[workOLID] = agg
	})
	return ratings, err
}

// aggregateShelves folds reading-log lines (work key, edition key, shelf,
// date) into per-work shelf counts. Unknown shelf names are skipped.
func aggregateShelves(r io.Reader) (map[string]shelfAggregate, error) {
	shelves := make(map[string]shelfAggregate)
	err := scanTSV(r, func(parts []string) {
		workOLID := workIDFromKey(parts[0])
		if workOLID == "" {
			return
		}
		agg := shelves[workOLID]
		switch parts[2] {
		case "Want to Read":
			agg.WantToRead++
		case "Currently Reading":
			agg.CurrentlyReading++
		case "Already Read":
			agg.AlreadyRead++
		default:
			return
		}
		shelves[workOLID] = agg
	})
	return shelves, err
}

func scanTSV(r io.Reader, fn func(parts []string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		parts := strings.Split(scanner.Text(), "\t")
		if len(parts) < 3 {
			continue
		}
		fn(parts)
	}
	return scanner.Err()
}

func workIDFromKey(key string) string {
	return strings.TrimPrefix(strings.TrimSpace(key), "/works/")
}

func withGzipReader[T any](path string, fn func(io.Reader) (T, error)) (T, error) {
	var zero T

	file, err := os.Open(path)
	if err != nil {
		return zero, fmt.Errorf("dump: open %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return zero, fmt.Errorf("dump: gzip %s: %w", path, err)
	}
	defer func() { _ = gz.Close() }()

	return fn(gz)
}
