// Package dump implements the bulk Open Library import: six sequential
// phases (authors, Wikidata enrichment, works, editions, ratings, reading
// log) over the monthly dump files, with cumulative counters and phase
// completion state persisted to Redis so an interrupted import resumes
// where it stopped.
package dump

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/minsik-app/ingestion/internal/catalog"
	"github.com/minsik-app/ingestion/internal/ingest/source"
	"github.com/minsik-app/ingestion/internal/platform/constants"
)

const phaseCount = 6

// Counters are the cumulative per-category results of one import run.
type Counters struct {
	AuthorsCount     int64 `json:"authorsCount"`
	WikidataCount    int64 `json:"wikidataCount"`
	WorksCount       int64 `json:"worksCount"`
	EditionsEnriched int64 `json:"editionsEnriched"`
	EditionsNewLang  int64 `json:"editionsNewLangRows"`
	RatingsCount     int64 `json:"ratingsCount"`
	ReadingLogCount  int64 `json:"readingLogCount"`
}

// State is the persisted import progress.
type State struct {
	Running         bool     `json:"running"`
	Status          string   `json:"status"`
	CompletedPhases []int    `json:"completedPhases"`
	Counters        Counters `json:"counters"`
	StartedAt       string   `json:"startedAt,omitempty"`
}

// Options tunes the importer.
type Options struct {
	BaseURL           string
	TmpDir            string
	BatchSize         int
	WikidataEnabled   bool
	EditionsEnabled   bool
	RatingsEnabled    bool
	ReadingLogEnabled bool
}

// Importer runs the bulk import. One import may run at a time process-wide;
// the running flag lives in Redis so every process sees it.
type Importer struct {
	store  catalog.Store
	redis  *redis.Client
	client *source.Client
	opts   Options
	logger *slog.Logger
}

// NewImporter wires the importer. client is used for the Wikidata SPARQL
// calls of phase 2.
func NewImporter(store catalog.Store, redisClient *redis.Client, client *source.Client, opts Options, logger *slog.Logger) *Importer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	return &Importer{
		store:  store,
		redis:  redisClient,
		client: client,
		opts:   opts,
		logger: logger,
	}
}

// Start begins an import in the background. Returns false without starting
// when an import is already running.
func (im *Importer) Start(ctx context.Context) (bool, error) {
	acquired, err := im.redis.SetNX(ctx, constants.RedisKeyDumpRunning, "1", constants.RunningLockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("dump: acquire running flag: %w", err)
	}
	if !acquired {
		return false, nil
	}

	go im.Run(context.WithoutCancel(ctx))
	return true, nil
}

// Running reports whether an import currently holds the running flag.
func (im *Importer) Running(ctx context.Context) (bool, error) {
	count, err := im.redis.Exists(ctx, constants.RedisKeyDumpRunning).Result()
	if err != nil {
		return false, fmt.Errorf("dump: check running flag: %w", err)
	}
	return count > 0, nil
}

// Status returns the persisted state with live counters.
func (im *Importer) Status(ctx context.Context) (*State, error) {
	state, err := im.loadState(ctx)
	if err != nil {
		return nil, err
	}
	running, err := im.Running(ctx)
	if err != nil {
		return nil, err
	}
	state.Running = running
	return state, nil
}

// Run executes the remaining phases of the import. Completed phases from a
// previous interrupted run are skipped.
func (im *Importer) Run(ctx context.Context) {
	defer func() {
		if err := im.redis.Del(context.WithoutCancel(ctx), constants.RedisKeyDumpRunning).Err(); err != nil {
			im.logger.Warn("dump_running_flag_release_failed", slog.Any("error", err))
		}
	}()

	state, err := im.loadState(ctx)
	if err != nil {
		im.logger.Error("dump_state_load_failed", slog.Any("error", err))
		return
	}
	if len(state.CompletedPhases) == 0 {
		state.StartedAt = time.Now().UTC().Format(time.RFC3339)
		im.logger.Info("dump_import_started")
	} else {
		im.logger.Info("dump_import_resumed", slog.Any("completed_phases", state.CompletedPhases))
	}

	phases := []struct {
		number  int
		name    string
		enabled bool
		run     func(context.Context, *State) error
	}{
		{1, "authors", true, im.runAuthors},
		{2, "wikidata", im.opts.WikidataEnabled, im.runWikidata},
		{3, "works", true, im.runWorks},
		{4, "editions", im.opts.EditionsEnabled, im.runEditions},
		{5, "ratings", im.opts.RatingsEnabled, im.runRatings},
		{6, "reading_log", im.opts.ReadingLogEnabled, im.runReadingLog},
	}

	for _, phase := range phases {
		if phaseDone(state, phase.number) {
			im.logger.Info("dump_phase_skipped", slog.Int("phase", phase.number), slog.String("reason", "already completed"))
			continue
		}
		if !phase.enabled {
			im.logger.Info("dump_phase_skipped", slog.Int("phase", phase.number), slog.String("reason", "disabled"))
			im.finishPhase(ctx, state, phase.number, "")
			continue
		}

		im.setStatus(ctx, state, fmt.Sprintf("Phase %d/%d: %s", phase.number, phaseCount, phase.name))
		if err := phase.run(ctx, state); err != nil {
			im.setStatus(ctx, state, fmt.Sprintf("Failed in phase %d (%s): %v", phase.number, phase.name, err))
			im.logger.Error("dump_phase_failed", slog.Int("phase", phase.number), slog.Any("error", err))
			return
		}
		im.finishPhase(ctx, state, phase.number, phase.name)
	}

	c := state.Counters
	summary := fmt.Sprintf(
		"Complete: %d authors, %d wikidata enriched, %d works, %d editions enriched, %d new language rows, %d ratings applied, %d reading log applied",
		c.AuthorsCount, c.WikidataCount, c.WorksCount,
		c.EditionsEnriched, c.EditionsNewLang, c.RatingsCount, c.ReadingLogCount,
	)
	im.setStatus(ctx, state, summary)
	im.logger.Info("dump_import_finished", slog.String("summary", summary))
}

// dumpFile downloads one dump file into the tmp dir, returning its path and
// a cleanup func.
func (im *Importer) dumpFile(ctx context.Context, name string) (string, func(), error) {
	if err := os.MkdirAll(im.opts.TmpDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("dump: tmp dir: %w", err)
	}

	path := filepath.Join(im.opts.TmpDir, name)
	url := strings.TrimRight(im.opts.BaseURL, "/") + "/" + name
	if err := source.DownloadDump(ctx, im.logger, url, path); err != nil {
		_ = os.Remove(path)
		return "", nil, err
	}
	return path, func() { _ = os.Remove(path) }, nil
}

// # State persistence

func phaseDone(state *State, phase int) bool {
	for _, done := range state.CompletedPhases {
		if done == phase {
			return true
		}
	}
	return false
}

func (im *Importer) finishPhase(ctx context.Context, state *State, phase int, name string) {
	state.CompletedPhases = append(state.CompletedPhases, phase)
	im.saveState(ctx, state)
	if name != "" {
		im.logger.Info("dump_phase_complete", slog.Int("phase", phase), slog.String("name", name))
	}
}

func (im *Importer) setStatus(ctx context.Context, state *State, status string) {
	state.Status = status
	im.saveState(ctx, state)
}

func (im *Importer) saveState(ctx context.Context, state *State) {
	phases := make([]string, 0, len(state.CompletedPhases))
	for _, phase := range state.CompletedPhases {
		phases = append(phases, strconv.Itoa(phase))
	}

	fields := map[string]any{
		"status":            state.Status,
		"completed_phases":  strings.Join(phases, ","),
		"started_at":        state.StartedAt,
		"authors_count":     state.Counters.AuthorsCount,
		"wikidata_count":    state.Counters.WikidataCount,
		"works_count":       state.Counters.WorksCount,
		"editions_enriched": state.Counters.EditionsEnriched,
		"editions_new_lang": state.Counters.EditionsNewLang,
		"ratings_count":     state.Counters.RatingsCount,
		"reading_log_count": state.Counters.ReadingLogCount,
	}

	pipe := im.redis.TxPipeline()
	pipe.HSet(ctx, constants.RedisKeyDumpState, fields)
	pipe.Expire(ctx, constants.RedisKeyDumpState, constants.JobStateTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		im.logger.Warn("dump_state_persist_failed", slog.Any("error", err))
	}
}

func (im *Importer) loadState(ctx context.Context) (*State, error) {
	fields, err := im.redis.HGetAll(ctx, constants.RedisKeyDumpState).Result()
	if err != nil {
		return nil, fmt.Errorf("dump: load state: %w", err)
	}

	state := &State{
		Status:    fields["status"],
		StartedAt: fields["started_at"],
		Counters: Counters{
			AuthorsCount:     parseInt64(fields["authors_count"]),
			WikidataCount:    parseInt64(fields["wikidata_count"]),
			WorksCount:       parseInt64(fields["works_count"]),
			EditionsEnriched: parseInt64(fields["editions_enriched"]),
			EditionsNewLang:  parseInt64(fields["editions_new_lang"]),
			RatingsCount:     parseInt64(fields["ratings_count"]),
			ReadingLogCount:  parseInt64(fields["reading_log_count"]),
		},
	}

	if raw := fields["completed_phases"]; raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if phase, err := strconv.Atoi(part); err == nil {
				state.CompletedPhases = append(state.CompletedPhases, phase)
			}
		}
	}
	return state, nil
}

func parseInt64(s string) int64 {
	value, _ := strconv.ParseInt(s, 10, 64)
	return value
}
