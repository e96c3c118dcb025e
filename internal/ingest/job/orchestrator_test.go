package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minsik-app/ingestion/internal/ingest/ingesterr"
	"github.com/minsik-app/ingestion/internal/ingest/record"
	"github.com/minsik-app/ingestion/internal/ingest/source"
	"github.com/minsik-app/ingestion/internal/platform/apperr"
)

// memStore is an in-memory [Store] for orchestrator tests.
type memStore struct {
	mu      sync.Mutex
	jobs    map[string]Job
	cancels map[string]bool
	running map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		jobs:    make(map[string]Job),
		cancels: make(map[string]bool),
		running: make(map[string]string),
	}
}

func (s *memStore) Create(_ context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = *j
	return nil
}

func (s *memStore) Update(_ context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = *j
	return nil
}

func (s *memStore) Get(_ context.Context, jobID string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	copied := j
	return &copied, nil
}

func (s *memStore) RequestCancel(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return ErrJobNotFound
	}
	s.cancels[jobID] = true
	return nil
}

func (s *memStore) IsCancelRequested(_ context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancels[jobID], nil
}

func (s *memStore) AcquireRunning(_ context.Context, kind Kind, src, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(kind) + ":" + src
	if _, held := s.running[key]; held {
		return false, nil
	}
	s.running[key] = jobID
	return true, nil
}

func (s *memStore) ReleaseRunning(_ context.Context, kind Kind, src, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(kind) + ":" + src
	if s.running[key] == jobID {
		delete(s.running, key)
	}
	return nil
}

// fakeSource serves synthetic records until told it is done.
type fakeSource struct {
	name string
	err  error
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) NextBatch(_ context.Context, cursor int64, batchSize int, language string) ([]record.Raw, int64, bool, error) {
	if f.err != nil {
		return nil, cursor, false, f.err
	}
	records := make([]record.Raw, batchSize)
	for i := range records {
		records[i] = record.Raw{
			Title:    fmt.Sprintf("Book %d", cursor+int64(i)),
			Language: language,
			Source:   f.name,
		}
	}
	return records, cursor + int64(batchSize), false, nil
}

func (f *fakeSource) Search(_ context.Context, _, _ string, _ int) ([]record.Raw, error) {
	return nil, nil
}

func (f *fakeSource) KnownTotal(_ context.Context, _ string) (int64, error) {
	return 1000, nil
}

// countingProcessor succeeds for every record; optionally calls a hook
// after the first batch.
type countingProcessor struct {
	mu         sync.Mutex
	batches    int
	afterFirst func()
}

func (p *countingProcessor) ProcessBatch(_ context.Context, records []record.Raw) (int64, int64, error) {
	p.mu.Lock()
	p.batches++
	first := p.batches == 1
	p.mu.Unlock()

	if first && p.afterFirst != nil {
		p.afterFirst()
	}
	return int64(len(records)), 0, nil
}

func testOrchestrator(store Store, adapters map[string]source.Incremental, processor Processor) *Orchestrator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewOrchestrator(context.Background(), store, adapters, processor, Options{
		BatchSize:    2,
		BatchTimeout: time.Second,
	}, logger)
}

func TestOrchestrator_RunsToCompletion(t *testing.T) {
	store := newMemStore()
	adapters := map[string]source.Incremental{
		record.SourceOpenLibrary: &fakeSource{name: record.SourceOpenLibrary},
	}
	orchestrator := testOrchestrator(store, adapters, &countingProcessor{})

	j, err := orchestrator.Trigger(context.Background(), 5, record.SourceOpenLibrary, "en")
	require.NoError(t, err)
	orchestrator.Wait()

	final, err := orchestrator.Status(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, int64(5), final.Processed)
	assert.Equal(t, int64(5), final.Successful)
	assert.Equal(t, int64(0), final.Failed)
	assert.NotNil(t, final.CompletedAt)

	// The running slot is free again.
	acquired, err := store.AcquireRunning(context.Background(), KindIncremental, record.SourceOpenLibrary, "other")
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestOrchestrator_RejectsDuplicateTrigger(t *testing.T) {
	store := newMemStore()
	release := make(chan struct{})
	processor := &countingProcessor{afterFirst: func() { <-release }}
	adapters := map[string]source.Incremental{
		record.SourceOpenLibrary: &fakeSource{name: record.SourceOpenLibrary},
	}
	orchestrator := testOrchestrator(store, adapters, processor)

	first, err := orchestrator.Trigger(context.Background(), 100, record.SourceOpenLibrary, "en")
	require.NoError(t, err)

	_, err = orchestrator.Trigger(context.Background(), 100, record.SourceOpenLibrary, "en")
	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, http.StatusConflict, appError.HTTPStatus)

	require.NoError(t, store.RequestCancel(context.Background(), first.ID))
	close(release)
	orchestrator.Wait()
}

func TestOrchestrator_CancellationKeepsCounters(t *testing.T) {
	store := newMemStore()
	idCh := make(chan string, 1)

	processor := &countingProcessor{afterFirst: func() {
		_ = store.RequestCancel(context.Background(), <-idCh)
	}}
	adapters := map[string]source.Incremental{
		record.SourceOpenLibrary: &fakeSource{name: record.SourceOpenLibrary},
	}
	orchestrator := testOrchestrator(store, adapters, processor)

	j, err := orchestrator.Trigger(context.Background(), 100, record.SourceOpenLibrary, "en")
	require.NoError(t, err)
	idCh <- j.ID
	orchestrator.Wait()

	final, err := orchestrator.Status(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, final.Status)
	// The first batch's progress is retained, later batches never ran.
	assert.Equal(t, int64(2), final.Processed)
	assert.LessOrEqual(t, final.Processed, final.Total)
}

func TestOrchestrator_SourceFailureFailsJob(t *testing.T) {
	store := newMemStore()
	adapters := map[string]source.Incremental{
		record.SourceOpenLibrary: &fakeSource{
			name: record.SourceOpenLibrary,
			err:  ingesterr.SourceUnavailable("source.get", errors.New("upstream down")),
		},
	}
	orchestrator := testOrchestrator(store, adapters, &countingProcessor{})

	j, err := orchestrator.Trigger(context.Background(), 10, record.SourceOpenLibrary, "en")
	require.NoError(t, err)
	orchestrator.Wait()

	final, err := orchestrator.Status(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Contains(t, final.Error, "upstream down")
}

func TestOrchestrator_ValidatesTrigger(t *testing.T) {
	orchestrator := testOrchestrator(newMemStore(), nil, &countingProcessor{})

	_, err := orchestrator.Trigger(context.Background(), 0, record.SourceOpenLibrary, "en")
	assert.Error(t, err)

	_, err = orchestrator.Trigger(context.Background(), 10, "goodreads", "en")
	assert.Error(t, err)

	_, err = orchestrator.Trigger(context.Background(), 10, record.SourceOpenLibrary, "e")
	assert.Error(t, err)
}

func TestOrchestrator_CancelTerminalJobRejected(t *testing.T) {
	store := newMemStore()
	adapters := map[string]source.Incremental{
		record.SourceOpenLibrary: &fakeSource{name: record.SourceOpenLibrary},
	}
	orchestrator := testOrchestrator(store, adapters, &countingProcessor{})

	j, err := orchestrator.Trigger(context.Background(), 2, record.SourceOpenLibrary, "en")
	require.NoError(t, err)
	orchestrator.Wait()

	err = orchestrator.Cancel(context.Background(), j.ID)
	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, http.StatusConflict, appError.HTTPStatus)
}

func TestOrchestrator_StatusUnknownJob(t *testing.T) {
	orchestrator := testOrchestrator(newMemStore(), nil, &countingProcessor{})

	_, err := orchestrator.Status(context.Background(), "missing")
	require.Error(t, err)
	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, http.StatusNotFound, appError.HTTPStatus)
}
