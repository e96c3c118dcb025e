package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minsik-app/ingestion/internal/ingest/coverage"
	"github.com/minsik-app/ingestion/internal/ingest/dump"
	"github.com/minsik-app/ingestion/internal/ingest/job"
	"github.com/minsik-app/ingestion/internal/ingest/record"
	"github.com/minsik-app/ingestion/internal/platform/apperr"
)

type fakeJobs struct {
	triggered  *job.Job
	triggerErr error
	jobs       map[string]*job.Job
	cancelled  []string
}

func (f *fakeJobs) Trigger(_ context.Context, totalBooks int64, source, language string) (*job.Job, error) {
	if f.triggerErr != nil {
		return nil, f.triggerErr
	}
	f.triggered = &job.Job{
		ID: "0198c5f2-0000-7000-8000-000000000001", Kind: job.KindIncremental,
		Source: source, Language: language, Status: job.StatusPending,
		Total: totalBooks, StartedAt: time.Now().UTC(),
	}
	return f.triggered, nil
}

func (f *fakeJobs) Status(_ context.Context, jobID string) (*job.Job, error) {
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, apperr.NotFound("ingestion job")
	}
	return j, nil
}

func (f *fakeJobs) Cancel(_ context.Context, jobID string) error {
	if _, ok := f.jobs[jobID]; !ok {
		return apperr.NotFound("ingestion job")
	}
	f.cancelled = append(f.cancelled, jobID)
	return nil
}

type fakeDumps struct {
	running bool
	state   dump.State
}

func (f *fakeDumps) Start(_ context.Context) (bool, error) {
	if f.running {
		return false, nil
	}
	f.running = true
	return true, nil
}

func (f *fakeDumps) Status(_ context.Context) (*dump.State, error) {
	state := f.state
	state.Running = f.running
	return &state, nil
}

type fakeCoverage struct {
	report coverage.Report
}

func (f *fakeCoverage) Estimate(_ context.Context, language string) (*coverage.Report, error) {
	report := f.report
	return &report, nil
}

type fakeSearcher struct {
	results []record.Raw
	title   string
	author  string
	limit   int
}

func (f *fakeSearcher) Search(_ context.Context, title, author string, limit int) ([]record.Raw, error) {
	f.title, f.author, f.limit = title, author, limit
	return f.results, nil
}

func newTestHandler(jobs *fakeJobs, dumps *fakeDumps, cov *fakeCoverage, searcher *fakeSearcher) *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(jobs, dumps, cov, map[string]Searcher{
		record.SourceOpenLibrary: searcher,
	}, logger)
}

func doRequest(t *testing.T, handler *Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	request := httptest.NewRequest(method, path, reader)
	recorder := httptest.NewRecorder()
	handler.Routes().ServeHTTP(recorder, request)
	return recorder
}

func decodeData(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	return envelope.Data
}

func TestTrigger_QueuesJob(t *testing.T) {
	jobs := &fakeJobs{}
	handler := newTestHandler(jobs, &fakeDumps{}, &fakeCoverage{}, &fakeSearcher{})

	recorder := doRequest(t, handler, http.MethodPost, "/trigger",
		map[string]any{"totalBooks": 500, "source": "open_library", "language": "en"})

	require.Equal(t, http.StatusAccepted, recorder.Code)
	data := decodeData(t, recorder)
	assert.Equal(t, "pending", data["status"])
	assert.EqualValues(t, 500, data["totalBooks"])
	assert.NotEmpty(t, data["jobId"])
}

func TestTrigger_DefaultsSourceAndLanguage(t *testing.T) {
	jobs := &fakeJobs{}
	handler := newTestHandler(jobs, &fakeDumps{}, &fakeCoverage{}, &fakeSearcher{})

	recorder := doRequest(t, handler, http.MethodPost, "/trigger",
		map[string]any{"totalBooks": 10})

	require.Equal(t, http.StatusAccepted, recorder.Code)
	assert.Equal(t, record.SourceBoth, jobs.triggered.Source)
	assert.Equal(t, "en", jobs.triggered.Language)
}

func TestTrigger_ValidationErrorPassesThrough(t *testing.T) {
	jobs := &fakeJobs{triggerErr: apperr.ValidationError("total_books must be positive")}
	handler := newTestHandler(jobs, &fakeDumps{}, &fakeCoverage{}, &fakeSearcher{})

	recorder := doRequest(t, handler, http.MethodPost, "/trigger",
		map[string]any{"totalBooks": -1})

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestJobStatus_ReturnsCounters(t *testing.T) {
	completed := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	jobs := &fakeJobs{jobs: map[string]*job.Job{
		"abc": {
			ID: "abc", Status: job.StatusCompleted, Source: "open_library",
			Language: "en", Total: 100, Processed: 100, Successful: 97, Failed: 3,
			StartedAt: completed.Add(-time.Hour), CompletedAt: &completed,
		},
	}}
	handler := newTestHandler(jobs, &fakeDumps{}, &fakeCoverage{}, &fakeSearcher{})

	recorder := doRequest(t, handler, http.MethodGet, "/jobs/abc", nil)

	require.Equal(t, http.StatusOK, recorder.Code)
	data := decodeData(t, recorder)
	assert.Equal(t, "completed", data["status"])
	assert.EqualValues(t, 97, data["successful"])
	assert.EqualValues(t, 3, data["failed"])
	assert.Equal(t, "2026-08-25T12:00:00Z", data["completedAt"])
}

func TestJobStatus_UnknownJobIs404(t *testing.T) {
	handler := newTestHandler(&fakeJobs{jobs: map[string]*job.Job{}}, &fakeDumps{}, &fakeCoverage{}, &fakeSearcher{})

	recorder := doRequest(t, handler, http.MethodGet, "/jobs/nope", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestCancelJob_RequestsCancellation(t *testing.T) {
	jobs := &fakeJobs{jobs: map[string]*job.Job{"abc": {ID: "abc", Status: job.StatusRunning}}}
	handler := newTestHandler(jobs, &fakeDumps{}, &fakeCoverage{}, &fakeSearcher{})

	recorder := doRequest(t, handler, http.MethodDelete, "/jobs/abc", nil)

	require.Equal(t, http.StatusOK, recorder.Code)
	data := decodeData(t, recorder)
	assert.Equal(t, true, data["success"])
	assert.Equal(t, []string{"abc"}, jobs.cancelled)
}

func TestImportDump_StartsOnce(t *testing.T) {
	dumps := &fakeDumps{state: dump.State{Counters: dump.Counters{AuthorsCount: 42}}}
	handler := newTestHandler(&fakeJobs{}, dumps, &fakeCoverage{}, &fakeSearcher{})

	first := doRequest(t, handler, http.MethodPost, "/import-dump", nil)
	require.Equal(t, http.StatusAccepted, first.Code)
	assert.Equal(t, "started", decodeData(t, first)["status"])

	second := doRequest(t, handler, http.MethodPost, "/import-dump", nil)
	require.Equal(t, http.StatusOK, second.Code)
	data := decodeData(t, second)
	assert.Equal(t, "already_running", data["status"])
	assert.EqualValues(t, 42, data["authorsCount"])
}

func TestSearch_ReadsThroughAdapter(t *testing.T) {
	searcher := &fakeSearcher{results: []record.Raw{
		{Title: "Dune", Language: "en", Source: record.SourceOpenLibrary},
	}}
	handler := newTestHandler(&fakeJobs{}, &fakeDumps{}, &fakeCoverage{}, searcher)

	recorder := doRequest(t, handler, http.MethodPost, "/search",
		map[string]any{"title": "Dune", "author": "Herbert", "limit": 5})

	require.Equal(t, http.StatusOK, recorder.Code)
	data := decodeData(t, recorder)
	assert.EqualValues(t, 1, data["count"])
	assert.Equal(t, "Dune", searcher.title)
	assert.Equal(t, "Herbert", searcher.author)
	assert.Equal(t, 5, searcher.limit)
}

func TestSearch_RequiresTitle(t *testing.T) {
	handler := newTestHandler(&fakeJobs{}, &fakeDumps{}, &fakeCoverage{}, &fakeSearcher{})

	recorder := doRequest(t, handler, http.MethodPost, "/search", map[string]any{"author": "Herbert"})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestSearch_CapsLimit(t *testing.T) {
	searcher := &fakeSearcher{}
	handler := newTestHandler(&fakeJobs{}, &fakeDumps{}, &fakeCoverage{}, searcher)

	recorder := doRequest(t, handler, http.MethodPost, "/search",
		map[string]any{"title": "Dune", "limit": 5000})

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, maxSearchLimit, searcher.limit)
}

func TestSearch_UnknownSourceRejected(t *testing.T) {
	handler := newTestHandler(&fakeJobs{}, &fakeDumps{}, &fakeCoverage{}, &fakeSearcher{})

	recorder := doRequest(t, handler, http.MethodPost, "/search",
		map[string]any{"title": "Dune", "source": "librarything"})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestDataCoverage_ReportsPercent(t *testing.T) {
	cov := &fakeCoverage{report: coverage.Report{
		DBBooksCount: 250_000, SourceKnownTotal: 10_000_000, CoveragePercent: 2.5, Cached: true,
	}}
	handler := newTestHandler(&fakeJobs{}, &fakeDumps{}, cov, &fakeSearcher{})

	recorder := doRequest(t, handler, http.MethodGet, "/coverage?language=en", nil)

	require.Equal(t, http.StatusOK, recorder.Code)
	data := decodeData(t, recorder)
	assert.EqualValues(t, 250_000, data["dbBooksCount"])
	assert.InDelta(t, 2.5, data["coveragePercent"], 0.001)
	assert.Equal(t, true, data["cached"])
}
