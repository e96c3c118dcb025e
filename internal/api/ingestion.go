// Copyright (c) 2026 Minsik. All rights reserved.
// Author: contact@minsik.app

package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/minsik-app/ingestion/internal/ingest/coverage"
	"github.com/minsik-app/ingestion/internal/ingest/dump"
	"github.com/minsik-app/ingestion/internal/ingest/job"
	"github.com/minsik-app/ingestion/internal/ingest/record"
	"github.com/minsik-app/ingestion/internal/platform/apperr"
	requestutil "github.com/minsik-app/ingestion/internal/platform/request"
	"github.com/minsik-app/ingestion/internal/platform/respond"
	"github.com/minsik-app/ingestion/internal/platform/validate"
)

// JobService is the incremental ingestion surface the handler depends on.
// Satisfied by [job.Orchestrator].
type JobService interface {
	Trigger(ctx context.Context, totalBooks int64, source, language string) (*job.Job, error)
	Status(ctx context.Context, jobID string) (*job.Job, error)
	Cancel(ctx context.Context, jobID string) error
}

// DumpService is the bulk import surface. Satisfied by [dump.Importer].
type DumpService interface {
	Start(ctx context.Context) (bool, error)
	Status(ctx context.Context) (*dump.State, error)
}

// CoverageService estimates catalog coverage. Satisfied by
// [coverage.Estimator].
type CoverageService interface {
	Estimate(ctx context.Context, language string) (*coverage.Report, error)
}

// Searcher is the adapter read-through surface of one source.
type Searcher interface {
	Search(ctx context.Context, title, author string, limit int) ([]record.Raw, error)
}

// Handler serves the ingestion operations.
type Handler struct {
	jobs      JobService
	dumps     DumpService
	coverage  CoverageService
	searchers map[string]Searcher
	logger    *slog.Logger
}

// NewHandler wires the ingestion handler. searchers is keyed by source name.
func NewHandler(jobs JobService, dumps DumpService, cov CoverageService, searchers map[string]Searcher, logger *slog.Logger) *Handler {
	return &Handler{
		jobs:      jobs,
		dumps:     dumps,
		coverage:  cov,
		searchers: searchers,
		logger:    logger,
	}
}

// Routes mounts the ingestion operations.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/trigger", h.trigger)
	r.Get("/jobs/{jobID}", h.jobStatus)
	r.Delete("/jobs/{jobID}", h.cancelJob)
	r.Post("/import-dump", h.importDump)
	r.Post("/search", h.search)
	r.Get("/coverage", h.dataCoverage)

	return r
}

// # Incremental jobs

type triggerRequest struct {
	TotalBooks int64  `json:"totalBooks"`
	Source     string `json:"source"`
	Language   string `json:"language"`
}

type triggerResponse struct {
	JobID      string `json:"jobId"`
	Status     string `json:"status"`
	TotalBooks int64  `json:"totalBooks"`
	Message    string `json:"message"`
}

// trigger handles POST /trigger.
func (h *Handler) trigger(writer http.ResponseWriter, request *http.Request) {
	var body triggerRequest
	if err := requestutil.DecodeJSON(request, &body); err != nil {
		respond.Error(writer, request, err)
		return
	}
	if body.Source == "" {
		body.Source = record.SourceBoth
	}
	if body.Language == "" {
		body.Language = "en"
	}

	started, err := h.jobs.Trigger(request.Context(), body.TotalBooks, body.Source, body.Language)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Accepted(writer, triggerResponse{
		JobID:      started.ID,
		Status:     string(started.Status),
		TotalBooks: started.Total,
		Message:    "Ingestion job queued",
	})
}

type jobStatusResponse struct {
	JobID       string `json:"jobId"`
	Status      string `json:"status"`
	Source      string `json:"source"`
	Language    string `json:"language"`
	Total       int64  `json:"total"`
	Processed   int64  `json:"processed"`
	Successful  int64  `json:"successful"`
	Failed      int64  `json:"failed"`
	Error       string `json:"error,omitempty"`
	StartedAt   string `json:"startedAt"`
	CompletedAt string `json:"completedAt,omitempty"`
}

// jobStatus handles GET /jobs/{jobID}.
func (h *Handler) jobStatus(writer http.ResponseWriter, request *http.Request) {
	jobID := requestutil.ID(request, "jobID")

	j, err := h.jobs.Status(request.Context(), jobID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	response := jobStatusResponse{
		JobID:      j.ID,
		Status:     string(j.Status),
		Source:     j.Source,
		Language:   j.Language,
		Total:      j.Total,
		Processed:  j.Processed,
		Successful: j.Successful,
		Failed:     j.Failed,
		Error:      j.Error,
		StartedAt:  j.StartedAt.Format(time.RFC3339),
	}
	if j.CompletedAt != nil {
		response.CompletedAt = j.CompletedAt.Format(time.RFC3339)
	}
	respond.OK(writer, response)
}

type cancelResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// cancelJob handles DELETE /jobs/{jobID}. Cancellation is cooperative: the
// worker observes the flag at its next batch boundary.
func (h *Handler) cancelJob(writer http.ResponseWriter, request *http.Request) {
	jobID := requestutil.ID(request, "jobID")

	if err := h.jobs.Cancel(request.Context(), jobID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, cancelResponse{
		Success: true,
		Message: "Cancellation requested; the job stops at its next batch boundary",
	})
}

// # Bulk dump import

type importDumpResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	dump.Counters
}

// importDump handles POST /import-dump.
func (h *Handler) importDump(writer http.ResponseWriter, request *http.Request) {
	started, err := h.dumps.Start(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	state, err := h.dumps.Status(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if !started {
		respond.OK(writer, importDumpResponse{
			Status:   "already_running",
			Message:  state.Status,
			Counters: state.Counters,
		})
		return
	}

	respond.Accepted(writer, importDumpResponse{
		Status:   "started",
		Message:  "Bulk dump import started",
		Counters: state.Counters,
	})
}

// # External search

type searchRequest struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Source string `json:"source"`
	Limit  int    `json:"limit"`
}

type searchResponse struct {
	Results []record.Raw `json:"results"`
	Count   int          `json:"count"`
	Source  string       `json:"source"`
}

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 40
)

// search handles POST /search: a read-through to the source adapter that
// never touches the catalog.
func (h *Handler) search(writer http.ResponseWriter, request *http.Request) {
	var body searchRequest
	if err := requestutil.DecodeJSON(request, &body); err != nil {
		respond.Error(writer, request, err)
		return
	}
	if body.Source == "" {
		body.Source = record.SourceOpenLibrary
	}
	if body.Limit <= 0 {
		body.Limit = defaultSearchLimit
	}
	if body.Limit > maxSearchLimit {
		body.Limit = maxSearchLimit
	}

	validator := &validate.Validator{}
	if err := validator.
		Required("title", body.Title).
		MaxLen("title", body.Title, 500).
		Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	searcher, ok := h.searchers[body.Source]
	if !ok {
		respond.Error(writer, request, apperr.ValidationError("unknown source: "+body.Source))
		return
	}

	results, err := searcher.Search(request.Context(), body.Title, body.Author, body.Limit)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	if results == nil {
		results = []record.Raw{}
	}

	respond.OK(writer, searchResponse{
		Results: results,
		Count:   len(results),
		Source:  body.Source,
	})
}

// # Coverage

// dataCoverage handles GET /coverage.
func (h *Handler) dataCoverage(writer http.ResponseWriter, request *http.Request) {
	language := request.URL.Query().Get("language")
	if language == "" {
		language = "en"
	}

	report, err := h.coverage.Estimate(request.Context(), language)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, report)
}
