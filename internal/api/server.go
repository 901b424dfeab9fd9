package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"autosub/internal/batch"
	"autosub/internal/config"
	"autosub/internal/deps"
	"autosub/internal/fileutil"
	"autosub/internal/gate"
	"autosub/internal/logging"
	"autosub/internal/progress"
	"autosub/internal/queue"
	"autosub/internal/scheduler"
	"autosub/internal/services"
	"autosub/internal/stage"
)

// Deps collects the daemon components the API surfaces.
type Deps struct {
	Store       *queue.Store
	Coordinator *batch.Coordinator
	Scheduler   *scheduler.Scheduler
	Gate        *gate.Gate
	Bus         *progress.Bus
	Hub         *logging.StreamHub
	Registry    *stage.Registry
	Logger      *slog.Logger
	Version     string
}

// Server exposes the daemon over HTTP and WebSocket.
type Server struct {
	cfg       *config.Config
	deps      Deps
	logger    *slog.Logger
	startedAt time.Time

	listener net.Listener
	server   *http.Server
}

// NewServer constructs the API server. It does not listen until Start.
func NewServer(cfg *config.Config, d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		cfg:       cfg,
		deps:      d,
		logger:    logging.NewComponentLogger(logger, "api-server"),
		startedAt: time.Now().UTC(),
	}
	s.server = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Router builds the chi route tree. Exposed for handler tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Post("/jobs", s.handleSubmitJob)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Post("/jobs/{id}/cancel", s.handleCancelJob)
		r.Post("/jobs/{id}/retry", s.handleRetryJob)
		r.Delete("/jobs/{id}", s.handleDeleteJob)

		r.Post("/batches", s.handleSubmitBatch)
		r.Get("/batches", s.handleListBatches)
		r.Get("/batches/{id}", s.handleGetBatch)
		r.Post("/batches/{id}/cancel", s.handleCancelBatch)
		r.Post("/batches/{id}/retry", s.handleRetryBatch)
		r.Delete("/batches/{id}", s.handleDeleteBatch)

		r.Get("/status", s.handleStatus)
		r.Get("/health", s.handleHealth)
		r.Get("/logs", s.handleLogs)
	})

	r.Get("/ws/jobs/{id}", s.handleJobSocket)
	r.Get("/ws/batches/{id}", s.handleBatchSocket)

	return r
}

// Start begins serving on the configured bind address.
func (s *Server) Start(ctx context.Context) error {
	bind := strings.TrimSpace(s.cfg.API.Bind)
	if bind == "" {
		return fmt.Errorf("api bind address not configured")
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr returns the bound listen address, empty before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorMessage(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	job, err := batch.BuildJob(s.cfg, s.deps.Registry, req.InputPath, optionsFromPayload(req.JobOptionsPayload))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.deps.Store.CreateJob(r.Context(), job); err != nil {
		s.writeError(w, err)
		return
	}
	s.kick()
	s.writeJSON(w, http.StatusCreated, FromJob(job))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	filter := queue.JobFilter{BatchID: strings.TrimSpace(r.URL.Query().Get("batch"))}
	for _, value := range r.URL.Query()["status"] {
		status, ok := queue.ParseStatus(value)
		if !ok {
			s.writeErrorMessage(w, http.StatusUnprocessableEntity, fmt.Sprintf("unknown status %q", value))
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeErrorMessage(w, http.StatusUnprocessableEntity, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	jobs, err := s.deps.Store.ListJobs(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := JobListResponse{Jobs: make([]JobView, 0, len(jobs))}
	for _, job := range jobs {
		resp.Jobs = append(resp.Jobs, FromJob(job))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.fetchJob(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, FromJob(job))
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	// The coordinator path also retires bus subscriptions and refreshes the
	// batch aggregate when the job goes terminal straight from queued.
	outcome, err := s.deps.Coordinator.CancelJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if outcome == queue.CancelOutcomeNotFound {
		s.writeErrorMessage(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, CancelResponse{Outcome: string(outcome)})
}

func (s *Server) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Store.ResetForRetry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.kick()
	view := FromJob(job)
	s.writeJSON(w, http.StatusOK, RetryResponse{Retried: 1, Job: &view})
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.deps.Store.DeleteJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !deleted {
		s.writeErrorMessage(w, http.StatusNotFound, "job not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req SubmitBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorMessage(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	request := batch.Request{
		Name:     req.Name,
		Defaults: optionsFromPayload(req.Defaults),
	}
	for _, file := range req.Files {
		request.Files = append(request.Files, batch.FileSpec{
			Path:           file.Path,
			SourceLanguage: file.SourceLanguage,
			Priority:       file.Priority,
		})
	}
	created, jobs, err := s.deps.Coordinator.Create(r.Context(), request)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, FromBatch(created, jobs))
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := s.deps.Store.ListBatches(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := BatchListResponse{Batches: make([]BatchView, 0, len(batches))}
	for _, b := range batches {
		resp.Batches = append(resp.Batches, FromBatch(b, nil))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b, err := s.deps.Store.GetBatch(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if b == nil {
		s.writeErrorMessage(w, http.StatusNotFound, "batch not found")
		return
	}
	jobs, err := s.deps.Store.ListBatchJobs(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, FromBatch(b, jobs))
}

func (s *Server) handleCancelBatch(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Coordinator.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, CancelResponse{
		Cancelled: result.Cancelled,
		Flagged:   result.Flagged,
		Skipped:   result.Skipped,
	})
}

func (s *Server) handleRetryBatch(w http.ResponseWriter, r *http.Request) {
	retried, err := s.deps.Coordinator.Retry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, RetryResponse{Retried: retried})
}

func (s *Server) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Coordinator.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.deps.Store.CountByStatus(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := StatusResponse{
		Running:     true,
		PID:         os.Getpid(),
		Version:     s.deps.Version,
		StartedAt:   s.startedAt,
		QueueCounts: make(map[string]int, len(counts)),
		MaxWorkers:  s.cfg.Pipeline.MaxConcurrentJobs,
	}
	for status, count := range counts {
		resp.QueueCounts[string(status)] = count
	}
	if s.deps.Gate != nil {
		resp.GateInUse = s.deps.Gate.InUse()
		resp.GateCapacity = s.deps.Gate.Capacity()
	}
	if s.deps.Scheduler != nil {
		resp.ActiveWorkers = s.deps.Scheduler.ActiveJobs()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	summary, err := s.deps.Store.Health(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := HealthResponse{
		Healthy: true,
		Queue: QueueHealth{
			Total:      summary.Total,
			Queued:     summary.Queued,
			Processing: summary.Processing,
			Completed:  summary.Completed,
			Failed:     summary.Failed,
			Cancelled:  summary.Cancelled,
		},
	}
	if free, err := fileutil.FreeSpace(s.cfg.Paths.DataDir); err == nil {
		resp.FreeDiskGiB = float64(free) / (1 << 30)
	}
	statuses := deps.Check(r.Context(), s.cfg)
	resp.Dependencies = FromDependencyStatuses(statuses)
	if len(deps.MissingRequired(statuses)) > 0 {
		resp.Healthy = false
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// LogsResponse wraps /api/logs.
type LogsResponse struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Hub == nil {
		s.writeJSON(w, http.StatusOK, LogsResponse{})
		return
	}
	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 200
	}
	if since == 0 {
		events, next := s.deps.Hub.Tail(limit)
		s.writeJSON(w, http.StatusOK, LogsResponse{Events: events, Next: next})
		return
	}
	events, next, err := s.deps.Hub.Fetch(r.Context(), since, limit, false)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, LogsResponse{Events: events, Next: next})
}

func (s *Server) fetchJob(r *http.Request) (*queue.Job, error) {
	id := chi.URLParam(r, "id")
	job, err := s.deps.Store.GetJob(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: job %s", queue.ErrNotFound, id)
	}
	return job, nil
}

func (s *Server) kick() {
	if s.deps.Scheduler != nil {
		s.deps.Scheduler.Kick()
	}
}

func optionsFromPayload(p JobOptionsPayload) batch.JobOptions {
	return batch.JobOptions{
		SourceLanguage:   p.SourceLanguage,
		TargetLanguage:   p.TargetLanguage,
		OutputFormats:    p.OutputFormats,
		Diarize:          p.Diarize,
		BurnIn:           p.BurnIn,
		WhisperModel:     p.WhisperModel,
		TranslationModel: p.TranslationModel,
		SubtitleStyle:    p.SubtitleStyle,
		VideoPreset:      p.VideoPreset,
		Priority:         p.Priority,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeErrorMessage(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}

// writeError maps service and store errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, queue.ErrNotFound) || errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrConfiguration) || errors.Is(err, services.ErrValidation):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, queue.ErrInvalidTransition) || errors.Is(err, services.ErrCancelled):
		status = http.StatusConflict
	}
	s.writeErrorMessage(w, status, err.Error())
}
