// Package server exposes the HTTP trigger surface for extractions.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/jobintel/internal/config"
	"github.com/sells-group/jobintel/internal/model"
	"github.com/sells-group/jobintel/internal/store"
)

// Pipeline runs one extraction attempt for a posting.
type Pipeline interface {
	Run(ctx context.Context, jobID, url string) (*model.Attempt, error)
}

// Server wires HTTP handlers to the store and the orchestrator.
type Server struct {
	router   chi.Router
	store    store.Store
	pipeline Pipeline
	cfg      config.ServerConfig
	extract  config.ExtractConfig
}

// New constructs a Server with middleware and routes.
func New(st store.Store, pipeline Pipeline, cfg config.ServerConfig, extract config.ExtractConfig) *Server {
	s := &Server{
		store:    st,
		pipeline: pipeline,
		cfg:      cfg,
		extract:  extract,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.health)
	r.Route("/api", func(r chi.Router) {
		r.Post("/extract", s.extractHandler)
		r.Get("/jobs/{id}", s.getJob)
		r.Get("/jobs/{id}/attempts", s.listJobAttempts)
		r.Get("/attempts", s.listAttempts)
		r.Get("/attempts/{id}", s.getAttempt)
	})
	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type extractRequest struct {
	URL   string `json:"url"`
	Async bool   `json:"async"`
}

type extractResponse struct {
	Status  string            `json:"status"`
	Job     *model.JobPosting `json:"job,omitempty"`
	Attempt *model.Attempt    `json:"attempt,omitempty"`
	JobID   string            `json:"job_id,omitempty"`
}

// extractHandler triggers an extraction. The async path enqueues and
// returns immediately. The sync path runs the orchestrator off the
// request and waits up to the quick-wait bound; if the bound elapses a
// delayed follow-up check is queued and the in-flight run continues
// untouched.
func (s *Server) extractHandler(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	job, err := s.store.CreateOrGetJob(r.Context(), req.URL)
	if err != nil {
		zap.L().Error("create job failed", zap.String("url", req.URL), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not create job")
		return
	}

	if req.Async {
		if err := s.store.Enqueue(r.Context(), job.ID, job.URL, time.Now().UTC()); err != nil {
			zap.L().Error("enqueue failed", zap.String("job_id", job.ID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not enqueue extraction")
			return
		}
		writeJSON(w, http.StatusAccepted, extractResponse{Status: "queued", JobID: job.ID})
		return
	}

	// Extraction once started is never cancelled; only this caller's
	// wait is bounded.
	runCtx := context.WithoutCancel(r.Context())
	done := make(chan *model.Attempt, 1)
	go func() {
		attempt, err := s.pipeline.Run(runCtx, job.ID, job.URL)
		if err != nil {
			zap.L().Warn("sync extraction failed",
				zap.String("job_id", job.ID),
				zap.Error(err),
			)
		}
		done <- attempt
	}()

	select {
	case attempt := <-done:
		fresh, err := s.store.GetJob(r.Context(), job.ID)
		if err != nil {
			fresh = job
		}
		writeJSON(w, http.StatusOK, extractResponse{
			Status:  "done",
			Job:     fresh,
			Attempt: attempt,
		})
	case <-time.After(s.quickWait()):
		// Queue a follow-up check in case the in-flight run dies with
		// the process; a finished run makes the check a no-op.
		runAfter := time.Now().UTC().Add(s.followUpDelay())
		if err := s.store.Enqueue(runCtx, job.ID, job.URL, runAfter); err != nil {
			zap.L().Error("follow-up enqueue failed", zap.String("job_id", job.ID), zap.Error(err))
		}
		writeJSON(w, http.StatusAccepted, extractResponse{Status: "pending", JobID: job.ID})
	}
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) listJobAttempts(w http.ResponseWriter, r *http.Request) {
	attempts, err := s.store.ListAttempts(r.Context(), store.AttemptFilter{
		JobID: chi.URLParam(r, "id"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not list attempts")
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (s *Server) listAttempts(w http.ResponseWriter, r *http.Request) {
	filter := store.AttemptFilter{
		JobID:  r.URL.Query().Get("job_id"),
		Status: model.AttemptStatus(r.URL.Query().Get("status")),
		Limit:  100,
	}
	attempts, err := s.store.ListAttempts(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not list attempts")
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

// getAttempt returns an attempt with its full event trail.
func (s *Server) getAttempt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	attempt, err := s.store.GetAttempt(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "attempt not found")
		return
	}
	events, err := s.store.ListEvents(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not list events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"attempt": attempt,
		"events":  events,
	})
}

func (s *Server) quickWait() time.Duration {
	if s.extract.QuickWaitSecs > 0 {
		return time.Duration(s.extract.QuickWaitSecs) * time.Second
	}
	return 10 * time.Second
}

func (s *Server) followUpDelay() time.Duration {
	if s.extract.FollowUpDelaySecs > 0 {
		return time.Duration(s.extract.FollowUpDelaySecs) * time.Second
	}
	return time.Minute
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("write response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
