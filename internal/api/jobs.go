package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tastewell/harvester/internal/harvest"
	"github.com/tastewell/harvester/internal/job"
	"github.com/tastewell/harvester/internal/policy"
)

type createJobRequest struct {
	SourceURL   string `json:"source_url,omitempty"`
	RawText     string `json:"raw_text,omitempty"`
	MaxAttempts int    `json:"max_attempts,omitempty"`
	Run         bool   `json:"run,omitempty"`
}

// jobView is the wire form of a harvest job.
type jobView struct {
	ID           uuid.UUID  `json:"id"`
	PolicyID     string     `json:"policy_id,omitempty"`
	Domain       string     `json:"domain,omitempty"`
	SourceURL    string     `json:"source_url,omitempty"`
	Status       string     `json:"status"`
	AttemptCount int        `json:"attempt_count"`
	MaxAttempts  int        `json:"max_attempts"`
	Strategy     string     `json:"parse_strategy,omitempty"`
	Confidence   *float64   `json:"confidence,omitempty"`
	FailureClass string     `json:"failure_class,omitempty"`
	Error        string     `json:"error,omitempty"`
	RecipeID     *uuid.UUID `json:"recipe_id,omitempty"`
	Duplicate    bool       `json:"duplicate,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastAttempt  *time.Time `json:"last_attempt_at,omitempty"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty"`
}

func viewJob(j *harvest.Job) jobView {
	v := jobView{
		ID:           j.ID,
		PolicyID:     j.PolicyID,
		Domain:       j.Domain,
		SourceURL:    j.SourceURL,
		Status:       string(j.Status),
		AttemptCount: j.AttemptCount,
		MaxAttempts:  j.MaxAttempts,
		Confidence:   j.Confidence,
		FailureClass: j.FailureClass,
		Error:        j.Error,
		RecipeID:     j.RecipeID,
		Duplicate:    j.Duplicate,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
		LastAttempt:  j.LastAttemptAt,
		NextRetryAt:  j.NextRetryAt,
	}
	if j.Strategy != nil {
		v.Strategy = j.Strategy.Label()
	}
	return v
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SourceURL == "" && req.RawText == "" {
		s.writeError(w, http.StatusBadRequest, "source_url or raw_text is required")
		return
	}

	ctx := r.Context()
	jb := &harvest.Job{
		ID:          s.idGen.NewID(),
		SourceURL:   req.SourceURL,
		RawText:     req.RawText,
		Status:      harvest.StatusPending,
		MaxAttempts: req.MaxAttempts,
	}
	if jb.MaxAttempts <= 0 {
		jb.MaxAttempts = s.cfg.Harvest.MaxAttempts
	}
	if req.SourceURL != "" {
		policies, err := s.policies.ListPolicies(ctx)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "list policies failed")
			return
		}
		pol := policy.Match(req.SourceURL, policies)
		if pol == nil {
			s.writeError(w, http.StatusBadRequest, "source not allowed")
			return
		}
		jb.PolicyID = pol.ID
		jb.Domain = pol.Domain
		if existing, err := s.jobs.ActiveJobForURL(ctx, pol.ID, req.SourceURL); err == nil {
			s.writeJSON(w, http.StatusOK, viewJob(existing))
			return
		}
	}
	now := s.clock.Now()
	jb.CreatedAt = now
	jb.UpdatedAt = now
	if err := s.jobs.CreateJob(ctx, jb); err != nil {
		s.writeError(w, http.StatusInternalServerError, "create job failed")
		return
	}

	if req.Run {
		ran, err := s.runner.Run(ctx, jb.ID)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "run job failed")
			return
		}
		s.writeJSON(w, http.StatusOK, viewJob(ran))
		return
	}
	if s.dispatcher != nil {
		if err := s.dispatcher.Enqueue(ctx, harvest.QueueItem{JobID: jb.ID, EnqueuedAt: now}); err != nil {
			s.writeError(w, http.StatusInternalServerError, "enqueue job failed")
			return
		}
	}
	s.writeJSON(w, http.StatusAccepted, viewJob(jb))
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "job_id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	jb, err := s.jobs.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, harvest.ErrJobNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "get job failed")
		return
	}
	s.writeJSON(w, http.StatusOK, viewJob(jb))
}

func (s *Server) runJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "job_id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	ran, err := s.runner.Run(r.Context(), id)
	switch {
	case errors.Is(err, harvest.ErrJobNotFound):
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	case errors.Is(err, job.ErrMaxAttempts):
		s.writeError(w, http.StatusConflict, "max harvest attempts reached")
		return
	case errors.Is(err, job.ErrNotRunnable):
		s.writeError(w, http.StatusConflict, fmt.Sprintf("job is %s", ran.Status))
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, "run job failed")
		return
	}
	s.writeJSON(w, http.StatusOK, viewJob(ran))
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := harvest.JobFilter{PolicyID: q.Get("policy_id")}
	if raw := q.Get("status"); raw != "" {
		status := harvest.JobStatus(raw)
		switch status {
		case harvest.StatusPending, harvest.StatusRunning, harvest.StatusSucceeded, harvest.StatusFailed:
			filter.Status = &status
		default:
			s.writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
	}
	if q.Get("retryable") == "true" {
		now := s.clock.Now()
		filter.RetryableAt = &now
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	jobs, err := s.jobs.ListJobs(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "list jobs failed")
		return
	}
	views := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, viewJob(j))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": views, "count": len(views)})
}
