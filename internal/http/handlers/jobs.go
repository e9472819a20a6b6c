package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hadiwinata/mediaforge/internal/domain"
	"github.com/hadiwinata/mediaforge/internal/orchestrator"
)

type submitJobRequest struct {
	Module string          `json:"module"`
	Input  domain.JobInput `json:"input"`
}

type jobResponse struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"tenant_id"`
	UserID      string            `json:"user_id,omitempty"`
	Module      domain.JobModule  `json:"module"`
	Status      domain.JobStatus  `json:"status"`
	Input       domain.JobInput   `json:"input"`
	Output      []domain.Artifact `json:"output,omitempty"`
	CreditsUsed int64             `json:"credits_used"`
	RetryCount  int               `json:"retry_count"`
	MaxRetries  int               `json:"max_retries"`
	Error       *domain.JobError  `json:"error,omitempty"`
	QueuedAt    time.Time         `json:"queued_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

func toJobResponse(job *domain.Job) jobResponse {
	return jobResponse{
		ID:          job.ID,
		TenantID:    job.TenantID,
		UserID:      job.UserID,
		Module:      job.Module,
		Status:      job.Status,
		Input:       job.Input,
		Output:      job.Output,
		CreditsUsed: job.CreditsUsed,
		RetryCount:  job.RetryCount,
		MaxRetries:  job.MaxRetries,
		Error:       job.Error,
		QueuedAt:    job.QueuedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
}

// SubmitJob admits a new generation job for the calling tenant.
func (a *App) SubmitJob(w http.ResponseWriter, r *http.Request) {
	id, ok := a.identity(w, r)
	if !ok {
		return
	}
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	job, err := a.Manager.Submit(r.Context(), orchestrator.SubmitRequest{
		TenantID:   id.TenantID,
		UserID:     id.UserID,
		Module:     domain.JobModule(req.Module),
		Input:      req.Input,
		SuperAdmin: id.SuperAdmin,
	})
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, toJobResponse(job))
}

// GetJob returns one job owned by the calling tenant.
func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := a.identity(w, r)
	if !ok {
		return
	}
	job, err := a.Manager.Get(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	if job.TenantID != id.TenantID {
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	a.json(w, http.StatusOK, toJobResponse(job))
}

// jobFilterFromQuery reads the shared history-filter query params. The
// caller decides the tenant scope.
func jobFilterFromQuery(r *http.Request) domain.JobFilter {
	filter := domain.JobFilter{
		UserID: r.URL.Query().Get("user_id"),
		Status: domain.JobStatus(r.URL.Query().Get("status")),
		Module: domain.JobModule(r.URL.Query().Get("module")),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	return filter
}

// ListJobs returns the calling tenant's jobs, newest first.
func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	id, ok := a.identity(w, r)
	if !ok {
		return
	}
	filter := jobFilterFromQuery(r)
	filter.TenantID = id.TenantID
	jobs, err := a.Manager.List(r.Context(), filter)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	out := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		out = append(out, toJobResponse(&jobs[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"jobs": out})
}

// CancelJob cancels a queued or running job and refunds its reservation.
func (a *App) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := a.identity(w, r)
	if !ok {
		return
	}
	jobID := chi.URLParam(r, "job_id")
	job, err := a.Manager.Get(r.Context(), jobID)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	if job.TenantID != id.TenantID {
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	cancelled, err := a.Manager.Cancel(r.Context(), jobID, orchestrator.CodeCancelled, "cancelled by user")
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	a.json(w, http.StatusOK, toJobResponse(cancelled))
}
