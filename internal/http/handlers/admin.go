package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hadiwinata/mediaforge/internal/domain"
	"github.com/hadiwinata/mediaforge/internal/gate"
	"github.com/hadiwinata/mediaforge/internal/orchestrator"
)

type grantRequest struct {
	TenantID string `json:"tenant_id"`
	Amount   int64  `json:"amount"`
	Reason   string `json:"reason"`
	Note     string `json:"note"`
}

// AdminGrant credits a tenant balance outside the job flow, either as the
// monthly plan grant or as a support adjustment.
func (a *App) AdminGrant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.TenantID == "" || req.Amount == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "tenant_id and a non-zero amount are required")
		return
	}
	if _, err := a.Tenants.GetByID(r.Context(), req.TenantID); err != nil {
		a.writeDomainError(w, err)
		return
	}
	reason := domain.TransactionReason(req.Reason)
	if reason == "" {
		reason = domain.ReasonManualAdjustment
	}
	if err := a.Ledger.Grant(r.Context(), req.TenantID, req.Amount, reason, req.Note); err != nil {
		a.writeDomainError(w, err)
		return
	}
	balance, err := a.Ledger.Balance(r.Context(), req.TenantID)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"tenant_id": req.TenantID,
		"balance":   balance,
	})
}

// AdminListJobs is the audit read across tenants: job history filtered by
// tenant, user, status, and module, newest first.
func (a *App) AdminListJobs(w http.ResponseWriter, r *http.Request) {
	filter := jobFilterFromQuery(r)
	filter.TenantID = r.URL.Query().Get("tenant_id")
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

// AdminCancelJob force-cancels any tenant's job with a refund.
func (a *App) AdminCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := a.Manager.Cancel(r.Context(), jobID, orchestrator.CodeCancelled, "cancelled by operator")
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	a.json(w, http.StatusOK, toJobResponse(job))
}

type maintenanceRequest struct {
	Enabled   bool   `json:"enabled"`
	Message   string `json:"message"`
	CancelAll bool   `json:"cancel_all"`
}

// AdminMaintenance flips the maintenance flag and optionally sweeps all
// in-flight jobs into cancellation with refunds.
func (a *App) AdminMaintenance(w http.ResponseWriter, r *http.Request) {
	if a.Maintenance == nil {
		a.error(w, http.StatusConflict, "conflict", "maintenance flag is fixed by configuration")
		return
	}
	var req maintenanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	message := req.Message
	if message == "" {
		message = "scheduled maintenance in progress"
	}
	a.Maintenance.Set(gate.MaintenanceState{Enabled: req.Enabled, Message: message})

	cancelled := 0
	if req.Enabled && req.CancelAll {
		n, err := a.Manager.ForceCancelAll(r.Context(), orchestrator.CodeMaintenanceMode, message)
		if err != nil {
			a.writeDomainError(w, err)
			return
		}
		cancelled = n
	}
	a.Logger.Info().Bool("enabled", req.Enabled).Int("cancelled", cancelled).Msg("handlers: maintenance flag updated")
	a.json(w, http.StatusOK, map[string]any{
		"enabled":   req.Enabled,
		"message":   message,
		"cancelled": cancelled,
	})
}
