package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hadiwinata/mediaforge/internal/domain"
	"github.com/hadiwinata/mediaforge/internal/gate"
	"github.com/hadiwinata/mediaforge/internal/ledger"
	"github.com/hadiwinata/mediaforge/internal/middleware"
	"github.com/hadiwinata/mediaforge/internal/orchestrator"
)

// App bundles the dependencies the HTTP handlers need.
type App struct {
	Manager     *orchestrator.Manager
	Ledger      *ledger.Ledger
	Tenants     domain.TenantRepository
	Maintenance *gate.MaintenanceController
	Logger      zerolog.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"error": errCode, "message": message})
}

// writeDomainError maps service errors onto HTTP responses.
func (a *App) writeDomainError(w http.ResponseWriter, err error) {
	var deny *gate.DenyError
	switch {
	case errors.As(err, &deny):
		a.error(w, http.StatusForbidden, string(deny.Reason), deny.Message)
	case errors.Is(err, domain.ErrInsufficientCredits):
		a.error(w, http.StatusPaymentRequired, "insufficient_credits", "not enough credits for this job")
	case errors.Is(err, domain.ErrInvalidInput):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, domain.ErrConcurrentModification):
		a.error(w, http.StatusConflict, "conflict", "job is no longer in a cancellable state")
	default:
		a.Logger.Error().Err(err).Msg("handlers: internal error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) identity(w http.ResponseWriter, r *http.Request) (middleware.Identity, bool) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok || id.TenantID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing tenant context")
		return middleware.Identity{}, false
	}
	return id, true
}
