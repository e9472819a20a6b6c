package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/hadiwinata/mediaforge/internal/domain"
)

type transactionResponse struct {
	ID     string                   `json:"id"`
	Amount int64                    `json:"amount"`
	Reason domain.TransactionReason `json:"reason"`
	JobID  string                   `json:"job_id,omitempty"`
	Note   string                   `json:"note,omitempty"`
	At     time.Time                `json:"at"`
}

// CreditBalance returns the calling tenant's current balance.
func (a *App) CreditBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := a.identity(w, r)
	if !ok {
		return
	}
	balance, err := a.Ledger.Balance(r.Context(), id.TenantID)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"tenant_id": id.TenantID,
		"balance":   balance,
	})
}

// CreditTransactions returns the calling tenant's ledger history, newest first.
func (a *App) CreditTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := a.identity(w, r)
	if !ok {
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	txs, err := a.Ledger.Transactions(r.Context(), id.TenantID, limit)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, transactionResponse{
			ID:     tx.ID,
			Amount: tx.Amount,
			Reason: tx.Reason,
			JobID:  tx.JobID,
			Note:   tx.Note,
			At:     tx.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"transactions": out})
}
