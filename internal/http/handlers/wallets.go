package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"inkforge/internal/domain"
)

func (a *App) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	balance, err := a.Wallets.Balance(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "wallet not found")
			return
		}
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("load wallet failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load wallet")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	txns, err := a.Wallets.ListTransactions(r.Context(), userID, limit)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("list transactions failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load transactions")
		return
	}
	items := make([]map[string]any, 0, len(txns))
	for _, txn := range txns {
		items = append(items, map[string]any{
			"id":         txn.ID,
			"amount":     txn.Amount,
			"type":       txn.Type,
			"reference":  txn.Reference,
			"created_at": txn.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{
		"user_id":      userID,
		"itc_balance":  balance,
		"transactions": items,
	})
}
