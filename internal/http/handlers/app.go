package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"inkforge/internal/domain"
)

// App bundles the repositories the read-only status API serves from. Jobs
// are enqueued by the storefront writing rows directly; this surface only
// reports on them.
type App struct {
	Jobs    domain.JobRepository
	Assets  domain.AssetRepository
	Wallets domain.WalletRepository
	Logger  zerolog.Logger
}

func NewApp(jobs domain.JobRepository, assets domain.AssetRepository, wallets domain.WalletRepository, logger zerolog.Logger) *App {
	return &App{Jobs: jobs, Assets: assets, Wallets: wallets, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, slug, message string) {
	a.json(w, code, map[string]any{
		"error":   slug,
		"message": message,
	})
}

// Health probes the jobs store with the cheapest dispatcher query, so a
// green check means status polls can actually be answered.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	if _, err := a.Jobs.ListQueued(r.Context(), 1); err != nil {
		a.Logger.Error().Err(err).Msg("health: jobs store unreachable")
		a.json(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
