package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"inkforge/internal/http/handlers"
)

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/jobs", func(r chi.Router) {
		r.Get("/{id}", app.GetJob)
	})
	r.Route("/v1/products", func(r chi.Router) {
		r.Get("/{id}/jobs", app.ListProductJobs)
		r.Get("/{id}/assets", app.ListProductAssets)
	})
	r.Route("/v1/wallets", func(r chi.Router) {
		r.Get("/{user_id}", app.GetWallet)
	})

	return r
}
