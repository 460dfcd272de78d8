package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"inkforge/internal/domain"
)

func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("load job failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	a.json(w, http.StatusOK, jobView(job))
}

func (a *App) ListProductJobs(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")
	jobs, err := a.Jobs.ListByProduct(r.Context(), productID)
	if err != nil {
		a.Logger.Error().Err(err).Str("product_id", productID).Msg("list jobs failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load jobs")
		return
	}
	items := make([]map[string]any, 0, len(jobs))
	for i := range jobs {
		items = append(items, jobView(&jobs[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func jobView(job *domain.Job) map[string]any {
	view := map[string]any{
		"id":         job.ID,
		"product_id": job.ProductID,
		"user_id":    job.UserID,
		"type":       job.Type,
		"status":     job.Status,
		"created_at": job.CreatedAt,
		"updated_at": job.UpdatedAt,
	}
	if len(job.InputJSON) > 0 {
		view["input"] = json.RawMessage(job.InputJSON)
	}
	if len(job.OutputJSON) > 0 {
		view["output"] = json.RawMessage(job.OutputJSON)
	}
	if job.ExternalPredictionID != "" {
		view["external_prediction_id"] = job.ExternalPredictionID
	}
	if job.ErrorMessage != "" {
		view["error_message"] = job.ErrorMessage
	}
	return view
}
