package jobs

import (
	"context"
	"fmt"

	"inkforge/internal/domain"
	"inkforge/internal/providers/predictions"
)

// upscaleHandler enlarges the best available design image via an async
// prediction. Its input carries no fields; the resolver picks the source.
type upscaleHandler struct {
	deps *Deps
}

func (h *upscaleHandler) Start(ctx context.Context, job *domain.Job) error {
	source, err := h.deps.Resolver.SourceImage(ctx, job.ProductID, "")
	if err != nil {
		return err
	}
	pred, err := h.deps.Predictions.Create(ctx, h.deps.ModelNames.Upscale, map[string]any{
		"image": source.URL,
	})
	if err != nil {
		return fmt.Errorf("start upscale: %w", err)
	}
	job.ExternalPredictionID = pred.ID
	job.Status = domain.JobStatusRunning
	return nil
}

func (h *upscaleHandler) Check(ctx context.Context, job *domain.Job) error {
	pred, err := h.deps.Predictions.Get(ctx, job.ExternalPredictionID)
	if err != nil {
		h.deps.Log.Warn().Err(err).Str("job_id", job.ID).Msg("jobs: poll prediction failed")
		return nil
	}
	if !pred.Status.Terminal() {
		return nil
	}
	if pred.Status != predictions.StatusSucceeded {
		return providerError(pred)
	}
	return h.deps.finishAssetJob(ctx, job, pred, domain.AssetKindUpscaled, "", map[string]any{
		"provider_model": h.deps.ModelNames.Upscale,
	})
}
