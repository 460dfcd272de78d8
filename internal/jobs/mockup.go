package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"inkforge/internal/domain"
	"inkforge/internal/providers/predictions"
)

// compositeMockupHandler composites the resolved design onto a garment
// template. It waits for the product's image generation to succeed; a failed
// background removal is not blocking because the resolver falls back to the
// raw source.
type compositeMockupHandler struct {
	deps *Deps
}

func (h *compositeMockupHandler) Start(ctx context.Context, job *domain.Job) error {
	var input domain.CompositeMockupInput
	if err := job.DecodeInput(&input); err != nil {
		return fmt.Errorf("decode composite_mockup input: %w", err)
	}
	if input.Template == "" {
		input.Template = "flat_lay"
	}

	if err := h.deps.requireSucceeded(ctx, job.ProductID, domain.JobTypeImageGenerate); err != nil {
		return err
	}

	source, err := h.deps.Resolver.SourceImage(ctx, job.ProductID, input.SelectedAssetID)
	if err != nil {
		return err
	}

	// Written back for audit: which garment image the composite used.
	input.GarmentImageURL = source.URL
	raw, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("encode composite_mockup input: %w", err)
	}
	job.InputJSON = raw

	pred, err := h.deps.Predictions.Create(ctx, h.deps.ModelNames.Mockup, map[string]any{
		"garment_image": source.URL,
		"template":      input.Template,
	})
	if err != nil {
		return fmt.Errorf("start mockup composite: %w", err)
	}
	job.ExternalPredictionID = pred.ID
	job.Status = domain.JobStatusRunning
	return nil
}

func (h *compositeMockupHandler) Check(ctx context.Context, job *domain.Job) error {
	var input domain.CompositeMockupInput
	if err := job.DecodeInput(&input); err != nil {
		return fmt.Errorf("decode composite_mockup input: %w", err)
	}
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
	return h.deps.finishAssetJob(ctx, job, pred, domain.AssetKindMockup, input.Template, map[string]any{
		"provider_model": h.deps.ModelNames.Mockup,
		"template":       input.Template,
	})
}
