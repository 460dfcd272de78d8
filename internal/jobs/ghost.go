package jobs

import (
	"context"
	"fmt"

	"inkforge/internal/domain"
	"inkforge/internal/providers/predictions"
)

// ghostMannequinSupported lists the product types the ghost-mannequin
// provider can composite. Anything else skips the job instead of failing it.
var ghostMannequinSupported = map[string]bool{
	"tshirt":     true,
	"hoodie":     true,
	"longsleeve": true,
	"sweatshirt": true,
}

// ghostMannequinHandler composites the garment onto an invisible mannequin.
type ghostMannequinHandler struct {
	deps *Deps
}

func (h *ghostMannequinHandler) Start(ctx context.Context, job *domain.Job) error {
	var input domain.GhostMannequinInput
	if err := job.DecodeInput(&input); err != nil {
		return fmt.Errorf("decode ghost_mannequin input: %w", err)
	}
	if !ghostMannequinSupported[input.ProductType] {
		return &SkipError{Reason: fmt.Sprintf("product type %q not supported for ghost mannequin", input.ProductType)}
	}

	if err := h.deps.requireSucceeded(ctx, job.ProductID, domain.JobTypeImageGenerate); err != nil {
		return err
	}

	source, err := h.deps.Resolver.SourceImage(ctx, job.ProductID, input.SelectedAssetID)
	if err != nil {
		return err
	}

	pred, err := h.deps.Predictions.Create(ctx, h.deps.ModelNames.GhostMannequin, map[string]any{
		"garment_image": source.URL,
		"product_type":  input.ProductType,
		"shirt_color":   input.ShirtColor,
	})
	if err != nil {
		return fmt.Errorf("start ghost mannequin composite: %w", err)
	}
	job.ExternalPredictionID = pred.ID
	job.Status = domain.JobStatusRunning
	return nil
}

func (h *ghostMannequinHandler) Check(ctx context.Context, job *domain.Job) error {
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
	return h.deps.finishAssetJob(ctx, job, pred, domain.AssetKindMockup, "ghost_mannequin", map[string]any{
		"provider_model": h.deps.ModelNames.GhostMannequin,
	})
}
