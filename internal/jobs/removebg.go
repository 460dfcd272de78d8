package jobs

import (
	"context"
	"errors"
	"fmt"

	"inkforge/internal/domain"
	"inkforge/internal/providers/predictions"
	"inkforge/internal/resolve"
)

// removeBackgroundHandler strips the background from a product's design
// image via an async prediction. The input is the explicitly selected asset
// or, failing that, the latest raw source: stripping an already-derived
// variant would compound artifacts.
type removeBackgroundHandler struct {
	deps *Deps
}

func (h *removeBackgroundHandler) Start(ctx context.Context, job *domain.Job) error {
	var input domain.RemoveBackgroundInput
	if err := job.DecodeInput(&input); err != nil {
		return fmt.Errorf("decode remove_background input: %w", err)
	}

	source, err := h.sourceAsset(ctx, job.ProductID, input.SelectedAssetID)
	if err != nil {
		return err
	}

	pred, err := h.deps.Predictions.Create(ctx, h.deps.ModelNames.RemoveBackground, map[string]any{
		"image": source.URL,
	})
	if err != nil {
		return fmt.Errorf("start background removal: %w", err)
	}
	job.ExternalPredictionID = pred.ID
	job.Status = domain.JobStatusRunning
	return nil
}

func (h *removeBackgroundHandler) Check(ctx context.Context, job *domain.Job) error {
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
	return h.deps.finishAssetJob(ctx, job, pred, domain.AssetKindNoBG, "", map[string]any{
		"provider_model": h.deps.ModelNames.RemoveBackground,
	})
}

func (h *removeBackgroundHandler) sourceAsset(ctx context.Context, productID, selectedID string) (*domain.Asset, error) {
	if selectedID != "" {
		asset, err := h.deps.Assets.GetByID(ctx, selectedID)
		if err == nil {
			return asset, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("resolve selected asset %s: %w", selectedID, err)
		}
	}
	asset, err := h.deps.Assets.LatestByProductAndKind(ctx, productID, domain.AssetKindSource)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("product %s: %w", productID, resolve.ErrNoSource)
		}
		return nil, err
	}
	return asset, nil
}
