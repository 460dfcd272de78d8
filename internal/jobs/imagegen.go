package jobs

import (
	"context"
	"errors"
	"fmt"

	"inkforge/internal/domain"
	"inkforge/internal/persist"
	"inkforge/internal/predict"
	"inkforge/internal/providers/imagesynth"
	"inkforge/internal/providers/predictions"
)

// imageGenerateHandler fans a single job out across several independent
// synthesis models. Synchronous models are processed inline during Start;
// asynchronous ones are polled during Check. The job succeeds once at least
// one sub-result succeeded and every sub-result reached a terminal state.
type imageGenerateHandler struct {
	deps *Deps
}

func (h *imageGenerateHandler) Start(ctx context.Context, job *domain.Job) error {
	var input domain.ImageGenerateInput
	if err := job.DecodeInput(&input); err != nil {
		return fmt.Errorf("decode image_generate input: %w", err)
	}
	models := h.selectModels(input.Models)
	if len(models) == 0 {
		return errors.New("no synthesis models selected")
	}
	req := imagesynth.Request{
		Prompt:         input.Prompt,
		ShirtColor:     input.ShirtColor,
		PrintStyle:     input.PrintStyle,
		ProductType:    input.ProductType,
		PrintPlacement: input.PrintPlacement,
	}

	outputs := make([]domain.ModelOutput, 0, len(models))
	for _, model := range models {
		out := domain.ModelOutput{
			ModelID:       model.ID,
			ModelName:     model.Name,
			IsSynchronous: model.Synchronous,
		}
		if model.Synchronous {
			h.runSynchronous(ctx, job, model, req, &out)
		} else {
			pred, err := h.deps.Predictions.Create(ctx, model.Version, req.Input())
			if err != nil {
				out.Status = domain.ModelOutputFailed
				out.Error = err.Error()
			} else {
				out.Status = domain.ModelOutputPending
				out.PredictionID = pred.ID
			}
		}
		outputs = append(outputs, out)
	}

	return h.writeState(job, outputs)
}

func (h *imageGenerateHandler) Check(ctx context.Context, job *domain.Job) error {
	var output domain.ImageGenerateOutput
	if err := job.DecodeOutput(&output); err != nil {
		return fmt.Errorf("decode image_generate output: %w", err)
	}

	// Legacy jobs carry a single bare prediction id.
	if !output.IsMultiModel {
		return h.checkLegacy(ctx, job)
	}

	for i := range output.Outputs {
		out := &output.Outputs[i]
		if out.Terminal() {
			continue
		}
		pred, err := h.deps.Predictions.Get(ctx, out.PredictionID)
		if err != nil {
			// Transient poll failure: leave the sub-result pending.
			h.deps.Log.Warn().Err(err).Str("job_id", job.ID).Str("model_id", out.ModelID).Msg("jobs: poll prediction failed")
			continue
		}
		if !pred.Status.Terminal() {
			continue
		}
		switch {
		case pred.Status == predictions.StatusSucceeded:
			url, err := predict.FirstURL(pred.Output)
			if err != nil {
				out.Status = domain.ModelOutputFailed
				out.Error = err.Error()
				continue
			}
			asset, err := h.persistDesign(ctx, job, out.ModelID, out.ModelName, url)
			if err != nil {
				out.Status = domain.ModelOutputFailed
				out.Error = err.Error()
				continue
			}
			out.Status = domain.ModelOutputSucceeded
			out.URL = asset.URL
		default:
			out.Status = domain.ModelOutputFailed
			out.Error = providerError(pred).Error()
		}
	}

	return h.writeState(job, output.Outputs)
}

// runSynchronous generates, normalizes, and persists one sync model's result,
// recording the outcome on the sub-result.
func (h *imageGenerateHandler) runSynchronous(ctx context.Context, job *domain.Job, model imagesynth.Model, req imagesynth.Request, out *domain.ModelOutput) {
	raw, err := h.deps.Synth.Generate(ctx, model, req)
	if err != nil {
		out.Status = domain.ModelOutputFailed
		out.Error = err.Error()
		return
	}
	url, err := predict.FirstURL(raw)
	if err != nil {
		out.Status = domain.ModelOutputFailed
		out.Error = err.Error()
		return
	}
	asset, err := h.persistDesign(ctx, job, model.ID, model.Name, url)
	if err != nil {
		out.Status = domain.ModelOutputFailed
		out.Error = err.Error()
		return
	}
	out.Status = domain.ModelOutputSucceeded
	out.URL = asset.URL
}

// persistDesign stores the generated design as a source asset and, when a
// DTF optimizer is configured, derives the print-optimized variant alongside
// it. A failed optimization is logged and does not fail the design.
func (h *imageGenerateHandler) persistDesign(ctx context.Context, job *domain.Job, modelID, modelName, url string) (*domain.Asset, error) {
	product, err := h.deps.product(ctx, job.ProductID)
	if err != nil {
		return nil, err
	}
	asset, err := h.deps.Persister.Save(ctx, persist.SaveRequest{
		Product:   product,
		Kind:      domain.AssetKindSource,
		SourceURL: url,
		Metadata:  map[string]any{"provider_model_id": modelID, "provider_model_name": modelName},
	})
	if err != nil {
		return nil, err
	}

	if h.deps.DTF != nil {
		dtfURL, err := h.deps.DTF.Optimize(ctx, asset.URL)
		if err != nil {
			h.deps.Log.Warn().Err(err).Str("job_id", job.ID).Str("model_id", modelID).Msg("jobs: dtf optimization failed")
		} else if _, err := h.deps.Persister.Save(ctx, persist.SaveRequest{
			Product:   product,
			Kind:      domain.AssetKindDTF,
			SourceURL: dtfURL,
			Metadata:  map[string]any{"provider_model_id": modelID, "derived_from": asset.ID},
		}); err != nil {
			h.deps.Log.Warn().Err(err).Str("job_id", job.ID).Msg("jobs: persist dtf asset failed")
		}
	}
	return asset, nil
}

// writeState records the sub-results and settles the parent job: running
// while any sub-result is pending, succeeded once at least one succeeded and
// all are terminal, failed when every model failed.
func (h *imageGenerateHandler) writeState(job *domain.Job, outputs []domain.ModelOutput) error {
	if err := job.MergeOutput(map[string]any{"isMultiModel": true, "outputs": outputs}); err != nil {
		return err
	}

	pending, succeeded := 0, 0
	for _, out := range outputs {
		switch out.Status {
		case domain.ModelOutputSucceeded:
			succeeded++
		case domain.ModelOutputFailed:
		default:
			pending++
		}
	}

	if pending > 0 {
		job.Status = domain.JobStatusRunning
		job.ExternalPredictionID = domain.MultiPredictionID
		return nil
	}
	job.ExternalPredictionID = ""
	if succeeded == 0 {
		return errors.New("all synthesis models failed")
	}
	job.Status = domain.JobStatusSucceeded
	return nil
}

func (h *imageGenerateHandler) checkLegacy(ctx context.Context, job *domain.Job) error {
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
	url, err := normalizeOutput(pred)
	if err != nil {
		return err
	}
	asset, err := h.persistDesign(ctx, job, "legacy", "legacy", url)
	if err != nil {
		return err
	}
	if err := job.MergeOutput(map[string]any{"url": asset.URL, "storage_path": asset.Path}); err != nil {
		return err
	}
	job.ExternalPredictionID = ""
	job.Status = domain.JobStatusSucceeded
	return nil
}

func (h *imageGenerateHandler) selectModels(requested []string) []imagesynth.Model {
	catalog := h.deps.Catalog
	if len(catalog) == 0 {
		catalog = imagesynth.DefaultCatalog()
	}
	if len(requested) == 0 {
		return catalog
	}
	byID := map[string]imagesynth.Model{}
	for _, m := range catalog {
		byID[m.ID] = m
	}
	var out []imagesynth.Model
	for _, id := range requested {
		if m, ok := byID[id]; ok {
			out = append(out, m)
		}
	}
	return out
}
