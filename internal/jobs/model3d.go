package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"inkforge/internal/domain"
	"inkforge/internal/providers/model3d"
	"inkforge/internal/providers/predictions"
)

// The 3D pipeline (concept art -> multi-view angles -> mesh reconstruction)
// is the only paid path: each step debits the user's token balance before
// any generation call and refunds exactly once if the step fails afterwards.
// Failures are mirrored onto the Model3D record so UIs read them without
// joining against jobs.

// model3DConceptHandler generates the concept art the later steps build on.
type model3DConceptHandler struct {
	deps *Deps
}

func (h *model3DConceptHandler) Start(ctx context.Context, job *domain.Job) error {
	var input domain.Model3DInput
	if err := job.DecodeInput(&input); err != nil {
		return fmt.Errorf("decode model3d_concept input: %w", err)
	}
	if _, err := h.deps.Models3D.GetByID(ctx, input.ModelID); err != nil {
		return fmt.Errorf("load 3d model %s: %w", input.ModelID, err)
	}

	cost := h.deps.Costs.Concept
	if err := h.deps.Ledger.Debit(ctx, input.UserID, cost, "job:"+job.ID); err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			return h.failModel(ctx, input.ModelID, domain.ErrInsufficientBalance)
		}
		return err
	}
	if err := job.MergeOutput(map[string]any{"debited": cost}); err != nil {
		return err
	}

	pred, err := h.deps.Predictions.Create(ctx, h.deps.ModelNames.Concept, map[string]any{
		"prompt": input.Prompt,
		"style":  input.Style,
	})
	if err != nil {
		err = fmt.Errorf("start concept generation: %w", err)
		h.deps.refundOnce(ctx, job, input.UserID, cost, err.Error())
		return h.failModel(ctx, input.ModelID, err)
	}
	job.ExternalPredictionID = pred.ID
	job.Status = domain.JobStatusRunning
	return nil
}

func (h *model3DConceptHandler) Check(ctx context.Context, job *domain.Job) error {
	var input domain.Model3DInput
	if err := job.DecodeInput(&input); err != nil {
		return fmt.Errorf("decode model3d_concept input: %w", err)
	}
	pred, err := h.deps.Predictions.Get(ctx, job.ExternalPredictionID)
	if err != nil {
		h.deps.Log.Warn().Err(err).Str("job_id", job.ID).Msg("jobs: poll prediction failed")
		return nil
	}
	if !pred.Status.Terminal() {
		return nil
	}
	cost := debitedAmount(job, h.deps.Costs.Concept)
	if pred.Status != predictions.StatusSucceeded {
		err := providerError(pred)
		h.deps.refundOnce(ctx, job, input.UserID, cost, err.Error())
		return h.failModel(ctx, input.ModelID, err)
	}
	url, err := normalizeOutput(pred)
	if err != nil {
		h.deps.refundOnce(ctx, job, input.UserID, cost, err.Error())
		return h.failModel(ctx, input.ModelID, err)
	}

	model, err := h.deps.Models3D.GetByID(ctx, input.ModelID)
	if err != nil {
		return fmt.Errorf("load 3d model %s: %w", input.ModelID, err)
	}
	model.ConceptURL = url
	model.Status = domain.Model3DStatusConceptReady
	if err := h.deps.Models3D.Update(ctx, model); err != nil {
		return fmt.Errorf("update 3d model %s: %w", input.ModelID, err)
	}

	if err := job.MergeOutput(map[string]any{"concept_url": url}); err != nil {
		return err
	}
	job.ExternalPredictionID = ""
	job.Status = domain.JobStatusSucceeded
	return nil
}

func (h *model3DConceptHandler) failModel(ctx context.Context, modelID string, cause error) error {
	return failModel(ctx, h.deps, modelID, cause)
}

// model3DAnglesHandler renders the four reconstruction views from the
// concept image. The per-angle calls are synchronous, so the whole step
// settles during Start.
type model3DAnglesHandler struct {
	deps *Deps
}

func (h *model3DAnglesHandler) Start(ctx context.Context, job *domain.Job) error {
	var input domain.Model3DInput
	if err := job.DecodeInput(&input); err != nil {
		return fmt.Errorf("decode model3d_angles input: %w", err)
	}
	if err := h.deps.requireSucceeded(ctx, job.ProductID, domain.JobTypeModel3DConcept); err != nil {
		return err
	}

	model, err := h.deps.Models3D.GetByID(ctx, input.ModelID)
	if err != nil {
		return fmt.Errorf("load 3d model %s: %w", input.ModelID, err)
	}
	conceptURL := input.ConceptImageURL
	if conceptURL == "" {
		conceptURL = model.ConceptURL
	}
	if conceptURL == "" {
		return errors.New("concept image url missing")
	}

	cost := h.deps.Costs.Angles
	if err := h.deps.Ledger.Debit(ctx, input.UserID, cost, "job:"+job.ID); err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			return failModel(ctx, h.deps, input.ModelID, domain.ErrInsufficientBalance)
		}
		return err
	}
	if err := job.MergeOutput(map[string]any{"debited": cost}); err != nil {
		return err
	}

	angles := make(map[string]string, len(model3d.Angles))
	for i, angle := range model3d.Angles {
		h.deps.recordProgress(ctx, job, fmt.Sprintf("rendering %s view", angle), i+1, len(model3d.Angles))
		url, err := h.deps.AngleViews.RenderAngle(ctx, conceptURL, angle)
		if err != nil {
			err = fmt.Errorf("render %s view: %w", angle, err)
			h.deps.refundOnce(ctx, job, input.UserID, cost, err.Error())
			return failModel(ctx, h.deps, input.ModelID, err)
		}
		angles[angle] = url
	}

	anglesJSON, err := json.Marshal(angles)
	if err != nil {
		return err
	}
	model.AngleImagesJSON = anglesJSON
	model.Status = domain.Model3DStatusAnglesReady
	if err := h.deps.Models3D.Update(ctx, model); err != nil {
		return fmt.Errorf("update 3d model %s: %w", input.ModelID, err)
	}

	if err := job.MergeOutput(map[string]any{"angle_images": angles}); err != nil {
		return err
	}
	job.Status = domain.JobStatusSucceeded
	return nil
}

func (h *model3DAnglesHandler) Check(ctx context.Context, job *domain.Job) error {
	// Angle rendering settles during Start; nothing is ever outstanding.
	return nil
}

// model3DReconstructHandler turns the angle views into a printable mesh.
type model3DReconstructHandler struct {
	deps *Deps
}

func (h *model3DReconstructHandler) Start(ctx context.Context, job *domain.Job) error {
	var input domain.Model3DInput
	if err := job.DecodeInput(&input); err != nil {
		return fmt.Errorf("decode model3d_reconstruct input: %w", err)
	}
	if err := h.deps.requireSucceeded(ctx, job.ProductID, domain.JobTypeModel3DAngles); err != nil {
		return err
	}

	model, err := h.deps.Models3D.GetByID(ctx, input.ModelID)
	if err != nil {
		return fmt.Errorf("load 3d model %s: %w", input.ModelID, err)
	}
	angles := input.AngleImages
	if len(angles) == 0 && len(model.AngleImagesJSON) > 0 {
		if err := json.Unmarshal(model.AngleImagesJSON, &angles); err != nil {
			return fmt.Errorf("decode stored angle images: %w", err)
		}
	}
	if len(angles) < len(model3d.Angles) {
		return fmt.Errorf("need %d angle views, have %d", len(model3d.Angles), len(angles))
	}

	cost := h.deps.Costs.Reconstruct
	if err := h.deps.Ledger.Debit(ctx, input.UserID, cost, "job:"+job.ID); err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			return failModel(ctx, h.deps, input.ModelID, domain.ErrInsufficientBalance)
		}
		return err
	}
	if err := job.MergeOutput(map[string]any{"debited": cost}); err != nil {
		return err
	}

	images := make([]string, 0, len(model3d.Angles))
	for _, angle := range model3d.Angles {
		images = append(images, angles[angle])
	}
	pred, err := h.deps.Predictions.Create(ctx, h.deps.ModelNames.Reconstruct, map[string]any{
		"images": images,
	})
	if err != nil {
		err = fmt.Errorf("start mesh reconstruction: %w", err)
		h.deps.refundOnce(ctx, job, input.UserID, cost, err.Error())
		return failModel(ctx, h.deps, input.ModelID, err)
	}

	model.Status = domain.Model3DStatusReconstructing
	if err := h.deps.Models3D.Update(ctx, model); err != nil {
		h.deps.Log.Warn().Err(err).Str("model_id", input.ModelID).Msg("jobs: update 3d model failed")
	}
	job.ExternalPredictionID = pred.ID
	job.Status = domain.JobStatusRunning
	return nil
}

// reconstructOutput is the provider's terminal payload for mesh jobs.
type reconstructOutput struct {
	GLBUrl         string  `json:"glb_url"`
	TriangleCount  int     `json:"triangle_count"`
	ProcessingTime float64 `json:"processing_time"`
}

func (h *model3DReconstructHandler) Check(ctx context.Context, job *domain.Job) error {
	var input domain.Model3DInput
	if err := job.DecodeInput(&input); err != nil {
		return fmt.Errorf("decode model3d_reconstruct input: %w", err)
	}
	pred, err := h.deps.Predictions.Get(ctx, job.ExternalPredictionID)
	if err != nil {
		h.deps.Log.Warn().Err(err).Str("job_id", job.ID).Msg("jobs: poll prediction failed")
		return nil
	}
	if !pred.Status.Terminal() {
		return nil
	}
	cost := debitedAmount(job, h.deps.Costs.Reconstruct)
	if pred.Status != predictions.StatusSucceeded {
		err := providerError(pred)
		h.deps.refundOnce(ctx, job, input.UserID, cost, err.Error())
		return failModel(ctx, h.deps, input.ModelID, err)
	}

	var result reconstructOutput
	if len(pred.Output) > 0 {
		if err := json.Unmarshal(pred.Output, &result); err != nil {
			h.deps.Log.Warn().Err(err).Str("job_id", job.ID).Msg("jobs: decode reconstruction output failed")
		}
	}
	glbURL := result.GLBUrl
	if glbURL == "" {
		glbURL, err = normalizeOutput(pred)
		if err != nil {
			h.deps.refundOnce(ctx, job, input.UserID, cost, err.Error())
			return failModel(ctx, h.deps, input.ModelID, err)
		}
	}

	stlURL, err := h.deps.Mesh.ConvertSTL(ctx, glbURL)
	if err != nil {
		err = fmt.Errorf("convert stl: %w", err)
		h.deps.refundOnce(ctx, job, input.UserID, cost, err.Error())
		return failModel(ctx, h.deps, input.ModelID, err)
	}

	glbUpload, err := h.deps.Persister.SaveModelFile(ctx, input.ModelID, "mesh", glbURL, ".glb")
	if err != nil {
		h.deps.refundOnce(ctx, job, input.UserID, cost, err.Error())
		return failModel(ctx, h.deps, input.ModelID, err)
	}
	stlUpload, err := h.deps.Persister.SaveModelFile(ctx, input.ModelID, "mesh", stlURL, ".stl")
	if err != nil {
		h.deps.refundOnce(ctx, job, input.UserID, cost, err.Error())
		return failModel(ctx, h.deps, input.ModelID, err)
	}

	model, err := h.deps.Models3D.GetByID(ctx, input.ModelID)
	if err != nil {
		return fmt.Errorf("load 3d model %s: %w", input.ModelID, err)
	}
	model.GLBUrl = glbUpload.URL
	model.STLUrl = stlUpload.URL
	model.TriangleCount = result.TriangleCount
	model.ProcessingTimeSecs = result.ProcessingTime
	model.Status = domain.Model3DStatusCompleted
	if err := h.deps.Models3D.Update(ctx, model); err != nil {
		return fmt.Errorf("update 3d model %s: %w", input.ModelID, err)
	}

	if err := job.MergeOutput(map[string]any{
		"glb_url":         glbUpload.URL,
		"stl_url":         stlUpload.URL,
		"triangle_count":  result.TriangleCount,
		"processing_time": result.ProcessingTime,
	}); err != nil {
		return err
	}
	job.ExternalPredictionID = ""
	job.Status = domain.JobStatusSucceeded
	return nil
}

// failModel mirrors a terminal pipeline failure onto the Model3D record and
// returns the cause so the dispatcher fails the job with the same message.
func failModel(ctx context.Context, d *Deps, modelID string, cause error) error {
	if err := d.Models3D.SetFailure(ctx, modelID, cause.Error()); err != nil {
		d.Log.Error().Err(err).Str("model_id", modelID).Msg("jobs: mirror failure onto 3d model failed")
	}
	return cause
}
