// Package jobs holds the per-job-type state transition handlers driven by
// the dispatcher.
package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"inkforge/internal/domain"
	"inkforge/internal/ledger"
	"inkforge/internal/persist"
	"inkforge/internal/providers/dtf"
	"inkforge/internal/providers/imagesynth"
	"inkforge/internal/providers/model3d"
	"inkforge/internal/providers/predictions"
	"inkforge/internal/resolve"
)

// Handler advances one job type through its state machine. Start either does
// the work synchronously or records an external prediction and leaves the
// job running; Check polls an outstanding prediction. Handlers mutate the
// job in place; the dispatcher persists it afterwards.
type Handler interface {
	Start(ctx context.Context, job *domain.Job) error
	Check(ctx context.Context, job *domain.Job) error
}

// ErrDependencyNotReady signals the dispatcher to soft-requeue the job: set
// it back to queued without recording a failure, to be retried next tick.
var ErrDependencyNotReady = errors.New("dependency not ready")

// SkipError marks a job as skipped rather than failed, e.g. an unsupported
// product type for ghost-mannequin compositing.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	return "skipped: " + e.Reason
}

// ModelNames maps each externally-predicted task to its provider model id.
type ModelNames struct {
	RemoveBackground string
	Upscale          string
	Mockup           string
	GhostMannequin   string
	Concept          string
	Reconstruct      string
}

func DefaultModelNames() ModelNames {
	return ModelNames{
		RemoveBackground: "bg-eraser/rembg",
		Upscale:          "clarity/upscaler-4x",
		Mockup:           "mockupkit/garment-composite",
		GhostMannequin:   "mockupkit/ghost-mannequin",
		Concept:          "black-forest-labs/flux-dev",
		Reconstruct:      "mesh-anything/multiview-to-glb",
	}
}

// Deps bundles everything handlers need: repositories, the ledger, the
// resolver, the persister, and the external providers.
type Deps struct {
	Jobs        domain.JobRepository
	Assets      domain.AssetRepository
	Products    domain.ProductRepository
	Models3D    domain.Model3DRepository
	Ledger      *ledger.Service
	Resolver    *resolve.Resolver
	Persister   *persist.Persister
	Predictions predictions.Client
	Synth       imagesynth.Synthesizer
	DTF         dtf.Optimizer
	AngleViews  model3d.AngleRenderer
	Mesh        model3d.MeshConverter
	Catalog     []imagesynth.Model
	ModelNames  ModelNames
	Costs       ledger.Costs
	Log         zerolog.Logger
}

// Registry wires one handler per job type.
func Registry(d *Deps) map[domain.JobType]Handler {
	return map[domain.JobType]Handler{
		domain.JobTypeImageGenerate:      &imageGenerateHandler{d},
		domain.JobTypeRemoveBackground:   &removeBackgroundHandler{d},
		domain.JobTypeUpscale:            &upscaleHandler{d},
		domain.JobTypeCompositeMockup:    &compositeMockupHandler{d},
		domain.JobTypeGhostMannequin:     &ghostMannequinHandler{d},
		domain.JobTypeModel3DConcept:     &model3DConceptHandler{d},
		domain.JobTypeModel3DAngles:      &model3DAnglesHandler{d},
		domain.JobTypeModel3DReconstruct: &model3DReconstructHandler{d},
	}
}

// requireSucceeded checks the prerequisite job of the given type for the
// product. Missing, queued, running, or failed prerequisites all map to
// ErrDependencyNotReady; only a succeeded prerequisite lets the caller
// proceed.
func (d *Deps) requireSucceeded(ctx context.Context, productID string, t domain.JobType) error {
	prereq, err := d.Jobs.LatestByProductAndType(ctx, productID, t)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%s for product %s: %w", t, productID, ErrDependencyNotReady)
		}
		return fmt.Errorf("look up prerequisite %s: %w", t, err)
	}
	if prereq.Status != domain.JobStatusSucceeded {
		return fmt.Errorf("%s is %s: %w", t, prereq.Status, ErrDependencyNotReady)
	}
	return nil
}

func (d *Deps) product(ctx context.Context, productID string) (*domain.Product, error) {
	product, err := d.Products.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("load product %s: %w", productID, err)
	}
	return product, nil
}

// recordProgress merges a progress fragment into the job output and persists
// it immediately so pollers see intermediate state. Persist failures are
// logged, not fatal.
func (d *Deps) recordProgress(ctx context.Context, job *domain.Job, message string, step, total int) {
	if err := job.MergeOutput(map[string]any{
		"message":     message,
		"step":        step,
		"total_steps": total,
	}); err != nil {
		d.Log.Warn().Err(err).Str("job_id", job.ID).Msg("jobs: merge progress failed")
		return
	}
	if err := d.Jobs.Update(ctx, job); err != nil {
		d.Log.Warn().Err(err).Str("job_id", job.ID).Msg("jobs: persist progress failed")
	}
}

// refundOnce credits back a debit at most once per job. The refunded marker
// lives in the job output and is written in the same update cycle, so the
// single catch path can never double-credit.
func (d *Deps) refundOnce(ctx context.Context, job *domain.Job, userID string, amount int, cause string) {
	var flags struct {
		Refunded bool `json:"refunded"`
	}
	if err := job.DecodeOutput(&flags); err == nil && flags.Refunded {
		return
	}
	if err := d.Ledger.Refund(ctx, userID, amount, fmt.Sprintf("job:%s refund: %s", job.ID, cause)); err != nil {
		d.Log.Error().Err(err).Str("job_id", job.ID).Msg("jobs: refund failed")
		return
	}
	if err := job.MergeOutput(map[string]any{"refunded": true}); err != nil {
		d.Log.Warn().Err(err).Str("job_id", job.ID).Msg("jobs: mark refunded failed")
	}
}

// debitedAmount reads the amount recorded at debit time, falling back to the
// configured cost if the marker is missing.
func debitedAmount(job *domain.Job, fallback int) int {
	var marker struct {
		Debited int `json:"debited"`
	}
	if err := job.DecodeOutput(&marker); err == nil && marker.Debited > 0 {
		return marker.Debited
	}
	return fallback
}

// finishAssetJob runs the common tail of a single-asset check phase:
// normalize the prediction output, persist the asset, record the result
// payload, and mark the job succeeded.
func (d *Deps) finishAssetJob(ctx context.Context, job *domain.Job, pred *predictions.Prediction, kind domain.AssetKind, template string, metadata map[string]any) error {
	url, err := normalizeOutput(pred)
	if err != nil {
		return err
	}
	product, err := d.product(ctx, job.ProductID)
	if err != nil {
		return err
	}
	asset, err := d.Persister.Save(ctx, persist.SaveRequest{
		Product:   product,
		Kind:      kind,
		Template:  template,
		SourceURL: url,
		Metadata:  metadata,
	})
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
