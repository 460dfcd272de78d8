package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"inkforge/internal/domain"
)

// Model3DRepositoryPG implements domain.Model3DRepository backed by PostgreSQL.
type Model3DRepositoryPG struct {
	pool *pgxpool.Pool
}

func NewModel3DRepository(pool *pgxpool.Pool) *Model3DRepositoryPG {
	return &Model3DRepositoryPG{pool: pool}
}

const model3dColumns = `id, user_id, product_id, prompt, style, status, error_message, concept_url, angle_images_json, glb_url, stl_url, triangle_count, processing_time_secs, created_at, updated_at`

// GetByID fetches a 3D model record by its identifier.
func (r *Model3DRepositoryPG) GetByID(ctx context.Context, modelID string) (*domain.Model3D, error) {
	query := `SELECT ` + model3dColumns + ` FROM models_3d WHERE id = $1;`

	var model domain.Model3D
	err := r.pool.QueryRow(ctx, query, modelID).Scan(
		&model.ID,
		&model.UserID,
		&model.ProductID,
		&model.Prompt,
		&model.Style,
		&model.Status,
		&model.ErrorMessage,
		&model.ConceptURL,
		&model.AngleImagesJSON,
		&model.GLBUrl,
		&model.STLUrl,
		&model.TriangleCount,
		&model.ProcessingTimeSecs,
		&model.CreatedAt,
		&model.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &model, nil
}

// Update persists the mutable pipeline fields of the model record.
func (r *Model3DRepositoryPG) Update(ctx context.Context, model *domain.Model3D) error {
	query := `
UPDATE models_3d
SET status = $2,
    error_message = $3,
    concept_url = $4,
    angle_images_json = $5,
    glb_url = $6,
    stl_url = $7,
    triangle_count = $8,
    processing_time_secs = $9,
    updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query,
		model.ID,
		model.Status,
		model.ErrorMessage,
		model.ConceptURL,
		nullableBytes(model.AngleImagesJSON),
		model.GLBUrl,
		model.STLUrl,
		model.TriangleCount,
		model.ProcessingTimeSecs,
	)
	return err
}

// SetFailure records a terminal pipeline failure on the model record.
func (r *Model3DRepositoryPG) SetFailure(ctx context.Context, modelID, message string) error {
	query := `
UPDATE models_3d
SET status = $2, error_message = $3, updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, modelID, domain.Model3DStatusFailed, message)
	return err
}

var _ domain.Model3DRepository = (*Model3DRepositoryPG)(nil)
