package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"inkforge/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository backed by PostgreSQL.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

const jobColumns = `id, product_id, user_id, type, status, input_json, output_json, external_prediction_id, error_message, created_at, updated_at`

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	query := `
INSERT INTO jobs (id, product_id, user_id, type, status, input_json, output_json, external_prediction_id, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.ProductID,
		job.UserID,
		job.Type,
		job.Status,
		nullableBytes(job.InputJSON),
		nullableBytes(job.OutputJSON),
		nullableString(job.ExternalPredictionID),
		job.ErrorMessage,
	)
	return err
}

// ListQueued returns up to limit queued jobs, oldest first.
func (r *JobRepositoryPG) ListQueued(ctx context.Context, limit int) ([]domain.Job, error) {
	query := `
SELECT ` + jobColumns + `
FROM jobs
WHERE status = 'queued'
ORDER BY created_at ASC
LIMIT $1;
`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// ListRunningWithPrediction returns running jobs with an outstanding
// external prediction, oldest first.
func (r *JobRepositoryPG) ListRunningWithPrediction(ctx context.Context) ([]domain.Job, error) {
	query := `
SELECT ` + jobColumns + `
FROM jobs
WHERE status = 'running' AND external_prediction_id IS NOT NULL
ORDER BY created_at ASC;
`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1;`
	job, err := scanJob(r.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// LatestByProductAndType returns the most recent job of the given type for
// the product.
func (r *JobRepositoryPG) LatestByProductAndType(ctx context.Context, productID string, t domain.JobType) (*domain.Job, error) {
	query := `
SELECT ` + jobColumns + `
FROM jobs
WHERE product_id = $1 AND type = $2
ORDER BY created_at DESC
LIMIT 1;
`
	job, err := scanJob(r.pool.QueryRow(ctx, query, productID, t))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// ListByProduct returns all jobs for a product, oldest first.
func (r *JobRepositoryPG) ListByProduct(ctx context.Context, productID string) ([]domain.Job, error) {
	query := `
SELECT ` + jobColumns + `
FROM jobs
WHERE product_id = $1
ORDER BY created_at ASC;
`
	rows, err := r.pool.Query(ctx, query, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// Update persists status, payloads, prediction id, and error message.
func (r *JobRepositoryPG) Update(ctx context.Context, job *domain.Job) error {
	query := `
UPDATE jobs
SET status = $2,
    input_json = $3,
    output_json = $4,
    external_prediction_id = $5,
    error_message = $6,
    updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.Status,
		nullableBytes(job.InputJSON),
		nullableBytes(job.OutputJSON),
		nullableString(job.ExternalPredictionID),
		job.ErrorMessage,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var job domain.Job
	var predictionID *string
	if err := row.Scan(
		&job.ID,
		&job.ProductID,
		&job.UserID,
		&job.Type,
		&job.Status,
		&job.InputJSON,
		&job.OutputJSON,
		&predictionID,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if predictionID != nil {
		job.ExternalPredictionID = *predictionID
	}
	return &job, nil
}

func scanJobs(rows pgx.Rows) ([]domain.Job, error) {
	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
