package domain

import "context"

// JobRepository defines persistence for job entities.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	// ListQueued returns up to limit queued jobs ordered by created_at asc.
	ListQueued(ctx context.Context, limit int) ([]Job, error)
	// ListRunningWithPrediction returns running jobs that have an outstanding
	// external prediction, ordered by created_at asc.
	ListRunningWithPrediction(ctx context.Context) ([]Job, error)
	GetByID(ctx context.Context, jobID string) (*Job, error)
	// LatestByProductAndType returns the most recent job of the given type
	// for the product, or ErrNotFound.
	LatestByProductAndType(ctx context.Context, productID string, t JobType) (*Job, error)
	ListByProduct(ctx context.Context, productID string) ([]Job, error)
	Update(ctx context.Context, job *Job) error
}

// AssetRepository handles persistence for generated assets.
type AssetRepository interface {
	Insert(ctx context.Context, asset *Asset) error
	GetByID(ctx context.Context, assetID string) (*Asset, error)
	// LatestByProductAndKind returns the most recent asset of the given kind
	// for the product, or ErrNotFound.
	LatestByProductAndKind(ctx context.Context, productID string, kind AssetKind) (*Asset, error)
	ListByProduct(ctx context.Context, productID string) ([]Asset, error)
	// ClearPrimary demotes any currently-primary asset of the product.
	ClearPrimary(ctx context.Context, productID string) error
}

// ProductRepository provides read access to products.
type ProductRepository interface {
	GetByID(ctx context.Context, productID string) (*Product, error)
}

// WalletRepository mutates token balances. DebitIfSufficient must be an
// atomic conditional decrement at the storage layer together with the signed
// transaction insert, so a concurrent spend can never double-pass the
// balance check.
type WalletRepository interface {
	Balance(ctx context.Context, userID string) (int, error)
	DebitIfSufficient(ctx context.Context, userID string, amount int, reference string) error
	Credit(ctx context.Context, userID string, amount int, reference string) error
	ListTransactions(ctx context.Context, userID string, limit int) ([]Transaction, error)
}

// Model3DRepository persists 3D model records the pipeline mirrors onto.
type Model3DRepository interface {
	GetByID(ctx context.Context, modelID string) (*Model3D, error)
	Update(ctx context.Context, model *Model3D) error
	// SetFailure records a terminal pipeline failure on the model record.
	SetFailure(ctx context.Context, modelID, message string) error
}
