package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"inkforge/internal/domain"
)

// AssetRepositoryPG implements domain.AssetRepository backed by PostgreSQL.
type AssetRepositoryPG struct {
	pool *pgxpool.Pool
}

func NewAssetRepository(pool *pgxpool.Pool) *AssetRepositoryPG {
	return &AssetRepositoryPG{pool: pool}
}

const assetColumns = `id, product_id, kind, role, path, url, width, height, is_primary, display_order, metadata_json, created_at`

// Insert stores a new asset row.
func (r *AssetRepositoryPG) Insert(ctx context.Context, asset *domain.Asset) error {
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	query := `
INSERT INTO assets (id, product_id, kind, role, path, url, width, height, is_primary, display_order, metadata_json)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
`
	_, err := r.pool.Exec(ctx, query,
		asset.ID,
		asset.ProductID,
		asset.Kind,
		asset.Role,
		asset.Path,
		asset.URL,
		asset.Width,
		asset.Height,
		asset.IsPrimary,
		asset.DisplayOrder,
		nullableBytes(asset.MetadataJSON),
	)
	return err
}

// GetByID fetches an asset by its identifier.
func (r *AssetRepositoryPG) GetByID(ctx context.Context, assetID string) (*domain.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = $1;`
	asset, err := scanAsset(r.pool.QueryRow(ctx, query, assetID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return asset, nil
}

// LatestByProductAndKind returns the most recent asset of the given kind.
func (r *AssetRepositoryPG) LatestByProductAndKind(ctx context.Context, productID string, kind domain.AssetKind) (*domain.Asset, error) {
	query := `
SELECT ` + assetColumns + `
FROM assets
WHERE product_id = $1 AND kind = $2
ORDER BY created_at DESC
LIMIT 1;
`
	asset, err := scanAsset(r.pool.QueryRow(ctx, query, productID, kind))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return asset, nil
}

// ListByProduct returns all assets for a product ordered for gallery display.
func (r *AssetRepositoryPG) ListByProduct(ctx context.Context, productID string) ([]domain.Asset, error) {
	query := `
SELECT ` + assetColumns + `
FROM assets
WHERE product_id = $1
ORDER BY display_order ASC, created_at ASC;
`
	rows, err := r.pool.Query(ctx, query, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []domain.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *asset)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assets, nil
}

// ClearPrimary demotes any currently-primary asset of the product.
func (r *AssetRepositoryPG) ClearPrimary(ctx context.Context, productID string) error {
	query := `UPDATE assets SET is_primary = FALSE WHERE product_id = $1 AND is_primary = TRUE;`
	_, err := r.pool.Exec(ctx, query, productID)
	return err
}

func scanAsset(row rowScanner) (*domain.Asset, error) {
	var asset domain.Asset
	if err := row.Scan(
		&asset.ID,
		&asset.ProductID,
		&asset.Kind,
		&asset.Role,
		&asset.Path,
		&asset.URL,
		&asset.Width,
		&asset.Height,
		&asset.IsPrimary,
		&asset.DisplayOrder,
		&asset.MetadataJSON,
		&asset.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &asset, nil
}

var _ domain.AssetRepository = (*AssetRepositoryPG)(nil)
