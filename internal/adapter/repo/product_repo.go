package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"inkforge/internal/domain"
)

// ProductRepositoryPG implements domain.ProductRepository backed by PostgreSQL.
type ProductRepositoryPG struct {
	pool *pgxpool.Pool
}

func NewProductRepository(pool *pgxpool.Pool) *ProductRepositoryPG {
	return &ProductRepositoryPG{pool: pool}
}

// GetByID fetches a product by its identifier.
func (r *ProductRepositoryPG) GetByID(ctx context.Context, productID string) (*domain.Product, error) {
	query := `SELECT id, name, slug, product_type, created_at FROM products WHERE id = $1;`

	var product domain.Product
	err := r.pool.QueryRow(ctx, query, productID).Scan(
		&product.ID,
		&product.Name,
		&product.Slug,
		&product.ProductType,
		&product.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

var _ domain.ProductRepository = (*ProductRepositoryPG)(nil)
