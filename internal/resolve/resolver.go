// Package resolve selects the best available source image for a product by a
// fixed priority order.
package resolve

import (
	"context"
	"errors"
	"fmt"

	"inkforge/internal/domain"
)

// ErrNoSource is a terminal, non-retryable failure: once upstream succeeded
// without producing a source asset, no prerequisite wait can fix it.
var ErrNoSource = errors.New("source asset not found")

// Resolver picks source images out of a product's existing assets.
type Resolver struct {
	assets domain.AssetRepository
}

func New(assets domain.AssetRepository) *Resolver {
	return &Resolver{assets: assets}
}

// SourceImage resolves the best source image for the product, first match
// wins: an explicit selected asset id, then the latest print-optimized (dtf)
// asset, then the background-removed (nobg) asset, then the latest raw
// source asset. The result is a pure function of current asset state.
func (r *Resolver) SourceImage(ctx context.Context, productID, selectedAssetID string) (*domain.Asset, error) {
	if selectedAssetID != "" {
		asset, err := r.assets.GetByID(ctx, selectedAssetID)
		if err == nil {
			return asset, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("resolve selected asset %s: %w", selectedAssetID, err)
		}
		// A dangling selection falls through to the kind ladder.
	}

	for _, kind := range []domain.AssetKind{domain.AssetKindDTF, domain.AssetKindNoBG, domain.AssetKindSource} {
		asset, err := r.assets.LatestByProductAndKind(ctx, productID, kind)
		if err == nil {
			return asset, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("resolve %s asset: %w", kind, err)
		}
	}

	return nil, fmt.Errorf("product %s: %w", productID, ErrNoSource)
}
