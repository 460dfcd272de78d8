package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (a *App) ListProductAssets(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")
	assets, err := a.Assets.ListByProduct(r.Context(), productID)
	if err != nil {
		a.Logger.Error().Err(err).Str("product_id", productID).Msg("list assets failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load assets")
		return
	}
	items := make([]map[string]any, 0, len(assets))
	for _, asset := range assets {
		item := map[string]any{
			"id":            asset.ID,
			"kind":          asset.Kind,
			"role":          asset.Role,
			"path":          asset.Path,
			"url":           asset.URL,
			"width":         asset.Width,
			"height":        asset.Height,
			"is_primary":    asset.IsPrimary,
			"display_order": asset.DisplayOrder,
			"created_at":    asset.CreatedAt,
		}
		if len(asset.MetadataJSON) > 0 {
			item["metadata"] = json.RawMessage(asset.MetadataJSON)
		}
		items = append(items, item)
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}
