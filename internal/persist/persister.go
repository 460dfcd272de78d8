// Package persist uploads generated artifacts to blob storage under a
// deterministic path convention and records the matching asset row.
package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/rs/zerolog"

	"inkforge/internal/domain"
	"inkforge/internal/storage"
)

// placement fixes role, gallery order, and primary promotion per asset kind
// (and per mockup template).
type placement struct {
	subcategory  string
	role         domain.AssetRole
	displayOrder int
	isPrimary    bool
}

var kindPlacements = map[domain.AssetKind]placement{
	domain.AssetKindSource:   {subcategory: "originals", role: domain.AssetRoleDesign, displayOrder: 99},
	domain.AssetKindNoBG:     {subcategory: "transparents", role: domain.AssetRoleAuxiliary, displayOrder: 99},
	domain.AssetKindDTF:      {subcategory: "transfers", role: domain.AssetRoleAuxiliary, displayOrder: 99},
	domain.AssetKindUpscaled: {subcategory: "upscales", role: domain.AssetRoleAuxiliary, displayOrder: 99},
}

var mockupPlacements = map[string]placement{
	"mr_imagine":      {subcategory: "mockups/mr_imagine", role: domain.AssetRoleMockupMrImagine, displayOrder: 1, isPrimary: true},
	"flat_lay":        {subcategory: "mockups/flat_lay", role: domain.AssetRoleMockupFlatLay, displayOrder: 2},
	"ghost_mannequin": {subcategory: "mockups/ghost_mannequin", role: domain.AssetRoleMockupGhostMannequin, displayOrder: 3},
}

// Persister is the glue between a generated artifact and its stored form.
type Persister struct {
	blob    storage.BlobStore
	assets  domain.AssetRepository
	fetcher *http.Client
	log     zerolog.Logger
	now     func() time.Time
}

func New(blob storage.BlobStore, assets domain.AssetRepository, log zerolog.Logger) *Persister {
	return &Persister{
		blob:    blob,
		assets:  assets,
		fetcher: &http.Client{Timeout: 60 * time.Second},
		log:     log,
		now:     time.Now,
	}
}

// WithClock overrides the timestamp source, for deterministic paths in tests.
func (p *Persister) WithClock(now func() time.Time) *Persister {
	p.now = now
	return p
}

// WithFetcher overrides the HTTP client used to download remote artifacts.
func (p *Persister) WithFetcher(c *http.Client) *Persister {
	p.fetcher = c
	return p
}

// SaveRequest describes one artifact to persist. Exactly one of SourceURL or
// Data must be set; Template applies only to mockup kinds.
type SaveRequest struct {
	Product     *domain.Product
	Kind        domain.AssetKind
	Template    string
	SourceURL   string
	Data        []byte
	ContentType string
	Metadata    map[string]any
}

// Save uploads the artifact and inserts its asset row, demoting any prior
// primary first when the placement table promotes this one.
func (p *Persister) Save(ctx context.Context, req SaveRequest) (*domain.Asset, error) {
	if req.Product == nil {
		return nil, errors.New("persist: product is required")
	}
	place, discriminator, err := placementFor(req.Kind, req.Template)
	if err != nil {
		return nil, err
	}

	data := req.Data
	if len(data) == 0 {
		if req.SourceURL == "" {
			return nil, errors.New("persist: either source url or data is required")
		}
		data, err = p.fetch(ctx, req.SourceURL)
		if err != nil {
			return nil, err
		}
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	width, height := imageBounds(data)

	productSlug := req.Product.Slug
	if productSlug == "" {
		productSlug = slug.Make(req.Product.Name)
	}
	key := fmt.Sprintf("products/%s/%s/%s-%s-%d%s",
		productSlug, place.subcategory, productSlug, discriminator,
		p.now().UnixMilli(), extensionFor(contentType))

	upload, err := p.blob.Upload(ctx, key, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("persist: upload %s: %w", key, err)
	}
	p.log.Debug().Str("key", key).Str("kind", string(req.Kind)).Int("bytes", len(data)).Msg("persist: uploaded asset")

	metadata := map[string]any{}
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	if req.SourceURL != "" {
		metadata["source_url"] = req.SourceURL
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("persist: encode metadata: %w", err)
	}

	if place.isPrimary {
		if err := p.assets.ClearPrimary(ctx, req.Product.ID); err != nil {
			return nil, fmt.Errorf("persist: demote prior primary: %w", err)
		}
	}

	asset := &domain.Asset{
		ProductID:    req.Product.ID,
		Kind:         req.Kind,
		Role:         place.role,
		Path:         upload.Path,
		URL:          upload.URL,
		Width:        width,
		Height:       height,
		IsPrimary:    place.isPrimary,
		DisplayOrder: place.displayOrder,
		MetadataJSON: metadataJSON,
	}
	if err := p.assets.Insert(ctx, asset); err != nil {
		return nil, fmt.Errorf("persist: insert asset row: %w", err)
	}
	return asset, nil
}

// SaveModelFile uploads a 3D model artifact (glb/stl) under the model's own
// directory. No asset row is written; model files are tracked on the Model3D
// record.
func (p *Persister) SaveModelFile(ctx context.Context, modelID, discriminator, sourceURL, ext string) (storage.Upload, error) {
	data, err := p.fetch(ctx, sourceURL)
	if err != nil {
		return storage.Upload{}, err
	}
	key := fmt.Sprintf("models3d/%s/%s-%s-%d%s", modelID, modelID, discriminator, p.now().UnixMilli(), ext)
	upload, err := p.blob.Upload(ctx, key, data, "application/octet-stream")
	if err != nil {
		return storage.Upload{}, fmt.Errorf("persist: upload %s: %w", key, err)
	}
	return upload, nil
}

func (p *Persister) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("persist: build fetch request: %w", err)
	}
	resp, err := p.fetcher.Do(req)
	if err != nil {
		return nil, fmt.Errorf("persist: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("persist: fetch %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("persist: read %s: %w", url, err)
	}
	return data, nil
}

func placementFor(kind domain.AssetKind, template string) (placement, string, error) {
	if kind == domain.AssetKindMockup {
		place, ok := mockupPlacements[template]
		if !ok {
			return placement{}, "", fmt.Errorf("persist: unknown mockup template %q", template)
		}
		return place, template, nil
	}
	place, ok := kindPlacements[kind]
	if !ok {
		return placement{}, "", fmt.Errorf("persist: unknown asset kind %q", kind)
	}
	return place, string(kind), nil
}

func imageBounds(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

func extensionFor(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
