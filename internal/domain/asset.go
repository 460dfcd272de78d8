package domain

import "time"

// AssetKind enumerates generated artifact categories.
type AssetKind string

const (
	AssetKindSource   AssetKind = "source"
	AssetKindNoBG     AssetKind = "nobg"
	AssetKindDTF      AssetKind = "dtf"
	AssetKindUpscaled AssetKind = "upscaled"
	AssetKindMockup   AssetKind = "mockup"
)

// AssetRole describes how an asset is used in the product gallery.
type AssetRole string

const (
	AssetRoleDesign               AssetRole = "design"
	AssetRoleAuxiliary            AssetRole = "auxiliary"
	AssetRoleMockupFlatLay        AssetRole = "mockup_flat_lay"
	AssetRoleMockupMrImagine      AssetRole = "mockup_mr_imagine"
	AssetRoleMockupGhostMannequin AssetRole = "mockup_ghost_mannequin"
)

// Asset represents a stored generated artifact attached to a product. Rows
// are created once on job success and never mutated afterwards, except for
// demoting IsPrimary when a newer primary arrives.
type Asset struct {
	ID        string
	ProductID string
	Kind      AssetKind
	Role      AssetRole
	Path      string
	URL       string
	Width     int
	Height    int
	// At most one asset per product is primary at any time.
	IsPrimary    bool
	DisplayOrder int
	MetadataJSON []byte
	CreatedAt    time.Time
}
