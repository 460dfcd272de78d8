package domain

import "time"

// Product is the storefront entity jobs and assets hang off. The orchestrator
// only reads it: the slug feeds the storage path convention and ProductType
// gates ghost-mannequin support.
type Product struct {
	ID          string
	Name        string
	Slug        string
	ProductType string
	CreatedAt   time.Time
}
