// Package catalog provides the product store backing the storefront.
package catalog

import "context"

// Product is a catalog item available for negotiation. OriginalPrice, when
// set, is the pre-markdown price shown struck through in the storefront.
type Product struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	ListPrice     float64  `json:"list_price"`
	OriginalPrice *float64 `json:"original_price,omitempty"`
}

// Catalog defines read access to the product store.
type Catalog interface {
	// ListProducts returns all products in insertion order.
	ListProducts(ctx context.Context) ([]Product, error)

	// GetProduct retrieves a product by ID. Returns nil when not found.
	GetProduct(ctx context.Context, id string) (*Product, error)

	// Ping verifies store connectivity.
	Ping(ctx context.Context) error

	// Close closes the underlying store.
	Close() error
}
