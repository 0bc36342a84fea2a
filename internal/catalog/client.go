// Package catalog provides the paginated, filterable product listing
// controller. Listings are sourced from the external catalog collaborator
// and cached through the typed store so that a fetch failure can serve
// stale-but-available data instead of a blank state.
package catalog

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrNetwork is returned by the collaborator when a fetch fails to reach it.
	ErrNetwork = errors.New("catalog unreachable")
	// ErrNotFound is returned by the collaborator when the requested listing does not exist.
	ErrNotFound = errors.New("catalog listing not found")
)

// Product is an immutable catalog entity. The collaborator owns it; this
// module only caches copies, and the cart embeds snapshots of it.
type Product struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Brand       string          `json:"brand"`
	Category    string          `json:"category"`
	Thumbnail   string          `json:"thumbnail"`
}

// FetchParams describes one page request against the collaborator.
type FetchParams struct {
	Offset      int
	Limit       int
	Category    string
	SearchQuery string
	BypassCache bool
}

// Client is the external catalog collaborator consumed by the Controller.
// Implementations fail with ErrNetwork or ErrNotFound.
type Client interface {
	// FetchProducts returns one page of products in a stable order.
	FetchProducts(ctx context.Context, params FetchParams) ([]Product, error)

	// FetchCategories returns the set of known category identifiers.
	FetchCategories(ctx context.Context) ([]string, error)
}
