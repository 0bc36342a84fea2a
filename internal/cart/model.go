// Package cart provides the shopping-cart aggregate: line items persisted
// through the typed store with merge-on-add semantics and a derived totals
// read model.
package cart

import (
	"time"

	"github.com/abgdnv/shopstate/internal/catalog"
	"github.com/shopspring/decimal"
)

// taxRate is the fixed rate applied to the subtotal.
var taxRate = decimal.RequireFromString("0.08")

// Item is one cart line. Product is an embedded snapshot, not a live
// reference: upstream price changes never retroactively alter a pending
// cart. Quantity is always >= 1 when persisted; a mutation that would drive
// it to zero or below removes the line instead.
type Item struct {
	ID       string          `json:"id"`
	Product  catalog.Product `json:"product"`
	Quantity int             `json:"quantity"`
	AddedAt  time.Time       `json:"added_at"`
}

// Cart is the derived read model: never stored directly, recomputed from the
// persisted item sequence on every read.
type Cart struct {
	Items      []Item          `json:"items"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax"`
	Total      decimal.Decimal `json:"total"`
	TotalItems int             `json:"total_items"`
}

// ComputeTotals derives the read model from an item sequence. Pure, no I/O:
// subtotal = Σ price×qty, tax = subtotal × rate, total = subtotal + tax,
// totalItems = Σ qty. An empty (or nil) sequence yields all-zero totals.
func ComputeTotals(items []Item) Cart {
	subtotal := decimal.Zero
	totalItems := 0
	for _, item := range items {
		qty := decimal.NewFromInt(int64(item.Quantity))
		subtotal = subtotal.Add(item.Product.Price.Mul(qty))
		totalItems += item.Quantity
	}
	tax := subtotal.Mul(taxRate)
	return Cart{
		Items:      items,
		Subtotal:   subtotal,
		Tax:        tax,
		Total:      subtotal.Add(tax),
		TotalItems: totalItems,
	}
}
