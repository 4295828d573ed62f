// Package pricing resolves the tier grid of a cart item and prices a quantity
// against it.
package pricing

import (
	"context"

	"github.com/xenking/printshop/internal/domain/cart"
)

// Tier is one priced segment of a quantity curve for a single signature.
// Tiers of a signature are applied in ascending Seq order.
type Tier struct {
	ID              int64
	Signature       cart.Signature
	Seq             int
	BlockSize       int
	BlockPriceCents int64
	// MaxApplications caps how many times the tier applies. Nil is unbounded.
	MaxApplications *int
	IsActive        bool
}

// Unbounded reports whether the tier can be applied any number of times.
func (t Tier) Unbounded() bool {
	return t.MaxApplications == nil
}

// BreakdownEntry records one tier application against a priced quantity.
// Entries are persisted verbatim with the order so historical totals stay
// reproducible after grid changes.
type BreakdownEntry struct {
	Seq             int    `json:"seq"`
	Label           string `json:"label"`
	BlockSize       int    `json:"blockSize"`
	Applications    int    `json:"applications"`
	UnitsCovered    int    `json:"unitsCovered"`
	BlockPriceCents int64  `json:"blockPriceCents"`
	LineTotalCents  int64  `json:"lineTotalCents"`
}

// Repository is the rule lookup consumed by the order service. FindTiers
// returns the active tiers whose option fields match the signature exactly;
// an option absent from the signature only matches an absent option.
type Repository interface {
	FindTiers(ctx context.Context, sig cart.Signature) ([]Tier, error)
}

// FlatTiers expresses the "first N units for a base price, then a price per
// extra unit" model as a two-tier grid.
func FlatTiers(sig cart.Signature, firstN int, basePriceCents, perUnitExtraCents int64) []Tier {
	one := 1
	return []Tier{
		{Signature: sig, Seq: 1, BlockSize: firstN, BlockPriceCents: basePriceCents, MaxApplications: &one, IsActive: true},
		{Signature: sig, Seq: 2, BlockSize: 1, BlockPriceCents: perUnitExtraCents, IsActive: true},
	}
}
