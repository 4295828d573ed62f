package pricing

import (
	"math"

	"github.com/xenking/printshop/internal/domain/cart"
)

// Rounding is the quantity rounding policy of a product kind.
type Rounding int

const (
	// RoundNone bills the exact requested quantity.
	RoundNone Rounding = iota
	// RoundCeilToBlock rounds the requested quantity up to a multiple of the
	// smallest block size among the resolved tiers.
	RoundCeilToBlock
)

func (r Rounding) String() string {
	switch r {
	case RoundNone:
		return "none"
	case RoundCeilToBlock:
		return "ceil_to_block"
	default:
		return "unknown"
	}
}

// RoundingFor returns the rounding policy of a product kind. Batch goods are
// produced in fixed increments, posters are billed per unit. Kinds without a
// policy bill the exact quantity.
func RoundingFor(kind cart.ProductKind) Rounding {
	switch kind {
	case cart.ProfessionsDeFoi, cart.BulletinsDeVote:
		return RoundCeilToBlock
	case cart.Affiches:
		return RoundNone
	default:
		return RoundNone
	}
}

// Quote is the priced result for one quantity.
type Quote struct {
	RequestedQuantity int
	PricedQuantity    int
	TotalCents        int64
	// UnitPriceCents is round(TotalCents / PricedQuantity). It is a display
	// average, not the marginal price of any unit, and UnitPriceCents *
	// PricedQuantity may differ from TotalCents by a few cents. TotalCents is
	// authoritative.
	UnitPriceCents int64
	Breakdown      []BreakdownEntry
}

// PriceQuantity prices requestedQty units of sig against tiers, which must be
// the resolved grid for sig ordered by Seq.
func PriceQuantity(sig cart.Signature, requestedQty int, tiers []Tier) (Quote, error) {
	if requestedQty <= 0 || requestedQty > cart.MaxQuantity {
		return Quote{}, &cart.InvalidQuantityError{Kind: sig.Kind, Quantity: requestedQty}
	}
	if len(tiers) == 0 {
		return Quote{}, &NoPricingFoundError{Signature: sig}
	}
	if err := ValidateGrid(sig, tiers); err != nil {
		return Quote{}, err
	}

	priced := roundQuantity(RoundingFor(sig.Kind), requestedQty, tiers)
	if priced > math.MaxInt32 {
		return Quote{}, &InvalidGridError{Signature: sig, Reason: "rounded quantity out of range"}
	}

	var (
		remaining = int64(priced)
		total     int64
		breakdown = make([]BreakdownEntry, 0, len(tiers))
	)
	for _, t := range tiers {
		if remaining <= 0 {
			break
		}

		block := int64(t.BlockSize)
		needed := ceilDiv(remaining, block)
		apps := needed
		if t.MaxApplications != nil && int64(*t.MaxApplications) < apps {
			apps = int64(*t.MaxApplications)
		}
		if apps <= 0 {
			continue
		}

		covered := remaining
		if apps < needed {
			covered = apps * block
		}
		if t.BlockPriceCents > 0 && apps > (math.MaxInt64-total)/t.BlockPriceCents {
			return Quote{}, &InvalidGridError{Signature: sig, Seq: t.Seq, Reason: "line total overflows"}
		}
		line := apps * t.BlockPriceCents
		total += line

		breakdown = append(breakdown, BreakdownEntry{
			Seq:             t.Seq,
			Label:           BlockLabel(sig.Kind, t.Seq, t.BlockSize),
			BlockSize:       t.BlockSize,
			Applications:    int(apps),
			UnitsCovered:    int(covered),
			BlockPriceCents: t.BlockPriceCents,
			LineTotalCents:  line,
		})
		remaining -= covered
	}

	if remaining > 0 {
		return Quote{}, &IncompleteGridError{
			Signature:         sig,
			RequestedQuantity: requestedQty,
			PricedQuantity:    priced,
			Uncovered:         int(remaining),
		}
	}

	return Quote{
		RequestedQuantity: requestedQty,
		PricedQuantity:    priced,
		TotalCents:        total,
		UnitPriceCents:    roundDiv(total, int64(priced)),
		Breakdown:         breakdown,
	}, nil
}

// ValidateGrid checks the structural constraints of every tier of a grid.
func ValidateGrid(sig cart.Signature, tiers []Tier) error {
	for _, t := range tiers {
		switch {
		case t.BlockSize <= 0:
			return &InvalidGridError{Signature: sig, Seq: t.Seq, Reason: "block size must be positive"}
		case t.BlockPriceCents < 0:
			return &InvalidGridError{Signature: sig, Seq: t.Seq, Reason: "block price must not be negative"}
		case t.MaxApplications != nil && *t.MaxApplications < 0:
			return &InvalidGridError{Signature: sig, Seq: t.Seq, Reason: "max applications must not be negative"}
		}
	}
	return nil
}

// roundQuantity applies the rounding policy. Block sizes are already known to
// be positive.
func roundQuantity(policy Rounding, qty int, tiers []Tier) int {
	if policy != RoundCeilToBlock {
		return qty
	}
	minBlock := tiers[0].BlockSize
	for _, t := range tiers[1:] {
		minBlock = min(minBlock, t.BlockSize)
	}
	return int(ceilDiv(int64(qty), int64(minBlock))) * minBlock
}

// ceilDiv divides non-negative a by positive b, rounding up.
func ceilDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 {
		q++
	}
	return q
}

// roundDiv divides non-negative a by positive b, rounding half up.
func roundDiv(a, b int64) int64 {
	return (2*a + b) / (2 * b)
}
