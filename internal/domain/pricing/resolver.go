package pricing

import (
	"slices"

	"github.com/xenking/printshop/internal/domain/cart"
)

// ResolveTiers selects the active tiers matching the item's signature exactly
// and returns them ordered by Seq. It fails with *NoPricingFoundError when
// nothing matches.
func ResolveTiers(item cart.Item, all []Tier) ([]Tier, error) {
	return ResolveSignature(item.Signature(), all)
}

// ResolveSignature is ResolveTiers for an already extracted signature.
func ResolveSignature(sig cart.Signature, all []Tier) ([]Tier, error) {
	var out []Tier
	for _, t := range all {
		if t.IsActive && t.Signature == sig {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, &NoPricingFoundError{Signature: sig}
	}

	slices.SortStableFunc(out, func(a, b Tier) int {
		return a.Seq - b.Seq
	})
	return out, nil
}
