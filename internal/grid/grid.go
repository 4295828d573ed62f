// Package grid reads pricing grid dumps (the embedded JSON seed and CSV
// exports) and turns them into validated pricing tiers.
package grid

import (
	"fmt"
	"slices"

	"github.com/go-faster/errors"

	"github.com/xenking/printshop/internal/domain/cart"
	"github.com/xenking/printshop/internal/domain/pricing"
)

// Row is one tier as it appears in a dump. Empty option strings are NULL.
type Row struct {
	ProductKind     string
	Impression      string
	BulletinFormat  string
	AfficheFormat   string
	Seq             int
	BlockSize       int
	BlockPriceCents int64
	MaxApplications *int
}

// Signature returns the row's option tuple.
func (r Row) Signature() cart.Signature {
	return cart.Signature{
		Kind:           cart.ProductKind(r.ProductKind),
		Impression:     cart.Impression(r.Impression),
		BulletinFormat: cart.BulletinFormat(r.BulletinFormat),
		AfficheFormat:  cart.AfficheFormat(r.AfficheFormat),
	}
}

// Key identifies the (signature, seq) slot the row occupies.
func (r Row) Key() string {
	return fmt.Sprintf("%s|%d", r.Signature().Key(), r.Seq)
}

// Tier converts the row into an active tier. The signature must describe a
// sellable item: known kind, options valid for it, no cross-kind options.
func (r Row) Tier() (pricing.Tier, error) {
	sig := r.Signature()
	item, err := cart.FromSignature(sig, 1)
	if err != nil {
		return pricing.Tier{}, err
	}
	if err := item.Validate(); err != nil {
		return pricing.Tier{}, errors.Wrapf(err, "signature %s", sig)
	}
	return pricing.Tier{
		Signature:       sig,
		Seq:             r.Seq,
		BlockSize:       r.BlockSize,
		BlockPriceCents: r.BlockPriceCents,
		MaxApplications: r.MaxApplications,
		IsActive:        true,
	}, nil
}

// DuplicateTierError is returned when two rows share a signature and seq.
type DuplicateTierError struct {
	Signature cart.Signature
	Seq       int
}

func (e *DuplicateTierError) Error() string {
	return fmt.Sprintf("duplicate tier %s seq %d", e.Signature, e.Seq)
}

// Tiers converts rows into tiers and validates every signature's grid as a
// whole. The result is grouped by signature in first-seen order, each group
// ordered by seq.
func Tiers(rows []Row) ([]pricing.Tier, error) {
	var (
		order  []string
		groups = make(map[string][]pricing.Tier)
		seen   = make(map[string]struct{}, len(rows))
	)
	for i, r := range rows {
		t, err := r.Tier()
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i+1)
		}
		if _, ok := seen[r.Key()]; ok {
			return nil, &DuplicateTierError{Signature: t.Signature, Seq: t.Seq}
		}
		seen[r.Key()] = struct{}{}

		k := t.Signature.Key()
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], t)
	}

	out := make([]pricing.Tier, 0, len(rows))
	for _, k := range order {
		g := groups[k]
		slices.SortFunc(g, func(a, b pricing.Tier) int { return a.Seq - b.Seq })
		if err := pricing.ValidateGrid(g[0].Signature, g); err != nil {
			return nil, err
		}
		out = append(out, g...)
	}
	return out, nil
}
