package order

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/printshop/internal/domain/cart"
	"github.com/xenking/printshop/internal/domain/pricing"
)

// ShippingPolicy is the flat threshold shipping rule: a fixed fee when the
// pre-tax subtotal is below the threshold.
type ShippingPolicy struct {
	Enabled        bool
	ThresholdCents int64
	FeeCents       int64
	// Taxable adds the shipping fee to the tax base.
	Taxable bool
}

// DefaultShipping is the storefront rule: 15 € below 100 €, taxed.
func DefaultShipping() ShippingPolicy {
	return ShippingPolicy{Enabled: true, ThresholdCents: 10000, FeeCents: 1500, Taxable: true}
}

// FeeFor returns the shipping fee for a subtotal.
func (p ShippingPolicy) FeeFor(subtotalCents int64) int64 {
	if !p.Enabled || subtotalCents >= p.ThresholdCents {
		return 0
	}
	return p.FeeCents
}

// Policy is the explicit pricing configuration for an order.
type Policy struct {
	Currency string
	TaxRate  decimal.Decimal
	Shipping ShippingPolicy
}

// PriceItem resolves and prices a single cart item.
func PriceItem(item cart.Item, all []pricing.Tier) (PricedItem, error) {
	tiers, err := pricing.ResolveTiers(item, all)
	if err != nil {
		return PricedItem{}, err
	}
	q, err := pricing.PriceQuantity(item.Signature(), item.Qty(), tiers)
	if err != nil {
		return PricedItem{}, err
	}
	return PricedItem{
		Item:              item,
		RequestedQuantity: q.RequestedQuantity,
		Quantity:          q.PricedQuantity,
		UnitPriceCents:    q.UnitPriceCents,
		TotalCents:        q.TotalCents,
		Breakdown:         q.Breakdown,
	}, nil
}

// PriceOrder prices every item against all and computes the order totals.
// It is a pure function of its inputs. A failure on any item fails the whole
// order; no partial result is returned.
//
// Tax is (subtotal [+ shipping]) * rate rounded to the nearest cent, halves
// away from zero.
func PriceOrder(items []cart.Item, all []pricing.Tier, p Policy) (*PricedOrder, error) {
	if len(items) == 0 {
		return nil, cart.ErrEmptyCart
	}

	priced := make([]PricedItem, len(items))
	var subtotal int64
	for i, item := range items {
		pi, err := PriceItem(item, all)
		if err != nil {
			return nil, errors.Wrapf(err, "price item %d", i)
		}
		priced[i] = pi
		subtotal += pi.TotalCents
	}

	shipping := p.Shipping.FeeFor(subtotal)
	base := subtotal
	if p.Shipping.Taxable {
		base += shipping
	}
	tax := ComputeTax(base, p.TaxRate)

	return &PricedOrder{
		Currency:        p.Currency,
		TaxRate:         p.TaxRate,
		SubtotalCents:   subtotal,
		ShippingCents:   shipping,
		TaxCents:        tax,
		GrandTotalCents: subtotal + shipping + tax,
		Items:           priced,
	}, nil
}

// ComputeTax returns round(baseCents * rate) in cents.
func ComputeTax(baseCents int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(baseCents).Mul(rate).Round(0).IntPart()
}
