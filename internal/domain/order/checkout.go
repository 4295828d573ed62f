package order

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xenking/printshop/internal/domain/cart"
	"github.com/xenking/printshop/internal/domain/payment"
)

const (
	adjustmentLabel = "Ajustement d'arrondi"
	shippingLabel   = "Livraison"
)

// CheckoutLines converts a priced order into payment lines whose amounts sum
// to GrandTotalCents exactly.
//
// Item lines carry floor(total / quantity) so that no line is ever negative;
// the per-item remainders are collected into one adjustment line. Shipping and
// tax follow as their own lines.
func CheckoutLines(o *PricedOrder) []payment.Line {
	lines := make([]payment.Line, 0, len(o.Items)+3)

	var remainder int64
	for _, it := range o.Items {
		qty := int64(it.Quantity)
		unit := it.TotalCents / qty
		remainder += it.TotalCents - unit*qty

		lines = append(lines, payment.Line{
			Name:            cart.Label(it.Item),
			UnitAmountCents: unit,
			Quantity:        qty,
			Metadata:        map[string]string{"product_kind": string(it.Item.Kind())},
		})
	}

	if remainder > 0 {
		lines = append(lines, payment.Line{Name: adjustmentLabel, UnitAmountCents: remainder, Quantity: 1})
	}
	if o.ShippingCents > 0 {
		lines = append(lines, payment.Line{Name: shippingLabel, UnitAmountCents: o.ShippingCents, Quantity: 1})
	}
	if o.TaxCents > 0 {
		lines = append(lines, payment.Line{Name: TaxLabel(o.TaxRate), UnitAmountCents: o.TaxCents, Quantity: 1})
	}
	return lines
}

// TaxLabel renders a rate the French way, e.g. 0.055 -> "TVA 5,5 %".
func TaxLabel(rate decimal.Decimal) string {
	pct := rate.Mul(decimal.NewFromInt(100)).String()
	return "TVA " + strings.ReplaceAll(pct, ".", ",") + " %"
}
