// Package format renders amounts for storefront display.
package format

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var symbols = map[string]string{
	"eur": "€",
	"usd": "$",
	"gbp": "£",
	"chf": "CHF",
}

// Money formats an amount in cents the French way, e.g. 1234 "eur" ->
// "12,34 €". Unknown currencies are suffixed with their upper-cased code.
func Money(cents int64, currency string) string {
	return MoneyIn(language.French, cents, currency)
}

// MoneyIn formats an amount in cents for the given locale.
func MoneyIn(tag language.Tag, cents int64, currency string) string {
	p := message.NewPrinter(tag)
	amount := p.Sprint(number.Decimal(float64(cents)/100,
		number.MinFractionDigits(2),
		number.MaxFractionDigits(2),
	))

	code := strings.ToLower(currency)
	sym, ok := symbols[code]
	if !ok {
		sym = strings.ToUpper(code)
	}
	return amount + " " + sym
}
