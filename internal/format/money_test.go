package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestMoney(t *testing.T) {
	tests := []struct {
		cents    int64
		currency string
		want     string
	}{
		{1234, "eur", "12,34 €"},
		{1500, "EUR", "15,00 €"},
		{5, "eur", "0,05 €"},
		{0, "eur", "0,00 €"},
		{990, "sek", "9,90 SEK"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Money(tt.cents, tt.currency))
	}
}

func TestMoneyIn_English(t *testing.T) {
	assert.Equal(t, "12.34 $", MoneyIn(language.English, 1234, "usd"))
}
