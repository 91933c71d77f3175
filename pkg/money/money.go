// Package money holds the decimal rules used for prices and payments.
package money

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ffe-procurement/pkg/enums"
)

// Round rounds amount half away from zero to the currency's minor unit.
func Round(amount decimal.Decimal, currency enums.Currency) decimal.Decimal {
	return amount.Round(currency.MinorUnits())
}

// MinorUnit returns the smallest representable amount of the currency (0.01 for USD).
func MinorUnit(currency enums.Currency) decimal.Decimal {
	return decimal.New(1, -currency.MinorUnits())
}

// IsWholeMinorUnits reports whether amount has no precision beyond the currency's minor unit.
func IsWholeMinorUnits(amount decimal.Decimal, currency enums.Currency) bool {
	return amount.Equal(Round(amount, currency))
}

// ApplyMarkup returns amount increased by percent, rounded to the minor unit.
func ApplyMarkup(amount, percent decimal.Decimal, currency enums.Currency) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(percent.Div(decimal.NewFromInt(100)))
	return Round(amount.Mul(factor), currency)
}

// Sum adds amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
