package enums

import (
	"fmt"
	"strings"
)

// Currency is an ISO 4217 code accepted for quotes and payments.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyCAD Currency = "CAD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyAUD Currency = "AUD"
	CurrencyJPY Currency = "JPY"
)

var minorUnitsByCurrency = map[Currency]int32{
	CurrencyUSD: 2,
	CurrencyCAD: 2,
	CurrencyEUR: 2,
	CurrencyGBP: 2,
	CurrencyAUD: 2,
	CurrencyJPY: 0,
}

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}

// IsValid reports whether the currency is recognized.
func (c Currency) IsValid() bool {
	_, ok := minorUnitsByCurrency[c]
	return ok
}

// MinorUnits is the number of decimal places of the currency's smallest unit.
func (c Currency) MinorUnits() int32 {
	if units, ok := minorUnitsByCurrency[c]; ok {
		return units
	}
	return 2
}

// ParseCurrency converts a raw string into a Currency. Codes are case-insensitive.
func ParseCurrency(value string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(value)))
	if !c.IsValid() {
		return "", fmt.Errorf("invalid currency %q", value)
	}
	return c, nil
}
