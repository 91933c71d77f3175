package money

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ffe-procurement/pkg/enums"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestRoundHalfAwayFromZero(t *testing.T) {
	cases := []struct {
		in       string
		currency enums.Currency
		want     string
	}{
		{"1.005", enums.CurrencyUSD, "1.01"},
		{"1.004", enums.CurrencyUSD, "1.00"},
		{"-1.005", enums.CurrencyUSD, "-1.01"},
		{"99.5", enums.CurrencyJPY, "100"},
	}
	for _, tc := range cases {
		if got := Round(d(tc.in), tc.currency); !got.Equal(d(tc.want)) {
			t.Fatalf("Round(%s,%s)=%s want %s", tc.in, tc.currency, got, tc.want)
		}
	}
}

func TestMinorUnitAndWholeness(t *testing.T) {
	if !MinorUnit(enums.CurrencyUSD).Equal(d("0.01")) {
		t.Fatalf("unexpected USD minor unit %s", MinorUnit(enums.CurrencyUSD))
	}
	if !MinorUnit(enums.CurrencyJPY).Equal(d("1")) {
		t.Fatalf("unexpected JPY minor unit %s", MinorUnit(enums.CurrencyJPY))
	}
	if IsWholeMinorUnits(d("10.005"), enums.CurrencyUSD) {
		t.Fatalf("10.005 has sub-cent precision")
	}
	if !IsWholeMinorUnits(d("10.50"), enums.CurrencyUSD) {
		t.Fatalf("10.50 is whole cents")
	}
}

func TestApplyMarkup(t *testing.T) {
	if got := ApplyMarkup(d("150"), d("35"), enums.CurrencyUSD); !got.Equal(d("202.50")) {
		t.Fatalf("expected 202.50, got %s", got)
	}
	if got := ApplyMarkup(d("33.33"), d("0"), enums.CurrencyUSD); !got.Equal(d("33.33")) {
		t.Fatalf("zero markup must keep price, got %s", got)
	}
	if got := Sum(d("1.10"), d("2.20"), d("3.30")); !got.Equal(d("6.60")) {
		t.Fatalf("sum=%s", got)
	}
}
