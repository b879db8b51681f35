package payment

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// currencyExponents is the fixed allow-list of ISO 4217 codes and their minor-unit exponent.
var currencyExponents = map[string]int32{
	"USD": 2,
	"EUR": 2,
	"GBP": 2,
	"CAD": 2,
	"AUD": 2,
	"CHF": 2,
	"INR": 2,
	"BRL": 2,
	"JPY": 0,
	"KRW": 0,
}

// IsSupportedCurrency reports whether code is in the allow-list. Codes are case-sensitive.
func IsSupportedCurrency(code string) bool {
	_, ok := currencyExponents[code]
	return ok
}

// ToMajorUnits converts a minor-unit amount into its decimal major-unit value (4999 USD -> 49.99).
func ToMajorUnits(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -currencyExponents[currency])
}

// FromMajorUnits converts a decimal major-unit amount into minor units. Amounts with more
// precision than the currency allows are rejected rather than rounded.
func FromMajorUnits(major decimal.Decimal, currency string) (int64, error) {
	exp, ok := currencyExponents[currency]
	if !ok {
		return 0, fmt.Errorf("unsupported currency %q", currency)
	}
	shifted := major.Shift(exp)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more precision than %s allows", major.String(), currency)
	}
	return shifted.IntPart(), nil
}

// FormatAmount renders a minor-unit amount for display ("49.99 USD").
func FormatAmount(minor int64, currency string) string {
	return ToMajorUnits(minor, currency).StringFixed(currencyExponents[currency]) + " " + currency
}
