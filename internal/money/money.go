// Package money converts catalog prices from USD into the INR display currency and
// renders them for the en-IN locale.
package money

import (
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// USDToINR is the fixed conversion multiplier applied to catalog prices.
const USDToINR = 83

// DisplayCurrency is the currency shown to shoppers.
var DisplayCurrency = currency.INR

var (
	displayLocale = language.MustParse("en-IN")
	printer       = message.NewPrinter(displayLocale)
)

// ToDisplay converts an amount in USD into the display currency.
func ToDisplay(usd float64) float64 {
	return usd * USDToINR
}

// Format renders an amount already in the display currency with its symbol and two decimals.
func Format(inr float64) string {
	if inr < 0 {
		return "-" + printer.Sprintf("%v%v", currency.Symbol(DisplayCurrency), number.Decimal(-inr, number.Scale(2)))
	}
	return printer.Sprintf("%v%v", currency.Symbol(DisplayCurrency), number.Decimal(inr, number.Scale(2)))
}

// FormatUSD converts and formats a base currency amount in one step.
func FormatUSD(usd float64) string {
	return Format(ToDisplay(usd))
}
