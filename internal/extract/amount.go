package extract

import (
	"strings"

	"github.com/shopspring/decimal"
)

// AmountToken is the regex fragment for amount digits as payment apps
// print them: plain ("120.50"), comma-grouped thousands ("1,500.00"),
// dot-grouped thousands ("1.500,00"), and comma-decimal ("1500,00").
// The grouped alternatives come first so a separated number is consumed
// whole instead of being cut at its first separator.
const AmountToken = `(\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d{1,3}(?:\.\d{3})+(?:,\d{1,2})?|\d+(?:[.,]\d{1,2})?)`

// ParseAmount interprets the separators in digits matched by
// AmountToken. A trailing group of one or two digits after the last
// separator is the decimal part; every other separator is a thousands
// grouping mark.
func ParseAmount(digits string) (decimal.Decimal, error) {
	intPart, frac := digits, ""
	if i := strings.LastIndexAny(digits, ".,"); i >= 0 && len(digits)-i-1 <= 2 {
		intPart, frac = digits[:i], digits[i+1:]
	}

	intPart = strings.Map(dropSeparator, intPart)
	if frac != "" {
		return decimal.NewFromString(intPart + "." + frac)
	}
	return decimal.NewFromString(intPart)
}

func dropSeparator(r rune) rune {
	if r == '.' || r == ',' {
		return -1
	}
	return r
}
