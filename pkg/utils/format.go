// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// RupeeSymbol prefixes every formatted amount.
const RupeeSymbol = "₹"

// FormatRupees formats an amount in Indian grouping (lakhs, crores) with two
// decimal places, e.g. ₹12,34,567.80.
func FormatRupees(amount decimal.Decimal) string {
	negative := amount.IsNegative()
	str := amount.Abs().StringFixed(2)
	intPart, decPart, _ := strings.Cut(str, ".")

	result := RupeeSymbol + GroupIndian(intPart) + "." + decPart
	if negative {
		result = "-" + result
	}
	return result
}

// FormatIndianCurrency is FormatRupees for float amounts.
func FormatIndianCurrency(amount float64) string {
	return FormatRupees(decimal.NewFromFloat(amount))
}

// GroupIndian inserts separators into a string of digits using the Indian
// numbering system: last group of three, then groups of two.
func GroupIndian(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	// First group of 3 from right
	result := s[n-3:]
	s = s[:n-3]

	// Then groups of 2
	for len(s) > 0 {
		if len(s) >= 2 {
			result = s[len(s)-2:] + "," + result
			s = s[:len(s)-2]
		} else {
			result = s + "," + result
			s = ""
		}
	}

	return result
}

// FormatQuantity formats a quantity with Indian grouping.
func FormatQuantity(qty int64) string {
	if qty < 0 {
		return "-" + GroupIndian(fmt.Sprintf("%d", -qty))
	}
	return GroupIndian(fmt.Sprintf("%d", qty))
}

// FormatCompact formats an amount in compact form (L/Cr).
func FormatCompact(amount decimal.Decimal) string {
	abs := amount.Abs()
	switch {
	case abs.GreaterThanOrEqual(decimal.NewFromInt(10000000)):
		return amount.Div(decimal.NewFromInt(10000000)).StringFixed(2) + " Cr"
	case abs.GreaterThanOrEqual(decimal.NewFromInt(100000)):
		return amount.Div(decimal.NewFromInt(100000)).StringFixed(2) + " L"
	}
	return FormatRupees(amount)
}
