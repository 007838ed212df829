// Package cli provides the command-line interface for the holdings tracker.
package cli

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"holdings-tracker/pkg/utils"
)

// DefaultTimeFormat is used when ui.time_format is empty.
const DefaultTimeFormat = "02-Jan-2006 15:04:05"

// placeholder stands in for missing figures.
const placeholder = "-"

// FormatIndianCurrency formats a number in Indian currency format (lakhs, crores).
func FormatIndianCurrency(amount float64) string {
	return utils.FormatIndianCurrency(amount)
}

// FormatRupees formats a decimal amount in Indian currency format.
func FormatRupees(amount decimal.Decimal) string {
	return utils.FormatRupees(amount)
}

// FormatGain formats a gain/loss amount with an explicit plus sign for gains.
func FormatGain(amount decimal.Decimal) string {
	formatted := utils.FormatRupees(amount)
	if amount.IsPositive() {
		return "+" + formatted
	}
	return formatted
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatWeight formats a portfolio weight without sign.
func FormatWeight(value float64) string {
	return fmt.Sprintf("%.2f%%", value)
}

// FormatOptionalFloat formats v with two decimals, or a dash when nil.
func FormatOptionalFloat(v *float64) string {
	if v == nil {
		return placeholder
	}
	return fmt.Sprintf("%.2f", *v)
}

// FormatOptionalString returns *s, or a dash when nil or empty.
func FormatOptionalString(s *string) string {
	if s == nil || *s == "" {
		return placeholder
	}
	return *s
}

// FormatQuantity formats a quantity with Indian numbering.
func FormatQuantity(qty int64) string {
	return utils.FormatQuantity(qty)
}

// FormatTime formats t in IST with layout, falling back to DefaultTimeFormat.
func FormatTime(t time.Time, layout string) string {
	if t.IsZero() {
		return placeholder
	}
	if layout == "" {
		layout = DefaultTimeFormat
	}
	return t.In(utils.IndiaLocation).Format(layout)
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
