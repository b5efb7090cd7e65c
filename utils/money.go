package utils

import "github.com/shopspring/decimal"

// PlatformFeeCents computes the platform's cut of a gross amount at the given
// percentage. All arithmetic is integer cents; the division truncates toward
// zero so the mentor never earns a fractional cent more than the split allows.
func PlatformFeeCents(totalCents int64, feePercent int) int64 {
	if totalCents <= 0 || feePercent <= 0 {
		return 0
	}
	return totalCents * int64(feePercent) / 100
}

// FormatCents renders integer cents as a dollar string for emails and exports,
// e.g. 9000 -> "90.00".
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
