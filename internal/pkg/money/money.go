package money

import (
	"fmt"
	"strings"

	"giftsplit-backend/internal/pkg/apperr"
)

// Split divides totalCents into n shares that sum exactly to totalCents.
// Every share is totalCents/n; the first totalCents%n shares get one extra
// minor unit.
func Split(totalCents int64, n int) ([]int64, error) {
	if n <= 0 {
		return nil, apperr.Validation("Cannot split between zero participants")
	}
	if totalCents < 0 {
		return nil, apperr.Validation("Total amount must not be negative")
	}
	base := totalCents / int64(n)
	remainder := totalCents % int64(n)
	shares := make([]int64, n)
	for i := range shares {
		shares[i] = base
		if int64(i) < remainder {
			shares[i]++
		}
	}
	return shares, nil
}

// Format renders minor units for humans, e.g. "USD $10.00".
func Format(amountCents int64, currency string) string {
	sign := ""
	if amountCents < 0 {
		sign = "-"
		amountCents = -amountCents
	}
	return fmt.Sprintf("%s %s$%d.%02d", strings.ToUpper(currency), sign, amountCents/100, amountCents%100)
}
