package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatCurrency renders amount with two decimals and digit grouping.
// INR uses the lakh grouping: 1234567.5 -> "INR 12,34,567.50".
func FormatCurrency(amount decimal.Decimal, currency string) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}

	fixed := amount.StringFixed(2)
	parts := strings.SplitN(fixed, ".", 2)
	integer, fraction := parts[0], parts[1]

	var groups []string
	if currency == "INR" && len(integer) > 3 {
		groups = append(groups, integer[len(integer)-3:])
		integer = integer[:len(integer)-3]
		for len(integer) > 2 {
			groups = append([]string{integer[len(integer)-2:]}, groups...)
			integer = integer[:len(integer)-2]
		}
		groups = append([]string{integer}, groups...)
	} else {
		for len(integer) > 3 {
			groups = append([]string{integer[len(integer)-3:]}, groups...)
			integer = integer[:len(integer)-3]
		}
		groups = append([]string{integer}, groups...)
	}

	return currency + " " + sign + strings.Join(groups, ",") + "." + fraction
}
