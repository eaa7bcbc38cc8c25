// amounts on the external store are whole Rupiah rendered like "Rp150.000" or "Rp 1,250,000"

package order

import (
	"regexp"
	"strconv"
	"strings"
)

const currencyPrefix = "Rp"

var amountToken = regexp.MustCompile(`(?i)Rp\s*([\d.,]+)`)

// ParseAmount strips every non-digit and parses the rest as whole Rupiah.
func ParseAmount(token string) (int64, bool) {
	var b strings.Builder
	for _, r := range token {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// findAmount returns the first currency amount in line.
func findAmount(line string) (int64, bool) {
	m := amountToken.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	return ParseAmount(m[1])
}

// FormatRupiah renders 150000 as "Rp 150.000".
func FormatRupiah(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return sign + currencyPrefix + " " + b.String()
}
