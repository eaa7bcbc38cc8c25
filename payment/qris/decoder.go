// decode EMVCo (QRIS) payloads: [tag:2][length:2][value:length]...
// this is an extractor, not a validator, so the CRC field (tag 63) is never checked

package qris

import (
	"math"
	"regexp"
	"strconv"

	"github.com/shopspring/decimal"
)

const (
	tagAmount         = "54"
	tagMerchantName   = "59"
	tagMerchantCity   = "60"
	tagAdditionalData = "62"

	subTagBillNumber     = "01"
	subTagReferenceLabel = "05"
)

var (
	amountPattern   = regexp.MustCompile(`^(\d+(\.\d+)?|\.\d+)$`)
	fallbackPattern = regexp.MustCompile(`54(\d{2})(\d+)`)

	maxWholeAmount = decimal.NewFromInt(math.MaxInt64)
)

type Decoded struct {
	Amount         *decimal.Decimal `json:"amount"`
	MerchantName   *string          `json:"merchant_name"`
	MerchantCity   *string          `json:"merchant_city"`
	TransactionRef *string          `json:"transaction_ref"`
	Raw            string           `json:"raw"`
}

type field struct {
	tag   string
	value string
}

// Decode never fails: whatever could be parsed before the first malformed
// field is returned, and Raw always holds the input unchanged.
func Decode(raw string) Decoded {
	result := Decoded{Raw: raw}
	hasAmountTag := false

	for _, f := range scan(raw) {
		switch f.tag {
		case tagAmount:
			hasAmountTag = true
			result.Amount = parseAmount(f.value)
		case tagMerchantName:
			v := f.value
			result.MerchantName = &v
		case tagMerchantCity:
			v := f.value
			result.MerchantCity = &v
		case tagAdditionalData:
			result.TransactionRef = transactionRef(f.value)
		}
	}

	// some generators emit the amount outside a well formed field
	if !hasAmountTag {
		result.Amount = fallbackAmount(raw)
	}

	return result
}

// WholeAmount returns the amount rounded to whole Rupiah. Amounts that do not
// fit an int64 are reported as absent.
func (d Decoded) WholeAmount() (int64, bool) {
	if d.Amount == nil {
		return 0, false
	}
	whole := d.Amount.Round(0)
	if whole.GreaterThan(maxWholeAmount) {
		return 0, false
	}
	return whole.IntPart(), true
}

// scan splits data into fields until the end of input or the first field
// whose length is not two decimal digits or whose value is truncated.
func scan(data string) []field {
	var fields []field
	index := 0
	for index < len(data) {
		if index+4 > len(data) {
			break
		}
		length, ok := parseLength(data[index+2 : index+4])
		if !ok {
			break
		}
		end := index + 4 + length
		if end > len(data) {
			break
		}
		fields = append(fields, field{tag: data[index : index+2], value: data[index+4 : end]})
		index = end
	}
	return fields
}

func parseLength(s string) (int, bool) {
	if len(s) != 2 || s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func transactionRef(template string) *string {
	for _, f := range scan(template) {
		if f.tag == subTagBillNumber || f.tag == subTagReferenceLabel {
			v := f.value
			return &v
		}
	}
	return nil
}

func parseAmount(s string) *decimal.Decimal {
	if !amountPattern.MatchString(s) {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}

func fallbackAmount(raw string) *decimal.Decimal {
	m := fallbackPattern.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	length, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	digits := m[2]
	if length < len(digits) {
		digits = digits[:length]
	}
	if digits == "" {
		return nil
	}
	return parseAmount(digits)
}
