package product

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParsePrice converts a scraped price string into a decimal. It strips
// currency symbols and whitespace and understands the marketplace's pt-BR
// formatting ("1.234,56") as well as plain dotted decimals ("1234.56").
// The second return value is false when the text does not parse; callers
// treat that as an absent price, never as zero.
func ParsePrice(text string) (decimal.Decimal, bool) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.ReplaceAll(cleaned, "R$", "")
	cleaned = strings.ReplaceAll(cleaned, "$", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return decimal.Decimal{}, false
	}

	hasComma := strings.Contains(cleaned, ",")
	hasDot := strings.Contains(cleaned, ".")
	switch {
	case hasComma && hasDot:
		// Brazilian format: dots are thousands separators.
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	case hasComma:
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil || d.IsNegative() {
		return decimal.Decimal{}, false
	}
	return d, true
}
