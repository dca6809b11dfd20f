package product

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Data holds the fields extracted for one product. It is created by the
// extraction layer and never mutated afterwards.
type Data struct {
	Title         string
	ImageURL      string
	OriginalPrice *decimal.Decimal
	CurrentPrice  decimal.Decimal
	// DiscountPercent is derived from the two prices at construction time.
	// It is nil whenever OriginalPrice is nil, never zero-by-default.
	DiscountPercent *decimal.Decimal
	Currency        string
}

var oneHundred = decimal.NewFromInt(100)

// NewData assembles product data and derives the discount. A current price
// greater than the claimed original price would yield a negative discount;
// such an original price is dropped rather than recorded. Equal prices keep
// the pair with a zero discount.
func NewData(title, imageURL string, original *decimal.Decimal, current decimal.Decimal, currency string) (Data, error) {
	if strings.TrimSpace(title) == "" {
		return Data{}, fmt.Errorf("product title is required")
	}
	if current.LessThanOrEqual(decimal.Zero) {
		return Data{}, fmt.Errorf("current price must be positive, got %s", current)
	}
	if currency == "" {
		currency = "R$"
	}
	d := Data{
		Title:        title,
		ImageURL:     imageURL,
		CurrentPrice: current,
		Currency:     currency,
	}
	if original != nil && original.GreaterThanOrEqual(current) {
		orig := *original
		pct := oneHundred.Mul(orig.Sub(current)).Div(orig).Round(2)
		d.OriginalPrice = &orig
		d.DiscountPercent = &pct
	}
	return d, nil
}

// HasDiscount reports whether a discount badge applies.
func (d Data) HasDiscount() bool {
	return d.DiscountPercent != nil && d.DiscountPercent.GreaterThan(decimal.Zero)
}

// FormatPrice renders a price in the marketplace's locale, e.g. "R$ 1.234,56".
func FormatPrice(p decimal.Decimal, currency string) string {
	if currency == "" {
		currency = "R$"
	}
	s := p.StringFixed(2) // "1234.56"
	intPart, fracPart, _ := strings.Cut(s, ".")
	neg := strings.HasPrefix(intPart, "-")
	intPart = strings.TrimPrefix(intPart, "-")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s %s%s,%s", currency, sign, b.String(), fracPart)
}
