package product

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestNewData(t *testing.T) {
	t.Parallel()

	t.Run("DiscountDerivation", func(t *testing.T) {
		orig := dec(t, "149.90")
		d, err := NewData("Tênis Esportivo", "https://http2.mlstatic.com/x.jpg", &orig, dec(t, "99.90"), "R$")
		require.NoError(t, err)
		require.NotNil(t, d.DiscountPercent)
		assert.Equal(t, "33.36", d.DiscountPercent.StringFixed(2))
		require.NotNil(t, d.OriginalPrice)
		assert.True(t, d.HasDiscount())
	})

	t.Run("NoOriginalPriceMeansNoDiscount", func(t *testing.T) {
		d, err := NewData("Produto", "", nil, dec(t, "10.00"), "R$")
		require.NoError(t, err)
		assert.Nil(t, d.OriginalPrice)
		assert.Nil(t, d.DiscountPercent)
		assert.False(t, d.HasDiscount())
	})

	t.Run("InflatedCurrentPriceDropsOriginal", func(t *testing.T) {
		// A negative discount must never be produced.
		orig := dec(t, "50.00")
		d, err := NewData("Produto", "", &orig, dec(t, "99.90"), "R$")
		require.NoError(t, err)
		assert.Nil(t, d.OriginalPrice)
		assert.Nil(t, d.DiscountPercent)
	})

	t.Run("EqualPricesKeepOriginalWithZeroDiscount", func(t *testing.T) {
		orig := dec(t, "99.90")
		d, err := NewData("Produto", "", &orig, dec(t, "99.90"), "R$")
		require.NoError(t, err)
		require.NotNil(t, d.OriginalPrice)
		require.NotNil(t, d.DiscountPercent)
		assert.True(t, d.DiscountPercent.IsZero())
		assert.False(t, d.HasDiscount())
	})

	t.Run("MissingTitle", func(t *testing.T) {
		_, err := NewData("  ", "", nil, dec(t, "10.00"), "R$")
		assert.Error(t, err)
	})

	t.Run("NonPositivePrice", func(t *testing.T) {
		_, err := NewData("Produto", "", nil, dec(t, "0"), "R$")
		assert.Error(t, err)
	})

	t.Run("DefaultCurrency", func(t *testing.T) {
		d, err := NewData("Produto", "", nil, dec(t, "10.00"), "")
		require.NoError(t, err)
		assert.Equal(t, "R$", d.Currency)
	})
}

func TestParsePrice(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"BrazilianThousands", "R$ 1.234,56", "1234.56", true},
		{"CommaDecimal", "99,90", "99.90", true},
		{"PlainDotted", "149.90", "149.90", true},
		{"NonBreakingSpace", "R$ 249,00", "249.00", true},
		{"Garbage", "Frete grátis", "", false},
		{"Empty", "  ", "", false},
		{"Negative", "-10,00", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParsePrice(tc.in)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, got.StringFixed(2))
			}
		})
	}
}

func TestFormatPrice(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "R$ 1.234,56", FormatPrice(dec(t, "1234.56"), "R$"))
	assert.Equal(t, "R$ 99,90", FormatPrice(dec(t, "99.9"), ""))
	assert.Equal(t, "R$ 1.000.000,00", FormatPrice(dec(t, "1000000"), "R$"))
}
