package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clicou/dealposter/internal/product"
)

func testRef(t *testing.T) product.Ref {
	t.Helper()
	ref, err := product.ParseRef("https://produto.mercadolivre.com.br/MLB-1234567890")
	require.NoError(t, err)
	return ref
}

const pdpFixture = `<!doctype html><html><head><title>x</title></head><body>
<h1 class="ui-pdp-title">Tênis Esportivo Masculino Corrida</h1>
<figure class="ui-pdp-gallery__figure">
  <img class="ui-pdp-image" src="//http2.mlstatic.com/D_NQ_NP_tenis-O.webp?size=big">
</figure>
<div class="ui-pdp-price">
  <s class="ui-pdp-price__original">
    <span class="andes-money-amount">
      <span class="andes-money-amount__fraction">149</span><span class="andes-money-amount__cents">90</span>
    </span>
  </s>
  <div class="ui-pdp-price__second-line">
    <span class="andes-money-amount">
      <span class="andes-money-amount__fraction">99</span><span class="andes-money-amount__cents">90</span>
    </span>
  </div>
</div>
</body></html>`

const jsonLDFixture = `<!doctype html><html><head>
<script type="application/ld+json">
{"@type":"Product","name":"Fone Bluetooth Premium","image":["https://http2.mlstatic.com/fone.jpg"],
 "offers":{"price":249.9,"priceCurrency":"BRL"}}
</script>
</head><body><div id="root"></div></body></html>`

const emptyShellFixture = `<!doctype html><html><head><title>Carregando...</title></head>
<body><div id="root"></div><script src="/bundle.js"></script></body></html>`

func TestParseProductHTML(t *testing.T) {
	t.Parallel()

	t.Run("StructuralSelectors", func(t *testing.T) {
		data, ok, err := parseProductHTML([]byte(pdpFixture), testRef(t))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Tênis Esportivo Masculino Corrida", data.Title)
		assert.Equal(t, "https://http2.mlstatic.com/D_NQ_NP_tenis-O.webp", data.ImageURL)
		assert.Equal(t, "99.90", data.CurrentPrice.StringFixed(2))
		require.NotNil(t, data.OriginalPrice)
		assert.Equal(t, "149.90", data.OriginalPrice.StringFixed(2))
		require.NotNil(t, data.DiscountPercent)
		assert.Equal(t, "33.36", data.DiscountPercent.StringFixed(2))
	})

	t.Run("JSONLDBlock", func(t *testing.T) {
		data, ok, err := parseProductHTML([]byte(jsonLDFixture), testRef(t))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Fone Bluetooth Premium", data.Title)
		assert.Equal(t, "https://http2.mlstatic.com/fone.jpg", data.ImageURL)
		assert.Equal(t, "249.90", data.CurrentPrice.StringFixed(2))
		assert.Nil(t, data.OriginalPrice)
		assert.Nil(t, data.DiscountPercent)
		assert.Equal(t, "R$", data.Currency)
	})

	t.Run("JSONLDSplitProductAndOfferBlocks", func(t *testing.T) {
		// Some pages ship the Product metadata and the Offer in separate
		// blocks; the offer-only block must not erase earlier fields.
		html := `<!doctype html><html><head>
<script type="application/ld+json">
{"@type":"Product","name":"Fone Bluetooth Premium","image":["https://http2.mlstatic.com/fone.jpg"]}
</script>
<script type="application/ld+json">
{"@type":"Product","offers":{"price":249.9,"priceCurrency":"BRL"}}
</script>
</head><body><div id="root"></div></body></html>`
		data, ok, err := parseProductHTML([]byte(html), testRef(t))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Fone Bluetooth Premium", data.Title)
		assert.Equal(t, "https://http2.mlstatic.com/fone.jpg", data.ImageURL)
		assert.Equal(t, "249.90", data.CurrentPrice.StringFixed(2))
	})

	t.Run("ScriptRenderedShellIsSoftFailure", func(t *testing.T) {
		_, ok, err := parseProductHTML([]byte(emptyShellFixture), testRef(t))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("OgMetaFallbacks", func(t *testing.T) {
		html := `<html><head>
<meta property="og:title" content="Cafeteira Elétrica 220v | Mercado Livre">
<meta property="og:image" content="//http2.mlstatic.com/cafeteira.jpg">
</head><body>
<span class="andes-money-amount__fraction">120</span>
</body></html>`
		data, ok, err := parseProductHTML([]byte(html), testRef(t))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Cafeteira Elétrica 220v", data.Title)
		assert.Equal(t, "https://http2.mlstatic.com/cafeteira.jpg", data.ImageURL)
		assert.Equal(t, "120.00", data.CurrentPrice.StringFixed(2))
	})
}

func TestExtractPriceFromText(t *testing.T) {
	t.Parallel()

	price := extractPriceFromText(`<div>de R$ 1.299,00 por menos</div>`)
	require.NotNil(t, price)
	assert.Equal(t, "1299.00", price.StringFixed(2))

	assert.Nil(t, extractPriceFromText("sem preço nenhum aqui"))
}

func TestParseWithFallbackPrice(t *testing.T) {
	t.Parallel()

	html := `<html><body><h1 class="ui-pdp-title">Mouse Gamer RGB Sem Fio</h1></body></html>`
	price := extractPriceFromText("R$ 89,90")
	require.NotNil(t, price)

	data, ok, err := parseWithFallbackPrice([]byte(html), *price)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Mouse Gamer RGB Sem Fio", data.Title)
	assert.Equal(t, "89.90", data.CurrentPrice.StringFixed(2))
}
