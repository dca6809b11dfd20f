package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/clicou/dealposter/internal/product"
)

// Selector lists mirror the marketplace's product-detail markup. The site
// renders the same components in both server and client output, so one set
// of selectors serves the static and the browser strategy.
var (
	titleSelectors = []string{
		"h1.ui-pdp-title",
		"h1[class*=title]",
		".ui-pdp-title",
		"[data-testid=title]",
		"h1",
	}
	priceSelectors = []string{
		".ui-pdp-price__second-line .andes-money-amount__fraction",
		".ui-pdp-price .andes-money-amount__fraction",
		".andes-money-amount__fraction",
		".price-tag-fraction",
	}
	originalPriceSelectors = []string{
		".ui-pdp-price__original .andes-money-amount__fraction",
		"s .andes-money-amount__fraction",
		"del .andes-money-amount__fraction",
	}
	imageSelectors = []string{
		"img.ui-pdp-image",
		"img[data-zoom]",
		".ui-pdp-gallery img",
		"figure.ui-pdp-gallery__figure img",
	}
)

var pricePattern = regexp.MustCompile(`R\$\s*(\d{1,3}(?:\.\d{3})*(?:,\d{2})?)`)

// fields holds raw extraction candidates before validation.
type fields struct {
	title    string
	imageURL string
	current  *decimal.Decimal
	original *decimal.Decimal
	currency string
}

func (f fields) complete() bool {
	return f.title != "" && f.current != nil
}

// parseProductHTML applies structural extraction to a page body. The bool
// result reports whether the required fields (title and current price) were
// found; absence is a soft failure, not an error.
func parseProductHTML(body []byte, ref product.Ref) (product.Data, bool, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return product.Data{}, false, NewError(ReasonParseFailure, fmt.Errorf("parse html: %w", err))
	}

	f := fieldsFromJSONLD(doc)
	if f.title == "" {
		f.title = extractTitle(doc)
	}
	if f.imageURL == "" {
		f.imageURL = extractImage(doc)
	}
	if f.current == nil {
		f.current = extractPrice(doc, priceSelectors)
	}
	if f.original == nil {
		f.original = extractPrice(doc, originalPriceSelectors)
	}
	if f.currency == "" {
		f.currency = "R$"
	}

	if !f.complete() {
		return product.Data{}, false, nil
	}

	data, err := product.NewData(f.title, f.imageURL, f.original, *f.current, f.currency)
	if err != nil {
		return product.Data{}, false, NewError(ReasonParseFailure, err)
	}
	return data, true, nil
}

// fieldsFromJSONLD reads schema.org Product blocks, the most stable source
// when the page ships them server-side.
func fieldsFromJSONLD(doc *goquery.Document) fields {
	var f fields
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var block struct {
			Type   string          `json:"@type"`
			Name   string          `json:"name"`
			Image  json.RawMessage `json:"image"`
			Offers json.RawMessage `json:"offers"`
		}
		if err := json.Unmarshal([]byte(s.Text()), &block); err != nil {
			return true
		}
		if block.Type != "Product" && block.Type != "Offer" {
			return true
		}
		if block.Name != "" {
			f.title = block.Name
		}
		if u := firstImageURL(block.Image); u != "" {
			f.imageURL = u
		}
		if offer, ok := firstOffer(block.Offers); ok {
			if price, ok := product.ParsePrice(offer.Price.String()); ok {
				f.current = &price
			}
			if offer.PriceCurrency != "" && offer.PriceCurrency != "BRL" {
				f.currency = offer.PriceCurrency
			}
		}
		return !f.complete()
	})
	return f
}

type jsonLDOffer struct {
	Price         json.Number `json:"price"`
	PriceCurrency string      `json:"priceCurrency"`
}

func firstOffer(raw json.RawMessage) (jsonLDOffer, bool) {
	if len(raw) == 0 {
		return jsonLDOffer{}, false
	}
	var one jsonLDOffer
	if err := json.Unmarshal(raw, &one); err == nil && one.Price != "" {
		return one, true
	}
	var many []jsonLDOffer
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 && many[0].Price != "" {
		return many[0], true
	}
	return jsonLDOffer{}, false
}

func firstImageURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return normalizeImageURL(s)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return normalizeImageURL(list[0])
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return normalizeImageURL(obj.URL)
	}
	return ""
}

func extractTitle(doc *goquery.Document) string {
	for _, sel := range titleSelectors {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); len(text) > 5 {
			return text
		}
	}
	// Meta fallbacks for pages that hide the h1 behind script.
	if content, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		title := strings.TrimSpace(content)
		title = strings.TrimSuffix(title, " | Mercado Livre")
		if len(title) > 5 {
			return title
		}
	}
	return ""
}

func extractImage(doc *goquery.Document) string {
	for _, sel := range imageSelectors {
		node := doc.Find(sel).First()
		for _, attr := range []string{"src", "data-src", "data-zoom"} {
			if v, ok := node.Attr(attr); ok && v != "" {
				return normalizeImageURL(v)
			}
		}
	}
	if content, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok && content != "" {
		return normalizeImageURL(content)
	}
	return ""
}

func extractPrice(doc *goquery.Document, selectors []string) *decimal.Decimal {
	for _, sel := range selectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		text := strings.TrimSpace(node.Text())
		// The fraction element carries only the integer part; cents live in
		// a sibling element.
		if cents := strings.TrimSpace(node.Parent().Find(".andes-money-amount__cents").First().Text()); cents != "" {
			text = text + "," + cents
		}
		if price, ok := product.ParsePrice(text); ok && price.IsPositive() {
			return &price
		}
	}
	return nil
}

// parseWithFallbackPrice extracts title and image normally but takes the
// current price as given. Used when the price only appears as loose text.
func parseWithFallbackPrice(body []byte, price decimal.Decimal) (product.Data, bool, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return product.Data{}, false, NewError(ReasonParseFailure, fmt.Errorf("parse html: %w", err))
	}
	title := extractTitle(doc)
	if title == "" {
		return product.Data{}, false, nil
	}
	data, err := product.NewData(title, extractImage(doc), nil, price, "R$")
	if err != nil {
		return product.Data{}, false, NewError(ReasonParseFailure, err)
	}
	return data, true, nil
}

// extractPriceFromText scans raw page text for an "R$ 1.234,56" pattern.
// Last-resort path used by the browser strategy.
func extractPriceFromText(text string) *decimal.Decimal {
	m := pricePattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	if price, ok := product.ParsePrice(m[1]); ok && price.IsPositive() {
		return &price
	}
	return nil
}

func normalizeImageURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	// Strip size hints so both render backends fetch the original asset.
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	return raw
}
