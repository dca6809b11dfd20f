package render

import (
	"bytes"
	_ "embed"
	"encoding/base64"
	"fmt"
	"html/template"

	"github.com/clicou/dealposter/internal/product"
)

//go:embed layout.html
var layoutHTML string

var layoutTmpl = template.Must(template.New("layout").Parse(layoutHTML))

type templateData struct {
	Width         int
	Height        int
	PhotoHeight   int
	TitleMaxLines int
	Title         string
	PhotoDataURL  template.URL
	OriginalPrice string
	CurrentPrice  string
	Discount      string
}

// buildPage fills the post layout for a single product. The photo is inlined
// as a data URL so the rendered page has no network dependencies.
func buildPage(opts Options, data product.Data, photo []byte) ([]byte, error) {
	td := templateData{
		Width:         opts.Width,
		Height:        opts.Height,
		PhotoHeight:   int(float64(opts.Height) * opts.PhotoRegion),
		TitleMaxLines: opts.TitleMaxLines,
		Title:         truncate(data.Title, opts.TitleMaxChars),
		CurrentPrice:  product.FormatPrice(data.CurrentPrice, data.Currency),
	}
	if len(photo) > 0 {
		td.PhotoDataURL = template.URL(fmt.Sprintf("data:%s;base64,%s",
			contentTypeOf(photo), base64.StdEncoding.EncodeToString(photo)))
	}
	if data.OriginalPrice != nil {
		td.OriginalPrice = product.FormatPrice(*data.OriginalPrice, data.Currency)
	}
	if data.HasDiscount() {
		td.Discount = data.DiscountPercent.Round(0).String()
	}

	var buf bytes.Buffer
	if err := layoutTmpl.Execute(&buf, td); err != nil {
		return nil, fmt.Errorf("execute layout template: %w", err)
	}
	return buf.Bytes(), nil
}
