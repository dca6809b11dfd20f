// Package affiliate builds tagged marketplace links for recorded products.
package affiliate

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/clicou/dealposter/internal/product"
)

// Composer tags product URLs with a partner code. A zero Composer produces
// no links, which keeps the affiliate_link ledger field empty.
type Composer struct {
	partnerCode string
	toolID      string
}

// New builds a Composer. partnerCode may be empty to disable tagging.
func New(partnerCode, toolID string) *Composer {
	return &Composer{
		partnerCode: strings.TrimSpace(partnerCode),
		toolID:      strings.TrimSpace(toolID),
	}
}

// Enabled reports whether links will be produced.
func (c *Composer) Enabled() bool {
	return c != nil && c.partnerCode != ""
}

// Compose returns the tagged link for ref, or "" when tagging is disabled.
func (c *Composer) Compose(ref product.Ref) (string, error) {
	if !c.Enabled() {
		return "", nil
	}
	u, err := url.Parse(ref.SourceURL)
	if err != nil {
		return "", fmt.Errorf("parse product url: %w", err)
	}
	q := u.Query()
	q.Set("matt_word", c.partnerCode)
	if c.toolID != "" {
		q.Set("matt_tool", c.toolID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
