// Package ledger persists the processing history of scraped products. The
// ledger is the source of truth for idempotence: a product whose identifier
// is already recorded is never reprocessed.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrPersistence reports that the ledger could not be written. Unlike
// per-item extraction or render failures it aborts the whole run, since
// continuing would reprocess everything on the next start.
var ErrPersistence = errors.New("ledger persistence failed")

// Entry is one processed product. Prices are decimals serialized as JSON
// strings to keep cent precision across restarts.
type Entry struct {
	InternalID      int64            `json:"internal_id"`
	Identifier      string           `json:"identifier"`
	URL             string           `json:"url"`
	Title           string           `json:"title"`
	OriginalPrice   *decimal.Decimal `json:"original_price,omitempty"`
	CurrentPrice    decimal.Decimal  `json:"current_price"`
	DiscountPercent *decimal.Decimal `json:"discount_percentage,omitempty"`
	Currency        string           `json:"currency"`
	ImagePath       string           `json:"image_path"`
	ImageURL        string           `json:"image_url,omitempty"`
	ScrapedAt       time.Time        `json:"scraped_at"`
	AffiliateLink   string           `json:"affiliate_link,omitempty"`
}

// Store is the durable ledger. Implementations must make Append atomic:
// after a crash the ledger holds either the previous state or the new one,
// never a partial write.
type Store interface {
	// Contains reports whether the product identifier is already recorded.
	Contains(identifier string) bool
	// Append records one entry and persists immediately.
	Append(ctx context.Context, e Entry) error
	// Entries returns all recorded entries in insertion order.
	Entries() []Entry
	// NextID returns the next unused internal id.
	NextID() int64
}
