// Package product defines the core product types shared across subsystems:
// canonical references, extracted product data, and price handling.
package product

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidReference indicates the input URL does not reference a supported
// marketplace product. It is non-retryable and reported per item.
var ErrInvalidReference = errors.New("invalid product reference")

// marketplaceDomain is the only upstream site the scraper understands.
const marketplaceDomain = "mercadolivre.com.br"

// mlbToken matches the product identifier embedded in marketplace paths,
// e.g. /MLB-1234567890 or /p/MLB1234567890.
var mlbToken = regexp.MustCompile(`(?i)MLB-?(\d{6,})`)

// Ref is a canonical, immutable reference to one product.
type Ref struct {
	// Identifier is the canonical per-product key, e.g. "MLB1234567890".
	// Two refs with the same identifier are the same product regardless of
	// query parameters in their source URLs.
	Identifier string
	// SourceURL is the cleaned URL the ref was derived from, without
	// fragment or query string.
	SourceURL string
}

// ParseRef validates a raw URL and derives its canonical reference.
// It fails with an error wrapping ErrInvalidReference when the domain or
// the identifier pattern check fails.
func ParseRef(rawURL string) (Ref, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return Ref{}, fmt.Errorf("%w: empty url", ErrInvalidReference)
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return Ref{}, fmt.Errorf("%w: parse %q: %v", ErrInvalidReference, trimmed, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Ref{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidReference, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host != marketplaceDomain && !strings.HasSuffix(host, "."+marketplaceDomain) {
		return Ref{}, fmt.Errorf("%w: host %q is not %s", ErrInvalidReference, host, marketplaceDomain)
	}
	m := mlbToken.FindStringSubmatch(u.Path)
	if m == nil {
		return Ref{}, fmt.Errorf("%w: no product token in path %q", ErrInvalidReference, u.Path)
	}

	// Canonical form drops query and fragment so tracking parameters do not
	// produce distinct refs for the same product.
	u.RawQuery = ""
	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	return Ref{
		Identifier: "MLB" + m[1],
		SourceURL:  u.String(),
	}, nil
}
