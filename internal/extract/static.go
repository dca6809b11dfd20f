package extract

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/clicou/dealposter/internal/product"
)

// StaticConfig controls the plain-HTTP strategy.
type StaticConfig struct {
	UserAgent      string
	RequestTimeout time.Duration
}

// Static fetches product pages over plain HTTP via Colly and parses the
// server-rendered markup. Pages that render prices client-side come back
// without the expected elements; that is a soft failure handed to the next
// strategy.
type Static struct {
	base   *colly.Collector
	logger *zap.Logger
}

// NewStatic constructs the static strategy.
func NewStatic(cfg StaticConfig, logger *zap.Logger) (*Static, error) {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []colly.CollectorOption{
		colly.UserAgent(cfg.UserAgent),
	}
	base := colly.NewCollector(opts...)
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.RequestTimeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(cfg.RequestTimeout)

	return &Static{base: base, logger: logger}, nil
}

// Name identifies the strategy in logs.
func (s *Static) Name() string { return "static" }

// Extract fetches ref's page and applies structural extraction. A network
// timeout triggers exactly one retry before giving up on this strategy.
func (s *Static) Extract(ctx context.Context, ref product.Ref) (product.Data, bool, error) {
	body, err := s.fetch(ctx, ref.SourceURL)
	if err != nil && isTimeout(err) {
		s.logger.Debug("static fetch timed out, retrying once",
			zap.String("identifier", ref.Identifier))
		body, err = s.fetch(ctx, ref.SourceURL)
	}
	if err != nil {
		return product.Data{}, false, classifyFetchError(err)
	}
	return parseProductHTML(body, ref)
}

func (s *Static) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	collector := s.base.Clone()

	var (
		body     []byte
		status   int
		fetchErr error
	)
	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "pt-BR,pt;q=0.9,en-US;q=0.8,en;q=0.7")
		r.Headers.Set("Referer", "https://www.mercadolivre.com.br/")
	})
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte{}, r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	// Synchronous collector: OnError has recorded the status by the time
	// Visit returns its error.
	if err := collector.Visit(rawURL); err != nil {
		return nil, statusError{status: status, err: err}
	}
	collector.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fetchErr != nil {
		return nil, statusError{status: status, err: fetchErr}
	}
	if status >= 400 {
		return nil, statusError{status: status, err: fmt.Errorf("http status %d", status)}
	}
	if len(body) == 0 {
		return nil, errors.New("empty response body")
	}
	return body, nil
}

// statusError carries the HTTP status alongside the transport error so the
// selector can classify blocks and missing products.
type statusError struct {
	status int
	err    error
}

func (e statusError) Error() string {
	return fmt.Sprintf("fetch failed (status %d): %v", e.status, e.err)
}

func (e statusError) Unwrap() error { return e.err }

func classifyFetchError(err error) error {
	var se statusError
	if errors.As(err, &se) {
		switch {
		case se.status == http.StatusForbidden || se.status == http.StatusTooManyRequests:
			return NewError(ReasonBlocked, err)
		case se.status == http.StatusNotFound || se.status == http.StatusGone:
			return NewError(ReasonNotFound, err)
		}
	}
	if isTimeout(err) {
		return NewError(ReasonTimeout, err)
	}
	return NewError(ReasonParseFailure, err)
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}
