package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/clicou/dealposter/internal/headless"
	"github.com/clicou/dealposter/internal/product"
)

// DynamicConfig controls the headless-browser strategy.
type DynamicConfig struct {
	UserAgent  string
	NavTimeout time.Duration
	// Settle is the bounded wait for script-rendered content after the
	// document body is ready.
	Settle time.Duration
}

// Dynamic drives a headless browser to load the page and applies the same
// structural extraction against the fully rendered DOM. It is only
// attempted when the capability probe reports a usable browser.
type Dynamic struct {
	cfg    DynamicConfig
	probe  *headless.Probe
	logger *zap.Logger
}

// NewDynamic constructs the dynamic strategy.
func NewDynamic(cfg DynamicConfig, probe *headless.Probe, logger *zap.Logger) *Dynamic {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 25 * time.Second
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dynamic{cfg: cfg, probe: probe, logger: logger}
}

// Name identifies the strategy in logs.
func (d *Dynamic) Name() string { return "dynamic" }

// Extract renders ref's page in a headless browser. When no browser is
// available this is a soft failure so the selector can report NotFound
// rather than a misleading browser error.
func (d *Dynamic) Extract(ctx context.Context, ref product.Ref) (product.Data, bool, error) {
	if d.probe == nil || !d.probe.Available(ctx) {
		d.logger.Debug("skipping dynamic strategy, no browser available",
			zap.String("identifier", ref.Identifier))
		return product.Data{}, false, nil
	}

	html, err := d.renderPage(ctx, ref.SourceURL)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return product.Data{}, false, NewError(ReasonTimeout, err)
		}
		return product.Data{}, false, NewError(ReasonParseFailure, err)
	}

	data, ok, err := parseProductHTML([]byte(html), ref)
	if err != nil || ok {
		return data, ok, err
	}

	// Rendered DOMs occasionally carry the price only as loose text. One
	// scan of the raw markup before conceding.
	if price := extractPriceFromText(html); price != nil {
		return parseWithFallbackPrice([]byte(html), *price)
	}
	return product.Data{}, false, nil
}

func (d *Dynamic) renderPage(ctx context.Context, rawURL string) (string, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx,
		headless.AllocatorOptions(d.probe.Binary(), d.cfg.UserAgent)...)
	defer allocCancel()

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	defer tabCancel()

	taskCtx, taskCancel := context.WithTimeout(tabCtx, d.cfg.NavTimeout+d.cfg.Settle)
	defer taskCancel()

	var html string
	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(d.cfg.UserAgent),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(d.cfg.Settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, nil
}
