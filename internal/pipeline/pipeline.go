// Package pipeline drives one end-to-end run: read product links, extract
// data, render the post image and record the result durably. Items are
// processed strictly in order with a fixed minimum delay between marketplace
// requests.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/clicou/dealposter/internal/affiliate"
	"github.com/clicou/dealposter/internal/extract"
	"github.com/clicou/dealposter/internal/ledger"
	"github.com/clicou/dealposter/internal/metrics"
	"github.com/clicou/dealposter/internal/product"
	"github.com/clicou/dealposter/internal/render"
	"github.com/clicou/dealposter/internal/storage"
)

// Extractor yields product data for a ref. Satisfied by *extract.Selector.
type Extractor interface {
	Extract(ctx context.Context, ref product.Ref) (product.Data, error)
}

// ImageRenderer produces the post image for one request. Satisfied by
// *render.Renderer.
type ImageRenderer interface {
	Render(ctx context.Context, req render.Request) (string, error)
}

// Recorder mirrors ledger entries into a secondary sink. Satisfied by
// *ledger.Mirror.
type Recorder interface {
	Record(ctx context.Context, e ledger.Entry) error
}

// Config tunes one pipeline instance.
type Config struct {
	// ImagesDir receives rendered images, one product_<id>.jpg per item.
	ImagesDir string
	// ScrapeDelay is the minimum spacing between marketplace requests.
	ScrapeDelay time.Duration
}

// Failure describes one item that could not be processed.
type Failure struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// Summary is the outcome of one run.
type Summary struct {
	RunID     string    `json:"run_id"`
	Succeeded int       `json:"successful"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	Failures  []Failure `json:"failures,omitempty"`
}

// Pipeline wires the extraction, render and persistence stages.
type Pipeline struct {
	cfg        Config
	extractor  Extractor
	renderer   ImageRenderer
	store      ledger.Store
	affiliates *affiliate.Composer
	mirror     Recorder
	blobs      storage.BlobStore
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// Option customizes optional pipeline stages.
type Option func(*Pipeline)

// WithAffiliates enables affiliate link composition for recorded entries.
func WithAffiliates(c *affiliate.Composer) Option {
	return func(p *Pipeline) { p.affiliates = c }
}

// WithMirror copies each recorded entry into a secondary store, best effort.
func WithMirror(r Recorder) Option {
	return func(p *Pipeline) { p.mirror = r }
}

// WithBlobStore uploads each rendered image to a blob sink, best effort.
func WithBlobStore(b storage.BlobStore) Option {
	return func(p *Pipeline) { p.blobs = b }
}

// New builds a Pipeline. extractor, renderer and store are required.
func New(cfg Config, extractor Extractor, renderer ImageRenderer, store ledger.Store, logger *zap.Logger, opts ...Option) (*Pipeline, error) {
	if extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if cfg.ImagesDir == "" {
		cfg.ImagesDir = "output/images"
	}
	if cfg.ScrapeDelay < 0 {
		cfg.ScrapeDelay = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	limit := rate.Inf
	if cfg.ScrapeDelay > 0 {
		limit = rate.Every(cfg.ScrapeDelay)
	}

	p := &Pipeline{
		cfg:       cfg,
		extractor: extractor,
		renderer:  renderer,
		store:     store,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run processes links in order and returns a summary. Per-item failures are
// recorded and do not stop the run; only ledger persistence failures and
// context cancellation abort early, returning the partial summary alongside
// the error.
func (p *Pipeline) Run(ctx context.Context, links []string) (Summary, error) {
	summary := Summary{RunID: uuid.NewString()}
	logger := p.logger.With(zap.String("run_id", summary.RunID))
	logger.Info("pipeline run started", zap.Int("links", len(links)))

	if err := os.MkdirAll(p.cfg.ImagesDir, 0o750); err != nil {
		return summary, fmt.Errorf("create images dir: %w", err)
	}

	for i, link := range links {
		if err := ctx.Err(); err != nil {
			logger.Warn("pipeline run canceled",
				zap.Int("processed", i),
				zap.Int("remaining", len(links)-i))
			return summary, err
		}

		started := time.Now()
		outcome, err := p.processOne(ctx, logger, link, &summary)
		metrics.ObserveItem(outcome, time.Since(started))
		if err != nil {
			return summary, err
		}
	}

	logger.Info("pipeline run finished",
		zap.Int("successful", summary.Succeeded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

// processOne handles a single link, updating summary in place. The returned
// error is non-nil only for run-fatal conditions.
func (p *Pipeline) processOne(ctx context.Context, logger *zap.Logger, link string, summary *Summary) (string, error) {
	ref, err := product.ParseRef(link)
	if err != nil {
		logger.Warn("invalid product link", zap.String("url", link), zap.Error(err))
		summary.fail(link, "invalid_reference")
		return "failed", nil
	}
	itemLog := logger.With(zap.String("identifier", ref.Identifier))

	if p.store.Contains(ref.Identifier) {
		itemLog.Info("product already recorded, skipping")
		summary.Skipped++
		return "skipped", nil
	}

	// Spacing applies only to items that actually hit the marketplace.
	if err := p.limiter.Wait(ctx); err != nil {
		return "canceled", err
	}

	data, err := p.extractor.Extract(ctx, ref)
	if err != nil {
		if ctx.Err() != nil {
			return "canceled", ctx.Err()
		}
		reason := string(extract.ReasonOf(err))
		metrics.ObserveExtraction(reason)
		itemLog.Warn("extraction failed", zap.String("reason", reason), zap.Error(err))
		summary.fail(link, reason)
		return "failed", nil
	}
	metrics.ObserveExtraction("ok")

	internalID := p.store.NextID()
	imagePath := filepath.Join(p.cfg.ImagesDir, fmt.Sprintf("product_%d.jpg", internalID))
	outPath, err := p.renderer.Render(ctx, render.Request{
		InternalID: internalID,
		Data:       data,
		OutputPath: imagePath,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "canceled", ctx.Err()
		}
		metrics.ObserveRender("failed")
		itemLog.Warn("render failed", zap.Error(err))
		summary.fail(link, "render_failure")
		return "failed", nil
	}
	metrics.ObserveRender("ok")

	entry := ledger.Entry{
		InternalID:      internalID,
		Identifier:      ref.Identifier,
		URL:             ref.SourceURL,
		Title:           data.Title,
		OriginalPrice:   data.OriginalPrice,
		CurrentPrice:    data.CurrentPrice,
		DiscountPercent: data.DiscountPercent,
		Currency:        data.Currency,
		ImagePath:       outPath,
		ImageURL:        data.ImageURL,
		ScrapedAt:       time.Now().UTC(),
	}
	if p.affiliates.Enabled() {
		if entry.AffiliateLink, err = p.affiliates.Compose(ref); err != nil {
			itemLog.Warn("affiliate link composition failed", zap.Error(err))
		}
	}

	// The item is fully processed at this point; commit it even when the
	// run was canceled mid-item, so the next run can skip it.
	commitCtx := context.WithoutCancel(ctx)
	if err := p.store.Append(commitCtx, entry); err != nil {
		if errors.Is(err, ledger.ErrPersistence) {
			itemLog.Error("ledger write failed, aborting run", zap.Error(err))
			return "failed", err
		}
		itemLog.Warn("ledger rejected entry", zap.Error(err))
		summary.fail(link, "ledger_rejected")
		return "failed", nil
	}

	p.mirrorEntry(commitCtx, itemLog, entry)

	itemLog.Info("product recorded",
		zap.Int64("internal_id", internalID),
		zap.String("image", outPath),
		zap.Bool("discount", data.HasDiscount()))
	summary.Succeeded++
	return "succeeded", nil
}

// mirrorEntry pushes the entry and its image to the optional secondary
// sinks. Failures are logged and swallowed.
func (p *Pipeline) mirrorEntry(ctx context.Context, logger *zap.Logger, entry ledger.Entry) {
	if p.mirror != nil {
		if err := p.mirror.Record(ctx, entry); err != nil {
			logger.Warn("ledger mirror write failed", zap.Error(err))
		}
	}
	if p.blobs != nil {
		f, err := os.Open(entry.ImagePath) // #nosec G304 -- path built by this pipeline
		if err != nil {
			logger.Warn("image upload skipped", zap.Error(err))
			return
		}
		defer f.Close()
		uri, err := p.blobs.PutObject(ctx, filepath.Base(entry.ImagePath), "image/jpeg", f)
		if err != nil {
			logger.Warn("image upload failed", zap.Error(err))
			return
		}
		logger.Info("image mirrored", zap.String("uri", uri))
	}
}

func (s *Summary) fail(url, reason string) {
	s.Failed++
	s.Failures = append(s.Failures, Failure{URL: url, Reason: reason})
}
