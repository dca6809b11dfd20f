package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/clicou/dealposter/internal/headless"
)

// ErrBlankCapture reports a screenshot that came back empty or implausibly
// small, usually a page that never painted.
var ErrBlankCapture = errors.New("blank screenshot captured")

// minCaptureBytes is well below any real 1080x1080 JPEG. Captures smaller
// than this are treated as failed paints.
const minCaptureBytes = 4096

// Browser renders the post by screenshotting a self-contained HTML page in
// headless Chrome. It produces better typography than the drawing backend
// but requires a working browser.
type Browser struct {
	opts      Options
	probe     *headless.Probe
	photos    *PhotoFetcher
	userAgent string
	timeout   time.Duration
	logger    *zap.Logger
}

// NewBrowser builds the screenshot backend.
func NewBrowser(opts Options, probe *headless.Probe, photos *PhotoFetcher, userAgent string, timeout time.Duration, logger *zap.Logger) *Browser {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Browser{
		opts:      opts.withDefaults(),
		probe:     probe,
		photos:    photos,
		userAgent: userAgent,
		timeout:   timeout,
		logger:    logger,
	}
}

// Name identifies the backend in logs.
func (b *Browser) Name() string { return "browser" }

// Render writes the populated layout to a temp file, screenshots it at the
// configured canvas size and saves the JPEG to req.OutputPath.
func (b *Browser) Render(ctx context.Context, req Request) error {
	var photo []byte
	if b.photos != nil {
		photo = b.photos.FetchBytes(ctx, req.Data.ImageURL)
	}
	page, err := buildPage(b.opts, req.Data, photo)
	if err != nil {
		return err
	}

	dir, err := os.MkdirTemp("", "dealposter-page-*")
	if err != nil {
		return fmt.Errorf("create page dir: %w", err)
	}
	defer os.RemoveAll(dir)

	pagePath := filepath.Join(dir, "post.html")
	if err := os.WriteFile(pagePath, page, 0o600); err != nil {
		return fmt.Errorf("write page: %w", err)
	}

	shot, err := b.capture(ctx, "file://"+pagePath)
	if err != nil {
		return err
	}
	if len(shot) < minCaptureBytes {
		return fmt.Errorf("%w: %d bytes", ErrBlankCapture, len(shot))
	}

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(req.OutputPath, shot, 0o640); err != nil {
		return fmt.Errorf("write %s: %w", req.OutputPath, err)
	}
	return nil
}

func (b *Browser) capture(ctx context.Context, url string) ([]byte, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx,
		headless.AllocatorOptions(b.probe.Binary(), b.userAgent)...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	runCtx, cancelRun := context.WithTimeout(browserCtx, b.timeout)
	defer cancelRun()

	var shot []byte
	err := chromedp.Run(runCtx,
		chromedp.EmulateViewport(int64(b.opts.Width), int64(b.opts.Height)),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.FullScreenshot(&shot, b.opts.JPEGQuality),
	)
	if err != nil {
		return nil, fmt.Errorf("capture page: %w", err)
	}
	return shot, nil
}
