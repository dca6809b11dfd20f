// Package headless manages the optional Chrome/Chromium dependency: a
// one-time capability probe plus allocator helpers shared by the dynamic
// scraper and the browser render backend.
package headless

import (
	"context"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// defaultBinaryPaths are the well-known install locations checked before
// falling back to the executable search path.
var defaultBinaryPaths = []string{
	"/usr/bin/google-chrome",
	"/usr/bin/google-chrome-stable",
	"/usr/bin/chromium",
	"/usr/bin/chromium-browser",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
}

// searchNames are looked up on PATH when no well-known location matches.
var searchNames = []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"}

// ProbeConfig controls capability detection.
type ProbeConfig struct {
	// BinaryPaths overrides the well-known install locations.
	BinaryPaths []string
	// Timeout bounds the liveness launch check.
	Timeout time.Duration
	// Disabled forces the probe to report unavailable without checking.
	Disabled bool
	// LivenessCheck starts and stops a headless session against the given
	// binary. Overridable in tests; nil means a real chromedp warmup.
	LivenessCheck func(ctx context.Context, binary string) error
}

// Probe detects, once per process lifetime, whether a headless browser is
// usable. Detection is expensive (it launches a browser), so the result is
// memoized; concurrent callers before the first result wait for exactly one
// check. The probe never errors, it only reports a capability fact.
type Probe struct {
	cfg    ProbeConfig
	logger *zap.Logger

	mu        sync.Mutex
	probed    bool
	available bool
	binary    string
}

// NewProbe constructs a Probe. The zero Timeout defaults to 15s.
func NewProbe(cfg ProbeConfig, logger *zap.Logger) *Probe {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.LivenessCheck == nil {
		cfg.LivenessCheck = launchCheck
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Probe{cfg: cfg, logger: logger}
}

// Available reports whether the browser backend is usable, probing on the
// first call and returning the memoized result afterwards.
func (p *Probe) Available(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.probed {
		return p.available
	}
	p.available, p.binary = p.detect(ctx)
	p.probed = true
	return p.available
}

// Binary returns the detected browser binary path, or "" when the probe has
// not run or found nothing.
func (p *Probe) Binary() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.binary
}

// Reset clears the memoized result so the next Available call re-probes.
// Re-probing never happens implicitly.
func (p *Probe) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probed = false
	p.available = false
	p.binary = ""
}

func (p *Probe) detect(ctx context.Context) (bool, string) {
	if p.cfg.Disabled {
		p.logger.Info("headless browser disabled by configuration")
		return false, ""
	}
	binary := p.findBinary()
	if binary == "" {
		p.logger.Info("no headless browser binary found")
		return false, ""
	}

	// The result is a process-level fact memoized for the lifetime of the
	// probe, so the launch check must not inherit a short or canceled
	// per-item deadline.
	checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.Timeout)
	defer cancel()
	if err := p.cfg.LivenessCheck(checkCtx, binary); err != nil {
		p.logger.Warn("headless browser failed liveness check",
			zap.String("binary", binary), zap.Error(err))
		return false, ""
	}
	p.logger.Info("headless browser available", zap.String("binary", binary))
	return true, binary
}

func (p *Probe) findBinary() string {
	candidates := p.cfg.BinaryPaths
	if len(candidates) == 0 {
		candidates = defaultBinaryPaths
	}
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	for _, name := range searchNames {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}

// launchCheck starts and immediately stops a headless session to prove the
// binary actually runs in this environment.
func launchCheck(ctx context.Context, binary string) error {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, AllocatorOptions(binary, "")...)
	defer allocCancel()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()
	return chromedp.Run(browserCtx)
}

// AllocatorOptions returns the exec allocator options shared by every
// headless session in the process.
func AllocatorOptions(binary, userAgent string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if binary != "" {
		opts = append(opts, chromedp.ExecPath(binary))
	}
	if userAgent != "" {
		opts = append(opts, chromedp.UserAgent(userAgent))
	}
	return opts
}
