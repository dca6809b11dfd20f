package render

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/clicou/dealposter/internal/headless"
	"github.com/clicou/dealposter/internal/product"
)

// ErrRender indicates the renderer could not produce an image file. It is
// raised only when the always-available procedural backend itself fails,
// and is fatal for the affected item only.
var ErrRender = errors.New("render failed")

// Request carries everything needed to render one product image. It is
// consumed once and not persisted.
type Request struct {
	InternalID int64
	Data       product.Data
	OutputPath string
}

// Options fixes the output canvas and text layout shared by both backends,
// so their output stays visually interchangeable.
type Options struct {
	Width         int
	Height        int
	JPEGQuality   int
	PhotoRegion   float64
	TitleMaxChars int
	TitleMaxLines int
	FontPath      string
}

// withDefaults fills zero values with the standard square post format.
func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = 1080
	}
	if o.Height <= 0 {
		o.Height = 1080
	}
	if o.JPEGQuality <= 0 {
		o.JPEGQuality = 95
	}
	if o.PhotoRegion <= 0 || o.PhotoRegion >= 1 {
		o.PhotoRegion = 0.55
	}
	if o.TitleMaxChars <= 0 {
		o.TitleMaxChars = 60
	}
	if o.TitleMaxLines <= 0 {
		o.TitleMaxLines = 2
	}
	return o
}

// Backend produces the image file for one request.
type Backend interface {
	Name() string
	Render(ctx context.Context, req Request) error
}

// Renderer selects between the browser backend and the procedural backend.
// The browser backend is preferred when the capability probe reports it
// usable; any failure there falls back transparently to procedural drawing
// for that one request.
type Renderer struct {
	probe      *headless.Probe
	browser    Backend
	procedural Backend
	logger     *zap.Logger
}

// New wires a dual-backend renderer. browser may be nil, in which case only
// the procedural path is used.
func New(probe *headless.Probe, browser, procedural Backend, logger *zap.Logger) (*Renderer, error) {
	if procedural == nil {
		return nil, fmt.Errorf("procedural backend is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{
		probe:      probe,
		browser:    browser,
		procedural: procedural,
		logger:     logger,
	}, nil
}

// Render writes the image for req and returns its path. The error, when
// non-nil, wraps ErrRender.
func (r *Renderer) Render(ctx context.Context, req Request) (string, error) {
	if req.OutputPath == "" {
		return "", fmt.Errorf("%w: output path is required", ErrRender)
	}

	if r.browser != nil && r.probe != nil && r.probe.Available(ctx) {
		err := r.browser.Render(ctx, req)
		if err == nil {
			r.logger.Info("image rendered",
				zap.String("backend", r.browser.Name()),
				zap.Int64("internal_id", req.InternalID),
				zap.String("path", req.OutputPath))
			return req.OutputPath, nil
		}
		r.logger.Warn("browser render failed, falling back to procedural backend",
			zap.Int64("internal_id", req.InternalID),
			zap.Error(err))
	}

	if err := r.procedural.Render(ctx, req); err != nil {
		return "", fmt.Errorf("%w: %s backend: %v", ErrRender, r.procedural.Name(), err)
	}
	r.logger.Info("image rendered",
		zap.String("backend", r.procedural.Name()),
		zap.Int64("internal_id", req.InternalID),
		zap.String("path", req.OutputPath))
	return req.OutputPath, nil
}
