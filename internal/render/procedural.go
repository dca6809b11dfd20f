package render

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	"github.com/fogleman/gg"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"github.com/clicou/dealposter/internal/product"
)

// wellKnownFontPaths are tried when no font is configured. Bold faces
// first, they read better on a post.
var wellKnownFontPaths = []string{
	"/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf",
	"/usr/share/fonts/truetype/liberation/LiberationSans-Bold.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf",
	"/System/Library/Fonts/Helvetica.ttc",
	"C:/Windows/Fonts/arialbd.ttf",
	"C:/Windows/Fonts/arial.ttf",
}

// layout proportions relative to the canvas. Both backends target the same
// regions so their output is visually interchangeable.
const (
	bannerHeightRatio = 0.085
	paddingRatio      = 0.028
	badgeRadiusRatio  = 0.012
)

// Procedural composes the post by direct drawing primitives. It is always
// available and is the fallback for every browser-backend failure.
type Procedural struct {
	opts   Options
	photos *PhotoFetcher
	logger *zap.Logger
}

// NewProcedural builds the drawing backend.
func NewProcedural(opts Options, photos *PhotoFetcher, logger *zap.Logger) *Procedural {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Procedural{opts: opts.withDefaults(), photos: photos, logger: logger}
}

// Name identifies the backend in logs.
func (p *Procedural) Name() string { return "procedural" }

// Render draws the post and writes it as JPEG to req.OutputPath.
func (p *Procedural) Render(ctx context.Context, req Request) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("render canceled: %w", err)
	}

	w, h := p.opts.Width, p.opts.Height
	dc := gg.NewContext(w, h)

	// Background.
	dc.SetHexColor("#FFFFFF")
	dc.Clear()

	padding := float64(w) * paddingRatio
	bannerH := float64(h) * bannerHeightRatio

	// Top banner.
	dc.SetHexColor("#000000")
	dc.DrawRectangle(0, 0, float64(w), bannerH)
	dc.Fill()
	p.setFace(dc, float64(h)*0.036)
	dc.SetHexColor("#FFFFFF")
	dc.DrawStringAnchored("ACHADO DO DIA", float64(w)/2, bannerH/2, 0.5, 0.35)

	// Product photo scaled into the reserved top region, aspect preserved.
	photoTop := bannerH + padding
	photoMaxH := float64(h)*p.opts.PhotoRegion - padding
	photoMaxW := float64(w) - 2*padding
	var photo image.Image
	if p.photos != nil {
		photo = p.photos.Fetch(ctx, req.Data.ImageURL)
	} else {
		photo = Placeholder(600, 600)
	}
	scaled := scaleToFit(photo, int(photoMaxW), int(photoMaxH))
	dc.DrawImage(scaled, (w-scaled.Bounds().Dx())/2, int(photoTop))

	// Title, word-wrapped and truncated.
	titleTop := photoTop + photoMaxH + padding
	p.setFace(dc, float64(h)*0.039)
	dc.SetHexColor("#000000")
	title := truncate(req.Data.Title, p.opts.TitleMaxChars)
	lines := dc.WordWrap(title, float64(w)-2*padding)
	if len(lines) > p.opts.TitleMaxLines {
		lines = lines[:p.opts.TitleMaxLines]
		last := lines[len(lines)-1]
		lines[len(lines)-1] = truncate(last, len([]rune(last))-1)
	}
	lineH := float64(h) * 0.052
	y := titleTop + lineH
	for _, line := range lines {
		dc.DrawStringAnchored(line, float64(w)/2, y, 0.5, 0)
		y += lineH
	}

	// Price block.
	priceTop := y + padding
	if req.Data.OriginalPrice != nil {
		p.setFace(dc, float64(h)*0.026)
		dc.SetHexColor("#999999")
		original := "de " + product.FormatPrice(*req.Data.OriginalPrice, req.Data.Currency)
		tw, th := dc.MeasureString(original)
		ox := (float64(w) - tw) / 2
		dc.DrawString(original, ox, priceTop)
		// Strikethrough.
		dc.SetLineWidth(2)
		dc.DrawLine(ox, priceTop-th*0.35, ox+tw, priceTop-th*0.35)
		dc.Stroke()
		priceTop += float64(h) * 0.045
	}
	p.setFace(dc, float64(h)*0.067)
	dc.SetHexColor("#00AA00")
	current := product.FormatPrice(req.Data.CurrentPrice, req.Data.Currency)
	dc.DrawStringAnchored(current, float64(w)/2, priceTop+float64(h)*0.02, 0.5, 0.5)

	// Discount badge.
	if req.Data.HasDiscount() {
		p.setFace(dc, float64(h)*0.035)
		badge := fmt.Sprintf("-%s%%", req.Data.DiscountPercent.Round(0))
		bw, bh := dc.MeasureString(badge)
		bx := float64(w) - padding - bw - 40
		by := photoTop + 10
		dc.SetHexColor("#FFD700")
		dc.DrawRoundedRectangle(bx, by, bw+40, bh+24, float64(w)*badgeRadiusRatio)
		dc.Fill()
		dc.SetHexColor("#000000")
		dc.DrawStringAnchored(badge, bx+(bw+40)/2, by+(bh+24)/2, 0.5, 0.35)
	}

	// Bottom banner.
	dc.SetHexColor("#000000")
	dc.DrawRectangle(0, float64(h)-bannerH*0.8, float64(w), bannerH*0.8)
	dc.Fill()
	p.setFace(dc, float64(h)*0.03)
	dc.SetHexColor("#FFFFFF")
	dc.DrawStringAnchored("Vale muito a pena", float64(w)/2, float64(h)-bannerH*0.4, 0.5, 0.35)

	return writeJPEG(dc.Image(), req.OutputPath, p.opts.JPEGQuality)
}

// setFace loads the configured or first available system font at the given
// size, falling back to the built-in bitmap face so drawing never fails.
func (p *Procedural) setFace(dc *gg.Context, size float64) {
	if p.opts.FontPath != "" {
		if err := dc.LoadFontFace(p.opts.FontPath, size); err == nil {
			return
		}
	}
	for _, path := range wellKnownFontPaths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := dc.LoadFontFace(path, size); err == nil {
			return
		}
	}
	var face font.Face = basicfont.Face7x13
	dc.SetFontFace(face)
}

// scaleToFit resizes img to fit within maxW x maxH preserving aspect ratio.
// Never upscales.
func scaleToFit(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	sw, sh := b.Dx(), b.Dy()
	if sw <= 0 || sh <= 0 {
		return img
	}
	scale := min(float64(maxW)/float64(sw), float64(maxH)/float64(sh))
	if scale >= 1 {
		return img
	}
	dw, dh := int(float64(sw)*scale), int(float64(sh)*scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func truncate(s string, maxChars int) string {
	runes := []rune(strings.TrimSpace(s))
	if maxChars <= 3 || len(runes) <= maxChars {
		return string(runes)
	}
	return string(runes[:maxChars-3]) + "..."
}

func writeJPEG(img image.Image, path string, quality int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path) // #nosec G304 -- path is derived from config
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: quality}); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode jpeg: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
