// Package render produces the final deal image for a product, through a
// headless-browser template backend with a procedural drawing fallback.
package render

import (
	"bytes"
	"context"
	"image"
	"image/color"
	_ "image/gif" // photo decoders
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// PhotoFetcher downloads product photos with a bounded timeout. A failed
// download yields a neutral placeholder instead of an error: a missing
// photo must never fail the whole render.
type PhotoFetcher struct {
	client *resty.Client
	logger *zap.Logger
}

// NewPhotoFetcher builds a fetcher with the given client identity and
// per-request timeout.
func NewPhotoFetcher(userAgent string, timeout time.Duration, logger *zap.Logger) *PhotoFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "image/webp,image/apng,image/*,*/*;q=0.8").
		SetRetryCount(1)
	return &PhotoFetcher{client: client, logger: logger}
}

// FetchBytes returns the raw photo bytes, or nil when the download failed.
func (f *PhotoFetcher) FetchBytes(ctx context.Context, imageURL string) []byte {
	if imageURL == "" {
		return nil
	}
	resp, err := f.client.R().SetContext(ctx).Get(imageURL)
	if err != nil {
		f.logger.Warn("photo download failed", zap.String("url", imageURL), zap.Error(err))
		return nil
	}
	if resp.StatusCode() != 200 || len(resp.Body()) == 0 {
		f.logger.Warn("photo download returned no usable body",
			zap.String("url", imageURL), zap.Int("status", resp.StatusCode()))
		return nil
	}
	return resp.Body()
}

// Fetch returns the decoded product photo, substituting a placeholder when
// the download or decode fails.
func (f *PhotoFetcher) Fetch(ctx context.Context, imageURL string) image.Image {
	raw := f.FetchBytes(ctx, imageURL)
	if raw == nil {
		return Placeholder(600, 600)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		f.logger.Warn("photo decode failed", zap.String("url", imageURL), zap.Error(err))
		return Placeholder(600, 600)
	}
	return img
}

// Placeholder is the neutral stand-in drawn when no product photo is
// available.
func Placeholder(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	bg := color.RGBA{R: 0xE8, G: 0xE8, B: 0xE8, A: 0xFF}
	frame := color.RGBA{R: 0xC0, G: 0xC0, B: 0xC0, A: 0xFF}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			onFrame := x < 8 || y < 8 || x >= w-8 || y >= h-8
			if onFrame {
				img.Set(x, y, frame)
			} else {
				img.Set(x, y, bg)
			}
		}
	}
	return img
}

// contentTypeOf sniffs the mime type for embedding a photo as a data URL.
func contentTypeOf(raw []byte) string {
	switch {
	case len(raw) > 3 && raw[0] == 0xFF && raw[1] == 0xD8:
		return "image/jpeg"
	case len(raw) > 8 && bytes.HasPrefix(raw, []byte("\x89PNG")):
		return "image/png"
	case len(raw) > 12 && bytes.Equal(raw[8:12], []byte("WEBP")):
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
