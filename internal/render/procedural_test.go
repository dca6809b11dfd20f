package render

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clicou/dealposter/internal/product"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestProceduralRendersCanvas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes(t, 640, 480))
	}))
	defer srv.Close()

	opts := Options{Width: 540, Height: 540, JPEGQuality: 80}
	photos := NewPhotoFetcher("test-agent", 5*time.Second, zap.NewNop())
	backend := NewProcedural(opts, photos, zap.NewNop())

	orig := decimal.RequireFromString("149.90")
	data, err := product.NewData("Fone de Ouvido Bluetooth Sem Fio com Cancelamento de Ruído Ativo",
		srv.URL+"/photo.png", &orig, decimal.RequireFromString("99.90"), "")
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "product_1.jpg")
	err = backend.Render(context.Background(), Request{InternalID: 1, Data: data, OutputPath: out})
	require.NoError(t, err)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	img, err := jpeg.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 540, img.Bounds().Dx())
	assert.Equal(t, 540, img.Bounds().Dy())
}

func TestProceduralPlaceholderWhenPhotoUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	opts := Options{Width: 400, Height: 400}
	photos := NewPhotoFetcher("test-agent", 2*time.Second, zap.NewNop())
	backend := NewProcedural(opts, photos, zap.NewNop())

	data, err := product.NewData("Produto Sem Foto", srv.URL+"/missing.jpg",
		nil, decimal.RequireFromString("10.00"), "")
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "product_2.jpg")
	err = backend.Render(context.Background(), Request{InternalID: 2, Data: data, OutputPath: out})
	require.NoError(t, err)
	assert.FileExists(t, out)
}

func TestProceduralHonorsCancellation(t *testing.T) {
	backend := NewProcedural(Options{}, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	data, err := product.NewData("Qualquer", "", nil, decimal.RequireFromString("1.00"), "")
	require.NoError(t, err)

	err = backend.Render(ctx, Request{InternalID: 3, Data: data,
		OutputPath: filepath.Join(t.TempDir(), "product_3.jpg")})
	require.ErrorIs(t, err, context.Canceled)
}

func TestScaleToFit(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1000, 500))

	scaled := scaleToFit(src, 500, 500)
	assert.Equal(t, 500, scaled.Bounds().Dx())
	assert.Equal(t, 250, scaled.Bounds().Dy())

	small := image.NewRGBA(image.Rect(0, 0, 100, 80))
	assert.Equal(t, small, scaleToFit(small, 500, 500))
}
