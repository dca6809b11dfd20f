package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clicou/dealposter/internal/affiliate"
	"github.com/clicou/dealposter/internal/extract"
	"github.com/clicou/dealposter/internal/ledger"
	"github.com/clicou/dealposter/internal/product"
	"github.com/clicou/dealposter/internal/render"
)

const (
	linkOne = "https://www.mercadolivre.com.br/fone/p/MLB111111"
	linkTwo = "https://www.mercadolivre.com.br/mouse/p/MLB222222"
)

type fakeExtractor struct {
	data  map[string]product.Data
	errs  map[string]error
	calls []string
}

func (f *fakeExtractor) Extract(_ context.Context, ref product.Ref) (product.Data, error) {
	f.calls = append(f.calls, ref.Identifier)
	if err, ok := f.errs[ref.Identifier]; ok {
		return product.Data{}, err
	}
	if d, ok := f.data[ref.Identifier]; ok {
		return d, nil
	}
	return product.Data{}, extract.NewError(extract.ReasonNotFound, errors.New("no data"))
}

type fakeRenderer struct {
	err   error
	calls int
}

func (f *fakeRenderer) Render(_ context.Context, req render.Request) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if err := os.WriteFile(req.OutputPath, []byte("jpeg"), 0o640); err != nil {
		return "", err
	}
	return req.OutputPath, nil
}

type failingStore struct {
	*ledger.FileStore
	failAppend bool
}

func (s *failingStore) Append(ctx context.Context, e ledger.Entry) error {
	if s.failAppend {
		return fmt.Errorf("%w: disk full", ledger.ErrPersistence)
	}
	return s.FileStore.Append(ctx, e)
}

func testData(title string) product.Data {
	data, err := product.NewData(title, "https://http2.mlstatic.com/photo.webp",
		nil, decimal.RequireFromString("99.90"), "")
	if err != nil {
		panic(err)
	}
	return data
}

func newTestPipeline(t *testing.T, ex *fakeExtractor, rn *fakeRenderer, opts ...Option) (*Pipeline, *ledger.FileStore) {
	t.Helper()
	store, err := ledger.OpenFile(filepath.Join(t.TempDir(), "products.json"), zap.NewNop())
	require.NoError(t, err)
	p, err := New(Config{ImagesDir: t.TempDir()}, ex, rn, store, zap.NewNop(), opts...)
	require.NoError(t, err)
	return p, store
}

func TestRunProcessesAllLinks(t *testing.T) {
	ex := &fakeExtractor{data: map[string]product.Data{
		"MLB111111": testData("Fone Bluetooth"),
		"MLB222222": testData("Mouse Sem Fio"),
	}}
	rn := &fakeRenderer{}
	p, store := newTestPipeline(t, ex, rn)

	summary, err := p.Run(context.Background(), []string{linkOne, linkTwo})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)
	assert.NotEmpty(t, summary.RunID)

	entries := store.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "MLB111111", entries[0].Identifier)
	assert.Equal(t, int64(1), entries[0].InternalID)
	assert.Contains(t, entries[0].ImagePath, "product_1.jpg")
	assert.FileExists(t, entries[0].ImagePath)
}

func TestRunSkipsRecordedProducts(t *testing.T) {
	ex := &fakeExtractor{data: map[string]product.Data{
		"MLB111111": testData("Fone Bluetooth"),
	}}
	p, _ := newTestPipeline(t, ex, &fakeRenderer{})

	first, err := p.Run(context.Background(), []string{linkOne})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Succeeded)

	second, err := p.Run(context.Background(), []string{linkOne})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Succeeded)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 0, second.Failed)
	assert.Len(t, ex.calls, 1)
}

func TestRunRecordsPerItemFailures(t *testing.T) {
	ex := &fakeExtractor{
		data: map[string]product.Data{"MLB222222": testData("Mouse Sem Fio")},
		errs: map[string]error{
			"MLB111111": extract.NewError(extract.ReasonBlocked, errors.New("403")),
		},
	}
	p, _ := newTestPipeline(t, ex, &fakeRenderer{})

	links := []string{"https://example.com/not-a-product", linkOne, linkTwo}
	summary, err := p.Run(context.Background(), links)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 2, summary.Failed)
	require.Len(t, summary.Failures, 2)
	assert.Equal(t, "invalid_reference", summary.Failures[0].Reason)
	assert.Equal(t, string(extract.ReasonBlocked), summary.Failures[1].Reason)
}

func TestRunRenderFailureDoesNotRecord(t *testing.T) {
	ex := &fakeExtractor{data: map[string]product.Data{
		"MLB111111": testData("Fone Bluetooth"),
	}}
	p, store := newTestPipeline(t, ex, &fakeRenderer{err: errors.New("render exploded")})

	summary, err := p.Run(context.Background(), []string{linkOne})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.False(t, store.Contains("MLB111111"))
}

func TestRunPersistenceFailureAborts(t *testing.T) {
	ex := &fakeExtractor{data: map[string]product.Data{
		"MLB111111": testData("Fone Bluetooth"),
		"MLB222222": testData("Mouse Sem Fio"),
	}}
	fs, err := ledger.OpenFile(filepath.Join(t.TempDir(), "products.json"), zap.NewNop())
	require.NoError(t, err)
	store := &failingStore{FileStore: fs, failAppend: true}
	p, err := New(Config{ImagesDir: t.TempDir()}, ex, &fakeRenderer{}, store, zap.NewNop())
	require.NoError(t, err)

	summary, err := p.Run(context.Background(), []string{linkOne, linkTwo})
	require.ErrorIs(t, err, ledger.ErrPersistence)
	assert.Equal(t, 0, summary.Succeeded)
	assert.Len(t, ex.calls, 1)
}

func TestRunStopsBetweenItemsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ex := &fakeExtractor{data: map[string]product.Data{
		"MLB111111": testData("Fone Bluetooth"),
	}}
	rn := &fakeRenderer{}
	p, _ := newTestPipeline(t, ex, rn)

	// Cancel after the first item completes.
	wrapped := &cancelingRenderer{inner: rn, cancel: cancel}
	p.renderer = wrapped

	summary, err := p.Run(ctx, []string{linkOne, linkTwo})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Len(t, ex.calls, 1)
}

type cancelingRenderer struct {
	inner  ImageRenderer
	cancel context.CancelFunc
}

func (c *cancelingRenderer) Render(ctx context.Context, req render.Request) (string, error) {
	defer c.cancel()
	return c.inner.Render(ctx, req)
}

func TestRunComposesAffiliateLinks(t *testing.T) {
	ex := &fakeExtractor{data: map[string]product.Data{
		"MLB111111": testData("Fone Bluetooth"),
	}}
	p, store := newTestPipeline(t, ex, &fakeRenderer{},
		WithAffiliates(affiliate.New("clicou", "")))

	_, err := p.Run(context.Background(), []string{linkOne})
	require.NoError(t, err)

	entries := store.Entries()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].AffiliateLink, "matt_word=clicou")
}

type recordingMirror struct {
	entries []ledger.Entry
	err     error
}

func (m *recordingMirror) Record(_ context.Context, e ledger.Entry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func TestRunMirrorFailureIsNotFatal(t *testing.T) {
	ex := &fakeExtractor{data: map[string]product.Data{
		"MLB111111": testData("Fone Bluetooth"),
	}}
	mirror := &recordingMirror{err: errors.New("postgres down")}
	p, store := newTestPipeline(t, ex, &fakeRenderer{}, WithMirror(mirror))

	summary, err := p.Run(context.Background(), []string{linkOne})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.True(t, store.Contains("MLB111111"))
}

func TestRunSpacesMarketplaceRequests(t *testing.T) {
	ex := &fakeExtractor{data: map[string]product.Data{
		"MLB111111": testData("Fone Bluetooth"),
		"MLB222222": testData("Mouse Sem Fio"),
	}}
	store, err := ledger.OpenFile(filepath.Join(t.TempDir(), "products.json"), zap.NewNop())
	require.NoError(t, err)
	p, err := New(Config{ImagesDir: t.TempDir(), ScrapeDelay: 150 * time.Millisecond},
		ex, &fakeRenderer{}, store, zap.NewNop())
	require.NoError(t, err)

	started := time.Now()
	summary, err := p.Run(context.Background(), []string{linkOne, linkTwo})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)
	assert.GreaterOrEqual(t, time.Since(started), 150*time.Millisecond)
}
