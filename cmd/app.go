package cmd

import (
	"context"
	"fmt"
	"time"

	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/clicou/dealposter/internal/affiliate"
	"github.com/clicou/dealposter/internal/config"
	"github.com/clicou/dealposter/internal/extract"
	"github.com/clicou/dealposter/internal/headless"
	"github.com/clicou/dealposter/internal/ledger"
	"github.com/clicou/dealposter/internal/pipeline"
	"github.com/clicou/dealposter/internal/render"
	"github.com/clicou/dealposter/internal/storage/gcs"
	"github.com/clicou/dealposter/internal/storage/local"
)

// app bundles the long-lived services shared by the run and serve commands.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	store    *ledger.FileStore
	pipeline *pipeline.Pipeline

	mirror *ledger.Mirror
	gcsCli *gstorage.Client
}

// newApp assembles the pipeline and its dependencies from cfg.
func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	probe := headless.NewProbe(headless.ProbeConfig{
		BinaryPaths: cfg.Browser.BinaryPaths,
		Timeout:     time.Duration(cfg.Browser.ProbeTimeoutSec) * time.Second,
		Disabled:    cfg.Browser.DisableHeadless,
	}, logger.Named("probe"))

	static, err := extract.NewStatic(extract.StaticConfig{
		UserAgent:      cfg.Scraper.UserAgent,
		RequestTimeout: cfg.RequestTimeout(),
	}, logger.Named("static"))
	if err != nil {
		return nil, fmt.Errorf("init static strategy: %w", err)
	}
	dynamic := extract.NewDynamic(extract.DynamicConfig{
		UserAgent:  cfg.Scraper.UserAgent,
		NavTimeout: time.Duration(cfg.Browser.NavTimeoutSec) * time.Second,
		Settle:     time.Duration(cfg.Browser.SettleMillis) * time.Millisecond,
	}, probe, logger.Named("dynamic"))
	selector := extract.NewSelector(logger.Named("extract"), static, dynamic)

	photoTimeout := time.Duration(cfg.Render.PhotoTimeoutSec) * time.Second
	photos := render.NewPhotoFetcher(cfg.Scraper.UserAgent, photoTimeout, logger.Named("photos"))
	renderOpts := render.Options{
		Width:         cfg.Render.CanvasWidth,
		Height:        cfg.Render.CanvasHeight,
		JPEGQuality:   cfg.Render.JPEGQuality,
		PhotoRegion:   cfg.Render.PhotoRegion,
		TitleMaxChars: cfg.Render.TitleMaxChars,
		TitleMaxLines: cfg.Render.TitleMaxLines,
		FontPath:      cfg.Render.FontPath,
	}
	browser := render.NewBrowser(renderOpts, probe, photos, cfg.Scraper.UserAgent,
		time.Duration(cfg.Browser.NavTimeoutSec)*time.Second, logger.Named("browser"))
	procedural := render.NewProcedural(renderOpts, photos, logger.Named("procedural"))
	renderer, err := render.New(probe, browser, procedural, logger.Named("render"))
	if err != nil {
		return nil, fmt.Errorf("init renderer: %w", err)
	}

	store, err := ledger.OpenFile(cfg.Ledger.Path, logger.Named("ledger"))
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, store: store}

	var opts []pipeline.Option
	if cfg.Affiliate.PartnerCode != "" {
		opts = append(opts, pipeline.WithAffiliates(affiliate.New(cfg.Affiliate.PartnerCode, "")))
	}
	if cfg.Ledger.DSN != "" {
		mirror, err := ledger.NewMirror(ctx, ledger.MirrorConfig{DSN: cfg.Ledger.DSN})
		if err != nil {
			return nil, fmt.Errorf("init ledger mirror: %w", err)
		}
		a.mirror = mirror
		opts = append(opts, pipeline.WithMirror(mirror))
	}
	switch {
	case cfg.Storage.GCSBucket != "":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		blobs, err := gcs.New(client, gcs.Config{
			Bucket: cfg.Storage.GCSBucket,
			Prefix: cfg.Storage.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("init gcs blob store: %w", err)
		}
		a.gcsCli = client
		opts = append(opts, pipeline.WithBlobStore(blobs))
	case cfg.Storage.LocalDir != "":
		blobs, err := local.New(local.Config{BaseDir: cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("init local blob store: %w", err)
		}
		opts = append(opts, pipeline.WithBlobStore(blobs))
	}

	p, err := pipeline.New(pipeline.Config{
		ImagesDir:   cfg.Output.ImagesDir,
		ScrapeDelay: cfg.ScrapeDelay(),
	}, selector, renderer, store, logger.Named("pipeline"), opts...)
	if err != nil {
		return nil, fmt.Errorf("init pipeline: %w", err)
	}
	a.pipeline = p
	return a, nil
}

// close releases external connections.
func (a *app) close() {
	if a.mirror != nil {
		a.mirror.Close()
	}
	if a.gcsCli != nil {
		if err := a.gcsCli.Close(); err != nil {
			a.logger.Warn("close gcs client failed", zap.Error(err))
		}
	}
}
