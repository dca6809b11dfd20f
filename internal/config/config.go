// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Input     InputConfig     `mapstructure:"input"`
	Output    OutputConfig    `mapstructure:"output"`
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Render    RenderConfig    `mapstructure:"render"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Affiliate AffiliateConfig `mapstructure:"affiliate"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior for the serve command.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// InputConfig points at the product link source file.
type InputConfig struct {
	CSVPath string `mapstructure:"csv_path"`
}

// OutputConfig sets where rendered images land.
type OutputConfig struct {
	ImagesDir string `mapstructure:"images_dir"`
}

// ScraperConfig governs extraction behavior.
type ScraperConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	DelaySeconds   int    `mapstructure:"delay_seconds"`
}

// BrowserConfig configures the headless browser subsystem shared by the
// dynamic scraper and the browser render backend.
type BrowserConfig struct {
	BinaryPaths     []string `mapstructure:"binary_paths"`
	NavTimeoutSec   int      `mapstructure:"nav_timeout_seconds"`
	SettleMillis    int      `mapstructure:"settle_ms"`
	ProbeTimeoutSec int      `mapstructure:"probe_timeout_seconds"`
	DisableHeadless bool     `mapstructure:"disable_headless"`
}

// RenderConfig fixes the output canvas and text layout.
type RenderConfig struct {
	CanvasWidth     int     `mapstructure:"canvas_width"`
	CanvasHeight    int     `mapstructure:"canvas_height"`
	JPEGQuality     int     `mapstructure:"jpeg_quality"`
	PhotoRegion     float64 `mapstructure:"photo_region"`
	TitleMaxChars   int     `mapstructure:"title_max_chars"`
	TitleMaxLines   int     `mapstructure:"title_max_lines"`
	FontPath        string  `mapstructure:"font_path"`
	PhotoTimeoutSec int     `mapstructure:"photo_timeout_seconds"`
}

// LedgerConfig selects and locates the processing ledger backend.
type LedgerConfig struct {
	Path string `mapstructure:"path"`
	DSN  string `mapstructure:"dsn"`
}

// StorageConfig configures the optional image mirror.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// AffiliateConfig carries the partner code for outbound link composition.
type AffiliateConfig struct {
	PartnerCode string `mapstructure:"partner_code"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DEALPOSTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("input.csv_path", "input/products.csv")
	v.SetDefault("output.images_dir", "output/images")
	v.SetDefault("scraper.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("scraper.timeout_seconds", 10)
	v.SetDefault("scraper.delay_seconds", 3)
	v.SetDefault("browser.nav_timeout_seconds", 25)
	v.SetDefault("browser.settle_ms", 5000)
	v.SetDefault("browser.probe_timeout_seconds", 15)
	v.SetDefault("render.canvas_width", 1080)
	v.SetDefault("render.canvas_height", 1080)
	v.SetDefault("render.jpeg_quality", 95)
	v.SetDefault("render.photo_region", 0.55)
	v.SetDefault("render.title_max_chars", 60)
	v.SetDefault("render.title_max_lines", 2)
	v.SetDefault("render.photo_timeout_seconds", 10)
	v.SetDefault("ledger.path", "output/data/products.json")
	v.SetDefault("storage.prefix", "images")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scraper.TimeoutSeconds <= 0 {
		return fmt.Errorf("scraper.timeout_seconds must be > 0")
	}
	if c.Scraper.DelaySeconds < 0 {
		return fmt.Errorf("scraper.delay_seconds must be >= 0")
	}
	if c.Render.CanvasWidth <= 0 || c.Render.CanvasHeight <= 0 {
		return fmt.Errorf("render canvas dimensions must be > 0")
	}
	if c.Render.PhotoRegion <= 0 || c.Render.PhotoRegion >= 1 {
		return fmt.Errorf("render.photo_region must be between 0 and 1")
	}
	if c.Render.JPEGQuality < 1 || c.Render.JPEGQuality > 100 {
		return fmt.Errorf("render.jpeg_quality must be in [1,100]")
	}
	if c.Ledger.Path == "" && c.Ledger.DSN == "" {
		return fmt.Errorf("ledger.path or ledger.dsn must be set")
	}
	return nil
}

// RequestTimeout converts the scraper timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Scraper.TimeoutSeconds) * time.Second
}

// ScrapeDelay returns the minimum pause between extraction attempts.
func (c Config) ScrapeDelay() time.Duration {
	return time.Duration(c.Scraper.DelaySeconds) * time.Second
}
