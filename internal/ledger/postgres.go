package ledger

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// MirrorConfig controls the Postgres connection pool used for ledger rows.
type MirrorConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Mirror copies ledger entries into Postgres as they are recorded. It is an
// optional secondary sink for reporting; the file ledger stays the source
// of truth, so mirror failures are logged by the caller and never abort a
// run.
type Mirror struct {
	pool  execCloser
	table string
}

// NewMirror creates a Postgres-backed Mirror using the provided config.
func NewMirror(ctx context.Context, cfg MirrorConfig) (*Mirror, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "products"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Mirror{pool: pool, table: table}, nil
}

// NewMirrorWithPool constructs a mirror from an existing pool (primarily
// for testing).
func NewMirrorWithPool(pool execCloser, table string) (*Mirror, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "products"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Mirror{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (m *Mirror) Close() {
	if m == nil || m.pool == nil {
		return
	}
	m.pool.Close()
}

// Record inserts one ledger entry into Postgres.
func (m *Mirror) Record(ctx context.Context, e Entry) error {
	if m == nil || m.pool == nil {
		return fmt.Errorf("mirror is not configured")
	}
	if e.Identifier == "" {
		return fmt.Errorf("entry identifier is required")
	}

	var originalPrice, discountPercent *string
	if e.OriginalPrice != nil {
		v := e.OriginalPrice.String()
		originalPrice = &v
	}
	if e.DiscountPercent != nil {
		v := e.DiscountPercent.String()
		discountPercent = &v
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	internal_id,
	identifier,
	url,
	title,
	original_price,
	current_price,
	discount_percentage,
	currency,
	image_path,
	image_url,
	scraped_at,
	affiliate_link
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
) ON CONFLICT (identifier) DO NOTHING`, m.table)

	args := []any{
		e.InternalID,
		e.Identifier,
		e.URL,
		e.Title,
		originalPrice,
		e.CurrentPrice.String(),
		discountPercent,
		e.Currency,
		e.ImagePath,
		e.ImageURL,
		e.ScrapedAt,
		e.AffiliateLink,
	}
	if _, err := m.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}
