// Package postgres provides a Postgres-backed rank cache.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/trafficpeek/internal/clock"
	"github.com/JakeFAU/trafficpeek/internal/traffic"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "rank_cache"

// Config controls the Postgres connection pool used for cached ranks.
type Config struct {
	DSN             string
	Table           string
	TTL             time.Duration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// RankCache keeps ranks in a table keyed by domain. Expiry is evaluated on
// read against fetched_at.
type RankCache struct {
	pool  pool
	table string
	ttl   time.Duration
	clock traffic.Clock
}

// New creates a pool from cfg and returns a RankCache using it.
func New(ctx context.Context, cfg Config) (*RankCache, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("cache.postgres.dsn is required")
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	cache, err := NewWithPool(p, cfg.Table, cfg.TTL, nil)
	if err != nil {
		p.Close()
		return nil, err
	}
	return cache, nil
}

// NewWithPool constructs a cache from an existing pool (primarily for
// testing). A nil clock uses the system clock.
func NewWithPool(p pool, table string, ttl time.Duration, clk traffic.Clock) (*RankCache, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &RankCache{pool: p, table: table, ttl: ttl, clock: clk}, nil
}

// EnsureSchema creates the cache table when missing.
func (c *RankCache) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	domain     TEXT PRIMARY KEY,
	rank       INTEGER NOT NULL CHECK (rank > 0),
	fetched_at TIMESTAMPTZ NOT NULL
)`, c.table)
	if _, err := c.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", c.table, err)
	}
	return nil
}

// GetRank returns a rank fetched within the TTL.
func (c *RankCache) GetRank(ctx context.Context, domain string) (int, bool, error) {
	var (
		rank      int
		fetchedAt time.Time
	)
	query := fmt.Sprintf(`SELECT rank, fetched_at FROM %s WHERE domain = $1`, c.table)
	err := c.pool.QueryRow(ctx, query, domain).Scan(&rank, &fetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("select rank: %w", err)
	}
	if c.ttl > 0 && !c.clock.Now().Before(fetchedAt.Add(c.ttl)) {
		return 0, false, nil
	}
	return rank, true, nil
}

// SetRank upserts rank for domain.
func (c *RankCache) SetRank(ctx context.Context, domain string, rank int) error {
	query := fmt.Sprintf(`
INSERT INTO %s (domain, rank, fetched_at) VALUES ($1, $2, $3)
ON CONFLICT (domain) DO UPDATE SET rank = EXCLUDED.rank, fetched_at = EXCLUDED.fetched_at`, c.table)
	if _, err := c.pool.Exec(ctx, query, domain, rank, c.clock.Now()); err != nil {
		return fmt.Errorf("upsert rank: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (c *RankCache) Close() {
	if c == nil || c.pool == nil {
		return
	}
	c.pool.Close()
}
