package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Option configures the pool.
type Option func(*pgxpool.Config)

// WithMaxConns sets the pool bounds. Zero keeps the pgx default.
func WithMaxConns(maxConns, minConns int32) Option {
	return func(c *pgxpool.Config) {
		if maxConns > 0 {
			c.MaxConns = maxConns
		}
		if minConns > 0 {
			c.MinConns = minConns
		}
	}
}

func WithMaxConnLifetime(d time.Duration) Option {
	return func(c *pgxpool.Config) {
		if d > 0 {
			c.MaxConnLifetime = d
		}
	}
}

// WithApplicationName tags connections for pg_stat_activity.
func WithApplicationName(name string) Option {
	return func(c *pgxpool.Config) {
		c.ConnConfig.RuntimeParams["application_name"] = name
	}
}

// ParseConfig builds a pool config from dsn and options without connecting.
func ParseConfig(dsn string, opts ...Option) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg, nil
}

// NewPool opens a pool and pings it.
func NewPool(ctx context.Context, dsn string, opts ...Option) (*pgxpool.Pool, error) {
	cfg, err := ParseConfig(dsn, opts...)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}
