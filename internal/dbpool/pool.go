// Package dbpool owns the pgx connection pool behind the postgres cache
// backend.
package dbpool

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config sizes the pool.
type Config struct {
	DatabaseURL string
	// Workers is the number of goroutines that may hit the cache at once.
	// The pool reserves one extra connection for the LISTEN session.
	Workers int32
	// StatementTimeout caps every cache query server-side.
	StatementTimeout time.Duration
}

// DefaultConfig returns pool settings for url.
func DefaultConfig(url string) Config {
	return Config{DatabaseURL: url, Workers: 8, StatementTimeout: 10 * time.Second}
}

// Pool is the subset of pgxpool the cache store and listener use.
type Pool struct {
	pool *pgxpool.Pool
	dsn  string
}

// NewPool connects and pings the database.
func NewPool(ctx context.Context, cfg Config) (*Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "storygraph"

	pc.MaxConns = cfg.Workers + 1
	pc.MinConns = 1
	pc.MaxConnLifetime = 30 * time.Minute
	pc.MaxConnIdleTime = 5 * time.Minute
	pc.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()

		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Pool{pool: pool, dsn: cfg.DatabaseURL}, nil
}

// Acquire hands out a dedicated connection; the invalidation listener holds
// one for its LISTEN session.
func (p *Pool) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	return p.pool.Acquire(ctx)
}

func (p *Pool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return p.pool.Exec(ctx, sql, args...)
}

func (p *Pool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return p.pool.Query(ctx, sql, args...)
}

func (p *Pool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return p.pool.QueryRow(ctx, sql, args...)
}

func (p *Pool) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// DSN is the URL the pool was opened with; migrations reopen it through
// database/sql.
func (p *Pool) DSN() string {
	return p.dsn
}

func (p *Pool) Close() {
	p.pool.Close()
}
