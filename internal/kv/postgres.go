package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/storygraph/internal/dbpool"
)

const defaultQueryTimeout = 10 * time.Second

// PostgresStore is a Store over the graph_cache_entries table.
type PostgresStore struct {
	pool *dbpool.Pool
	log  *logrus.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an open pool. Migrations must already be applied.
func NewPostgresStore(pool *dbpool.Pool, log *logrus.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, log: log}
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultQueryTimeout)
}

// Get returns the value for key unless it has expired.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var value []byte

	err := s.pool.QueryRow(ctx,
		`SELECT value FROM graph_cache_entries
		 WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`,
		key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres get %q: %w", key, err)
	}

	return value, nil
}

// Set upserts value with an optional TTL.
func (s *PostgresStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl).UTC()
		expiresAt = &t
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO graph_cache_entries (key, value, expires_at, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (key) DO UPDATE
		 SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = now()`,
		key, value, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("postgres set %q: %w", key, err)
	}

	return nil
}

// Delete removes key.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := s.pool.Exec(ctx, `DELETE FROM graph_cache_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("postgres delete %q: %w", key, err)
	}

	return nil
}

// Keys lists live keys with the prefix, sorted.
func (s *PostgresStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT key FROM graph_cache_entries
		 WHERE key LIKE $1 ESCAPE '\' AND (expires_at IS NULL OR expires_at > now())
		 ORDER BY key`,
		escapeLike(prefix)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("postgres keys %q: %w", prefix, err)
	}

	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning keys: %w", err)
	}

	return keys, nil
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// PurgeExpired deletes rows past their expiry and returns how many went.
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM graph_cache_entries WHERE expires_at IS NOT NULL AND expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("purging expired entries: %w", err)
	}

	return tag.RowsAffected(), nil
}

// RunJanitor purges expired rows every interval until ctx is cancelled.
func (s *PostgresStore) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				s.log.WithError(err).Warn("cache janitor failed")
				continue
			}
			if n > 0 {
				s.log.WithField("purged", n).Debug("expired cache rows purged")
			}
		}
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Pool exposes the pool for the invalidation listener.
func (s *PostgresStore) Pool() *dbpool.Pool { return s.pool }
