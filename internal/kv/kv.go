// Package kv provides the durable key-value tier behind the graph cache.
//
// Values are opaque JSON blobs. Backends honour an optional TTL natively so
// abandoned entries age out even if the cache never reads them again; the
// cache layer still enforces its own timestamp-based expiry.
package kv

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("kv: key not found")

// Store is a durable string-to-blob store.
type Store interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes value. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys lists keys starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendBadger   = "badger"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("kv: empty key")
	}

	if len(key) > 512 {
		return fmt.Errorf("kv: key exceeds maximum length of 512")
	}

	return nil
}
