package kv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// BadgerConfig configures the embedded BadgerDB backend.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps everything in RAM; used by tests.
	InMemory bool
	// SyncWrites fsyncs every write.
	SyncWrites bool
	// GCInterval is how often value-log GC runs. Zero disables it.
	GCInterval time.Duration
	// GCDiscardRatio is the minimum garbage ratio before a rewrite.
	GCDiscardRatio float64
}

// DefaultBadgerConfig returns production defaults for path.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{Path: path, SyncWrites: true, GCInterval: 5 * time.Minute, GCDiscardRatio: 0.5}
}

// BadgerStore is a Store backed by an embedded BadgerDB.
type BadgerStore struct {
	db  *badger.DB
	cfg BadgerConfig
	log *logrus.Logger
}

var _ Store = (*BadgerStore)(nil)

// OpenBadger opens (creating if needed) a BadgerDB at cfg.Path.
func OpenBadger(cfg BadgerConfig, log *logrus.Logger) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger path is required for a persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("creating badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if log != nil {
		opts = opts.WithLogger(log)
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger database: %w", err)
	}

	return &BadgerStore{db: db, cfg: cfg, log: log}, nil
}

// Get returns the value for key.
func (s *BadgerStore) Get(_ context.Context, key string) ([]byte, error) {
	var value []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}

		value, err = item.ValueCopy(nil)

		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get %q: %w", key, err)
	}

	return value, nil
}

// Set writes value with an optional TTL.
func (s *BadgerStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}

		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("badger set %q: %w", key, err)
	}

	return nil
}

// Delete removes key.
func (s *BadgerStore) Delete(_ context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("badger delete %q: %w", key, err)
	}

	return nil
}

// Keys lists keys with the prefix in byte order.
func (s *BadgerStore) Keys(_ context.Context, prefix string) ([]string, error) {
	var keys []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger keys %q: %w", prefix, err)
	}

	return keys, nil
}

// Ping reports whether the database is still open.
func (s *BadgerStore) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger database is closed")
	}

	return nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// RunGC runs value-log garbage collection every GCInterval until ctx is
// cancelled. Call in a goroutine.
func (s *BadgerStore) RunGC(ctx context.Context) {
	if s.cfg.GCInterval <= 0 || s.cfg.InMemory {
		return
	}

	ratio := s.cfg.GCDiscardRatio
	if ratio <= 0 {
		ratio = 0.5
	}

	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				err := s.db.RunValueLogGC(ratio)
				if err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) && s.log != nil {
						s.log.WithError(err).Warn("badger value log gc failed")
					}
					break
				}
			}
		}
	}
}
