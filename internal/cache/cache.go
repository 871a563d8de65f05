// Package cache is the two-tier graph cache: an in-process mirror in front of
// a durable kv.Store, with per-namespace TTLs, corruption recovery and
// coalescing of concurrent chapter and book builds.
//
// Three namespaces share the durable store:
//
//	{bookId}-{chapterIdx}     ChapterCachePayload, TTL 24h by default
//	manifest_cache_{bookId}   {data, timestamp} manifest envelope, TTL 15m
//	graph_cache_{bookId}      BookSummary, no TTL
//
// Reads report failures as *models.CacheError so callers can tell a plain
// miss from an expired, corrupt or unreachable entry.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/persistorai/storygraph/internal/kv"
	"github.com/persistorai/storygraph/internal/metrics"
	"github.com/persistorai/storygraph/internal/models"
)

// Namespaces, used as metric labels.
const (
	NamespaceChapter  = "chapter"
	NamespaceManifest = "manifest"
	NamespaceSummary  = "summary"
)

// Default TTLs.
const (
	DefaultChapterTTL  = 24 * time.Hour
	DefaultManifestTTL = 15 * time.Minute
)

// ChapterKey returns the durable key of a chapter payload.
func ChapterKey(bookID, chapterIdx int) string {
	return fmt.Sprintf("%d-%d", bookID, chapterIdx)
}

// ManifestKey returns the durable key of a manifest envelope.
func ManifestKey(bookID int) string {
	return fmt.Sprintf("manifest_cache_%d", bookID)
}

// SummaryKey returns the durable key of a book summary.
func SummaryKey(bookID int) string {
	return fmt.Sprintf("graph_cache_%d", bookID)
}

// Options configures a Store.
type Options struct {
	ChapterTTL  time.Duration
	ManifestTTL time.Duration
}

// DefaultOptions returns the standard TTLs.
func DefaultOptions() Options {
	return Options{ChapterTTL: DefaultChapterTTL, ManifestTTL: DefaultManifestTTL}
}

type mirrorEntry struct {
	value    any
	storedAt time.Time
}

// manifestEnvelope is the durable shape of a manifest entry.
type manifestEnvelope struct {
	Data      *models.Manifest `json:"data"`
	Timestamp time.Time        `json:"timestamp"`
}

// Store is the graph cache. It is safe for concurrent use.
type Store struct {
	kv   kv.Store
	log  *logrus.Logger
	opts Options
	now  func() time.Time

	mu     sync.RWMutex
	mirror map[string]mirrorEntry

	chapterFlight  singleflight.Group
	bookFlight     singleflight.Group
	manifestFlight singleflight.Group

	chapterLive  flights
	bookLive     flights
	manifestLive flights
}

// New creates a Store over durable. Zero TTLs fall back to the defaults.
func New(durable kv.Store, log *logrus.Logger, opts Options) *Store {
	if opts.ChapterTTL <= 0 {
		opts.ChapterTTL = DefaultChapterTTL
	}
	if opts.ManifestTTL <= 0 {
		opts.ManifestTTL = DefaultManifestTTL
	}

	return &Store{
		kv:     durable,
		log:    log,
		opts:   opts,
		now:    time.Now,
		mirror: make(map[string]mirrorEntry),
	}
}

// WithClock overrides the clock used for timestamps and expiry.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Ping checks the durable tier.
func (s *Store) Ping(ctx context.Context) error {
	return s.kv.Ping(ctx)
}

// Evict drops key from the in-process mirror only. Used when another
// instance changed the durable entry.
func (s *Store) Evict(key string) {
	s.mu.Lock()
	delete(s.mirror, key)
	s.mu.Unlock()
}

func (s *Store) mirrored(key string) (mirrorEntry, bool) {
	s.mu.RLock()
	e, ok := s.mirror[key]
	s.mu.RUnlock()

	return e, ok
}

func (s *Store) remember(key string, value any, storedAt time.Time) {
	s.mu.Lock()
	s.mirror[key] = mirrorEntry{value: value, storedAt: storedAt}
	s.mu.Unlock()
}

// load reads key from the durable tier and decodes it into dst. Corrupt
// entries are deleted so the next read rebuilds.
func (s *Store) load(ctx context.Context, namespace, key string, dst any) error {
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		metrics.CacheLookups.WithLabelValues(namespace, string(models.KindMiss)).Inc()
		return &models.CacheError{Kind: models.KindMiss, Key: key}
	}
	if err != nil {
		metrics.CacheLookups.WithLabelValues(namespace, string(models.KindBackend)).Inc()
		return &models.CacheError{Kind: models.KindBackend, Key: key, Err: err}
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		metrics.CacheLookups.WithLabelValues(namespace, string(models.KindCorrupt)).Inc()
		s.log.WithError(err).WithField("key", key).Warn("corrupt cache entry, deleting")
		s.purge(ctx, key)

		return &models.CacheError{Kind: models.KindCorrupt, Key: key, Err: err}
	}

	return nil
}

func (s *Store) save(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}

	if err := s.kv.Set(ctx, key, raw, ttl); err != nil {
		return &models.CacheError{Kind: models.KindBackend, Key: key, Err: err}
	}

	return nil
}

// purge removes key from both tiers, logging durable failures.
func (s *Store) purge(ctx context.Context, key string) {
	s.Evict(key)

	if err := s.kv.Delete(ctx, key); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("deleting cache entry")
	}
}

func (s *Store) expired(storedAt time.Time, ttl time.Duration) bool {
	return ttl > 0 && s.now().Sub(storedAt) > ttl
}

// GetChapter returns the cached payload for a chapter.
func (s *Store) GetChapter(ctx context.Context, bookID, chapterIdx int) (*models.ChapterCachePayload, error) {
	key := ChapterKey(bookID, chapterIdx)

	if e, ok := s.mirrored(key); ok {
		if s.expired(e.storedAt, s.opts.ChapterTTL) {
			s.purge(ctx, key)
			metrics.CacheLookups.WithLabelValues(NamespaceChapter, string(models.KindExpired)).Inc()

			return nil, &models.CacheError{Kind: models.KindExpired, Key: key}
		}

		if p, ok := e.value.(*models.ChapterCachePayload); ok {
			metrics.CacheLookups.WithLabelValues(NamespaceChapter, "mirror_hit").Inc()
			return p, nil
		}
	}

	var p models.ChapterCachePayload
	if err := s.load(ctx, NamespaceChapter, key, &p); err != nil {
		return nil, err
	}

	if s.expired(p.Timestamp, s.opts.ChapterTTL) {
		s.purge(ctx, key)
		metrics.CacheLookups.WithLabelValues(NamespaceChapter, string(models.KindExpired)).Inc()

		return nil, &models.CacheError{Kind: models.KindExpired, Key: key}
	}

	metrics.CacheLookups.WithLabelValues(NamespaceChapter, "hit").Inc()
	s.remember(key, &p, p.Timestamp)

	return &p, nil
}

// PutChapter persists a payload. A zero Timestamp is set to now.
func (s *Store) PutChapter(ctx context.Context, p *models.ChapterCachePayload) error {
	if p == nil {
		return fmt.Errorf("put chapter: %w", models.ErrInvalidKey)
	}

	if p.Timestamp.IsZero() {
		p.Timestamp = s.now()
	}

	key := ChapterKey(p.BookID, p.ChapterIdx)
	if err := s.save(ctx, key, p, s.opts.ChapterTTL); err != nil {
		return err
	}

	s.remember(key, p, p.Timestamp)

	return nil
}

// DeleteChapter removes a chapter payload from both tiers.
func (s *Store) DeleteChapter(ctx context.Context, bookID, chapterIdx int) error {
	key := ChapterKey(bookID, chapterIdx)
	s.Evict(key)

	if err := s.kv.Delete(ctx, key); err != nil {
		return &models.CacheError{Kind: models.KindBackend, Key: key, Err: err}
	}

	return nil
}

// ChapterIndices lists the chapters of a book that have a durable payload,
// ascending.
func (s *Store) ChapterIndices(ctx context.Context, bookID int) ([]int, error) {
	prefix := strconv.Itoa(bookID) + "-"

	keys, err := s.kv.Keys(ctx, prefix)
	if err != nil {
		return nil, &models.CacheError{Kind: models.KindBackend, Key: prefix, Err: err}
	}

	out := make([]int, 0, len(keys))
	for _, k := range keys {
		idx, err := strconv.Atoi(strings.TrimPrefix(k, prefix))
		if err != nil {
			continue
		}
		out = append(out, idx)
	}

	slices.Sort(out)

	return slices.Compact(out), nil
}

// GetManifest returns the cached manifest if younger than the manifest TTL.
// An expired entry is purged from both tiers.
func (s *Store) GetManifest(ctx context.Context, bookID int) (*models.Manifest, error) {
	key := ManifestKey(bookID)

	var env manifestEnvelope

	if e, ok := s.mirrored(key); ok {
		if m, ok := e.value.(*models.Manifest); ok {
			env = manifestEnvelope{Data: m, Timestamp: e.storedAt}
		}
	}

	hitLabel := "mirror_hit"
	if env.Data == nil {
		if err := s.load(ctx, NamespaceManifest, key, &env); err != nil {
			return nil, err
		}
		hitLabel = "hit"
	}

	if env.Data == nil {
		metrics.CacheLookups.WithLabelValues(NamespaceManifest, string(models.KindCorrupt)).Inc()
		s.purge(ctx, key)

		return nil, &models.CacheError{Kind: models.KindCorrupt, Key: key, Err: errors.New("envelope without data")}
	}

	if s.expired(env.Timestamp, s.opts.ManifestTTL) {
		metrics.CacheLookups.WithLabelValues(NamespaceManifest, string(models.KindExpired)).Inc()
		s.purge(ctx, key)

		return nil, &models.CacheError{Kind: models.KindExpired, Key: key}
	}

	metrics.CacheLookups.WithLabelValues(NamespaceManifest, hitLabel).Inc()
	s.remember(key, env.Data, env.Timestamp)

	return env.Data, nil
}

// PutManifest stores an already normalized manifest stamped with now.
func (s *Store) PutManifest(ctx context.Context, m *models.Manifest) error {
	if m == nil {
		return fmt.Errorf("put manifest: %w", models.ErrInvalidKey)
	}

	key := ManifestKey(m.BookID)
	env := manifestEnvelope{Data: m, Timestamp: s.now()}

	if err := s.save(ctx, key, env, s.opts.ManifestTTL); err != nil {
		return err
	}

	s.remember(key, m, env.Timestamp)

	return nil
}

// DeleteManifest removes a manifest from both tiers.
func (s *Store) DeleteManifest(ctx context.Context, bookID int) error {
	key := ManifestKey(bookID)
	s.Evict(key)

	if err := s.kv.Delete(ctx, key); err != nil {
		return &models.CacheError{Kind: models.KindBackend, Key: key, Err: err}
	}

	return nil
}

// GetBookSummary returns the stored summary. Summaries never expire.
func (s *Store) GetBookSummary(ctx context.Context, bookID int) (*models.BookSummary, error) {
	key := SummaryKey(bookID)

	if e, ok := s.mirrored(key); ok {
		if sum, ok := e.value.(*models.BookSummary); ok {
			metrics.CacheLookups.WithLabelValues(NamespaceSummary, "mirror_hit").Inc()
			return sum, nil
		}
	}

	var sum models.BookSummary
	if err := s.load(ctx, NamespaceSummary, key, &sum); err != nil {
		return nil, err
	}

	metrics.CacheLookups.WithLabelValues(NamespaceSummary, "hit").Inc()
	s.remember(key, &sum, sum.UpdatedAt)

	return &sum, nil
}

// PutBookSummary stores a summary without TTL.
func (s *Store) PutBookSummary(ctx context.Context, sum *models.BookSummary) error {
	if sum == nil {
		return fmt.Errorf("put summary: %w", models.ErrInvalidKey)
	}

	if sum.UpdatedAt.IsZero() {
		sum.UpdatedAt = s.now()
	}

	key := SummaryKey(sum.BookID)
	if err := s.save(ctx, key, sum, 0); err != nil {
		return err
	}

	s.remember(key, sum, sum.UpdatedAt)

	return nil
}

// DeleteBookSummary removes a summary from both tiers.
func (s *Store) DeleteBookSummary(ctx context.Context, bookID int) error {
	key := SummaryKey(bookID)
	s.Evict(key)

	if err := s.kv.Delete(ctx, key); err != nil {
		return &models.CacheError{Kind: models.KindBackend, Key: key, Err: err}
	}

	return nil
}
