// Package manifest normalizes book manifests and caches them with a short TTL.
package manifest

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/storygraph/internal/cache"
	"github.com/persistorai/storygraph/internal/models"
)

// Fetcher loads a manifest from upstream.
type Fetcher interface {
	FetchManifest(ctx context.Context, bookID int) (*models.Manifest, error)
}

// Store wraps the manifest namespace of the graph cache.
type Store struct {
	cache *cache.Store
	log   *logrus.Logger
}

// New creates a Store.
func New(c *cache.Store, log *logrus.Logger) *Store {
	return &Store{cache: c, log: log}
}

// Set normalizes m and caches it for bookID. The normalized manifest is
// returned even when the cache write fails.
func (s *Store) Set(ctx context.Context, bookID int, m *models.Manifest) (*models.Manifest, error) {
	n := Normalize(bookID, m, s.log)

	if err := s.cache.PutManifest(ctx, n); err != nil {
		return n, err
	}

	return n, nil
}

// Get returns the cached manifest, or false when absent or older than the
// manifest TTL.
func (s *Store) Get(ctx context.Context, bookID int) (*models.Manifest, bool) {
	m, err := s.cache.GetManifest(ctx, bookID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.log.WithError(err).WithField("book_id", bookID).Warn("reading cached manifest")
		}

		return nil, false
	}

	return m, true
}

// Prefetch returns the cached manifest or fetches, normalizes and caches it.
// Concurrent calls for one book share a single upstream request.
func (s *Store) Prefetch(ctx context.Context, bookID int, fetcher Fetcher) (*models.Manifest, error) {
	if m, ok := s.Get(ctx, bookID); ok {
		return m, nil
	}

	m, err := s.cache.DoManifest(ctx, bookID, func(ctx context.Context) (*models.Manifest, error) {
		raw, err := fetcher.FetchManifest(ctx, bookID)
		if err != nil {
			return nil, err
		}

		return s.Set(ctx, bookID, raw)
	})
	if err != nil && m != nil {
		s.log.WithError(err).WithField("book_id", bookID).Warn("caching manifest")
		return m, nil
	}

	return m, err
}

// EventStubs returns the declared events of a chapter from the cached
// manifest, or false when the manifest is missing or declares none.
func (s *Store) EventStubs(ctx context.Context, bookID, chapterIdx int) ([]models.EventStub, bool) {
	m, ok := s.Get(ctx, bookID)
	if !ok {
		return nil, false
	}

	ch, ok := m.Chapter(chapterIdx)
	if !ok || len(ch.Events) == 0 {
		return nil, false
	}

	return slices.Clone(ch.Events), true
}

// Normalize returns a copy of m with resolved chapter and event indices,
// duplicates dropped, everything sorted, and chapter bounds filled from
// the first and last event when absent.
func Normalize(bookID int, m *models.Manifest, log *logrus.Logger) *models.Manifest {
	out := &models.Manifest{BookID: bookID, Chapters: []models.Chapter{}}
	if m == nil {
		return out
	}

	seen := make(map[int]bool, len(m.Chapters))

	for i, ch := range m.Chapters {
		if ch.Idx <= 0 {
			ch.Idx = i + 1
		}

		if seen[ch.Idx] {
			log.WithFields(logrus.Fields{"book_id": bookID, "chapter_idx": ch.Idx}).
				Warn("duplicate chapter in manifest, keeping the first")
			continue
		}
		seen[ch.Idx] = true

		ch.Events = normalizeEvents(ch.Events)

		if n := len(ch.Events); n > 0 {
			if ch.StartPos == 0 {
				ch.StartPos = ch.Events[0].StartPos
			}
			if ch.EndPos <= ch.StartPos {
				ch.EndPos = ch.Events[n-1].EndPos
			}
		}

		out.Chapters = append(out.Chapters, ch)
	}

	slices.SortFunc(out.Chapters, func(a, b models.Chapter) int { return cmp.Compare(a.Idx, b.Idx) })

	return out
}

func normalizeEvents(in []models.EventStub) []models.EventStub {
	out := make([]models.EventStub, 0, len(in))
	seen := make(map[int]bool, len(in))

	for i, e := range in {
		if e.Idx <= 0 {
			e.Idx = i + 1
		}
		if seen[e.Idx] {
			continue
		}
		seen[e.Idx] = true

		out = append(out, e)
	}

	slices.SortFunc(out, func(a, b models.EventStub) int { return cmp.Compare(a.Idx, b.Idx) })

	return out
}
