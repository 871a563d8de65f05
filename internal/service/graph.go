// Package service ties discovery, the chapter cache and reconstruction
// together behind the operations the UI layer calls.
package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/persistorai/storygraph/internal/cache"
	"github.com/persistorai/storygraph/internal/domain"
	"github.com/persistorai/storygraph/internal/manifest"
	"github.com/persistorai/storygraph/internal/models"
	"github.com/persistorai/storygraph/internal/reconstruct"
)

// ChapterDiscoverer builds a chapter payload, from cache unless force is set.
type ChapterDiscoverer interface {
	Discover(ctx context.Context, bookID, chapterIdx int, force bool) (*models.ChapterCachePayload, error)
}

// Compile-time check.
var _ domain.GraphService = (*GraphService)(nil)

// GraphService is the facade over the graph cache.
type GraphService struct {
	cache     *cache.Store
	manifests *manifest.Store
	fetcher   manifest.Fetcher
	disc      ChapterDiscoverer
	log       *logrus.Logger
}

// NewGraphService creates a GraphService.
func NewGraphService(
	c *cache.Store,
	manifests *manifest.Store,
	fetcher manifest.Fetcher,
	disc ChapterDiscoverer,
	log *logrus.Logger,
) *GraphService {
	return &GraphService{cache: c, manifests: manifests, fetcher: fetcher, disc: disc, log: log}
}

// GetEventState returns the graph at eventIdx. Every failure resolves to
// (nil, false); causes are logged.
func (s *GraphService) GetEventState(ctx context.Context, bookID, chapterIdx, eventIdx int) (*models.GraphState, bool) {
	fields := logrus.Fields{"book_id": bookID, "chapter_idx": chapterIdx, "event_idx": eventIdx}

	p, err := s.EnsureChapter(ctx, bookID, chapterIdx, false)
	if err != nil {
		if !errors.Is(err, models.ErrAborted) {
			s.log.WithError(err).WithFields(fields).Warn("loading chapter cache")
		}
		if p == nil {
			return nil, false
		}
	}

	state, err := reconstruct.Reconstruct(p, eventIdx)
	if err != nil {
		if !errors.Is(err, models.ErrNoBaseSnapshot) {
			s.log.WithError(err).WithFields(fields).Warn("reconstructing graph state")
		}

		return nil, false
	}

	state.BookID = bookID
	state.ChapterIdx = chapterIdx

	return state, true
}

// EnsureChapter returns the chapter payload, building it on a miss or when
// force is set. Concurrent builds of one chapter are coalesced. A payload
// can come back together with a cache write error; it is still usable.
func (s *GraphService) EnsureChapter(ctx context.Context, bookID, chapterIdx int, force bool) (*models.ChapterCachePayload, error) {
	if !force {
		if p, err := s.cache.GetChapter(ctx, bookID, chapterIdx); err == nil {
			return p, nil
		}
	}

	p, err := s.cache.DoChapter(ctx, bookID, chapterIdx, func(ctx context.Context) (*models.ChapterCachePayload, error) {
		if err := s.prefetchManifest(ctx, bookID); err != nil {
			return nil, err
		}

		p, err := s.disc.Discover(ctx, bookID, chapterIdx, force)
		if err == nil && p != nil {
			s.recordInSummary(ctx, p)
		}

		return p, err
	})
	if errors.Is(err, models.ErrAborted) {
		return nil, err
	}

	return p, err
}

// prefetchManifest loads the book manifest so discovery can walk the
// declared events. Only ErrAborted is returned; other failures fall back
// to a scan.
func (s *GraphService) prefetchManifest(ctx context.Context, bookID int) error {
	_, err := s.manifests.Prefetch(ctx, bookID, s.fetcher)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrAborted) || ctx.Err() != nil:
		return models.ErrAborted
	case errors.Is(err, models.ErrManifestNotFound):
		s.log.WithField("book_id", bookID).Debug("no manifest, scanning chapter")
	default:
		s.log.WithError(err).WithField("book_id", bookID).Warn("manifest prefetch failed, scanning chapter")
	}

	return nil
}

// recordInSummary upserts a freshly built chapter into an existing book
// summary. Missing summaries are left for BookSummary to rebuild.
func (s *GraphService) recordInSummary(ctx context.Context, p *models.ChapterCachePayload) {
	sum, err := s.cache.GetBookSummary(ctx, p.BookID)
	if err != nil {
		return
	}

	updated := &models.BookSummary{BookID: sum.BookID, Chapters: upsertChapter(sum.Chapters, chapterSummary(p))}
	if err := s.cache.PutBookSummary(ctx, updated); err != nil {
		s.log.WithError(err).WithField("book_id", p.BookID).Warn("updating book summary")
	}
}

// EnsureBook builds every chapter of a book in ascending order and writes
// the book summary. The context is checked once per chapter; cancellation
// returns ErrAborted. Concurrent calls for one book share a single build.
func (s *GraphService) EnsureBook(ctx context.Context, bookID int) (*models.BookSummary, error) {
	return s.cache.DoBook(ctx, bookID, func(ctx context.Context) (*models.BookSummary, error) {
		return s.buildBook(ctx, bookID)
	})
}

func (s *GraphService) buildBook(ctx context.Context, bookID int) (*models.BookSummary, error) {
	var (
		m      *models.Manifest
		mErr   error
		cached []int
		cErr   error
	)

	var g errgroup.Group

	g.Go(func() error {
		m, mErr = s.manifests.Prefetch(ctx, bookID, s.fetcher)
		return nil
	})

	g.Go(func() error {
		cached, cErr = s.cache.ChapterIndices(ctx, bookID)
		return nil
	})

	_ = g.Wait()

	if errors.Is(mErr, models.ErrAborted) || ctx.Err() != nil {
		return nil, models.ErrAborted
	}

	chapters := cached
	switch {
	case mErr == nil:
		chapters = chapterIndices(m)
	case cErr != nil:
		return nil, fmt.Errorf("book %d: %w; listing cached chapters: %w", bookID, mErr, cErr)
	case len(cached) == 0:
		return nil, fmt.Errorf("book %d: %w", bookID, mErr)
	default:
		s.log.WithError(mErr).WithField("book_id", bookID).Warn("manifest unavailable, refreshing cached chapters only")
	}

	sum := &models.BookSummary{BookID: bookID, Chapters: make([]models.ChapterSummary, 0, len(chapters))}

	for _, idx := range chapters {
		if ctx.Err() != nil {
			s.log.WithFields(logrus.Fields{"book_id": bookID, "chapter_idx": idx}).Info("book build aborted")
			return nil, models.ErrAborted
		}

		p, err := s.EnsureChapter(ctx, bookID, idx, false)
		if errors.Is(err, models.ErrAborted) {
			return nil, err
		}
		if err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{"book_id": bookID, "chapter_idx": idx}).Warn("building chapter")
		}
		if p == nil {
			continue
		}

		sum.Chapters = append(sum.Chapters, chapterSummary(p))
	}

	if err := s.cache.PutBookSummary(ctx, sum); err != nil {
		return nil, err
	}

	return sum, nil
}

// Invalidate drops a chapter payload and the book summary that lists it.
func (s *GraphService) Invalidate(ctx context.Context, bookID, chapterIdx int) error {
	if err := s.cache.DeleteChapter(ctx, bookID, chapterIdx); err != nil {
		return err
	}

	return s.cache.DeleteBookSummary(ctx, bookID)
}

// BookSummary returns the stored summary, rebuilding it from the cached
// chapter payloads when absent.
func (s *GraphService) BookSummary(ctx context.Context, bookID int) (*models.BookSummary, error) {
	sum, err := s.cache.GetBookSummary(ctx, bookID)
	if err == nil {
		return sum, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	indices, err := s.cache.ChapterIndices(ctx, bookID)
	if err != nil {
		return nil, err
	}

	sum = &models.BookSummary{BookID: bookID, Chapters: make([]models.ChapterSummary, 0, len(indices))}

	for _, idx := range indices {
		p, err := s.cache.GetChapter(ctx, bookID, idx)
		if err != nil {
			continue
		}
		sum.Chapters = append(sum.Chapters, chapterSummary(p))
	}

	if len(sum.Chapters) == 0 {
		return sum, nil
	}

	if err := s.cache.PutBookSummary(ctx, sum); err != nil {
		return nil, err
	}

	return sum, nil
}

// Locate maps an absolute reading position to a chapter and event using
// the book manifest.
func (s *GraphService) Locate(ctx context.Context, bookID, pos int) (*models.Location, error) {
	m, err := s.manifests.Prefetch(ctx, bookID, s.fetcher)
	if err != nil {
		return nil, err
	}

	ch, ok := m.ChapterForPosition(pos)
	if !ok {
		return nil, fmt.Errorf("position %d: %w", pos, models.ErrNotFound)
	}

	return &models.Location{
		BookID:     bookID,
		Position:   pos,
		ChapterIdx: ch.Idx,
		EventIdx:   ch.EventForPosition(pos),
	}, nil
}

// Ping checks the durable cache tier.
func (s *GraphService) Ping(ctx context.Context) error {
	return s.cache.Ping(ctx)
}

func chapterSummary(p *models.ChapterCachePayload) models.ChapterSummary {
	return models.ChapterSummary{
		ChapterIdx:  p.ChapterIdx,
		MaxEventIdx: p.MaxEventIdx,
		EventCount:  len(p.EventSummaries),
		BuiltAt:     p.Timestamp,
	}
}

func chapterIndices(m *models.Manifest) []int {
	out := make([]int, 0, len(m.Chapters))
	for _, ch := range m.Chapters {
		out = append(out, ch.Idx)
	}

	slices.Sort(out)

	return out
}

func upsertChapter(in []models.ChapterSummary, cs models.ChapterSummary) []models.ChapterSummary {
	out := make([]models.ChapterSummary, 0, len(in)+1)
	replaced := false

	for _, c := range in {
		if c.ChapterIdx == cs.ChapterIdx {
			out = append(out, cs)
			replaced = true

			continue
		}
		out = append(out, c)
	}

	if !replaced {
		out = append(out, cs)
		slices.SortFunc(out, func(a, b models.ChapterSummary) int { return a.ChapterIdx - b.ChapterIdx })
	}

	return out
}
