// Package discovery walks a chapter's events, either from the indices the
// manifest declares or by scanning sequentially, and turns them into a
// cached chapter payload.
package discovery

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/persistorai/storygraph/internal/builder"
	"github.com/persistorai/storygraph/internal/cache"
	"github.com/persistorai/storygraph/internal/manifest"
	"github.com/persistorai/storygraph/internal/metrics"
	"github.com/persistorai/storygraph/internal/models"
)

// EventFetcher loads one event from upstream. It returns
// models.ErrEventNotFound when the event has not been generated yet.
type EventFetcher interface {
	FetchEvent(ctx context.Context, bookID, chapterIdx, eventIdx int) (*models.RawEventData, error)
}

// Options tunes discovery.
type Options struct {
	// FetchDelay spaces consecutive upstream calls. Zero disables pacing.
	FetchDelay time.Duration
	// MaxScanEvents bounds a sequential scan.
	MaxScanEvents int
	// EmptyStreakLimit is the number of consecutive contentless events that
	// ends a scan.
	EmptyStreakLimit int
}

// DefaultOptions returns the standard pacing and scan bounds.
func DefaultOptions() Options {
	return Options{FetchDelay: 50 * time.Millisecond, MaxScanEvents: 500, EmptyStreakLimit: 2}
}

// Discovery builds chapter payloads. Safe for concurrent use; the fetch
// limiter is shared by all chapters.
type Discovery struct {
	cache     *cache.Store
	manifests *manifest.Store
	fetcher   EventFetcher
	builder   *builder.Builder
	log       *logrus.Logger
	opts      Options
	limiter   *rate.Limiter
}

// New creates a Discovery.
func New(
	c *cache.Store,
	manifests *manifest.Store,
	fetcher EventFetcher,
	b *builder.Builder,
	log *logrus.Logger,
	opts Options,
) *Discovery {
	if opts.MaxScanEvents <= 0 {
		opts.MaxScanEvents = DefaultOptions().MaxScanEvents
	}
	if opts.EmptyStreakLimit <= 0 {
		opts.EmptyStreakLimit = DefaultOptions().EmptyStreakLimit
	}

	limit := rate.Inf
	if opts.FetchDelay > 0 {
		limit = rate.Every(opts.FetchDelay)
	}

	return &Discovery{
		cache:     c,
		manifests: manifests,
		fetcher:   fetcher,
		builder:   b,
		log:       log,
		opts:      opts,
		limiter:   rate.NewLimiter(limit, 1),
	}
}

// Discover returns the chapter payload, from cache unless force is set.
// Individual fetch failures degrade to stubs; the only error besides a
// cache write failure is ErrAborted when ctx ends mid-walk. A chapter with
// no discoverable events yields (and caches) an empty payload.
func (d *Discovery) Discover(ctx context.Context, bookID, chapterIdx int, force bool) (*models.ChapterCachePayload, error) {
	fields := logrus.Fields{"book_id": bookID, "chapter_idx": chapterIdx}

	if !force {
		p, err := d.cache.GetChapter(ctx, bookID, chapterIdx)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			d.log.WithError(err).WithFields(fields).Warn("chapter cache read failed, rebuilding")
		}
	}

	start := time.Now()

	var (
		events []models.RawEventData
		source string
		err    error
	)

	if stubs, ok := d.manifests.EventStubs(ctx, bookID, chapterIdx); ok {
		source = models.SourceManifest
		events, err = d.fromManifest(ctx, bookID, chapterIdx, stubs)
	} else {
		source = models.SourceScan
		events, err = d.scan(ctx, bookID, chapterIdx)
	}

	if err != nil {
		metrics.ChapterBuilds.WithLabelValues("aborted").Inc()
		return nil, err
	}

	payload := d.builder.Build(bookID, chapterIdx, events)
	payload.Source = source
	if payload.IsEmpty() {
		payload.Source = models.SourceEmpty
	}

	metrics.ChapterBuildDuration.Observe(time.Since(start).Seconds())
	metrics.ChapterBuilds.WithLabelValues(payload.Source).Inc()

	d.log.WithFields(fields).WithFields(logrus.Fields{
		"source":        payload.Source,
		"events":        len(events),
		"max_event_idx": payload.MaxEventIdx,
	}).Info("chapter cache built")

	if err := d.cache.PutChapter(ctx, payload); err != nil {
		return payload, err
	}

	return payload, nil
}

// fromManifest fetches every declared event in order. A failed fetch becomes
// a contentless stub carrying the manifest's bounds.
func (d *Discovery) fromManifest(ctx context.Context, bookID, chapterIdx int, stubs []models.EventStub) ([]models.RawEventData, error) {
	out := make([]models.RawEventData, 0, len(stubs))

	for _, stub := range stubs {
		ev, err := d.fetch(ctx, bookID, chapterIdx, stub.Idx)
		if errors.Is(err, models.ErrAborted) {
			return nil, err
		}

		if err != nil {
			out = append(out, stubEvent(stub.Idx, stub.StartPos, stub.EndPos))
			continue
		}

		if ev.Event.StartPos == 0 && ev.Event.EndPos == 0 {
			ev.Event.StartPos, ev.Event.EndPos = stub.StartPos, stub.EndPos
		}

		out = append(out, *ev)
	}

	return out, nil
}

// scan probes events 1, 2, ... until EmptyStreakLimit consecutive events
// have no content or MaxScanEvents is reached. Empty events between events
// with data are kept as stubs so indices stay contiguous; the trailing run
// that ended the scan is dropped.
func (d *Discovery) scan(ctx context.Context, bookID, chapterIdx int) ([]models.RawEventData, error) {
	var (
		out     []models.RawEventData
		pending []models.RawEventData
		streak  int
	)

	for idx := 1; idx <= d.opts.MaxScanEvents; idx++ {
		ev, err := d.fetch(ctx, bookID, chapterIdx, idx)
		if errors.Is(err, models.ErrAborted) {
			return nil, err
		}

		if err != nil || !ev.HasData() {
			pending = append(pending, stubEvent(idx, 0, 0))

			streak++
			if streak >= d.opts.EmptyStreakLimit {
				break
			}

			continue
		}

		out = append(out, pending...)
		out = append(out, *ev)
		pending = pending[:0]
		streak = 0
	}

	return out, nil
}

// fetch waits for the limiter and loads one event, normalizing its index.
// It returns ErrAborted when ctx ends.
func (d *Discovery) fetch(ctx context.Context, bookID, chapterIdx, eventIdx int) (*models.RawEventData, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, models.ErrAborted
	}

	fields := logrus.Fields{"book_id": bookID, "chapter_idx": chapterIdx, "event_idx": eventIdx}

	ev, err := d.fetcher.FetchEvent(ctx, bookID, chapterIdx, eventIdx)
	switch {
	case ctx.Err() != nil:
		return nil, models.ErrAborted
	case errors.Is(err, models.ErrEventNotFound):
		metrics.EventFetches.WithLabelValues("not_found").Inc()
		d.log.WithFields(fields).Debug("event not generated yet")

		return nil, err
	case err != nil:
		metrics.EventFetches.WithLabelValues("error").Inc()
		d.log.WithError(err).WithFields(fields).Warn("event fetch failed")

		return nil, err
	case ev == nil:
		metrics.EventFetches.WithLabelValues("not_found").Inc()
		return nil, models.ErrEventNotFound
	}

	metrics.EventFetches.WithLabelValues("ok").Inc()

	ev.EventIdx = eventIdx
	ev.Event.EventIdx = eventIdx

	return ev, nil
}

func stubEvent(idx, startPos, endPos int) models.RawEventData {
	return models.RawEventData{
		EventIdx: idx,
		Event:    models.EventMeta{EventIdx: idx, StartPos: startPos, EndPos: endPos},
		Stub:     true,
	}
}
