package cache

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/persistorai/storygraph/internal/models"
)

// flight is the context a shared build runs under. It outlives any single
// caller and is cancelled once every caller waiting on it has gone.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// flights tracks the live flight per coalescing key.
type flights struct {
	mu sync.Mutex
	m  map[string]*flight
}

func (f *flights) join(key string, parent context.Context) *flight {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.m == nil {
		f.m = make(map[string]*flight)
	}

	fl, ok := f.m[key]
	if !ok {
		ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
		fl = &flight{ctx: ctx, cancel: cancel}
		f.m[key] = fl
	}
	fl.waiters++

	return fl
}

// leave reports whether fl was released, i.e. the caller was the last one.
func (f *flights) leave(key string, fl *flight) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	fl.waiters--
	if fl.waiters > 0 {
		return false
	}

	fl.cancel()
	if f.m[key] == fl {
		delete(f.m, key)
	}

	return true
}

// coalesce runs fn once per key for all concurrent callers. fn sees a
// context that stays live while at least one caller still waits. A caller
// whose own ctx ends gets ErrAborted; when it was the last one the build is
// cancelled and forgotten so the next caller starts afresh. The value is
// handed to every caller even when it comes with an error.
func coalesce[T any](
	ctx context.Context,
	group *singleflight.Group,
	live *flights,
	key string,
	fn func(context.Context) (T, error),
) (T, error) {
	var zero T

	fl := live.join(key, ctx)

	ch := group.DoChan(key, func() (any, error) {
		return fn(fl.ctx)
	})

	select {
	case <-ctx.Done():
		if live.leave(key, fl) {
			group.Forget(key)
		}

		return zero, models.ErrAborted
	case res := <-ch:
		live.leave(key, fl)

		v, _ := res.Val.(T)

		return v, res.Err
	}
}

// DoChapter runs build at most once at a time per chapter. Concurrent
// callers share its result, including a payload that comes back with a
// write error.
func (s *Store) DoChapter(
	ctx context.Context,
	bookID, chapterIdx int,
	build func(context.Context) (*models.ChapterCachePayload, error),
) (*models.ChapterCachePayload, error) {
	return coalesce(ctx, &s.chapterFlight, &s.chapterLive, ChapterKey(bookID, chapterIdx), build)
}

// DoBook is DoChapter for whole-book builds, keyed by book id.
func (s *Store) DoBook(
	ctx context.Context,
	bookID int,
	build func(context.Context) (*models.BookSummary, error),
) (*models.BookSummary, error) {
	return coalesce(ctx, &s.bookFlight, &s.bookLive, strconv.Itoa(bookID), build)
}

// DoManifest coalesces upstream manifest loads per book.
func (s *Store) DoManifest(
	ctx context.Context,
	bookID int,
	load func(context.Context) (*models.Manifest, error),
) (*models.Manifest, error) {
	return coalesce(ctx, &s.manifestFlight, &s.manifestLive, ManifestKey(bookID), load)
}
