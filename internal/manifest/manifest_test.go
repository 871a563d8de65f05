package manifest_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/storygraph/internal/cache"
	"github.com/persistorai/storygraph/internal/kv"
	"github.com/persistorai/storygraph/internal/manifest"
	"github.com/persistorai/storygraph/internal/models"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)

	return l
}

type fakeFetcher struct {
	calls   atomic.Int32
	release chan struct{}
	m       *models.Manifest
	err     error
}

func (f *fakeFetcher) FetchManifest(_ context.Context, bookID int) (*models.Manifest, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}

	return f.m, nil
}

func newStore(now *time.Time) *manifest.Store {
	clock := func() time.Time { return *now }
	c := cache.New(kv.NewMemoryStore().WithClock(clock), testLogger(), cache.DefaultOptions()).WithClock(clock)

	return manifest.New(c, testLogger())
}

func TestNormalize(t *testing.T) {
	raw := &models.Manifest{Chapters: []models.Chapter{
		{Idx: 3, StartPos: 500, EndPos: 900},
		{Events: []models.EventStub{{Idx: 2, StartPos: 150, EndPos: 300}, {Idx: 1, StartPos: 100, EndPos: 150}}},
		{Idx: 1, Events: []models.EventStub{{StartPos: 300}, {StartPos: 350, EndPos: 480}, {Idx: 1, StartPos: 999}}},
		{Idx: 3, StartPos: 1, EndPos: 2},
	}}

	got := manifest.Normalize(4, raw, testLogger())

	if got.BookID != 4 {
		t.Errorf("book id = %d", got.BookID)
	}
	if len(got.Chapters) != 3 {
		t.Fatalf("got %d chapters, want 3: %+v", len(got.Chapters), got.Chapters)
	}

	for i, ch := range got.Chapters {
		if ch.Idx != i+1 {
			t.Errorf("chapter %d idx = %d, want %d", i, ch.Idx, i+1)
		}
	}

	// Events without an index take their position; the later duplicate 1 is dropped.
	first := got.Chapters[0]
	if len(first.Events) != 2 || first.StartPos != 300 || first.EndPos != 480 {
		t.Errorf("chapter 1 = %+v", first)
	}

	// Index from position, bounds from the sorted events.
	second := got.Chapters[1]
	if second.StartPos != 100 || second.EndPos != 300 {
		t.Errorf("chapter 2 bounds = [%d,%d), want [100,300)", second.StartPos, second.EndPos)
	}
	if second.Events[0].Idx != 1 || second.Events[1].Idx != 2 {
		t.Errorf("events not sorted: %+v", second.Events)
	}

	// The first chapter 3 wins over its duplicate.
	if got.Chapters[2].StartPos != 500 {
		t.Errorf("duplicate chapter replaced the original: %+v", got.Chapters[2])
	}
}

func TestNormalize_Nil(t *testing.T) {
	got := manifest.Normalize(1, nil, testLogger())
	if got == nil || got.Chapters == nil || len(got.Chapters) != 0 {
		t.Errorf("got %+v, want empty manifest", got)
	}
}

func TestSetGet_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	s := newStore(&now)

	if _, ok := s.Get(ctx, 1); ok {
		t.Fatal("empty store returned a manifest")
	}

	if _, err := s.Set(ctx, 1, &models.Manifest{Chapters: []models.Chapter{{Idx: 1}}}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if m, ok := s.Get(ctx, 1); !ok || m.BookID != 1 {
		t.Fatalf("Get = (%+v, %v)", m, ok)
	}

	now = now.Add(16 * time.Minute)
	if _, ok := s.Get(ctx, 1); ok {
		t.Error("manifest older than 15 minutes was returned")
	}
}

func TestPrefetch_Coalesces(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	s := newStore(&now)
	f := &fakeFetcher{
		release: make(chan struct{}),
		m:       &models.Manifest{Chapters: []models.Chapter{{Idx: 1, Events: []models.EventStub{{Idx: 1}}}}},
	}

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Prefetch(context.Background(), 2, f); err != nil {
				t.Errorf("Prefetch: %v", err)
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(f.release)
	wg.Wait()

	if n := f.calls.Load(); n != 1 {
		t.Errorf("fetcher called %d times, want 1", n)
	}

	// Served from cache afterwards.
	if _, err := s.Prefetch(context.Background(), 2, f); err != nil || f.calls.Load() != 1 {
		t.Errorf("cached Prefetch: err=%v calls=%d", err, f.calls.Load())
	}

	stubs, ok := s.EventStubs(context.Background(), 2, 1)
	if !ok || len(stubs) != 1 {
		t.Errorf("EventStubs = (%v, %v)", stubs, ok)
	}
	if _, ok := s.EventStubs(context.Background(), 2, 9); ok {
		t.Error("EventStubs for an unknown chapter returned ok")
	}
}

func TestPrefetch_Error(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	s := newStore(&now)
	f := &fakeFetcher{err: models.ErrManifestNotFound}

	if _, err := s.Prefetch(context.Background(), 3, f); !errors.Is(err, models.ErrManifestNotFound) {
		t.Errorf("got %v, want ErrManifestNotFound", err)
	}
	if _, ok := s.Get(context.Background(), 3); ok {
		t.Error("failed prefetch cached a manifest")
	}
}

// readOnlyKV rejects writes.
type readOnlyKV struct{ *kv.MemoryStore }

func (readOnlyKV) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("read-only")
}

func TestPrefetch_WriteFailureStillReturnsManifest(t *testing.T) {
	c := cache.New(readOnlyKV{kv.NewMemoryStore()}, testLogger(), cache.DefaultOptions())
	s := manifest.New(c, testLogger())
	f := &fakeFetcher{m: &models.Manifest{Chapters: []models.Chapter{{Idx: 1, Events: []models.EventStub{{Idx: 1, StartPos: 0, EndPos: 10}}}}}}

	m, err := s.Prefetch(context.Background(), 4, f)
	if err != nil {
		t.Fatalf("Prefetch: %v", err)
	}
	if m == nil || m.BookID != 4 || len(m.Chapters) != 1 {
		t.Errorf("manifest = %+v, want the normalized upstream manifest", m)
	}
}
