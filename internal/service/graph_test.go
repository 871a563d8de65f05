package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/storygraph/internal/builder"
	"github.com/persistorai/storygraph/internal/cache"
	"github.com/persistorai/storygraph/internal/discovery"
	"github.com/persistorai/storygraph/internal/kv"
	"github.com/persistorai/storygraph/internal/manifest"
	"github.com/persistorai/storygraph/internal/materialize"
	"github.com/persistorai/storygraph/internal/models"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)

	return l
}

func node(id string) models.GraphElement {
	return models.NodeElement(models.Node{ID: id, Label: "N" + id})
}

// chapterPayload is a two-event chapter: node 1 at event 1, node 2 added at event 2.
func chapterPayload(bookID, chapterIdx int) *models.ChapterCachePayload {
	return &models.ChapterCachePayload{
		BookID:      bookID,
		ChapterIdx:  chapterIdx,
		MaxEventIdx: 2,
		BaseSnapshot: &models.BaseSnapshot{
			EventIdx:   1,
			Elements:   []models.GraphElement{node("1")},
			Characters: []models.Character{{ID: "1", Name: "N1"}},
		},
		Diffs: []models.DiffRecord{{
			EventIdx:    2,
			ElementDiff: models.ElementDiff{Added: []models.GraphElement{node("2")}},
		}},
		EventSummaries: []models.EventSummary{{EventIdx: 1}, {EventIdx: 2}},
		Source:         models.SourceManifest,
	}
}

type fixture struct {
	svc     *GraphService
	cache   *cache.Store
	disc    *mockDiscoverer
	fetcher *mockManifestFetcher
}

// newFixture wires a GraphService whose discoverer persists what it builds,
// like the real one.
func newFixture(t *testing.T, build func(ctx context.Context, bookID, chapterIdx int) (*models.ChapterCachePayload, error)) *fixture {
	t.Helper()

	return newFixtureWithStore(t, kv.NewMemoryStore(), build)
}

func newFixtureWithStore(
	t *testing.T,
	store kv.Store,
	build func(ctx context.Context, bookID, chapterIdx int) (*models.ChapterCachePayload, error),
) *fixture {
	t.Helper()

	c := cache.New(store, testLogger(), cache.DefaultOptions())
	ms := manifest.New(c, testLogger())
	fetcher := &mockManifestFetcher{err: models.ErrManifestNotFound}

	disc := &mockDiscoverer{}
	disc.discover = func(ctx context.Context, bookID, chapterIdx int, _ bool) (*models.ChapterCachePayload, error) {
		p, err := build(ctx, bookID, chapterIdx)
		if err != nil {
			return nil, err
		}
		if err := c.PutChapter(ctx, p); err != nil {
			return p, err
		}

		return p, nil
	}

	return &fixture{
		svc:     NewGraphService(c, ms, fetcher, disc, testLogger()),
		cache:   c,
		disc:    disc,
		fetcher: fetcher,
	}
}

func TestGetEventState(t *testing.T) {
	fx := newFixture(t, func(_ context.Context, b, c int) (*models.ChapterCachePayload, error) {
		return chapterPayload(b, c), nil
	})
	ctx := context.Background()

	tests := []struct {
		name      string
		eventIdx  int
		wantEvent int
		wantElems int
	}{
		{name: "base", eventIdx: 1, wantEvent: 1, wantElems: 1},
		{name: "after diff", eventIdx: 2, wantEvent: 2, wantElems: 2},
		{name: "past end", eventIdx: 9, wantEvent: 2, wantElems: 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			state, ok := fx.svc.GetEventState(ctx, 5, 3, tc.eventIdx)
			if !ok {
				t.Fatal("expected a state")
			}
			if state.BookID != 5 || state.ChapterIdx != 3 {
				t.Errorf("state ids = %d/%d, want 5/3", state.BookID, state.ChapterIdx)
			}
			if state.EventIdx != tc.wantEvent || len(state.Elements) != tc.wantElems {
				t.Errorf("event %d with %d elements, want %d with %d", state.EventIdx, len(state.Elements), tc.wantEvent, tc.wantElems)
			}
		})
	}

	if n := len(fx.disc.getCalls()); n != 1 {
		t.Errorf("discover called %d times, want 1 (later reads hit the cache)", n)
	}
}

func TestGetEventState_NoGraph(t *testing.T) {
	tests := []struct {
		name  string
		build func(context.Context, int, int) (*models.ChapterCachePayload, error)
	}{
		{
			name: "empty chapter",
			build: func(_ context.Context, b, c int) (*models.ChapterCachePayload, error) {
				return &models.ChapterCachePayload{BookID: b, ChapterIdx: c, Source: models.SourceEmpty}, nil
			},
		},
		{
			name: "discovery failed",
			build: func(context.Context, int, int) (*models.ChapterCachePayload, error) {
				return nil, errors.New("upstream down")
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fx := newFixture(t, tc.build)

			if state, ok := fx.svc.GetEventState(context.Background(), 1, 1, 1); ok || state != nil {
				t.Errorf("got (%+v, %v), want (nil, false)", state, ok)
			}
		})
	}
}

func TestEnsureChapter_Force(t *testing.T) {
	fx := newFixture(t, func(_ context.Context, b, c int) (*models.ChapterCachePayload, error) {
		return chapterPayload(b, c), nil
	})
	ctx := context.Background()

	if _, err := fx.svc.EnsureChapter(ctx, 1, 1, false); err != nil {
		t.Fatalf("EnsureChapter: %v", err)
	}
	if _, err := fx.svc.EnsureChapter(ctx, 1, 1, false); err != nil {
		t.Fatalf("EnsureChapter: %v", err)
	}
	if _, err := fx.svc.EnsureChapter(ctx, 1, 1, true); err != nil {
		t.Fatalf("forced EnsureChapter: %v", err)
	}

	calls := fx.disc.getCalls()
	if len(calls) != 2 || calls[0].Force || !calls[1].Force {
		t.Errorf("discover calls = %+v, want one normal and one forced", calls)
	}
}

func TestEnsureBook(t *testing.T) {
	fx := newFixture(t, func(_ context.Context, b, c int) (*models.ChapterCachePayload, error) {
		return chapterPayload(b, c), nil
	})
	fx.fetcher.err = nil
	fx.fetcher.manifest = &models.Manifest{Chapters: []models.Chapter{{Idx: 3}, {Idx: 1}, {Idx: 2}}}

	sum, err := fx.svc.EnsureBook(context.Background(), 8)
	if err != nil {
		t.Fatalf("EnsureBook: %v", err)
	}

	if len(sum.Chapters) != 3 {
		t.Fatalf("summary has %d chapters, want 3", len(sum.Chapters))
	}

	calls := fx.disc.getCalls()
	for i, c := range calls {
		if c.ChapterIdx != i+1 {
			t.Errorf("call %d built chapter %d, want %d", i, c.ChapterIdx, i+1)
		}
	}

	stored, err := fx.cache.GetBookSummary(context.Background(), 8)
	if err != nil || len(stored.Chapters) != 3 || stored.Chapters[0].MaxEventIdx != 2 || stored.Chapters[0].EventCount != 2 {
		t.Errorf("stored summary = %+v, %v", stored, err)
	}
}

func TestEnsureBook_Aborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := newFixture(t, func(_ context.Context, b, c int) (*models.ChapterCachePayload, error) {
		if c == 1 {
			cancel()
			// Let the departing caller release the shared build context.
			time.Sleep(20 * time.Millisecond)
		}

		return chapterPayload(b, c), nil
	})
	fx.fetcher.err = nil
	fx.fetcher.manifest = &models.Manifest{Chapters: []models.Chapter{{Idx: 1}, {Idx: 2}, {Idx: 3}}}

	_, err := fx.svc.EnsureBook(ctx, 8)
	if !errors.Is(err, models.ErrAborted) {
		t.Fatalf("got %v, want ErrAborted", err)
	}

	time.Sleep(20 * time.Millisecond)

	for _, c := range fx.disc.getCalls() {
		if c.ChapterIdx > 1 {
			t.Errorf("chapter %d built after cancellation", c.ChapterIdx)
		}
	}

	if _, err := fx.cache.GetBookSummary(context.Background(), 8); err == nil {
		t.Error("aborted build wrote a summary")
	}
}

func TestEnsureBook_NoManifest(t *testing.T) {
	fx := newFixture(t, func(_ context.Context, b, c int) (*models.ChapterCachePayload, error) {
		return chapterPayload(b, c), nil
	})

	if _, err := fx.svc.EnsureBook(context.Background(), 4); !errors.Is(err, models.ErrManifestNotFound) {
		t.Errorf("got %v, want ErrManifestNotFound", err)
	}

	// With cached chapters the build falls back to refreshing those.
	_ = fx.cache.PutChapter(context.Background(), chapterPayload(4, 7))

	sum, err := fx.svc.EnsureBook(context.Background(), 4)
	if err != nil || len(sum.Chapters) != 1 || sum.Chapters[0].ChapterIdx != 7 {
		t.Errorf("fallback summary = %+v, %v", sum, err)
	}
}

func TestInvalidateAndSummary(t *testing.T) {
	fx := newFixture(t, func(_ context.Context, b, c int) (*models.ChapterCachePayload, error) {
		return chapterPayload(b, c), nil
	})
	ctx := context.Background()

	for _, c := range []int{2, 1} {
		if _, err := fx.svc.EnsureChapter(ctx, 6, c, false); err != nil {
			t.Fatalf("EnsureChapter: %v", err)
		}
	}

	sum, err := fx.svc.BookSummary(ctx, 6)
	if err != nil {
		t.Fatalf("BookSummary: %v", err)
	}
	if len(sum.Chapters) != 2 || sum.Chapters[0].ChapterIdx != 1 {
		t.Errorf("summary = %+v", sum.Chapters)
	}

	if err := fx.svc.Invalidate(ctx, 6, 1); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	if _, err := fx.cache.GetChapter(ctx, 6, 1); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("chapter survived invalidation: %v", err)
	}

	sum, err = fx.svc.BookSummary(ctx, 6)
	if err != nil || len(sum.Chapters) != 1 || sum.Chapters[0].ChapterIdx != 2 {
		t.Errorf("rebuilt summary = %+v, %v", sum, err)
	}
}

func TestEnsureChapter_UpdatesExistingSummary(t *testing.T) {
	maxEvent := 2
	fx := newFixture(t, func(_ context.Context, b, c int) (*models.ChapterCachePayload, error) {
		p := chapterPayload(b, c)
		p.MaxEventIdx = maxEvent

		return p, nil
	})
	ctx := context.Background()

	if _, err := fx.svc.EnsureChapter(ctx, 2, 1, false); err != nil {
		t.Fatalf("EnsureChapter: %v", err)
	}
	if _, err := fx.svc.BookSummary(ctx, 2); err != nil {
		t.Fatalf("BookSummary: %v", err)
	}

	maxEvent = 5
	if _, err := fx.svc.EnsureChapter(ctx, 2, 1, true); err != nil {
		t.Fatalf("forced EnsureChapter: %v", err)
	}
	if _, err := fx.svc.EnsureChapter(ctx, 2, 4, false); err != nil {
		t.Fatalf("EnsureChapter: %v", err)
	}

	sum, err := fx.svc.BookSummary(ctx, 2)
	if err != nil {
		t.Fatalf("BookSummary: %v", err)
	}
	if len(sum.Chapters) != 2 || sum.Chapters[0].MaxEventIdx != 5 || sum.Chapters[1].ChapterIdx != 4 {
		t.Errorf("summary = %+v", sum.Chapters)
	}
}

func TestLocate(t *testing.T) {
	fx := newFixture(t, nil)
	fx.fetcher.err = nil
	fx.fetcher.manifest = &models.Manifest{Chapters: []models.Chapter{
		{Idx: 1, StartPos: 0, EndPos: 1000, Events: []models.EventStub{{Idx: 1, StartPos: 0, EndPos: 400}, {Idx: 2, StartPos: 400, EndPos: 1000}}},
		{Idx: 2, StartPos: 1000, EndPos: 2000, Events: []models.EventStub{{Idx: 1, StartPos: 1200, EndPos: 2000}}},
	}}

	tests := []struct {
		pos         int
		wantChapter int
		wantEvent   int
	}{
		{pos: 10, wantChapter: 1, wantEvent: 1},
		{pos: 500, wantChapter: 1, wantEvent: 2},
		{pos: 1100, wantChapter: 2, wantEvent: 0},
		{pos: 5000, wantChapter: 2, wantEvent: 1},
	}

	for _, tc := range tests {
		loc, err := fx.svc.Locate(context.Background(), 1, tc.pos)
		if err != nil {
			t.Fatalf("Locate(%d): %v", tc.pos, err)
		}
		if loc.ChapterIdx != tc.wantChapter || loc.EventIdx != tc.wantEvent {
			t.Errorf("Locate(%d) = %d/%d, want %d/%d", tc.pos, loc.ChapterIdx, loc.EventIdx, tc.wantChapter, tc.wantEvent)
		}
	}

	if _, err := fx.svc.Locate(context.Background(), 1, -1); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("negative position: got %v, want ErrNotFound", err)
	}
	if fx.fetcher.calls != 1 {
		t.Errorf("manifest fetched %d times, want 1", fx.fetcher.calls)
	}
}

func TestGetEventState_PayloadWithWriteError(t *testing.T) {
	fx := newFixture(t, nil)
	fx.disc.discover = func(_ context.Context, b, c int, _ bool) (*models.ChapterCachePayload, error) {
		return chapterPayload(b, c), errors.New("write failed")
	}

	state, ok := fx.svc.GetEventState(context.Background(), 2, 1, 2)
	if !ok || len(state.Elements) != 2 {
		t.Fatalf("got (%+v, %v), want the event-2 graph", state, ok)
	}
}

// keysFailKV fails prefix listing only.
type keysFailKV struct{ *kv.MemoryStore }

func (keysFailKV) Keys(context.Context, string) ([]string, error) {
	return nil, errors.New("scan failed")
}

func TestEnsureBook_ListingFailureWithManifest(t *testing.T) {
	fx := newFixtureWithStore(t, keysFailKV{kv.NewMemoryStore()}, func(_ context.Context, b, c int) (*models.ChapterCachePayload, error) {
		return chapterPayload(b, c), nil
	})
	fx.fetcher.err = nil
	fx.fetcher.manifest = &models.Manifest{Chapters: []models.Chapter{{Idx: 1}, {Idx: 2}}}

	sum, err := fx.svc.EnsureBook(context.Background(), 9)
	if err != nil {
		t.Fatalf("EnsureBook: %v", err)
	}
	if len(sum.Chapters) != 2 {
		t.Errorf("summary has %d chapters, want 2", len(sum.Chapters))
	}
}

func TestEnsureBook_ListingFailureWithoutManifest(t *testing.T) {
	fx := newFixtureWithStore(t, keysFailKV{kv.NewMemoryStore()}, func(_ context.Context, b, c int) (*models.ChapterCachePayload, error) {
		return chapterPayload(b, c), nil
	})

	if _, err := fx.svc.EnsureBook(context.Background(), 9); !errors.Is(err, models.ErrManifestNotFound) {
		t.Errorf("got %v, want ErrManifestNotFound", err)
	}
}

// fakeUpstream serves a manifest and per-event data; listed indices fail.
type fakeUpstream struct {
	manifest *models.Manifest
	events   map[int]*models.RawEventData
	fail     map[int]bool
}

func (f *fakeUpstream) FetchManifest(context.Context, int) (*models.Manifest, error) {
	if f.manifest == nil {
		return nil, models.ErrManifestNotFound
	}

	cp := *f.manifest

	return &cp, nil
}

func (f *fakeUpstream) FetchEvent(_ context.Context, _, _, eventIdx int) (*models.RawEventData, error) {
	if f.fail[eventIdx] {
		return nil, errors.New("upstream 502")
	}

	ev, ok := f.events[eventIdx]
	if !ok {
		return nil, models.ErrEventNotFound
	}

	cp := *ev

	return &cp, nil
}

func TestGetEventState_ColdChapterUsesManifest(t *testing.T) {
	up := &fakeUpstream{
		manifest: &models.Manifest{Chapters: []models.Chapter{{
			Idx: 1,
			Events: []models.EventStub{
				{Idx: 1, StartPos: 0, EndPos: 100},
				{Idx: 2, StartPos: 100, EndPos: 200},
				{Idx: 3, StartPos: 200, EndPos: 300},
			},
		}}},
		events: map[int]*models.RawEventData{
			1: {
				Characters: []models.Character{{ID: "1", Name: "A"}, {ID: "2", Name: "B"}},
				Relations:  []models.Relation{{ID1: "1", ID2: "2", Relation: []string{"ally"}}},
			},
			3: {
				Characters: []models.Character{{ID: "3", Name: "C"}},
				Relations:  []models.Relation{{ID1: "2", ID2: "3", Relation: []string{"rival"}}},
			},
		},
		fail: map[int]bool{2: true},
	}

	mat, err := materialize.New(materialize.DefaultOptions())
	if err != nil {
		t.Fatalf("materialize.New: %v", err)
	}

	c := cache.New(kv.NewMemoryStore(), testLogger(), cache.DefaultOptions())
	ms := manifest.New(c, testLogger())
	opts := discovery.DefaultOptions()
	opts.FetchDelay = 0
	disc := discovery.New(c, ms, up, builder.New(mat, testLogger()), testLogger(), opts)
	svc := NewGraphService(c, ms, up, disc, testLogger())

	ctx := context.Background()

	state, ok := svc.GetEventState(ctx, 1, 1, 3)
	if !ok {
		t.Fatal("expected a state at event 3")
	}
	if state.EventIdx != 3 {
		t.Errorf("state event = %d, want 3", state.EventIdx)
	}

	p, err := c.GetChapter(ctx, 1, 1)
	if err != nil {
		t.Fatalf("GetChapter: %v", err)
	}
	if p.Source != models.SourceManifest || p.MaxEventIdx != 3 {
		t.Errorf("source=%q max=%d, want manifest/3", p.Source, p.MaxEventIdx)
	}
	if len(p.EventSummaries) != 3 || !p.EventSummaries[1].Stub {
		t.Errorf("summaries = %+v, want event 2 as a stub", p.EventSummaries)
	}
}
