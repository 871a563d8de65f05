package api_test

import (
	"context"

	"github.com/persistorai/storygraph/internal/models"
)

// mockGraphService implements api.GraphService for testing.
type mockGraphService struct {
	stateFn      func(ctx context.Context, bookID, chapterIdx, eventIdx int) (*models.GraphState, bool)
	ensureFn     func(ctx context.Context, bookID, chapterIdx int, force bool) (*models.ChapterCachePayload, error)
	ensureBookFn func(ctx context.Context, bookID int) (*models.BookSummary, error)
	invalidateFn func(ctx context.Context, bookID, chapterIdx int) error
	summaryFn    func(ctx context.Context, bookID int) (*models.BookSummary, error)
	locateFn     func(ctx context.Context, bookID, pos int) (*models.Location, error)
}

func (m *mockGraphService) GetEventState(ctx context.Context, bookID, chapterIdx, eventIdx int) (*models.GraphState, bool) {
	return m.stateFn(ctx, bookID, chapterIdx, eventIdx)
}

func (m *mockGraphService) EnsureChapter(ctx context.Context, bookID, chapterIdx int, force bool) (*models.ChapterCachePayload, error) {
	return m.ensureFn(ctx, bookID, chapterIdx, force)
}

func (m *mockGraphService) EnsureBook(ctx context.Context, bookID int) (*models.BookSummary, error) {
	return m.ensureBookFn(ctx, bookID)
}

func (m *mockGraphService) Invalidate(ctx context.Context, bookID, chapterIdx int) error {
	return m.invalidateFn(ctx, bookID, chapterIdx)
}

func (m *mockGraphService) BookSummary(ctx context.Context, bookID int) (*models.BookSummary, error) {
	return m.summaryFn(ctx, bookID)
}

func (m *mockGraphService) Locate(ctx context.Context, bookID, pos int) (*models.Location, error) {
	return m.locateFn(ctx, bookID, pos)
}

// mockWarmer records enqueued book ids.
type mockWarmer struct {
	full   bool
	queued []int
}

func (m *mockWarmer) Enqueue(bookID int) bool {
	if m.full {
		return false
	}
	m.queued = append(m.queued, bookID)

	return true
}

// mockPinger implements api.Pinger.
type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(context.Context) error { return m.err }
