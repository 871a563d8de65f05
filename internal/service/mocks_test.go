package service

import (
	"context"
	"sync"

	"github.com/persistorai/storygraph/internal/models"
)

// mockDiscoverer records calls and returns configured responses.
type mockDiscoverer struct {
	mu    sync.Mutex
	calls []discoverCall

	discover func(ctx context.Context, bookID, chapterIdx int, force bool) (*models.ChapterCachePayload, error)
}

type discoverCall struct {
	BookID     int
	ChapterIdx int
	Force      bool
}

func (m *mockDiscoverer) Discover(ctx context.Context, bookID, chapterIdx int, force bool) (*models.ChapterCachePayload, error) {
	m.mu.Lock()
	m.calls = append(m.calls, discoverCall{BookID: bookID, ChapterIdx: chapterIdx, Force: force})
	m.mu.Unlock()

	return m.discover(ctx, bookID, chapterIdx, force)
}

func (m *mockDiscoverer) getCalls() []discoverCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]discoverCall, len(m.calls))
	copy(cp, m.calls)

	return cp
}

// mockManifestFetcher serves a fixed manifest or error.
type mockManifestFetcher struct {
	mu    sync.Mutex
	calls int

	manifest *models.Manifest
	err      error
}

func (m *mockManifestFetcher) FetchManifest(_ context.Context, _ int) (*models.Manifest, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}

	return m.manifest, nil
}

// mockBookBuilder records EnsureBook calls.
type mockBookBuilder struct {
	mu    sync.Mutex
	calls []int

	ensureBook func(ctx context.Context, bookID int) (*models.BookSummary, error)
}

func (m *mockBookBuilder) EnsureBook(ctx context.Context, bookID int) (*models.BookSummary, error) {
	m.mu.Lock()
	m.calls = append(m.calls, bookID)
	m.mu.Unlock()

	if m.ensureBook == nil {
		return &models.BookSummary{BookID: bookID}, nil
	}

	return m.ensureBook(ctx, bookID)
}

func (m *mockBookBuilder) getCalls() []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]int, len(m.calls))
	copy(cp, m.calls)

	return cp
}
