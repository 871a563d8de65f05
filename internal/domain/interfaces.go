// Package domain defines the service interfaces shared by the HTTP API and
// the CLI. Consumers depend on these rather than on concrete services.
package domain

import (
	"context"

	"github.com/persistorai/storygraph/internal/models"
)

// GraphService serves per-event graph states from the chapter cache.
type GraphService interface {
	// GetEventState reconstructs the graph at an event, building the chapter
	// cache on a miss. It returns false when the chapter has no graph.
	GetEventState(ctx context.Context, bookID, chapterIdx, eventIdx int) (*models.GraphState, bool)
	EnsureChapter(ctx context.Context, bookID, chapterIdx int, force bool) (*models.ChapterCachePayload, error)
	EnsureBook(ctx context.Context, bookID int) (*models.BookSummary, error)
	Invalidate(ctx context.Context, bookID, chapterIdx int) error
	BookSummary(ctx context.Context, bookID int) (*models.BookSummary, error)
	Locate(ctx context.Context, bookID, pos int) (*models.Location, error)
}

// Warmer queues whole-book builds in the background.
type Warmer interface {
	// Enqueue reports false when the queue is full.
	Enqueue(bookID int) bool
}
