package api_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/persistorai/storygraph/internal/api"
	"github.com/persistorai/storygraph/internal/models"
)

func bookRouter(svc *mockGraphService, warmer *mockWarmer) *gin.Engine {
	h := api.NewBookHandler(svc, warmer, testLogger())

	r := gin.New()
	r.POST("/books/:bookId/warm", h.Warm)
	r.GET("/books/:bookId/summary", h.Summary)
	r.GET("/books/:bookId/position/:pos", h.Position)

	return r
}

func TestWarm(t *testing.T) {
	t.Parallel()

	warmer := &mockWarmer{}
	r := bookRouter(&mockGraphService{}, warmer)

	w := doRequest(r, http.MethodPost, "/books/12/warm", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	if len(warmer.queued) != 1 || warmer.queued[0] != 12 {
		t.Errorf("queued = %v", warmer.queued)
	}

	warmer.full = true

	w = doRequest(r, http.MethodPost, "/books/12/warm", "")
	if w.Code != http.StatusServiceUnavailable || errorCode(t, w) != api.ErrCodeQueueFull {
		t.Errorf("full queue: got %d %s", w.Code, w.Body.String())
	}
}

func TestSummary(t *testing.T) {
	t.Parallel()

	svc := &mockGraphService{
		summaryFn: func(_ context.Context, bookID int) (*models.BookSummary, error) {
			return &models.BookSummary{
				BookID:   bookID,
				Chapters: []models.ChapterSummary{{ChapterIdx: 1, MaxEventIdx: 4, EventCount: 4}},
			}, nil
		},
	}

	w := doRequest(bookRouter(svc, &mockWarmer{}), http.MethodGet, "/books/5/summary", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var sum models.BookSummary
	decode(t, w, &sum)

	if sum.BookID != 5 || len(sum.Chapters) != 1 || sum.Chapters[0].MaxEventIdx != 4 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestPosition(t *testing.T) {
	t.Parallel()

	svc := &mockGraphService{
		locateFn: func(_ context.Context, bookID, pos int) (*models.Location, error) {
			switch bookID {
			case 1:
				return &models.Location{BookID: 1, Position: pos, ChapterIdx: 2, EventIdx: 3}, nil
			case 2:
				return nil, fmt.Errorf("book 2: %w", models.ErrManifestNotFound)
			default:
				return nil, fmt.Errorf("position %d: %w", pos, models.ErrNotFound)
			}
		},
	}
	r := bookRouter(svc, &mockWarmer{})

	tests := []struct {
		name     string
		path     string
		wantCode int
	}{
		{"located", "/books/1/position/1200", http.StatusOK},
		{"start of book", "/books/1/position/0", http.StatusOK},
		{"no manifest", "/books/2/position/10", http.StatusNotFound},
		{"out of range", "/books/3/position/10", http.StatusNotFound},
		{"negative", "/books/1/position/-5", http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := doRequest(r, http.MethodGet, tc.path, "")
			if w.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d: %s", tc.wantCode, w.Code, w.Body.String())
			}
		})
	}

	var loc models.Location
	decode(t, doRequest(r, http.MethodGet, "/books/1/position/1200", ""), &loc)

	if loc.ChapterIdx != 2 || loc.EventIdx != 3 || loc.Position != 1200 {
		t.Errorf("location = %+v", loc)
	}
}
