package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/storygraph/internal/models"
)

// GraphHandler serves per-event graph states and chapter cache endpoints.
type GraphHandler struct {
	svc GraphService
	log *logrus.Logger
}

// NewGraphHandler creates a GraphHandler.
func NewGraphHandler(svc GraphService, log *logrus.Logger) *GraphHandler {
	return &GraphHandler{svc: svc, log: log}
}

// chapterResponse is the chapter payload without its snapshot and diffs.
type chapterResponse struct {
	BookID         int                   `json:"book_id"`
	ChapterIdx     int                   `json:"chapter_idx"`
	MaxEventIdx    int                   `json:"max_event_idx"`
	Source         string                `json:"source"`
	Timestamp      time.Time             `json:"timestamp"`
	EventSummaries []models.EventSummary `json:"event_summaries"`
}

func newChapterResponse(p *models.ChapterCachePayload) chapterResponse {
	return chapterResponse{
		BookID:         p.BookID,
		ChapterIdx:     p.ChapterIdx,
		MaxEventIdx:    p.MaxEventIdx,
		Source:         p.Source,
		Timestamp:      p.Timestamp,
		EventSummaries: p.EventSummaries,
	}
}

// EventState handles GET /api/v1/books/:bookId/chapters/:chapterIdx/events/:eventIdx.
func (h *GraphHandler) EventState(c *gin.Context) {
	bookID, chapterIdx, ok := bookChapter(c)
	if !ok {
		return
	}

	eventIdx, ok := parseIndex(c, "eventIdx")
	if !ok {
		return
	}

	state, ok := h.svc.GetEventState(c.Request.Context(), bookID, chapterIdx, eventIdx)
	if !ok {
		respondError(c, http.StatusNotFound, ErrCodeNotFound, "no graph for this event")

		return
	}

	c.JSON(http.StatusOK, state)
}

// Chapter handles GET /api/v1/books/:bookId/chapters/:chapterIdx.
func (h *GraphHandler) Chapter(c *gin.Context) {
	h.ensure(c, false)
}

// Rebuild handles POST /api/v1/books/:bookId/chapters/:chapterIdx/rebuild.
func (h *GraphHandler) Rebuild(c *gin.Context) {
	h.ensure(c, true)
}

func (h *GraphHandler) ensure(c *gin.Context, force bool) {
	bookID, chapterIdx, ok := bookChapter(c)
	if !ok {
		return
	}

	p, err := h.svc.EnsureChapter(c.Request.Context(), bookID, chapterIdx, force)
	if err != nil && p == nil {
		h.log.WithError(err).WithFields(chapterFields(bookID, chapterIdx)).Warn("ensuring chapter")
		respondServiceError(c, err, "chapter not found")

		return
	}
	if err != nil {
		// Built but not persisted; the payload is still valid.
		h.log.WithError(err).WithFields(chapterFields(bookID, chapterIdx)).Warn("chapter cache write failed")
	}

	if force {
		h.log.WithFields(chapterFields(bookID, chapterIdx)).WithField("max_event_idx", p.MaxEventIdx).Info("chapter rebuilt")
	}

	c.JSON(http.StatusOK, newChapterResponse(p))
}

// Invalidate handles DELETE /api/v1/books/:bookId/chapters/:chapterIdx.
func (h *GraphHandler) Invalidate(c *gin.Context) {
	bookID, chapterIdx, ok := bookChapter(c)
	if !ok {
		return
	}

	if err := h.svc.Invalidate(c.Request.Context(), bookID, chapterIdx); err != nil {
		h.log.WithError(err).WithFields(chapterFields(bookID, chapterIdx)).Error("invalidating chapter")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	h.log.WithFields(chapterFields(bookID, chapterIdx)).Info("chapter invalidated")

	c.Status(http.StatusNoContent)
}
