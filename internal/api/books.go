package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// BookHandler serves whole-book endpoints.
type BookHandler struct {
	svc    GraphService
	warmer Warmer
	log    *logrus.Logger
}

// NewBookHandler creates a BookHandler.
func NewBookHandler(svc GraphService, warmer Warmer, log *logrus.Logger) *BookHandler {
	return &BookHandler{svc: svc, warmer: warmer, log: log}
}

// Warm handles POST /api/v1/books/:bookId/warm.
func (h *BookHandler) Warm(c *gin.Context) {
	bookID, ok := parseIndex(c, "bookId")
	if !ok {
		return
	}

	if !h.warmer.Enqueue(bookID) {
		respondError(c, http.StatusServiceUnavailable, ErrCodeQueueFull, "warm queue is full")

		return
	}

	c.JSON(http.StatusAccepted, gin.H{"book_id": bookID, "status": "queued"})
}

// Summary handles GET /api/v1/books/:bookId/summary.
func (h *BookHandler) Summary(c *gin.Context) {
	bookID, ok := parseIndex(c, "bookId")
	if !ok {
		return
	}

	sum, err := h.svc.BookSummary(c.Request.Context(), bookID)
	if err != nil {
		h.log.WithError(err).WithField("book_id", bookID).Error("loading book summary")
		respondServiceError(c, err, "book not found")

		return
	}

	c.JSON(http.StatusOK, sum)
}

// Position handles GET /api/v1/books/:bookId/position/:pos.
func (h *BookHandler) Position(c *gin.Context) {
	bookID, ok := parseIndex(c, "bookId")
	if !ok {
		return
	}

	pos, ok := parsePosition(c, "pos")
	if !ok {
		return
	}

	loc, err := h.svc.Locate(c.Request.Context(), bookID, pos)
	if err != nil {
		h.log.WithError(err).WithFields(logrus.Fields{"book_id": bookID, "position": pos}).Debug("locating position")
		respondServiceError(c, err, "position not found")

		return
	}

	c.JSON(http.StatusOK, loc)
}
