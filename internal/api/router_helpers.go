package api

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// maxIndex bounds book, chapter and event path parameters.
const maxIndex = 1 << 30

// parseIndex reads a positive integer path parameter, writing a 400 and
// returning false when it is missing or malformed.
func parseIndex(c *gin.Context, name string) (int, bool) {
	raw := c.Param(name)

	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 || v > maxIndex {
		respondError(c, 400, ErrCodeInvalidRequest, fmt.Sprintf("%s must be a positive integer", name))

		return 0, false
	}

	return v, true
}

// parsePosition reads a non-negative reading offset.
func parsePosition(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v < 0 {
		respondError(c, 400, ErrCodeInvalidRequest, fmt.Sprintf("%s must be a non-negative integer", name))

		return 0, false
	}

	return v, true
}

func bookChapter(c *gin.Context) (bookID, chapterIdx int, ok bool) {
	if bookID, ok = parseIndex(c, "bookId"); !ok {
		return 0, 0, false
	}
	if chapterIdx, ok = parseIndex(c, "chapterIdx"); !ok {
		return 0, 0, false
	}

	return bookID, chapterIdx, true
}

func chapterFields(bookID, chapterIdx int) logrus.Fields {
	return logrus.Fields{"book_id": bookID, "chapter_idx": chapterIdx}
}
