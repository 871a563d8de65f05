// Package models defines data types for the per-chapter character graph cache.
package models

// Manifest is the book-level structure used to guide event discovery.
type Manifest struct {
	BookID   int       `json:"book_id"`
	Chapters []Chapter `json:"chapters"`
}

// Chapter is a book subdivision with an ordered list of declared events.
// StartPos and EndPos bound an absolute character-offset range.
type Chapter struct {
	Idx      int         `json:"idx"`
	Title    string      `json:"title,omitempty"`
	StartPos int         `json:"start_pos"`
	EndPos   int         `json:"end_pos"`
	Events   []EventStub `json:"events"`
}

// EventStub is an event declared by the manifest. Graph content for it may
// not have been generated yet.
type EventStub struct {
	Idx      int `json:"idx"`
	StartPos int `json:"start_pos"`
	EndPos   int `json:"end_pos"`
}

// Chapter returns the chapter with the given index.
func (m *Manifest) Chapter(idx int) (*Chapter, bool) {
	if m == nil {
		return nil, false
	}

	for i := range m.Chapters {
		if m.Chapters[i].Idx == idx {
			return &m.Chapters[i], true
		}
	}

	return nil, false
}

// ChapterForPosition returns the chapter whose range contains pos. Positions
// past the end of the book resolve to the last chapter.
func (m *Manifest) ChapterForPosition(pos int) (*Chapter, bool) {
	if m == nil || len(m.Chapters) == 0 || pos < 0 {
		return nil, false
	}

	for i := range m.Chapters {
		ch := &m.Chapters[i]
		if pos >= ch.StartPos && pos < ch.EndPos {
			return ch, true
		}
	}

	last := &m.Chapters[len(m.Chapters)-1]
	if pos >= last.EndPos {
		return last, true
	}

	return nil, false
}

// EventIndices returns the declared event indices in ascending order.
func (c *Chapter) EventIndices() []int {
	out := make([]int, 0, len(c.Events))
	for _, e := range c.Events {
		out = append(out, e.Idx)
	}

	return out
}

// Event returns the declared stub with the given index.
func (c *Chapter) Event(idx int) (EventStub, bool) {
	for _, e := range c.Events {
		if e.Idx == idx {
			return e, true
		}
	}

	return EventStub{}, false
}

// EventForPosition returns the index of the event containing pos, clamped to
// the last event once the reader is past it. Zero means no event has been
// reached yet.
func (c *Chapter) EventForPosition(pos int) int {
	current := 0
	for _, e := range c.Events {
		if pos < e.StartPos {
			break
		}
		current = e.Idx
	}

	return current
}

// Location maps an absolute reading position to a chapter and event.
// EventIdx is zero before the chapter's first event.
type Location struct {
	BookID     int `json:"book_id"`
	Position   int `json:"position"`
	ChapterIdx int `json:"chapter_idx"`
	EventIdx   int `json:"event_idx"`
}
