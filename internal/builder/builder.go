// Package builder folds a chapter's per-event data into a base snapshot plus
// a chain of diffs.
package builder

import (
	"cmp"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/storygraph/internal/diff"
	"github.com/persistorai/storygraph/internal/materialize"
	"github.com/persistorai/storygraph/internal/models"
)

// Builder produces ChapterCachePayloads.
type Builder struct {
	mat *materialize.Materializer
	log *logrus.Logger
	now func() time.Time
}

// New creates a Builder.
func New(mat *materialize.Materializer, log *logrus.Logger) *Builder {
	return &Builder{mat: mat, log: log, now: time.Now}
}

// WithClock overrides the timestamp source.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build sorts events ascending and folds them. The graph for every event is
// materialized from the full accumulated state, so node positions and labels
// stay consistent across the chain.
func (b *Builder) Build(bookID, chapterIdx int, events []models.RawEventData) *models.ChapterCachePayload {
	payload := &models.ChapterCachePayload{
		BookID:         bookID,
		ChapterIdx:     chapterIdx,
		Diffs:          []models.DiffRecord{},
		EventSummaries: []models.EventSummary{},
		Timestamp:      b.now().UTC(),
	}

	if len(events) == 0 {
		return payload
	}

	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b models.RawEventData) int { return cmp.Compare(a.EventIdx, b.EventIdx) })

	acc := NewAccumulator()
	var prevElems []models.GraphElement
	var prevChars []models.Character

	for i, ev := range sorted {
		acc.Add(ev)

		elems, warnings := b.mat.Materialize(acc.Input())
		for _, w := range warnings {
			b.log.WithFields(logrus.Fields{
				"book_id":      bookID,
				"chapter_idx":  chapterIdx,
				"event_idx":    ev.EventIdx,
				"character_id": w.CharacterID,
			}).Debug(w.Message)
		}

		chars := acc.Characters()
		meta := eventMeta(ev)

		payload.EventSummaries = append(payload.EventSummaries, models.EventSummary{
			EventIdx:      ev.EventIdx,
			StartPos:      meta.StartPos,
			EndPos:        meta.EndPos,
			HasCharacters: len(ev.Characters) > 0,
			HasRelations:  len(ev.Relations) > 0,
			Stub:          ev.Stub,
		})

		if i == 0 {
			payload.BaseSnapshot = &models.BaseSnapshot{
				EventIdx:   ev.EventIdx,
				Elements:   elems,
				Characters: chars,
				EventMeta:  meta,
			}
		} else {
			payload.Diffs = append(payload.Diffs, models.DiffRecord{
				EventIdx:      ev.EventIdx,
				EventMeta:     meta,
				ElementDiff:   diff.Elements(prevElems, elems),
				CharacterDiff: diff.Characters(prevChars, chars),
			})
		}

		prevElems, prevChars = elems, chars
		payload.MaxEventIdx = max(payload.MaxEventIdx, ev.EventIdx)
	}

	return payload
}

func eventMeta(ev models.RawEventData) models.EventMeta {
	meta := ev.Event
	meta.EventIdx = ev.EventIdx

	return meta
}
