// Package reconstruct replays a chapter's base snapshot and diff chain up to
// a target event.
//
// Every call replays from the base snapshot; there is no periodic
// checkpointing, so cost grows with the number of diffs before the target.
// Chapters have bounded event counts, which keeps this acceptable.
package reconstruct

import (
	"fmt"
	"maps"
	"slices"

	"github.com/persistorai/storygraph/internal/models"
)

// Reconstruct returns the graph state at targetEventIdx. It fails with
// models.ErrNoBaseSnapshot when the payload has nothing to replay; callers
// must trigger a full rebuild rather than use partial state.
func Reconstruct(p *models.ChapterCachePayload, targetEventIdx int) (*models.GraphState, error) {
	if p == nil || p.BaseSnapshot == nil {
		return nil, models.ErrNoBaseSnapshot
	}

	base := p.BaseSnapshot
	state := &models.GraphState{
		BookID:     p.BookID,
		ChapterIdx: p.ChapterIdx,
		EventIdx:   base.EventIdx,
		EventMeta:  base.EventMeta,
	}

	if targetEventIdx <= base.EventIdx {
		state.Elements = slices.Clone(base.Elements)
		state.Characters = slices.Clone(base.Characters)

		return state, nil
	}

	elems := make(map[string]models.GraphElement, len(base.Elements))
	for _, e := range base.Elements {
		elems[e.ID()] = e
	}

	chars := make(map[string]models.Character, len(base.Characters))
	for _, c := range base.Characters {
		chars[c.ID] = c
	}

	last := base.EventIdx
	for _, d := range p.Diffs {
		if d.EventIdx > targetEventIdx {
			break
		}
		if d.EventIdx <= last {
			return nil, fmt.Errorf("diff chain out of order at event %d after %d", d.EventIdx, last)
		}

		applyElements(elems, d.ElementDiff)
		applyCharacters(chars, d.CharacterDiff)

		last = d.EventIdx
		state.EventIdx = d.EventIdx
		state.EventMeta = d.EventMeta
	}

	state.Elements = slices.Collect(maps.Values(elems))
	models.SortElements(state.Elements)

	state.Characters = slices.Collect(maps.Values(chars))
	models.SortCharacters(state.Characters)

	if state.Elements == nil {
		state.Elements = []models.GraphElement{}
	}
	if state.Characters == nil {
		state.Characters = []models.Character{}
	}

	return state, nil
}

// applyElements deletes, then upserts updated, then upserts added, so an id
// that is both removed and added ends up present.
func applyElements(m map[string]models.GraphElement, d models.ElementDiff) {
	for _, id := range d.RemovedIDs {
		delete(m, id)
	}
	for _, e := range d.Updated {
		m[e.ID()] = e
	}
	for _, e := range d.Added {
		m[e.ID()] = e
	}
}

func applyCharacters(m map[string]models.Character, d models.CharacterDiff) {
	for _, id := range d.RemovedIDs {
		delete(m, id)
	}
	for _, c := range d.Updated {
		m[c.ID] = c
	}
	for _, c := range d.Added {
		m[c.ID] = c
	}
}
