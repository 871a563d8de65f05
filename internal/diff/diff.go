// Package diff computes structural deltas between two materialized graph
// states. Output ordering is deterministic so identical inputs always produce
// byte-identical diffs.
package diff

import (
	"slices"

	"github.com/persistorai/storygraph/internal/models"
)

// Elements returns the delta that turns prev into curr. Added and updated
// elements are ordered nodes first, then by id; removed ids follow the same
// rule using the kind of the removed element.
func Elements(prev, curr []models.GraphElement) models.ElementDiff {
	before := make(map[string]models.GraphElement, len(prev))
	for _, e := range prev {
		before[e.ID()] = e
	}

	after := make(map[string]struct{}, len(curr))
	out := models.ElementDiff{
		Added:      []models.GraphElement{},
		Updated:    []models.GraphElement{},
		RemovedIDs: []string{},
	}

	for _, e := range curr {
		after[e.ID()] = struct{}{}

		old, ok := before[e.ID()]
		switch {
		case !ok:
			out.Added = append(out.Added, e)
		case !old.Equal(e):
			out.Updated = append(out.Updated, e)
		}
	}

	removed := make([]models.GraphElement, 0)
	for id, e := range before {
		if _, ok := after[id]; !ok {
			removed = append(removed, e)
		}
	}

	models.SortElements(out.Added)
	models.SortElements(out.Updated)
	models.SortElements(removed)

	for _, e := range removed {
		out.RemovedIDs = append(out.RemovedIDs, e.ID())
	}

	return out
}

// Characters returns the delta that turns prev into curr, keyed on the
// normalized character id.
func Characters(prev, curr []models.Character) models.CharacterDiff {
	before := make(map[string]models.Character, len(prev))
	for _, c := range prev {
		before[c.ID] = c
	}

	after := make(map[string]struct{}, len(curr))
	out := models.CharacterDiff{
		Added:      []models.Character{},
		Updated:    []models.Character{},
		RemovedIDs: []string{},
	}

	for _, c := range curr {
		after[c.ID] = struct{}{}

		old, ok := before[c.ID]
		switch {
		case !ok:
			out.Added = append(out.Added, c)
		case !old.Equal(c):
			out.Updated = append(out.Updated, c)
		}
	}

	for id := range before {
		if _, ok := after[id]; !ok {
			out.RemovedIDs = append(out.RemovedIDs, id)
		}
	}

	models.SortCharacters(out.Added)
	models.SortCharacters(out.Updated)
	slices.Sort(out.RemovedIDs)

	return out
}
