package builder

import (
	"maps"
	"slices"

	"github.com/persistorai/storygraph/internal/materialize"
	"github.com/persistorai/storygraph/internal/models"
)

// Accumulator holds the running relation list and character table for a
// chapter. Relations are append-only and never deduplicated; the label
// novelty rule compares against the list as it stood one event earlier.
type Accumulator struct {
	relations  []models.Relation
	prevLen    int
	characters map[string]models.Character
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{characters: make(map[string]models.Character)}
}

// Add folds one event: its relations are appended and its characters upsert
// earlier records with the same id.
func (a *Accumulator) Add(ev models.RawEventData) {
	a.prevLen = len(a.relations)
	a.relations = append(a.relations, ev.Relations...)

	for _, c := range ev.Characters {
		if c.ID == "" {
			continue
		}
		a.characters[c.ID] = c
	}
}

// Input returns the materializer input for the most recently added event.
func (a *Accumulator) Input() materialize.Input {
	return materialize.Input{
		Relations:     a.relations,
		Characters:    a.characters,
		PrevRelations: a.relations[:a.prevLen],
	}
}

// Characters returns the accumulated characters sorted by id.
func (a *Accumulator) Characters() []models.Character {
	out := slices.Collect(maps.Values(a.characters))
	if out == nil {
		out = []models.Character{}
	}
	models.SortCharacters(out)

	return out
}
