// Package materialize converts accumulated relation and character records
// into positioned graph elements. The conversion is deterministic: identical
// input always yields identical elements, including node coordinates.
package materialize

import (
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/persistorai/storygraph/internal/models"
)

// DefaultWeight is used for nodes without a positive weight.
const DefaultWeight = 3

const defaultCacheSize = 500

// Options tunes layout seeding.
type Options struct {
	CenterX   float64
	CenterY   float64
	Radius    float64
	CacheSize int
}

// DefaultOptions returns the layout used by the reader UI.
func DefaultOptions() Options {
	return Options{CenterX: 0, CenterY: 0, Radius: 300, CacheSize: defaultCacheSize}
}

// Input is everything needed to materialize one event's graph.
type Input struct {
	// Relations is the full accumulated relation list, never deduplicated.
	Relations []models.Relation
	// Characters resolves ids to names, descriptions and aliases.
	Characters map[string]models.Character
	// Weights optionally overrides node weights.
	Weights map[string]float64
	// PrevRelations is the accumulated list as of the previous event.
	PrevRelations []models.Relation
}

// Warning flags a recoverable data problem found while materializing.
type Warning struct {
	CharacterID string
	Message     string
}

// Materializer builds graph elements. Safe for concurrent use.
type Materializer struct {
	opts      Options
	positions *lru.Cache[string, float64]
}

// New creates a Materializer with its own bounded position cache.
func New(opts Options) (*Materializer, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}

	if opts.Radius <= 0 {
		opts.Radius = DefaultOptions().Radius
	}

	cache, err := lru.New[string, float64](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating position cache: %w", err)
	}

	return &Materializer{opts: opts, positions: cache}, nil
}

// Materialize converts the input into nodes and edges sorted nodes first,
// then by id.
func (m *Materializer) Materialize(in Input) ([]models.GraphElement, []Warning) {
	var warnings []Warning

	nodeIDs := m.referencedIDs(in)
	elems := make([]models.GraphElement, 0, len(nodeIDs)*2)
	known := make(map[string]struct{}, len(nodeIDs))

	for _, id := range nodeIDs {
		ch := in.Characters[id]
		known[id] = struct{}{}

		weight, ok := resolveWeight(id, ch, in.Weights)
		if !ok {
			warnings = append(warnings, Warning{CharacterID: id, Message: "missing node weight, using default"})
		}

		names := ch.Names
		if names == nil {
			names = []string{}
		}

		elems = append(elems, models.NodeElement(models.Node{
			ID:            id,
			Label:         ch.DisplayName(),
			Description:   ch.Description,
			MainCharacter: ch.MainCharacter,
			Names:         slices.Clone(names),
			Weight:        weight,
			Position:      m.Position(id),
		}))
	}

	elems = append(elems, buildEdges(in.Relations, in.PrevRelations, known)...)
	models.SortElements(elems)

	return elems, warnings
}

// referencedIDs returns the ids named by any relation that resolve to a
// display name, sorted.
func (m *Materializer) referencedIDs(in Input) []string {
	seen := make(map[string]struct{})
	var ids []string

	add := func(id string) {
		if id == "" || id == models.SentinelID {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}

		ch, ok := in.Characters[id]
		if !ok || ch.DisplayName() == "" {
			return
		}
		ids = append(ids, id)
	}

	for _, r := range in.Relations {
		add(r.ID1)
		add(r.ID2)
	}

	slices.Sort(ids)

	return ids
}

func resolveWeight(id string, ch models.Character, override map[string]float64) (float64, bool) {
	if w, ok := override[id]; ok && w > 0 {
		return w, true
	}

	if ch.Weight > 0 {
		return ch.Weight, true
	}

	return DefaultWeight, false
}

// Position returns the seeded circular layout coordinate for id.
func (m *Materializer) Position(id string) models.Position {
	angle := m.seeded(id, 0, 360)
	radius := m.seeded(id, 0.7, 1.0) * m.opts.Radius
	rad := angle * math.Pi / 180

	return models.Position{
		X: round2(m.opts.CenterX + radius*math.Cos(rad)),
		Y: round2(m.opts.CenterY + radius*math.Sin(rad)),
	}
}

// seeded maps (id, min, max) to a stable value in [min, max).
func (m *Materializer) seeded(id string, lo, hi float64) float64 {
	key := id + "|" + strconv.FormatFloat(lo, 'g', -1, 64) + "|" + strconv.FormatFloat(hi, 'g', -1, 64)
	if v, ok := m.positions.Get(key); ok {
		return v
	}

	frac := float64(xxhash.Sum64String(key)>>11) / float64(uint64(1)<<53)
	v := lo + frac*(hi-lo)
	m.positions.Add(key, v)

	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
