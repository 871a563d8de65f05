package materialize

import (
	"slices"

	"github.com/persistorai/storygraph/internal/models"
)

type pairState struct {
	source   string
	target   string
	relation models.Relation
}

// latestByPair folds relations per unordered pair. Direction comes from the
// first record seen; tags and positivity from the latest.
func latestByPair(relations []models.Relation, known map[string]struct{}) ([]string, map[string]*pairState) {
	var order []string
	pairs := make(map[string]*pairState)

	for _, r := range relations {
		if !models.ValidEndpoints(r.ID1, r.ID2) {
			continue
		}

		if known != nil {
			if _, ok := known[r.ID1]; !ok {
				continue
			}
			if _, ok := known[r.ID2]; !ok {
				continue
			}
		}

		key := r.PairKey()
		if p, ok := pairs[key]; ok {
			p.relation = r
			continue
		}

		pairs[key] = &pairState{source: r.ID1, target: r.ID2, relation: r}
		order = append(order, key)
	}

	return order, pairs
}

func buildEdges(relations, prev []models.Relation, known map[string]struct{}) []models.GraphElement {
	order, pairs := latestByPair(relations, known)
	_, before := latestByPair(prev, nil)

	out := make([]models.GraphElement, 0, len(order))
	for _, key := range order {
		p := pairs[key]

		tags := slices.Clone(p.relation.Relation)
		if tags == nil {
			tags = []string{}
		}

		var prevTags []string
		if old, ok := before[key]; ok {
			prevTags = old.relation.Relation
		}

		out = append(out, models.EdgeElement(models.Edge{
			ID:         models.EdgeID(p.source, p.target),
			Source:     p.source,
			Target:     p.target,
			Relation:   tags,
			Label:      pickLabel(tags, prevTags, before[key] != nil),
			Positivity: p.relation.Positivity,
		}))
	}

	return out
}

// pickLabel surfaces what changed: for a pair seen in the previous event the
// first tag absent from its previous tags wins, otherwise the first tag.
func pickLabel(tags, prevTags []string, existed bool) string {
	if len(tags) == 0 {
		return ""
	}

	if existed {
		for _, t := range tags {
			if !slices.Contains(prevTags, t) {
				return t
			}
		}
	}

	return tags[0]
}
