package models

import (
	"slices"
	"strings"
)

// SentinelID is the upstream placeholder for "no character" and never
// appears as an edge endpoint.
const SentinelID = "0"

// Edge represents a relationship between two character nodes. ID is always
// EdgeID(Source, Target).
type Edge struct {
	ID         string   `json:"id"`
	Source     string   `json:"source"`
	Target     string   `json:"target"`
	Relation   []string `json:"relation"`
	Label      string   `json:"label"`
	Positivity float64  `json:"positivity"`
}

// edgeIDEscaper escapes the separator inside endpoint ids so that distinct
// pairs never share an id. Numeric ids pass through unchanged.
var edgeIDEscaper = strings.NewReplacer(`\`, `\\`, "-", `\-`)

// EdgeID builds the canonical edge id for a source/target pair.
func EdgeID(source, target string) string {
	return edgeIDEscaper.Replace(source) + "-" + edgeIDEscaper.Replace(target)
}

// Equal reports structural equality.
func (e *Edge) Equal(o *Edge) bool {
	return e.ID == o.ID &&
		e.Source == o.Source &&
		e.Target == o.Target &&
		e.Label == o.Label &&
		e.Positivity == o.Positivity &&
		slices.Equal(e.Relation, o.Relation)
}

// ValidEndpoints reports whether an edge between a and b may be drawn.
func ValidEndpoints(a, b string) bool {
	return a != b && a != SentinelID && b != SentinelID && a != "" && b != ""
}
