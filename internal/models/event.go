package models

import "slices"

// Character is the canonical character record. Upstream id variants are
// resolved to ID at the network boundary.
type Character struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	MainCharacter bool     `json:"main_character"`
	Names         []string `json:"names"`
	Weight        float64  `json:"weight"`
}

// DisplayName returns the name used as the node label, or "" when the
// character has none.
func (c *Character) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}

	for _, n := range c.Names {
		if n != "" {
			return n
		}
	}

	return ""
}

// Equal reports structural equality. Nil and empty name lists are equal.
func (c Character) Equal(o Character) bool {
	return c.ID == o.ID &&
		c.Name == o.Name &&
		c.Description == o.Description &&
		c.MainCharacter == o.MainCharacter &&
		c.Weight == o.Weight &&
		slices.Equal(c.Names, o.Names)
}

// Relation is a positivity-scored tie between two characters carrying one
// or more free-text tags.
type Relation struct {
	ID1        string   `json:"id1"`
	ID2        string   `json:"id2"`
	Relation   []string `json:"relation"`
	Positivity float64  `json:"positivity"`
}

// PairKey identifies the relationship regardless of direction.
func (r Relation) PairKey() string {
	if r.ID1 <= r.ID2 {
		return r.ID1 + "\x00" + r.ID2
	}

	return r.ID2 + "\x00" + r.ID1
}

// EventMeta describes a narrative event.
type EventMeta struct {
	EventIdx int    `json:"event_idx"`
	EventID  string `json:"event_id,omitempty"`
	Name     string `json:"name,omitempty"`
	StartPos int    `json:"start_pos"`
	EndPos   int    `json:"end_pos"`
}

// HasContent reports whether the metadata carries an id, a name or bounds.
func (m EventMeta) HasContent() bool {
	return m.EventID != "" || m.Name != "" || m.EndPos > m.StartPos
}

// RawEventData is the per-event payload returned by the event API.
// Stub marks a record synthesized from manifest bounds after a failed fetch.
type RawEventData struct {
	EventIdx   int         `json:"event_idx"`
	Characters []Character `json:"characters"`
	Relations  []Relation  `json:"relations"`
	Event      EventMeta   `json:"event"`
	Stub       bool        `json:"stub,omitempty"`
}

// HasData reports whether the event carries any graph content or metadata.
func (e *RawEventData) HasData() bool {
	return len(e.Characters) > 0 || len(e.Relations) > 0 || e.Event.HasContent()
}
