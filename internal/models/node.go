package models

import (
	"cmp"
	"slices"
)

// Position is a seed coordinate for graph layout.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node represents a character vertex in the rendered graph.
type Node struct {
	ID            string   `json:"id"`
	Label         string   `json:"label"`
	Description   string   `json:"description"`
	MainCharacter bool     `json:"main_character"`
	Names         []string `json:"names"`
	Weight        float64  `json:"weight"`
	Position      Position `json:"position"`
}

// Equal reports structural equality including position.
func (n *Node) Equal(o *Node) bool {
	return n.ID == o.ID &&
		n.Label == o.Label &&
		n.Description == o.Description &&
		n.MainCharacter == o.MainCharacter &&
		n.Weight == o.Weight &&
		n.Position == o.Position &&
		slices.Equal(n.Names, o.Names)
}

// GraphElement is a tagged union holding exactly one of Node or Edge.
type GraphElement struct {
	Node *Node `json:"node,omitempty"`
	Edge *Edge `json:"edge,omitempty"`
}

// NodeElement wraps a node.
func NodeElement(n Node) GraphElement { return GraphElement{Node: &n} }

// EdgeElement wraps an edge.
func EdgeElement(e Edge) GraphElement { return GraphElement{Edge: &e} }

// IsNode reports whether the element is a node.
func (g GraphElement) IsNode() bool { return g.Node != nil }

// ID returns the node or edge id.
func (g GraphElement) ID() string {
	switch {
	case g.Node != nil:
		return g.Node.ID
	case g.Edge != nil:
		return g.Edge.ID
	default:
		return ""
	}
}

// Equal reports structural equality of two elements of the same kind.
func (g GraphElement) Equal(o GraphElement) bool {
	switch {
	case g.Node != nil && o.Node != nil:
		return g.Node.Equal(o.Node)
	case g.Edge != nil && o.Edge != nil:
		return g.Edge.Equal(o.Edge)
	default:
		return g.Node == nil && g.Edge == nil && o.Node == nil && o.Edge == nil
	}
}

// CompareElements orders nodes before edges, then by id.
func CompareElements(a, b GraphElement) int {
	return compareKeyed(a.IsNode(), a.ID(), b.IsNode(), b.ID())
}

// SortElements sorts in place using CompareElements.
func SortElements(elems []GraphElement) {
	slices.SortFunc(elems, CompareElements)
}

func compareKeyed(aNode bool, aID string, bNode bool, bID string) int {
	if aNode != bNode {
		if aNode {
			return -1
		}
		return 1
	}

	return cmp.Compare(aID, bID)
}

// SortCharacters sorts characters by id.
func SortCharacters(chars []Character) {
	slices.SortFunc(chars, func(a, b Character) int { return cmp.Compare(a.ID, b.ID) })
}
