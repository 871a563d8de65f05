package models_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/persistorai/storygraph/internal/models"
)

func testManifest() *models.Manifest {
	return &models.Manifest{
		BookID: 7,
		Chapters: []models.Chapter{
			{Idx: 1, StartPos: 0, EndPos: 100, Events: []models.EventStub{
				{Idx: 1, StartPos: 0, EndPos: 40},
				{Idx: 2, StartPos: 40, EndPos: 100},
			}},
			{Idx: 2, StartPos: 100, EndPos: 250, Events: []models.EventStub{
				{Idx: 1, StartPos: 100, EndPos: 250},
			}},
		},
	}
}

func TestManifest_ChapterForPosition(t *testing.T) {
	m := testManifest()

	tests := []struct {
		name    string
		pos     int
		want    int
		wantHit bool
	}{
		{name: "start of book", pos: 0, want: 1, wantHit: true},
		{name: "inside first chapter", pos: 99, want: 1, wantHit: true},
		{name: "chapter boundary", pos: 100, want: 2, wantHit: true},
		{name: "past the end", pos: 10_000, want: 2, wantHit: true},
		{name: "negative", pos: -1, wantHit: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ch, ok := m.ChapterForPosition(tc.pos)
			if ok != tc.wantHit {
				t.Fatalf("got hit %v, want %v", ok, tc.wantHit)
			}
			if ok && ch.Idx != tc.want {
				t.Errorf("got chapter %d, want %d", ch.Idx, tc.want)
			}
		})
	}
}

func TestChapter_EventForPosition(t *testing.T) {
	ch, _ := testManifest().Chapter(1)

	for pos, want := range map[int]int{0: 1, 39: 1, 40: 2, 500: 2} {
		if got := ch.EventForPosition(pos); got != want {
			t.Errorf("EventForPosition(%d) = %d, want %d", pos, got, want)
		}
	}

	later, _ := testManifest().Chapter(2)
	if got := later.EventForPosition(50); got != 0 {
		t.Errorf("position before first event: got %d, want 0", got)
	}
}

func TestRawEventData_HasData(t *testing.T) {
	tests := []struct {
		name string
		ev   models.RawEventData
		want bool
	}{
		{name: "empty", ev: models.RawEventData{EventIdx: 3}, want: false},
		{name: "characters", ev: models.RawEventData{Characters: []models.Character{{ID: "1"}}}, want: true},
		{name: "relations", ev: models.RawEventData{Relations: []models.Relation{{ID1: "1", ID2: "2"}}}, want: true},
		{name: "named event", ev: models.RawEventData{Event: models.EventMeta{Name: "duel"}}, want: true},
		{name: "bounded event", ev: models.RawEventData{Event: models.EventMeta{StartPos: 10, EndPos: 20}}, want: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.ev.HasData(); got != tc.want {
				t.Errorf("HasData() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSortElements_NodesBeforeEdges(t *testing.T) {
	elems := []models.GraphElement{
		models.EdgeElement(models.Edge{ID: "1-2"}),
		models.NodeElement(models.Node{ID: "2"}),
		models.EdgeElement(models.Edge{ID: "1-0"}),
		models.NodeElement(models.Node{ID: "10"}),
		models.NodeElement(models.Node{ID: "1"}),
	}

	models.SortElements(elems)

	want := []string{"1", "10", "2", "1-0", "1-2"}
	for i, id := range want {
		if elems[i].ID() != id {
			t.Fatalf("position %d: got %q, want %q (all: %v)", i, elems[i].ID(), id, ids(elems))
		}
	}
}

func TestGraphElement_Equal(t *testing.T) {
	a := models.NodeElement(models.Node{ID: "1", Label: "A", Position: models.Position{X: 1, Y: 2}})
	b := models.NodeElement(models.Node{ID: "1", Label: "A", Position: models.Position{X: 1, Y: 2}, Names: []string{}})
	moved := models.NodeElement(models.Node{ID: "1", Label: "A", Position: models.Position{X: 1, Y: 3}})
	edge := models.EdgeElement(models.Edge{ID: "1"})

	if !a.Equal(b) {
		t.Error("nil and empty names should compare equal")
	}
	if a.Equal(moved) {
		t.Error("position change should break equality")
	}
	if a.Equal(edge) {
		t.Error("node and edge with same id should not be equal")
	}
}

func TestRelation_PairKey(t *testing.T) {
	a := models.Relation{ID1: "1", ID2: "2"}
	b := models.Relation{ID1: "2", ID2: "1"}

	if a.PairKey() != b.PairKey() {
		t.Errorf("pair keys differ: %q vs %q", a.PairKey(), b.PairKey())
	}
}

func TestEdgeID(t *testing.T) {
	tests := []struct {
		source, target string
		want           string
	}{
		{"1", "2", "1-2"},
		{"12", "3", "12-3"},
		{"1-2", "3", `1\-2-3`},
		{"1", "2-3", `1-2\-3`},
		{`a\`, "b", `a\\-b`},
	}

	for _, tc := range tests {
		if got := models.EdgeID(tc.source, tc.target); got != tc.want {
			t.Errorf("EdgeID(%q, %q) = %q, want %q", tc.source, tc.target, got, tc.want)
		}
	}

	if models.EdgeID("1-2", "3") == models.EdgeID("1", "2-3") {
		t.Error("ids containing the separator collide")
	}
	if models.EdgeID("a-", "b") == models.EdgeID("a", "-b") {
		t.Error("trailing and leading separators collide")
	}
}

func TestCacheError(t *testing.T) {
	err := fmt.Errorf("reading chapter: %w", &models.CacheError{Kind: models.KindCorrupt, Key: "1-1", Err: errors.New("bad json")})

	if !errors.Is(err, models.ErrNotFound) {
		t.Error("corrupt entry should read as not found")
	}
	if got := models.CacheErrorKindOf(err); got != models.KindCorrupt {
		t.Errorf("got kind %q, want %q", got, models.KindCorrupt)
	}

	backend := &models.CacheError{Kind: models.KindBackend, Key: "1-1"}
	if errors.Is(backend, models.ErrNotFound) {
		t.Error("backend failure should not read as not found")
	}
}

func ids(elems []models.GraphElement) []string {
	out := make([]string, len(elems))
	for i, e := range elems {
		out[i] = e.ID()
	}

	return out
}
