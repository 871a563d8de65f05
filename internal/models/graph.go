package models

import "time"

// Payload sources recorded on a ChapterCachePayload.
const (
	SourceManifest = "manifest"
	SourceScan     = "scan"
	SourceEmpty    = "empty"
)

// BaseSnapshot is the materialized state at a chapter's first event.
type BaseSnapshot struct {
	EventIdx   int            `json:"event_idx"`
	Elements   []GraphElement `json:"elements"`
	Characters []Character    `json:"characters"`
	EventMeta  EventMeta      `json:"event_meta"`
}

// ElementDiff is the structural delta between two element sets.
type ElementDiff struct {
	Added      []GraphElement `json:"added"`
	Updated    []GraphElement `json:"updated"`
	RemovedIDs []string       `json:"removed_ids"`
}

// Empty reports whether the diff changes nothing.
func (d ElementDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Updated) == 0 && len(d.RemovedIDs) == 0
}

// CharacterDiff is the structural delta between two character sets.
type CharacterDiff struct {
	Added      []Character `json:"added"`
	Updated    []Character `json:"updated"`
	RemovedIDs []string    `json:"removed_ids"`
}

// Empty reports whether the diff changes nothing.
func (d CharacterDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Updated) == 0 && len(d.RemovedIDs) == 0
}

// DiffRecord is the change between the previous event and EventIdx.
type DiffRecord struct {
	EventIdx      int           `json:"event_idx"`
	EventMeta     EventMeta     `json:"event_meta"`
	ElementDiff   ElementDiff   `json:"element_diff"`
	CharacterDiff CharacterDiff `json:"character_diff"`
}

// EventSummary is a lightweight per-event record kept for every event.
type EventSummary struct {
	EventIdx      int  `json:"event_idx"`
	StartPos      int  `json:"start_pos"`
	EndPos        int  `json:"end_pos"`
	HasCharacters bool `json:"has_characters"`
	HasRelations  bool `json:"has_relations"`
	Stub          bool `json:"stub,omitempty"`
}

// ChapterCachePayload is the persisted base snapshot plus diff chain for a
// chapter. It is immutable once written; rebuilds replace it wholesale.
type ChapterCachePayload struct {
	BookID         int            `json:"book_id"`
	ChapterIdx     int            `json:"chapter_idx"`
	MaxEventIdx    int            `json:"max_event_idx"`
	BaseSnapshot   *BaseSnapshot  `json:"base_snapshot"`
	Diffs          []DiffRecord   `json:"diffs"`
	EventSummaries []EventSummary `json:"event_summaries"`
	Timestamp      time.Time      `json:"timestamp"`
	Source         string         `json:"source"`
}

// IsEmpty reports whether discovery found no events at all.
func (p *ChapterCachePayload) IsEmpty() bool {
	return p.BaseSnapshot == nil && p.MaxEventIdx == 0
}

// GraphState is the reconstructed graph for one event.
type GraphState struct {
	BookID     int            `json:"book_id"`
	ChapterIdx int            `json:"chapter_idx"`
	EventIdx   int            `json:"event_idx"`
	EventMeta  EventMeta      `json:"event_meta"`
	Elements   []GraphElement `json:"elements"`
	Characters []Character    `json:"characters"`
}

// ChapterSummary is one chapter's entry in a BookSummary.
type ChapterSummary struct {
	ChapterIdx  int       `json:"chapter_idx"`
	MaxEventIdx int       `json:"max_event_idx"`
	EventCount  int       `json:"event_count"`
	BuiltAt     time.Time `json:"built_at"`
}

// BookSummary lists the cached chapters of a book.
type BookSummary struct {
	BookID    int              `json:"book_id"`
	Chapters  []ChapterSummary `json:"chapters"`
	UpdatedAt time.Time        `json:"updated_at"`
}
