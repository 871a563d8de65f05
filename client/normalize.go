package client

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/persistorai/storygraph/internal/models"
)

// Field-name variants seen in upstream payloads. Everything past this file
// works on the canonical models only.
var (
	characterIDKeys = []string{"id", "characterId", "character_id", "charId", "char_id"}
	nameKeys        = []string{"name", "common_name", "commonName"}
	descKeys        = []string{"description", "profile", "desc"}
	mainKeys        = []string{"main_character", "mainCharacter", "isMain", "is_main"}
	aliasKeys       = []string{"names", "aliases"}
	weightKeys      = []string{"weight", "node_weight", "nodeWeight"}

	sourceKeys     = []string{"id1", "source", "from"}
	targetKeys     = []string{"id2", "target", "to"}
	tagKeys        = []string{"relation", "relations", "tags", "label"}
	positivityKeys = []string{"positivity", "score"}

	eventIDKeys   = []string{"event_id", "eventId", "id"}
	eventNameKeys = []string{"name", "title", "event_name"}
	startKeys     = []string{"start", "startPos", "start_pos"}
	endKeys       = []string{"end", "endPos", "end_pos"}

	chapterIdxKeys = []string{"idx", "chapterIdx", "chapter_idx", "chapter", "index", "number"}
	eventIdxKeys   = []string{"idx", "eventIdx", "event_idx", "event", "index", "eventNum", "event_num"}
)

// object is a decoded JSON object with lenient typed accessors.
type object map[string]json.RawMessage

func parseObject(raw []byte) (object, bool) {
	var o object
	if err := json.Unmarshal(raw, &o); err != nil || o == nil {
		return nil, false
	}

	return o, true
}

// str returns the first key holding a string or number, as a string.
func (o object) str(keys ...string) string {
	for _, k := range keys {
		raw, ok := o[k]
		if !ok {
			continue
		}

		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
			continue
		}

		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return canonicalNumber(n)
		}
	}

	return ""
}

// canonicalNumber renders integral floats ("3.0") as integers ("3").
func canonicalNumber(n json.Number) string {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}
	if f, err := n.Float64(); err == nil && f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}

	return n.String()
}

func (o object) num(keys ...string) (float64, bool) {
	for _, k := range keys {
		raw, ok := o[k]
		if !ok {
			continue
		}

		var f float64
		if err := json.Unmarshal(raw, &f); err == nil {
			return f, true
		}

		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return f, true
			}
		}
	}

	return 0, false
}

func (o object) integer(keys ...string) int {
	f, _ := o.num(keys...)
	return int(f)
}

func (o object) boolean(keys ...string) bool {
	for _, k := range keys {
		raw, ok := o[k]
		if !ok {
			continue
		}

		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			return b
		}

		if s := (object{k: raw}).str(k); s != "" {
			return s == "true" || s == "1" || s == "yes"
		}
	}

	return false
}

// stringList accepts a single string or an array of strings.
func (o object) stringList(keys ...string) []string {
	for _, k := range keys {
		raw, ok := o[k]
		if !ok {
			continue
		}

		var one string
		if err := json.Unmarshal(raw, &one); err == nil {
			if one = strings.TrimSpace(one); one != "" {
				return []string{one}
			}
			continue
		}

		var many []string
		if err := json.Unmarshal(raw, &many); err == nil {
			out := make([]string, 0, len(many))
			for _, s := range many {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
			return out
		}
	}

	return nil
}

func (o object) list(keys ...string) []object {
	for _, k := range keys {
		raw, ok := o[k]
		if !ok {
			continue
		}

		if items, ok := parseList(raw); ok {
			return items
		}
	}

	return nil
}

func (o object) child(keys ...string) object {
	for _, k := range keys {
		if raw, ok := o[k]; ok {
			if c, ok := parseObject(raw); ok {
				return c
			}
		}
	}

	return object{}
}

func parseList(raw []byte) ([]object, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}

	out := make([]object, 0, len(items))
	for _, it := range items {
		if o, ok := parseObject(it); ok {
			out = append(out, o)
		}
	}

	return out, true
}

// decodeEvent normalizes an upstream event payload. Characters without a
// resolvable id and relations missing an endpoint are dropped.
func decodeEvent(body []byte) (*models.RawEventData, error) {
	o, ok := parseObject(body)
	if !ok {
		return nil, errNotObject
	}

	ev := &models.RawEventData{
		Characters: []models.Character{},
		Relations:  []models.Relation{},
	}

	for _, c := range o.list("characters", "chars") {
		if ch, ok := decodeCharacter(c); ok {
			ev.Characters = append(ev.Characters, ch)
		}
	}

	for _, r := range o.list("relations", "relationships", "edges") {
		if rel, ok := decodeRelation(r); ok {
			ev.Relations = append(ev.Relations, rel)
		}
	}

	meta := o.child("event", "eventMeta", "event_meta", "meta")
	ev.Event = models.EventMeta{
		EventID:  meta.str(eventIDKeys...),
		Name:     meta.str(eventNameKeys...),
		StartPos: meta.integer(startKeys...),
		EndPos:   meta.integer(endKeys...),
	}

	return ev, nil
}

func decodeCharacter(o object) (models.Character, bool) {
	id := o.str(characterIDKeys...)
	if id == "" {
		return models.Character{}, false
	}

	weight, _ := o.num(weightKeys...)

	return models.Character{
		ID:            id,
		Name:          o.str(nameKeys...),
		Description:   o.str(descKeys...),
		MainCharacter: o.boolean(mainKeys...),
		Names:         o.stringList(aliasKeys...),
		Weight:        weight,
	}, true
}

func decodeRelation(o object) (models.Relation, bool) {
	id1, id2 := o.str(sourceKeys...), o.str(targetKeys...)
	if id1 == "" || id2 == "" {
		return models.Relation{}, false
	}

	positivity, _ := o.num(positivityKeys...)

	return models.Relation{
		ID1:        id1,
		ID2:        id2,
		Relation:   o.stringList(tagKeys...),
		Positivity: positivity,
	}, true
}

// decodeManifest accepts {"chapters": [...]} or a bare chapter array.
func decodeManifest(body []byte) (*models.Manifest, error) {
	var chapters []object

	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '[' {
		items, ok := parseList(trimmed)
		if !ok {
			return nil, errNotObject
		}
		chapters = items
	} else {
		o, ok := parseObject(body)
		if !ok {
			return nil, errNotObject
		}
		chapters = o.list("chapters")
	}

	m := &models.Manifest{Chapters: make([]models.Chapter, 0, len(chapters))}

	for _, c := range chapters {
		ch := models.Chapter{
			Idx:      c.integer(chapterIdxKeys...),
			Title:    c.str("title", "name"),
			StartPos: c.integer(startKeys...),
			EndPos:   c.integer(endKeys...),
			Events:   []models.EventStub{},
		}

		for _, e := range c.list("events") {
			ch.Events = append(ch.Events, models.EventStub{
				Idx:      e.integer(eventIdxKeys...),
				StartPos: e.integer(startKeys...),
				EndPos:   e.integer(endKeys...),
			})
		}

		m.Chapters = append(m.Chapters, ch)
	}

	return m, nil
}
