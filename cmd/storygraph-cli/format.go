package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/persistorai/storygraph/internal/models"
)

func formatJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error: encode json: %v\n", err)
		os.Exit(1)
	}
}

func formatTable(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow := func(cells []string) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
		}
		fmt.Println(strings.TrimRight(strings.Join(parts, "  "), " "))
	}

	printRow(headers)
	seps := make([]string, len(headers))
	for i, w := range widths {
		seps[i] = strings.Repeat("-", w)
	}
	printRow(seps)
	for _, row := range rows {
		printRow(row)
	}
}

// output prints v in the selected format. Types without a table layout
// fall back to JSON.
func output(v any) {
	if flagFmt != "table" {
		formatJSON(v)
		return
	}

	headers, rows, ok := tableFor(v)
	if !ok {
		formatJSON(v)
		return
	}

	formatTable(headers, rows)
}

func tableFor(v any) ([]string, [][]string, bool) {
	switch t := v.(type) {
	case *models.BookSummary:
		rows := make([][]string, 0, len(t.Chapters))
		for _, c := range t.Chapters {
			rows = append(rows, []string{
				strconv.Itoa(c.ChapterIdx),
				strconv.Itoa(c.MaxEventIdx),
				strconv.Itoa(c.EventCount),
				c.BuiltAt.UTC().Format(time.RFC3339),
			})
		}
		return []string{"CHAPTER", "MAX EVENT", "EVENTS", "BUILT"}, rows, true

	case *models.ChapterCachePayload:
		rows := make([][]string, 0, len(t.EventSummaries))
		for _, e := range t.EventSummaries {
			rows = append(rows, []string{
				strconv.Itoa(e.EventIdx),
				fmt.Sprintf("%d-%d", e.StartPos, e.EndPos),
				yesNo(e.HasCharacters),
				yesNo(e.HasRelations),
				yesNo(e.Stub),
			})
		}
		return []string{"EVENT", "SPAN", "CHARACTERS", "RELATIONS", "STUB"}, rows, true

	case *models.GraphState:
		rows := make([][]string, 0, len(t.Elements))
		for _, el := range t.Elements {
			switch {
			case el.Node != nil:
				rows = append(rows, []string{"node", el.Node.ID, el.Node.Label})
			case el.Edge != nil:
				rows = append(rows, []string{"edge", el.Edge.ID, el.Edge.Label})
			}
		}
		return []string{"KIND", "ID", "LABEL"}, rows, true
	}

	return nil, nil, false
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
