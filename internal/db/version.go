package db

import (
	"strings"

	"github.com/persistorai/storygraph/internal/db/migrations"
)

// SchemaVersion returns the number of embedded migrations, reported by the
// readiness endpoint when the postgres backend is active.
func SchemaVersion() int {
	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		return 0
	}

	count := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			count++
		}
	}

	return count
}
