// Package sink persists datasets into relational stores.
//
// Three implementations of core.Sink live here: Postgres (pgx pool, COPY
// protocol), SQLite (embedded, for offline runs) and Memory (dry runs and
// tests). Open picks one from configuration.
package sink

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/regimport/internal/core"
)

// quoteIdentifier quotes a table, column or index name for SQL.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteIdentifiers(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quoteIdentifier(n)
	}
	return out
}

// columnDefs renders "name TYPE" pairs for CREATE TABLE.
func columnDefs(ds *core.Dataset, typeOf func(core.Kind) string) string {
	defs := make([]string, len(ds.Columns))
	for i, c := range ds.Columns {
		defs[i] = quoteIdentifier(c.Name) + " " + typeOf(c.Kind)
	}
	return strings.Join(defs, ", ")
}

func createIndexSQL(table string, idx core.Index) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		quoteIdentifier(idx.Name),
		quoteIdentifier(table),
		strings.Join(quoteIdentifiers(idx.Columns), ", "),
	)
}
