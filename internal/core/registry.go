package core

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultPrecision is the decimal precision used for tables without an explicit one.
const DefaultPrecision = 2

// SchemaEntry declares how one canonical table is validated, coerced and indexed.
type SchemaEntry struct {
	ID        string
	Keywords  []string // case-insensitive substrings of sheet labels
	Required  []string
	Numeric   []string
	Dates     []string
	Precision int // decimal places; 0 means integral
	Indexes   []Index
}

// CompositeIndex is a cross-table index supporting a known downstream join.
type CompositeIndex struct {
	Table string
	Index Index
}

// Registry is the single source of truth for table schemas and column names.
// It is built once at startup and read-only afterwards.
type Registry struct {
	entries     []SchemaEntry
	byID        map[string]int
	nonNegative []string
	composite   []CompositeIndex
	vocabulary  *Vocabulary
}

// NewRegistry creates an empty registry backed by the given vocabulary.
// A nil vocabulary resolves every header through NormalizeName.
func NewRegistry(vocab *Vocabulary) *Registry {
	if vocab == nil {
		vocab = NewVocabulary(nil)
	}
	return &Registry{
		byID:       make(map[string]int),
		vocabulary: vocab,
	}
}

// Register adds a schema entry. Iteration order follows registration order.
// Panics if a table with the same ID is already registered.
func (r *Registry) Register(entry SchemaEntry) {
	if _, exists := r.byID[entry.ID]; exists {
		panic(fmt.Sprintf("table already registered: %s", entry.ID))
	}
	r.byID[entry.ID] = len(r.entries)
	r.entries = append(r.entries, entry)
}

// SetNonNegative declares the monetary/energy columns that must not be negative
// wherever they appear.
func (r *Registry) SetNonNegative(columns []string) {
	r.nonNegative = append([]string(nil), columns...)
}

// AddComposite declares a cross-table composite index.
func (r *Registry) AddComposite(ci CompositeIndex) {
	r.composite = append(r.composite, ci)
}

// Lookup returns the entry for a table. Unknown (ad-hoc) tables get a default
// entry with no rules and ok=false.
func (r *Registry) Lookup(id string) (SchemaEntry, bool) {
	if i, ok := r.byID[id]; ok {
		return r.entries[i], true
	}
	return SchemaEntry{ID: id, Precision: DefaultPrecision}, false
}

// Entries returns all entries in registration order.
func (r *Registry) Entries() []SchemaEntry {
	out := make([]SchemaEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// IDs returns the canonical table IDs in registration order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.entries))
	for i, e := range r.entries {
		ids[i] = e.ID
	}
	return ids
}

// NonNegative returns the columns checked for negative values.
func (r *Registry) NonNegative() []string {
	return r.nonNegative
}

// CompositeFor returns the composite indexes targeting a table.
func (r *Registry) CompositeFor(table string) []Index {
	var out []Index
	for _, ci := range r.composite {
		if ci.Table == table {
			out = append(out, ci.Index)
		}
	}
	return out
}

// Composites returns every composite index.
func (r *Registry) Composites() []CompositeIndex {
	return r.composite
}

// Vocabulary returns the column vocabulary.
func (r *Registry) Vocabulary() *Vocabulary {
	return r.vocabulary
}

// TableCount returns the number of registered tables.
func (r *Registry) TableCount() int {
	return len(r.entries)
}

// Validate checks the registry for authoring mistakes.
// Returns an error describing all problems found.
func (r *Registry) Validate() error {
	var errs []error

	checkToken := func(where, name string) {
		if tok, ok := normalizeToken(name); !ok || tok != name {
			errs = append(errs, fmt.Errorf("%s: %q is not a canonical name", where, name))
		}
	}

	for _, e := range r.entries {
		checkToken("table id", e.ID)
		if len(e.Keywords) == 0 {
			errs = append(errs, fmt.Errorf("table %s: no keywords", e.ID))
		}
		for _, kw := range e.Keywords {
			if strings.TrimSpace(kw) == "" {
				errs = append(errs, fmt.Errorf("table %s: blank keyword", e.ID))
			}
		}
		for _, group := range [][]string{e.Required, e.Numeric, e.Dates} {
			for _, col := range group {
				checkToken("table "+e.ID+" column", col)
			}
		}
		if e.Precision < 0 {
			errs = append(errs, fmt.Errorf("table %s: negative precision %d", e.ID, e.Precision))
		}
		for _, idx := range e.Indexes {
			if len(idx.Columns) == 0 {
				errs = append(errs, fmt.Errorf("table %s: index %q has no columns", e.ID, idx.Name))
			}
			for _, col := range idx.Columns {
				checkToken("table "+e.ID+" index", col)
			}
		}
	}

	for _, ci := range r.composite {
		if _, ok := r.byID[ci.Table]; !ok {
			errs = append(errs, fmt.Errorf("composite index %s: unknown table %s", ci.Index.Name, ci.Table))
		}
		if len(ci.Index.Columns) == 0 {
			errs = append(errs, fmt.Errorf("composite index %s: no columns", ci.Index.Name))
		}
	}

	for raw, canonical := range r.vocabulary.Mappings() {
		if tok, ok := normalizeToken(canonical); !ok || tok != canonical {
			errs = append(errs, fmt.Errorf("vocabulary %q: %q is not a canonical name", raw, canonical))
		}
	}

	return errors.Join(errs...)
}

// IndexName builds the conventional name for a declared index.
func IndexName(table string, columns []string) string {
	return "idx_" + table + "_" + strings.Join(columns, "_")
}
