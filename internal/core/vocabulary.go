package core

import (
	"fmt"
	"strconv"
)

// Vocabulary maps known raw header spellings to canonical column names.
// Keys match exactly as authored (case and surrounding whitespace included).
type Vocabulary struct {
	mappings map[string]string
}

// NewVocabulary creates a vocabulary from raw header -> canonical name pairs.
func NewVocabulary(mappings map[string]string) *Vocabulary {
	m := make(map[string]string, len(mappings))
	for raw, canonical := range mappings {
		m[raw] = canonical
	}
	return &Vocabulary{mappings: m}
}

// Resolve returns the canonical column name for a raw header.
// Unknown headers fall back to NormalizeName.
func (v *Vocabulary) Resolve(raw string) string {
	if canonical, ok := v.mappings[raw]; ok {
		return canonical
	}
	return NormalizeName(raw)
}

// Mappings returns a copy of the raw -> canonical pairs.
func (v *Vocabulary) Mappings() map[string]string {
	out := make(map[string]string, len(v.mappings))
	for k, val := range v.mappings {
		out[k] = val
	}
	return out
}

// Len returns the number of known spellings.
func (v *Vocabulary) Len() int {
	return len(v.mappings)
}

// Rename resolves every header of a raw sheet and returns the normalized dataset
// plus human-readable warnings.
//
// Headers with no usable characters are named column_<position> (1-based).
// When two headers resolve to the same canonical name, the later column wins:
// its values replace the earlier ones at the earlier column's position.
func (v *Vocabulary) Rename(sheet *RawSheet) (*Dataset, []string) {
	ds := &Dataset{Columns: make([]Column, 0, len(sheet.Columns))}
	seen := make(map[string]int, len(sheet.Columns))
	rawOf := make(map[string]string, len(sheet.Columns))
	var warnings []string

	for i, col := range sheet.Columns {
		name, synthesized := v.resolveAt(col.Name, i)
		if synthesized {
			warnings = append(warnings, fmt.Sprintf("header %q at position %d has no usable characters; named %s", col.Name, i+1, name))
		}

		if pos, dup := seen[name]; dup {
			warnings = append(warnings, fmt.Sprintf("headers %q and %q both map to %s; keeping %q", rawOf[name], col.Name, name, col.Name))
			ds.Columns[pos] = Column{Name: name, Kind: col.Kind, Values: col.Values}
			rawOf[name] = col.Name
			continue
		}

		seen[name] = len(ds.Columns)
		rawOf[name] = col.Name
		ds.Columns = append(ds.Columns, Column{Name: name, Kind: col.Kind, Values: col.Values})
	}

	return ds, warnings
}

// resolveAt is Resolve with a positional fallback instead of FallbackName.
// synthesized reports whether the fallback was used.
func (v *Vocabulary) resolveAt(raw string, pos int) (name string, synthesized bool) {
	if canonical, ok := v.mappings[raw]; ok {
		return canonical, false
	}
	if name, ok := normalizeToken(raw); ok {
		return name, false
	}
	return "column_" + strconv.Itoa(pos+1), true
}
