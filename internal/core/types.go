// Package core provides the schema-reconciliation engine.
// This package has no I/O dependencies and can be driven by any source or sink.
package core

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Kind is the storage type of a cell or column.
type Kind int

const (
	KindMissing Kind = iota
	KindBool
	KindInt
	KindDecimal
	KindDate
	KindText
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindDecimal:
		return "decimal"
	case KindDate:
		return "date"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// Value is a single cell: a tagged variant over the supported kinds.
// The zero Value is missing.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	t    time.Time
	s    string
}

// Missing returns a missing value.
func Missing() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integral value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Decimal returns a fractional value.
func Decimal(f float64) Value { return Value{kind: KindDecimal, f: f} }

// Date returns a calendar date value. The time-of-day is discarded.
func Date(t time.Time) Value {
	y, m, d := t.Date()
	return Value{kind: KindDate, t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// Text returns a text value.
func Text(s string) Value { return Value{kind: KindText, s: s} }

// Kind returns the kind of the value.
func (v Value) Kind() Kind { return v.kind }

// IsMissing reports whether the value is missing.
func (v Value) IsMissing() bool { return v.kind == KindMissing }

// IsBlank reports whether the value is missing or whitespace-only text.
func (v Value) IsBlank() bool {
	switch v.kind {
	case KindMissing:
		return true
	case KindText:
		return strings.TrimSpace(v.s) == ""
	default:
		return false
	}
}

// BoolValue returns the boolean payload.
func (v Value) BoolValue() bool { return v.b }

// IntValue returns the integral payload.
func (v Value) IntValue() int64 { return v.i }

// DecimalValue returns the fractional payload.
func (v Value) DecimalValue() float64 { return v.f }

// TimeValue returns the date payload.
func (v Value) TimeValue() time.Time { return v.t }

// TextValue returns the text payload.
func (v Value) TextValue() string { return v.s }

// Float returns the value as a float64 when it is numeric.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindDecimal:
		return v.f, true
	default:
		return 0, false
	}
}

// String renders the value as text. Missing values render as "".
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindDecimal:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindDate:
		return v.t.Format(DateLayout)
	case KindText:
		return v.s
	default:
		return ""
	}
}

// DateLayout is the canonical rendering of date values.
const DateLayout = "2006-01-02"

// Column is a named sequence of cells.
type Column struct {
	Name   string
	Kind   Kind // storage kind; KindText until coerced
	Values []Value
}

// RawSheet is one input sheet as produced by a Source, with raw headers.
type RawSheet struct {
	Label   string
	Columns []Column
}

// Len returns the number of rows in the sheet.
func (s *RawSheet) Len() int {
	if s == nil || len(s.Columns) == 0 {
		return 0
	}
	return len(s.Columns[0].Values)
}

// Dataset is a sheet after column renaming. Column order follows the source.
type Dataset struct {
	Columns []Column
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d == nil || len(d.Columns) == 0 {
		return 0
	}
	return len(d.Columns[0].Values)
}

// Names returns the column names in order.
func (d *Dataset) Names() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the named column, or nil if absent.
func (d *Dataset) Column(name string) *Column {
	for i := range d.Columns {
		if d.Columns[i].Name == name {
			return &d.Columns[i]
		}
	}
	return nil
}

// Has reports whether the dataset has a column with the given name.
func (d *Dataset) Has(name string) bool {
	return d.Column(name) != nil
}

// Slice returns rows [start, end) as a new dataset sharing the backing arrays.
// Bounds are clamped to the dataset.
func (d *Dataset) Slice(start, end int) *Dataset {
	n := d.Len()
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	if start > end {
		start = end
	}

	out := &Dataset{Columns: make([]Column, len(d.Columns))}
	for i, c := range d.Columns {
		out.Columns[i] = Column{Name: c.Name, Kind: c.Kind, Values: c.Values[start:end:end]}
	}
	return out
}

// Row returns the values of row i in column order.
func (d *Dataset) Row(i int) []Value {
	row := make([]Value, len(d.Columns))
	for j, c := range d.Columns {
		row[j] = c.Values[i]
	}
	return row
}

// Kinds returns column name -> storage kind, used for diagnostics.
func (d *Dataset) Kinds() map[string]string {
	kinds := make(map[string]string, len(d.Columns))
	for _, c := range d.Columns {
		kinds[c.Name] = c.Kind.String()
	}
	return kinds
}

// Index is a named, ordered list of columns to index.
type Index struct {
	Name    string
	Columns []string
}

// Row is one persisted row as read back from a sink.
type Row struct {
	Columns []string
	Values  []any
}

// Source yields sheets from an upstream workbook or directory.
type Source interface {
	ListSheets(ctx context.Context) ([]string, error)
	ReadSheet(ctx context.Context, label string) (*RawSheet, error)
	Close() error
}

// Sink durably stores tables. Implementations own connection handling;
// every call must release what it acquires before returning.
type Sink interface {
	TableExists(ctx context.Context, table string) (bool, error)
	ReplaceTable(ctx context.Context, table string, ds *Dataset) error
	AppendBatch(ctx context.Context, table string, ds *Dataset) error
	CreateIndexIfAbsent(ctx context.Context, table string, idx Index) error
	// Columns returns the stored column names of table in table order.
	Columns(ctx context.Context, table string) ([]string, error)
	CountRows(ctx context.Context, table string) (int64, error)
	// SampleRow returns nil when the table is empty.
	SampleRow(ctx context.Context, table string) (*Row, error)
}
