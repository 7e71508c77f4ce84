package core

// validation.go checks a normalized dataset against its registry entry.
//
// Validation is advisory: the report is logged and counted but never blocks
// coercion or loading. Rules are evaluated independently:
//  1. Required columns present
//  2. Required columns free of blank cells
//  3. Monetary/energy columns free of negative values
//  4. Date columns parseable
//
// A panic inside one rule becomes an issue naming the column; the remaining
// rules still run.

import (
	"fmt"
	"strings"
)

// ValidationReport is the advisory outcome of validating one dataset.
type ValidationReport struct {
	Table  string   `json:"table"`
	Passed bool     `json:"passed"`
	Issues []string `json:"issues,omitempty"`
}

// Validator applies registry rules to datasets.
type Validator struct {
	registry *Registry
}

// NewValidator creates a validator backed by the registry.
func NewValidator(registry *Registry) *Validator {
	return &Validator{registry: registry}
}

// Validate never panics; every problem is reported as an issue string.
func (v *Validator) Validate(ds *Dataset, table string) ValidationReport {
	entry, _ := v.registry.Lookup(table)
	report := ValidationReport{Table: table}

	requiredOK := true

	var missing []string
	for _, col := range entry.Required {
		if !ds.Has(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		requiredOK = false
		report.Issues = append(report.Issues, fmt.Sprintf("Missing required columns: [%s]", strings.Join(missing, " ")))
	}

	for _, name := range entry.Required {
		col := ds.Column(name)
		if col == nil {
			continue
		}
		ok := v.rule(&report, name, func() {
			if n := countBlank(col.Values); n > 0 {
				requiredOK = false
				report.Issues = append(report.Issues, fmt.Sprintf("Column '%s' has %d null values", name, n))
			}
		})
		if !ok {
			requiredOK = false
		}
	}

	for _, name := range v.registry.NonNegative() {
		col := ds.Column(name)
		if col == nil {
			continue
		}
		v.rule(&report, name, func() {
			if n := countNegative(col.Values); n > 0 {
				report.Issues = append(report.Issues, fmt.Sprintf("Column '%s' has %d negative values", name, n))
			}
		})
	}

	for _, name := range entry.Dates {
		col := ds.Column(name)
		if col == nil {
			continue
		}
		v.rule(&report, name, func() {
			if n := countInvalidDates(col.Values); n > 0 {
				report.Issues = append(report.Issues, fmt.Sprintf("Column '%s' has %d invalid dates", name, n))
			}
		})
	}

	report.Passed = requiredOK
	return report
}

// rule runs fn, converting a panic into an issue. Returns false if fn panicked.
func (v *Validator) rule(report *ValidationReport, column string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			report.Issues = append(report.Issues, fmt.Sprintf("Error validating column '%s': %v", column, r))
			ok = false
		}
	}()
	fn()
	return true
}

func countBlank(values []Value) int {
	n := 0
	for _, v := range values {
		if v.IsBlank() {
			n++
		}
	}
	return n
}

func countNegative(values []Value) int {
	n := 0
	for _, v := range values {
		if f, ok := NumericOf(v); ok && f < 0 {
			n++
		}
	}
	return n
}

// countInvalidDates counts non-blank cells that do not parse as dates.
func countInvalidDates(values []Value) int {
	n := 0
	for _, v := range values {
		if v.IsBlank() {
			continue
		}
		if _, ok := DateOf(v); !ok {
			n++
		}
	}
	return n
}

// HasIssues reports whether the report contains anything worth logging.
func (r ValidationReport) HasIssues() bool {
	return len(r.Issues) > 0
}
