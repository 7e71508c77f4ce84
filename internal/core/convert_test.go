package core

import (
	"math"
	"testing"
	"time"
)

// ----------------------------------------------------------------------------
// ParseNumeric Tests
// ----------------------------------------------------------------------------

func TestParseNumeric(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		wantOK bool
		want   float64
	}{
		{name: "positive integer", input: "123", wantOK: true, want: 123},
		{name: "zero", input: "0", wantOK: true, want: 0},
		{name: "negative integer", input: "-456", wantOK: true, want: -456},
		{name: "decimal number", input: "123.45", wantOK: true, want: 123.45},
		{name: "leading decimal point", input: ".99", wantOK: true, want: 0.99},
		{name: "trailing decimal point", input: "99.", wantOK: true, want: 99},
		{name: "scientific notation", input: "1.5e3", wantOK: true, want: 1500},
		{name: "dollar sign", input: "$1,234.56", wantOK: true, want: 1234.56},
		{name: "euro sign", input: "€99", wantOK: true, want: 99},
		{name: "pound sign", input: "£5.50", wantOK: true, want: 5.5},
		{name: "thousands separators", input: "1,523,700", wantOK: true, want: 1523700},
		{name: "negative with thousands", input: "-12,345.5", wantOK: true, want: -12345.5},
		{name: "decimal comma", input: "1523,7", wantOK: false},
		{name: "european grouping", input: "1.523,70", wantOK: false},
		{name: "misplaced thousands separator", input: "12,34", wantOK: false},
		{name: "leading comma group too long", input: "1234,567", wantOK: false},
		{name: "accounting negative", input: "(123.45)", wantOK: true, want: -123.45},
		{name: "accounting negative with currency", input: "($1,000)", wantOK: true, want: -1000},
		{name: "excel formula prefix", input: `="42"`, wantOK: true, want: 42},
		{name: "non-breaking space padding", input: "\u00a01523.7\u00a0", wantOK: true, want: 1523.7},
		{name: "empty string", input: "", wantOK: false},
		{name: "whitespace only", input: "   ", wantOK: false},
		{name: "letters", input: "abc", wantOK: false},
		{name: "mixed", input: "12abc", wantOK: false},
		{name: "two decimal points", input: "1.2.3", wantOK: false},
		{name: "not available marker", input: "N/A", wantOK: false},
		{name: "infinity", input: "1e999", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseNumeric(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseNumeric(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ParseNumeric(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ParseDate Tests
// ----------------------------------------------------------------------------

func TestParseDate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		wantOK bool
		want   string // YYYY-MM-DD
	}{
		{name: "ISO", input: "2024-01-15", wantOK: true, want: "2024-01-15"},
		{name: "ISO slashes", input: "2024/01/15", wantOK: true, want: "2024-01-15"},
		{name: "ISO timestamp", input: "2024-01-15 13:45:00", wantOK: true, want: "2024-01-15"},
		{name: "RFC3339", input: "2024-01-15T13:45:00Z", wantOK: true, want: "2024-01-15"},
		{name: "US", input: "01/15/2024", wantOK: true, want: "2024-01-15"},
		{name: "US single digits", input: "1/5/2024", wantOK: true, want: "2024-01-05"},
		{name: "US dashes", input: "01-15-2024", wantOK: true, want: "2024-01-15"},
		{name: "day first when month impossible", input: "15/01/2024", wantOK: true, want: "2024-01-15"},
		{name: "ambiguous reads month first", input: "03/04/2024", wantOK: true, want: "2024-03-04"},
		{name: "month name", input: "Jan 15, 2024", wantOK: true, want: "2024-01-15"},
		{name: "day month name", input: "15-Jan-2024", wantOK: true, want: "2024-01-15"},
		{name: "compact", input: "20240115", wantOK: true, want: "2024-01-15"},
		{name: "two digit year", input: "1/15/24", wantOK: true, want: "2024-01-15"},
		{name: "workbook serial", input: "45306", wantOK: true, want: "2024-01-15"},
		{name: "workbook serial with time", input: "45306.75", wantOK: true, want: "2024-01-15"},
		{name: "small number is not a date", input: "42", wantOK: false},
		{name: "empty", input: "", wantOK: false},
		{name: "garbage", input: "not a date", wantOK: false},
		{name: "impossible day", input: "2024-02-30", wantOK: false},
		{name: "pending marker", input: "pendiente", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseDate(%q) ok = %v, want %v (got %v)", tt.input, ok, tt.wantOK, got)
			}
			if ok && got.Format(DateLayout) != tt.want {
				t.Errorf("ParseDate(%q) = %s, want %s", tt.input, got.Format(DateLayout), tt.want)
			}
		})
	}
}

func TestParseDate_TwoDigitYear(t *testing.T) {
	originalPivot := TwoDigitYearPivot
	defer func() { TwoDigitYearPivot = originalPivot }()
	TwoDigitYearPivot = 20

	currentYear := time.Now().Year()
	pivotYear := currentYear + 20

	tests := []struct {
		name     string
		input    string
		wantYear int
	}{
		{name: "2-digit year 25 as 2025", input: "01/15/25", wantYear: 2025},
		{name: "2-digit year 99 as 1999", input: "01/15/99", wantYear: 1999},
		{name: "dash format 2-digit year", input: "1-15-99", wantYear: 1999},
		{name: "dot format 2-digit year", input: "01.15.99", wantYear: 1999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.input)
			if !ok {
				t.Fatalf("ParseDate(%q) ok = false", tt.input)
			}
			if got.Year() != tt.wantYear {
				t.Errorf("ParseDate(%q).Year = %d, want %d (pivot year: %d)", tt.input, got.Year(), tt.wantYear, pivotYear)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ParseBool Tests
// ----------------------------------------------------------------------------

func TestParseBool(t *testing.T) {
	tests := []struct {
		input  string
		want   bool
		wantOK bool
	}{
		{"true", true, true},
		{"TRUE", true, true},
		{"False", false, true},
		{"VERDADERO", true, true},
		{"falso", false, true},
		{"1", false, false},
		{"0", false, false},
		{"yes", false, false},
		{"", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseBool(tt.input)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseBool(%q) = %v, %v; want %v, %v", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Value Readers
// ----------------------------------------------------------------------------

func TestNumericOf(t *testing.T) {
	tests := []struct {
		name   string
		value  Value
		want   float64
		wantOK bool
	}{
		{"int", Int(7), 7, true},
		{"decimal", Decimal(-1.5), -1.5, true},
		{"text", Text("$1,000"), 1000, true},
		{"bad text", Text("n/a"), 0, false},
		{"bool", Bool(true), 0, false},
		{"date", Date(time.Now()), 0, false},
		{"missing", Missing(), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NumericOf(tt.value)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("NumericOf(%v) = %v, %v; want %v, %v", tt.value, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestDateOf(t *testing.T) {
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		value  Value
		wantOK bool
	}{
		{"date", Date(day), true},
		{"text", Text("2024-01-15"), true},
		{"serial int", Int(45306), true},
		{"serial decimal", Decimal(45306.5), true},
		{"small int", Int(12), false},
		{"bad text", Text("soon"), false},
		{"missing", Missing(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DateOf(tt.value)
			if ok != tt.wantOK {
				t.Fatalf("DateOf(%v) ok = %v, want %v", tt.value, ok, tt.wantOK)
			}
			if ok && !got.Equal(day) {
				t.Errorf("DateOf(%v) = %v, want %v", tt.value, got, day)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// RoundTo Tests
// ----------------------------------------------------------------------------

func TestRoundTo(t *testing.T) {
	tests := []struct {
		in     float64
		places int
		want   float64
	}{
		{1523.7, 0, 1524},
		{1523.2, 0, 1523},
		{2.5, 0, 2},
		{3.5, 0, 4},
		{-1523.7, 0, -1524},
		{1.005, 2, 1},
		{1.23456, 2, 1.23},
		{1.235, 3, 1.235},
		{7, -1, 7},
	}

	for _, tt := range tests {
		if got := RoundTo(tt.in, tt.places); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("RoundTo(%v, %d) = %v, want %v", tt.in, tt.places, got, tt.want)
		}
	}
}

// ----------------------------------------------------------------------------
// CleanCell Tests
// ----------------------------------------------------------------------------

func TestCleanCell(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple string unchanged", input: "hello", want: "hello"},
		{name: "empty string", input: "", want: ""},
		{name: "surrounded by whitespace", input: "  hello  ", want: "hello"},
		{name: "non-breaking spaces", input: "\u00a0hola\u00a0", want: "hola"},
		{name: "Excel formula with quotes", input: `="hello"`, want: "hello"},
		{name: "Excel formula number as text", input: `="12345"`, want: "12345"},
		{name: "bare equals sign", input: "=SUM(A1)", want: "SUM(A1)"},
		{name: "double quoted", input: `"quoted"`, want: "quoted"},
		{name: "single quoted", input: "'quoted'", want: "quoted"},
		{name: "empty quotes", input: "''", want: ""},
		{name: "equals with quoted number", input: `="0"`, want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanCell(tt.input)
			if got != tt.want {
				t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
