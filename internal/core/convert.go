package core

// convert.go parses untyped cell text into typed values.
//
// Workbook cells arrive in every shape the upstream reports produce:
//   - Multiple date formats (US, day-first, ISO, timestamps, workbook serials)
//   - Currency symbols and thousand separators in numbers
//   - Accounting negatives "(123.45)"
//   - Excel formula prefixes (="value")
//
// Parse* functions report ok=false for blank or unparseable input; callers turn
// that into a missing value.

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// groupedRegex matches numbers whose commas are thousands separators.
// Decimal commas ("1523,7", "1.523,70") do not match and stay unparseable.
var groupedRegex = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d*)?$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would result in dates more than this many years in the future
// are assumed to be in the previous century.
var TwoDigitYearPivot = 20

// Workbook serial numbers accepted as dates (1954-10-03 .. 2119-01-10).
// Anything outside is more likely a plain number than a date.
const (
	excelSerialMin = 20000
	excelSerialMax = 80000
)

// excelEpoch is day zero of the 1900 date system (with the 1900 leap-year bug).
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// Date layouts split by year format for proper 2-digit year handling.
// Month-first layouts are tried before day-first ones; a day-first date only
// matches when the month-first reading is impossible (e.g. 15/01/2024).
var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
		"1/2/06 15:04", "2/1/06", "02/01/06", "02-Jan-06",
	}
	fourDigitYearLayouts = []string{
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"2/1/2006", "02/01/2006", "2-1-2006", "02-01-2006",
		"2006-01-02", "2006/01/02", "2006.01.02",
		"2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02T15:04:05", time.RFC3339,
		"1/2/2006 15:04", "1/2/2006 15:04:05",
		"Jan 2, 2006", "2 Jan 2006", "2-Jan-2006",
		"20060102",
	}
)

// ParseNumeric converts cell text to a float64.
// Handles currency symbols, thousands separators, and accounting format (parentheses for negative).
// Commas are accepted only as thousands separators in groups of three.
func ParseNumeric(s string) (float64, bool) {
	s = CleanCell(s)
	if s == "" {
		return 0, false
	}

	// Detect negative accounting format "(123.45)"
	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	// Remove common currency symbols and thousands separators
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") {
		if !groupedRegex.MatchString(s) {
			return 0, false
		}
		s = strings.ReplaceAll(s, ",", "")
	}

	if isNegative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return 0, false
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// ParseDate converts cell text to a calendar date.
// Supports multiple date formats and handles 2-digit years with pivot.
func ParseDate(s string) (time.Time, bool) {
	s = CleanCell(s)
	if s == "" {
		return time.Time{}, false
	}

	// Try 4-digit year layouts first (unambiguous)
	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	// Try 2-digit year layouts with pivot year adjustment
	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	// Workbook serial date
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= excelSerialMin && f <= excelSerialMax {
		return excelEpoch.AddDate(0, 0, int(math.Floor(f))), true
	}

	return time.Time{}, false
}

// ParseBool converts cell text to a boolean.
// Only literal true/false spellings qualify; 1/0 stay numeric.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(CleanCell(s)) {
	case "true", "verdadero":
		return true, true
	case "false", "falso":
		return false, true
	default:
		return false, false
	}
}

// NumericOf reads a value as a number. Text is parsed; dates and booleans are not numeric.
func NumericOf(v Value) (float64, bool) {
	switch v.Kind() {
	case KindInt, KindDecimal:
		return v.Float()
	case KindText:
		return ParseNumeric(v.TextValue())
	default:
		return 0, false
	}
}

// DateOf reads a value as a calendar date. Numbers are treated as workbook serials.
func DateOf(v Value) (time.Time, bool) {
	switch v.Kind() {
	case KindDate:
		return v.TimeValue(), true
	case KindText:
		return ParseDate(v.TextValue())
	case KindInt, KindDecimal:
		f, _ := v.Float()
		if f >= excelSerialMin && f <= excelSerialMax {
			return excelEpoch.AddDate(0, 0, int(math.Floor(f))), true
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// RoundTo rounds half-to-even to the given number of decimal places.
func RoundTo(f float64, places int) float64 {
	if places <= 0 {
		return math.RoundToEven(f)
	}
	pow := math.Pow(10, float64(places))
	return math.RoundToEven(f*pow) / pow
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// - Trims whitespace (including non-breaking spaces)
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))

	// Remove leading '='
	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	// Remove any surrounding quotes
	s = strings.Trim(s, `"'`)

	return strings.TrimSpace(s)
}
