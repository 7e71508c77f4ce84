package core

import (
	"math"
	"strconv"
	"strings"
)

// Coercer converts dataset columns to the kinds their registry entry declares.
// Columns are rewritten in place; individual cells that fail to convert become
// missing and processing continues.
type Coercer struct {
	registry *Registry
}

// NewCoercer creates a coercer backed by the registry.
func NewCoercer(registry *Registry) *Coercer {
	return &Coercer{registry: registry}
}

// Coerce applies numeric precision, date parsing and best-effort narrowing.
// It returns ds for chaining.
func (c *Coercer) Coerce(ds *Dataset, table string) *Dataset {
	entry, _ := c.registry.Lookup(table)

	declared := make(map[string]bool, len(entry.Numeric)+len(entry.Dates))
	for _, name := range entry.Numeric {
		if col := ds.Column(name); col != nil {
			coerceNumeric(col, entry.Precision)
			declared[name] = true
		}
	}
	for _, name := range entry.Dates {
		if col := ds.Column(name); col != nil {
			coerceDate(col)
			declared[name] = true
		}
	}

	for i := range ds.Columns {
		if !declared[ds.Columns[i].Name] {
			narrow(&ds.Columns[i])
		}
	}
	return ds
}

// coerceNumeric parses and rounds. Precision 0 yields nullable integers.
func coerceNumeric(col *Column, precision int) {
	kind := KindDecimal
	if precision == 0 {
		kind = KindInt
	}
	for i, v := range col.Values {
		f, ok := NumericOf(v)
		if !ok {
			col.Values[i] = Missing()
			continue
		}
		f = RoundTo(f, precision)
		if kind == KindInt {
			// float64(math.MaxInt64) rounds up to 2^63, so the upper bound is exclusive.
			if f < math.MinInt64 || f >= math.MaxInt64 {
				col.Values[i] = Missing()
				continue
			}
			col.Values[i] = Int(int64(f))
		} else {
			col.Values[i] = Decimal(f)
		}
	}
	col.Kind = kind
}

func coerceDate(col *Column) {
	for i, v := range col.Values {
		if t, ok := DateOf(v); ok {
			col.Values[i] = Date(t)
		} else {
			col.Values[i] = Missing()
		}
	}
	col.Kind = KindDate
}

// narrow picks the most specific kind that fits every non-blank cell:
// bool, then integer, then decimal, then date (only for cells already dated),
// then text. Blank cells become missing. Text that would lose information
// when converted (leading zeros, currency symbols) stays text.
func narrow(col *Column) {
	canBool, canInt, canDecimal, canDate := true, true, true, true
	nonBlank := 0

	for _, v := range col.Values {
		if v.IsBlank() {
			continue
		}
		nonBlank++

		if v.Kind() != KindBool {
			if _, ok := strictBool(v); !ok {
				canBool = false
			}
		}
		if _, ok := strictInt(v); !ok {
			canInt = false
		}
		if _, ok := strictDecimal(v); !ok {
			canDecimal = false
		}
		if v.Kind() != KindDate {
			canDate = false
		}
		if !canBool && !canInt && !canDecimal && !canDate {
			break
		}
	}

	switch {
	case nonBlank == 0:
		col.Kind = KindText
		blankToMissing(col)
	case canBool:
		convertColumn(col, KindBool, func(v Value) Value {
			b, _ := strictBool(v)
			return Bool(b)
		})
	case canInt:
		convertColumn(col, KindInt, func(v Value) Value {
			n, _ := strictInt(v)
			return Int(n)
		})
	case canDecimal:
		convertColumn(col, KindDecimal, func(v Value) Value {
			f, _ := strictDecimal(v)
			return Decimal(f)
		})
	case canDate:
		convertColumn(col, KindDate, func(v Value) Value { return v })
	default:
		convertColumn(col, KindText, func(v Value) Value {
			if v.Kind() == KindText {
				return v
			}
			return Text(v.String())
		})
	}
}

func convertColumn(col *Column, kind Kind, conv func(Value) Value) {
	for i, v := range col.Values {
		if v.IsBlank() {
			col.Values[i] = Missing()
			continue
		}
		col.Values[i] = conv(v)
	}
	col.Kind = kind
}

func blankToMissing(col *Column) {
	for i, v := range col.Values {
		if v.IsBlank() {
			col.Values[i] = Missing()
		}
	}
}

func strictBool(v Value) (bool, bool) {
	switch v.Kind() {
	case KindBool:
		return v.BoolValue(), true
	case KindText:
		return ParseBool(v.TextValue())
	default:
		return false, false
	}
}

// strictInt accepts integers and text whose integer form round-trips exactly.
func strictInt(v Value) (int64, bool) {
	switch v.Kind() {
	case KindInt:
		return v.IntValue(), true
	case KindText:
		s := strings.TrimSpace(v.TextValue())
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || strconv.FormatInt(n, 10) != strings.TrimPrefix(s, "+") {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// strictDecimal accepts numbers and plain decimal text without leading zeros.
func strictDecimal(v Value) (float64, bool) {
	switch v.Kind() {
	case KindInt, KindDecimal:
		return v.Float()
	case KindText:
		s := strings.TrimSpace(v.TextValue())
		if !numericRegex.MatchString(s) || hasLeadingZero(s) {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func hasLeadingZero(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) > 1 && s[0] == '0' && s[1] != '.'
}
