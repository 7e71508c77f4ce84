package source

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/regimport/internal/core"
)

// Workbook reads the sheets of an Excel workbook.
type Workbook struct {
	name string
	file *excelize.File
	opts Options
}

// OpenWorkbook opens the workbook at path.
func OpenWorkbook(path string, opts Options) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", filepath.Base(path), err)
	}
	return &Workbook{name: filepath.Base(path), file: f, opts: opts.withDefaults()}, nil
}

// OpenWorkbookReader reads a workbook from r.
func OpenWorkbookReader(name string, r io.Reader, opts Options) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", name, err)
	}
	return &Workbook{name: name, file: f, opts: opts.withDefaults()}, nil
}

// ListSheets returns the sheet names in workbook order.
func (w *Workbook) ListSheets(context.Context) ([]string, error) {
	return w.file.GetSheetList(), nil
}

// ReadSheet reads one sheet. Cells are read as their stored values, not their
// display format, so numbers keep full precision. Columns whose first data
// cell carries a date number format are rendered as ISO dates.
func (w *Workbook) ReadSheet(ctx context.Context, label string) (*core.RawSheet, error) {
	if idx, err := w.file.GetSheetIndex(label); err != nil || idx < 0 {
		return nil, fmt.Errorf("sheet not found: %s", label)
	}

	rows, err := w.file.Rows(label)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records [][]string
	for rows.Next() {
		if len(records)%1000 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		cols, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", len(records)+1, err)
		}
		records = append(records, cols)
	}
	if err := rows.Error(); err != nil {
		return nil, err
	}

	if err := w.renderDates(label, records); err != nil {
		return nil, fmt.Errorf("read date formats: %w", err)
	}
	return buildSheet(label, records, w.opts.HeaderSearchRows)
}

// renderDates replaces date serials with ISO text in every column whose first
// non-blank data cell is date formatted.
func (w *Workbook) renderDates(label string, records [][]string) error {
	headerAt := findHeader(records, w.opts.HeaderSearchRows)
	if headerAt < 0 {
		return nil
	}

	width := 0
	for _, row := range records[headerAt+1:] {
		width = max(width, len(row))
	}

	var date1904 *bool
	for c := 0; c < width; c++ {
		sample := -1
		for r := headerAt + 1; r < len(records); r++ {
			if c < len(records[r]) && strings.TrimSpace(records[r][c]) != "" {
				sample = r
				break
			}
		}
		if sample < 0 {
			continue
		}

		cell, err := excelize.CoordinatesToCellName(c+1, sample+1)
		if err != nil {
			return err
		}
		isDate, err := w.isDateCell(label, cell)
		if err != nil {
			return err
		}
		if !isDate {
			continue
		}

		if date1904 == nil {
			props, err := w.file.GetWorkbookProps()
			if err != nil {
				return err
			}
			date1904 = new(bool)
			if props.Date1904 != nil {
				*date1904 = *props.Date1904
			}
		}

		for r := headerAt + 1; r < len(records); r++ {
			if c >= len(records[r]) {
				continue
			}
			serial, err := strconv.ParseFloat(strings.TrimSpace(records[r][c]), 64)
			if err != nil {
				continue
			}
			t, err := excelize.ExcelDateToTime(serial, *date1904)
			if err != nil {
				continue
			}
			records[r][c] = formatSerialDate(t)
		}
	}
	return nil
}

func (w *Workbook) isDateCell(sheet, cell string) (bool, error) {
	styleID, err := w.file.GetCellStyle(sheet, cell)
	if err != nil || styleID == 0 {
		return false, err
	}
	style, err := w.file.GetStyle(styleID)
	if err != nil {
		return false, err
	}
	if style.CustomNumFmt != nil {
		return isDateFormat(*style.CustomNumFmt), nil
	}
	return isBuiltinDateFormat(style.NumFmt), nil
}

// isBuiltinDateFormat reports whether a built-in number format ID shows a date.
func isBuiltinDateFormat(id int) bool {
	switch {
	case id >= 14 && id <= 17, id == 22:
		return true
	case id >= 27 && id <= 36, id >= 50 && id <= 58:
		return true // East Asian date formats
	}
	return false
}

// isDateFormat reports whether a custom number format shows a date. Quoted
// literals, escapes and bracketed sections are ignored.
func isDateFormat(code string) bool {
	var b strings.Builder
	inQuote, inBracket := false, false
	for i := 0; i < len(code); i++ {
		ch := code[i]
		switch {
		case inQuote:
			inQuote = ch != '"'
		case inBracket:
			inBracket = ch != ']'
		case ch == '"':
			inQuote = true
		case ch == '[':
			inBracket = true
		case ch == '\\' || ch == '_' || ch == '*':
			i++
		default:
			b.WriteByte(ch)
		}
	}
	plain := strings.ToLower(b.String())
	return strings.ContainsAny(plain, "yd") || (strings.Contains(plain, "m") && !strings.ContainsAny(plain, "hs"))
}

func formatSerialDate(t time.Time) string {
	t = t.Round(time.Second)
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04:05")
}

// Close releases the workbook.
func (w *Workbook) Close() error {
	return w.file.Close()
}

// String names the workbook for logs.
func (w *Workbook) String() string {
	return w.name
}
