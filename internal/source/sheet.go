package source

import (
	"strings"

	"github.com/JonMunkholm/regimport/internal/core"
)

// buildSheet turns rows of cell text into a raw sheet.
//
// The header is the first row with a non-blank cell among the first
// searchRows rows; anything above it (titles, notes) is discarded. Short rows
// are padded with missing values and blank cells become missing. Columns with
// a blank header and no data are dropped. Trailing blank rows are dropped.
func buildSheet(label string, rows [][]string, searchRows int) (*core.RawSheet, error) {
	headerAt := findHeader(rows, searchRows)
	if headerAt < 0 {
		return nil, core.ErrEmptySheet
	}

	header := rows[headerAt]
	data := rows[headerAt+1:]
	for len(data) > 0 && isEmptyRow(data[len(data)-1]) {
		data = data[:len(data)-1]
	}

	width := len(header)
	for _, r := range data {
		width = max(width, len(r))
	}

	sheet := &core.RawSheet{Label: label}
	for c := 0; c < width; c++ {
		name := ""
		if c < len(header) {
			name = header[c]
		}

		values := make([]core.Value, len(data))
		empty := true
		for r, row := range data {
			if c >= len(row) || strings.TrimSpace(row[c]) == "" {
				values[r] = core.Missing()
				continue
			}
			values[r] = core.Text(row[c])
			empty = false
		}

		if empty && strings.TrimSpace(name) == "" {
			continue
		}
		sheet.Columns = append(sheet.Columns, core.Column{Name: name, Kind: core.KindText, Values: values})
	}
	return sheet, nil
}

// findHeader returns the index of the first non-empty row among the first
// searchRows rows, or -1.
func findHeader(rows [][]string, searchRows int) int {
	for i := 0; i < len(rows) && i < searchRows; i++ {
		if !isEmptyRow(rows[i]) {
			return i
		}
	}
	return -1
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
