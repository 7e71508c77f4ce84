package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/JonMunkholm/regimport/internal/core"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderTable(w io.Writer, headers []string, rows [][]string) error {
	table := tablewriter.NewTable(w)

	h := make([]any, len(headers))
	for i, v := range headers {
		h[i] = v
	}
	table.Header(h...)

	for _, row := range rows {
		cells := make([]any, len(row))
		for i, v := range row {
			cells[i] = v
		}
		if err := table.Append(cells...); err != nil {
			return err
		}
	}
	return table.Render()
}

// printRun writes one line per sheet followed by the run totals.
func printRun(w io.Writer, run *core.RunResult) error {
	rows := make([][]string, 0, len(run.Sheets))
	for _, s := range run.Sheets {
		status := "ok"
		switch {
		case s.Failed():
			status = s.Code + ": " + s.Error
		case !s.Report.Passed:
			status = "loaded with missing columns"
		case s.Load.IndexErrors > 0:
			status = fmt.Sprintf("loaded, %d index errors", s.Load.IndexErrors)
		}
		rows = append(rows, []string{
			s.Label,
			s.Table,
			strconv.Itoa(s.Rows),
			strconv.Itoa(len(s.Report.Issues)),
			status,
		})
	}
	if err := renderTable(w, []string{"Sheet", "Table", "Rows", "Issues", "Status"}, rows); err != nil {
		return err
	}

	cancelled := ""
	if run.Cancelled {
		cancelled = " (cancelled)"
	}
	_, err := fmt.Fprintf(w, "run %s: %d sheets, %d failed, %d rows in %s%s\n",
		run.ID, len(run.Sheets), len(run.Failed()), run.RowsLoaded(), run.Duration.Round(time.Millisecond), cancelled)
	return err
}

// printSummary writes the post-run database report.
func printSummary(w io.Writer, summaries []core.TableSummary) error {
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		switch {
		case s.Error != "":
			rows = append(rows, []string{s.Table, "-", "error: " + s.Error})
		case !s.Exists:
			rows = append(rows, []string{s.Table, "-", "not loaded"})
		default:
			rows = append(rows, []string{s.Table, strconv.FormatInt(s.Rows, 10), strings.Join(s.Columns, ", ")})
		}
	}
	return renderTable(w, []string{"Table", "Rows", "Columns"}, rows)
}

// tableView is the JSON form of a registry entry.
type tableView struct {
	ID        string   `json:"id"`
	Keywords  []string `json:"keywords"`
	Required  []string `json:"required,omitempty"`
	Numeric   []string `json:"numeric,omitempty"`
	Dates     []string `json:"dates,omitempty"`
	Precision int      `json:"precision"`
	Indexes   []string `json:"indexes,omitempty"`
}

func registryView(reg *core.Registry) []tableView {
	entries := reg.Entries()
	out := make([]tableView, 0, len(entries))
	for _, e := range entries {
		v := tableView{
			ID:        e.ID,
			Keywords:  e.Keywords,
			Required:  e.Required,
			Numeric:   e.Numeric,
			Dates:     e.Dates,
			Precision: e.Precision,
		}
		for _, idx := range e.Indexes {
			v.Indexes = append(v.Indexes, idx.Name)
		}
		for _, idx := range reg.CompositeFor(e.ID) {
			v.Indexes = append(v.Indexes, idx.Name)
		}
		out = append(out, v)
	}
	return out
}

func printRegistry(w io.Writer, reg *core.Registry) error {
	views := registryView(reg)
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		rows = append(rows, []string{
			v.ID,
			strings.Join(v.Keywords, ", "),
			strings.Join(v.Required, ", "),
			strings.Join(v.Numeric, ", "),
			strings.Join(v.Dates, ", "),
		})
	}
	if err := renderTable(w, []string{"Table", "Keywords", "Required", "Numeric", "Dates"}, rows); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d tables, %d vocabulary entries\n", reg.TableCount(), reg.Vocabulary().Len())
	return err
}
