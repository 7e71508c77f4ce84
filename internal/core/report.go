package core

import (
	"context"
	"log/slog"
)

// TableSummary is the post-run state of one canonical table.
type TableSummary struct {
	Table   string   `json:"table"`
	Exists  bool     `json:"exists"`
	Rows    int64    `json:"rows"`
	Columns []string `json:"columns,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Summarize reads row counts and a sample row for every registry table.
// Per-table failures are recorded in the summary, never returned.
func Summarize(ctx context.Context, sink Sink, registry *Registry, logger *slog.Logger) []TableSummary {
	if logger == nil {
		logger = slog.Default()
	}

	ids := registry.IDs()
	out := make([]TableSummary, 0, len(ids))
	for _, id := range ids {
		ts := TableSummary{Table: id}

		exists, err := sink.TableExists(ctx, id)
		if err != nil {
			ts.Error = err.Error()
			logger.Warn("could not check table", "table", id, "error", err)
			out = append(out, ts)
			continue
		}
		ts.Exists = exists
		if !exists {
			out = append(out, ts)
			continue
		}

		if ts.Rows, err = sink.CountRows(ctx, id); err != nil {
			ts.Error = err.Error()
			logger.Warn("could not count rows", "table", id, "error", err)
			out = append(out, ts)
			continue
		}

		row, err := sink.SampleRow(ctx, id)
		if err != nil {
			ts.Error = err.Error()
			logger.Warn("could not sample table", "table", id, "error", err)
		} else if row != nil {
			ts.Columns = row.Columns
		}
		out = append(out, ts)
	}
	return out
}

// LogSummary writes the summary report to logger.
func LogSummary(logger *slog.Logger, summaries []TableSummary) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("database summary report")
	for _, s := range summaries {
		switch {
		case s.Error != "":
			logger.Warn("table summary unavailable", "table", s.Table, "error", s.Error)
		case !s.Exists:
			logger.Info("table not loaded", "table", s.Table)
		default:
			logger.Info("table summary", "table", s.Table, "rows", s.Rows, "columns", s.Columns)
		}
	}
}
