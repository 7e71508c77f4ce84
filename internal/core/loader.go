package core

// loader.go commits coerced datasets to a Sink.
//
// The first write of a table within a run is a full refresh; later writes of
// the same table in that run append. Large datasets go out in consecutive
// batches of at most batchSize rows, in source row order. Index creation runs
// after the data is written and never fails the load.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// DefaultBatchSize is the number of rows written per batch.
const DefaultBatchSize = 10000

// LoadResult describes what one Load call wrote.
type LoadResult struct {
	Table       string `json:"table"`
	Rows        int    `json:"rows"`
	Batches     int    `json:"batches"`  // AppendBatch calls
	Replaced    bool   `json:"replaced"` // first write in this run
	IndexErrors int    `json:"index_errors"`
}

// Loader writes datasets in batches and maintains indexes.
// A Loader carries per-run state; create one per run.
type Loader struct {
	sink      Sink
	registry  *Registry
	batchSize int
	logger    *slog.Logger
	metrics   *Metrics

	mu      sync.Mutex
	written map[string]bool
}

// NewLoader creates a loader for one run. batchSize <= 0 uses DefaultBatchSize.
func NewLoader(sink Sink, registry *Registry, batchSize int, logger *slog.Logger) *Loader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		sink:      sink,
		registry:  registry,
		batchSize: batchSize,
		logger:    logger,
		written:   make(map[string]bool),
	}
}

// WithMetrics attaches a metrics collector.
func (l *Loader) WithMetrics(m *Metrics) *Loader {
	l.metrics = m
	return l
}

// Load writes ds to table and requests its indexes.
func (l *Loader) Load(ctx context.Context, ds *Dataset, table string) (LoadResult, error) {
	res := LoadResult{Table: table, Rows: ds.Len()}

	l.mu.Lock()
	first := !l.written[table]
	l.mu.Unlock()

	if first {
		res.Replaced = true
		if ds.Len() <= l.batchSize {
			if err := l.sink.ReplaceTable(ctx, table, ds); err != nil {
				return res, fmt.Errorf("replace %s: %w", table, err)
			}
		} else {
			if err := l.sink.ReplaceTable(ctx, table, ds.Slice(0, 0)); err != nil {
				return res, fmt.Errorf("replace %s: %w", table, err)
			}
			n, err := l.appendBatches(ctx, ds, table)
			res.Batches = n
			if err != nil {
				l.markWritten(table)
				return res, err
			}
		}
		l.markWritten(table)
	} else {
		n, err := l.appendBatches(ctx, ds, table)
		res.Batches = n
		if err != nil {
			return res, err
		}
	}

	res.IndexErrors = l.createIndexes(ctx, ds, table)
	l.metrics.RowsLoaded(table, res.Rows)
	return res, nil
}

func (l *Loader) markWritten(table string) {
	l.mu.Lock()
	l.written[table] = true
	l.mu.Unlock()
}

// appendBatches writes consecutive slices of at most batchSize rows.
func (l *Loader) appendBatches(ctx context.Context, ds *Dataset, table string) (int, error) {
	batches := 0
	total := ds.Len()
	for start := 0; start < total; start += l.batchSize {
		end := min(start+l.batchSize, total)
		if err := l.sink.AppendBatch(ctx, table, ds.Slice(start, end)); err != nil {
			return batches, fmt.Errorf("append %s rows %d-%d: %w", table, start, end, err)
		}
		batches++
		l.logger.Debug("batch written", "table", table, "from", start, "to", end)
	}
	return batches, nil
}

// createIndexes requests declared and composite indexes whose columns exist
// in the stored table.
// Returns the number of failures.
func (l *Loader) createIndexes(ctx context.Context, ds *Dataset, table string) int {
	entry, _ := l.registry.Lookup(table)

	var indexes []Index
	for _, idx := range entry.Indexes {
		if idx.Name == "" {
			idx.Name = IndexName(table, idx.Columns)
		}
		indexes = append(indexes, idx)
	}
	indexes = append(indexes, l.registry.CompositeFor(table)...)

	present := l.tableColumns(ctx, ds, table)

	failures := 0
	for _, idx := range indexes {
		if missing := missingColumns(present, idx.Columns); len(missing) > 0 {
			l.logger.Debug("index skipped", "table", table, "index", idx.Name, "missing", missing)
			continue
		}
		if err := l.sink.CreateIndexIfAbsent(ctx, table, idx); err != nil {
			failures++
			l.logger.Warn("could not create index", "table", table, "index", idx.Name, "error", err)
			l.metrics.IndexFailed(table)
			continue
		}
		l.logger.Debug("index ensured", "table", table, "index", idx.Name)
	}
	return failures
}

// tableColumns returns the columns the stored table has, which may be more
// than the batch just written. Falls back to the batch's columns when the sink
// cannot list them.
func (l *Loader) tableColumns(ctx context.Context, ds *Dataset, table string) map[string]bool {
	names, err := l.sink.Columns(ctx, table)
	if err != nil {
		l.logger.Debug("could not list table columns, using batch columns", "table", table, "error", err)
		names = ds.Names()
	}
	present := make(map[string]bool, len(names))
	for _, n := range names {
		present[n] = true
	}
	return present
}

func missingColumns(present map[string]bool, columns []string) []string {
	var missing []string
	for _, c := range columns {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	return missing
}
