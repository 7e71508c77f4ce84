package core

// importer.go drives one import run over a Source.
//
// Sheets are processed one at a time in source order:
//
//	read -> classify -> rename -> validate -> coerce -> load
//
// A failure in any stage, including a panic, is confined to its sheet. The run
// only aborts when the source cannot list its sheets. Cancellation is checked
// between sheets; a sheet that has started runs to completion or to its
// timeout.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrEmptySheet is returned by sources for sheets without a header row.
var ErrEmptySheet = errors.New("empty sheet: no header row")

// ImportOptions tunes a run.
type ImportOptions struct {
	BatchSize    int
	SheetTimeout time.Duration // 0 disables the per-sheet deadline
	Sheets       []string      // when non-empty, only these labels are processed
	RunID        uuid.UUID     // zero generates a new ID per run
}

// SheetResult is the outcome of one sheet.
type SheetResult struct {
	Label     string            `json:"label"`
	Table     string            `json:"table,omitempty"`
	Canonical bool              `json:"canonical"`
	Rows      int               `json:"rows"`
	Load      LoadResult        `json:"load"`
	Report    ValidationReport  `json:"report"`
	Warnings  []string          `json:"warnings,omitempty"`
	Kinds     map[string]string `json:"kinds,omitempty"`
	Err       error             `json:"-"`
	Error     string            `json:"error,omitempty"`
	Code      string            `json:"code,omitempty"`
	Duration  time.Duration     `json:"duration"`
}

// Failed reports whether the sheet failed to load.
func (r SheetResult) Failed() bool {
	return r.Err != nil
}

// RunResult is the outcome of a whole run.
type RunResult struct {
	ID        uuid.UUID     `json:"id"`
	Source    string        `json:"source,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Sheets    []SheetResult `json:"sheets"`
	Cancelled bool          `json:"cancelled,omitempty"`
}

// Failed returns the sheets that failed.
func (r *RunResult) Failed() []SheetResult {
	var out []SheetResult
	for _, s := range r.Sheets {
		if s.Failed() {
			out = append(out, s)
		}
	}
	return out
}

// RowsLoaded returns the total rows written across all sheets.
func (r *RunResult) RowsLoaded() int {
	n := 0
	for _, s := range r.Sheets {
		if !s.Failed() {
			n += s.Rows
		}
	}
	return n
}

// Importer wires the engine stages together.
type Importer struct {
	registry   *Registry
	classifier *Classifier
	validator  *Validator
	coercer    *Coercer
	sink       Sink
	opts       ImportOptions
	logger     *slog.Logger
	metrics    *Metrics
}

// NewImporter creates an importer writing to sink.
func NewImporter(registry *Registry, sink Sink, opts ImportOptions, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Importer{
		registry:   registry,
		classifier: NewClassifier(registry),
		validator:  NewValidator(registry),
		coercer:    NewCoercer(registry),
		sink:       sink,
		opts:       opts,
		logger:     logger,
	}
}

// WithMetrics attaches a metrics collector.
func (im *Importer) WithMetrics(m *Metrics) *Importer {
	im.metrics = m
	return im
}

// Run processes every sheet of src. The returned error is non-nil only for
// run-level failures; per-sheet failures are reported in the result.
func (im *Importer) Run(ctx context.Context, src Source) (*RunResult, error) {
	run := &RunResult{ID: im.opts.RunID, StartedAt: time.Now()}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	logger := im.logger.With("run_id", run.ID.String())

	labels, err := src.ListSheets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sheets: %w", err)
	}
	labels = im.filter(labels, logger)
	logger.Info("import started", "sheets", len(labels))

	loader := NewLoader(im.sink, im.registry, im.opts.BatchSize, logger).WithMetrics(im.metrics)

	for _, label := range labels {
		if ctx.Err() != nil {
			run.Cancelled = true
			logger.Warn("import cancelled", "remaining_from", label, "error", ctx.Err())
			break
		}
		res := im.processSheet(ctx, src, loader, label, logger)
		run.Sheets = append(run.Sheets, res)
		im.metrics.SheetDone(res.Table, res.Failed())
	}

	run.Duration = time.Since(run.StartedAt)
	im.metrics.RunFinished(run.Duration)
	logger.Info("import finished",
		"sheets", len(run.Sheets),
		"failed", len(run.Failed()),
		"rows", run.RowsLoaded(),
		"duration", run.Duration,
	)
	return run, nil
}

// filter keeps the configured sheets, warning about names the source lacks.
func (im *Importer) filter(labels []string, logger *slog.Logger) []string {
	if len(im.opts.Sheets) == 0 {
		return labels
	}
	want := make(map[string]bool, len(im.opts.Sheets))
	for _, s := range im.opts.Sheets {
		want[strings.TrimSpace(s)] = true
	}
	var out []string
	for _, l := range labels {
		if want[l] {
			out = append(out, l)
			delete(want, l)
		}
	}
	for missing := range want {
		logger.Warn("requested sheet not in source", "sheet", missing)
	}
	return out
}

func (im *Importer) processSheet(ctx context.Context, src Source, loader *Loader, label string, logger *slog.Logger) (res SheetResult) {
	start := time.Now()
	res.Label = label
	logger = logger.With("sheet", label)

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("panic: %v", r)
			logger.Error("sheet panicked", "panic", r, "stack", string(debug.Stack()))
		}
		res.Duration = time.Since(start)
		if res.Err != nil {
			res.Error = res.Err.Error()
			res.Code = MapError(res.Err).Code
			logger.Error("sheet failed", "table", res.Table, "code", res.Code, "error", res.Err)
		}
	}()

	if im.opts.SheetTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, im.opts.SheetTimeout)
		defer cancel()
	}

	logger.Info("processing sheet")

	raw, err := src.ReadSheet(ctx, label)
	if err != nil {
		res.Err = fmt.Errorf("read sheet %q: %w", label, err)
		return res
	}

	table, canonical := im.classifier.Classify(label)
	res.Table, res.Canonical = table, canonical
	logger = logger.With("table", table)
	if !canonical {
		logger.Info("sheet not in registry, using ad-hoc table")
	}

	ds, warnings := im.registry.Vocabulary().Rename(raw)
	res.Warnings = warnings
	for _, w := range warnings {
		logger.Warn("column rename", "detail", w)
	}

	res.Report = im.validator.Validate(ds, table)
	im.metrics.ValidationIssues(table, len(res.Report.Issues))
	if !res.Report.Passed || res.Report.HasIssues() {
		logger.Warn("data quality issues", "passed", res.Report.Passed, "issues", strings.Join(res.Report.Issues, "; "))
	}

	im.coercer.Coerce(ds, table)
	res.Kinds = ds.Kinds()
	res.Rows = ds.Len()
	logger.Info("final column types", "kinds", res.Kinds)

	res.Load, err = loader.Load(ctx, ds, table)
	if err != nil {
		res.Err = err
		return res
	}

	logger.Info("sheet loaded",
		"rows", res.Load.Rows,
		"batches", res.Load.Batches,
		"replaced", res.Load.Replaced,
		"index_errors", res.Load.IndexErrors,
	)
	return res
}
