package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects import counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	sheets      *prometheus.CounterVec
	rows        *prometheus.CounterVec
	issues      *prometheus.CounterVec
	indexFails  *prometheus.CounterVec
	runDuration prometheus.Histogram
}

// NewMetrics creates the import metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sheets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "regimport",
			Name:      "sheets_total",
			Help:      "Sheets processed, by table and outcome.",
		}, []string{"table", "outcome"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "regimport",
			Name:      "rows_loaded_total",
			Help:      "Rows written to the sink, by table.",
		}, []string{"table"}),
		issues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "regimport",
			Name:      "validation_issues_total",
			Help:      "Advisory validation issues, by table.",
		}, []string{"table"}),
		indexFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "regimport",
			Name:      "index_failures_total",
			Help:      "Index creation failures, by table.",
		}, []string{"table"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "regimport",
			Name:      "run_duration_seconds",
			Help:      "Wall time of complete import runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.sheets, m.rows, m.issues, m.indexFails, m.runDuration)
	}
	return m
}

// SheetDone records one processed sheet.
func (m *Metrics) SheetDone(table string, failed bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "failed"
	}
	m.sheets.WithLabelValues(table, outcome).Inc()
}

// RowsLoaded adds rows written to a table.
func (m *Metrics) RowsLoaded(table string, n int) {
	if m == nil {
		return
	}
	m.rows.WithLabelValues(table).Add(float64(n))
}

// ValidationIssues adds advisory issues for a table.
func (m *Metrics) ValidationIssues(table string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.issues.WithLabelValues(table).Add(float64(n))
}

// IndexFailed records one index creation failure.
func (m *Metrics) IndexFailed(table string) {
	if m == nil {
		return
	}
	m.indexFails.WithLabelValues(table).Inc()
}

// RunFinished observes the duration of a run.
func (m *Metrics) RunFinished(d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.Observe(d.Seconds())
}
