// Package application wires configuration, registry, sources and sinks into
// the import service shared by the CLI, the report server and the inbox.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JonMunkholm/regimport/internal/config"
	"github.com/JonMunkholm/regimport/internal/core"
	"github.com/JonMunkholm/regimport/internal/core/tables"
	"github.com/JonMunkholm/regimport/internal/logging"
	"github.com/JonMunkholm/regimport/internal/sink"
	"github.com/JonMunkholm/regimport/internal/source"
)

// RunOptions overrides the configured import settings for one run.
type RunOptions struct {
	Sheets    []string
	BatchSize int
	Source    string // recorded as the run's source; defaults to the path
}

// Service runs imports against one sink and keeps the latest result.
type Service struct {
	cfg      *config.Config
	registry *core.Registry
	db       sink.DB
	limiter  *core.RunLimiter
	metrics  *core.Metrics
	logger   *slog.Logger

	mu     sync.RWMutex
	latest *core.RunResult
}

// LoadRegistry returns the registry at path, or the built-in one when path is empty.
func LoadRegistry(path string) (*core.Registry, error) {
	reg, err := tables.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	return reg, nil
}

// New loads the registry and opens the configured sink.
// Metrics are registered with promReg when it is non-nil.
func New(ctx context.Context, cfg *config.Config, promReg prometheus.Registerer, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	registry, err := LoadRegistry(cfg.Registry.Path)
	if err != nil {
		return nil, err
	}
	logger.Info("tables registered", "count", registry.TableCount())

	db, err := sink.Open(ctx, sink.Config{
		Driver:          cfg.Database.Driver,
		URL:             cfg.Database.URL,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	}, logger)
	if err != nil {
		return nil, err
	}

	var metrics *core.Metrics
	if promReg != nil {
		metrics = core.NewMetrics(promReg)
	}
	return NewWithSink(cfg, registry, db, metrics, logger), nil
}

// NewWithSink builds a service around an already opened sink.
func NewWithSink(cfg *config.Config, registry *core.Registry, db sink.DB, metrics *core.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:      cfg,
		registry: registry,
		db:       db,
		limiter:  core.NewRunLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime),
		metrics:  metrics,
		logger:   logger,
	}
}

// Import runs one import over the workbook, CSV file or CSV directory at path.
// It waits for a run slot and fails with core.ErrTooManyRuns when none frees up,
// or with core.ErrSourceInProgress when the same source label is already running.
func (s *Service) Import(ctx context.Context, path string, opts RunOptions) (*core.RunResult, error) {
	label := path
	if opts.Source != "" {
		label = opts.Source
	}
	slot, err := s.limiter.Acquire(ctx, label)
	if err != nil {
		return nil, err
	}
	defer slot.Release()

	src, err := source.Open(path, s.sourceOptions())
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	runID := slot.Run().ID
	ctx = logging.ContextWithRunID(ctx, runID.String())
	logging.FromContext(ctx).Info("import requested", "source", path, "label", opts.Source)

	importOpts := core.ImportOptions{
		BatchSize:    s.cfg.Import.BatchSize,
		SheetTimeout: s.cfg.Import.SheetTimeout,
		Sheets:       s.cfg.Source.Sheets,
		RunID:        runID,
	}
	if opts.BatchSize > 0 {
		importOpts.BatchSize = opts.BatchSize
	}
	if len(opts.Sheets) > 0 {
		importOpts.Sheets = opts.Sheets
	}

	run, err := core.NewImporter(s.registry, s.db, importOpts, s.logger).
		WithMetrics(s.metrics).
		Run(ctx, src)
	if err != nil {
		return nil, err
	}
	run.Source = label

	s.mu.Lock()
	s.latest = run
	s.mu.Unlock()
	return run, nil
}

func (s *Service) sourceOptions() source.Options {
	return source.Options{
		HeaderSearchRows: s.cfg.Source.HeaderSearchRows,
		MaxFileSize:      s.cfg.Server.UploadMaxFileSize,
		Encoding:         s.cfg.Source.Encoding,
		Delimiter:        s.cfg.Source.Delimiter,
	}
}

// Summary reports the state of every registry table in the sink.
func (s *Service) Summary(ctx context.Context) []core.TableSummary {
	return core.Summarize(ctx, s.db, s.registry, s.logger)
}

// LatestRun returns the most recent completed run, or nil.
func (s *Service) LatestRun() *core.RunResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Registry returns the table registry.
func (s *Service) Registry() *core.Registry {
	return s.registry
}

// LimiterStatus returns the run slot usage.
func (s *Service) LimiterStatus() core.RunLimiterStatus {
	return s.limiter.Status()
}

// WaitForRuns blocks until in-flight imports finish or ctx ends.
func (s *Service) WaitForRuns(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// Ping checks the sink connection.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close releases the sink.
func (s *Service) Close() error {
	return s.db.Close()
}
