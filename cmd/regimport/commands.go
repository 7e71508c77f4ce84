package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/regimport/internal/application"
	"github.com/JonMunkholm/regimport/internal/config"
	"github.com/JonMunkholm/regimport/internal/core"
	"github.com/JonMunkholm/regimport/internal/inbox"
	"github.com/JonMunkholm/regimport/internal/logging"
	"github.com/JonMunkholm/regimport/internal/sink"
	"github.com/JonMunkholm/regimport/internal/web"
)

// errSheetsFailed is returned by run when the import finished but some
// sheets could not be loaded.
var errSheetsFailed = errors.New("one or more sheets failed to load")

// globalFlags are shared by every command.
type globalFlags struct {
	json     bool
	logLevel string
}

func newRootCmd(version string) *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:     "regimport",
		Short:   "Load regulatory energy workbooks into a database",
		Version: version,
		Long: `regimport reads Excel workbooks or CSV exports of regulatory energy data,
maps every sheet to a canonical table, normalizes and validates its columns,
and loads the rows into PostgreSQL or SQLite.

Configuration comes from the environment (and a .env file when present);
see DATABASE_URL, SINK_DRIVER, IMPORT_BATCH_SIZE and friends.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&g.json, "json", false, "print results as JSON")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	root.SetVersionTemplate("regimport {{.Version}}\n")

	root.AddCommand(
		newRunCmd(g),
		newReportCmd(g),
		newTablesCmd(g),
		newServeCmd(g),
		newVersionCmd(version),
	)
	return root
}

// loadConfig reads the environment and configures logging to stderr.
// Callers apply flag overrides and then call Validate.
func loadConfig(cmd *cobra.Command, g *globalFlags) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Read()
	if err != nil {
		return nil, nil, err
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	logger := logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// ---------------------------------------------------------------------------
// run
// ---------------------------------------------------------------------------

func newRunCmd(g *globalFlags) *cobra.Command {
	var (
		batchSize int
		sheets    []string
		dryRun    bool
		noReport  bool
	)

	cmd := &cobra.Command{
		Use:   "run [path]",
		Short: "Import a workbook, CSV file or directory of CSV files",
		Long: `Import every sheet of the source into its canonical table.

The path defaults to SOURCE_PATH. Tables written in this run are replaced on
their first write; later sheets mapping to the same table append. Sheets that
fail are reported and the remaining sheets still load. The exit status is 2
when any sheet failed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			if dryRun {
				cfg.Database.Driver = sink.DriverMemory
			}
			path := cfg.Source.Path
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return errors.New("no source: pass a path or set SOURCE_PATH")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			svc, err := application.New(ctx, cfg, nil, logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			run, err := svc.Import(ctx, path, application.RunOptions{Sheets: sheets, BatchSize: batchSize})
			if err != nil {
				return err
			}

			var summaries []core.TableSummary
			if !noReport {
				summaries = svc.Summary(ctx)
				core.LogSummary(logger, summaries)
			}

			out := cmd.OutOrStdout()
			if g.json {
				if err := printJSON(out, struct {
					Run     *core.RunResult     `json:"run"`
					Summary []core.TableSummary `json:"summary,omitempty"`
				}{run, summaries}); err != nil {
					return err
				}
			} else {
				if err := printRun(out, run); err != nil {
					return err
				}
				if summaries != nil {
					if err := printSummary(out, summaries); err != nil {
						return err
					}
				}
			}

			if len(run.Failed()) > 0 {
				return errSheetsFailed
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "rows per write batch (overrides IMPORT_BATCH_SIZE)")
	cmd.Flags().StringSliceVar(&sheets, "sheets", nil, "only import these sheet names (overrides SOURCE_SHEETS)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "load into memory only; nothing is written to the database")
	cmd.Flags().BoolVar(&noReport, "no-report", false, "skip the database summary after the run")
	return cmd
}

// ---------------------------------------------------------------------------
// report
// ---------------------------------------------------------------------------

func newReportCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print row counts and columns of every canonical table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			svc, err := application.New(ctx, cfg, nil, logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			summaries := svc.Summary(ctx)
			if g.json {
				return printJSON(cmd.OutOrStdout(), summaries)
			}
			return printSummary(cmd.OutOrStdout(), summaries)
		},
	}
}

// ---------------------------------------------------------------------------
// tables
// ---------------------------------------------------------------------------

func newTablesCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "Print the table registry",
		Long:  "Print the canonical tables, the sheet keywords that select them and their column rules.\nThe registry is read from REGISTRY_PATH, or the built-in registry when unset.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			reg, err := application.LoadRegistry(cfg.Registry.Path)
			if err != nil {
				return err
			}
			if g.json {
				return printJSON(cmd.OutOrStdout(), registryView(reg))
			}
			return printRegistry(cmd.OutOrStdout(), reg)
		},
	}
}

// ---------------------------------------------------------------------------
// serve
// ---------------------------------------------------------------------------

func newServeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the report server and, with INBOX_DIR set, the inbox watcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger.Info("configuration loaded", "config", cfg.String())
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc, err := application.New(ctx, cfg, promReg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	server := web.NewServer(svc, cfg.Server, promReg)

	var watcher *inbox.Watcher
	if cfg.Inbox.Dir != "" {
		watcher, err = inbox.New(inbox.Config{
			Dir:          cfg.Inbox.Dir,
			Pattern:      cfg.Inbox.Pattern,
			ProcessedDir: cfg.Inbox.ProcessedDir,
			Debounce:     cfg.Inbox.Debounce,
		}, svc, logger)
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	if watcher != nil {
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := svc.LimiterStatus(); status.Active > 0 {
			logger.Info("waiting for imports to complete", "active", status.Active)
			if err := svc.WaitForRuns(shutdownCtx); err != nil {
				logger.Warn("imports did not complete in time", "error", err)
			}
		}
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// ---------------------------------------------------------------------------
// version
// ---------------------------------------------------------------------------

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "regimport %s\n", version)
		},
	}
}
