// Package inbox watches a drop directory and imports workbooks placed in it.
//
// Files matching the pattern are imported one at a time once they have been
// quiet for the debounce period. Files that import cleanly are moved into the
// processed directory; anything else stays where it is until it changes again.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/JonMunkholm/regimport/internal/application"
	"github.com/JonMunkholm/regimport/internal/core"
	"github.com/JonMunkholm/regimport/internal/logging"
)

// Importer runs one import over a file.
type Importer interface {
	Import(ctx context.Context, path string, opts application.RunOptions) (*core.RunResult, error)
}

// Config configures a Watcher.
type Config struct {
	Dir          string
	Pattern      string        // doublestar pattern matched against file names
	ProcessedDir string        // relative to Dir unless absolute
	Debounce     time.Duration // quiet period before a file is imported
}

// Watcher imports files dropped into a directory.
type Watcher struct {
	cfg      Config
	importer Importer
	logger   *slog.Logger

	// pending maps a path to the time of its last change.
	// Only the Run goroutine touches it.
	pending map[string]time.Time
}

// New validates cfg and creates a watcher.
func New(cfg Config, importer Importer, logger *slog.Logger) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, errors.New("inbox: directory is required")
	}
	if cfg.Pattern == "" {
		cfg.Pattern = "*.{xlsx,xlsm,csv}"
	}
	if !doublestar.ValidatePattern(cfg.Pattern) {
		return nil, fmt.Errorf("inbox: invalid pattern %q", cfg.Pattern)
	}
	if cfg.ProcessedDir == "" {
		cfg.ProcessedDir = "Uploaded"
	}
	if !filepath.IsAbs(cfg.ProcessedDir) {
		cfg.ProcessedDir = filepath.Join(cfg.Dir, cfg.ProcessedDir)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		cfg:      cfg,
		importer: importer,
		logger:   logger.With("inbox", cfg.Dir),
		pending:  make(map[string]time.Time),
	}, nil
}

// Run watches until ctx is cancelled. Files already present are queued on start.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.cfg.ProcessedDir, 0o755); err != nil {
		return fmt.Errorf("inbox: create processed directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("inbox: create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("inbox: watch %s: %w", w.cfg.Dir, err)
	}

	if err := w.scan(); err != nil {
		return err
	}

	ticker := time.NewTicker(w.tick())
	defer ticker.Stop()

	w.logger.Info("inbox watching", "pattern", w.cfg.Pattern, "processed", w.cfg.ProcessedDir, "debounce", w.cfg.Debounce)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("inbox stopped", "pending", len(w.pending))
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				w.touch(event.Name)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("inbox watcher error", "error", err)

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) tick() time.Duration {
	t := w.cfg.Debounce / 4
	if t < 10*time.Millisecond {
		t = 10 * time.Millisecond
	}
	return t
}

// scan queues matching files already in the directory.
func (w *Watcher) scan() error {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return fmt.Errorf("inbox: read %s: %w", w.cfg.Dir, err)
	}
	var zero time.Time
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.cfg.Dir, e.Name())
		if w.matches(path) {
			w.pending[path] = zero
		}
	}
	if len(w.pending) > 0 {
		w.logger.Info("inbox queued existing files", "count", len(w.pending))
	}
	return nil
}

func (w *Watcher) touch(path string) {
	if !w.matches(path) {
		return
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return
	}
	w.pending[path] = time.Now()
}

// matches reports whether path is a top-level file that should be imported.
// Office lock files (~$name.xlsx) and hidden files are skipped.
func (w *Watcher) matches(path string) bool {
	if filepath.Clean(filepath.Dir(path)) != filepath.Clean(w.cfg.Dir) {
		return false
	}
	base := filepath.Base(path)
	if strings.HasPrefix(base, "~$") || strings.HasPrefix(base, ".") {
		return false
	}
	ok, err := doublestar.Match(w.cfg.Pattern, base)
	return err == nil && ok
}

// flush imports every pending file that has been quiet for the debounce period.
func (w *Watcher) flush(ctx context.Context) {
	now := time.Now()
	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.cfg.Debounce {
			ready = append(ready, path)
		}
	}
	sort.Strings(ready)

	for _, path := range ready {
		if ctx.Err() != nil {
			return
		}
		delete(w.pending, path)
		w.process(ctx, path)
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	name := filepath.Base(path)
	logger := logging.WithFields(ctx, "file", name)

	if _, err := os.Stat(path); err != nil {
		logger.Debug("inbox file vanished before import", "error", err)
		return
	}

	run, err := w.importer.Import(ctx, path, application.RunOptions{Source: name})
	if err != nil {
		if errors.Is(err, core.ErrTooManyRuns) || errors.Is(err, core.ErrSourceInProgress) {
			logger.Warn("inbox import deferred, importer busy", "error", err)
			w.pending[path] = time.Now()
			return
		}
		logger.Error("inbox import failed", "error", err, "code", core.MapError(err).Code)
		return
	}

	if failed := run.Failed(); len(failed) > 0 || run.Cancelled {
		logger.Warn("inbox import incomplete, leaving file in place",
			"run_id", run.ID.String(),
			"failed_sheets", len(failed),
			"cancelled", run.Cancelled,
		)
		return
	}

	dest := filepath.Join(w.cfg.ProcessedDir, name)
	if err := os.Rename(path, dest); err != nil {
		logger.Error("inbox could not move imported file", "dest", dest, "error", err)
		return
	}
	logger.Info("inbox file imported",
		"run_id", run.ID.String(),
		"rows", run.RowsLoaded(),
		"moved_to", dest,
	)
}
