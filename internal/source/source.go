// Package source reads input workbooks and CSV files into raw sheets.
//
// Every source implements core.Source. Sheets come back with their header
// row exactly as written in the file; renaming happens in the engine.
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/regimport/internal/core"
)

// ErrUnsupportedSource is returned by Open for paths it cannot read.
var ErrUnsupportedSource = errors.New("unsupported source")

// DefaultHeaderSearchRows is how far down a sheet the header row may start.
const DefaultHeaderSearchRows = 20

// DefaultMaxFileSize bounds single input files (100MB).
const DefaultMaxFileSize = 100 * 1024 * 1024

// Options controls how sources read their input.
type Options struct {
	HeaderSearchRows int
	MaxFileSize      int64

	// CSV only.
	Encoding  string // "utf-8" (default) or "windows-1252"
	Delimiter string // "auto" (default), ",", ";" or "tab"
}

func (o Options) withDefaults() Options {
	if o.HeaderSearchRows <= 0 {
		o.HeaderSearchRows = DefaultHeaderSearchRows
	}
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	return o
}

// Workbook extensions excelize can open.
var workbookExts = map[string]bool{
	".xlsx": true,
	".xlsm": true,
	".xltx": true,
	".xltm": true,
}

// Supported reports whether Open accepts a file with this name.
func Supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return workbookExts[ext] || ext == ".csv"
}

// Open returns a source for path. Directories are read as a set of CSV files,
// one sheet per file.
func Open(path string, opts Options) (core.Source, error) {
	opts = opts.withDefaults()

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	if info.IsDir() {
		return OpenCSVDir(path, opts)
	}
	if info.Size() > opts.MaxFileSize {
		return nil, fmt.Errorf("%s: file too large (%d bytes, limit %d)", filepath.Base(path), info.Size(), opts.MaxFileSize)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case workbookExts[ext]:
		return OpenWorkbook(path, opts)
	case ext == ".csv":
		return OpenCSVFiles([]string{path}, opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, filepath.Base(path))
	}
}
