package source

// csv.go reads CSV exports, one sheet per file.
//
// Files are decoded before parsing: a UTF-8 BOM left by Windows tools is
// skipped and invalid UTF-8 sequences become U+FFFD, or the bytes are read as
// Windows-1252 when configured. Parsing is lenient: lazy quotes, ragged rows.

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/JonMunkholm/regimport/internal/core"
)

// CSVFiles is a source over a fixed list of CSV files.
type CSVFiles struct {
	labels []string
	paths  map[string]string
	opts   Options
}

// OpenCSVDir reads every *.csv file directly inside dir, in name order.
func OpenCSVDir(dir string, opts Options) (*CSVFiles, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no csv files in %s", ErrUnsupportedSource, dir)
	}
	sort.Strings(paths)
	return OpenCSVFiles(paths, opts)
}

// OpenCSVFiles creates a source over paths. Each file is labelled by its base
// name without extension.
func OpenCSVFiles(paths []string, opts Options) (*CSVFiles, error) {
	c := &CSVFiles{paths: make(map[string]string, len(paths)), opts: opts.withDefaults()}
	for _, p := range paths {
		label := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		if _, dup := c.paths[label]; dup {
			return nil, fmt.Errorf("duplicate sheet label %q (%s)", label, p)
		}
		c.labels = append(c.labels, label)
		c.paths[label] = p
	}
	return c, nil
}

// ListSheets returns one label per file.
func (c *CSVFiles) ListSheets(context.Context) ([]string, error) {
	return append([]string(nil), c.labels...), nil
}

// ReadSheet parses the file behind label.
func (c *CSVFiles) ReadSheet(ctx context.Context, label string) (*core.RawSheet, error) {
	path, ok := c.paths[label]
	if !ok {
		return nil, fmt.Errorf("sheet not found: %s", label)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > c.opts.MaxFileSize {
		return nil, fmt.Errorf("%s: file too large (%d bytes, limit %d)", filepath.Base(path), info.Size(), c.opts.MaxFileSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := parseCSV(ctx, f, c.opts)
	if err != nil {
		return nil, fmt.Errorf("invalid csv %s: %w", filepath.Base(path), err)
	}
	return buildSheet(label, records, c.opts.HeaderSearchRows)
}

// Close is a no-op; files are opened per read.
func (c *CSVFiles) Close() error { return nil }

// decoder returns the transformer for the configured encoding.
func decoder(encoding string) (transform.Transformer, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "utf-8", "utf8":
		return unicode.BOMOverride(unicode.UTF8.NewDecoder()), nil
	case "windows-1252", "cp1252", "latin1", "iso-8859-1":
		return charmap.Windows1252.NewDecoder(), nil
	default:
		return nil, fmt.Errorf("unknown encoding %q", encoding)
	}
}

func parseCSV(ctx context.Context, r io.Reader, opts Options) ([][]string, error) {
	t, err := decoder(opts.Encoding)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(transform.NewReader(r, t))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = delimiter(opts.Delimiter, data)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr.ReadAll()
}

// delimiter resolves the field separator. "auto" picks ';' when the first
// non-blank line has more semicolons than commas.
func delimiter(setting string, data []byte) rune {
	switch strings.ToLower(strings.TrimSpace(setting)) {
	case ",":
		return ','
	case ";":
		return ';'
	case "tab", "\\t":
		return '\t'
	}

	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
			return ';'
		}
		break
	}
	return ','
}
