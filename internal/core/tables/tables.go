// Package tables builds the core registry from the regulatory table file.
//
// The default registry is embedded in the binary (regulatory.yaml). A
// replacement may be supplied as YAML or TOML with the same shape, so new raw
// header spellings can be added without a rebuild.
package tables

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/regimport/internal/core"
)

//go:embed regulatory.yaml
var defaultFile []byte

// File is the on-disk shape of a registry file.
type File struct {
	Vocabulary  map[string]string `yaml:"vocabulary" toml:"vocabulary"`
	Tables      []Table           `yaml:"tables" toml:"tables"`
	NonNegative []string          `yaml:"non_negative" toml:"non_negative"`
	Composite   []Composite       `yaml:"composite" toml:"composite"`
}

// Table is one canonical table entry.
type Table struct {
	ID       string   `yaml:"id" toml:"id"`
	Keywords []string `yaml:"keywords" toml:"keywords"`
	Required []string `yaml:"required" toml:"required"`
	Numeric  []string `yaml:"numeric" toml:"numeric"`
	Dates    []string `yaml:"dates" toml:"dates"`
	// Precision defaults to core.DefaultPrecision when omitted.
	Precision *int `yaml:"precision" toml:"precision"`
	// Indexes lists single columns, or "a, b" for a composite index.
	Indexes []string `yaml:"indexes" toml:"indexes"`
}

// Composite is a named cross-table index.
type Composite struct {
	Name    string `yaml:"name" toml:"name"`
	Table   string `yaml:"table" toml:"table"`
	Columns string `yaml:"columns" toml:"columns"`
}

// Default returns the registry built from the embedded file.
func Default() (*core.Registry, error) {
	return Load(defaultFile, "yaml")
}

// LoadFile reads a registry file; the format follows the extension.
// An empty path returns the default registry.
func LoadFile(path string) (*core.Registry, error) {
	if path == "" {
		return Default()
	}

	var format string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	case ".toml":
		format = "toml"
	default:
		return nil, fmt.Errorf("registry %s: unsupported extension (want .yaml, .yml or .toml)", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return Load(data, format)
}

// Load parses registry data in the given format ("yaml" or "toml") and
// returns a validated registry.
func Load(data []byte, format string) (*core.Registry, error) {
	var f File
	switch format {
	case "yaml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse registry yaml: %w", err)
		}
	case "toml":
		if err := toml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse registry toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("registry: unknown format %q", format)
	}
	return Build(f)
}

// Build converts a parsed file into a registry.
func Build(f File) (reg *core.Registry, err error) {
	if len(f.Tables) == 0 {
		return nil, fmt.Errorf("registry: no tables defined")
	}

	// Register panics on duplicate IDs; surface that as an error.
	defer func() {
		if r := recover(); r != nil {
			reg, err = nil, fmt.Errorf("registry: %v", r)
		}
	}()

	reg = core.NewRegistry(core.NewVocabulary(f.Vocabulary))
	for _, t := range f.Tables {
		precision := core.DefaultPrecision
		if t.Precision != nil {
			precision = *t.Precision
		}

		indexes := make([]core.Index, 0, len(t.Indexes))
		for _, spec := range t.Indexes {
			cols := splitColumns(spec)
			indexes = append(indexes, core.Index{
				Name:    core.IndexName(t.ID, cols),
				Columns: cols,
			})
		}

		reg.Register(core.SchemaEntry{
			ID:        t.ID,
			Keywords:  t.Keywords,
			Required:  t.Required,
			Numeric:   t.Numeric,
			Dates:     t.Dates,
			Precision: precision,
			Indexes:   indexes,
		})
	}

	reg.SetNonNegative(f.NonNegative)
	for _, c := range f.Composite {
		reg.AddComposite(core.CompositeIndex{
			Table: c.Table,
			Index: core.Index{Name: c.Name, Columns: splitColumns(c.Columns)},
		})
	}

	if err := reg.Validate(); err != nil {
		return nil, fmt.Errorf("registry invalid: %w", err)
	}
	return reg, nil
}

// splitColumns parses "a, b, c" into its trimmed, non-empty parts.
func splitColumns(s string) []string {
	var cols []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			cols = append(cols, p)
		}
	}
	return cols
}
