package sink

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JonMunkholm/regimport/internal/core"
)

// Memory keeps tables in process. It backs --dry-run.
type Memory struct {
	mu      sync.RWMutex
	tables  map[string]*core.Dataset
	indexes map[string]map[string]core.Index
}

// NewMemory creates an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{
		tables:  make(map[string]*core.Dataset),
		indexes: make(map[string]map[string]core.Index),
	}
}

func (m *Memory) TableExists(_ context.Context, table string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tables[table]
	return ok, nil
}

func (m *Memory) ReplaceTable(_ context.Context, table string, ds *core.Dataset) error {
	cp := &core.Dataset{Columns: make([]core.Column, len(ds.Columns))}
	for i, c := range ds.Columns {
		cp.Columns[i] = core.Column{Name: c.Name, Kind: c.Kind, Values: append([]core.Value(nil), c.Values...)}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table] = cp
	delete(m.indexes, table)
	return nil
}

func (m *Memory) AppendBatch(_ context.Context, table string, ds *core.Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dst, ok := m.tables[table]
	if !ok {
		return fmt.Errorf("table %s does not exist", table)
	}

	before := dst.Len()
	for _, c := range ds.Columns {
		if dst.Has(c.Name) {
			continue
		}
		values := make([]core.Value, before)
		for i := range values {
			values[i] = core.Missing()
		}
		dst.Columns = append(dst.Columns, core.Column{Name: c.Name, Kind: c.Kind, Values: values})
	}

	n := ds.Len()
	for i := range dst.Columns {
		col := &dst.Columns[i]
		if src := ds.Column(col.Name); src != nil {
			col.Values = append(col.Values, src.Values...)
			continue
		}
		for j := 0; j < n; j++ {
			col.Values = append(col.Values, core.Missing())
		}
	}
	return nil
}

func (m *Memory) CreateIndexIfAbsent(_ context.Context, table string, idx core.Index) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ds, ok := m.tables[table]
	if !ok {
		return fmt.Errorf("create index %s: table %s does not exist", idx.Name, table)
	}
	for _, c := range idx.Columns {
		if !ds.Has(c) {
			return fmt.Errorf("create index %s: column %s does not exist", idx.Name, c)
		}
	}
	if m.indexes[table] == nil {
		m.indexes[table] = make(map[string]core.Index)
	}
	if _, exists := m.indexes[table][idx.Name]; !exists {
		m.indexes[table][idx.Name] = idx
	}
	return nil
}

func (m *Memory) Columns(_ context.Context, table string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ds, ok := m.tables[table]
	if !ok {
		return nil, fmt.Errorf("columns of %s: table does not exist", table)
	}
	return ds.Names(), nil
}

func (m *Memory) CountRows(_ context.Context, table string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ds, ok := m.tables[table]
	if !ok {
		return 0, fmt.Errorf("count %s: table does not exist", table)
	}
	return int64(ds.Len()), nil
}

func (m *Memory) SampleRow(_ context.Context, table string) (*core.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ds, ok := m.tables[table]
	if !ok {
		return nil, fmt.Errorf("sample %s: table does not exist", table)
	}
	if ds.Len() == 0 {
		return nil, nil
	}
	row := &core.Row{Columns: ds.Names()}
	for _, v := range ds.Row(0) {
		if v.IsMissing() {
			row.Values = append(row.Values, nil)
		} else {
			row.Values = append(row.Values, v.String())
		}
	}
	return row, nil
}

// Dataset returns the stored table, or nil.
func (m *Memory) Dataset(table string) *core.Dataset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tables[table]
}

// Indexes returns the index names created on table, sorted.
func (m *Memory) Indexes(table string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for name := range m.indexes[table] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
