package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// testRegistry is a reduced registry covering the shapes the engine handles.
func testRegistry() *Registry {
	reg := NewRegistry(NewVocabulary(map[string]string{
		"Costo RRID (COP)":         "rrid_cop",
		"RRID sin Anillos (COP)":   "rrid_sin_anillos_cop",
		"Planta":                   "planta_nombre",
		"Nombre Agente":            "agente_nombre",
		"Fecha":                    "fecha_dia",
		"DDVV(kWh)":                "kwh_verificado",
		"DDV Registrada (kWh)":     "kwh_registrado",
		"Código SIC":               "codigo_sic",
		"Tipo Generación":          "tipo_generacion",
		"Agente Representante":     "agente_nombre",
		"KWH_DIA_TOTAL REGISTRADO": "kwh_registrado",
	}))
	reg.Register(SchemaEntry{
		ID:        "rrid_antes_066_24",
		Keywords:  []string{"rrid_antes", "rrid antes", "antes 066-24"},
		Required:  []string{"planta_nombre", "rrid_cop", "rrid_sin_anillos_cop"},
		Numeric:   []string{"rrid_cop", "rrid_sin_anillos_cop"},
		Precision: 0,
		Indexes: []Index{
			{Name: "idx_rrid_antes_066_24_planta_nombre", Columns: []string{"planta_nombre"}},
			{Name: "idx_rrid_antes_066_24_rrid_cop", Columns: []string{"rrid_cop"}},
		},
	})
	reg.Register(SchemaEntry{
		ID:        "ddv_verificada",
		Keywords:  []string{"ddv verificada"},
		Required:  []string{"planta_nombre", "agente_nombre", "fecha_dia", "kwh_verificado"},
		Numeric:   []string{"kwh_verificado"},
		Dates:     []string{"fecha_dia", "fecha_inicial"},
		Precision: 0,
		Indexes: []Index{
			{Name: "idx_ddv_verificada_fecha_dia", Columns: []string{"fecha_dia"}},
		},
	})
	reg.Register(SchemaEntry{
		ID:        "ddv_reg_vs_ddv_ver",
		Keywords:  []string{"ddv reg", "ddv ver"},
		Required:  []string{"planta_nombre", "kwh_registrado"},
		Numeric:   []string{"kwh_registrado", "kwh_verificado"},
		Precision: 0,
	})
	reg.Register(SchemaEntry{
		ID:        "tarifas",
		Keywords:  []string{"tarifa"},
		Numeric:   []string{"valor"},
		Precision: 2,
	})
	reg.SetNonNegative([]string{"kwh_registrado", "kwh_verificado", "rrid_cop", "rrid_sin_anillos_cop"})
	reg.AddComposite(CompositeIndex{
		Table: "ddv_verificada",
		Index: Index{Name: "idx_ddvv_plant_agent_date", Columns: []string{"planta_nombre", "agente_nombre", "fecha_dia"}},
	})
	return reg
}

// textCol builds a raw column; "" cells become missing.
func textCol(name string, cells ...string) Column {
	values := make([]Value, len(cells))
	for i, c := range cells {
		if c == "" {
			values[i] = Missing()
		} else {
			values[i] = Text(c)
		}
	}
	return Column{Name: name, Kind: KindText, Values: values}
}

func rawSheet(label string, cols ...Column) *RawSheet {
	return &RawSheet{Label: label, Columns: cols}
}

// ----------------------------------------------------------------------------
// fakeSink
// ----------------------------------------------------------------------------

type sinkCall struct {
	Op    string
	Table string
	Rows  int
	First string // first cell of the first column, for order checks
}

type fakeSink struct {
	mu      sync.Mutex
	tables  map[string]*Dataset
	indexes map[string][]string
	calls   []sinkCall

	failReplace map[string]error
	failAppend  map[string]error
	failIndex   map[string]error
	panicOn     string
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		tables:      make(map[string]*Dataset),
		indexes:     make(map[string][]string),
		failReplace: make(map[string]error),
		failAppend:  make(map[string]error),
		failIndex:   make(map[string]error),
	}
}

func firstCell(ds *Dataset) string {
	if len(ds.Columns) == 0 || ds.Len() == 0 {
		return ""
	}
	return ds.Columns[0].Values[0].String()
}

func (s *fakeSink) TableExists(_ context.Context, table string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tables[table]
	return ok, nil
}

func (s *fakeSink) ReplaceTable(_ context.Context, table string, ds *Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if table == s.panicOn {
		panic("sink exploded")
	}
	s.calls = append(s.calls, sinkCall{Op: "replace", Table: table, Rows: ds.Len(), First: firstCell(ds)})
	if err := s.failReplace[table]; err != nil {
		return err
	}
	cp := &Dataset{Columns: make([]Column, len(ds.Columns))}
	for i, c := range ds.Columns {
		cp.Columns[i] = Column{Name: c.Name, Kind: c.Kind, Values: append([]Value(nil), c.Values...)}
	}
	s.tables[table] = cp
	return nil
}

func (s *fakeSink) AppendBatch(_ context.Context, table string, ds *Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sinkCall{Op: "append", Table: table, Rows: ds.Len(), First: firstCell(ds)})
	if err := s.failAppend[table]; err != nil {
		return err
	}
	dst, ok := s.tables[table]
	if !ok {
		return fmt.Errorf("table %s does not exist", table)
	}
	for i := range dst.Columns {
		src := ds.Column(dst.Columns[i].Name)
		if src == nil {
			for j := 0; j < ds.Len(); j++ {
				dst.Columns[i].Values = append(dst.Columns[i].Values, Missing())
			}
			continue
		}
		dst.Columns[i].Values = append(dst.Columns[i].Values, src.Values...)
	}
	return nil
}

func (s *fakeSink) CreateIndexIfAbsent(_ context.Context, table string, idx Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sinkCall{Op: "index", Table: table})
	if err := s.failIndex[idx.Name]; err != nil {
		return err
	}
	for _, existing := range s.indexes[table] {
		if existing == idx.Name {
			return nil
		}
	}
	s.indexes[table] = append(s.indexes[table], idx.Name)
	return nil
}

func (s *fakeSink) Columns(_ context.Context, table string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.tables[table]
	if !ok {
		return nil, errors.New("no such table")
	}
	return ds.Names(), nil
}

func (s *fakeSink) CountRows(_ context.Context, table string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.tables[table]
	if !ok {
		return 0, errors.New("no such table")
	}
	return int64(ds.Len()), nil
}

func (s *fakeSink) SampleRow(_ context.Context, table string) (*Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.tables[table]
	if !ok {
		return nil, errors.New("no such table")
	}
	if ds.Len() == 0 {
		return nil, nil
	}
	row := &Row{Columns: ds.Names()}
	for _, v := range ds.Row(0) {
		row.Values = append(row.Values, v.String())
	}
	return row, nil
}

func (s *fakeSink) ops(table string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, c := range s.calls {
		if c.Table == table && c.Op != "index" {
			out = append(out, c.Op)
		}
	}
	return out
}

// ----------------------------------------------------------------------------
// fakeSource
// ----------------------------------------------------------------------------

type fakeSource struct {
	order   []string
	sheets  map[string]*RawSheet
	errs    map[string]error
	listErr error
	read    []string
	closed  bool
}

func newFakeSource(sheets ...*RawSheet) *fakeSource {
	src := &fakeSource{sheets: make(map[string]*RawSheet), errs: make(map[string]error)}
	for _, s := range sheets {
		src.order = append(src.order, s.Label)
		src.sheets[s.Label] = s
	}
	return src
}

func (f *fakeSource) ListSheets(context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]string(nil), f.order...), nil
}

func (f *fakeSource) ReadSheet(_ context.Context, label string) (*RawSheet, error) {
	f.read = append(f.read, label)
	if err := f.errs[label]; err != nil {
		return nil, err
	}
	s, ok := f.sheets[label]
	if !ok {
		return nil, fmt.Errorf("sheet not found: %s", label)
	}
	return s, nil
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}
