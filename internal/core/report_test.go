package core

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// countFailSink fails CountRows for one table.
type countFailSink struct {
	*fakeSink
	failTable string
}

func (s *countFailSink) CountRows(ctx context.Context, table string) (int64, error) {
	if table == s.failTable {
		return 0, errors.New("connection reset by peer")
	}
	return s.fakeSink.CountRows(ctx, table)
}

func TestSummarize(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry()

	fake := newFakeSink()
	loader := NewLoader(fake, reg, 10, nil)
	if _, err := loader.Load(ctx, &Dataset{Columns: []Column{textCol("planta_nombre", "A", "B"), textCol("rrid_cop", "1", "2")}}, "rrid_antes_066_24"); err != nil {
		t.Fatal(err)
	}
	if _, err := loader.Load(ctx, &Dataset{Columns: []Column{textCol("valor", "1")}}, "tarifas"); err != nil {
		t.Fatal(err)
	}
	if _, err := loader.Load(ctx, &Dataset{Columns: []Column{textCol("planta_nombre")}}, "ddv_reg_vs_ddv_ver"); err != nil {
		t.Fatal(err)
	}

	sink := &countFailSink{fakeSink: fake, failTable: "tarifas"}
	got := Summarize(ctx, sink, reg, nil)

	want := []TableSummary{
		{Table: "rrid_antes_066_24", Exists: true, Rows: 2, Columns: []string{"planta_nombre", "rrid_cop"}},
		{Table: "ddv_verificada", Exists: false},
		{Table: "ddv_reg_vs_ddv_ver", Exists: true, Rows: 0},
		{Table: "tarifas", Exists: true, Error: "connection reset by peer"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Summarize() mismatch (-want +got):\n%s", diff)
	}

	// Logging the summary must cope with every state.
	LogSummary(nil, got)
}
