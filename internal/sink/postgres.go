package sink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/regimport/internal/core"
)

// DBTX is the subset of pgx used by the Postgres sink.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error)
}

// Postgres writes datasets with the COPY protocol.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres creates a sink over pool.
func NewPostgres(pool *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{pool: pool, logger: logger}
}

// pgType maps a storage kind to its column type.
func pgType(k core.Kind) string {
	switch k {
	case core.KindBool:
		return "BOOLEAN"
	case core.KindInt:
		return "BIGINT"
	case core.KindDecimal:
		return "NUMERIC"
	case core.KindDate:
		return "DATE"
	default:
		return "TEXT"
	}
}

// TableExists reports whether table exists in the current schema.
func (p *Postgres) TableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)`, table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return exists, nil
}

// ReplaceTable drops and recreates table from ds in one transaction.
func (p *Postgres) ReplaceTable(ctx context.Context, table string, ds *core.Dataset) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+quoteIdentifier(table)); err != nil {
			return fmt.Errorf("drop table: %w", err)
		}
		create := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdentifier(table), columnDefs(ds, pgType))
		if _, err := tx.Exec(ctx, create); err != nil {
			return fmt.Errorf("create table: %w", err)
		}

		targets := make(map[string]string, len(ds.Columns))
		for _, c := range ds.Columns {
			targets[c.Name] = pgType(c.Kind)
		}
		return copyRows(ctx, tx, table, ds, targets)
	})
}

// AppendBatch adds ds to an existing table. Columns the table lacks are
// added; columns whose stored type cannot hold the batch are widened.
func (p *Postgres) AppendBatch(ctx context.Context, table string, ds *core.Dataset) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		existing, err := columnTypes(ctx, tx, table)
		if err != nil {
			return err
		}
		if len(existing) == 0 {
			return fmt.Errorf("table %s does not exist", table)
		}

		targets := make(map[string]string, len(ds.Columns))
		for _, c := range ds.Columns {
			want := pgType(c.Kind)
			have, ok := existing[c.Name]
			switch {
			case !ok:
				alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s",
					quoteIdentifier(table), quoteIdentifier(c.Name), want)
				if _, err := tx.Exec(ctx, alter); err != nil {
					return fmt.Errorf("add column %s: %w", c.Name, err)
				}
				targets[c.Name] = want
			case have == want, have == "NUMERIC" && want == "BIGINT", have == "TEXT":
				targets[c.Name] = have
			default:
				widened := "TEXT"
				if have == "BIGINT" && want == "NUMERIC" {
					widened = "NUMERIC"
				}
				alter := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s",
					quoteIdentifier(table), quoteIdentifier(c.Name), widened, quoteIdentifier(c.Name), widened)
				if _, err := tx.Exec(ctx, alter); err != nil {
					return fmt.Errorf("widen column %s: %w", c.Name, err)
				}
				p.logger.Warn("column type widened", "table", table, "column", c.Name, "from", have, "to", widened)
				targets[c.Name] = widened
			}
		}
		return copyRows(ctx, tx, table, ds, targets)
	})
}

// columnTypes returns column -> type for table, using the type names pgType
// produces.
func columnTypes(ctx context.Context, db DBTX, table string) (map[string]string, error) {
	rows, err := db.Query(ctx, `
		SELECT column_name, data_type FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1`, table)
	if err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		switch dataType {
		case "boolean":
			out[name] = "BOOLEAN"
		case "bigint", "integer", "smallint":
			out[name] = "BIGINT"
		case "numeric", "double precision", "real":
			out[name] = "NUMERIC"
		case "date":
			out[name] = "DATE"
		default:
			out[name] = "TEXT"
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// Columns returns the column names of table in table order.
func (p *Postgres) Columns(ctx context.Context, table string) ([]string, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", table, err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", table, err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("columns of %s: table does not exist", table)
	}
	return names, nil
}

func copyRows(ctx context.Context, db DBTX, table string, ds *core.Dataset, targets map[string]string) error {
	if ds.Len() == 0 {
		return nil
	}

	names := ds.Names()
	n, err := db.CopyFrom(ctx, pgx.Identifier{table}, names, &datasetRows{ds: ds, targets: targets})
	if err != nil {
		return fmt.Errorf("copy rows: %w", err)
	}
	if n != int64(ds.Len()) {
		return fmt.Errorf("copy rows: wrote %d of %d", n, ds.Len())
	}
	return nil
}

// datasetRows feeds a dataset to CopyFrom row by row.
type datasetRows struct {
	ds      *core.Dataset
	targets map[string]string
	row     int
	started bool
}

func (r *datasetRows) Next() bool {
	if r.started {
		r.row++
	}
	r.started = true
	return r.row < r.ds.Len()
}

func (r *datasetRows) Values() ([]any, error) {
	out := make([]any, len(r.ds.Columns))
	for i, c := range r.ds.Columns {
		out[i] = toPg(c.Values[r.row], r.targets[c.Name])
	}
	return out, nil
}

func (r *datasetRows) Err() error { return nil }

// toPg converts a cell to the pgtype value for a column of type target.
// Missing cells become NULL.
func toPg(v core.Value, target string) any {
	if target == "TEXT" {
		if v.IsMissing() {
			return pgtype.Text{}
		}
		return pgtype.Text{String: v.String(), Valid: true}
	}

	switch v.Kind() {
	case core.KindBool:
		return pgtype.Bool{Bool: v.BoolValue(), Valid: true}
	case core.KindInt:
		return pgtype.Int8{Int64: v.IntValue(), Valid: true}
	case core.KindDecimal:
		return pgtype.Float8{Float64: v.DecimalValue(), Valid: true}
	case core.KindDate:
		return pgtype.Date{Time: v.TimeValue(), Valid: true}
	case core.KindText:
		return pgtype.Text{String: v.TextValue(), Valid: true}
	default:
		return nil
	}
}

// CreateIndexIfAbsent creates idx unless an index with that name exists.
func (p *Postgres) CreateIndexIfAbsent(ctx context.Context, table string, idx core.Index) error {
	if _, err := p.pool.Exec(ctx, createIndexSQL(table, idx)); err != nil {
		return fmt.Errorf("create index %s: %w", idx.Name, err)
	}
	return nil
}

// CountRows returns the number of rows in table.
func (p *Postgres) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+quoteIdentifier(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// SampleRow returns the first row of table, or nil when it is empty.
func (p *Postgres) SampleRow(ctx context.Context, table string) (*core.Row, error) {
	rows, err := p.pool.Query(ctx, "SELECT * FROM "+quoteIdentifier(table)+" LIMIT 1")
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", table, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("sample %s: %w", table, err)
		}
		return nil, nil
	}

	values, err := rows.Values()
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", table, err)
	}
	row := &core.Row{Values: values}
	for _, fd := range rows.FieldDescriptions() {
		row.Columns = append(row.Columns, fd.Name)
	}
	return row, nil
}

// Ping checks connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
