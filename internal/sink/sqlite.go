package sink

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/regimport/internal/core"
)

// SQLite stores tables in a local database file. Dates are stored as
// YYYY-MM-DD text and booleans as 0/1.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at path.
// ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One writer; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}
	return &SQLite{db: db, logger: logger}, nil
}

func sqliteType(k core.Kind) string {
	switch k {
	case core.KindBool, core.KindInt:
		return "INTEGER"
	case core.KindDecimal:
		return "REAL"
	default:
		return "TEXT"
	}
}

// TableExists reports whether table exists.
func (s *SQLite) TableExists(ctx context.Context, table string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return n > 0, nil
}

// ReplaceTable drops and recreates table from ds in one transaction.
func (s *SQLite) ReplaceTable(ctx context.Context, table string, ds *core.Dataset) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdentifier(table)); err != nil {
			return fmt.Errorf("drop table: %w", err)
		}
		create := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdentifier(table), columnDefs(ds, sqliteType))
		if _, err := tx.ExecContext(ctx, create); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
		return insertRows(ctx, tx, table, ds)
	})
}

// AppendBatch adds ds to an existing table, adding columns it lacks.
func (s *SQLite) AppendBatch(ctx context.Context, table string, ds *core.Dataset) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := sqliteColumns(ctx, tx, table)
		if err != nil {
			return err
		}
		if len(existing) == 0 {
			return fmt.Errorf("table %s does not exist", table)
		}
		for _, c := range ds.Columns {
			if existing[c.Name] {
				continue
			}
			alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
				quoteIdentifier(table), quoteIdentifier(c.Name), sqliteType(c.Kind))
			if _, err := tx.ExecContext(ctx, alter); err != nil {
				return fmt.Errorf("add column %s: %w", c.Name, err)
			}
		}
		return insertRows(ctx, tx, table, ds)
	})
}

func (s *SQLite) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func sqliteColumns(ctx context.Context, q queryer, table string) (map[string]bool, error) {
	names, err := sqliteColumnNames(ctx, q, table)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out, nil
}

func sqliteColumnNames(ctx context.Context, q queryer, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT name FROM pragma_table_info(?) ORDER BY cid", table)
	if err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", table, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func insertRows(ctx context.Context, tx *sql.Tx, table string, ds *core.Dataset) error {
	if ds.Len() == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ds.Columns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdentifier(table),
		strings.Join(quoteIdentifiers(ds.Names()), ", "),
		placeholders,
	))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(ds.Columns))
	for r := 0; r < ds.Len(); r++ {
		for c, col := range ds.Columns {
			args[c] = toSQLite(col.Values[r])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d: %w", r, err)
		}
	}
	return nil
}

func toSQLite(v core.Value) any {
	switch v.Kind() {
	case core.KindBool:
		if v.BoolValue() {
			return int64(1)
		}
		return int64(0)
	case core.KindInt:
		return v.IntValue()
	case core.KindDecimal:
		return v.DecimalValue()
	case core.KindDate, core.KindText:
		return v.String()
	default:
		return nil
	}
}

// CreateIndexIfAbsent creates idx unless an index with that name exists.
func (s *SQLite) CreateIndexIfAbsent(ctx context.Context, table string, idx core.Index) error {
	if _, err := s.db.ExecContext(ctx, createIndexSQL(table, idx)); err != nil {
		return fmt.Errorf("create index %s: %w", idx.Name, err)
	}
	return nil
}

// CountRows returns the number of rows in table.
func (s *SQLite) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdentifier(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// Columns returns the column names of table in table order.
func (s *SQLite) Columns(ctx context.Context, table string) ([]string, error) {
	names, err := sqliteColumnNames(ctx, s.db, table)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("columns of %s: table does not exist", table)
	}
	return names, nil
}

// SampleRow returns the first row of table, or nil when it is empty.
func (s *SQLite) SampleRow(ctx context.Context, table string) (*core.Row, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+quoteIdentifier(table)+" LIMIT 1")
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", table, err)
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("sample %s: %w", table, err)
		}
		return nil, nil
	}

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("sample %s: %w", table, err)
	}
	return &core.Row{Columns: cols, Values: values}, nil
}

// Ping checks the database handle.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
