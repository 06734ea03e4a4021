// Package sqlite implements a SQLite warehouse using database/sql and the
// pure-Go modernc driver. SQLite has no dedicated bulk-load API like COPY or
// bulk copy, so rows go through one prepared INSERT inside the load
// transaction, which keeps the whole load in a single write.
//
// Dates are stored as ISO-8601 text, so delete-by-day compares strings.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/rlscode/athena-snapshop/internal/ddl"
	"github.com/rlscode/athena-snapshop/internal/schema"
	"github.com/rlscode/athena-snapshop/internal/storage"
)

// DefaultSchema is the main database of the connection.
const DefaultSchema = "main"

// Warehouse is a SQLite-backed storage.Warehouse.
type Warehouse struct {
	db     *sql.DB
	schema string
}

var _ storage.Warehouse = (*Warehouse)(nil)

// Open opens dsn, for example "snapshots.db" or "file:snap.db?_pragma=busy_timeout(5000)".
// The pool is limited to one connection: SQLite serialises writers anyway and
// a single connection keeps in-memory databases coherent.
func Open(ctx context.Context, dsn, schemaName string) (*Warehouse, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if strings.TrimSpace(schemaName) == "" {
		schemaName = DefaultSchema
	}
	return &Warehouse{db: db, schema: schemaName}, nil
}

func (w *Warehouse) fqn(table string) string { return w.schema + "." + table }

// Columns lists the columns of table; a missing table yields none.
func (w *Warehouse) Columns(ctx context.Context, table string) ([]storage.ColumnInfo, error) {
	rows, err := w.db.QueryContext(ctx,
		`SELECT name, type, "notnull" FROM pragma_table_info(?, ?) ORDER BY cid`, table, w.schema)
	if err != nil {
		return nil, fmt.Errorf("sqlite: columns %s: %w", w.fqn(table), err)
	}
	defer rows.Close()

	var out []storage.ColumnInfo
	for rows.Next() {
		var (
			name, typ string
			notNull   int
		)
		if err := rows.Scan(&name, &typ, &notNull); err != nil {
			return nil, fmt.Errorf("sqlite: columns scan: %w", err)
		}
		out = append(out, storage.ColumnInfo{Name: name, DataType: typ, Nullable: notNull == 0})
	}
	return out, rows.Err()
}

// CreateTable creates table if it does not exist.
func (w *Warehouse) CreateTable(ctx context.Context, table string, cols []ddl.ColumnDef) error {
	stmt, err := ddl.BuildCreateTableSQL(dialect{}, ddl.TableDef{FQN: w.fqn(table), Columns: cols, IfNotExists: true})
	if err != nil {
		return fmt.Errorf("sqlite ddl: %w", err)
	}
	if _, err := w.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("sqlite: create %s: %w", w.fqn(table), err)
	}
	log.WithField("table", w.fqn(table)).Infof("sqlite: created table with %d columns", len(cols))
	return nil
}

// AddColumn adds col to table. NOT NULL columns need a constant default in
// SQLite; CURRENT_DATE is not allowed here.
func (w *Warehouse) AddColumn(ctx context.Context, table string, col ddl.ColumnDef) error {
	if !col.Nullable && strings.TrimSpace(col.Default) == "" {
		col.Default = notNullDefault(col.Type)
	}
	stmt, err := ddl.BuildAddColumnSQL(dialect{}, w.fqn(table), "ADD COLUMN", col)
	if err != nil {
		return fmt.Errorf("sqlite ddl: %w", err)
	}
	if _, err := w.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("sqlite: add column %s.%s: %w", w.fqn(table), col.Name, err)
	}
	log.WithFields(log.Fields{"table": w.fqn(table), "column": col.Name}).Info("sqlite: added column")
	return nil
}

// Begin opens the load transaction.
func (w *Warehouse) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	return &txn{tx: tx, w: w}, nil
}

// Close closes the database.
func (w *Warehouse) Close() { _ = w.db.Close() }

type txn struct {
	tx *sql.Tx
	w  *Warehouse
}

func (t *txn) DeleteSnapshot(ctx context.Context, table, dateColumn string, day time.Time) (int64, error) {
	q := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", ddl.QuoteFQN(dialect{}, t.w.fqn(table)), sqIdent(dateColumn))
	res, err := t.tx.ExecContext(ctx, q, day.Format(storage.DateLayout))
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete snapshot: %w", err)
	}
	return res.RowsAffected()
}

func (t *txn) BulkLoad(ctx context.Context, table string, cols []storage.LoadColumn, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(cols) == 0 {
		return 0, fmt.Errorf("sqlite: BulkLoad: columns must not be empty")
	}
	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		names[i] = sqIdent(c.Name)
		marks[i] = "?"
	}
	stmtSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		ddl.QuoteFQN(dialect{}, t.w.fqn(table)), strings.Join(names, ", "), strings.Join(marks, ", "))

	stmt, err := t.tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		return 0, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	vals := make([]any, len(cols))
	for i, row := range rows {
		if len(row) != len(cols) {
			return inserted, fmt.Errorf("sqlite: row %d: %d values for %d columns", i, len(row), len(cols))
		}
		for j, c := range cols {
			vals[j] = sqliteValue(storage.AdaptValue(row[j], c), c.Type)
		}
		if _, err := stmt.ExecContext(ctx, vals...); err != nil {
			return inserted, fmt.Errorf("sqlite: insert row %d: %w", i, err)
		}
		inserted++
	}
	return inserted, nil
}

func (t *txn) Commit(context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func (t *txn) Rollback(context.Context) error { return t.tx.Rollback() }

// sqliteValue renders any remaining time.Time as ISO-8601 text so stored
// dates match the delete predicate regardless of the declared column type.
func sqliteValue(v any, t schema.DestinationType) any {
	if _, ok := v.(time.Time); ok {
		return storage.FormatText(v, t)
	}
	return v
}

// dialect renders SQLite identifiers and types.
type dialect struct{}

func (dialect) QuoteIdent(id string) string { return sqIdent(id) }

// MapType prefers canonical affinities; dates are ISO-8601 TEXT.
func (dialect) MapType(t schema.DestinationType) string {
	switch t.Kind {
	case schema.KindBigInteger, schema.KindInteger, schema.KindBoolean:
		return "INTEGER"
	case schema.KindFloatingPoint:
		return "REAL"
	case schema.KindDecimal:
		return "NUMERIC"
	default:
		return "TEXT"
	}
}

func notNullDefault(t schema.DestinationType) string {
	switch t.Kind {
	case schema.KindDate:
		return "'1900-01-01'"
	case schema.KindDateTime:
		return "'1900-01-01 00:00:00.000'"
	case schema.KindText:
		return "''"
	default:
		return "0"
	}
}

func sqIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }
