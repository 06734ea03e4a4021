// Package mssql implements a Microsoft SQL Server warehouse. Schema
// introspection goes through INFORMATION_SCHEMA and rows are loaded with the
// go-mssqldb bulk copy API inside the load transaction.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"
	log "github.com/sirupsen/logrus"

	"github.com/rlscode/athena-snapshop/internal/ddl"
	"github.com/rlscode/athena-snapshop/internal/storage"
)

// DefaultSchema is used when no schema is configured.
const DefaultSchema = "dbo"

// Warehouse is an MSSQL-backed storage.Warehouse.
type Warehouse struct {
	db     *sql.DB
	schema string
}

var _ storage.Warehouse = (*Warehouse)(nil)

// Open validates dsn, connects and pings.
func Open(ctx context.Context, dsn, schemaName string) (*Warehouse, error) {
	if _, err := msdsn.Parse(dsn); err != nil {
		return nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return newWarehouse(db, schemaName), nil
}

func newWarehouse(db *sql.DB, schemaName string) *Warehouse {
	if strings.TrimSpace(schemaName) == "" {
		schemaName = DefaultSchema
	}
	return &Warehouse{db: db, schema: schemaName}
}

func (w *Warehouse) fqn(table string) string { return w.schema + "." + table }

const columnsSQL = `SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE
FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2
ORDER BY ORDINAL_POSITION`

// Columns lists the columns of table; a missing table yields none.
func (w *Warehouse) Columns(ctx context.Context, table string) ([]storage.ColumnInfo, error) {
	rows, err := w.db.QueryContext(ctx, columnsSQL, w.schema, table)
	if err != nil {
		return nil, fmt.Errorf("mssql columns %s: %w", w.fqn(table), err)
	}
	defer rows.Close()

	var out []storage.ColumnInfo
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("mssql columns scan: %w", err)
		}
		out = append(out, storage.ColumnInfo{
			Name:     name,
			DataType: dataType,
			Nullable: strings.EqualFold(nullable, "YES"),
		})
	}
	return out, rows.Err()
}

// CreateTable creates table if it does not exist.
func (w *Warehouse) CreateTable(ctx context.Context, table string, cols []ddl.ColumnDef) error {
	stmt, err := buildCreateTableSQL(w.fqn(table), cols)
	if err != nil {
		return err
	}
	if _, err := w.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("mssql create %s: %w", w.fqn(table), err)
	}
	log.WithField("table", w.fqn(table)).Infof("mssql: created table with %d columns", len(cols))
	return nil
}

// AddColumn adds col to table.
func (w *Warehouse) AddColumn(ctx context.Context, table string, col ddl.ColumnDef) error {
	stmt, err := buildAddColumnSQL(w.fqn(table), col)
	if err != nil {
		return err
	}
	if _, err := w.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("mssql add column %s.%s: %w", w.fqn(table), col.Name, err)
	}
	log.WithFields(log.Fields{"table": w.fqn(table), "column": col.Name}).Info("mssql: added column")
	return nil
}

// Begin opens the load transaction.
func (w *Warehouse) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &txn{tx: tx, w: w}, nil
}

// Close closes the connection pool.
func (w *Warehouse) Close() { _ = w.db.Close() }

type txn struct {
	tx *sql.Tx
	w  *Warehouse
}

// DeleteSnapshot binds the day as text and casts it server-side so the
// comparison is on the calendar date regardless of client time zone.
func (t *txn) DeleteSnapshot(ctx context.Context, table, dateColumn string, day time.Time) (int64, error) {
	q := fmt.Sprintf("DELETE FROM %s WHERE %s = CAST(@p1 AS date)",
		ddl.QuoteFQN(dialect{}, t.w.fqn(table)), msIdent(dateColumn))
	res, err := t.tx.ExecContext(ctx, q, day.Format(storage.DateLayout))
	if err != nil {
		return 0, fmt.Errorf("delete snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// BulkLoad streams rows through a single bulk copy.
func (t *txn) BulkLoad(ctx context.Context, table string, cols []storage.LoadColumn, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}

	stmt, err := t.tx.PrepareContext(ctx, mssql.CopyIn(ddl.QuoteFQN(dialect{}, t.w.fqn(table)), mssql.BulkOptions{}, names...))
	if err != nil {
		return 0, fmt.Errorf("prepare bulk: %w", err)
	}
	vals := make([]any, len(cols))
	for i, row := range rows {
		if len(row) != len(cols) {
			_ = stmt.Close()
			return 0, fmt.Errorf("bulk row %d: %d values for %d columns", i, len(row), len(cols))
		}
		for j, c := range cols {
			vals[j] = storage.AdaptValue(row[j], c)
		}
		if _, err := stmt.ExecContext(ctx, vals...); err != nil {
			_ = stmt.Close()
			return 0, fmt.Errorf("bulk row %d: %w", i, err)
		}
	}
	res, err := stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("bulk finalize: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (t *txn) Commit(context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *txn) Rollback(context.Context) error { return t.tx.Rollback() }
