// Package postgres implements a Postgres warehouse using pgx v5. Rows are
// loaded with COPY inside the load transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/rlscode/athena-snapshop/internal/ddl"
	"github.com/rlscode/athena-snapshop/internal/schema"
	"github.com/rlscode/athena-snapshop/internal/storage"
)

// DefaultSchema is used when no schema is configured.
const DefaultSchema = "public"

// dbtx is the part of pgx.Tx the load path uses.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Warehouse is a Postgres-backed storage.Warehouse.
type Warehouse struct {
	pool   *pgxpool.Pool
	schema string
}

var _ storage.Warehouse = (*Warehouse)(nil)

// Open creates a pool for dsn and pings it.
func Open(ctx context.Context, dsn, schemaName string) (*Warehouse, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if strings.TrimSpace(schemaName) == "" {
		schemaName = DefaultSchema
	}
	return &Warehouse{pool: pool, schema: schemaName}, nil
}

func (w *Warehouse) fqn(table string) string { return w.schema + "." + table }

const columnsSQL = `SELECT column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`

// Columns lists the columns of table; a missing table yields none.
func (w *Warehouse) Columns(ctx context.Context, table string) ([]storage.ColumnInfo, error) {
	rows, err := w.pool.Query(ctx, columnsSQL, w.schema, table)
	if err != nil {
		return nil, fmt.Errorf("postgres columns %s: %w", w.fqn(table), err)
	}
	defer rows.Close()

	var out []storage.ColumnInfo
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("postgres columns scan: %w", err)
		}
		out = append(out, storage.ColumnInfo{Name: name, DataType: dataType, Nullable: nullable == "YES"})
	}
	return out, rows.Err()
}

// CreateTable creates table if it does not exist.
func (w *Warehouse) CreateTable(ctx context.Context, table string, cols []ddl.ColumnDef) error {
	stmt, err := buildCreateTableSQL(w.fqn(table), cols)
	if err != nil {
		return err
	}
	if _, err := w.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("postgres create %s: %w", w.fqn(table), pgDetail(err))
	}
	log.WithField("table", w.fqn(table)).Infof("postgres: created table with %d columns", len(cols))
	return nil
}

// AddColumn adds col to table.
func (w *Warehouse) AddColumn(ctx context.Context, table string, col ddl.ColumnDef) error {
	stmt, err := buildAddColumnSQL(w.fqn(table), col)
	if err != nil {
		return err
	}
	if _, err := w.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("postgres add column %s.%s: %w", w.fqn(table), col.Name, pgDetail(err))
	}
	log.WithFields(log.Fields{"table": w.fqn(table), "column": col.Name}).Info("postgres: added column")
	return nil
}

// Begin opens the load transaction.
func (w *Warehouse) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &txn{tx: tx, schema: w.schema}, nil
}

// Close closes the pool.
func (w *Warehouse) Close() { w.pool.Close() }

type txn struct {
	tx     dbtx
	schema string
}

func (t *txn) DeleteSnapshot(ctx context.Context, table, dateColumn string, day time.Time) (int64, error) {
	q := buildDeleteSQL(t.schema+"."+table, dateColumn)
	tag, err := t.tx.Exec(ctx, q, day.Format(storage.DateLayout))
	if err != nil {
		return 0, fmt.Errorf("delete snapshot: %w", pgDetail(err))
	}
	return tag.RowsAffected(), nil
}

// BulkLoad copies rows with a single COPY.
func (t *txn) BulkLoad(ctx context.Context, table string, cols []storage.LoadColumn, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	src := pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		if len(rows[i]) != len(cols) {
			return nil, fmt.Errorf("row %d: %d values for %d columns", i, len(rows[i]), len(cols))
		}
		vals := make([]any, len(cols))
		for j, c := range cols {
			vals[j] = storage.AdaptValue(rows[i][j], c)
		}
		return vals, nil
	})
	n, err := t.tx.CopyFrom(ctx, pgx.Identifier{t.schema, table}, names, src)
	if err != nil {
		return 0, fmt.Errorf("copy into %s.%s: %w", t.schema, table, pgDetail(err))
	}
	return n, nil
}

func (t *txn) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *txn) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// pgDetail folds the server's detail and SQLSTATE into the message.
func pgDetail(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Detail != "" {
		return fmt.Errorf("%w (%s; %s)", err, pgErr.Detail, pgErr.SQLState())
	}
	return err
}

// dialect renders Postgres identifiers and types.
type dialect struct{}

func (dialect) QuoteIdent(id string) string { return pgIdent(id) }

func (dialect) MapType(t schema.DestinationType) string {
	switch t.Kind {
	case schema.KindBigInteger:
		return "BIGINT"
	case schema.KindInteger:
		return "INTEGER"
	case schema.KindDecimal:
		return fmt.Sprintf("NUMERIC(%d, %d)", t.Precision, t.Scale)
	case schema.KindFloatingPoint:
		return "DOUBLE PRECISION"
	case schema.KindBoolean:
		return "BOOLEAN"
	case schema.KindDate:
		return "DATE"
	case schema.KindDateTime:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

// notNullDefault fills existing rows when a NOT NULL column is added. Dates
// use a sentinel far before any snapshot day.
func notNullDefault(t schema.DestinationType) string {
	switch t.Kind {
	case schema.KindDate:
		return "DATE '1900-01-01'"
	case schema.KindDateTime:
		return "TIMESTAMP '1900-01-01 00:00:00'"
	case schema.KindText:
		return "''"
	case schema.KindBoolean:
		return "FALSE"
	default:
		return "0"
	}
}

func buildCreateTableSQL(fqn string, cols []ddl.ColumnDef) (string, error) {
	s, err := ddl.BuildCreateTableSQL(dialect{}, ddl.TableDef{FQN: fqn, Columns: cols, IfNotExists: true})
	if err != nil {
		return "", fmt.Errorf("postgres ddl: %w", err)
	}
	return s, nil
}

func buildAddColumnSQL(fqn string, c ddl.ColumnDef) (string, error) {
	if !c.Nullable && strings.TrimSpace(c.Default) == "" {
		c.Default = notNullDefault(c.Type)
	}
	s, err := ddl.BuildAddColumnSQL(dialect{}, fqn, "ADD COLUMN", c)
	if err != nil {
		return "", fmt.Errorf("postgres ddl: %w", err)
	}
	return s, nil
}

func buildDeleteSQL(fqn, dateColumn string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = $1::date", ddl.QuoteFQN(dialect{}, fqn), pgIdent(dateColumn))
}

// pgIdent quotes an identifier with double quotes, doubling embedded quotes.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }
