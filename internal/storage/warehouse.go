// Package storage defines the warehouse abstraction the snapshot loader
// writes through and a small registry that lets backends (mssql, postgres,
// sqlite) plug themselves in at init time.
//
// Callers stay backend-agnostic: they open a Warehouse with New and a
// storage.Config, then use only the interfaces below.
package storage

import (
	"context"
	"time"

	"github.com/rlscode/athena-snapshop/internal/ddl"
	"github.com/rlscode/athena-snapshop/internal/schema"
)

// ColumnInfo is one column as reported by the warehouse catalogue.
// DataType is the backend's own spelling (e.g. "nvarchar", "date", "TEXT").
type ColumnInfo struct {
	Name     string
	DataType string
	Nullable bool
}

// LoadColumn is one target column of a bulk load. Type is the job's declared
// destination type and drives coercion; DataType is what the table actually
// holds and drives the final value adaptation.
type LoadColumn struct {
	Name     string
	Type     schema.DestinationType
	DataType string
	Nullable bool
}

// Warehouse is the relational destination of snapshots.
//
// Table names passed in are unqualified; backends qualify them with their
// configured schema.
type Warehouse interface {
	// Columns lists the columns of table in ordinal order. A missing table
	// yields an empty slice and no error.
	Columns(ctx context.Context, table string) ([]ColumnInfo, error)

	// CreateTable creates table with cols if it does not exist yet.
	CreateTable(ctx context.Context, table string, cols []ddl.ColumnDef) error

	// AddColumn adds one column to an existing table.
	AddColumn(ctx context.Context, table string, col ddl.ColumnDef) error

	// Begin starts the transaction that scopes one replace-by-day load.
	Begin(ctx context.Context) (Tx, error)

	Close()
}

// Tx is a warehouse transaction.
type Tx interface {
	// DeleteSnapshot removes every row of table whose dateColumn equals day
	// and returns how many were removed.
	DeleteSnapshot(ctx context.Context, table, dateColumn string, day time.Time) (int64, error)

	// BulkLoad inserts rows in one set-oriented operation. Each row holds
	// one value per column, in order.
	BulkLoad(ctx context.Context, table string, cols []LoadColumn, rows [][]any) (int64, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
