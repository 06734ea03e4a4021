package snapshot

import (
	"context"
	"strings"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/rlscode/athena-snapshop/internal/ddl"
	"github.com/rlscode/athena-snapshop/internal/schema"
	"github.com/rlscode/athena-snapshop/internal/storage"
)

// Reconciler makes a destination table able to hold a result header. It
// creates missing tables and adds missing columns; it never renames, retypes
// or drops anything.
type Reconciler struct {
	wh             storage.Warehouse
	allow          AllowList
	snapshotColumn string
}

// NewReconciler builds a Reconciler. An empty snapshotColumn means
// DefaultSnapshotColumn.
func NewReconciler(wh storage.Warehouse, allow AllowList, snapshotColumn string) *Reconciler {
	if snapshotColumn == "" {
		snapshotColumn = DefaultSnapshotColumn
	}
	return &Reconciler{wh: wh, allow: allow, snapshotColumn: snapshotColumn}
}

// Reconcile brings table in line with header. Tables outside the allow-list
// are rejected before the warehouse is touched.
func (r *Reconciler) Reconcile(ctx context.Context, table string, header []string) error {
	if err := r.allow.Check(table); err != nil {
		return err
	}

	existing, err := r.wh.Columns(ctx, table)
	if err != nil {
		return &SchemaReconcileError{Table: table, Op: "introspect", Err: err}
	}
	wanted := dataColumns(header, r.snapshotColumn)

	if len(existing) == 0 {
		cols := make([]ddl.ColumnDef, 0, len(wanted)+1)
		for _, name := range wanted {
			cols = append(cols, textColumn(name))
		}
		cols = append(cols, r.dateColumn())
		if err := r.wh.CreateTable(ctx, table, cols); err != nil {
			return &SchemaReconcileError{Table: table, Op: "create", Err: err}
		}
		return nil
	}

	have := lo.Map(existing, func(c storage.ColumnInfo, _ int) string {
		return strings.ToLower(c.Name)
	})
	missing := lo.Reject(wanted, func(name string, _ int) bool {
		return lo.Contains(have, strings.ToLower(name))
	})
	for _, name := range missing {
		if err := r.wh.AddColumn(ctx, table, textColumn(name)); err != nil {
			return &SchemaReconcileError{Table: table, Op: "add column " + name, Err: err}
		}
	}
	if !lo.Contains(have, strings.ToLower(r.snapshotColumn)) {
		if err := r.wh.AddColumn(ctx, table, r.dateColumn()); err != nil {
			return &SchemaReconcileError{Table: table, Op: "add column " + r.snapshotColumn, Err: err}
		}
		missing = append(missing, r.snapshotColumn)
	}
	if len(missing) > 0 {
		log.WithFields(log.Fields{"table": table, "columns": missing}).Info("snapshot: added columns")
	}
	return nil
}

func (r *Reconciler) dateColumn() ddl.ColumnDef {
	return ddl.ColumnDef{Name: r.snapshotColumn, Type: schema.Date, Nullable: false}
}

func textColumn(name string) ddl.ColumnDef {
	return ddl.ColumnDef{Name: name, Type: schema.Text, Nullable: true}
}

// dataColumns returns the header names that become data columns: blank
// names, case-insensitive duplicates and the snapshot column itself are
// dropped; order is preserved.
func dataColumns(header []string, snapshotColumn string) []string {
	seen := map[string]struct{}{strings.ToLower(snapshotColumn): {}}
	out := make([]string, 0, len(header))
	for _, h := range header {
		key := strings.ToLower(h)
		if strings.TrimSpace(h) == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, h)
	}
	return out
}
