// Package ddl defines a small, backend-agnostic model for the DDL the
// snapshot loader issues (CREATE TABLE and ADD COLUMN) and renders it through
// a Dialect.
//
// The package never decides which columns exist; it only renders. Defaults
// are emitted as raw SQL and the caller is responsible for their dialect
// correctness.
package ddl

import (
	"fmt"
	"strings"
)

// QuoteFQN quotes each dotted segment of fqn. Empty segments are dropped.
//
//	dbo.prebills_history -> [dbo].[prebills_history]   (mssql)
//	prebills_history     -> "prebills_history"          (postgres)
func QuoteFQN(d Dialect, fqn string) string {
	parts := strings.Split(fqn, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, d.QuoteIdent(p))
	}
	return strings.Join(out, ".")
}

// ColumnSQL renders one column as:
//
//	<quoted name> <type> [NOT NULL] [DEFAULT <Default>]
func ColumnSQL(d Dialect, c ColumnDef) (string, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return "", fmt.Errorf("ddl: column with empty name")
	}
	typ := strings.TrimSpace(c.SQLType)
	if typ == "" {
		typ = d.MapType(c.Type)
	}
	if typ == "" {
		return "", fmt.Errorf("ddl: column %s missing SQL type", name)
	}

	var sb strings.Builder
	sb.WriteString(d.QuoteIdent(name))
	sb.WriteByte(' ')
	sb.WriteString(typ)
	if !c.Nullable {
		sb.WriteString(" NOT NULL")
	}
	if def := strings.TrimSpace(c.Default); def != "" {
		sb.WriteString(" DEFAULT ")
		sb.WriteString(def)
	}
	return sb.String(), nil
}

// BuildCreateTableSQL renders a CREATE TABLE statement:
//
//	CREATE TABLE [IF NOT EXISTS] <fqn> (
//	  <col1-def>,
//	  <col2-def>
//	);
//
// Dialects without IF NOT EXISTS (SQL Server) wrap the result in their own
// guard and leave IfNotExists unset.
func BuildCreateTableSQL(d Dialect, t TableDef) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: at least one column is required")
	}

	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		s, err := ColumnSQL(d, c)
		if err != nil {
			return "", fmt.Errorf("%w in table %s", err, fqn)
		}
		cols = append(cols, s)
	}

	create := "CREATE TABLE "
	if t.IfNotExists {
		create += "IF NOT EXISTS "
	}
	return fmt.Sprintf("%s%s (\n  %s\n);", create, QuoteFQN(d, fqn), strings.Join(cols, ",\n  ")), nil
}

// BuildAddColumnSQL renders ALTER TABLE <fqn> <keyword> <col-def>. SQL Server
// uses "ADD"; Postgres and SQLite use "ADD COLUMN".
func BuildAddColumnSQL(d Dialect, fqn, keyword string, c ColumnDef) (string, error) {
	fqn = strings.TrimSpace(fqn)
	if fqn == "" {
		return "", fmt.Errorf("ddl: table FQN must not be empty")
	}
	col, err := ColumnSQL(d, c)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s %s %s;", QuoteFQN(d, fqn), keyword, col), nil
}
