package mssql

import (
	"fmt"
	"strings"

	"github.com/rlscode/athena-snapshop/internal/ddl"
	"github.com/rlscode/athena-snapshop/internal/schema"
)

// dialect renders T-SQL identifiers and types.
type dialect struct{}

var _ ddl.Dialect = dialect{}

func (dialect) QuoteIdent(id string) string { return msIdent(id) }

// MapType maps a destination type onto SQL Server. Text becomes
// NVARCHAR(MAX), the widest Unicode string type.
func (dialect) MapType(t schema.DestinationType) string {
	switch t.Kind {
	case schema.KindBigInteger:
		return "BIGINT"
	case schema.KindInteger:
		return "INT"
	case schema.KindDecimal:
		return fmt.Sprintf("DECIMAL(%d, %d)", t.Precision, t.Scale)
	case schema.KindFloatingPoint:
		return "FLOAT"
	case schema.KindBoolean:
		return "BIT"
	case schema.KindDate:
		return "DATE"
	case schema.KindDateTime:
		return "DATETIME2"
	default:
		return "NVARCHAR(MAX)"
	}
}

// notNullDefault is used when a NOT NULL column is added to a table that may
// already hold rows. Dates get a fixed sentinel so existing rows never match
// a real snapshot day.
func notNullDefault(t schema.DestinationType) string {
	switch t.Kind {
	case schema.KindDate:
		return "'19000101'"
	case schema.KindDateTime:
		return "'19000101 00:00:00'"
	case schema.KindText:
		return "N''"
	default:
		return "0"
	}
}

// buildCreateTableSQL wraps CREATE TABLE in an OBJECT_ID guard since T-SQL
// has no CREATE TABLE IF NOT EXISTS:
//
//	IF OBJECT_ID(N'[dbo].[t]', N'U') IS NULL
//	BEGIN
//	  CREATE TABLE [dbo].[t] (...);
//	END;
func buildCreateTableSQL(fqn string, cols []ddl.ColumnDef) (string, error) {
	create, err := ddl.BuildCreateTableSQL(dialect{}, ddl.TableDef{FQN: fqn, Columns: cols})
	if err != nil {
		return "", fmt.Errorf("mssql ddl: %w", err)
	}
	quoted := ddl.QuoteFQN(dialect{}, fqn)
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL\nBEGIN\n  %s\nEND;",
		strings.ReplaceAll(quoted, "'", "''"),
		strings.ReplaceAll(create, "\n", "\n  "),
	), nil
}

// buildAddColumnSQL renders ALTER TABLE ... ADD, supplying a default for NOT
// NULL columns so existing rows stay valid.
func buildAddColumnSQL(fqn string, c ddl.ColumnDef) (string, error) {
	if !c.Nullable && strings.TrimSpace(c.Default) == "" {
		c.Default = notNullDefault(c.Type)
	}
	s, err := ddl.BuildAddColumnSQL(dialect{}, fqn, "ADD", c)
	if err != nil {
		return "", fmt.Errorf("mssql ddl: %w", err)
	}
	return s, nil
}

// msIdent safely quotes a SQL Server identifier using [brackets], escaping ].
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }
