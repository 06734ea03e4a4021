package ddl

import "github.com/rlscode/athena-snapshop/internal/schema"

// ColumnDef describes a single column in a table definition.
//
// Fields:
//   - Name: logical column name (unquoted; quoting happens at render time)
//   - Type: destination type; rendered through Dialect.MapType
//   - SQLType: explicit SQL type that overrides Type when non-empty
//   - Nullable: whether NULL is allowed
//   - Default: raw default expression (e.g., CURRENT_DATE)
type ColumnDef struct {
	Name     string
	Type     schema.DestinationType
	SQLType  string
	Nullable bool
	Default  string
}

// TableDef holds the table name and an ordered list of columns. FQN may be
// dotted ("dbo.prebills_history"); each segment is quoted separately.
type TableDef struct {
	FQN         string
	Columns     []ColumnDef
	IfNotExists bool
}

// Dialect supplies the backend-specific parts of rendering.
type Dialect interface {
	// QuoteIdent quotes one identifier segment.
	QuoteIdent(id string) string
	// MapType returns the column type for t.
	MapType(t schema.DestinationType) string
}
