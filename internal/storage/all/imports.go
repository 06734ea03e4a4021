// Package all wires the built-in warehouse backends into the storage
// registry. Importing it for side effects makes the following kinds available
// to storage.New:
//
//   - "mssql"    (internal/storage/mssql)
//   - "postgres" (internal/storage/postgres)
//   - "sqlite"   (internal/storage/sqlite)
//
// A binary that needs only a subset can import the backend packages directly
// instead.
package all

import (
	_ "github.com/rlscode/athena-snapshop/internal/storage/mssql"
	_ "github.com/rlscode/athena-snapshop/internal/storage/postgres"
	_ "github.com/rlscode/athena-snapshop/internal/storage/sqlite"
)
