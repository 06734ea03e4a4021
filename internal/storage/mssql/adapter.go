package mssql

import (
	"context"

	"github.com/rlscode/athena-snapshop/internal/storage"
)

// open is a test hook that points to Open by default.
var open = Open

func init() {
	storage.Register("mssql", func(ctx context.Context, cfg storage.Config) (storage.Warehouse, error) {
		w, err := open(ctx, cfg.DSN, cfg.Schema)
		if err != nil {
			return nil, err
		}
		return w, nil
	})
}
