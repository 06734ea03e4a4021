package sqlite

import (
	"context"

	"github.com/rlscode/athena-snapshop/internal/storage"
)

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Warehouse, error) {
		w, err := Open(ctx, cfg.DSN, cfg.Schema)
		if err != nil {
			return nil, err
		}
		return w, nil
	})
}
