package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Config selects and configures a backend.
type Config struct {
	Kind   string // "mssql", "postgres", "sqlite"
	DSN    string
	Schema string // empty means the backend default (dbo, public, main)
}

// Factory opens a Warehouse for cfg.
type Factory func(ctx context.Context, cfg Config) (Warehouse, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. Registering the same kind
// twice replaces the earlier factory.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// New opens the Warehouse registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Warehouse, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// ListKinds returns the registered kinds, sorted. The slice is a copy.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := lo.Keys(factories)
	sort.Strings(out)
	return out
}
