package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/rlscode/athena-snapshop/internal/ddl"
)

// fakeWarehouse is a minimal Warehouse implementation for tests.
type fakeWarehouse struct {
	closed bool
}

func (f *fakeWarehouse) Columns(context.Context, string) ([]ColumnInfo, error) { return nil, nil }
func (f *fakeWarehouse) CreateTable(context.Context, string, []ddl.ColumnDef) error {
	return nil
}
func (f *fakeWarehouse) AddColumn(context.Context, string, ddl.ColumnDef) error { return nil }
func (f *fakeWarehouse) Begin(context.Context) (Tx, error)                      { return fakeTx{}, nil }
func (f *fakeWarehouse) Close()                                                 { f.closed = true }

type fakeTx struct{}

func (fakeTx) DeleteSnapshot(context.Context, string, string, time.Time) (int64, error) {
	return 0, nil
}
func (fakeTx) BulkLoad(_ context.Context, _ string, _ []LoadColumn, rows [][]any) (int64, error) {
	return int64(len(rows)), nil
}
func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

// TestRegisterAndNew_Success verifies that registering a backend enables New()
// to return the corresponding warehouse.
func TestRegisterAndNew_Success(t *testing.T) {
	t.Parallel()

	kind := "fake"
	Register(kind, func(ctx context.Context, cfg Config) (Warehouse, error) {
		return &fakeWarehouse{}, nil
	})

	wh, err := New(context.Background(), Config{Kind: kind})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if wh == nil {
		t.Fatalf("New returned nil warehouse")
	}

	found := false
	for _, k := range ListKinds() {
		if k == kind {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("registered kind %q not present in ListKinds: %v", kind, ListKinds())
	}
}

// TestNew_Unsupported verifies that unsupported kinds return a helpful error.
func TestNew_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{Kind: "does-not-exist"})
	if err == nil {
		t.Fatalf("expected error for unsupported kind")
	}
	if got, want := err.Error(), "unsupported storage.kind=does-not-exist"; got != want {
		t.Fatalf("error = %q, want %q", got, want)
	}
}

// TestRegister_Override verifies that re-registering a kind overrides the
// previous factory.
func TestRegister_Override(t *testing.T) {
	t.Parallel()

	kind := "override"
	calls := 0

	Register(kind, func(ctx context.Context, cfg Config) (Warehouse, error) {
		calls++
		return &fakeWarehouse{}, nil
	})
	Register(kind, func(ctx context.Context, cfg Config) (Warehouse, error) {
		calls += 10
		return &fakeWarehouse{}, nil
	})

	if _, err := New(context.Background(), Config{Kind: kind}); err != nil {
		t.Fatalf("New error: %v", err)
	}
	if calls != 10 {
		t.Fatalf("factory call count = %d, want 10", calls)
	}
}

// TestListKinds_Snapshot checks that ListKinds returns a copy.
func TestListKinds_Snapshot(t *testing.T) {
	t.Parallel()

	Register("snap", func(ctx context.Context, cfg Config) (Warehouse, error) { return &fakeWarehouse{}, nil })

	a := ListKinds()
	if len(a) == 0 {
		t.Fatalf("ListKinds empty after registration")
	}
	a[0] = "mutated"

	b := ListKinds()
	if reflect.DeepEqual(a, b) {
		t.Fatalf("ListKinds returned same slice; want snapshot copy")
	}
}

// TestRegister_AllowsErrors shows factories can return errors that bubble up.
func TestRegister_AllowsErrors(t *testing.T) {
	t.Parallel()

	kind := "errkind"
	want := errors.New("boom")

	Register(kind, func(ctx context.Context, cfg Config) (Warehouse, error) {
		return nil, want
	})

	_, err := New(context.Background(), Config{Kind: kind})
	if !errors.Is(err, want) {
		t.Fatalf("want %v, got %v", want, err)
	}
}
