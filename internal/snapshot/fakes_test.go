package snapshot

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rlscode/athena-snapshop/internal/athena"
	"github.com/rlscode/athena-snapshop/internal/ddl"
	"github.com/rlscode/athena-snapshop/internal/storage"
)

func str(s string) *string { return &s }

// rows builds raw result rows; "<nil>" becomes SQL NULL.
func rows(rs ...[]string) [][]*string {
	out := make([][]*string, len(rs))
	for i, r := range rs {
		out[i] = make([]*string, len(r))
		for j, c := range r {
			if c != "<nil>" {
				out[i][j] = str(c)
			}
		}
	}
	return out
}

// fakeFetcher answers by query text.
type fakeFetcher struct {
	mu      sync.Mutex
	results map[string][][]*string
	errs    map[string]error
	queries []string
}

func (f *fakeFetcher) Fetch(_ context.Context, query string) (*athena.ResultSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if err := f.errs[query]; err != nil {
		return nil, err
	}
	return athena.NewResultSet(f.results[query]), nil
}

// fakeWarehouse keeps an in-memory catalogue and logs every call.
type fakeWarehouse struct {
	mu      sync.Mutex
	tables  map[string][]storage.ColumnInfo
	calls   []string
	loaded  map[string][][]any
	columns map[string][]storage.LoadColumn

	columnsErr error
	addErr     error
	deleteErr  error
	loadErr    error
	deleted    int64
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{
		tables:  map[string][]storage.ColumnInfo{},
		loaded:  map[string][][]any{},
		columns: map[string][]storage.LoadColumn{},
	}
}

func (w *fakeWarehouse) record(call string) {
	w.mu.Lock()
	w.calls = append(w.calls, call)
	w.mu.Unlock()
}

func (w *fakeWarehouse) Columns(_ context.Context, table string) ([]storage.ColumnInfo, error) {
	w.record("columns " + table)
	if w.columnsErr != nil {
		return nil, w.columnsErr
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]storage.ColumnInfo(nil), w.tables[strings.ToLower(table)]...), nil
}

func (w *fakeWarehouse) CreateTable(_ context.Context, table string, cols []ddl.ColumnDef) error {
	w.record("create " + table)
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, c := range cols {
		w.tables[strings.ToLower(table)] = append(w.tables[strings.ToLower(table)], info(c))
	}
	return nil
}

func (w *fakeWarehouse) AddColumn(_ context.Context, table string, col ddl.ColumnDef) error {
	w.record("add " + table + "." + col.Name)
	if w.addErr != nil {
		return w.addErr
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tables[strings.ToLower(table)] = append(w.tables[strings.ToLower(table)], info(col))
	return nil
}

func (w *fakeWarehouse) Begin(context.Context) (storage.Tx, error) {
	w.record("begin")
	return &fakeTx{w: w}, nil
}

func (w *fakeWarehouse) Close() {}

func (w *fakeWarehouse) ddlCalls() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for _, c := range w.calls {
		if strings.HasPrefix(c, "create ") || strings.HasPrefix(c, "add ") {
			out = append(out, c)
		}
	}
	return out
}

func info(c ddl.ColumnDef) storage.ColumnInfo {
	dt := "nvarchar"
	if c.Type.IsTemporal() {
		dt = "date"
	}
	return storage.ColumnInfo{Name: c.Name, DataType: dt, Nullable: c.Nullable}
}

type fakeTx struct {
	w *fakeWarehouse
}

func (t *fakeTx) DeleteSnapshot(_ context.Context, table, col string, day time.Time) (int64, error) {
	t.w.record("delete " + table + " " + col + " " + day.Format(storage.DateLayout))
	return t.w.deleted, t.w.deleteErr
}

func (t *fakeTx) BulkLoad(_ context.Context, table string, cols []storage.LoadColumn, rows [][]any) (int64, error) {
	t.w.record("load " + table)
	if t.w.loadErr != nil {
		return 0, t.w.loadErr
	}
	t.w.mu.Lock()
	defer t.w.mu.Unlock()
	t.w.columns[table] = cols
	t.w.loaded[table] = append(t.w.loaded[table], rows...)
	return int64(len(rows)), nil
}

func (t *fakeTx) Commit(context.Context) error   { t.w.record("commit"); return nil }
func (t *fakeTx) Rollback(context.Context) error { t.w.record("rollback"); return nil }

// fakeNotifier counts reports.
type fakeNotifier struct {
	mu      sync.Mutex
	reports []Report
	err     error
}

func (n *fakeNotifier) Notify(_ context.Context, r Report) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reports = append(n.reports, r)
	return n.err
}
