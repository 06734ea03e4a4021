package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlscode/athena-snapshop/internal/schema"
	"github.com/rlscode/athena-snapshop/internal/storage"
	"github.com/rlscode/athena-snapshop/internal/storage/sqlite"
)

var day = time.Date(2024, 7, 26, 0, 0, 0, 0, time.UTC)

func amountsJob() Job {
	return Job{
		Name:        "Amounts",
		Query:       "SELECT id, CAST(amount AS DECIMAL(10,2)) AS amount FROM t",
		Destination: "amounts_history",
		ColumnTypes: map[string]schema.DestinationType{
			"id":     schema.BigInteger,
			"amount": schema.Decimal(10, 2),
		},
	}
}

// TestLoadOn_SQLiteRerunIsIdempotent loads the same day twice against a real
// SQLite file; the second run replaces the first.
func TestLoadOn_SQLiteRerunIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "wh.db")
	wh, err := sqlite.Open(ctx, path, "")
	require.NoError(t, err)
	t.Cleanup(wh.Close)

	job := amountsJob()
	f := &fakeFetcher{results: map[string][][]*string{
		job.Query: rows([]string{"id", "amount"}, []string{"1", "10.50"}),
	}}
	l := NewLoader(f, wh, NewAllowList([]Job{job}), LoaderOptions{Location: time.UTC})

	sum, err := l.LoadOn(ctx, job, day)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.RowsInserted)
	assert.Equal(t, int64(0), sum.RowsDeleted)
	assert.NotZero(t, sum.Fingerprint)

	f.results[job.Query] = rows([]string{"id", "amount"}, []string{"1", "99.00"})
	sum, err = l.LoadOn(ctx, job, day)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.RowsInserted)
	assert.Equal(t, int64(1), sum.RowsDeleted)

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var (
		n              int
		id, amount, sd string
	)
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM amounts_history`).Scan(&n))
	assert.Equal(t, 1, n)
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT id, amount, snapshot_date FROM amounts_history`).Scan(&id, &amount, &sd))
	assert.Equal(t, "1", id)
	assert.Equal(t, "99.00", amount)
	assert.Equal(t, "2024-07-26", sd)
}

// TestLoadOn_SQLiteFloatRerun covers the {id: BigInteger, amount: FloatingPoint}
// job against header-created text columns: a same-day rerun leaves one row.
func TestLoadOn_SQLiteFloatRerun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "wh.db")
	wh, err := sqlite.Open(ctx, path, "")
	require.NoError(t, err)
	t.Cleanup(wh.Close)

	job := Job{
		Name:        "Amounts",
		Query:       "SELECT id, amount FROM t",
		Destination: "amounts_history",
		ColumnTypes: map[string]schema.DestinationType{
			"id":     schema.BigInteger,
			"amount": schema.FloatingPoint,
		},
	}
	f := &fakeFetcher{results: map[string][][]*string{
		job.Query: rows([]string{"id", "amount"}, []string{"7", "10.5"}),
	}}
	l := NewLoader(f, wh, NewAllowList([]Job{job}), LoaderOptions{Location: time.UTC})

	_, err = l.LoadOn(ctx, job, day)
	require.NoError(t, err)
	f.results[job.Query] = rows([]string{"id", "amount"}, []string{"7", "99"})
	sum, err := l.LoadOn(ctx, job, day)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.RowsDeleted)

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var (
		n      int
		id     int64
		amount float64
		sd     string
	)
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM amounts_history`).Scan(&n))
	assert.Equal(t, 1, n)
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT id, amount, snapshot_date FROM amounts_history`).Scan(&id, &amount, &sd))
	assert.Equal(t, int64(7), id)
	assert.Equal(t, 99.0, amount)
	assert.Equal(t, "2024-07-26", sd)
}

// TestLoadOn_SQLiteKeepsLegacyRows loads into a populated table that has no
// snapshot column yet. The added column must not match the day being
// replaced, so the existing rows survive the first run.
func TestLoadOn_SQLiteKeepsLegacyRows(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "wh.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.ExecContext(ctx, `CREATE TABLE amounts_history (id TEXT, amount TEXT)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO amounts_history (id, amount) VALUES ('1', '5.00'), ('2', '6.00')`)
	require.NoError(t, err)

	wh, err := sqlite.Open(ctx, path, "")
	require.NoError(t, err)
	t.Cleanup(wh.Close)

	job := amountsJob()
	f := &fakeFetcher{results: map[string][][]*string{
		job.Query: rows([]string{"id", "amount"}, []string{"3", "7.00"}),
	}}
	l := NewLoader(f, wh, NewAllowList([]Job{job}), LoaderOptions{Location: time.UTC})

	sum, err := l.LoadOn(ctx, job, day)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum.RowsDeleted)
	assert.Equal(t, int64(1), sum.RowsInserted)

	var total, legacy int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM amounts_history`).Scan(&total))
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM amounts_history WHERE snapshot_date <> '2024-07-26'`).Scan(&legacy))
	assert.Equal(t, 3, total)
	assert.Equal(t, 2, legacy)
}

// TestLoadOn_LogsFingerprint checks the "loaded" line carries the result
// fingerprint. It swaps the global logger's hooks, so it does not run in
// parallel.
func TestLoadOn_LogsFingerprint(t *testing.T) {
	std := log.StandardLogger()
	prev := std.ReplaceHooks(make(log.LevelHooks))
	t.Cleanup(func() { std.ReplaceHooks(prev) })
	hook := logtest.NewLocal(std)

	job := amountsJob()
	wh := newFakeWarehouse()
	f := &fakeFetcher{results: map[string][][]*string{job.Query: rows([]string{"id"}, []string{"1"})}}
	l := NewLoader(f, wh, NewAllowList([]Job{job}), LoaderOptions{})

	sum, err := l.LoadOn(context.Background(), job, day)
	require.NoError(t, err)
	require.NotZero(t, sum.Fingerprint)
	want := fmt.Sprintf("%016x", sum.Fingerprint)
	assert.Contains(t, sum.String(), "fingerprint "+want)

	var found bool
	for _, e := range hook.AllEntries() {
		if e.Message == "loaded" {
			found = true
			assert.Equal(t, want, e.Data["fingerprint"])
		}
	}
	assert.True(t, found, "no loaded entry")
}

func TestLoadOn_EmptyResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  [][]*string
	}{
		{name: "no rows", raw: nil},
		{name: "header only", raw: rows([]string{"id", "amount"})},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			job := amountsJob()
			wh := newFakeWarehouse()
			f := &fakeFetcher{results: map[string][][]*string{job.Query: tt.raw}}
			l := NewLoader(f, wh, NewAllowList([]Job{job}), LoaderOptions{})

			sum, err := l.LoadOn(context.Background(), job, day)
			require.NoError(t, err)
			assert.Zero(t, sum.RowsInserted)
			assert.Equal(t, day, sum.SnapshotDate)
			assert.Empty(t, wh.calls, "no DDL or DML on an empty result")
		})
	}
}

// TestLoadOn_PlansColumns checks header/destination intersection, order,
// duplicate handling and the trailing snapshot column.
func TestLoadOn_PlansColumns(t *testing.T) {
	t.Parallel()

	job := amountsJob()
	wh := newFakeWarehouse()
	wh.tables["amounts_history"] = []storage.ColumnInfo{
		{Name: "snapshot_date", DataType: "date"},
		{Name: "Amount", DataType: "decimal", Nullable: true},
		{Name: "ID", DataType: "bigint", Nullable: true},
	}
	wh.deleted = 3
	f := &fakeFetcher{results: map[string][][]*string{
		job.Query: rows(
			[]string{"id", "amount", "AMOUNT", "snapshot_date"},
			[]string{"7", "<nil>", "x", "ignored"},
			[]string{"oops", "1.5"},
		),
	}}
	l := NewLoader(f, wh, NewAllowList([]Job{job}), LoaderOptions{})

	sum, err := l.LoadOn(context.Background(), job, day)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.RowsInserted)
	assert.Equal(t, int64(3), sum.RowsDeleted)

	assert.Equal(t, []storage.LoadColumn{
		{Name: "ID", Type: schema.BigInteger, DataType: "bigint", Nullable: true},
		{Name: "Amount", Type: schema.Decimal(10, 2), DataType: "decimal", Nullable: true},
		{Name: "snapshot_date", Type: schema.Date, DataType: "date"},
	}, wh.columns["amounts_history"])
	assert.Equal(t, [][]any{
		{int64(7), nil, day},
		{nil, "1.5", day},
	}, wh.loaded["amounts_history"])

	assert.Equal(t, []string{
		"columns amounts_history",
		"columns amounts_history",
		"begin",
		"delete amounts_history snapshot_date 2024-07-26",
		"load amounts_history",
		"commit",
	}, wh.calls)
}

func TestLoadOn_Failures(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	tests := []struct {
		name      string
		setup     func(*fakeFetcher, *fakeWarehouse)
		stage     Stage
		lastCalls []string
	}{
		{
			name:  "fetch",
			setup: func(f *fakeFetcher, _ *fakeWarehouse) { f.errs = map[string]error{amountsJob().Query: boom} },
			stage: StageFetch,
		},
		{
			name:  "reconcile",
			setup: func(_ *fakeFetcher, w *fakeWarehouse) { w.columnsErr = boom },
			stage: StageReconcile,
		},
		{
			name:      "delete",
			setup:     func(_ *fakeFetcher, w *fakeWarehouse) { w.deleteErr = boom },
			stage:     StageDelete,
			lastCalls: []string{"delete amounts_history snapshot_date 2024-07-26", "rollback"},
		},
		{
			name:      "load",
			setup:     func(_ *fakeFetcher, w *fakeWarehouse) { w.loadErr = boom },
			stage:     StageLoad,
			lastCalls: []string{"load amounts_history", "rollback"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			job := amountsJob()
			wh := newFakeWarehouse()
			f := &fakeFetcher{results: map[string][][]*string{
				job.Query: rows([]string{"id"}, []string{"1"}),
			}}
			tt.setup(f, wh)
			l := NewLoader(f, wh, NewAllowList([]Job{job}), LoaderOptions{})

			_, err := l.LoadOn(context.Background(), job, day)
			var le *LoadError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, tt.stage, le.Stage)
			assert.Equal(t, "Amounts", le.Job)
			assert.ErrorIs(t, err, boom)
			if tt.lastCalls != nil {
				assert.Equal(t, tt.lastCalls, wh.calls[len(wh.calls)-len(tt.lastCalls):])
			}
		})
	}
}

func TestLoadOn_UnsafeIdentifier(t *testing.T) {
	t.Parallel()

	job := amountsJob()
	wh := newFakeWarehouse()
	f := &fakeFetcher{}
	l := NewLoader(f, wh, NewAllowList(nil), LoaderOptions{})

	_, err := l.LoadOn(context.Background(), job, day)
	var unsafe *UnsafeIdentifierError
	require.ErrorAs(t, err, &unsafe)
	assert.Empty(t, f.queries)
	assert.Empty(t, wh.calls)
}

func TestLoad_UsesLocalDay(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("CST", -6*3600)
	job := amountsJob()
	wh := newFakeWarehouse()
	f := &fakeFetcher{results: map[string][][]*string{job.Query: rows([]string{"id"}, []string{"1"})}}
	l := NewLoader(f, wh, NewAllowList([]Job{job}), LoaderOptions{Location: loc})
	// 02:00 UTC on the 27th is still the 26th in CST.
	l.now = func() time.Time { return time.Date(2024, 7, 27, 2, 0, 0, 0, time.UTC) }

	sum, err := l.Load(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "2024-07-26", sum.SnapshotDate.Format(storage.DateLayout))
	assert.Contains(t, wh.calls, "delete amounts_history snapshot_date 2024-07-26")
}
