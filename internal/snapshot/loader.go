package snapshot

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rlscode/athena-snapshop/internal/athena"
	"github.com/rlscode/athena-snapshop/internal/metrics"
	"github.com/rlscode/athena-snapshop/internal/schema"
	"github.com/rlscode/athena-snapshop/internal/storage"
	"github.com/rlscode/athena-snapshop/internal/transformer"
)

// Fetcher runs a query to completion. *athena.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, query string) (*athena.ResultSet, error)
}

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	// SnapshotColumn defaults to DefaultSnapshotColumn.
	SnapshotColumn string
	// Location decides the calendar day and reads zone-less timestamps.
	// Nil means time.Local.
	Location *time.Location
}

// Loader runs one job: fetch, reconcile, then replace the snapshot day.
type Loader struct {
	fetcher    Fetcher
	wh         storage.Warehouse
	allow      AllowList
	reconciler *Reconciler
	coercer    transformer.Coercer
	snapCol    string
	loc        *time.Location
	now        func() time.Time
}

// NewLoader wires a Loader. allow is normally NewAllowList(jobs).
func NewLoader(f Fetcher, wh storage.Warehouse, allow AllowList, opts LoaderOptions) *Loader {
	if opts.SnapshotColumn == "" {
		opts.SnapshotColumn = DefaultSnapshotColumn
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Loader{
		fetcher:    f,
		wh:         wh,
		allow:      allow,
		reconciler: NewReconciler(wh, allow, opts.SnapshotColumn),
		coercer:    transformer.Coercer{Location: opts.Location},
		snapCol:    opts.SnapshotColumn,
		loc:        opts.Location,
		now:        time.Now,
	}
}

// Today returns the current calendar day in the loader's location.
func (l *Loader) Today() time.Time { return DayOf(l.now(), l.loc) }

// DayOf returns midnight of t's calendar day in loc.
func DayOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// Load runs job for today.
func (l *Loader) Load(ctx context.Context, job Job) (LoadSummary, error) {
	return l.LoadOn(ctx, job, l.Today())
}

// LoadOn runs job and stamps day on every row. Rows already stored for day
// are replaced in the same transaction as the insert. A result with no data
// rows returns a zero summary without touching the warehouse.
func (l *Loader) LoadOn(ctx context.Context, job Job, day time.Time) (LoadSummary, error) {
	start := time.Now()
	sum := LoadSummary{JobName: job.Name, DestinationTable: job.Destination, SnapshotDate: day}
	logger := Logger(ctx).WithFields(log.Fields{"job": job.Name, "table": job.Destination})

	if err := l.allow.Check(job.Destination); err != nil {
		return sum, err
	}

	logger.Info("fetching")
	rs, err := timed(job.Name, StageFetch, func() (*athena.ResultSet, error) {
		return l.fetcher.Fetch(ctx, job.Query)
	})
	if err != nil {
		return sum, &LoadError{Job: job.Name, Stage: StageFetch, Err: err}
	}
	metrics.RecordRow(job.Name, "fetched", int64(len(rs.Rows)))
	if rs.Empty() {
		logger.Info("no data; nothing loaded")
		sum.Duration = time.Since(start)
		return sum, nil
	}
	sum.Fingerprint = rs.Fingerprint()

	logger.WithField("columns", len(rs.Header)).Info("reconciling schema")
	dest, err := timed(job.Name, StageReconcile, func() ([]storage.ColumnInfo, error) {
		if err := l.reconciler.Reconcile(ctx, job.Destination, rs.Header); err != nil {
			return nil, err
		}
		return l.wh.Columns(ctx, job.Destination)
	})
	if err != nil {
		return sum, &LoadError{Job: job.Name, Stage: StageReconcile, Err: err}
	}

	plan := l.plan(job, rs.Header, dest)
	if err := l.replace(ctx, logger, job, day, rs, plan, &sum); err != nil {
		return sum, err
	}

	sum.RowsInserted = int64(len(rs.Rows))
	sum.Duration = time.Since(start)
	metrics.RecordRow(job.Name, "deleted", sum.RowsDeleted)
	metrics.RecordRow(job.Name, "inserted", sum.RowsInserted)
	logger.WithFields(log.Fields{
		"rows":        sum.RowsInserted,
		"deleted":     sum.RowsDeleted,
		"snapshot":    day.Format(storage.DateLayout),
		"fingerprint": fmt.Sprintf("%016x", sum.Fingerprint),
	}).Info("loaded")
	return sum, nil
}

// replace deletes the snapshot day and bulk loads rs inside one transaction.
func (l *Loader) replace(ctx context.Context, logger *log.Entry, job Job, day time.Time, rs *athena.ResultSet, plan []planned, sum *LoadSummary) (err error) {
	tx, err := l.wh.Begin(ctx)
	if err != nil {
		return &LoadError{Job: job.Name, Stage: StageDelete, Err: err}
	}
	committed := false
	defer func() {
		if !committed {
			if rerr := tx.Rollback(ctx); rerr != nil {
				logger.Warnf("rollback: %v", rerr)
			}
		}
	}()

	logger.WithField("snapshot", day.Format(storage.DateLayout)).Info("deleting snapshot day")
	sum.RowsDeleted, err = timed(job.Name, StageDelete, func() (int64, error) {
		return tx.DeleteSnapshot(ctx, job.Destination, l.snapCol, day)
	})
	if err != nil {
		return &LoadError{Job: job.Name, Stage: StageDelete, Err: err}
	}

	coerceStart := time.Now()
	rows := l.coerce(rs, plan, day)
	metrics.RecordStep(job.Name, string(StageCoerce), nil, time.Since(coerceStart))

	cols := make([]storage.LoadColumn, len(plan))
	for i, p := range plan {
		cols[i] = p.col
	}
	logger.WithField("rows", len(rows)).Info("loading")
	_, err = timed(job.Name, StageLoad, func() (int64, error) {
		if _, err := tx.BulkLoad(ctx, job.Destination, cols, rows); err != nil {
			return 0, err
		}
		return 0, tx.Commit(ctx)
	})
	if err != nil {
		return &LoadError{Job: job.Name, Stage: StageLoad, Err: err}
	}
	committed = true
	return nil
}

// planned maps one destination column to its header index; index -1 is the
// snapshot date.
type planned struct {
	index int
	col   storage.LoadColumn
}

// plan intersects header with the destination columns (case-insensitive,
// header order, first occurrence wins) and appends the snapshot column.
func (l *Loader) plan(job Job, header []string, dest []storage.ColumnInfo) []planned {
	byName := make(map[string]storage.ColumnInfo, len(dest))
	for _, c := range dest {
		byName[strings.ToLower(c.Name)] = c
	}
	out := make([]planned, 0, len(header)+1)
	seen := map[string]struct{}{strings.ToLower(l.snapCol): {}}
	for i, h := range header {
		key := strings.ToLower(h)
		if _, dup := seen[key]; dup {
			continue
		}
		c, ok := byName[key]
		if !ok {
			continue
		}
		seen[key] = struct{}{}
		t, _ := job.TypeOf(h)
		out = append(out, planned{index: i, col: storage.LoadColumn{
			Name: c.Name, Type: t, DataType: c.DataType, Nullable: c.Nullable,
		}})
	}
	snap := storage.LoadColumn{Name: l.snapCol, Type: schema.Date}
	if c, ok := byName[strings.ToLower(l.snapCol)]; ok {
		snap.Name, snap.DataType = c.Name, c.DataType
	}
	return append(out, planned{index: -1, col: snap})
}

func (l *Loader) coerce(rs *athena.ResultSet, plan []planned, day time.Time) [][]any {
	rows := make([][]any, len(rs.Rows))
	for r, raw := range rs.Rows {
		vals := make([]any, len(plan))
		for i, p := range plan {
			if p.index < 0 {
				vals[i] = day
				continue
			}
			vals[i] = l.coercer.Coerce(athena.Cell(raw, p.index), p.col.Name, p.col.Type)
		}
		rows[r] = vals
	}
	return rows
}

// timed runs fn and records its duration and outcome for job/stage.
func timed[T any](job string, stage Stage, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	metrics.RecordStep(job, string(stage), err, time.Since(start))
	return v, err
}

// String renders the summary as a report line.
func (s LoadSummary) String() string {
	return fmt.Sprintf("%s: %d rows in %s (%s, fingerprint %016x)",
		s.JobName, s.RowsInserted, s.DestinationTable, s.SnapshotDate.Format(storage.DateLayout), s.Fingerprint)
}
