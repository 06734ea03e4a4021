// Package snapshot loads Athena query results into warehouse tables as dated
// snapshots and coordinates a run over the configured jobs.
//
// A job's load replaces the destination rows of the snapshot day: the delete
// and the bulk insert share one warehouse transaction. Destination schemas
// only ever grow; new result columns are added as nullable text.
package snapshot

import (
	"strings"
	"time"

	"github.com/rlscode/athena-snapshop/internal/schema"
)

// DefaultSnapshotColumn is the date column stamped on every loaded row.
const DefaultSnapshotColumn = "snapshot_date"

// Job is one extraction: a query and the table its results land in.
type Job struct {
	Name        string
	Query       string
	Destination string
	ColumnTypes map[string]schema.DestinationType
}

// TypeOf returns the declared type of column, matching case-insensitively.
// Unmapped columns are Text: their raw value is stored unchanged.
func (j Job) TypeOf(column string) (schema.DestinationType, bool) {
	if t, ok := j.ColumnTypes[column]; ok {
		return t, true
	}
	for name, t := range j.ColumnTypes {
		if strings.EqualFold(name, column) {
			return t, true
		}
	}
	return schema.Text, false
}

// LoadSummary describes one successful job load.
type LoadSummary struct {
	JobName          string
	DestinationTable string
	RowsInserted     int64
	SnapshotDate     time.Time

	RowsDeleted int64
	Fingerprint uint64
	Duration    time.Duration
}

// JobFailure records a job that did not complete.
type JobFailure struct {
	JobName string
	Err     error
}

// AllowList is the set of destination tables derived from the configured
// jobs. Only these names may appear in generated statements.
type AllowList map[string]struct{}

// NewAllowList collects the destinations of jobs.
func NewAllowList(jobs []Job) AllowList {
	a := make(AllowList, len(jobs))
	for _, j := range jobs {
		a[strings.ToLower(j.Destination)] = struct{}{}
	}
	return a
}

// Check returns *UnsafeIdentifierError when table is not allowed.
func (a AllowList) Check(table string) error {
	if _, ok := a[strings.ToLower(table)]; !ok || strings.TrimSpace(table) == "" {
		return &UnsafeIdentifierError{Table: table}
	}
	return nil
}
