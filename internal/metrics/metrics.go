// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from snapshot runs.
//
// A global, pluggable backend defaults to a no-op implementation, so the
// loader and coordinator can always record without checking whether a real
// backend (Pushgateway, Datadog) is configured. Concrete metric systems live
// in subpackages.
package metrics

import "time"

// Metric names shared by all backends.
const (
	StepTotal           = "snapshot_step_total"
	StepDurationSeconds = "snapshot_step_duration_seconds"
	RowsTotal           = "snapshot_rows_total"
	RunTotal            = "snapshot_run_total"
	RunDurationSeconds  = "snapshot_run_duration_seconds"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

func status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// RecordStep measures latency and outcome of one loader stage
// (fetch, reconcile, delete, coerce, load).
func RecordStep(job, step string, err error, d time.Duration) {
	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": status(err),
	}
	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDurationSeconds, d.Seconds(), lbls)
}

// RecordRow increments a row-level counter for the given job and kind.
//
// Kinds used by the loader:
//   - "fetched"
//   - "deleted"
//   - "inserted"
func RecordRow(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RowsTotal, float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordRun records one coordinator run. A run with any failed job counts as
// a failure.
func RecordRun(failed int, d time.Duration) {
	st := "success"
	if failed > 0 {
		st = "failure"
	}
	lbls := Labels{"status": st}
	backend.IncCounter(RunTotal, 1, lbls)
	backend.ObserveHistogram(RunDurationSeconds, d.Seconds(), lbls)
}
