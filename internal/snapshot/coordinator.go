package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/rlscode/athena-snapshop/internal/metrics"
)

// Report is the outcome of one run over all jobs.
type Report struct {
	RunID        string
	StartedAt    time.Time
	FinishedAt   time.Time
	SnapshotDate time.Time
	Successes    []LoadSummary
	Failures     []JobFailure
}

// Failed reports whether any job failed.
func (r Report) Failed() bool { return len(r.Failures) > 0 }

// Notifier delivers the report of a finished run.
type Notifier interface {
	Notify(ctx context.Context, r Report) error
}

// JobLoader loads one job for a given snapshot day. *Loader implements it.
type JobLoader interface {
	LoadOn(ctx context.Context, job Job, day time.Time) (LoadSummary, error)
}

// Coordinator runs every configured job once per Run and sends one report.
// At most one Run is active at a time.
type Coordinator struct {
	loader   JobLoader
	jobs     []Job
	notifier Notifier
	loc      *time.Location
	guard    *semaphore.Weighted
	now      func() time.Time
	newID    func() string
}

// NewCoordinator builds a Coordinator. loc decides the snapshot day; nil means
// time.Local.
func NewCoordinator(loader JobLoader, jobs []Job, notifier Notifier, loc *time.Location) *Coordinator {
	if loc == nil {
		loc = time.Local
	}
	return &Coordinator{
		loader:   loader,
		jobs:     jobs,
		notifier: notifier,
		loc:      loc,
		guard:    semaphore.NewWeighted(1),
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
}

// Run loads every job in order. A failing job is recorded and the next one
// still runs. The returned error is ErrRunInProgress when another run is
// active, or the notifier's error; job failures are only in the report.
func (c *Coordinator) Run(ctx context.Context) (Report, error) {
	if !c.guard.TryAcquire(1) {
		return Report{}, ErrRunInProgress
	}
	defer c.guard.Release(1)

	rep := Report{RunID: c.newID(), StartedAt: c.now()}
	rep.SnapshotDate = DayOf(rep.StartedAt, c.loc)
	ctx = WithRunID(ctx, rep.RunID)
	logger := Logger(ctx)
	logger.WithFields(log.Fields{
		"jobs":     len(c.jobs),
		"snapshot": rep.SnapshotDate.Format("2006-01-02"),
	}).Info("run started")

	for _, job := range c.jobs {
		if err := ctx.Err(); err != nil {
			rep.Failures = append(rep.Failures, JobFailure{JobName: job.Name, Err: err})
			continue
		}
		sum, err := c.loader.LoadOn(ctx, job, rep.SnapshotDate)
		if err != nil {
			logger.WithField("job", job.Name).Errorf("job failed: %v", err)
			rep.Failures = append(rep.Failures, JobFailure{JobName: job.Name, Err: err})
			continue
		}
		rep.Successes = append(rep.Successes, sum)
	}
	rep.FinishedAt = c.now()

	metrics.RecordRun(len(rep.Failures), rep.FinishedAt.Sub(rep.StartedAt))
	logger.WithFields(log.Fields{
		"ok":     len(rep.Successes),
		"failed": len(rep.Failures),
	}).Info("run finished")

	var notifyErr error
	if c.notifier != nil {
		if err := c.notifier.Notify(ctx, rep); err != nil {
			notifyErr = fmt.Errorf("snapshot: notify: %w", err)
			logger.Errorf("%v", notifyErr)
		}
	}
	if err := metrics.Flush(); err != nil {
		logger.Warnf("metrics flush: %v", err)
	}
	return rep, notifyErr
}
