// Package athena drives asynchronous Athena queries: submit, poll until the
// execution reaches a terminal state, then page through the results.
//
// The query service is reached through the QueryService interface so the
// polling and paging logic can be exercised without AWS. Client adapts the
// AWS SDK v2 Athena API to it.
package athena

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// State is the lifecycle state of a query execution.
type State string

const (
	StateQueued    State = "QUEUED"
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

// Terminal reports whether polling can stop.
func (s State) Terminal() bool {
	return s != StateQueued && s != StateRunning
}

// Status is a point-in-time view of an execution.
type Status struct {
	State  State
	Reason string
}

// Page is one page of results. NextToken is empty on the last page.
type Page struct {
	Rows      [][]*string
	NextToken string
}

// ExecutionContext scopes a query. All fields are passed through to the
// service untouched.
type ExecutionContext struct {
	Catalog        string
	Database       string
	Workgroup      string
	OutputLocation string
}

// QueryService is the subset of Athena the fetcher needs.
type QueryService interface {
	Start(ctx context.Context, query string, ec ExecutionContext) (string, error)
	Status(ctx context.Context, executionID string) (Status, error)
	ResultsPage(ctx context.Context, executionID, nextToken string) (Page, error)
	Stop(ctx context.Context, executionID string) error
}

// QueryExecutionError reports a query that finished in FAILED or CANCELLED.
type QueryExecutionError struct {
	ExecutionID string
	State       State
	Reason      string
}

func (e *QueryExecutionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("athena query %s %s: %s", e.ExecutionID, e.State, e.Reason)
	}
	return fmt.Sprintf("athena query %s %s", e.ExecutionID, e.State)
}

// QueryTimeoutError reports a query still running after Options.MaxWait.
type QueryTimeoutError struct {
	ExecutionID string
	Waited      time.Duration
	LastState   State
}

func (e *QueryTimeoutError) Error() string {
	return fmt.Sprintf("athena query %s still %s after %s", e.ExecutionID, e.LastState, e.Waited)
}

// Options controls polling.
type Options struct {
	Context ExecutionContext

	// PollInitial is the first wait; each poll adds PollStep up to PollMax.
	PollInitial time.Duration
	PollStep    time.Duration
	PollMax     time.Duration

	// MaxWait bounds the total time spent polling. Zero disables the bound.
	MaxWait time.Duration
}

// DefaultOptions mirrors the soft backoff the service has always used:
// 1.5s, 2s, 2.5s, ... capped at 8s, giving up after 30 minutes.
func DefaultOptions() Options {
	return Options{
		PollInitial: 1500 * time.Millisecond,
		PollStep:    500 * time.Millisecond,
		PollMax:     8 * time.Second,
		MaxWait:     30 * time.Minute,
	}
}

// Fetcher runs a query to completion and returns every result row.
type Fetcher struct {
	svc  QueryService
	opts Options

	// test hooks
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewFetcher builds a Fetcher. Zero poll durations fall back to DefaultOptions.
func NewFetcher(svc QueryService, opts Options) *Fetcher {
	def := DefaultOptions()
	if opts.PollInitial <= 0 {
		opts.PollInitial = def.PollInitial
	}
	if opts.PollStep < 0 {
		opts.PollStep = 0
	}
	if opts.PollMax < opts.PollInitial {
		opts.PollMax = opts.PollInitial
	}
	return &Fetcher{svc: svc, opts: opts, sleep: sleepCtx, now: time.Now}
}

// Fetch submits query, waits for it and pages through all of its results.
func (f *Fetcher) Fetch(ctx context.Context, query string) (*ResultSet, error) {
	id, err := f.svc.Start(ctx, query, f.opts.Context)
	if err != nil {
		return nil, fmt.Errorf("athena: start query: %w", err)
	}
	log.WithField("execution_id", id).Debug("athena: query submitted")

	if err := f.wait(ctx, id); err != nil {
		return nil, err
	}

	rows, pages, err := f.readAll(ctx, id)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"execution_id": id, "pages": pages, "rows": len(rows)}).Debug("athena: results read")
	return NewResultSet(rows), nil
}

// wait polls until the execution is terminal, the context ends, or MaxWait
// elapses.
func (f *Fetcher) wait(ctx context.Context, id string) error {
	start := f.now()
	backoff := f.opts.PollInitial
	state := StateQueued

	for !state.Terminal() {
		if f.opts.MaxWait > 0 {
			if waited := f.now().Sub(start); waited >= f.opts.MaxWait {
				f.stop(id)
				return &QueryTimeoutError{ExecutionID: id, Waited: waited, LastState: state}
			}
		}
		if err := f.sleep(ctx, backoff); err != nil {
			f.stop(id)
			return fmt.Errorf("athena: wait for %s: %w", id, err)
		}
		st, err := f.svc.Status(ctx, id)
		if err != nil {
			return fmt.Errorf("athena: status of %s: %w", id, err)
		}
		state = st.State
		if state == StateSucceeded {
			return nil
		}
		if state.Terminal() {
			return &QueryExecutionError{ExecutionID: id, State: state, Reason: st.Reason}
		}
		if backoff < f.opts.PollMax {
			backoff += f.opts.PollStep
			if backoff > f.opts.PollMax {
				backoff = f.opts.PollMax
			}
		}
	}
	return nil
}

func (f *Fetcher) readAll(ctx context.Context, id string) ([][]*string, int, error) {
	var (
		all   [][]*string
		token string
		pages int
	)
	for {
		p, err := f.svc.ResultsPage(ctx, id, token)
		if err != nil {
			return nil, pages, fmt.Errorf("athena: results page %d of %s: %w", pages+1, id, err)
		}
		pages++
		all = append(all, p.Rows...)
		if p.NextToken == "" {
			return all, pages, nil
		}
		token = p.NextToken
	}
}

// stop cancels the remote execution on a best-effort basis so abandoned
// queries do not keep scanning.
func (f *Fetcher) stop(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := f.svc.Stop(ctx, id); err != nil {
		log.WithField("execution_id", id).Warnf("athena: stop query: %v", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsQueryError reports whether err came from the remote query itself rather
// than from transport.
func IsQueryError(err error) bool {
	var qe *QueryExecutionError
	var te *QueryTimeoutError
	return errors.As(err, &qe) || errors.As(err, &te)
}
