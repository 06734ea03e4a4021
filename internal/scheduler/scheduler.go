// Package scheduler triggers snapshot runs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Schedule modes and their cron expressions.
const (
	ModeDaily   = "daily"
	ModeMonthly = "monthly"

	DailyExpr   = "0 6 * * *"
	MonthlyExpr = "0 3 1 * *"
)

// DefaultTimeZone is used when TZ is unset.
const DefaultTimeZone = "America/Costa_Rica"

// Expression picks the cron expression: an explicit expr wins, otherwise the
// mode's expression. Unknown modes fall back to daily.
func Expression(mode, expr string) string {
	if e := strings.TrimSpace(expr); e != "" {
		return e
	}
	if strings.EqualFold(strings.TrimSpace(mode), ModeMonthly) {
		return MonthlyExpr
	}
	return DailyExpr
}

// LoadLocation resolves a time zone name; empty means DefaultTimeZone.
func LoadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		name = DefaultTimeZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("scheduler: time zone %q: %w", name, err)
	}
	return loc, nil
}

// Validate parses expr as a standard five-field cron expression.
func Validate(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("scheduler: invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// Scheduler fires a trigger function on a cron schedule. A fire that finds
// the previous one still running is skipped.
type Scheduler struct {
	cron     *cron.Cron
	expr     string
	schedule cron.Schedule
	loc      *time.Location
	entry    cron.EntryID
}

// New validates expr and registers trigger. The trigger receives ctx.
func New(ctx context.Context, expr string, loc *time.Location, trigger func(context.Context)) (*Scheduler, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid cron expression %q: %w", expr, err)
	}
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	s := &Scheduler{cron: c, expr: expr, schedule: sched, loc: loc}
	s.entry = c.Schedule(sched, cron.FuncJob(func() {
		log.WithField("cron", expr).Infof("scheduler: trigger at %s", time.Now().In(loc).Format(time.RFC3339))
		trigger(ctx)
	}))
	return s, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.WithFields(log.Fields{
		"cron": s.expr,
		"tz":   s.loc.String(),
		"next": s.Next(time.Now()).Format(time.RFC3339),
	}).Info("scheduler: started")
}

// Stop stops firing and returns a context that is done once a running
// trigger has returned.
func (s *Scheduler) Stop() context.Context {
	ctx := s.cron.Stop()
	log.Info("scheduler: stopped")
	return ctx
}

// Next returns the first fire time after t in the scheduler's location.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.loc))
}
