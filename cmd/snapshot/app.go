package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rlscode/athena-snapshop/internal/athena"
	"github.com/rlscode/athena-snapshop/internal/config"
	"github.com/rlscode/athena-snapshop/internal/metrics"
	"github.com/rlscode/athena-snapshop/internal/metrics/datadog"
	"github.com/rlscode/athena-snapshop/internal/metrics/prompush"
	"github.com/rlscode/athena-snapshop/internal/notify"
	"github.com/rlscode/athena-snapshop/internal/scheduler"
	"github.com/rlscode/athena-snapshop/internal/snapshot"
	"github.com/rlscode/athena-snapshop/internal/storage"
)

// metricsJob labels everything this service pushes.
const metricsJob = "athena_snapshots"

// app is the wired service: one warehouse connection and one coordinator.
type app struct {
	loc   *time.Location
	wh    storage.Warehouse
	coord *snapshot.Coordinator
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log.WithField("config", fmt.Sprintf("%+v", cfg.Redacted())).Debug("starting")

	loc, err := scheduler.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, err
	}
	setupMetrics(cfg)

	client, err := athena.NewClient(ctx, athena.ClientConfig{
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		SessionToken:    cfg.AWSSessionToken,
	})
	if err != nil {
		return nil, err
	}
	fetcher := athena.NewFetcher(client, athena.Options{
		Context: athena.ExecutionContext{
			Database:       cfg.AthenaDatabase,
			Workgroup:      cfg.AthenaWorkgroup,
			OutputLocation: cfg.AthenaOutput,
		},
		PollInitial: cfg.PollInitial,
		PollStep:    cfg.PollStep,
		PollMax:     cfg.PollMax,
		MaxWait:     cfg.MaxWait,
	})

	wh, err := storage.New(ctx, storage.Config{
		Kind:   strings.ToLower(cfg.WarehouseKind),
		DSN:    cfg.WarehouseDSN,
		Schema: cfg.WarehouseSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("warehouse: %w", err)
	}
	log.WithField("kind", cfg.WarehouseKind).Info("connected to warehouse")

	loader := snapshot.NewLoader(fetcher, wh, snapshot.NewAllowList(cfg.Jobs), snapshot.LoaderOptions{
		SnapshotColumn: cfg.SnapshotColumn,
		Location:       loc,
	})
	return &app{
		loc:   loc,
		wh:    wh,
		coord: snapshot.NewCoordinator(loader, cfg.Jobs, newNotifier(cfg), loc),
	}, nil
}

func (a *app) Close() { a.wh.Close() }

// newNotifier mails the report when a sender and recipients are configured
// and logs it otherwise.
func newNotifier(cfg *config.Config) snapshot.Notifier {
	smtpCfg := notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.NotifyFrom,
		To:       cfg.NotifyTo,
	}
	if !smtpCfg.Enabled() {
		log.Warn("notify: NOTIFY_FROM or NOTIFY_TO not set; reports go to the log")
		return notify.LogNotifier{}
	}
	return notify.NewMailer(smtpCfg)
}

// setupMetrics installs the configured backend. A backend that cannot be
// created leaves the nop backend in place.
func setupMetrics(cfg *config.Config) {
	name := strings.ToLower(cfg.MetricsBackend)
	switch name {
	case "pushgateway":
		b, err := prompush.NewBackend(metricsJob, cfg.PushgatewayURL)
		if err != nil {
			log.Warnf("metrics: failed to init prom push backend: %v; using nop", err)
			return
		}
		metrics.SetBackend(b)
	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       cfg.DatadogAddr,
			Namespace:  "athena_snapshot.",
			GlobalTags: []string{"service:" + metricsJob},
		})
		if err != nil {
			log.Warnf("metrics: failed to init datadog backend: %v; using nop", err)
			return
		}
		metrics.SetBackend(b)
	case "", "none":
		log.Debug("metrics: disabled")
		return
	default:
		log.Warnf("metrics: unknown backend %q; metrics disabled", name)
		return
	}
	log.WithField("backend", name).Info("metrics: enabled")
}

// afterRun decides whether the service exits after a run, and with which
// status. A restart-on-error exit waits delay first so logs and the report
// get out.
func afterRun(cfg *config.Config, rep snapshot.Report, sleep func(time.Duration)) (code int, exit bool) {
	switch {
	case cfg.OneShot:
		if rep.Failed() {
			return 1, true
		}
		return 0, true
	case cfg.RestartOnError && rep.Failed():
		log.Errorf("%d job(s) failed; exiting in %s so the supervisor restarts the service", len(rep.Failures), cfg.RestartDelay)
		sleep(cfg.RestartDelay)
		return 1, true
	default:
		return 0, false
	}
}

// serve runs the scheduler until ctx ends or a run asks the process to exit.
func serve(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return schedule(ctx, cfg, a.loc, a.coord.Run)
}

type runFunc func(context.Context) (snapshot.Report, error)

func schedule(ctx context.Context, cfg *config.Config, loc *time.Location, run runFunc) error {
	exit := make(chan int, 1)
	var wg sync.WaitGroup
	trigger := func(ctx context.Context) {
		rep, err := run(ctx)
		if errors.Is(err, snapshot.ErrRunInProgress) {
			log.Warn("previous run still in progress; trigger skipped")
			return
		}
		if err != nil {
			log.Warnf("run: %v", err)
		}
		if code, done := afterRun(cfg, rep, time.Sleep); done {
			select {
			case exit <- code:
			default:
			}
		}
	}

	expr := scheduler.Expression(cfg.ScheduleMode, cfg.CronExpr)
	s, err := scheduler.New(ctx, expr, loc, trigger)
	if err != nil {
		return err
	}
	s.Start()
	if cfg.RunOnStart {
		log.Info("running once on start")
		wg.Add(1)
		go func() {
			defer wg.Done()
			trigger(ctx)
		}()
	}

	code := 0
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case code = <-exit:
	}
	<-s.Stop().Done()
	wg.Wait()
	if code != 0 {
		return exitCode(code)
	}
	return nil
}
