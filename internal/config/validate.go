package config

import (
	"fmt"
	"strings"

	"github.com/rlscode/athena-snapshop/internal/scheduler"
	"github.com/rlscode/athena-snapshop/internal/schema"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks start-up.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is reported but does not block.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path names the setting
// (e.g. "warehouse.dsn", "jobs[1].destination").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidateConfig lints a finished Config. It never mutates c.
func ValidateConfig(c *Config) []Issue {
	var issues []Issue
	issues = append(issues, validateAthena(c)...)
	issues = append(issues, validateWarehouse(c)...)
	issues = append(issues, validateJobs(c)...)
	issues = append(issues, validateNotify(c)...)
	issues = append(issues, validateSchedule(c)...)
	issues = append(issues, validateMetrics(c)...)
	return issues
}

func validateAthena(c *Config) []Issue {
	var issues []Issue
	if strings.TrimSpace(c.AWSRegion) == "" {
		issues = append(issues, Issue{SeverityError, "athena.region", "AWS region must not be empty"})
	}
	if strings.TrimSpace(c.AthenaDatabase) == "" {
		issues = append(issues, Issue{SeverityError, "athena.database", "Athena database must not be empty"})
	}
	if (c.AWSAccessKeyID == "") != (c.AWSSecretAccessKey == "") {
		issues = append(issues, Issue{SeverityError, "athena.credentials", "set both AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY, or neither"})
	}
	if c.AthenaOutput != "" && !strings.HasPrefix(c.AthenaOutput, "s3://") {
		issues = append(issues, Issue{SeverityError, "athena.output", fmt.Sprintf("output location %q must be an s3:// URI", c.AthenaOutput)})
	}
	if c.PollInitial <= 0 {
		issues = append(issues, Issue{SeverityWarning, "athena.poll_initial", "non-positive poll interval; the default is used"})
	}
	if c.PollMax < c.PollInitial {
		issues = append(issues, Issue{SeverityWarning, "athena.poll_max", "poll cap is below the initial interval; polling will not back off"})
	}
	if c.MaxWait <= 0 {
		issues = append(issues, Issue{SeverityWarning, "athena.max_wait", "no poll deadline; a stuck query blocks the run forever"})
	}
	return issues
}

func validateWarehouse(c *Config) []Issue {
	var issues []Issue
	known := map[string]struct{}{"mssql": {}, "postgres": {}, "sqlite": {}}
	if _, ok := known[strings.ToLower(c.WarehouseKind)]; !ok {
		issues = append(issues, Issue{SeverityError, "warehouse.kind",
			fmt.Sprintf("unknown warehouse kind %q; want mssql, postgres or sqlite", c.WarehouseKind)})
	}
	if strings.TrimSpace(c.WarehouseDSN) == "" {
		issues = append(issues, Issue{SeverityError, "warehouse.dsn", "set WAREHOUSE_DSN, or SQL_SERVER for mssql"})
	}
	if strings.TrimSpace(c.SnapshotColumn) == "" {
		issues = append(issues, Issue{SeverityError, "warehouse.snapshot_column", "snapshot column must not be empty"})
	}
	return issues
}

func validateJobs(c *Config) []Issue {
	var issues []Issue
	if len(c.Jobs) == 0 {
		return append(issues, Issue{SeverityError, "jobs", "no jobs configured"})
	}
	names := map[string]int{}
	dests := map[string]int{}
	for i, j := range c.Jobs {
		path := fmt.Sprintf("jobs[%d]", i)
		if strings.TrimSpace(j.Name) == "" {
			issues = append(issues, Issue{SeverityError, path + ".name", "job name must not be empty"})
		} else if prev, dup := names[strings.ToLower(j.Name)]; dup {
			issues = append(issues, Issue{SeverityError, path + ".name", fmt.Sprintf("duplicate job name %q (also jobs[%d])", j.Name, prev)})
		} else {
			names[strings.ToLower(j.Name)] = i
		}
		if strings.TrimSpace(j.Query) == "" {
			issues = append(issues, Issue{SeverityError, path + ".query", "query must not be empty"})
		}
		if strings.TrimSpace(j.Destination) == "" {
			issues = append(issues, Issue{SeverityError, path + ".destination", "destination must not be empty"})
		} else if prev, dup := dests[strings.ToLower(j.Destination)]; dup {
			issues = append(issues, Issue{SeverityWarning, path + ".destination",
				fmt.Sprintf("destination %q is shared with jobs[%d]; the later job replaces the earlier one's snapshot", j.Destination, prev)})
		} else {
			dests[strings.ToLower(j.Destination)] = i
		}
		if len(j.ColumnTypes) == 0 {
			issues = append(issues, Issue{SeverityWarning, path + ".columns",
				"no column types declared; every column loads as text"})
		}
		if t, ok := j.TypeOf(c.SnapshotColumn); ok && t.Kind != schema.KindDate {
			issues = append(issues, Issue{SeverityWarning, path + ".columns." + c.SnapshotColumn,
				fmt.Sprintf("snapshot column is declared %s but is always loaded as a date", t)})
		}
	}
	return issues
}

func validateNotify(c *Config) []Issue {
	switch {
	case c.NotifyFrom == "" && len(c.NotifyTo) == 0:
		return []Issue{{SeverityWarning, "notify", "NOTIFY_FROM and NOTIFY_TO unset; no report email is sent"}}
	case c.NotifyFrom == "":
		return []Issue{{SeverityWarning, "notify.from", "recipients set without a sender; no report email is sent"}}
	case len(c.NotifyTo) == 0:
		return []Issue{{SeverityWarning, "notify.to", "sender set without recipients; no report email is sent"}}
	}
	if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
		return []Issue{{SeverityError, "notify.smtp_port", fmt.Sprintf("invalid SMTP port %d", c.SMTPPort)}}
	}
	return nil
}

func validateSchedule(c *Config) []Issue {
	var issues []Issue
	if c.CronExpr == "" {
		switch strings.ToLower(c.ScheduleMode) {
		case scheduler.ModeDaily, scheduler.ModeMonthly:
		default:
			issues = append(issues, Issue{SeverityWarning, "schedule.mode",
				fmt.Sprintf("unknown schedule mode %q; daily is used", c.ScheduleMode)})
		}
	}
	if err := scheduler.Validate(scheduler.Expression(c.ScheduleMode, c.CronExpr)); err != nil {
		issues = append(issues, Issue{SeverityError, "schedule.cron", err.Error()})
	}
	if _, err := scheduler.LoadLocation(c.TimeZone); err != nil {
		issues = append(issues, Issue{SeverityError, "schedule.tz", err.Error()})
	}
	if c.OneShot && c.RestartOnError {
		issues = append(issues, Issue{SeverityWarning, "schedule.restart_on_error", "ignored in one-shot mode"})
	}
	return issues
}

func validateMetrics(c *Config) []Issue {
	switch strings.ToLower(c.MetricsBackend) {
	case "", "none":
	case "pushgateway":
		if c.PushgatewayURL == "" {
			return []Issue{{SeverityError, "metrics.pushgateway_url", "pushgateway backend needs PUSHGATEWAY_URL"}}
		}
	case "datadog":
		if c.DatadogAddr == "" {
			return []Issue{{SeverityError, "metrics.datadog_addr", "datadog backend needs DATADOG_ADDR"}}
		}
	default:
		return []Issue{{SeverityError, "metrics.backend",
			fmt.Sprintf("unknown metrics backend %q; want none, pushgateway or datadog", c.MetricsBackend)}}
	}
	return nil
}
