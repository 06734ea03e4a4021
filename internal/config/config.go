// Package config centralizes process configuration. Every tunable is a flag
// whose default is seeded from an environment variable, so the service can be
// configured the 12-factor way and still show all knobs in --help.
//
// Precedence, lowest first:
//  1. built-in defaults
//  2. the optional .env file (--env-file / ENV_FILE)
//  3. the process environment
//  4. explicit command-line flags
//
// For tests, prefer LoadFromArgs with a private FlagSet and a map-backed
// getenv to keep them hermetic:
//
//	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
//	cfg, err := config.LoadFromArgs(fs, func(k string) string { return env[k] }, nil)
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rlscode/athena-snapshop/internal/snapshot"
)

// Config holds the whole process configuration. It is built once at start
// and not mutated afterwards.
type Config struct {
	// AWS / Athena.
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSSessionToken    string
	AthenaDatabase     string
	AthenaWorkgroup    string
	AthenaOutput       string
	PollInitial        time.Duration
	PollStep           time.Duration
	PollMax            time.Duration
	MaxWait            time.Duration

	// Warehouse. WarehouseDSN wins over the discrete SQL_* parts.
	WarehouseKind   string
	WarehouseDSN    string
	WarehouseSchema string
	SQLServer       string
	SQLUser         string
	SQLPassword     string
	SQLDatabase     string
	SnapshotColumn  string

	// Notification.
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	NotifyFrom   string
	NotifyTo     []string

	// Scheduling and process lifecycle.
	ScheduleMode   string
	CronExpr       string
	TimeZone       string
	RunOnStart     bool
	OneShot        bool
	RestartOnError bool
	RestartDelay   time.Duration

	// Logging and metrics.
	LogLevel       string
	LogFile        string
	MetricsBackend string
	PushgatewayURL string
	DatadogAddr    string

	EnvFile  string
	JobsFile string
	Jobs     []snapshot.Job
}

// Define registers every flag on fs, seeding defaults through getenv, and
// returns the Config the flags write into. Call Finish after fs is parsed.
func Define(fs *pflag.FlagSet, getenv func(string) string) *Config {
	cfg := &Config{}

	str := func(k, d string) string {
		if v := getenv(k); v != "" {
			return v
		}
		return d
	}
	num := func(k string, d int) int {
		if v := getenv(k); v != "" {
			if i, err := strconv.Atoi(v); err == nil {
				return i
			}
		}
		return d
	}
	flag := func(k string, d bool) bool {
		if v := strings.ToLower(getenv(k)); v != "" {
			switch v {
			case "1", "true", "yes", "on":
				return true
			case "0", "false", "no", "off":
				return false
			}
		}
		return d
	}
	dur := func(k string, d time.Duration) time.Duration {
		return durationOr(getenv(k), d)
	}

	// AWS / Athena
	fs.StringVar(&cfg.AWSRegion, "aws-region", str("AWS_REGION", "us-east-1"), "AWS region of the Athena workgroup")
	fs.StringVar(&cfg.AWSAccessKeyID, "aws-access-key-id", getenv("AWS_ACCESS_KEY_ID"), "static AWS access key (default credential chain when empty)")
	fs.StringVar(&cfg.AWSSecretAccessKey, "aws-secret-access-key", getenv("AWS_SECRET_ACCESS_KEY"), "static AWS secret key")
	fs.StringVar(&cfg.AWSSessionToken, "aws-session-token", getenv("AWS_SESSION_TOKEN"), "optional AWS session token")
	fs.StringVar(&cfg.AthenaDatabase, "athena-db", str("ATHENA_DB", "default"), "Athena database")
	fs.StringVar(&cfg.AthenaWorkgroup, "athena-wg", str("ATHENA_WG", "primary"), "Athena workgroup")
	fs.StringVar(&cfg.AthenaOutput, "athena-output", getenv("ATHENA_OUTPUT"), "S3 URI for query results (workgroup setting when empty)")
	fs.DurationVar(&cfg.PollInitial, "athena-poll-initial", dur("ATHENA_POLL_INITIAL", 1500*time.Millisecond), "first status poll interval")
	fs.DurationVar(&cfg.PollStep, "athena-poll-step", dur("ATHENA_POLL_STEP", 500*time.Millisecond), "poll interval increment")
	fs.DurationVar(&cfg.PollMax, "athena-poll-max", dur("ATHENA_POLL_MAX", 8*time.Second), "poll interval cap")
	fs.DurationVar(&cfg.MaxWait, "athena-max-wait", dur("ATHENA_MAX_WAIT", 30*time.Minute), "give up on a query after this long (0 = never)")

	// Warehouse
	fs.StringVar(&cfg.WarehouseKind, "warehouse-kind", str("WAREHOUSE_KIND", "mssql"), "warehouse backend: mssql, postgres or sqlite")
	fs.StringVar(&cfg.WarehouseDSN, "warehouse-dsn", getenv("WAREHOUSE_DSN"), "warehouse DSN (built from SQL_* when empty)")
	fs.StringVar(&cfg.WarehouseSchema, "warehouse-schema", getenv("WAREHOUSE_SCHEMA"), "schema of the destination tables (backend default when empty)")
	fs.StringVar(&cfg.SQLServer, "sql-server", getenv("SQL_SERVER"), "SQL Server host[:port]")
	fs.StringVar(&cfg.SQLUser, "sql-user", getenv("SQL_USER"), "SQL Server user")
	fs.StringVar(&cfg.SQLPassword, "sql-password", getenv("SQL_PASSWORD"), "SQL Server password")
	fs.StringVar(&cfg.SQLDatabase, "sql-database", str("SQL_DATABASE", "TBSnapshots"), "SQL Server database")
	fs.StringVar(&cfg.SnapshotColumn, "snapshot-column", str("SNAPSHOT_COLUMN", snapshot.DefaultSnapshotColumn), "date column stamped on every row")

	// Notification
	fs.StringVar(&cfg.SMTPHost, "smtp-host", str("SMTP_HOST", "localhost"), "SMTP relay host")
	fs.IntVar(&cfg.SMTPPort, "smtp-port", num("SMTP_PORT", 25), "SMTP relay port")
	fs.StringVar(&cfg.SMTPUser, "smtp-user", getenv("SMTP_USER"), "SMTP user (no auth when empty)")
	fs.StringVar(&cfg.SMTPPassword, "smtp-pass", getenv("SMTP_PASS"), "SMTP password")
	fs.StringVar(&cfg.NotifyFrom, "notify-from", getenv("NOTIFY_FROM"), "report sender address")
	fs.StringSliceVar(&cfg.NotifyTo, "notify-to", splitList(getenv("NOTIFY_TO")), "report recipients, comma separated")

	// Scheduling
	fs.StringVar(&cfg.ScheduleMode, "schedule-mode", strings.ToLower(str("SCHEDULE_MODE", "daily")), "daily or monthly")
	fs.StringVar(&cfg.CronExpr, "cron", getenv("CRON_EXPR"), "explicit cron expression (overrides schedule-mode)")
	fs.StringVar(&cfg.TimeZone, "tz", getenv("TZ"), "time zone of the schedule and the snapshot date")
	fs.BoolVar(&cfg.RunOnStart, "run-on-start", flag("RUN_ON_START", false), "run once immediately when serving")
	fs.BoolVar(&cfg.OneShot, "one-shot", flag("ONE_SHOT", false), "exit after the first run; status 1 when a job failed")
	fs.BoolVar(&cfg.RestartOnError, "restart-on-error", flag("RESTART_ON_ERROR", false), "exit 1 after a run with failures so a supervisor restarts")
	fs.DurationVar(&cfg.RestartDelay, "restart-delay", dur("RESTART_DELAY", 3*time.Second), "grace period before a restart-on-error exit")

	// Logging & metrics
	fs.StringVar(&cfg.LogLevel, "log-level", str("LOG_LEVEL", "info"), "log level")
	fs.StringVar(&cfg.LogFile, "log-file", getenv("LOG_FILE"), "also write logs to this rotating file")
	fs.StringVar(&cfg.MetricsBackend, "metrics-backend", str("METRICS_BACKEND", "none"), "none, pushgateway or datadog")
	fs.StringVar(&cfg.PushgatewayURL, "pushgateway-url", getenv("PUSHGATEWAY_URL"), "Prometheus Pushgateway URL")
	fs.StringVar(&cfg.DatadogAddr, "datadog-addr", str("DATADOG_ADDR", "127.0.0.1:8125"), "DogStatsD address")

	fs.StringVar(&cfg.EnvFile, "env-file", getenv("ENV_FILE"), "optional .env file")
	fs.StringVar(&cfg.JobsFile, "jobs-file", getenv("JOBS_FILE"), "YAML job catalogue replacing the built-in jobs")

	return cfg
}

// Finish derives the fields that depend on more than one flag: the warehouse
// DSN and the job list.
func (c *Config) Finish(getenv func(string) string) error {
	if c.WarehouseDSN == "" && strings.EqualFold(c.WarehouseKind, "mssql") && c.SQLServer != "" {
		c.WarehouseDSN = SQLServerDSN(c.SQLServer, c.SQLUser, c.SQLPassword, c.SQLDatabase)
	}
	c.NotifyTo = splitList(strings.Join(c.NotifyTo, ","))

	if c.JobsFile != "" {
		jobs, err := LoadJobsFile(c.JobsFile)
		if err != nil {
			return err
		}
		c.Jobs = jobs
		return nil
	}
	c.Jobs = BuiltinJobs(getenv)
	return nil
}

// LoadFromArgs defines flags on fs, parses args and finishes the Config.
// The .env file named by --env-file (or ENV_FILE) is merged under getenv.
func LoadFromArgs(fs *pflag.FlagSet, getenv func(string) string, args []string) (*Config, error) {
	getenv, err := WithEnvFile(getenv, EnvFileArg(args, getenv))
	if err != nil {
		return nil, err
	}
	cfg := Define(fs, getenv)
	if args == nil {
		args = []string{}
	}
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Finish(getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EnvFileArg finds --env-file in args, falling back to ENV_FILE.
func EnvFileArg(args []string, getenv func(string) string) string {
	for i, a := range args {
		if v, ok := strings.CutPrefix(a, "--env-file="); ok {
			return v
		}
		if a == "--env-file" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return getenv("ENV_FILE")
}

// WithEnvFile layers a .env file under getenv: process values win, the file
// fills the gaps. An empty path returns getenv unchanged.
func WithEnvFile(getenv func(string) string, path string) (func(string) string, error) {
	if path == "" {
		return getenv, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read env file %s: %w", path, err)
	}
	file := make(map[string]string, len(v.AllKeys()))
	for _, k := range v.AllKeys() {
		file[strings.ToUpper(k)] = v.GetString(k)
	}
	return func(k string) string {
		if val := getenv(k); val != "" {
			return val
		}
		return file[k]
	}, nil
}

// SQLServerDSN builds a sqlserver:// URL from discrete settings.
func SQLServerDSN(server, user, password, database string) string {
	u := &url.URL{Scheme: "sqlserver", Host: server}
	if user != "" {
		u.User = url.UserPassword(user, password)
	}
	q := url.Values{}
	if database != "" {
		q.Set("database", database)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "xxx"
	}
	c.AWSSecretAccessKey = mask(c.AWSSecretAccessKey)
	c.AWSSessionToken = mask(c.AWSSessionToken)
	c.SQLPassword = mask(c.SQLPassword)
	c.SMTPPassword = mask(c.SMTPPassword)
	if u, err := url.Parse(c.WarehouseDSN); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxx")
			c.WarehouseDSN = u.String()
		}
	}
	return c
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// durationOr parses v as a Go duration or a bare number of milliseconds.
func durationOr(v string, d time.Duration) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	if x, err := time.ParseDuration(v); err == nil {
		return x
	}
	return d
}
