// Package notify sends the run report by email.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/rlscode/athena-snapshop/internal/snapshot"
)

// SMTPConfig describes the relay and the envelope.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	To       []string
}

// Enabled reports whether a sender and at least one recipient are set.
func (c SMTPConfig) Enabled() bool {
	return strings.TrimSpace(c.From) != "" && len(c.To) > 0
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer is a snapshot.Notifier that mails an HTML summary.
type Mailer struct {
	cfg  SMTPConfig
	send sendFunc
}

// NewMailer returns a Mailer for cfg. Port 0 means 25.
func NewMailer(cfg SMTPConfig) *Mailer {
	if cfg.Port == 0 {
		cfg.Port = 25
	}
	return &Mailer{cfg: cfg, send: smtp.SendMail}
}

// Notify mails r. Without a sender or recipients it logs and returns nil.
func (m *Mailer) Notify(ctx context.Context, r snapshot.Report) error {
	logger := snapshot.Logger(ctx)
	if !m.cfg.Enabled() {
		logger.Warn("notify: NOTIFY_FROM or NOTIFY_TO not set; no email sent")
		return nil
	}

	body, err := RenderHTML(r)
	if err != nil {
		return err
	}
	msg := m.message(Subject(r), body, r.FinishedAt)

	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	}
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	if err := m.send(addr, auth, m.cfg.From, m.cfg.To, msg); err != nil {
		return fmt.Errorf("notify: send to %s: %w", addr, err)
	}
	logger.WithField("to", strings.Join(m.cfg.To, ",")).Info("notify: summary sent")
	return nil
}

func (m *Mailer) message(subject, html string, at time.Time) []byte {
	if at.IsZero() {
		at = time.Now()
	}
	var b bytes.Buffer
	hdr := func(k, v string) { fmt.Fprintf(&b, "%s: %s\r\n", k, v) }
	hdr("From", m.cfg.From)
	hdr("To", strings.Join(m.cfg.To, ", "))
	hdr("Subject", mime.QEncoding.Encode("utf-8", subject))
	hdr("Date", at.Format(time.RFC1123Z))
	hdr("Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), m.cfg.Host))
	hdr("MIME-Version", "1.0")
	hdr("Content-Type", `text/html; charset="UTF-8"`)
	b.WriteString("\r\n")
	b.WriteString(html)
	return b.Bytes()
}

// Subject renders "[Snapshots] <date> - <n> OK / <m> failed"; the failed part
// is omitted when nothing failed.
func Subject(r snapshot.Report) string {
	s := fmt.Sprintf("[Snapshots] %s - %d OK", r.SnapshotDate.Format("2006-01-02"), len(r.Successes))
	if n := len(r.Failures); n > 0 {
		s += fmt.Sprintf(" / %d failed", n)
	}
	return s
}

var reportTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"comma": humanize.Comma,
	"ts":    func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
	"day":   func(t time.Time) string { return t.Format("2006-01-02") },
	"dur":   func(d time.Duration) string { return d.Round(time.Millisecond).String() },
}).Parse(`<h2>Snapshot report</h2>
<p><b>Run:</b> {{.RunID}}<br/>
   <b>Started:</b> {{ts .StartedAt}}<br/>
   <b>Finished:</b> {{ts .FinishedAt}}</p>
<h3>Results</h3>
<ul>{{range .Successes}}
<li>{{.JobName}}: {{comma .RowsInserted}} rows in {{.DestinationTable}} (snapshot {{day .SnapshotDate}}, {{dur .Duration}}{{with .Fingerprint}}, fingerprint {{printf "%016x" .}}{{end}})</li>{{end}}
</ul>
{{if .Failures}}<h3>Errors</h3>
<ul>{{range .Failures}}
<li>{{.JobName}}: {{.Err}}</li>{{end}}
</ul>{{else}}<p>No errors.</p>{{end}}
`))

// RenderHTML renders the email body for r. Job names and error text are
// HTML-escaped.
func RenderHTML(r snapshot.Report) (string, error) {
	var b bytes.Buffer
	if err := reportTmpl.Execute(&b, r); err != nil {
		return "", fmt.Errorf("notify: render: %w", err)
	}
	return b.String(), nil
}

// LogNotifier writes the summary to the log instead of mailing it.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, r snapshot.Report) error {
	logger := snapshot.Logger(ctx)
	for _, s := range r.Successes {
		logger.Info(s.String())
	}
	for _, f := range r.Failures {
		logger.WithField("job", f.JobName).Errorf("failed: %v", f.Err)
	}
	logger.Info(Subject(r))
	return nil
}

var _ snapshot.Notifier = (*Mailer)(nil)
var _ snapshot.Notifier = LogNotifier{}
