// Package logging configures the process-wide logrus logger.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects level and destinations.
type Options struct {
	Level string // logrus level name; empty means info
	File  string // optional rotating log file, written in addition to Stderr
	// Stderr defaults to os.Stderr.
	Stderr io.Writer
}

// LineFormatter renders
//
//	2024-07-26 06:00:01 INFO loaded job=Prebills rows=120 run_id=...
//
// with fields sorted by key.
type LineFormatter struct{}

func (LineFormatter) Format(e *log.Entry) ([]byte, error) {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s %s", e.Time.Format("2006-01-02 15:04:05"), strings.ToUpper(e.Level.String()), e.Message)
	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := fmt.Sprint(e.Data[k])
		if strings.ContainsAny(v, " \t\"=") {
			v = fmt.Sprintf("%q", v)
		}
		fmt.Fprintf(&b, " %s=%s", k, v)
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// Init applies opts to the standard logger. The returned closer flushes the
// log file, if any.
func Init(opts Options) (io.Closer, error) {
	lvl := log.InfoLevel
	if opts.Level != "" {
		var err error
		if lvl, err = log.ParseLevel(opts.Level); err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
	}
	out := opts.Stderr
	if out == nil {
		out = os.Stderr
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		rot := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    100, // MB
			MaxBackups: 10,
			MaxAge:     30, // days
		}
		out = io.MultiWriter(out, rot)
		closer = rot
	}

	log.SetLevel(lvl)
	log.SetFormatter(LineFormatter{})
	log.SetOutput(out)
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
