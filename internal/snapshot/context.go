package snapshot

import (
	"context"

	log "github.com/sirupsen/logrus"
)

type runIDKey struct{}

// WithRunID tags ctx with the id of the current run.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunID returns the run id carried by ctx, or "".
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// Logger returns a log entry carrying the run id of ctx, if any.
func Logger(ctx context.Context) *log.Entry {
	if id := RunID(ctx); id != "" {
		return log.WithField("run_id", id)
	}
	return log.NewEntry(log.StandardLogger())
}
