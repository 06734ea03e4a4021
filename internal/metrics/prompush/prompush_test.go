package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rlscode/athena-snapshop/internal/metrics"
)

// TestNewBackend validates defaults and required fields.
func TestNewBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		jobName     string
		gatewayURL  string
		wantErr     bool
		wantJobName string
	}{
		{name: "missing gateway URL returns error", jobName: "x", wantErr: true},
		{name: "empty job name uses default", gatewayURL: "http://pushgateway:9091", wantJobName: "athena_snapshot"},
		{name: "explicit job name is preserved", jobName: "snapshots-prod", gatewayURL: "http://pushgateway:9091", wantJobName: "snapshots-prod"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b, err := NewBackend(tt.jobName, tt.gatewayURL)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewBackend error: %v", err)
			}
			if b.jobName != tt.wantJobName {
				t.Fatalf("jobName = %q; want %q", b.jobName, tt.wantJobName)
			}
		})
	}
}

// TestBackend_RecordsSeries verifies the generic metric names land in the
// matching collectors with the snapshot job as a label.
func TestBackend_RecordsSeries(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("", "http://unused")
	if err != nil {
		t.Fatalf("NewBackend error: %v", err)
	}

	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"job": "Prebills", "step": "load", "status": "success"})
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"job": "Prebills", "step": "load", "status": "success"})
	b.IncCounter(metrics.RowsTotal, 120, metrics.Labels{"job": "Prebills", "kind": "inserted"})
	b.IncCounter(metrics.RunTotal, 1, metrics.Labels{"status": "failure"})
	b.IncCounter("unknown_metric", 5, nil)
	b.ObserveHistogram(metrics.StepDurationSeconds, 0.25, metrics.Labels{"job": "Prebills", "step": "load", "status": "success"})
	b.ObserveHistogram(metrics.RunDurationSeconds, 30, nil)

	if got := testutil.ToFloat64(b.stepCounter.WithLabelValues("Prebills", "load", "success")); got != 2 {
		t.Fatalf("step counter = %v; want 2", got)
	}
	if got := testutil.ToFloat64(b.rowCounter.WithLabelValues("Prebills", "inserted")); got != 120 {
		t.Fatalf("row counter = %v; want 120", got)
	}
	if got := testutil.ToFloat64(b.runCounter.WithLabelValues("failure")); got != 1 {
		t.Fatalf("run counter = %v; want 1", got)
	}
	if n := testutil.CollectAndCount(b.stepDuration); n != 1 {
		t.Fatalf("step summary series = %d; want 1", n)
	}
}

// TestFlush_PushesToGateway verifies Flush PUTs the registry under the job
// grouping key.
func TestFlush_PushesToGateway(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		method string
		path   string
		body   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, body = r.Method, r.URL.Path, string(b)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b, err := NewBackend("snapshots", srv.URL)
	if err != nil {
		t.Fatalf("NewBackend error: %v", err)
	}
	b.IncCounter(metrics.RunTotal, 1, metrics.Labels{"status": "success"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodPut {
		t.Fatalf("method = %s; want PUT", method)
	}
	if path != "/metrics/job/snapshots" {
		t.Fatalf("path = %s; want /metrics/job/snapshots", path)
	}
	if !strings.Contains(body, metrics.RunTotal) {
		t.Fatalf("push body does not mention %s", metrics.RunTotal)
	}
}
