package datadog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlscode/athena-snapshop/internal/metrics"
)

type call struct {
	kind  string
	name  string
	value float64
	tags  []string
}

type fakeClient struct {
	calls   []call
	flushed int
}

func (f *fakeClient) Count(name string, value int64, tags []string, _ float64) error {
	f.calls = append(f.calls, call{"count", name, float64(value), tags})
	return nil
}

func (f *fakeClient) Histogram(name string, value float64, tags []string, _ float64) error {
	f.calls = append(f.calls, call{"histogram", name, value, tags})
	return nil
}

func (f *fakeClient) Flush() error { f.flushed++; return nil }

func TestNewBackend_RequiresAddr(t *testing.T) {
	t.Parallel()

	_, err := NewBackend(Config{})
	require.Error(t, err)
}

// TestNewBackend_UDP verifies a client can be built for a UDP address without
// an agent listening.
func TestNewBackend_UDP(t *testing.T) {
	t.Parallel()

	b, err := NewBackend(Config{Addr: "127.0.0.1:8125", Namespace: "athena.", GlobalTags: []string{"env:test"}})
	require.NoError(t, err)
	require.NotNil(t, b.client)
	require.NoError(t, b.Flush())
}

func TestBackend_ForwardsWithSortedTags(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	b := &Backend{client: fc}

	b.IncCounter(metrics.RowsTotal, 12, metrics.Labels{"kind": "inserted", "job": "Prebills"})
	b.ObserveHistogram(metrics.StepDurationSeconds, 0.5, metrics.Labels{"step": "fetch", "job": "Prebills", "status": "success"})
	require.NoError(t, b.Flush())

	assert.Equal(t, []call{
		{"count", metrics.RowsTotal, 12, []string{"job:Prebills", "kind:inserted"}},
		{"histogram", metrics.StepDurationSeconds, 0.5, []string{"job:Prebills", "status:success", "step:fetch"}},
	}, fc.calls)
	assert.Equal(t, 1, fc.flushed)
}

func TestBackend_NilClientIsNoop(t *testing.T) {
	t.Parallel()

	b := &Backend{}
	b.IncCounter("x", 1, nil)
	b.ObserveHistogram("x", 1, nil)
	assert.NoError(t, b.Flush())
	assert.Nil(t, labelsToTags(nil))
}
