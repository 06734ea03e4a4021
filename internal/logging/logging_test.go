package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineFormatter(t *testing.T) {
	t.Parallel()

	e := &log.Entry{
		Time:    time.Date(2024, 7, 26, 6, 0, 1, 0, time.UTC),
		Level:   log.WarnLevel,
		Message: "loaded",
		Data:    log.Fields{"rows": 3, "job": "Time Entries", "run_id": "r1"},
	}
	out, err := LineFormatter{}.Format(e)
	require.NoError(t, err)
	assert.Equal(t, "2024-07-26 06:00:01 WARNING loaded job=\"Time Entries\" rows=3 run_id=r1\n", string(out))
}

// TestInit touches the global logger, so it does not run in parallel.
func TestInit(t *testing.T) {
	prevOut, prevLevel, prevFmt := log.StandardLogger().Out, log.GetLevel(), log.StandardLogger().Formatter
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetLevel(prevLevel)
		log.SetFormatter(prevFmt)
	})

	_, err := Init(Options{Level: "loud"})
	require.Error(t, err)

	var stderr bytes.Buffer
	file := filepath.Join(t.TempDir(), "logs", "snapshots.log")
	closer, err := Init(Options{Level: "debug", File: file, Stderr: &stderr})
	require.NoError(t, err)
	assert.Equal(t, log.DebugLevel, log.GetLevel())

	log.WithField("job", "Prebills").Debug("hello")
	require.NoError(t, closer.Close())

	assert.Contains(t, stderr.String(), "DEBUG hello job=Prebills")
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "DEBUG hello job=Prebills")
}
