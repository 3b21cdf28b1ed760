package heartbeat

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLine(t *testing.T) {
	at := time.Date(2026, 2, 10, 18, 12, 5, 123456789, time.FixedZone("CET", 3600))
	assert.Equal(t, "2026-02-10 17:12:05.123456789 UTC | Fetched 42 departures\n", Line(at, 42))
	assert.Equal(t, "2026-02-10 17:12:05.123456789 UTC | Fetched 0 departures\n", Line(at, 0))
}

func TestWriter_AppendsAndCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "heartbeat.log")
	w := NewWriter(path)
	w.now = func() time.Time { return time.Date(2026, 2, 10, 17, 0, 0, 0, time.UTC) }

	require.NoError(t, w.Beat(3))
	require.NoError(t, w.Beat(0))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"2026-02-10 17:00:00.000000000 UTC | Fetched 3 departures\n"+
			"2026-02-10 17:00:00.000000000 UTC | Fetched 0 departures\n",
		string(data))
}

func TestWriter_DirectoryBlocked(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	err := NewWriter(filepath.Join(blocker, "heartbeat.log")).Beat(1)
	assert.Error(t, err)
}
