// Package heartbeat appends one line per run to a plain-text log.
package heartbeat

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TimeLayout is the timestamp at the start of every line, always in UTC.
const TimeLayout = "2006-01-02 15:04:05.000000000 MST"

// Writer appends heartbeat lines to a file, creating it and its directory
// on first use.
type Writer struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

func NewWriter(path string) *Writer {
	return &Writer{path: path, now: time.Now}
}

// Line renders the heartbeat for n departures fetched at t.
func Line(t time.Time, n int) string {
	return fmt.Sprintf("%s | Fetched %d departures\n", t.UTC().Format(TimeLayout), n)
}

// Beat appends the line for n departures.
func (w *Writer) Beat(n int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("failed to create heartbeat directory: %w", err)
	}

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open heartbeat file: %w", err)
	}

	if _, err := f.WriteString(Line(w.now(), n)); err != nil {
		f.Close()
		return fmt.Errorf("failed to write heartbeat: %w", err)
	}
	return f.Close()
}
