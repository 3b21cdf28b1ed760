package sink

import (
	"context"
	"fmt"
	"io"
	"os"

	"timetable2parquet/pkg/types"

	"github.com/gocarina/gocsv"
)

// CSVSink prints batches as CSV instead of persisting them. Used for dry runs.
type CSVSink struct {
	out io.Writer
}

// NewCSVSink writes to out, or stdout when out is nil.
func NewCSVSink(out io.Writer) *CSVSink {
	if out == nil {
		out = os.Stdout
	}
	return &CSVSink{out: out}
}

func (s *CSVSink) Write(_ context.Context, deps []types.Departure) (string, error) {
	if len(deps) == 0 {
		return "", nil
	}
	if err := gocsv.Marshal(deps, s.out); err != nil {
		return "", &SinkError{Path: "stdout", Err: fmt.Errorf("failed to marshal CSV: %w", err)}
	}
	return "stdout", nil
}
