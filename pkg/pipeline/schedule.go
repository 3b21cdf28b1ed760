package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"timetable2parquet/pkg/gate"

	"github.com/robfig/cron/v3"
)

// cronLogger routes cron's own logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

// RunScheduled runs once immediately and then on every tick of spec (standard
// five-field cron) until ctx is cancelled. A tick that fires while the
// previous run is still going is skipped. Gated ticks are logged and the
// schedule keeps going.
func (p *Pipeline) RunScheduled(ctx context.Context, spec string) error {
	logger := cronLogger{logger: slog.With("component", "scheduler")}

	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	job := cron.FuncJob(func() {
		result, err := p.RunOnce(ctx)
		LogFailure(result, err)
		if result.State == gate.Gated {
			slog.Info("Tick skipped, row limit reached", "run_id", result.RunID, "row_count", result.Count)
		}
	})

	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	id := c.Schedule(schedule, job)

	c.Start()
	slog.Info("Scheduler started", "schedule", spec, "next", schedule.Next(time.Now()))

	// Immediate first run goes through the wrapped entry so it cannot
	// overlap a tick.
	var first sync.WaitGroup
	first.Add(1)
	go func() {
		defer first.Done()
		c.Entry(id).WrappedJob.Run()
	}()

	<-ctx.Done()

	stopped := c.Stop()
	<-stopped.Done()
	first.Wait()
	slog.Info("Scheduler stopped")

	return ctx.Err()
}
