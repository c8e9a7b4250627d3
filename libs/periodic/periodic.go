// Package periodic runs idempotent tasks on a cron-like cadence. Overlapping runs of the
// same task are skipped and panics are recovered, so each run can be retried on the
// next tick.
package periodic

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type TaskFunc func(ctx context.Context) error

type Runner struct {
	cron   *cron.Cron
	logger *slog.Logger
}

func NewRunner(logger *slog.Logger) *Runner {
	cl := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelWarn))
	return &Runner{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
	}
}

// Add schedules fn under spec ("@every 1m", "*/5 * * * *"). ctx is handed to every run.
func (r *Runner) Add(ctx context.Context, spec, name string, fn TaskFunc) error {
	_, err := r.cron.AddFunc(spec, func() {
		if ctx.Err() != nil {
			return
		}
		began := time.Now()
		if err := fn(ctx); err != nil {
			r.logger.Error("periodic task failed", "task", name, "err", err, "duration", time.Since(began))
			return
		}
		r.logger.Debug("periodic task done", "task", name, "duration", time.Since(began))
	})
	return err
}

// Run starts the scheduler and blocks until ctx is done and in-flight runs finish.
func (r *Runner) Run(ctx context.Context) {
	r.cron.Start()
	<-ctx.Done()
	<-r.cron.Stop().Done()
}
