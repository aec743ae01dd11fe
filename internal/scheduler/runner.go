// Package scheduler runs periodic jobs on cron specs.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"flashloan-executor/internal/observability"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Runner wraps a seconds-resolution cron. A job still running when its next
// tick fires is skipped for that tick.
type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

// New creates a runner whose jobs receive baseCtx.
func New(baseCtx context.Context, logger *zap.Logger) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add schedules job under name on spec.
func (r *Runner) Add(name, spec string, job Job) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() { r.run(name, job) })
}

// RunNow runs job once, synchronously, with the same bookkeeping as a tick.
func (r *Runner) RunNow(name string, job Job) {
	r.run(name, job)
}

func (r *Runner) run(name string, job Job) {
	if r.baseCtx.Err() != nil {
		return
	}
	start := time.Now()
	err := job(r.baseCtx)
	observability.RecordJobRun(name, err)
	if err != nil {
		r.logger.Warn("scheduled job failed",
			zap.String("job", name),
			zap.Duration("took", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	r.logger.Debug("scheduled job done", zap.String("job", name), zap.Duration("took", time.Since(start)))
}

// Start begins firing jobs.
func (r *Runner) Start() {
	r.logger.Info("scheduler started", zap.Int("jobs", len(r.cron.Entries())))
	r.cron.Start()
}

// Stop halts the schedule and waits for running jobs.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("scheduler stopped")
}
