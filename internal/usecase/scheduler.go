package usecase

import (
	"context"
	"log/slog"
	"time"

	"SignalPipeline/internal/config"
	"SignalPipeline/internal/logging"
	"SignalPipeline/internal/ports"
)

// Runner ties the pipeline to a scheduler for recurring batch mode.
type Runner struct {
	pipeline  *Pipeline
	scheduler ports.Scheduler
	teams     []config.TeamConfig
	logger    *slog.Logger
}

// NewRunner builds the scheduled-mode driver.
func NewRunner(pipeline *Pipeline, scheduler ports.Scheduler, teams []config.TeamConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runner{pipeline: pipeline, scheduler: scheduler, teams: teams, logger: logger}
}

// Start begins recurring batch runs. Overlap is impossible: each tick's job
// runs to completion before the scheduler callback returns.
func (r *Runner) Start(ctx context.Context) error {
	return r.scheduler.Start(ctx, func(t time.Time) {
		r.logger.Info("scheduled batch", "tick", t.Format(time.RFC3339))
		if err := r.pipeline.ProcessAllTeams(ctx, r.teams); err != nil {
			r.logger.Error("scheduled batch failed", "error", err)
		}
	})
}

// Stop halts scheduling. In-flight batch work finishes via context cancellation.
func (r *Runner) Stop(ctx context.Context) error {
	return r.scheduler.Stop(ctx)
}
