// Package worker implements the job execution loop: each worker drains
// the queue and hands every item to the runner for a single attempt.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/tastewell/harvester/internal/harvest"
	"github.com/tastewell/harvester/internal/job"
	queuememory "github.com/tastewell/harvester/internal/queue/memory"
)

// Worker consumes queue items until the context ends or the queue closes.
type Worker struct {
	queue  harvest.Queue
	runner *job.Runner
	logger *zap.Logger
}

// New creates a Worker.
func New(queue harvest.Queue, runner *job.Runner, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{queue: queue, runner: runner, logger: logger}
}

// Run blocks processing items. Attempt outcomes are recorded on the jobs
// themselves; only infrastructure errors surface here as log lines.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queuememory.ErrClosed) || ctx.Err() != nil {
				return
			}
			w.logger.Error("dequeue failed", zap.Error(err))
			return
		}
		if _, err := w.runner.Run(ctx, item.JobID); err != nil {
			switch {
			case errors.Is(err, job.ErrNotRunnable):
				// Duplicate queue entry; another worker or an inline run got there first.
			case errors.Is(err, job.ErrMaxAttempts):
				w.logger.Warn("job attempts exhausted", zap.String("job_id", item.JobID.String()))
			case errors.Is(err, harvest.ErrJobNotFound):
				w.logger.Warn("queued job vanished", zap.String("job_id", item.JobID.String()))
			default:
				w.logger.Error("job run failed",
					zap.String("job_id", item.JobID.String()),
					zap.Error(err))
			}
		}
	}
}
