package job

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tastewell/harvester/internal/harvest"
)

// Enqueuer hands job references to the worker pool. Satisfied by the
// dispatcher and by the queue itself.
type Enqueuer interface {
	Enqueue(ctx context.Context, item harvest.QueueItem) error
}

// Sweeper periodically re-enqueues jobs the workers should pick up:
// pending jobs that never reached the queue (process restarts, enqueue
// failures) and failed jobs whose retry time has arrived.
type Sweeper struct {
	jobs   harvest.JobStore
	queue  Enqueuer
	clock  harvest.Clock
	logger *zap.Logger

	interval time.Duration
	batch    int
}

// NewSweeper creates a Sweeper. Batch bounds how many jobs each category
// contributes per sweep.
func NewSweeper(jobs harvest.JobStore, queue Enqueuer, clock harvest.Clock, logger *zap.Logger, interval time.Duration, batch int) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batch <= 0 {
		batch = 50
	}
	return &Sweeper{
		jobs:     jobs,
		queue:    queue,
		clock:    clock,
		logger:   logger,
		interval: interval,
		batch:    batch,
	}
}

// Sweep enqueues pending and due-retryable jobs once and returns how
// many it queued. Workers re-run whatever lands on the queue; jobs that
// were already queued fail their duplicate run harmlessly because the
// runner only proceeds from pending or failed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.clock.Now()

	pending := harvest.StatusPending
	pendingJobs, err := s.jobs.ListJobs(ctx, harvest.JobFilter{Status: &pending, Limit: s.batch})
	if err != nil {
		return 0, fmt.Errorf("list pending jobs: %w", err)
	}
	retryable, err := s.jobs.ListJobs(ctx, harvest.JobFilter{RetryableAt: &now, Limit: s.batch})
	if err != nil {
		return 0, fmt.Errorf("list retryable jobs: %w", err)
	}

	seen := make(map[uuid.UUID]struct{}, len(pendingJobs)+len(retryable))
	queued := 0
	for _, job := range append(pendingJobs, retryable...) {
		if _, ok := seen[job.ID]; ok {
			continue
		}
		seen[job.ID] = struct{}{}
		if err := s.queue.Enqueue(ctx, harvest.QueueItem{JobID: job.ID, EnqueuedAt: now}); err != nil {
			return queued, fmt.Errorf("enqueue job %s: %w", job.ID, err)
		}
		queued++
	}
	return queued, nil
}

// Run sweeps on the configured interval until the context ends.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		queued, err := s.Sweep(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("job sweep failed", zap.Error(err))
			continue
		}
		if queued > 0 {
			s.logger.Info("job sweep queued work", zap.Int("jobs", queued))
		}
	}
}
