// Package memory provides mutex-guarded in-memory stores for development
// and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/tastewell/harvester/internal/harvest"
)

// JobStore keeps harvest jobs in a map.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]harvest.Job
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[uuid.UUID]harvest.Job)}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job *harvest.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, id uuid.UUID) (*harvest.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, harvest.ErrJobNotFound
	}
	out := cloneJob(&job)
	return &out, nil
}

// UpdateJob replaces the stored job.
func (s *JobStore) UpdateJob(_ context.Context, job *harvest.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return harvest.ErrJobNotFound
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// ListJobs returns jobs matching the filter, newest first.
func (s *JobStore) ListJobs(_ context.Context, filter harvest.JobFilter) ([]*harvest.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*harvest.Job
	for id := range s.jobs {
		job := s.jobs[id]
		if filter.Status != nil && job.Status != *filter.Status {
			continue
		}
		if filter.PolicyID != "" && job.PolicyID != filter.PolicyID {
			continue
		}
		if filter.RetryableAt != nil && !job.RetryableAt(*filter.RetryableAt) {
			continue
		}
		copied := cloneJob(&job)
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ActiveJobForURL returns a pending or running job for the URL under the
// policy, or ErrJobNotFound.
func (s *JobStore) ActiveJobForURL(_ context.Context, policyID, sourceURL string) (*harvest.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id := range s.jobs {
		job := s.jobs[id]
		if job.PolicyID != policyID || job.SourceURL != sourceURL {
			continue
		}
		if job.Status == harvest.StatusPending || job.Status == harvest.StatusRunning {
			copied := cloneJob(&job)
			return &copied, nil
		}
	}
	return nil, harvest.ErrJobNotFound
}

func cloneJob(job *harvest.Job) harvest.Job {
	out := *job
	if job.Strategy != nil {
		strategy := *job.Strategy
		out.Strategy = &strategy
	}
	out.Confidence = cloneFloat(job.Confidence)
	if job.RecipeID != nil {
		id := *job.RecipeID
		out.RecipeID = &id
	}
	out.LastAttemptAt = cloneTime(job.LastAttemptAt)
	out.NextRetryAt = cloneTime(job.NextRetryAt)
	return out
}
