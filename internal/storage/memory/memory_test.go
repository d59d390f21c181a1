package memory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tastewell/harvester/internal/harvest"
	"github.com/tastewell/harvester/internal/policy"
)

func TestJobStoreLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewJobStore()
	now := time.Now().UTC()

	job := &harvest.Job{
		ID:          uuid.New(),
		PolicyID:    "allrecipes",
		SourceURL:   "https://www.allrecipes.com/recipe/1/",
		Status:      harvest.StatusPending,
		MaxAttempts: 3,
		CreatedAt:   now,
	}
	require.NoError(t, store.CreateJob(ctx, job))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, harvest.StatusPending, got.Status)

	// Returned jobs are copies: mutating them must not touch the store.
	got.Status = harvest.StatusRunning
	again, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, harvest.StatusPending, again.Status)

	job.Status = harvest.StatusFailed
	job.AttemptCount = 1
	retryAt := now.Add(time.Minute)
	job.NextRetryAt = &retryAt
	require.NoError(t, store.UpdateJob(ctx, job))

	_, err = store.GetJob(ctx, uuid.New())
	require.ErrorIs(t, err, harvest.ErrJobNotFound)
}

func TestJobStoreListFilters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewJobStore()
	now := time.Now().UTC()

	pending := &harvest.Job{
		ID: uuid.New(), PolicyID: "allrecipes", Status: harvest.StatusPending,
		MaxAttempts: 3, CreatedAt: now,
	}
	due := &harvest.Job{
		ID: uuid.New(), PolicyID: "punchdrink", Status: harvest.StatusFailed,
		AttemptCount: 1, MaxAttempts: 3, CreatedAt: now.Add(time.Second),
	}
	exhausted := &harvest.Job{
		ID: uuid.New(), PolicyID: "punchdrink", Status: harvest.StatusFailed,
		AttemptCount: 3, MaxAttempts: 3, CreatedAt: now.Add(2 * time.Second),
	}
	for _, j := range []*harvest.Job{pending, due, exhausted} {
		require.NoError(t, store.CreateJob(ctx, j))
	}

	status := harvest.StatusPending
	jobs, err := store.ListJobs(ctx, harvest.JobFilter{Status: &status})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, pending.ID, jobs[0].ID)

	// Retryable: failed with attempts left and no future retry time.
	jobs, err = store.ListJobs(ctx, harvest.JobFilter{RetryableAt: &now})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, due.ID, jobs[0].ID)

	jobs, err = store.ListJobs(ctx, harvest.JobFilter{PolicyID: "punchdrink"})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	// Newest first.
	require.Equal(t, exhausted.ID, jobs[0].ID)
}

func TestJobStoreActiveJobForURL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewJobStore()

	job := &harvest.Job{
		ID: uuid.New(), PolicyID: "imbibe", SourceURL: "https://imbibemagazine.com/recipe/negroni/",
		Status: harvest.StatusRunning, MaxAttempts: 3,
	}
	require.NoError(t, store.CreateJob(ctx, job))

	got, err := store.ActiveJobForURL(ctx, "imbibe", job.SourceURL)
	require.NoError(t, err)
	require.Equal(t, job.ID, got.ID)

	_, err = store.ActiveJobForURL(ctx, "imbibe", "https://imbibemagazine.com/recipe/other/")
	require.ErrorIs(t, err, harvest.ErrJobNotFound)

	job.Status = harvest.StatusSucceeded
	require.NoError(t, store.UpdateJob(ctx, job))
	_, err = store.ActiveJobForURL(ctx, "imbibe", job.SourceURL)
	require.ErrorIs(t, err, harvest.ErrJobNotFound)
}

func TestPolicyStoreDefaultsAndUpdate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewPolicyStore()

	policies, err := store.ListPolicies(ctx)
	require.NoError(t, err)
	require.Len(t, policies, 6)

	p, err := store.GetPolicy(ctx, "punchdrink")
	require.NoError(t, err)
	require.Equal(t, "punchdrink.com", p.Domain)

	p.ParserSettings = p.ParserSettings.Merge(&policy.ParserSettings{
		ConfidenceBias: 0.05,
	})
	require.NoError(t, store.UpdatePolicy(ctx, p))

	got, err := store.GetPolicy(ctx, "punchdrink")
	require.NoError(t, err)
	require.InDelta(t, 0.05, got.ParserSettings.ConfidenceBias, 1e-9)

	_, err = store.GetPolicy(ctx, "nonexistent")
	require.ErrorIs(t, err, harvest.ErrPolicyNotFound)
}

func TestRecipeStoreSourceLookup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewRecipeStore()

	rec := &harvest.RecipeRecord{
		ID:         uuid.New(),
		Name:       "Negroni",
		SourceURL:  "https://punchdrink.com/recipes/negroni/",
		SourceURLs: []string{"https://punchdrink.com/recipes/negroni/"},
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, store.CreateRecipe(ctx, rec))

	rec.SourceURLs = append(rec.SourceURLs, "https://imbibemagazine.com/recipe/negroni/")
	require.NoError(t, store.UpdateRecipe(ctx, rec))

	got, err := store.GetBySourceURL(ctx, "https://imbibemagazine.com/recipe/negroni/")
	require.NoError(t, err)
	require.Equal(t, rec.ID, got.ID)

	_, err = store.GetBySourceURL(ctx, "https://example.com/recipe/unknown/")
	require.ErrorIs(t, err, harvest.ErrRecipeNotFound)
}

func TestBlobStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "snapshots/job-1/abc.html", "text/html", strings.NewReader("<html></html>"))
	require.NoError(t, err)
	require.Equal(t, "memory://snapshots/job-1/abc.html", uri)

	data, ok := store.GetObject("snapshots/job-1/abc.html")
	require.True(t, ok)
	require.Equal(t, "<html></html>", string(data))
}
