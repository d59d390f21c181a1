package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/tastewell/harvester/internal/harvest"
)

func jobRowColumns() []string {
	return []string{
		"id", "policy_id", "domain", "source_url", "raw_text", "status",
		"attempt_count", "max_attempts", "parse_strategy", "confidence",
		"failure_class", "error", "recipe_id", "duplicate", "created_at",
		"updated_at", "last_attempt_at", "next_retry_at",
	}
}

func TestCreateJobInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStore(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	confidence := 0.81
	strategy := harvest.Strategy{Kind: harvest.KindJSONLD, Bucket: harvest.BucketHigh}
	job := &harvest.Job{
		ID:           uuid.New(),
		PolicyID:     "punchdrink",
		Domain:       "punchdrink.com",
		SourceURL:    "https://punchdrink.com/recipes/negroni/",
		Status:       harvest.StatusSucceeded,
		AttemptCount: 1,
		MaxAttempts:  3,
		Strategy:     &strategy,
		Confidence:   &confidence,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	label := "jsonld@high"
	mock.ExpectExec("INSERT INTO harvest_jobs").
		WithArgs(
			job.ID.String(),
			job.PolicyID,
			job.Domain,
			job.SourceURL,
			job.RawText,
			string(job.Status),
			job.AttemptCount,
			job.MaxAttempts,
			&label,
			job.Confidence,
			(*string)(nil),
			(*string)(nil),
			(*string)(nil),
			job.Duplicate,
			job.CreatedAt,
			job.UpdatedAt,
			job.LastAttemptAt,
			job.NextRetryAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateJob(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobDecodesStrategy(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStore(mock)
	require.NoError(t, err)

	id := uuid.New()
	now := time.Unix(1700000000, 0).UTC()
	label := "recovery:jsonld-incomplete:domain_dom@medium"
	confidence := 0.66

	mock.ExpectQuery("SELECT (.+) FROM harvest_jobs WHERE id").
		WithArgs(id.String()).
		WillReturnRows(pgxmock.NewRows(jobRowColumns()).AddRow(
			id.String(), "imbibe", "imbibemagazine.com",
			"https://imbibemagazine.com/recipe/negroni/", "", "succeeded",
			1, 3, &label, &confidence, (*string)(nil), (*string)(nil),
			(*string)(nil), false, now, now, (*time.Time)(nil), (*time.Time)(nil),
		))

	job, err := store.GetJob(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, harvest.StatusSucceeded, job.Status)
	require.NotNil(t, job.Strategy)
	require.True(t, job.Strategy.Recovered)
	require.Equal(t, harvest.KindDomainDOM, job.Strategy.Kind)
	require.Equal(t, "jsonld-incomplete", job.Strategy.RecoveryClass)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStore(mock)
	require.NoError(t, err)

	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM harvest_jobs WHERE id").
		WithArgs(id.String()).
		WillReturnRows(pgxmock.NewRows(jobRowColumns()))

	_, err = store.GetJob(context.Background(), id)
	require.ErrorIs(t, err, harvest.ErrJobNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListJobsRetryableFilter(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStore(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	id := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM harvest_jobs WHERE status = 'failed' AND attempt_count < max_attempts").
		WithArgs(now, 20).
		WillReturnRows(pgxmock.NewRows(jobRowColumns()).AddRow(
			id.String(), "bbcgoodfood", "bbcgoodfood.com",
			"https://www.bbcgoodfood.com/recipes/mojito", "", "failed",
			1, 3, (*string)(nil), (*float64)(nil), (*string)(nil), (*string)(nil),
			(*string)(nil), false, now, now, (*time.Time)(nil), (*time.Time)(nil),
		))

	jobs, err := store.ListJobs(context.Background(), harvest.JobFilter{RetryableAt: &now, Limit: 20})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, id, jobs[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateJobNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStore(mock)
	require.NoError(t, err)

	job := &harvest.Job{ID: uuid.New(), Status: harvest.StatusFailed, UpdatedAt: time.Now().UTC()}
	mock.ExpectExec("UPDATE harvest_jobs SET").
		WithArgs(
			job.ID.String(), string(job.Status), job.AttemptCount,
			(*string)(nil), job.Confidence, (*string)(nil), (*string)(nil),
			(*string)(nil), job.Duplicate, job.UpdatedAt, job.LastAttemptAt,
			job.NextRetryAt,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.UpdateJob(context.Background(), job)
	require.ErrorIs(t, err, harvest.ErrJobNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
