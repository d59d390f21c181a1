// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tastewell/harvester/internal/harvest"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// NewPool builds a pgx pool from the config.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// JobStore persists harvest jobs in Postgres.
type JobStore struct {
	pool dbPool
}

// NewJobStore constructs a JobStore from an existing pool.
func NewJobStore(pool dbPool) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const jobColumns = `id, policy_id, domain, source_url, raw_text, status,
attempt_count, max_attempts, parse_strategy, confidence, failure_class,
error, recipe_id, duplicate, created_at, updated_at, last_attempt_at,
next_retry_at`

// CreateJob inserts a job row.
func (s *JobStore) CreateJob(ctx context.Context, job *harvest.Job) error {
	query := fmt.Sprintf(`
INSERT INTO harvest_jobs (%s)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`, jobColumns)
	if _, err := s.pool.Exec(ctx, query, jobArgs(job)...); err != nil {
		return fmt.Errorf("insert harvest job: %w", err)
	}
	return nil
}

// UpdateJob rewrites the mutable job columns.
func (s *JobStore) UpdateJob(ctx context.Context, job *harvest.Job) error {
	query := `
UPDATE harvest_jobs SET
	status = $2, attempt_count = $3, parse_strategy = $4, confidence = $5,
	failure_class = $6, error = $7, recipe_id = $8, duplicate = $9,
	updated_at = $10, last_attempt_at = $11, next_retry_at = $12
WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query,
		job.ID.String(),
		string(job.Status),
		job.AttemptCount,
		strategyLabel(job.Strategy),
		job.Confidence,
		nullString(job.FailureClass),
		nullString(job.Error),
		uuidString(job.RecipeID),
		job.Duplicate,
		job.UpdatedAt,
		job.LastAttemptAt,
		job.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("update harvest job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return harvest.ErrJobNotFound
	}
	return nil
}

// GetJob fetches one job by ID.
func (s *JobStore) GetJob(ctx context.Context, id uuid.UUID) (*harvest.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM harvest_jobs WHERE id = $1`, jobColumns)
	job, err := scanJob(s.pool.QueryRow(ctx, query, id.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, harvest.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select harvest job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs matching the filter, newest first.
func (s *JobStore) ListJobs(ctx context.Context, filter harvest.JobFilter) ([]*harvest.Job, error) {
	var (
		conditions []string
		args       []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Status != nil {
		conditions = append(conditions, "status = "+arg(string(*filter.Status)))
	}
	if filter.PolicyID != "" {
		conditions = append(conditions, "policy_id = "+arg(filter.PolicyID))
	}
	if filter.RetryableAt != nil {
		conditions = append(conditions, "status = 'failed'")
		conditions = append(conditions, "attempt_count < max_attempts")
		conditions = append(conditions, "(next_retry_at IS NULL OR next_retry_at <= "+arg(*filter.RetryableAt)+")")
	}
	query := fmt.Sprintf(`SELECT %s FROM harvest_jobs`, jobColumns)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list harvest jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*harvest.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan harvest job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate harvest jobs: %w", err)
	}
	return jobs, nil
}

// ActiveJobForURL returns a pending or running job for the URL under the
// policy, or ErrJobNotFound.
func (s *JobStore) ActiveJobForURL(ctx context.Context, policyID, sourceURL string) (*harvest.Job, error) {
	query := fmt.Sprintf(`
SELECT %s FROM harvest_jobs
WHERE policy_id = $1 AND source_url = $2 AND status IN ('pending', 'running')
LIMIT 1`, jobColumns)
	job, err := scanJob(s.pool.QueryRow(ctx, query, policyID, sourceURL))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, harvest.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select active harvest job: %w", err)
	}
	return job, nil
}

func jobArgs(job *harvest.Job) []any {
	return []any{
		job.ID.String(),
		job.PolicyID,
		job.Domain,
		job.SourceURL,
		job.RawText,
		string(job.Status),
		job.AttemptCount,
		job.MaxAttempts,
		strategyLabel(job.Strategy),
		job.Confidence,
		nullString(job.FailureClass),
		nullString(job.Error),
		uuidString(job.RecipeID),
		job.Duplicate,
		job.CreatedAt,
		job.UpdatedAt,
		job.LastAttemptAt,
		job.NextRetryAt,
	}
}

func scanJob(row pgx.Row) (*harvest.Job, error) {
	var (
		job          harvest.Job
		id           string
		status       string
		strategy     *string
		failureClass *string
		errText      *string
		recipeID     *string
	)
	err := row.Scan(
		&id,
		&job.PolicyID,
		&job.Domain,
		&job.SourceURL,
		&job.RawText,
		&status,
		&job.AttemptCount,
		&job.MaxAttempts,
		&strategy,
		&job.Confidence,
		&failureClass,
		&errText,
		&recipeID,
		&job.Duplicate,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.LastAttemptAt,
		&job.NextRetryAt,
	)
	if err != nil {
		return nil, err
	}
	job.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse job id: %w", err)
	}
	job.Status = harvest.JobStatus(status)
	if strategy != nil && *strategy != "" {
		parsed, err := harvest.ParseLabel(*strategy)
		if err != nil {
			return nil, fmt.Errorf("decode parse strategy: %w", err)
		}
		job.Strategy = &parsed
	}
	if failureClass != nil {
		job.FailureClass = *failureClass
	}
	if errText != nil {
		job.Error = *errText
	}
	if recipeID != nil && *recipeID != "" {
		rid, err := uuid.Parse(*recipeID)
		if err != nil {
			return nil, fmt.Errorf("parse recipe id: %w", err)
		}
		job.RecipeID = &rid
	}
	return &job, nil
}

func strategyLabel(s *harvest.Strategy) *string {
	if s == nil {
		return nil
	}
	label := s.Label()
	return &label
}

func nullString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	v := id.String()
	return &v
}
