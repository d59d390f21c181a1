// Package job runs harvest jobs end to end: fetch, compliance gating,
// the parser cascade with recovery, ingest, and retry bookkeeping.
package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tastewell/harvester/internal/compliance"
	"github.com/tastewell/harvester/internal/fetch"
	"github.com/tastewell/harvester/internal/harvest"
	"github.com/tastewell/harvester/internal/ingest"
	"github.com/tastewell/harvester/internal/parser"
	"github.com/tastewell/harvester/internal/policy"
)

// ErrMaxAttempts is returned when a job has exhausted its attempt budget.
// The job itself is left untouched.
var ErrMaxAttempts = errors.New("max harvest attempts reached")

// ErrNotRunnable is returned for jobs that are running or already
// succeeded; only pending and failed jobs accept another attempt.
var ErrNotRunnable = errors.New("job is not runnable")

var errSourceNotAllowed = errors.New("source not allowed")

// FailureClassCompliance marks jobs rejected by the compliance gate; the
// individual reasons live in the job error text.
const FailureClassCompliance = "compliance-rejected"

// Config bounds job execution and retry backoff.
type Config struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryBase   time.Duration `mapstructure:"retry_base"`
	RetryMax    time.Duration `mapstructure:"retry_max"`
	EventTopic  string        `mapstructure:"event_topic"`
}

// DefaultConfig returns the runner defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		RetryBase:   5 * time.Minute,
		RetryMax:    time.Hour,
		EventTopic:  "harvest-events",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.RetryBase <= 0 {
		c.RetryBase = d.RetryBase
	}
	if c.RetryMax <= 0 {
		c.RetryMax = d.RetryMax
	}
	if c.EventTopic == "" {
		c.EventTopic = d.EventTopic
	}
	return c
}

// Deps are the collaborators a Runner needs. Blobs, Events and Hasher
// are optional; snapshots and events are skipped when absent.
type Deps struct {
	Jobs     harvest.JobStore
	Policies harvest.PolicyStore
	Ingester *ingest.Service
	Fetcher  harvest.Fetcher
	Blobs    harvest.BlobStore
	Events   harvest.Publisher
	Hasher   harvest.Hasher
	Clock    harvest.Clock
}

// Runner executes single attempts of harvest jobs.
type Runner struct {
	deps    Deps
	cascade *parser.Cascade
	logger  *zap.Logger
	cfg     Config
}

// NewRunner builds a Runner.
func NewRunner(deps Deps, cfg Config, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		deps:    deps,
		cascade: parser.NewCascade(),
		logger:  logger,
		cfg:     cfg.withDefaults(),
	}
}

// Event is the payload published after every finished attempt.
type Event struct {
	JobID     uuid.UUID  `json:"job_id"`
	PolicyID  string     `json:"policy_id,omitempty"`
	SourceURL string     `json:"source_url"`
	Status    string     `json:"status"`
	Attempt   int        `json:"attempt"`
	Strategy  string     `json:"strategy,omitempty"`
	RecipeID  *uuid.UUID `json:"recipe_id,omitempty"`
	Duplicate bool       `json:"duplicate,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Run executes one attempt of the job. Attempt failures are recorded on
// the job rather than returned, so the error is non-nil only for store
// problems, a job in a non-runnable state, or an exhausted attempt
// budget; the job is returned alongside the sentinel errors.
func (r *Runner) Run(ctx context.Context, jobID uuid.UUID) (*harvest.Job, error) {
	job, err := r.deps.Jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != harvest.StatusPending && job.Status != harvest.StatusFailed {
		return job, ErrNotRunnable
	}
	if job.AttemptCount >= r.maxAttempts(job) {
		return job, ErrMaxAttempts
	}

	now := r.deps.Clock.Now()
	job.Status = harvest.StatusRunning
	job.Error = ""
	job.AttemptCount++
	job.LastAttemptAt = &now
	job.UpdatedAt = now
	if err := r.deps.Jobs.UpdateJob(ctx, job); err != nil {
		return nil, err
	}

	res, attemptErr := r.attempt(ctx, job)
	if attemptErr != nil {
		job.Status = harvest.StatusFailed
		job.Error = attemptErr.Error()
		job.NextRetryAt = r.nextRetry(job)
		r.logger.Warn("harvest attempt failed",
			zap.String("job_id", job.ID.String()),
			zap.String("source_url", job.SourceURL),
			zap.Int("attempt", job.AttemptCount),
			zap.Error(attemptErr))
	} else {
		recipeID := res.Record.ID
		job.Status = harvest.StatusSucceeded
		job.RecipeID = &recipeID
		job.Duplicate = res.Duplicate
		job.FailureClass = ""
		job.NextRetryAt = nil
		r.logger.Info("harvest attempt succeeded",
			zap.String("job_id", job.ID.String()),
			zap.String("source_url", job.SourceURL),
			zap.Bool("duplicate", res.Duplicate),
			zap.Float64("quality_score", res.QualityScore))
	}
	job.UpdatedAt = r.deps.Clock.Now()
	if err := r.deps.Jobs.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	r.publish(ctx, job)
	return job, nil
}

// attempt performs the fetch-gate-parse-ingest pipeline for one job and
// stamps the strategy tag on it along the way.
func (r *Runner) attempt(ctx context.Context, job *harvest.Job) (*ingest.Result, error) {
	if job.RawText != "" {
		return r.attemptRawText(ctx, job)
	}
	return r.attemptURL(ctx, job)
}

// attemptRawText ingests operator-pasted text. A strategy stamped during
// discovery survives so telemetry keeps the crawl's parser attribution.
func (r *Runner) attemptRawText(ctx context.Context, job *harvest.Job) (*ingest.Result, error) {
	if job.Strategy == nil {
		job.Strategy = &harvest.Strategy{Kind: harvest.KindManualRaw}
	}
	pol, err := r.matchPolicy(ctx, job.SourceURL)
	if err != nil {
		return nil, err
	}
	parsed := parser.ParseRawText(job.RawText, "")
	parsed.SourceURL = job.SourceURL
	return r.deps.Ingester.Ingest(ctx, parsed, pol)
}

func (r *Runner) attemptURL(ctx context.Context, job *harvest.Job) (*ingest.Result, error) {
	res, err := r.deps.Fetcher.Fetch(ctx, job.SourceURL)
	if err != nil {
		class := fetch.ClassifyError(err)
		job.Strategy = &harvest.Strategy{Kind: harvest.KindFetchFailed, FailureClass: class}
		job.FailureClass = class
		return nil, fmt.Errorf("fetch_failed (%s): %w", class, err)
	}
	html := string(res.Body)
	r.archiveSnapshot(ctx, job, res.Body)

	pol, err := r.matchPolicy(ctx, job.SourceURL)
	if err != nil {
		return nil, err
	}
	settings := pol.ParserSettings

	gate := compliance.EvaluateHTML(html, job.SourceURL, settings)
	if !gate.Allowed {
		job.FailureClass = FailureClassCompliance
		return nil, fmt.Errorf("compliance check failed: %s", strings.Join(gate.Reasons, ", "))
	}

	parsed := r.cascade.Parse(html, job.SourceURL, settings)
	if parsed == nil {
		failure := parser.ClassifyParseFailure(parser.NewPage(html, job.SourceURL, settings))
		recovered := r.cascade.ParseWithRecovery(html, job.SourceURL, failure, settings)
		if recovered == nil {
			job.Strategy = &harvest.Strategy{Kind: harvest.KindParseFailed, FailureClass: failure}
			job.FailureClass = failure
			return nil, fmt.Errorf("unable to parse recipe (%s)", failure)
		}
		parsed = recovered
	}

	minConfidence := settings.MinConfidence()
	allowLow := settings.LowConfidenceAllowed()
	if parsed.Confidence < minConfidence && !allowLow {
		recovered := r.cascade.ParseWithRecovery(html, job.SourceURL, parser.FailureLowConfidence, settings)
		if recovered != nil && (recovered.Confidence >= minConfidence || allowLow) {
			parsed = recovered
		} else {
			bucket := harvest.BucketFor(parsed.Confidence)
			job.Strategy = &harvest.Strategy{
				Kind:         harvest.KindParseFailed,
				FailureClass: fmt.Sprintf("%s@%s", parser.FailureLowConfidence, bucket),
			}
			job.FailureClass = parser.FailureLowConfidence
			return nil, fmt.Errorf("unable to parse recipe (%s:%v)", parser.FailureLowConfidence, parsed.Confidence)
		}
	}

	strategy := parsed.Strategy
	strategy.Bucket = harvest.BucketFor(parsed.Confidence)
	confidence := parsed.Confidence
	job.Strategy = &strategy
	job.Confidence = &confidence

	parsed.SourceURL = job.SourceURL
	return r.deps.Ingester.Ingest(ctx, parsed, pol)
}

func (r *Runner) matchPolicy(ctx context.Context, sourceURL string) (*policy.SourcePolicy, error) {
	policies, err := r.deps.Policies.ListPolicies(ctx)
	if err != nil {
		return nil, err
	}
	pol := policy.Match(sourceURL, policies)
	if pol == nil {
		return nil, errSourceNotAllowed
	}
	return pol, nil
}

func (r *Runner) maxAttempts(job *harvest.Job) int {
	if job.MaxAttempts > 0 {
		return job.MaxAttempts
	}
	return r.cfg.MaxAttempts
}

// nextRetry computes exponential backoff from the attempt count, capped
// at the configured maximum. Exhausted jobs get no retry time.
func (r *Runner) nextRetry(job *harvest.Job) *time.Time {
	if job.AttemptCount >= r.maxAttempts(job) {
		return nil
	}
	delay := r.cfg.RetryBase
	for i := 1; i < job.AttemptCount && delay < r.cfg.RetryMax; i++ {
		delay *= 2
	}
	if delay > r.cfg.RetryMax {
		delay = r.cfg.RetryMax
	}
	at := r.deps.Clock.Now().Add(delay)
	return &at
}

// archiveSnapshot stores the fetched page for later replay. Best effort;
// a failed upload never fails the attempt.
func (r *Runner) archiveSnapshot(ctx context.Context, job *harvest.Job, body []byte) {
	if r.deps.Blobs == nil || r.deps.Hasher == nil || len(body) == 0 {
		return
	}
	path := fmt.Sprintf("snapshots/%s/%s.html", job.ID, r.deps.Hasher.Sum(body))
	uri, err := r.deps.Blobs.PutObject(ctx, path, "text/html; charset=utf-8", bytes.NewReader(body))
	if err != nil {
		r.logger.Warn("snapshot upload failed",
			zap.String("job_id", job.ID.String()),
			zap.Error(err))
		return
	}
	r.logger.Debug("snapshot archived", zap.String("uri", uri))
}

func (r *Runner) publish(ctx context.Context, job *harvest.Job) {
	if r.deps.Events == nil {
		return
	}
	event := Event{
		JobID:     job.ID,
		PolicyID:  job.PolicyID,
		SourceURL: job.SourceURL,
		Status:    string(job.Status),
		Attempt:   job.AttemptCount,
		RecipeID:  job.RecipeID,
		Duplicate: job.Duplicate,
		Error:     job.Error,
	}
	if job.Strategy != nil {
		event.Strategy = job.Strategy.Label()
	}
	if _, err := r.deps.Events.Publish(ctx, r.cfg.EventTopic, event); err != nil {
		r.logger.Warn("event publish failed",
			zap.String("job_id", job.ID.String()),
			zap.Error(err))
	}
}
