package telemetry

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tastewell/harvester/internal/policy"
)

// Calibration defaults.
const (
	DefaultCalibrationMinJobs = 20
	DefaultCalibrationBuffer  = 1.25
)

// CalibrateOptions controls one alert calibration pass.
type CalibrateOptions struct {
	// Apply writes the recommended thresholds back to the policy store.
	Apply bool
	// MinJobs skips domains with fewer sampled jobs.
	MinJobs int
	// Buffer is the multiplier applied to observed values.
	Buffer float64
}

func (o CalibrateOptions) withDefaults() CalibrateOptions {
	if o.MinJobs <= 0 {
		o.MinJobs = DefaultCalibrationMinJobs
	}
	if o.Buffer < 1.0 {
		o.Buffer = DefaultCalibrationBuffer
	}
	return o
}

// Observed is the telemetry a recommendation was derived from.
type Observed struct {
	FailureRate          float64 `json:"failure_rate"`
	RetryableJobs        int     `json:"retryable_jobs"`
	ComplianceRejections int     `json:"compliance_rejections"`
	ParserFallbackRate   float64 `json:"parser_fallback_rate"`
	ParseFailureRate     float64 `json:"parse_failure_rate"`
	AvgAttemptCount      float64 `json:"avg_attempt_count"`
}

// Recommendation is the calibration outcome for one policy domain.
type Recommendation struct {
	Domain          string                `json:"domain"`
	Status          string                `json:"status"`
	Reason          string                `json:"reason,omitempty"`
	MinJobsRequired int                   `json:"min_jobs_required,omitempty"`
	TotalJobs       int                   `json:"total_jobs,omitempty"`
	Observed        *Observed             `json:"observed,omitempty"`
	Recommended     *policy.AlertSettings `json:"recommended_alert_settings,omitempty"`
}

// CalibrationResult is the outcome of one calibration pass.
type CalibrationResult struct {
	GeneratedAt     time.Time        `json:"generated_at"`
	Apply           bool             `json:"apply"`
	MinJobs         int              `json:"min_jobs"`
	Buffer          float64          `json:"buffer_multiplier"`
	UpdatedDomains  []string         `json:"updated_domains"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Calibrate derives alert thresholds per policy from observed telemetry:
// each ceiling is the observed value times the buffer plus a small
// headroom, clamped to a sane range. Domains without enough sampled jobs
// are skipped. With Apply set, the recommended settings replace the
// policy's alert settings.
func (a *Aggregator) Calibrate(ctx context.Context, opts CalibrateOptions) (*CalibrationResult, error) {
	opts = opts.withDefaults()

	report, err := a.Report(ctx)
	if err != nil {
		return nil, err
	}
	metricByDomain := make(map[string]*DomainReport, len(report.Domains))
	for _, m := range report.Domains {
		metricByDomain[m.Domain] = m
	}

	policies, err := a.policies.ListPolicies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	sort.Slice(policies, func(i, k int) bool { return policies[i].Domain < policies[k].Domain })

	result := &CalibrationResult{
		GeneratedAt: a.clock.Now().UTC(),
		Apply:       opts.Apply,
		MinJobs:     opts.MinJobs,
		Buffer:      opts.Buffer,
	}

	for _, p := range policies {
		domain := strings.ToLower(p.Domain)
		m := metricByDomain[domain]
		if m == nil {
			result.Recommendations = append(result.Recommendations, Recommendation{
				Domain:          domain,
				Status:          "skipped",
				Reason:          "no_telemetry",
				MinJobsRequired: opts.MinJobs,
			})
			continue
		}
		if m.TotalJobs < opts.MinJobs {
			result.Recommendations = append(result.Recommendations, Recommendation{
				Domain:          domain,
				Status:          "skipped",
				Reason:          fmt.Sprintf("insufficient_jobs:%d", m.TotalJobs),
				MinJobsRequired: opts.MinJobs,
			})
			continue
		}

		now := a.clock.Now().UTC()
		recommended := &policy.AlertSettings{
			MaxFailureRate:          round4(clampF(m.FailureRate*opts.Buffer+0.02, 0.08, 0.85)),
			MaxRetryQueue:           maxInt(int(math.Round(float64(m.Retryable)*opts.Buffer+1)), 3),
			MaxComplianceRejections: maxInt(int(math.Round(float64(m.ComplianceRejections)*opts.Buffer+1)), 1),
			MaxParserFallbackRate:   round4(clampF(m.ParserFallbackRate*opts.Buffer+0.05, 0.25, 0.95)),
			MaxParseFailureRate:     round4(clampF(m.ParseFailureRate*opts.Buffer+0.04, 0.15, 0.9)),
			MaxAvgAttemptCount:      round3(clampF(m.AvgAttemptCount*opts.Buffer+0.2, 1.2, 5.0)),
			CalibratedFromJobs:      m.TotalJobs,
			CalibratedAt:            &now,
			CalibrationBuffer:       opts.Buffer,
		}

		status := "recommended"
		if opts.Apply {
			p.AlertSettings = recommended
			if err := a.policies.UpdatePolicy(ctx, p); err != nil {
				return nil, fmt.Errorf("update policy %s: %w", p.ID, err)
			}
			result.UpdatedDomains = append(result.UpdatedDomains, domain)
			status = "calibrated"
			a.logger.Info("alert thresholds calibrated",
				zap.String("domain", domain),
				zap.Int("jobs", m.TotalJobs),
				zap.Float64("buffer", opts.Buffer))
		}

		result.Recommendations = append(result.Recommendations, Recommendation{
			Domain:    domain,
			Status:    status,
			TotalJobs: m.TotalJobs,
			Observed: &Observed{
				FailureRate:          m.FailureRate,
				RetryableJobs:        m.Retryable,
				ComplianceRejections: m.ComplianceRejections,
				ParserFallbackRate:   m.ParserFallbackRate,
				ParseFailureRate:     m.ParseFailureRate,
				AvgAttemptCount:      m.AvgAttemptCount,
			},
			Recommended: recommended,
		})
	}

	return result, nil
}

func clampF(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
