// Package telemetry aggregates harvest job history into per-domain health
// reports: failure and fallback rates, retry backlogs, failure class
// histograms, triage hints and threshold alerts. Reports feed the admin
// API, the Prometheus gauges and alert calibration.
package telemetry

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tastewell/harvester/internal/harvest"
	"github.com/tastewell/harvester/internal/job"
	"github.com/tastewell/harvester/internal/metrics"
	"github.com/tastewell/harvester/internal/policy"
)

// defaultSampleLimit bounds how much job history one report walks.
const defaultSampleLimit = 2000

const maxFailureSamples = 8

// ClassCount is one histogram entry in a report.
type ClassCount struct {
	Class string `json:"class"`
	Count int    `json:"count"`
}

// FailureSample is one recent failed job, kept for triage.
type FailureSample struct {
	JobID        uuid.UUID  `json:"job_id"`
	SourceURL    string     `json:"source_url"`
	AttemptCount int        `json:"attempt_count"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// Thresholds is the effective alert ceiling set for one domain.
type Thresholds struct {
	MaxFailureRate          float64 `json:"max_failure_rate"`
	MaxRetryQueue           int     `json:"max_retry_queue"`
	MaxComplianceRejections int     `json:"max_compliance_rejections"`
	MaxParserFallbackRate   float64 `json:"max_parser_fallback_rate"`
	MaxParseFailureRate     float64 `json:"max_parse_failure_rate"`
	MaxAvgAttemptCount      float64 `json:"max_avg_attempt_count"`
}

// Alert flags one domain metric over its configured ceiling.
type Alert struct {
	Domain    string  `json:"domain"`
	Severity  string  `json:"severity"`
	Metric    string  `json:"metric"`
	Actual    float64 `json:"actual"`
	Threshold float64 `json:"threshold"`
	Message   string  `json:"message"`
}

// DomainReport aggregates the sampled job history of one source domain.
type DomainReport struct {
	Domain string `json:"domain"`

	TotalJobs            int `json:"total_jobs"`
	Pending              int `json:"pending"`
	Running              int `json:"running"`
	Succeeded            int `json:"succeeded"`
	Failed               int `json:"failed"`
	Retryable            int `json:"retryable"`
	ComplianceRejections int `json:"compliance_rejections"`

	AvgAttemptCount      float64 `json:"avg_attempt_count"`
	MaxAttemptCount      int     `json:"max_attempt_count"`
	AvgRetryDelaySeconds float64 `json:"avg_retry_delay_seconds"`
	FailureRate          float64 `json:"failure_rate"`
	ParserFallbackRate   float64 `json:"parser_fallback_rate"`
	ParseFailureRate     float64 `json:"parse_failure_rate"`

	ParserStrategies    map[string]int `json:"parser_strategies"`
	FallbackClassCounts map[string]int `json:"fallback_class_counts"`
	RecoveryClassCounts map[string]int `json:"recovery_strategy_counts"`
	ParseFailureCounts  map[string]int `json:"parse_failure_counts"`
	FailureReasonCounts map[string]int `json:"failure_reason_counts"`

	TopFailureReasons      []ClassCount    `json:"top_failure_reasons"`
	TopParseFailureClasses []ClassCount    `json:"top_parse_failure_classes"`
	LatestFailures         []FailureSample `json:"latest_failures"`
	TriageHints            []string        `json:"triage_hints"`
	AlertThresholds        Thresholds      `json:"alert_thresholds"`
}

// GlobalReport summarizes the whole sampled window.
type GlobalReport struct {
	TotalJobs           int            `json:"total_jobs"`
	FailedJobs          int            `json:"failed_jobs"`
	RetryableJobs       int            `json:"retryable_jobs"`
	MaxAttempts         int            `json:"max_attempts"`
	FallbackClassTotals map[string]int `json:"fallback_class_totals"`
	ParseFailureTotals  map[string]int `json:"parse_failure_totals"`
}

// Report is one aggregation pass over recent jobs.
type Report struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Global      GlobalReport    `json:"global"`
	Domains     []*DomainReport `json:"domains"`
	Alerts      []Alert         `json:"alerts"`
}

// Aggregator builds reports from the job and policy stores.
type Aggregator struct {
	jobs        harvest.JobStore
	policies    harvest.PolicyStore
	clock       harvest.Clock
	logger      *zap.Logger
	sampleLimit int
}

// New builds an Aggregator over the given stores.
func New(jobs harvest.JobStore, policies harvest.PolicyStore, clock harvest.Clock, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Aggregator{
		jobs:        jobs,
		policies:    policies,
		clock:       clock,
		logger:      logger,
		sampleLimit: defaultSampleLimit,
	}
}

// Report walks the most recent jobs, aggregates them per domain, updates
// the Prometheus gauges and evaluates each domain against its alert
// thresholds.
func (a *Aggregator) Report(ctx context.Context) (*Report, error) {
	policies, err := a.policies.ListPolicies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	policyByDomain := make(map[string]*policy.SourcePolicy, len(policies))
	for _, p := range policies {
		policyByDomain[strings.ToLower(p.Domain)] = p
	}

	jobs, err := a.jobs.ListJobs(ctx, harvest.JobFilter{Limit: a.sampleLimit})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	byDomain := map[string]*DomainReport{}
	global := GlobalReport{
		TotalJobs:           len(jobs),
		MaxAttempts:         job.DefaultConfig().MaxAttempts,
		FallbackClassTotals: map[string]int{},
		ParseFailureTotals:  map[string]int{},
	}
	retryDelaySums := map[string]float64{}

	for _, j := range jobs {
		domain := jobDomain(j)
		if domain == "" {
			continue
		}
		m, ok := byDomain[domain]
		if !ok {
			m = newDomainReport(domain)
			byDomain[domain] = m
		}
		a.tallyJob(m, &global, retryDelaySums, j)
	}

	report := &Report{
		GeneratedAt: a.clock.Now().UTC(),
		Global:      global,
		Domains:     make([]*DomainReport, 0, len(byDomain)),
	}

	domains := make([]string, 0, len(byDomain))
	for domain := range byDomain {
		domains = append(domains, domain)
	}
	sort.Strings(domains)

	for _, domain := range domains {
		m := byDomain[domain]
		finalizeDomain(m, retryDelaySums[domain])

		var alerts *policy.AlertSettings
		if p := policyByDomain[domain]; p != nil {
			alerts = p.AlertSettings
		}
		m.AlertThresholds = Thresholds{
			MaxFailureRate:          alerts.FailureRate(),
			MaxRetryQueue:           alerts.RetryQueue(),
			MaxComplianceRejections: alerts.ComplianceRejections(),
			MaxParserFallbackRate:   alerts.FallbackRate(),
			MaxParseFailureRate:     alerts.ParseFailureRate(),
			MaxAvgAttemptCount:      alerts.AvgAttemptCount(),
		}

		metrics.SetDomainTelemetry(domain, metrics.DomainGauges{
			FailureRate:      m.FailureRate,
			RetryableJobs:    m.Retryable,
			FallbackRate:     m.ParserFallbackRate,
			AvgAttemptCount:  m.AvgAttemptCount,
			ParseFailureRate: m.ParseFailureRate,
		})

		report.Alerts = append(report.Alerts, evaluateAlerts(m)...)
		report.Domains = append(report.Domains, m)
	}

	a.logger.Debug("telemetry report built",
		zap.Int("jobs", len(jobs)),
		zap.Int("domains", len(report.Domains)),
		zap.Int("alerts", len(report.Alerts)))
	return report, nil
}

func newDomainReport(domain string) *DomainReport {
	return &DomainReport{
		Domain:              domain,
		ParserStrategies:    map[string]int{},
		FallbackClassCounts: map[string]int{},
		RecoveryClassCounts: map[string]int{},
		ParseFailureCounts:  map[string]int{},
		FailureReasonCounts: map[string]int{},
	}
}

func jobDomain(j *harvest.Job) string {
	if j.Domain != "" {
		return strings.ToLower(j.Domain)
	}
	return policy.NormalizedHost(j.SourceURL)
}

func (a *Aggregator) tallyJob(m *DomainReport, global *GlobalReport, retryDelaySums map[string]float64, j *harvest.Job) {
	m.TotalJobs++
	switch j.Status {
	case harvest.StatusPending:
		m.Pending++
	case harvest.StatusRunning:
		m.Running++
	case harvest.StatusSucceeded:
		m.Succeeded++
	case harvest.StatusFailed:
		m.Failed++
		global.FailedJobs++
	}

	m.AvgAttemptCount += float64(j.AttemptCount)
	if j.AttemptCount > m.MaxAttemptCount {
		m.MaxAttemptCount = j.AttemptCount
	}
	if j.Status == harvest.StatusFailed && !j.Terminal() {
		m.Retryable++
		global.RetryableJobs++
	}
	if j.LastAttemptAt != nil && j.NextRetryAt != nil {
		if delta := j.NextRetryAt.Sub(*j.LastAttemptAt).Seconds(); delta > 0 {
			retryDelaySums[m.Domain] += delta
		}
	}

	if j.FailureClass == job.FailureClassCompliance {
		m.ComplianceRejections++
		for _, reason := range complianceReasons(j.Error) {
			key := "compliance:" + reason
			m.FailureReasonCounts[key]++
			m.ParseFailureCounts[key]++
			global.ParseFailureTotals[key]++
		}
	}

	st := j.Strategy
	label := "unknown"
	if st != nil {
		label = st.Label()
	}
	m.ParserStrategies[label]++

	if st != nil {
		switch {
		case st.Recovered:
			class := st.RecoveryClass
			if class == "" {
				class = "unknown"
			}
			m.RecoveryClassCounts[class]++
		case st.Kind == harvest.KindDOMFallback:
			class := st.FallbackClass
			if class == "" {
				class = "unclassified"
			}
			m.FallbackClassCounts[class]++
			global.FallbackClassTotals[class]++
		case st.Kind == harvest.KindParseFailed:
			class := harvest.NormalizeFailureClass(st.FailureClass)
			if class == "" {
				class = "unknown-parse-failure"
			}
			m.ParseFailureCounts[class]++
			global.ParseFailureTotals[class]++
		case st.Kind == harvest.KindFetchFailed:
			class := harvest.NormalizeFailureClass(st.FailureClass)
			if class == "" {
				class = "unknown-fetch-failure"
			}
			key := "fetch_failed:" + class
			m.ParseFailureCounts[key]++
			global.ParseFailureTotals[key]++
		}
	}

	if j.Status == harvest.StatusFailed {
		if j.Error != "" {
			key := "error:" + truncate(strings.TrimSpace(strings.SplitN(j.Error, ":", 2)[0]), 120)
			m.FailureReasonCounts[key]++
		}
		if len(m.LatestFailures) < maxFailureSamples {
			m.LatestFailures = append(m.LatestFailures, FailureSample{
				JobID:        j.ID,
				SourceURL:    j.SourceURL,
				AttemptCount: j.AttemptCount,
				NextRetryAt:  j.NextRetryAt,
				Error:        j.Error,
			})
		}
	}
}

func finalizeDomain(m *DomainReport, retryDelaySum float64) {
	total := m.TotalJobs
	if total == 0 {
		total = 1
	}
	m.FailureRate = round4(float64(m.Failed) / float64(total))
	m.AvgAttemptCount = round3(m.AvgAttemptCount / float64(total))
	delayDivisor := m.Failed
	if delayDivisor < 1 {
		delayDivisor = 1
	}
	m.AvgRetryDelaySeconds = round3(retryDelaySum / float64(delayDivisor))

	fallbackTotal := 0
	for _, n := range m.FallbackClassCounts {
		fallbackTotal += n
	}
	m.ParserFallbackRate = round4(float64(fallbackTotal) / float64(total))

	parseFailureTotal := 0
	for _, n := range m.ParseFailureCounts {
		parseFailureTotal += n
	}
	m.ParseFailureRate = round4(float64(parseFailureTotal) / float64(total))

	m.TopFailureReasons = topClasses(m.FailureReasonCounts, 8)
	m.TopParseFailureClasses = topClasses(m.ParseFailureCounts, 8)
	m.TriageHints = triageHints(m)
}

func evaluateAlerts(m *DomainReport) []Alert {
	t := m.AlertThresholds
	var alerts []Alert
	if m.FailureRate > t.MaxFailureRate {
		alerts = append(alerts, Alert{
			Domain: m.Domain, Severity: "critical", Metric: "failure_rate",
			Actual: m.FailureRate, Threshold: t.MaxFailureRate,
			Message: "Harvest failures exceed configured threshold.",
		})
	}
	if m.Retryable > t.MaxRetryQueue {
		alerts = append(alerts, Alert{
			Domain: m.Domain, Severity: "warning", Metric: "retryable",
			Actual: float64(m.Retryable), Threshold: float64(t.MaxRetryQueue),
			Message: "Retry queue size exceeds configured threshold.",
		})
	}
	if m.ComplianceRejections > t.MaxComplianceRejections {
		alerts = append(alerts, Alert{
			Domain: m.Domain, Severity: "warning", Metric: "compliance_rejections",
			Actual: float64(m.ComplianceRejections), Threshold: float64(t.MaxComplianceRejections),
			Message: "Compliance rejections exceed configured threshold.",
		})
	}
	if m.ParserFallbackRate > t.MaxParserFallbackRate {
		alerts = append(alerts, Alert{
			Domain: m.Domain, Severity: "warning", Metric: "parser_fallback_rate",
			Actual: m.ParserFallbackRate, Threshold: t.MaxParserFallbackRate,
			Message: "Fallback parser usage exceeds configured threshold.",
		})
	}
	if m.ParseFailureRate > t.MaxParseFailureRate {
		alerts = append(alerts, Alert{
			Domain: m.Domain, Severity: "warning", Metric: "parse_failure_rate",
			Actual: m.ParseFailureRate, Threshold: t.MaxParseFailureRate,
			Message: "Parse failures exceed configured threshold.",
		})
	}
	if m.AvgAttemptCount > t.MaxAvgAttemptCount {
		alerts = append(alerts, Alert{
			Domain: m.Domain, Severity: "warning", Metric: "avg_attempt_count",
			Actual: m.AvgAttemptCount, Threshold: t.MaxAvgAttemptCount,
			Message: "Average attempt count exceeds configured threshold.",
		})
	}
	return alerts
}

// complianceReasons recovers the gate's reason codes from a rejection
// error message.
func complianceReasons(errText string) []string {
	const prefix = "compliance check failed:"
	rest, ok := strings.CutPrefix(errText, prefix)
	if !ok {
		return nil
	}
	var reasons []string
	for _, part := range strings.Split(rest, ",") {
		if reason := strings.TrimSpace(part); reason != "" {
			reasons = append(reasons, reason)
		}
	}
	return reasons
}

func topClasses(counts map[string]int, limit int) []ClassCount {
	out := make([]ClassCount, 0, len(counts))
	for class, count := range counts {
		out = append(out, ClassCount{Class: class, Count: count})
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].Count != out[k].Count {
			return out[i].Count > out[k].Count
		}
		return out[i].Class < out[k].Class
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
