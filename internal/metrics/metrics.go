// Package metrics exposes Prometheus collectors for the harvester service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	harvestJobsTotal          *prometheus.CounterVec
	parseFailuresTotal        *prometheus.CounterVec
	fallbackParsesTotal       *prometheus.CounterVec
	complianceRejectionsTotal *prometheus.CounterVec
	fetchFailuresTotal        *prometheus.CounterVec
	crawlPagesTotal           *prometheus.CounterVec
	crawlBytesTotal           *prometheus.CounterVec
	fetchThrottleSeconds      *prometheus.HistogramVec

	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	activeWorkers prometheus.Gauge

	domainFailureRate      *prometheus.GaugeVec
	domainRetryableJobs    *prometheus.GaugeVec
	domainFallbackRate     *prometheus.GaugeVec
	domainAvgAttempts      *prometheus.GaugeVec
	domainParseFailureRate *prometheus.GaugeVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvestJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_jobs_total",
				Help: "Total number of harvest jobs finished, labeled by domain, status and strategy kind.",
			},
			[]string{"domain", "status", "strategy"},
		)

		parseFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_parse_failures_total",
				Help: "Total number of parse failures, labeled by domain and failure class.",
			},
			[]string{"domain", "class"},
		)

		fallbackParsesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_fallback_parses_total",
				Help: "Total number of generic DOM fallback extractions, labeled by domain and fallback class.",
			},
			[]string{"domain", "class"},
		)

		complianceRejectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_compliance_rejections_total",
				Help: "Total number of compliance rejections, labeled by domain and reason.",
			},
			[]string{"domain", "reason"},
		)

		fetchFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_fetch_failures_total",
				Help: "Total number of fetch failures, labeled by domain and failure class.",
			},
			[]string{"domain", "class"},
		)

		crawlPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_pages_total",
				Help: "Total number of pages crawled, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		crawlBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_bytes_total",
				Help: "Total number of bytes fetched while crawling, labeled by site.",
			},
			[]string{"site"},
		)

		fetchThrottleSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvest_fetch_throttle_seconds",
				Help:    "Time spent waiting on the per-domain politeness limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvest_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)

		domainFailureRate = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "harvest_domain_failure_rate",
				Help: "Fraction of recent jobs that failed, per source domain.",
			},
			[]string{"domain"},
		)

		domainRetryableJobs = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "harvest_domain_retryable_jobs",
				Help: "Failed jobs still eligible for retry, per source domain.",
			},
			[]string{"domain"},
		)

		domainFallbackRate = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "harvest_domain_fallback_rate",
				Help: "Fraction of recent jobs parsed by the generic DOM fallback, per source domain.",
			},
			[]string{"domain"},
		)

		domainAvgAttempts = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "harvest_domain_avg_attempt_count",
				Help: "Average attempt count across recent jobs, per source domain.",
			},
			[]string{"domain"},
		)

		domainParseFailureRate = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "harvest_domain_parse_failure_rate",
				Help: "Fraction of recent jobs that ended in a classified parse failure, per source domain.",
			},
			[]string{"domain"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob increments the finished-job counter.
func ObserveJob(domain, status, strategy string) {
	if strategy == "" {
		strategy = "unknown"
	}
	harvestJobsTotal.WithLabelValues(domain, status, strategy).Inc()
}

// ObserveParseFailure increments the parse-failure counter for the class.
func ObserveParseFailure(domain, class string) {
	parseFailuresTotal.WithLabelValues(domain, class).Inc()
}

// ObserveFallbackParse increments the fallback-extraction counter.
func ObserveFallbackParse(domain, class string) {
	fallbackParsesTotal.WithLabelValues(domain, class).Inc()
}

// ObserveComplianceRejection increments the compliance-rejection counter.
func ObserveComplianceRejection(domain, reason string) {
	complianceRejectionsTotal.WithLabelValues(domain, reason).Inc()
}

// ObserveFetchFailure increments the fetch-failure counter for the class.
func ObserveFetchFailure(domain, class string) {
	fetchFailuresTotal.WithLabelValues(domain, class).Inc()
}

// ObserveCrawl increments the crawl page and byte counters.
func ObserveCrawl(site string, status string, bytesFetched int) {
	sanitizedSite := SanitizeSite(site)
	crawlPagesTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesFetched > 0 {
		crawlBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveFetchThrottle records time spent in the politeness limiter.
func ObserveFetchThrottle(domain string, delay time.Duration) {
	fetchThrottleSeconds.WithLabelValues(domain).Observe(delay.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// DomainGauges carries one domain's aggregated health numbers.
type DomainGauges struct {
	FailureRate      float64
	RetryableJobs    int
	FallbackRate     float64
	AvgAttemptCount  float64
	ParseFailureRate float64
}

// SetDomainTelemetry updates the per-domain health gauges from an
// aggregation snapshot.
func SetDomainTelemetry(domain string, g DomainGauges) {
	domainFailureRate.WithLabelValues(domain).Set(g.FailureRate)
	domainRetryableJobs.WithLabelValues(domain).Set(float64(g.RetryableJobs))
	domainFallbackRate.WithLabelValues(domain).Set(g.FallbackRate)
	domainAvgAttempts.WithLabelValues(domain).Set(g.AvgAttemptCount)
	domainParseFailureRate.WithLabelValues(domain).Set(g.ParseFailureRate)
}
