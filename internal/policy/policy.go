// Package policy defines per-source harvesting policies: which domains may
// be harvested, the engagement floor a recipe must clear, crawl budgets and
// parser tuning.
package policy

import (
	"net/url"
	"strings"
	"time"
)

// MetricType selects which engagement signal gates admission for a source.
type MetricType string

// Supported metric types.
const (
	MetricRatings       MetricType = "ratings"
	MetricSocial        MetricType = "social"
	MetricPervasiveness MetricType = "pervasiveness"
)

// ReviewPolicy controls whether harvested recipes need a human pass.
type ReviewPolicy string

// Supported review policies.
const (
	ReviewManual             ReviewPolicy = "manual"
	ReviewAutoHighConfidence ReviewPolicy = "auto_high_confidence"
)

// AlertSettings holds per-policy operational alert thresholds. Zero-valued
// fields fall back to the package defaults at evaluation time.
type AlertSettings struct {
	MaxFailureRate          float64 `json:"max_failure_rate,omitempty" mapstructure:"max_failure_rate"`
	MaxRetryQueue           int     `json:"max_retry_queue,omitempty" mapstructure:"max_retry_queue"`
	MaxComplianceRejections int     `json:"max_compliance_rejections,omitempty" mapstructure:"max_compliance_rejections"`
	MaxParserFallbackRate   float64 `json:"max_parser_fallback_rate,omitempty" mapstructure:"max_parser_fallback_rate"`
	MaxParseFailureRate     float64 `json:"max_parse_failure_rate,omitempty" mapstructure:"max_parse_failure_rate"`
	MaxAvgAttemptCount      float64 `json:"max_avg_attempt_count,omitempty" mapstructure:"max_avg_attempt_count"`

	CalibratedFromJobs int        `json:"calibrated_from_jobs,omitempty"`
	CalibratedAt       *time.Time `json:"calibrated_at,omitempty"`
	CalibrationBuffer  float64    `json:"calibration_buffer_multiplier,omitempty"`
}

// Alert threshold defaults.
const (
	DefaultMaxFailureRate          = 0.35
	DefaultMaxRetryQueue           = 10
	DefaultMaxComplianceRejections = 5
	DefaultMaxParserFallbackRate   = 0.6
	DefaultMaxParseFailureRate     = 0.3
	DefaultMaxAvgAttemptCount      = 2.0
)

// FailureRate returns the configured or default failure-rate ceiling.
func (a *AlertSettings) FailureRate() float64 {
	if a == nil || a.MaxFailureRate <= 0 {
		return DefaultMaxFailureRate
	}
	return a.MaxFailureRate
}

// RetryQueue returns the configured or default retry-backlog ceiling.
func (a *AlertSettings) RetryQueue() int {
	if a == nil || a.MaxRetryQueue <= 0 {
		return DefaultMaxRetryQueue
	}
	return a.MaxRetryQueue
}

// ComplianceRejections returns the configured or default rejection ceiling.
func (a *AlertSettings) ComplianceRejections() int {
	if a == nil || a.MaxComplianceRejections <= 0 {
		return DefaultMaxComplianceRejections
	}
	return a.MaxComplianceRejections
}

// FallbackRate returns the configured or default fallback-rate ceiling.
func (a *AlertSettings) FallbackRate() float64 {
	if a == nil || a.MaxParserFallbackRate <= 0 {
		return DefaultMaxParserFallbackRate
	}
	return a.MaxParserFallbackRate
}

// ParseFailureRate returns the configured or default parse-failure ceiling.
func (a *AlertSettings) ParseFailureRate() float64 {
	if a == nil || a.MaxParseFailureRate <= 0 {
		return DefaultMaxParseFailureRate
	}
	return a.MaxParseFailureRate
}

// AvgAttemptCount returns the configured or default attempt-count ceiling.
func (a *AlertSettings) AvgAttemptCount() float64 {
	if a == nil || a.MaxAvgAttemptCount <= 0 {
		return DefaultMaxAvgAttemptCount
	}
	return a.MaxAvgAttemptCount
}

// SourcePolicy describes one harvestable source site.
type SourcePolicy struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Domain         string          `json:"domain"`
	MetricType     MetricType      `json:"metric_type"`
	MinRatingCount int             `json:"min_rating_count,omitempty"`
	MinRatingValue float64         `json:"min_rating_value,omitempty"`
	ReviewPolicy   ReviewPolicy    `json:"review_policy"`
	IsActive       bool            `json:"is_active"`
	SeedURLs       []string        `json:"seed_urls,omitempty"`
	CrawlDepth     int             `json:"crawl_depth"`
	MaxPages       int             `json:"max_pages"`
	MaxRecipes     int             `json:"max_recipes"`
	CrawlInterval  time.Duration   `json:"crawl_interval"`
	RespectRobots  bool            `json:"respect_robots"`
	ParserSettings *ParserSettings `json:"parser_settings,omitempty"`
	AlertSettings  *AlertSettings  `json:"alert_settings,omitempty"`
}

// NormalizedHost lowercases a URL's hostname and strips a leading www.
func NormalizedHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// Match returns the first active policy whose domain equals the URL's host
// or is a parent suffix of it (subdomains match their parent policy).
func Match(sourceURL string, policies []*SourcePolicy) *SourcePolicy {
	host := NormalizedHost(sourceURL)
	if host == "" {
		return nil
	}
	for _, p := range policies {
		if p == nil || !p.IsActive {
			continue
		}
		d := strings.ToLower(p.Domain)
		if host == d || strings.HasSuffix(host, "."+d) {
			return p
		}
	}
	return nil
}

// Bool returns a pointer to v. Convenience for settings literals.
func Bool(v bool) *bool { return &v }

// Float returns a pointer to v. Convenience for settings literals.
func Float(v float64) *float64 { return &v }

// Defaults returns the built-in source policies for the supported sites.
func Defaults() []*SourcePolicy {
	base := func(id, name, domain string, metric MetricType, seeds []string, ps *ParserSettings) *SourcePolicy {
		return &SourcePolicy{
			ID:             id,
			Name:           name,
			Domain:         domain,
			MetricType:     metric,
			ReviewPolicy:   ReviewManual,
			IsActive:       true,
			SeedURLs:       seeds,
			CrawlDepth:     2,
			MaxPages:       40,
			MaxRecipes:     20,
			CrawlInterval:  4 * time.Hour,
			RespectRobots:  true,
			ParserSettings: ps,
		}
	}

	allrecipes := base("allrecipes", "Allrecipes", "allrecipes.com", MetricRatings,
		[]string{"https://www.allrecipes.com/recipes/77/drinks/"},
		&ParserSettings{
			RecipePathHints:     []string{"/recipe/"},
			BlockedPathHints:    []string{"/recipes-a-z", "/privacy", "/terms", "/account/", "/signin", "/login"},
			RequiredTextMarkers: []string{"ingredients", "directions"},
		})
	allrecipes.MinRatingCount = 10

	bbc := base("bbcgoodfood", "BBC Good Food", "bbcgoodfood.com", MetricRatings,
		[]string{"https://www.bbcgoodfood.com/recipes/collection/cocktail-recipes"},
		&ParserSettings{
			RecipePathHints:     []string{"/recipes/"},
			BlockedPathHints:    []string{"/recipes/collection/", "/recipes/category/", "/news-", "/review/", "/feature/"},
			RequiredTextMarkers: []string{"ingredients", "method"},
		})
	bbc.MinRatingCount = 5

	food := base("food", "Food.com", "food.com", MetricRatings,
		[]string{"https://www.food.com/search/cocktail"},
		&ParserSettings{
			RecipePathHints:     []string{"/recipe/"},
			BlockedPathHints:    []string{"/ideas/", "/article/", "/privacy", "/terms"},
			RequiredTextMarkers: []string{"ingredients", "directions"},
		})
	food.MinRatingCount = 5

	diffords := base("diffordsguide", "Difford's Guide", "diffordsguide.com", MetricPervasiveness,
		[]string{"https://www.diffordsguide.com/cocktails/search"},
		&ParserSettings{
			RecipePathHints:     []string{"/cocktails/recipe/"},
			BlockedPathHints:    []string{"/encyclopedia/", "/cocktails/search", "/cocktails/how-to-make", "/cocktails/directory"},
			RequiredTextMarkers: []string{"ingredients", "method"},
		})

	imbibe := base("imbibe", "Imbibe", "imbibemagazine.com", MetricPervasiveness,
		[]string{"https://imbibemagazine.com/category/recipes/"},
		&ParserSettings{
			RecipePathHints:     []string{"/recipe/"},
			BlockedPathHints:    []string{"/category/recipes/", "/category/", "/events/", "/shop/", "/recipes/page/"},
			RequiredTextMarkers: []string{"ingredients", "instructions", "directions", "method"},
			InstructionHeadings: []string{"instructions", "directions", "method", "how to make"},
		})

	// Punch seeds the site root so sitemap discovery can kick in; the
	// /recipes listing is infinite scroll and useless to a plain fetch.
	punch := base("punchdrink", "Punch", "punchdrink.com", MetricPervasiveness,
		[]string{"https://punchdrink.com/", "https://punchdrink.com/recipes/feed/"},
		&ParserSettings{
			RecipePathHints:         []string{"/recipes/"},
			BlockedPathHints:        []string{"/recipe-archives", "/article/", "/city-guides/", "/menus/", "/how-to/", "/news/"},
			RequiredTextMarkers:     []string{"ingredients", "instructions", "directions", "method"},
			InstructionHeadings:     []string{"instructions", "directions", "method", "preparation"},
			MinExtractionConfidence: Float(0.3),
		})

	return []*SourcePolicy{allrecipes, bbc, food, diffords, imbibe, punch}
}
