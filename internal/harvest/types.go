// Package harvest defines the domain types shared by the harvesting
// pipeline: jobs, parsed recipes, crawl results and the interfaces the
// pipeline components are wired through.
package harvest

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a harvest job.
type JobStatus string

// Supported job statuses.
const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusSucceeded JobStatus = "succeeded"
	StatusFailed    JobStatus = "failed"
)

// Job tracks a single attempt series at turning a source URL (or pasted raw
// text) into a stored recipe.
type Job struct {
	ID           uuid.UUID
	PolicyID     string
	Domain       string
	SourceURL    string
	RawText      string
	Status       JobStatus
	AttemptCount int
	MaxAttempts  int

	// Strategy is the tagged outcome of the last attempt. The string label
	// form exists only at the storage and API boundary.
	Strategy     *Strategy
	Confidence   *float64
	FailureClass string
	Error        string

	RecipeID  *uuid.UUID
	Duplicate bool

	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastAttemptAt *time.Time
	NextRetryAt   *time.Time
}

// Terminal reports whether the job can never run again.
func (j *Job) Terminal() bool {
	if j.Status == StatusSucceeded {
		return true
	}
	return j.Status == StatusFailed && j.AttemptCount >= j.MaxAttempts
}

// RetryableAt reports whether a failed job is due for another attempt.
func (j *Job) RetryableAt(now time.Time) bool {
	if j.Status != StatusFailed || j.AttemptCount >= j.MaxAttempts {
		return false
	}
	return j.NextRetryAt == nil || !j.NextRetryAt.After(now)
}

// Ingredient is one ingredient line with a best-effort structured split.
type Ingredient struct {
	Raw      string `json:"raw"`
	Quantity string `json:"quantity,omitempty"`
	Unit     string `json:"unit,omitempty"`
	Name     string `json:"name"`
}

// ParsedRecipe is the output of the parser cascade for one page.
type ParsedRecipe struct {
	Name         string
	Description  string
	ImageURL     string
	Ingredients  []Ingredient
	Instructions []string

	RatingValue *float64
	RatingCount *int
	LikeCount   *int
	ShareCount  *int

	SourceURL  string
	Strategy   Strategy
	Confidence float64
}

// Valid reports whether the extraction meets the minimum bar: at least two
// ingredients and at least one instruction.
func (r *ParsedRecipe) Valid() bool {
	return r != nil && len(r.Ingredients) >= 2 && len(r.Instructions) >= 1
}

// HasEngagement reports whether any rating or social signal was found.
func (r *ParsedRecipe) HasEngagement() bool {
	if r == nil {
		return false
	}
	if r.RatingValue != nil && r.RatingCount != nil && *r.RatingCount > 0 {
		return true
	}
	if r.LikeCount != nil && *r.LikeCount > 0 {
		return true
	}
	return r.ShareCount != nil && *r.ShareCount > 0
}

// CrawlResult summarizes one bounded crawl of a source site.
type CrawlResult struct {
	SeedURL              string         `json:"seed_url"`
	PagesCrawled         int            `json:"pages_crawled"`
	RecipeURLs           []string       `json:"recipe_urls"`
	Recipes              []*ParsedRecipe `json:"-"`
	ParserStats          map[string]int `json:"parser_stats,omitempty"`
	ConfidenceBuckets    map[string]int `json:"confidence_buckets,omitempty"`
	ComplianceRejections int            `json:"compliance_rejections"`
	ComplianceReasons    map[string]int `json:"compliance_reason_counts,omitempty"`
	ParseFailures        map[string]int `json:"parse_failure_counts,omitempty"`
	FallbackClasses      map[string]int `json:"fallback_class_counts,omitempty"`
	Errors               []string       `json:"errors,omitempty"`
}

// RecipeRecord is a stored recipe produced by a successful harvest.
type RecipeRecord struct {
	ID             uuid.UUID
	Name           string
	NormalizedName string
	Description    string
	ImageURL       string
	Ingredients    []Ingredient
	Instructions   []string

	SourceURL    string
	SourceDomain string
	// SourceURLs lists every source attached to this record, the primary
	// included. Its length is the record's pervasiveness count.
	SourceURLs []string

	RatingValue *float64
	RatingCount *int
	LikeCount   *int
	ShareCount  *int

	PopularityScore float64
	QualityScore    float64
	QualityLabel    string
	ReviewStatus    string

	Strategy   Strategy
	Confidence float64
	CreatedAt  time.Time
}

// FetchResult is the response of a single page fetch.
type FetchResult struct {
	StatusCode  int
	Body        []byte
	ContentType string
	FinalURL    string
	Duration    time.Duration
}

// QueueItem is the unit of work handed to harvest workers.
type QueueItem struct {
	JobID      uuid.UUID
	EnqueuedAt time.Time
}
