package harvest

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/tastewell/harvester/internal/policy"
)

// Store sentinel errors.
var (
	ErrJobNotFound    = errors.New("harvest job not found")
	ErrPolicyNotFound = errors.New("source policy not found")
	ErrRecipeNotFound = errors.New("recipe not found")
)

// JobFilter narrows ListJobs results. Nil / zero fields are ignored.
type JobFilter struct {
	Status      *JobStatus
	PolicyID    string
	RetryableAt *time.Time
	Limit       int
}

// JobStore persists harvest jobs.
type JobStore interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
	UpdateJob(ctx context.Context, job *Job) error
	ListJobs(ctx context.Context, filter JobFilter) ([]*Job, error)
	// ActiveJobForURL returns a pending or running job for the source URL
	// under the policy, or ErrJobNotFound.
	ActiveJobForURL(ctx context.Context, policyID, sourceURL string) (*Job, error)
}

// PolicyStore persists source policies.
type PolicyStore interface {
	ListPolicies(ctx context.Context) ([]*policy.SourcePolicy, error)
	GetPolicy(ctx context.Context, id string) (*policy.SourcePolicy, error)
	UpdatePolicy(ctx context.Context, p *policy.SourcePolicy) error
}

// RecipeStore persists harvested recipe records.
type RecipeStore interface {
	CreateRecipe(ctx context.Context, rec *RecipeRecord) error
	UpdateRecipe(ctx context.Context, rec *RecipeRecord) error
	// GetBySourceURL matches any attached source URL, not only the primary.
	GetBySourceURL(ctx context.Context, sourceURL string) (*RecipeRecord, error)
	ListRecipes(ctx context.Context) ([]*RecipeRecord, error)
}

// BlobStore archives page snapshots and other artifacts.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher emits lifecycle events to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue hands job references to the worker pool.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
	Close()
}

// Fetcher retrieves a single page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator mints job and recipe identifiers.
type IDGenerator interface {
	NewID() uuid.UUID
}

// Hasher fingerprints page content for snapshot paths and dedupe.
type Hasher interface {
	Sum(data []byte) string
}
