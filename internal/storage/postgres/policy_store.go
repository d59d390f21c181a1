package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tastewell/harvester/internal/harvest"
	"github.com/tastewell/harvester/internal/policy"
)

// PolicyStore persists source policies in Postgres. Parser and alert
// settings travel as JSONB so tuning does not require schema changes.
type PolicyStore struct {
	pool dbPool
}

// NewPolicyStore constructs a PolicyStore from an existing pool.
func NewPolicyStore(pool dbPool) (*PolicyStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PolicyStore{pool: pool}, nil
}

const policyColumns = `id, name, domain, metric_type, min_rating_count,
min_rating_value, review_policy, is_active, seed_urls, crawl_depth,
max_pages, max_recipes, crawl_interval_minutes, respect_robots,
parser_settings, alert_settings`

// ListPolicies returns every stored policy ordered by ID.
func (s *PolicyStore) ListPolicies(ctx context.Context) ([]*policy.SourcePolicy, error) {
	query := fmt.Sprintf(`SELECT %s FROM source_policies ORDER BY id`, policyColumns)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list source policies: %w", err)
	}
	defer rows.Close()

	var policies []*policy.SourcePolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source policy: %w", err)
		}
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source policies: %w", err)
	}
	return policies, nil
}

// GetPolicy fetches one policy by ID.
func (s *PolicyStore) GetPolicy(ctx context.Context, id string) (*policy.SourcePolicy, error) {
	query := fmt.Sprintf(`SELECT %s FROM source_policies WHERE id = $1`, policyColumns)
	p, err := scanPolicy(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, harvest.ErrPolicyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select source policy: %w", err)
	}
	return p, nil
}

// UpdatePolicy rewrites the stored policy row.
func (s *PolicyStore) UpdatePolicy(ctx context.Context, p *policy.SourcePolicy) error {
	var parserJSON, alertJSON []byte
	var err error
	if p.ParserSettings != nil {
		if parserJSON, err = json.Marshal(p.ParserSettings); err != nil {
			return fmt.Errorf("marshal parser settings: %w", err)
		}
	}
	if p.AlertSettings != nil {
		if alertJSON, err = json.Marshal(p.AlertSettings); err != nil {
			return fmt.Errorf("marshal alert settings: %w", err)
		}
	}
	seedJSON, err := json.Marshal(p.SeedURLs)
	if err != nil {
		return fmt.Errorf("marshal seed urls: %w", err)
	}
	query := `
UPDATE source_policies SET
	name = $2, domain = $3, metric_type = $4, min_rating_count = $5,
	min_rating_value = $6, review_policy = $7, is_active = $8,
	seed_urls = $9, crawl_depth = $10, max_pages = $11, max_recipes = $12,
	crawl_interval_minutes = $13, respect_robots = $14,
	parser_settings = $15, alert_settings = $16
WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query,
		p.ID,
		p.Name,
		p.Domain,
		string(p.MetricType),
		p.MinRatingCount,
		p.MinRatingValue,
		string(p.ReviewPolicy),
		p.IsActive,
		seedJSON,
		p.CrawlDepth,
		p.MaxPages,
		p.MaxRecipes,
		int(p.CrawlInterval/time.Minute),
		p.RespectRobots,
		parserJSON,
		alertJSON,
	)
	if err != nil {
		return fmt.Errorf("update source policy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return harvest.ErrPolicyNotFound
	}
	return nil
}

func scanPolicy(row pgx.Row) (*policy.SourcePolicy, error) {
	var (
		p               policy.SourcePolicy
		metricType      string
		reviewPolicy    string
		seedJSON        []byte
		intervalMinutes int
		parserJSON      []byte
		alertJSON       []byte
	)
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Domain,
		&metricType,
		&p.MinRatingCount,
		&p.MinRatingValue,
		&reviewPolicy,
		&p.IsActive,
		&seedJSON,
		&p.CrawlDepth,
		&p.MaxPages,
		&p.MaxRecipes,
		&intervalMinutes,
		&p.RespectRobots,
		&parserJSON,
		&alertJSON,
	)
	if err != nil {
		return nil, err
	}
	p.MetricType = policy.MetricType(metricType)
	p.ReviewPolicy = policy.ReviewPolicy(reviewPolicy)
	p.CrawlInterval = time.Duration(intervalMinutes) * time.Minute
	if len(seedJSON) > 0 {
		if err := json.Unmarshal(seedJSON, &p.SeedURLs); err != nil {
			return nil, fmt.Errorf("decode seed urls: %w", err)
		}
	}
	if len(parserJSON) > 0 {
		var settings policy.ParserSettings
		if err := json.Unmarshal(parserJSON, &settings); err != nil {
			return nil, fmt.Errorf("decode parser settings: %w", err)
		}
		p.ParserSettings = &settings
	}
	if len(alertJSON) > 0 {
		var alerts policy.AlertSettings
		if err := json.Unmarshal(alertJSON, &alerts); err != nil {
			return nil, fmt.Errorf("decode alert settings: %w", err)
		}
		p.AlertSettings = &alerts
	}
	return &p, nil
}
