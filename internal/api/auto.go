package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tastewell/harvester/internal/crawl"
	"github.com/tastewell/harvester/internal/harvest"
	"github.com/tastewell/harvester/internal/metrics"
	"github.com/tastewell/harvester/internal/policy"
)

// Crawl results are cached briefly so repeated auto-harvest calls for the
// same source do not re-crawl the site.
const (
	autoHarvestCacheTTL        = 300 * time.Second
	autoHarvestCacheMaxEntries = 256
)

type autoHarvestRequest struct {
	SourceURL     string                 `json:"source_url"`
	SourceType    string                 `json:"source_type,omitempty"`
	MaxPages      int                    `json:"max_pages,omitempty"`
	MaxRecipes    int                    `json:"max_recipes,omitempty"`
	CrawlDepth    int                    `json:"crawl_depth,omitempty"`
	MaxLinks      int                    `json:"max_links,omitempty"`
	RespectRobots *bool                  `json:"respect_robots,omitempty"`
	Enqueue       *bool                  `json:"enqueue,omitempty"`
	Settings      *policy.ParserSettings `json:"parser_settings,omitempty"`
}

func (r autoHarvestRequest) enqueueEnabled() bool {
	return r.Enqueue == nil || *r.Enqueue
}

type autoHarvestResponse struct {
	Status             string         `json:"status"`
	DiscoveredURLs     []string       `json:"discovered_urls"`
	ParsedCount        int            `json:"parsed_count"`
	QueuedJobIDs       []uuid.UUID    `json:"queued_job_ids"`
	ParserStats        map[string]int `json:"parser_stats,omitempty"`
	ConfidenceBuckets  map[string]int `json:"confidence_buckets,omitempty"`
	FallbackClasses    map[string]int `json:"fallback_class_counts,omitempty"`
	ParseFailures      map[string]int `json:"parse_failure_counts,omitempty"`
	ComplianceRejected int            `json:"compliance_rejections"`
	ComplianceReasons  map[string]int `json:"compliance_reason_counts,omitempty"`
	SkipReasons        map[string]int `json:"skip_reason_counts,omitempty"`
	Errors             []string       `json:"errors,omitempty"`
}

type autoCacheEntry struct {
	storedAt time.Time
	result   *harvest.CrawlResult
}

// autoHarvestCache is a TTL-bounded cache keyed by the full crawl request
// shape, so a changed override or policy tweak never serves stale results.
type autoHarvestCache struct {
	mu      sync.Mutex
	clock   harvest.Clock
	entries map[string]autoCacheEntry
}

func newAutoHarvestCache(clock harvest.Clock) *autoHarvestCache {
	return &autoHarvestCache{
		clock:   clock,
		entries: make(map[string]autoCacheEntry),
	}
}

func (c *autoHarvestCache) get(key string) *harvest.CrawlResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil
	}
	if c.clock.Now().Sub(entry.storedAt) > autoHarvestCacheTTL {
		delete(c.entries, key)
		return nil
	}
	return entry.result
}

func (c *autoHarvestCache) set(key string, result *harvest.CrawlResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = autoCacheEntry{storedAt: c.clock.Now(), result: result}
	if len(c.entries) <= autoHarvestCacheMaxEntries {
		return
	}
	var oldestKey string
	var oldestAt time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.storedAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.storedAt
		}
	}
	delete(c.entries, oldestKey)
}

// cacheKey serializes everything that shapes the crawl, including the
// settings the crawl actually runs with (policy merged with the request
// override). Struct field order makes the JSON deterministic.
func cacheKey(req autoHarvestRequest, pol *policy.SourcePolicy, merged *policy.ParserSettings) string {
	settings, _ := json.Marshal(merged)
	key := struct {
		SourceURL     string          `json:"source_url"`
		SourceType    string          `json:"source_type"`
		MaxPages      int             `json:"max_pages"`
		MaxRecipes    int             `json:"max_recipes"`
		CrawlDepth    int             `json:"crawl_depth"`
		MaxLinks      int             `json:"max_links"`
		RespectRobots *bool           `json:"respect_robots"`
		PolicyDomain  string          `json:"policy_domain"`
		Settings      json.RawMessage `json:"parser_settings"`
	}{
		SourceURL:     req.SourceURL,
		SourceType:    req.SourceType,
		MaxPages:      req.MaxPages,
		MaxRecipes:    req.MaxRecipes,
		CrawlDepth:    req.CrawlDepth,
		MaxLinks:      req.MaxLinks,
		RespectRobots: req.RespectRobots,
		PolicyDomain:  pol.Domain,
		Settings:      settings,
	}
	out, _ := json.Marshal(key)
	return string(out)
}

func (s *Server) autoHarvest(w http.ResponseWriter, r *http.Request) {
	var req autoHarvestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SourceURL == "" {
		s.writeError(w, http.StatusBadRequest, "source_url is required")
		return
	}

	ctx := r.Context()
	policies, err := s.policies.ListPolicies(ctx)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "list policies failed")
		return
	}
	pol := policy.Match(req.SourceURL, policies)
	if pol == nil {
		s.writeError(w, http.StatusBadRequest, "source not allowed")
		return
	}

	settings := pol.ParserSettings.Merge(req.Settings)
	key := cacheKey(req, pol, settings)
	result := s.autoCache.get(key)
	if result == nil {
		crawler := crawl.New(s.fetcher, s.logger, s.crawlConfig(req, pol))
		result, err = crawler.Crawl(ctx, req.SourceURL, settings)
		if err != nil {
			s.logger.Error("auto harvest crawl failed",
				zap.String("source_url", req.SourceURL), zap.Error(err))
			s.writeError(w, http.StatusBadGateway, "crawl failed")
			return
		}
		s.autoCache.set(key, result)
	}

	queued := []uuid.UUID{}
	skips := map[string]int{}
	for _, parsed := range result.Recipes {
		reason, jobID := s.considerRecipe(r, req, parsed, policies)
		if reason != "" {
			skips[reason]++
			continue
		}
		if jobID != nil {
			queued = append(queued, *jobID)
		}
	}

	for class, n := range result.ParseFailures {
		for i := 0; i < n; i++ {
			metrics.ObserveParseFailure(pol.Domain, class)
		}
	}
	for reason, n := range result.ComplianceReasons {
		for i := 0; i < n; i++ {
			metrics.ObserveComplianceRejection(pol.Domain, reason)
		}
	}

	s.writeJSON(w, http.StatusOK, autoHarvestResponse{
		Status:             "ok",
		DiscoveredURLs:     result.RecipeURLs,
		ParsedCount:        len(result.Recipes),
		QueuedJobIDs:       queued,
		ParserStats:        result.ParserStats,
		ConfidenceBuckets:  result.ConfidenceBuckets,
		FallbackClasses:    result.FallbackClasses,
		ParseFailures:      result.ParseFailures,
		ComplianceRejected: result.ComplianceRejections,
		ComplianceReasons:  result.ComplianceReasons,
		SkipReasons:        skips,
		Errors:             result.Errors,
	})
}

// considerRecipe applies the admission checks to one crawled recipe and,
// when enqueueing is on, creates the pending job. A non-empty reason means
// the recipe was skipped.
func (s *Server) considerRecipe(r *http.Request, req autoHarvestRequest, parsed *harvest.ParsedRecipe, policies []*policy.SourcePolicy) (string, *uuid.UUID) {
	ctx := r.Context()
	url := parsed.SourceURL
	if url == "" {
		return "missing_url", nil
	}
	pol := policy.Match(url, policies)
	if pol == nil {
		return "not_allowed", nil
	}
	if pol.MetricType == policy.MetricRatings {
		ratingValue := 0.0
		if parsed.RatingValue != nil {
			ratingValue = *parsed.RatingValue
		}
		ratingCount := 0
		if parsed.RatingCount != nil {
			ratingCount = *parsed.RatingCount
		}
		hasSocial := (parsed.LikeCount != nil && *parsed.LikeCount > 0) ||
			(parsed.ShareCount != nil && *parsed.ShareCount > 0)
		if (ratingCount < pol.MinRatingCount || ratingValue < pol.MinRatingValue) && !hasSocial {
			return "insufficient_signals", nil
		}
	}
	if _, err := s.recipes.GetBySourceURL(ctx, url); err == nil {
		return "existing_source", nil
	}
	if _, err := s.jobs.ActiveJobForURL(ctx, pol.ID, url); err == nil {
		return "existing_job_pending_or_running", nil
	}
	if !req.enqueueEnabled() {
		return "", nil
	}

	now := s.clock.Now()
	confidence := parsed.Confidence
	strategy := parsed.Strategy
	if strategy.Bucket == "" {
		strategy.Bucket = harvest.BucketFor(confidence)
	}
	jb := &harvest.Job{
		ID:          s.idGen.NewID(),
		PolicyID:    pol.ID,
		Domain:      pol.Domain,
		SourceURL:   url,
		Status:      harvest.StatusPending,
		MaxAttempts: s.cfg.Harvest.MaxAttempts,
		Strategy:    &strategy,
		Confidence:  &confidence,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if len(parsed.Ingredients) > 0 && len(parsed.Instructions) > 0 {
		jb.RawText = renderRawText(parsed)
	}
	if err := s.jobs.CreateJob(ctx, jb); err != nil {
		s.logger.Error("create auto-harvest job failed",
			zap.String("source_url", url), zap.Error(err))
		return "enqueue_failed", nil
	}
	if s.dispatcher != nil {
		if err := s.dispatcher.Enqueue(ctx, harvest.QueueItem{JobID: jb.ID, EnqueuedAt: now}); err != nil {
			s.logger.Warn("enqueue auto-harvest job failed",
				zap.String("job_id", jb.ID.String()), zap.Error(err))
		}
	}
	id := jb.ID
	return "", &id
}

// crawlConfig layers request overrides over the matched policy's crawl
// budget, with the service configuration as the floor.
func (s *Server) crawlConfig(req autoHarvestRequest, pol *policy.SourcePolicy) crawl.Config {
	cfg := crawl.Config{
		MaxPages:          pol.MaxPages,
		MaxRecipes:        pol.MaxRecipes,
		CrawlDepth:        pol.CrawlDepth,
		MaxLinks:          s.cfg.Crawl.MaxLinks,
		RespectRobots:     pol.RespectRobots,
		RequestsPerSecond: s.cfg.Crawl.RequestsPerSecond,
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = s.cfg.Crawl.MaxPages
	}
	if cfg.MaxRecipes <= 0 {
		cfg.MaxRecipes = s.cfg.Crawl.MaxRecipes
	}
	if cfg.CrawlDepth <= 0 {
		cfg.CrawlDepth = s.cfg.Crawl.CrawlDepth
	}
	if req.MaxPages > 0 {
		cfg.MaxPages = req.MaxPages
	}
	if req.MaxRecipes > 0 {
		cfg.MaxRecipes = req.MaxRecipes
	}
	if req.CrawlDepth > 0 {
		cfg.CrawlDepth = req.CrawlDepth
	}
	if req.MaxLinks > 0 {
		cfg.MaxLinks = req.MaxLinks
	}
	if req.RespectRobots != nil {
		cfg.RespectRobots = *req.RespectRobots
	}
	return cfg
}

// renderRawText flattens a parsed recipe back into the heading-and-bullet
// form the raw text parser accepts, preserving what the crawl extracted
// even if the page changes before the job runs.
func renderRawText(parsed *harvest.ParsedRecipe) string {
	lines := []string{parsed.Name, "Ingredients"}
	for _, ing := range parsed.Ingredients {
		qty := ing.Quantity
		if qty == "" {
			qty = "1"
		}
		unit := ing.Unit
		if unit == "" {
			unit = "unit"
		}
		lines = append(lines, strings.TrimSpace(fmt.Sprintf("- %s %s %s", qty, unit, ing.Name)))
	}
	lines = append(lines, "Instructions")
	for _, step := range parsed.Instructions {
		if step != "" {
			lines = append(lines, "- "+step)
		}
	}
	return strings.Join(lines, "\n")
}
