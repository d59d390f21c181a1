// Package crawl implements the bounded breadth-first site crawl that
// feeds the harvesting pipeline: robots gating, sitemap seeding, frontier
// management and per-page parse accounting.
package crawl

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tastewell/harvester/internal/compliance"
	"github.com/tastewell/harvester/internal/crawl/urlutil"
	"github.com/tastewell/harvester/internal/fetch"
	"github.com/tastewell/harvester/internal/harvest"
	"github.com/tastewell/harvester/internal/parser"
	"github.com/tastewell/harvester/internal/policy"
)

// Config bounds a single crawl run.
type Config struct {
	MaxPages          int
	MaxRecipes        int
	CrawlDepth        int
	MaxLinks          int
	RespectRobots     bool
	RequestsPerSecond float64
}

// DefaultConfig returns the crawl bounds used when the caller does not
// override them.
func DefaultConfig() Config {
	return Config{
		MaxPages:          40,
		MaxRecipes:        20,
		CrawlDepth:        2,
		MaxLinks:          200,
		RespectRobots:     true,
		RequestsPerSecond: 2,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxPages <= 0 {
		c.MaxPages = d.MaxPages
	}
	if c.MaxRecipes <= 0 {
		c.MaxRecipes = d.MaxRecipes
	}
	if c.CrawlDepth <= 0 {
		c.CrawlDepth = d.CrawlDepth
	}
	if c.MaxLinks <= 0 {
		c.MaxLinks = d.MaxLinks
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = d.RequestsPerSecond
	}
	return c
}

// Crawler walks one source site breadth-first within the configured
// bounds and parses every admissible page it visits.
type Crawler struct {
	fetcher harvest.Fetcher
	cascade *parser.Cascade
	limiter *rate.Limiter
	logger  *zap.Logger
	cfg     Config
}

// New builds a Crawler. The limiter spaces out every outbound request,
// robots and sitemap fetches included.
func New(fetcher harvest.Fetcher, logger *zap.Logger, cfg Config) *Crawler {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		fetcher: fetcher,
		cascade: parser.NewCascade(),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:  logger,
		cfg:     cfg,
	}
}

// get performs one rate-limited fetch.
func (c *Crawler) get(ctx context.Context, url string) (*harvest.FetchResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.fetcher.Fetch(ctx, url)
}

type frontierItem struct {
	url   string
	depth int
}

// Crawl walks the site rooted at sourceURL. The run ends when the
// frontier empties, the visited-page bound is hit, or enough recipes have
// been collected. Only the robots disallow-all case aborts up front; all
// other failures are tallied per page.
func (c *Crawler) Crawl(ctx context.Context, sourceURL string, settings *policy.ParserSettings) (*harvest.CrawlResult, error) {
	seed := urlutil.Normalize(sourceURL)
	result := &harvest.CrawlResult{
		SeedURL:           seed,
		ParserStats:       map[string]int{},
		ConfidenceBuckets: map[string]int{},
		ComplianceReasons: map[string]int{},
		ParseFailures:     map[string]int{},
		FallbackClasses:   map[string]int{},
	}

	if c.cfg.RespectRobots {
		if allowed, _ := c.probeRobots(ctx, seed); !allowed {
			c.logger.Info("crawl blocked by robots", zap.String("seed", seed))
			result.ComplianceRejections = 1
			result.ComplianceReasons["robots-disallow-all"] = 1
			result.Errors = []string{"robots disallow all"}
			return result, nil
		}
	}

	queue := []frontierItem{{url: seed, depth: 0}}
	visited := map[string]struct{}{}

	if c.useSitemaps(seed, settings) {
		for _, link := range c.discoverSitemapLinks(ctx, seed, settings) {
			if len(queue) >= c.cfg.MaxPages {
				break
			}
			normalized := urlutil.Normalize(link)
			if normalized == "" {
				continue
			}
			if _, ok := visited[normalized]; ok {
				continue
			}
			if urlutil.SameHost(normalized, seed) {
				queue = append(queue, frontierItem{url: normalized, depth: 1})
			}
		}
	}

	for len(queue) > 0 && len(visited) < c.cfg.MaxPages && len(result.Recipes) < c.cfg.MaxRecipes {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		item := queue[0]
		queue = queue[1:]
		currentURL := urlutil.Normalize(item.url)
		if currentURL == "" {
			continue
		}
		if _, ok := visited[currentURL]; ok {
			continue
		}
		visited[currentURL] = struct{}{}

		res, err := c.get(ctx, currentURL)
		if err != nil {
			class := fetch.ClassifyError(err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: fetch_failed (%s)", currentURL, class))
			result.ParseFailures["fetch_failed:"+class]++
			continue
		}
		html := string(res.Body)

		gate := compliance.EvaluateHTML(html, currentURL, settings)
		if !gate.Allowed {
			result.ComplianceRejections++
			for _, reason := range gate.Reasons {
				result.ComplianceReasons[reason]++
			}
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s: compliance check failed (%s)", currentURL, strings.Join(gate.Reasons, ", ")))
			continue
		}

		parsed := c.cascade.Parse(html, currentURL, settings)
		if parsed != nil {
			minConfidence := settings.MinConfidence()
			allowLow := settings.LowConfidenceAllowed()
			if parsed.Confidence < minConfidence && !allowLow {
				recovered := c.cascade.ParseWithRecovery(html, currentURL, parser.FailureLowConfidence, settings)
				if recovered != nil && (recovered.Confidence >= minConfidence || allowLow) {
					parsed = recovered
				} else {
					result.ParseFailures[parser.FailureLowConfidence]++
					result.Errors = append(result.Errors,
						fmt.Sprintf("%s: parse failed (%s:%v)", currentURL, parser.FailureLowConfidence, parsed.Confidence))
					continue
				}
			}
			c.record(result, parsed, currentURL)
			continue
		}

		failure := parser.ClassifyParseFailure(parser.NewPage(html, currentURL, settings))
		if recovered := c.cascade.ParseWithRecovery(html, currentURL, failure, settings); recovered != nil {
			c.record(result, recovered, currentURL)
			continue
		}
		result.ParseFailures[failure]++
		result.Errors = append(result.Errors, fmt.Sprintf("%s: parse failed (%s)", currentURL, failure))

		if item.depth >= c.cfg.CrawlDepth {
			continue
		}
		for _, link := range DiscoverRecipeLinks(html, currentURL, c.cfg.MaxLinks, settings) {
			if len(visited)+len(queue) >= c.cfg.MaxPages {
				break
			}
			normalized := urlutil.Normalize(link)
			if normalized == "" {
				continue
			}
			if _, ok := visited[normalized]; ok {
				continue
			}
			if !urlutil.SameHost(normalized, seed) {
				continue
			}
			queue = append(queue, frontierItem{url: normalized, depth: item.depth + 1})
		}
	}

	result.PagesCrawled = len(visited)
	return result, nil
}

// record tallies a successful parse into the crawl result.
func (c *Crawler) record(result *harvest.CrawlResult, parsed *harvest.ParsedRecipe, currentURL string) {
	parsed.SourceURL = currentURL
	result.ParserStats[statKey(parsed.Strategy)]++
	result.ConfidenceBuckets[string(harvest.BucketFor(parsed.Confidence))]++
	if parsed.Strategy.Kind == harvest.KindDOMFallback {
		class := parsed.Strategy.FallbackClass
		if class == "" {
			class = "unclassified"
		}
		result.FallbackClasses[class]++
	}
	result.Recipes = append(result.Recipes, parsed)
	result.RecipeURLs = append(result.RecipeURLs, currentURL)
}

// statKey keeps parser stats low-cardinality: the strategy kind, prefixed
// when the parse only succeeded after recovery.
func statKey(s harvest.Strategy) string {
	if s.Recovered {
		return "recovery_" + string(s.Kind)
	}
	return string(s.Kind)
}

// useSitemaps decides whether sitemap seeding applies. Deep seed paths
// are taken as operator intent to scope discovery to that section, so
// sitemaps default off for them.
func (c *Crawler) useSitemaps(seed string, settings *policy.ParserSettings) bool {
	parsed, err := url.Parse(seed)
	seedPath := ""
	if err == nil {
		seedPath = parsed.Path
	}
	if settings != nil && settings.UseSitemaps != nil {
		return *settings.UseSitemaps
	}
	return seedPath == "" || seedPath == "/"
}
