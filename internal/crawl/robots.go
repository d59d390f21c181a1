package crawl

import (
	"context"
	"net/url"

	"github.com/temoto/robotstxt"
)

// probeRobots fetches and parses /robots.txt for the seed's host. It
// reports whether crawling is allowed at all (a wildcard "Disallow: /"
// blocks the site) and returns any advertised sitemap URLs. A missing or
// unreadable robots.txt allows the crawl.
func (c *Crawler) probeRobots(ctx context.Context, baseURL string) (bool, []string) {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Host == "" {
		return true, nil
	}
	robotsURL := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/robots.txt"}

	res, err := c.get(ctx, robotsURL.String())
	if err != nil {
		return true, nil
	}
	data, err := robotstxt.FromBytes(res.Body)
	if err != nil {
		return true, nil
	}
	allowed := true
	if group := data.FindGroup("*"); group != nil && !group.Test("/") {
		allowed = false
	}
	return allowed, data.Sitemaps
}
