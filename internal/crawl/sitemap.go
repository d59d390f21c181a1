package crawl

import (
	"context"
	"net/url"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/tastewell/harvester/internal/crawl/urlutil"
	"github.com/tastewell/harvester/internal/policy"
)

// sitemapLocs pulls every <loc> value out of a sitemap or sitemap-index
// document. Malformed XML yields nothing rather than an error.
func sitemapLocs(content string, maxLinks int) []string {
	doc, err := xmlquery.Parse(strings.NewReader(strings.TrimSpace(content)))
	if err != nil {
		return nil
	}
	var locs []string
	for _, node := range xmlquery.Find(doc, "//loc") {
		loc := strings.TrimSpace(node.InnerText())
		if loc == "" {
			continue
		}
		locs = append(locs, loc)
		if len(locs) >= maxLinks {
			break
		}
	}
	return locs
}

// sitemapRecipeLocs keeps only the <loc> entries that look like recipe
// pages under the effective policy settings.
func sitemapRecipeLocs(content string, maxLinks int, settings *policy.ParserSettings) []string {
	var links []string
	for _, loc := range sitemapLocs(content, maxLinks) {
		if urlutil.IsProbableRecipeURL(loc, settings) {
			links = append(links, loc)
			if len(links) >= maxLinks {
				break
			}
		}
	}
	return links
}

// discoverSitemapLinks resolves the site's sitemaps (conventional paths
// plus any robots.txt advertised) and collects probable recipe URLs,
// following one level of sitemap-index indirection.
func (c *Crawler) discoverSitemapLinks(ctx context.Context, baseURL string, settings *policy.ParserSettings) []string {
	allowed, robotsSitemaps := c.probeRobots(ctx, baseURL)
	if !allowed {
		return nil
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Host == "" {
		return nil
	}
	root := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}
	candidates := []string{
		root.JoinPath("/sitemap.xml").String(),
		root.JoinPath("/sitemap_index.xml").String(),
	}
	for _, sm := range robotsSitemaps {
		if !contains(candidates, sm) {
			candidates = append(candidates, sm)
		}
	}

	maxLinks := c.cfg.MaxLinks
	var discovered []string
	seen := map[string]struct{}{}
	appendLink := func(link string) bool {
		if _, ok := seen[link]; !ok {
			seen[link] = struct{}{}
			discovered = append(discovered, link)
		}
		return len(discovered) < maxLinks
	}

	for _, sitemapURL := range candidates {
		if len(discovered) >= maxLinks {
			break
		}
		res, err := c.get(ctx, sitemapURL)
		if err != nil {
			continue
		}
		content := string(res.Body)
		children := sitemapLocs(content, maxLinks)
		if len(children) > 0 && anyXML(children) {
			for _, child := range children {
				if len(discovered) >= maxLinks {
					break
				}
				if _, ok := seen[child]; ok {
					continue
				}
				seen[child] = struct{}{}
				childRes, err := c.get(ctx, child)
				if err != nil {
					continue
				}
				for _, link := range sitemapRecipeLocs(string(childRes.Body), maxLinks, settings) {
					if !appendLink(link) {
						break
					}
				}
			}
			continue
		}
		for _, link := range sitemapRecipeLocs(content, maxLinks, settings) {
			if !appendLink(link) {
				break
			}
		}
	}
	if len(discovered) > maxLinks {
		discovered = discovered[:maxLinks]
	}
	return discovered
}

func anyXML(links []string) bool {
	for _, link := range links {
		if strings.HasSuffix(link, ".xml") {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
