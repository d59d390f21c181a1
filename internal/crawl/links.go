package crawl

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/tastewell/harvester/internal/crawl/urlutil"
	"github.com/tastewell/harvester/internal/parser"
	"github.com/tastewell/harvester/internal/policy"
)

// DiscoverRecipeLinks extracts candidate recipe URLs from a page. Pages
// that are actually sitemap XML are handled first; otherwise links come
// from JSON-LD ItemList entries, anchors and absolute meta content URLs,
// deduplicated after normalization.
func DiscoverRecipeLinks(html, baseURL string, maxLinks int, settings *policy.ParserSettings) []string {
	stripped := strings.TrimLeft(html, " \t\r\n")
	head := stripped
	if len(head) > 2000 {
		head = head[:2000]
	}
	if strings.HasPrefix(stripped, "<?xml") || strings.Contains(head, "<urlset") || strings.Contains(head, "<sitemapindex") {
		if links := sitemapRecipeLocs(stripped, maxLinks, settings); len(links) > 0 {
			return links
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	base, baseErr := url.Parse(baseURL)

	var links []string
	for _, u := range parser.ItemListURLs(doc) {
		links = append(links, resolveRef(base, baseErr, u))
	}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if href == "" {
			return
		}
		// Resolve before filtering so relative links match the host's
		// profile hints rather than the generic list.
		resolved := resolveRef(base, baseErr, href)
		if urlutil.IsProbableRecipeURL(resolved, settings) {
			links = append(links, resolved)
		}
	})
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content, _ := s.Attr("content")
		if strings.HasPrefix(content, "http") && urlutil.IsProbableRecipeURL(content, settings) {
			links = append(links, content)
		}
	})

	var normalized []string
	seen := map[string]struct{}{}
	for _, link := range links {
		cleaned := urlutil.Normalize(link)
		if _, ok := seen[cleaned]; ok {
			continue
		}
		seen[cleaned] = struct{}{}
		normalized = append(normalized, cleaned)
		if len(normalized) >= maxLinks {
			break
		}
	}
	return normalized
}

func resolveRef(base *url.URL, baseErr error, ref string) string {
	if baseErr != nil || base == nil {
		return ref
	}
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}
