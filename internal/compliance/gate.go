// Package compliance screens already-fetched pages before any recipe
// extraction is attempted. Every check runs against the document alone and
// never triggers another fetch.
package compliance

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/tastewell/harvester/internal/crawl/urlutil"
	"github.com/tastewell/harvester/internal/parser"
	"github.com/tastewell/harvester/internal/policy"
)

// Rejection reason codes, stable for telemetry and alerting.
const (
	ReasonRobotsMetaBlocked     = "robots-meta-blocked"
	ReasonCanonicalHostMismatch = "canonical-host-mismatch"
	ReasonNonRecipePage         = "non-recipe-page"
	ReasonMissingRecipeMarkers  = "missing-recipe-markers"
	ReasonPaywallDetected       = "paywall-detected"
)

var defaultBlockedTitleKeywords = []string{"privacy", "terms", "cookie", "login", "sign in"}

var paywallPhrases = []string{"subscribe to continue", "members only", "subscriber-only"}

// Result is the gate's verdict for one page.
type Result struct {
	Allowed bool     `json:"allowed"`
	Reasons []string `json:"reasons,omitempty"`
}

// Evaluate runs the five compliance checks against a parsed page and
// collects every reason that applies.
func Evaluate(page *parser.Page) Result {
	if page == nil || page.Doc == nil {
		return Result{Allowed: false, Reasons: []string{ReasonMissingRecipeMarkers}}
	}
	var reasons []string

	if robotsMetaBlocked(page.Doc) {
		reasons = append(reasons, ReasonRobotsMetaBlocked)
	}
	if canonicalHostMismatch(page.Doc, page.URL) {
		reasons = append(reasons, ReasonCanonicalHostMismatch)
	}
	if blockedTitle(page) {
		reasons = append(reasons, ReasonNonRecipePage)
	}
	if missingRecipeMarkers(page) {
		reasons = append(reasons, ReasonMissingRecipeMarkers)
	}
	if paywalled(page.Doc) {
		reasons = append(reasons, ReasonPaywallDetected)
	}
	return Result{Allowed: len(reasons) == 0, Reasons: reasons}
}

// EvaluateHTML is a convenience wrapper building the page first.
func EvaluateHTML(html, pageURL string, settings *policy.ParserSettings) Result {
	return Evaluate(parser.NewPage(html, pageURL, settings))
}

func robotsMetaBlocked(doc *goquery.Document) bool {
	blocked := false
	doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.EqualFold(s.AttrOr("name", ""), "robots") {
			return true
		}
		content := strings.ToLower(s.AttrOr("content", ""))
		if strings.Contains(content, "noindex") || strings.Contains(content, "nofollow") {
			blocked = true
			return false
		}
		return true
	})
	return blocked
}

func canonicalHostMismatch(doc *goquery.Document, sourceURL string) bool {
	var href string
	doc.Find("link").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.Contains(strings.ToLower(s.AttrOr("rel", "")), "canonical") {
			return true
		}
		href = strings.TrimSpace(s.AttrOr("href", ""))
		return href == ""
	})
	if href == "" {
		return false
	}
	canonicalHost := policy.NormalizedHost(href)
	sourceHost := policy.NormalizedHost(sourceURL)
	if canonicalHost == "" || sourceHost == "" || canonicalHost == sourceHost {
		return false
	}
	return !strings.HasSuffix(canonicalHost, "."+sourceHost)
}

func pageTitle(page *parser.Page) string {
	title := strings.Join(strings.Fields(page.Doc.Find("title").First().Text()), " ")
	if title != "" {
		return title
	}
	var og string
	page.Doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.EqualFold(s.AttrOr("property", ""), "og:title") {
			return true
		}
		og = strings.TrimSpace(s.AttrOr("content", ""))
		return og == ""
	})
	return og
}

func blockedTitle(page *parser.Page) bool {
	title := strings.ToLower(pageTitle(page))
	if title == "" {
		return false
	}
	keywords := defaultBlockedTitleKeywords
	if page.Profile != nil && len(page.Profile.BlockedTitleKeywords) > 0 {
		keywords = page.Profile.BlockedTitleKeywords
	}
	for _, kw := range keywords {
		if strings.Contains(title, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// missingRecipeMarkers applies only to URLs that look like recipe pages:
// category and index seeds stay crawlable for link discovery. A page
// passes when any required marker appears in the text, a recipe schema is
// present, or a profile selector matches (editorial pages with embedded
// recipe widgets often skip the usual headings).
func missingRecipeMarkers(page *parser.Page) bool {
	if !urlutil.IsProbableRecipeURL(page.URL, page.Settings) {
		return false
	}
	markers := []string{"ingredients", "instructions"}
	if page.Profile != nil && len(page.Profile.RequiredTextMarkers) > 0 {
		markers = page.Profile.RequiredTextMarkers
	}
	text := strings.ToLower(strings.Join(strings.Fields(page.Doc.Find("body").Text()), " "))
	for _, marker := range markers {
		if strings.Contains(text, strings.ToLower(marker)) {
			return false
		}
	}
	if parser.HasRecipeSchema(page.Doc) {
		return false
	}
	if page.Profile != nil {
		selectors := append(append([]string(nil), page.Profile.IngredientSelectors...), page.Profile.InstructionSelectors...)
		for _, sel := range selectors {
			if sel != "" && page.Doc.Find(sel).Length() > 0 {
				return false
			}
		}
	}
	return true
}

func paywalled(doc *goquery.Document) bool {
	text := strings.ToLower(strings.Join(strings.Fields(doc.Find("body").Text()), " "))
	for _, phrase := range paywallPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
