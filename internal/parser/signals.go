package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/tastewell/harvester/internal/policy"
)

var (
	countRegex        = regexp.MustCompile(`([0-9][0-9,]*(?:\.[0-9]+)?)\s*([kKmMbB])?\+?`)
	ratingCountRegex  = regexp.MustCompile(`([0-9][0-9,]*(?:\.[0-9]+)?)\s*([kKmMbB])?\+?\s*(?:ratings?|reviews?|votes?)`)
	socialCountRegex  = regexp.MustCompile(`([0-9][0-9,]*(?:\.[0-9]+)?)\s*([kKmMbB])?\+?\s*(?:likes?|shares?)`)
	likeCountRegex    = regexp.MustCompile(`([0-9][0-9,]*(?:\.[0-9]+)?)\s*([kKmMbB])?\+?\s*(?:likes?)`)
	shareCountRegex   = regexp.MustCompile(`([0-9][0-9,]*(?:\.[0-9]+)?)\s*([kKmMbB])?\+?\s*(?:shares?)`)
	starRegex         = regexp.MustCompile(`([0-5](?:\.[0-9]+)?)\s*(?:/|out of)\s*5`)
	bbcUserRatingsRe  = regexp.MustCompile(`(?i)"userRatings"\s*:\s*\{\s*"avg"\s*:\s*([0-5](?:\.[0-9]+)?)\s*,\s*"total"\s*:\s*([0-9]+)`)
)

// Signals bundles the engagement numbers scraped for one page.
type Signals struct {
	RatingValue *float64
	RatingCount *int
	LikeCount   *int
	ShareCount  *int
}

func toFloat(v any) *float64 {
	switch x := v.(type) {
	case float64:
		return &x
	case int:
		f := float64(x)
		return &f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}

func toInt(v any) *int {
	f := toFloat(v)
	if f == nil {
		return nil
	}
	i := int(*f)
	return &i
}

// compactInt interprets "1.2" + "k" style number/suffix pairs.
func compactInt(rawNumber, suffix string) *int {
	base, err := strconv.ParseFloat(strings.ReplaceAll(rawNumber, ",", ""), 64)
	if err != nil {
		return nil
	}
	factor := 1.0
	switch strings.ToLower(suffix) {
	case "k":
		factor = 1e3
	case "m":
		factor = 1e6
	case "b":
		factor = 1e9
	}
	n := int(base * factor)
	return &n
}

// firstCount extracts the most plausible count from free text, preferring
// numbers with rating/social context words and skipping star fractions.
func firstCount(text string) *int {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	for _, re := range []*regexp.Regexp{ratingCountRegex, socialCountRegex} {
		if m := re.FindStringSubmatch(text); m != nil {
			return compactInt(m[1], m[2])
		}
	}
	lowered := strings.ToLower(text)
	if starRegex.MatchString(text) && (strings.Contains(lowered, "rating") || strings.Contains(lowered, "out of")) {
		return nil
	}
	for _, m := range countRegex.FindAllStringSubmatch(text, -1) {
		parsed := compactInt(m[1], m[2])
		if parsed == nil {
			continue
		}
		if *parsed < 10 && (strings.Contains(text, "/5") || strings.Contains(lowered, "out of")) {
			continue
		}
		return parsed
	}
	return nil
}

// firstStar extracts a star rating like "4.5/5" or "4 out of 5"; plain
// numeric text is accepted as-is.
func firstStar(text string) *float64 {
	if text == "" {
		return nil
	}
	if m := starRegex.FindStringSubmatch(text); m != nil {
		return toFloat(m[1])
	}
	return toFloat(text)
}

// numeric attribute names probed on candidate nodes, in priority order.
var numericAttrs = []string{
	"content",
	"data-value",
	"data-rating",
	"data-rating-value",
	"data-rating-count",
	"data-review-count",
	"data-like-count",
	"data-share-count",
	"aria-label",
	"title",
}

func numericFromNode(node *goquery.Selection, star bool) *float64 {
	var raws []string
	for _, attr := range numericAttrs {
		if v, ok := node.Attr(attr); ok && v != "" {
			raws = append(raws, v)
		}
	}
	if text := nodeText(node); text != "" {
		raws = append(raws, text)
	}
	for _, raw := range raws {
		if star {
			if v := firstStar(raw); v != nil {
				return v
			}
			continue
		}
		if v := firstCount(raw); v != nil {
			f := float64(*v)
			return &f
		}
	}
	return nil
}

func numericFromSelectors(doc *goquery.Document, selectors []string, star bool) *float64 {
	var found *float64
	for _, sel := range selectors {
		doc.Find(sel).EachWithBreak(func(_ int, node *goquery.Selection) bool {
			found = numericFromNode(node, star)
			return found == nil
		})
		if found != nil {
			return found
		}
	}
	return nil
}

func signalsFromText(text string) Signals {
	var sig Signals
	lowered := strings.ToLower(text)
	if lowered == "" {
		return sig
	}
	if m := starRegex.FindStringSubmatch(lowered); m != nil {
		sig.RatingValue = toFloat(m[1])
	}
	if m := ratingCountRegex.FindStringSubmatch(lowered); m != nil {
		sig.RatingCount = compactInt(m[1], m[2])
	}
	if m := likeCountRegex.FindStringSubmatch(lowered); m != nil {
		sig.LikeCount = compactInt(m[1], m[2])
	}
	if m := shareCountRegex.FindStringSubmatch(lowered); m != nil {
		sig.ShareCount = compactInt(m[1], m[2])
	}
	return sig
}

var (
	genericRatingSelectors = []string{
		`[itemprop="ratingValue"]`, `meta[property="og:rating"]`, `meta[name="rating"]`, `[data-rating]`, `[data-rating-value]`,
	}
	genericRatingCountSelectors = []string{
		`[itemprop="ratingCount"]`, `[itemprop="reviewCount"]`, `[data-rating-count]`, `[data-review-count]`,
	}
	genericLikeSelectors  = []string{`[data-like-count]`, `[class*="like-count"]`, `[aria-label*="Like"]`}
	genericShareSelectors = []string{`[data-share-count]`, `[class*="share-count"]`, `[aria-label*="Share"]`}
)

// signalsFromDOM scrapes engagement numbers using generic selectors plus
// the profile's, then falls back to document text and finally to the BBC
// Good Food JSON payload hack.
func signalsFromDOM(p *Page) Signals {
	ratingSel := append([]string(nil), genericRatingSelectors...)
	ratingCountSel := append([]string(nil), genericRatingCountSelectors...)
	likeSel := append([]string(nil), genericLikeSelectors...)
	shareSel := append([]string(nil), genericShareSelectors...)
	if p.Profile != nil {
		ratingSel = append(ratingSel, p.Profile.RatingValueSelectors...)
		ratingCountSel = append(ratingCountSel, p.Profile.RatingCountSelectors...)
		likeSel = append(likeSel, p.Profile.LikeCountSelectors...)
		shareSel = append(shareSel, p.Profile.ShareCountSelectors...)
	}

	var sig Signals
	sig.RatingValue = numericFromSelectors(p.Doc, ratingSel, true)
	if v := numericFromSelectors(p.Doc, ratingCountSel, false); v != nil {
		n := int(*v)
		sig.RatingCount = &n
	}
	if v := numericFromSelectors(p.Doc, likeSel, false); v != nil {
		n := int(*v)
		sig.LikeCount = &n
	}
	if v := numericFromSelectors(p.Doc, shareSel, false); v != nil {
		n := int(*v)
		sig.ShareCount = &n
	}

	text := signalsFromText(docText(p.Doc))
	if sig.RatingValue == nil {
		sig.RatingValue = text.RatingValue
	}
	if sig.RatingCount == nil {
		sig.RatingCount = text.RatingCount
	}
	if sig.LikeCount == nil {
		sig.LikeCount = text.LikeCount
	}
	if sig.ShareCount == nil {
		sig.ShareCount = text.ShareCount
	}

	// BBC Good Food hides rating averages in a JSON blob instead of stable
	// aggregateRating markup; scrape it so ratings policies can still
	// enforce engagement thresholds.
	host := policy.NormalizedHost(p.URL)
	if strings.HasSuffix(host, "bbcgoodfood.com") && (sig.RatingCount == nil || *sig.RatingCount <= 0 || sig.RatingValue == nil) {
		raw := p.Doc.Find(`script#__POST_CONTENT__`).First().Text()
		if m := bbcUserRatingsRe.FindStringSubmatch(raw); m != nil {
			if sig.RatingValue == nil {
				sig.RatingValue = toFloat(m[1])
			}
			if sig.RatingCount == nil || *sig.RatingCount <= 0 {
				sig.RatingCount = toInt(m[2])
			}
		}
	}
	return sig
}
