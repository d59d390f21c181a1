// Package parser turns fetched HTML into structured recipes. Extraction
// runs as a cascade of strategies (JSON-LD, domain DOM, microdata, generic
// DOM fallback); policy settings control which strategies run and in what
// order, and a recovery engine patches settings for a single re-parse after
// a classified failure.
package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/tastewell/harvester/internal/harvest"
	"github.com/tastewell/harvester/internal/policy"
	"github.com/tastewell/harvester/internal/profile"
)

// Page carries one document through the cascade along with its resolved
// profile and settings.
type Page struct {
	Doc      *goquery.Document
	URL      string
	Profile  *profile.Profile
	Settings *policy.ParserSettings
}

// Strategy is one extraction approach. Extract returns nil when the
// strategy cannot produce a valid recipe from the page.
type Strategy interface {
	Kind() harvest.Kind
	Extract(p *Page) *harvest.ParsedRecipe
}

// Cascade runs the configured strategies in order.
type Cascade struct {
	jsonld    Strategy
	domainDOM Strategy
	microdata Strategy
	fallback  Strategy
}

// NewCascade builds the default strategy set.
func NewCascade() *Cascade {
	return &Cascade{
		jsonld:    jsonldStrategy{},
		domainDOM: domainDOMStrategy{},
		microdata: microdataStrategy{},
		fallback:  fallbackStrategy{},
	}
}

// NewPage parses raw HTML into a Page. Returns nil when the document
// cannot be constructed at all.
func NewPage(html, pageURL string, settings *policy.ParserSettings) *Page {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	return &Page{
		Doc:      doc,
		URL:      pageURL,
		Profile:  profile.Effective(profile.ForURL(pageURL), settings),
		Settings: settings,
	}
}

// Parse runs the cascade over raw HTML and attaches a confidence score to
// the winning extraction. Returns nil when no strategy produced a valid
// recipe.
func (c *Cascade) Parse(html, pageURL string, settings *policy.ParserSettings) *harvest.ParsedRecipe {
	page := NewPage(html, pageURL, settings)
	if page == nil {
		return nil
	}
	return c.parsePage(page)
}

func (c *Cascade) parsePage(p *Page) *harvest.ParsedRecipe {
	s := p.Settings

	if s.PreferDomain() && s.DomainDOMEnabled() {
		if rec := c.domainDOM.Extract(p); rec != nil {
			return c.finish(rec, p)
		}
	}
	if s.JSONLDEnabled() {
		if rec := c.jsonld.Extract(p); rec != nil {
			return c.finish(rec, p)
		}
	}
	if s.DomainDOMEnabled() {
		if rec := c.domainDOM.Extract(p); rec != nil {
			return c.finish(rec, p)
		}
	}
	if s.MicrodataEnabled() {
		if rec := c.microdata.Extract(p); rec != nil {
			return c.finish(rec, p)
		}
	}
	if s.DOMFallbackEnabled() {
		if rec := c.fallback.Extract(p); rec != nil {
			return c.finish(rec, p)
		}
	}
	return nil
}

func (c *Cascade) finish(rec *harvest.ParsedRecipe, p *Page) *harvest.ParsedRecipe {
	rec.SourceURL = p.URL
	AttachConfidence(rec, p)
	return rec
}

// nodeText collapses a selection's text to single-space separated tokens,
// mirroring a whitespace-normalized text extraction.
func nodeText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// docText returns the whole document's normalized text.
func docText(doc *goquery.Document) string {
	return strings.Join(strings.Fields(doc.Find("body").Text()), " ")
}

func selectorMatchCount(doc *goquery.Document, selectors []string) int {
	total := 0
	for _, sel := range selectors {
		total += doc.Find(sel).Length()
	}
	return total
}

// sectionListItems walks headings matching any keyword and harvests the
// list items (or paragraphs) of the enclosing section, falling back to the
// heading's next list sibling.
func sectionListItems(doc *goquery.Document, keywords []string) []string {
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		lowered = append(lowered, strings.ToLower(kw))
	}
	var collected []string
	doc.Find("h2, h3, h4, strong").EachWithBreak(func(_ int, heading *goquery.Selection) bool {
		label := strings.ToLower(nodeText(heading))
		if label == "" {
			return true
		}
		matched := false
		for _, kw := range lowered {
			if strings.Contains(label, kw) {
				matched = true
				break
			}
		}
		if !matched {
			return true
		}
		section := heading.ParentsFiltered("section, div, article").First()
		if section.Length() == 0 {
			section = heading.Parent()
		}
		if section.Length() == 0 {
			return true
		}
		section.Find("li, p").Each(func(_ int, node *goquery.Selection) {
			text := nodeText(node)
			if text != "" && len(strings.Fields(text)) >= 2 {
				collected = append(collected, text)
			}
		})
		if len(collected) > 0 {
			return false
		}
		sibling := heading.NextAllFiltered("ul, ol").First()
		sibling.Find("li").Each(func(_ int, node *goquery.Selection) {
			if text := nodeText(node); text != "" {
				collected = append(collected, text)
			}
		})
		return len(collected) == 0
	})
	return collected
}

func ingredientHeadingKeywords(s *policy.ParserSettings) []string {
	if s != nil && len(s.IngredientHeadings) > 0 {
		return lowerAll(s.IngredientHeadings)
	}
	return []string{"ingredients", "for the cocktail", "what you'll need"}
}

func instructionHeadingKeywords(s *policy.ParserSettings) []string {
	if s != nil && len(s.InstructionHeadings) > 0 {
		return lowerAll(s.InstructionHeadings)
	}
	return []string{"directions", "method", "instructions", "preparation", "steps"}
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(strings.ToLower(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// pageName resolves the recipe title: first h1, then og:title.
func pageName(doc *goquery.Document) string {
	if name := nodeText(doc.Find("h1").First()); name != "" {
		return name
	}
	return metaContent(doc, "property", "og:title")
}

// metaContent finds the first meta tag with the given attribute value and
// returns its content, matching the attribute case-insensitively.
func metaContent(doc *goquery.Document, attr, value string) string {
	var out string
	doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.EqualFold(s.AttrOr(attr, ""), value) {
			return true
		}
		out = strings.TrimSpace(s.AttrOr("content", ""))
		return out == ""
	})
	return out
}

func pageDescription(doc *goquery.Document) string {
	return metaContent(doc, "property", "og:description")
}
