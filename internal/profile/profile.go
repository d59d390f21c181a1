// Package profile carries the built-in per-domain DOM selector bundles the
// parser and compliance gate consult for known recipe sites.
package profile

import (
	"github.com/tastewell/harvester/internal/policy"
)

// Profile bundles the selectors and URL heuristics for one source domain.
type Profile struct {
	Domain string

	IngredientSelectors  []string
	InstructionSelectors []string
	RatingValueSelectors []string
	RatingCountSelectors []string
	LikeCountSelectors   []string
	ShareCountSelectors  []string

	RequiredTextMarkers  []string
	BlockedTitleKeywords []string
	RecipePathHints      []string
	BlockedPathHints     []string
}

var builtin = []*Profile{
	{
		Domain: "allrecipes.com",
		IngredientSelectors: []string{
			`[data-testid="recipe-ingredients-item"]`,
			`li.mm-recipes-structured-ingredients__list-item`,
			`[id*="mntl-structured-ingredients"] li`,
			`[id*="mntl-structured-ingredients"] .mntl-structured-ingredients__list-item`,
			`[class*="recipe-ingredients"] li`,
			`[class*="ingredients-list"] li`,
		},
		InstructionSelectors: []string{
			`[data-testid="recipe-instructions"] li`,
			`[id*="recipe__steps-content"] li`,
			`[class*="instructions"] li`,
			`[class*="recipe-directions"] li`,
			`[class*="recipe-instructions"] li`,
		},
		RatingValueSelectors: []string{
			`[itemprop="ratingValue"]`,
			`.mntl-recipe-review-bar__rating`,
			`[data-rating-stars]`,
			`[data-rating]`,
			`[aria-label*="rating"]`,
		},
		RatingCountSelectors: []string{
			`[itemprop="ratingCount"]`,
			`[itemprop="reviewCount"]`,
			`.mntl-recipe-review-bar__rating-count`,
			`[data-ratings-count]`,
			`[data-rating-count]`,
			`[class*="review-count"]`,
		},
		LikeCountSelectors: []string{
			`[data-like-count]`, `[class*="like-count"]`, `[aria-label*="Like"]`, `[class*="favorite-count"]`,
		},
		ShareCountSelectors: []string{
			`[data-share-count]`, `[class*="share-count"]`, `[aria-label*="Share"]`, `[class*="social-count"]`,
		},
		RequiredTextMarkers:  []string{"ingredients", "directions"},
		BlockedTitleKeywords: []string{"privacy", "terms", "cookie", "login", "sign in"},
		RecipePathHints:      []string{"/recipe/"},
		BlockedPathHints: []string{
			"/privacy", "/terms", "/account/", "/signin", "/login", "/news/", "/about-", "/recipes-a-z",
		},
	},
	{
		Domain: "bbcgoodfood.com",
		IngredientSelectors: []string{
			`.recipe__ingredients li`,
			`[class*="ingredients-list"] li`,
			`[class*="recipe-ingredients"] li`,
			`[class*="ingredients"] li`,
		},
		InstructionSelectors: []string{
			`.recipe__method-steps li`,
			`[class*="method-steps"] li`,
			`[class*="recipe-method"] li`,
			`[class*="instructions"] li`,
		},
		RatingValueSelectors: []string{
			`[itemprop="ratingValue"]`, `[class*="rating"] [class*="value"]`, `[data-rating]`,
		},
		RatingCountSelectors: []string{
			`[itemprop="ratingCount"]`, `[itemprop="reviewCount"]`, `[class*="rating"] [class*="count"]`, `[class*="review-count"]`,
		},
		LikeCountSelectors:   []string{`[data-like-count]`, `[class*="like-count"]`},
		ShareCountSelectors:  []string{`[data-share-count]`, `[class*="share-count"]`},
		RequiredTextMarkers:  []string{"ingredients", "method"},
		BlockedTitleKeywords: []string{"privacy", "terms", "cookie", "subscribe"},
		RecipePathHints:      []string{"/recipes/"},
		BlockedPathHints: []string{
			"/recipes/collection/", "/recipes/category/", "/news-", "/review/", "/health/", "/howto/", "/feature/", "/recipes/search",
		},
	},
	{
		Domain: "food.com",
		IngredientSelectors: []string{
			`.recipe-ingredients li`,
			`.recipe-ingredients__ingredient`,
			`[class*="ingredients"] li`,
			`[class*="ingredient-list"] li`,
		},
		InstructionSelectors: []string{
			`.recipe-directions li`,
			`[class*="directions"] li`,
			`[class*="instructions"] li`,
			`[class*="method"] li`,
		},
		RatingValueSelectors: []string{
			`[itemprop="ratingValue"]`, `[class*="rating"] [class*="value"]`, `[data-rating]`,
		},
		RatingCountSelectors: []string{
			`[itemprop="ratingCount"]`, `[itemprop="reviewCount"]`, `[class*="review-count"]`, `[data-rating-count]`,
		},
		LikeCountSelectors:   []string{`[data-like-count]`, `[class*="save-count"]`},
		ShareCountSelectors:  []string{`[data-share-count]`, `[class*="share-count"]`},
		RequiredTextMarkers:  []string{"ingredients", "directions"},
		BlockedTitleKeywords: []string{"privacy", "terms", "cookie", "login"},
		RecipePathHints:      []string{"/recipe/"},
		BlockedPathHints:     []string{"/ideas/", "/article/", "/about", "/privacy", "/terms"},
	},
	{
		Domain: "diffordsguide.com",
		IngredientSelectors: []string{
			`.recipe-ingredients li`, `[class*="ingredients"] li`,
		},
		InstructionSelectors: []string{
			`.recipe-method li`, `[class*="method"] li`, `[class*="preparation"] li`,
		},
		RatingValueSelectors: []string{`[itemprop="ratingValue"]`, `[class*="rating"] [class*="value"]`},
		RatingCountSelectors: []string{`[itemprop="ratingCount"]`, `[class*="rating"] [class*="count"]`},
		LikeCountSelectors:   []string{`[data-like-count]`, `[class*="like-count"]`},
		ShareCountSelectors:  []string{`[data-share-count]`, `[class*="share-count"]`},
		RequiredTextMarkers:  []string{"ingredients", "method"},
		BlockedTitleKeywords: []string{"privacy", "terms", "cookie", "subscribe"},
		RecipePathHints:      []string{"/cocktails/recipe/"},
		BlockedPathHints: []string{
			"/encyclopedia/", "/cocktails/search", "/cocktails/how-to-make", "/cocktails/most-viewed",
			"/cocktails/20-best", "/cocktails/directory", "/forum/",
		},
	},
	{
		Domain: "imbibemagazine.com",
		IngredientSelectors: []string{
			`.wprm-recipe-ingredient`, `.mv-create-ingredients li`, `[class*="ingredients"] li`,
		},
		InstructionSelectors: []string{
			`.wprm-recipe-instruction-text`, `.mv-create-instructions li`, `[class*="instructions"] li`,
		},
		RatingValueSelectors: []string{`[itemprop="ratingValue"]`, `[class*="rating"] [class*="value"]`},
		RatingCountSelectors: []string{`[itemprop="ratingCount"]`, `[itemprop="reviewCount"]`},
		LikeCountSelectors:   []string{`[data-like-count]`, `[class*="like-count"]`},
		ShareCountSelectors:  []string{`[data-share-count]`, `[class*="shared-count"]`},
		RequiredTextMarkers:  []string{"ingredients", "instructions", "directions", "method"},
		BlockedTitleKeywords: []string{"privacy", "terms", "cookie", "subscribe"},
		RecipePathHints:      []string{"/recipe/"},
		BlockedPathHints: []string{
			"/category/recipes/", "/category/", "/events/", "/shop/", "/about/", "/newsletter/", "/recipes/page/",
		},
	},
	{
		Domain: "punchdrink.com",
		IngredientSelectors: []string{
			`.wprm-recipe-ingredient`, `.entry-content [class*="ingredients"] li`, `[class*="ingredients"] li`,
		},
		InstructionSelectors: []string{
			`.wprm-recipe-instruction-text`, `[class*="instructions"] li`, `.entry-content [class*="method"] li`,
		},
		RatingValueSelectors: []string{`[itemprop="ratingValue"]`, `[class*="rating"] [class*="value"]`},
		RatingCountSelectors: []string{`[itemprop="ratingCount"]`, `[itemprop="reviewCount"]`},
		LikeCountSelectors:   []string{`[data-like-count]`, `[class*="like-count"]`},
		ShareCountSelectors:  []string{`[data-share-count]`, `[class*="shared-count"]`},
		RequiredTextMarkers:  []string{"ingredients", "instructions", "directions", "method"},
		BlockedTitleKeywords: []string{"privacy", "terms", "cookie", "subscribe"},
		RecipePathHints:      []string{"/recipes/"},
		BlockedPathHints: []string{
			"/recipe-archives", "/article/", "/city-guides/", "/menus/", "/how-to/", "/news/", "/pro/",
		},
	},
}

// ForURL returns the builtin profile whose domain matches the URL's host,
// or nil when the host is unknown.
func ForURL(rawURL string) *Profile {
	host := policy.NormalizedHost(rawURL)
	if host == "" {
		return nil
	}
	return ForHost(host)
}

// ForHost matches a normalized host against the builtin profiles.
func ForHost(host string) *Profile {
	for _, p := range builtin {
		if host == p.Domain || hasParent(host, p.Domain) {
			return p
		}
	}
	return nil
}

func hasParent(host, domain string) bool {
	return len(host) > len(domain) && host[len(host)-len(domain)-1] == '.' &&
		host[len(host)-len(domain):] == domain
}

// Effective overlays non-empty settings fields on top of a builtin profile
// and returns the resolved view. Unknown domains resolve to nil: selector
// overrides tune a known profile, they do not conjure one.
func Effective(p *Profile, s *policy.ParserSettings) *Profile {
	if p == nil {
		return nil
	}
	out := &Profile{}
	*out = *p
	if s == nil {
		return out
	}
	override := func(dst *[]string, src []string) {
		if len(src) > 0 {
			*dst = append([]string(nil), src...)
		}
	}
	override(&out.IngredientSelectors, s.IngredientSelectors)
	override(&out.InstructionSelectors, s.InstructionSelectors)
	override(&out.RatingValueSelectors, s.RatingValueSelectors)
	override(&out.RatingCountSelectors, s.RatingCountSelectors)
	override(&out.LikeCountSelectors, s.LikeCountSelectors)
	override(&out.ShareCountSelectors, s.ShareCountSelectors)
	override(&out.RequiredTextMarkers, s.RequiredTextMarkers)
	override(&out.BlockedTitleKeywords, s.BlockedTitleKeywords)
	override(&out.RecipePathHints, s.RecipePathHints)
	override(&out.BlockedPathHints, s.BlockedPathHints)
	return out
}

// Known reports whether the profile came from the builtin table (a
// non-empty domain). Confidence scoring grants known domains a bonus.
func (p *Profile) Known() bool { return p != nil && p.Domain != "" }
