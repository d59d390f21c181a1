package parser

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/tastewell/harvester/internal/harvest"
)

// extractJSONLD collects every JSON-LD object on the page, flattening
// arrays and @graph containers to a single list.
func extractJSONLD(doc *goquery.Document) []map[string]any {
	var items []map[string]any
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		var data any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return
		}
		items = append(items, flattenJSONLD(data)...)
	})
	return items
}

func flattenJSONLD(obj any) []map[string]any {
	var items []map[string]any
	switch v := obj.(type) {
	case []any:
		for _, entry := range v {
			items = append(items, flattenJSONLD(entry)...)
		}
	case map[string]any:
		if graph, ok := v["@graph"].([]any); ok {
			for _, entry := range graph {
				items = append(items, flattenJSONLD(entry)...)
			}
		} else {
			items = append(items, v)
		}
	}
	return items
}

// findRecipeJSONLD returns the first object whose @type is Recipe.
func findRecipeJSONLD(items []map[string]any) map[string]any {
	for _, item := range items {
		switch types := item["@type"].(type) {
		case string:
			if strings.EqualFold(types, "recipe") {
				return item
			}
		case []any:
			for _, t := range types {
				if s, ok := t.(string); ok && strings.EqualFold(s, "recipe") {
					return item
				}
			}
		}
	}
	return nil
}

// findRecipeLikeJSONLD returns the first object that quacks like a recipe:
// at least two recipeIngredient entries and one normalized instruction.
func findRecipeLikeJSONLD(items []map[string]any) map[string]any {
	for _, item := range items {
		ingredients, ok := item["recipeIngredient"].([]any)
		if !ok || len(ingredients) < 2 {
			continue
		}
		if len(normalizeInstructions(item["recipeInstructions"])) >= 1 {
			return item
		}
	}
	return nil
}

// normalizeInstructions flattens the many shapes recipeInstructions takes:
// plain strings, HowToStep objects, ItemList wrappers and nested lists.
func normalizeInstructions(value any) []string {
	var out []string
	switch v := value.(type) {
	case []any:
		for _, entry := range v {
			switch e := entry.(type) {
			case string:
				if s := strings.TrimSpace(e); s != "" {
					out = append(out, s)
				}
			case map[string]any:
				if text := stringField(e, "text", "name"); text != "" {
					out = append(out, text)
				}
			case []any:
				out = append(out, normalizeInstructions(e)...)
			}
		}
	case map[string]any:
		if _, ok := v["itemListElement"]; ok {
			out = append(out, normalizeInstructions(v["itemListElement"])...)
		} else if text := stringField(v, "text", "name"); text != "" {
			out = append(out, text)
		}
	case string:
		for _, line := range strings.Split(v, "\n") {
			if s := strings.TrimSpace(line); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func stringField(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

// interactionStats pulls like/share counts from an interactionStatistic
// payload, which may be a single object or a list.
func interactionStats(stats any) (likeCount, shareCount *int) {
	var entries []any
	switch v := stats.(type) {
	case map[string]any:
		entries = []any{v}
	case []any:
		entries = v
	default:
		return nil, nil
	}
	for _, raw := range entries {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		var kind string
		switch t := entry["interactionType"].(type) {
		case map[string]any:
			kind = strings.ToLower(stringField(t, "@type", "name"))
		case string:
			kind = strings.ToLower(t)
		}
		count := toInt(entry["userInteractionCount"])
		if count == nil {
			continue
		}
		if strings.Contains(kind, "like") {
			likeCount = count
		}
		if strings.Contains(kind, "share") {
			shareCount = count
		}
	}
	return likeCount, shareCount
}

// HasRecipeSchema reports whether the document carries recipe-shaped
// JSON-LD, either by @type or by recipe-like fields.
func HasRecipeSchema(doc *goquery.Document) bool {
	items := extractJSONLD(doc)
	return findRecipeJSONLD(items) != nil || findRecipeLikeJSONLD(items) != nil
}

// ItemListURLs returns the URLs carried by JSON-LD ItemList objects.
// Collection pages publish their recipe links this way.
func ItemListURLs(doc *goquery.Document) []string {
	var urls []string
	for _, item := range extractJSONLD(doc) {
		if kind, _ := item["@type"].(string); !strings.EqualFold(kind, "itemlist") {
			continue
		}
		elements, _ := item["itemListElement"].([]any)
		for _, element := range elements {
			entry, ok := element.(map[string]any)
			if !ok {
				continue
			}
			url := stringField(entry, "url")
			if url == "" {
				if inner, ok := entry["item"].(map[string]any); ok {
					url = stringField(inner, "url")
				}
			}
			if url != "" {
				urls = append(urls, url)
			}
		}
	}
	return urls
}

type jsonldStrategy struct{}

func (jsonldStrategy) Kind() harvest.Kind { return harvest.KindJSONLD }

func (jsonldStrategy) Extract(p *Page) *harvest.ParsedRecipe {
	items := extractJSONLD(p.Doc)
	kind := harvest.KindJSONLD
	recipe := findRecipeJSONLD(items)
	if recipe == nil {
		recipe = findRecipeLikeJSONLD(items)
		if recipe == nil {
			return nil
		}
		kind = harvest.KindJSONLDRecipeFields
	}

	name := stringField(recipe, "name")
	var ingredients []harvest.Ingredient
	if raw, ok := recipe["recipeIngredient"].([]any); ok {
		for _, entry := range raw {
			switch e := entry.(type) {
			case string:
				ingredients = append(ingredients, parseIngredientLine(e))
			case map[string]any:
				// Some publishers emit recipeIngredient as objects.
				if v := stringField(e, "name", "text", "ingredient"); v != "" {
					ingredients = append(ingredients, parseIngredientLine(v))
				}
			}
		}
	}
	instructions := normalizeInstructions(recipe["recipeInstructions"])

	var ratingValue *float64
	var ratingCount *int
	if aggregate, ok := recipe["aggregateRating"].(map[string]any); ok {
		ratingValue = toFloat(aggregate["ratingValue"])
		ratingCount = toInt(aggregate["ratingCount"])
		if ratingCount == nil {
			ratingCount = toInt(aggregate["reviewCount"])
		}
	}
	likeCount, shareCount := interactionStats(recipe["interactionStatistic"])

	sig := signalsFromDOM(p)
	if ratingValue == nil {
		ratingValue = sig.RatingValue
	}
	if ratingCount == nil {
		ratingCount = sig.RatingCount
	}
	if likeCount == nil {
		likeCount = sig.LikeCount
	}
	if shareCount == nil {
		shareCount = sig.ShareCount
	}

	if name == "" || len(ingredients) < 2 || len(instructions) < 1 {
		return nil
	}
	return &harvest.ParsedRecipe{
		Name:         name,
		Description:  stringField(recipe, "description"),
		ImageURL:     jsonldImage(recipe),
		Ingredients:  ingredients,
		Instructions: instructions,
		RatingValue:  ratingValue,
		RatingCount:  ratingCount,
		LikeCount:    likeCount,
		ShareCount:   shareCount,
		Strategy:     harvest.Strategy{Kind: kind},
	}
}

func jsonldImage(recipe map[string]any) string {
	switch v := recipe["image"].(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		return stringField(v, "url")
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return strings.TrimSpace(s)
			}
			if m, ok := v[0].(map[string]any); ok {
				return stringField(m, "url")
			}
		}
	}
	return ""
}
