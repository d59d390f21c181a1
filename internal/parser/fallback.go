package parser

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/tastewell/harvester/internal/harvest"
)

const (
	genericIngredientSelector  = `.ingredients li, [class*='ingredient'] li, [id*='ingredient'] li, .recipe-ingredients li`
	genericInstructionSelector = `.instructions li, [class*='instruction'] li, [id*='instruction'] li, .method li, .directions li`
)

type fallbackStrategy struct{}

func (fallbackStrategy) Kind() harvest.Kind { return harvest.KindDOMFallback }

func (fallbackStrategy) Extract(p *Page) *harvest.ParsedRecipe {
	name := pageName(p.Doc)
	if name == "" {
		return nil
	}

	var ingredients []harvest.Ingredient
	p.Doc.Find(genericIngredientSelector).Each(func(_ int, node *goquery.Selection) {
		if text := nodeText(node); text != "" {
			ingredients = append(ingredients, parseIngredientLine(text))
		}
	})
	if len(ingredients) == 0 {
		for _, text := range sectionListItems(p.Doc, ingredientHeadingKeywords(p.Settings)) {
			ingredients = append(ingredients, parseIngredientLine(text))
		}
	}

	var instructions []string
	p.Doc.Find(genericInstructionSelector).Each(func(_ int, node *goquery.Selection) {
		if text := nodeText(node); text != "" {
			instructions = append(instructions, text)
		}
	})
	if len(instructions) == 0 {
		instructions = sectionListItems(p.Doc, instructionHeadingKeywords(p.Settings))
	}

	if len(ingredients) < 2 || len(instructions) < 1 {
		return nil
	}
	sig := signalsFromDOM(p)
	return &harvest.ParsedRecipe{
		Name:         name,
		Description:  pageDescription(p.Doc),
		Ingredients:  ingredients,
		Instructions: instructions,
		RatingValue:  sig.RatingValue,
		RatingCount:  sig.RatingCount,
		LikeCount:    sig.LikeCount,
		ShareCount:   sig.ShareCount,
		Strategy: harvest.Strategy{
			Kind:          harvest.KindDOMFallback,
			FallbackClass: ClassifyDOMFallback(p),
		},
	}
}

// ClassifyDOMFallback explains why the page needed the generic fallback.
func ClassifyDOMFallback(p *Page) string {
	if class, done := classifyProfileStructure(p); done {
		return class
	}
	items := extractJSONLD(p.Doc)
	if findRecipeJSONLD(items) != nil || findRecipeLikeJSONLD(items) != nil {
		return "jsonld-incomplete"
	}
	if containsRecipeMicrodata(p.Doc) {
		return "microdata-incomplete"
	}
	return "generic-dom-pattern"
}

// classifyProfileStructure applies the shared domain-selector triage used
// by both the fallback classifier and the parse-failure classifier.
func classifyProfileStructure(p *Page) (string, bool) {
	if p.Profile == nil {
		return "", false
	}
	ingredientHits := selectorMatchCount(p.Doc, p.Profile.IngredientSelectors)
	instructionHits := selectorMatchCount(p.Doc, p.Profile.InstructionSelectors)
	if ingredientHits == 0 && instructionHits == 0 {
		return "domain-selector-mismatch", true
	}
	if ingredientHits < 2 {
		return "domain-ingredients-sparse", true
	}
	if instructionHits < 1 {
		headingHits := len(sectionListItems(p.Doc, instructionHeadingKeywords(p.Settings)))
		if ingredientHits >= 2 && headingHits == 0 {
			return "instruction-structure-mismatch", true
		}
		return "domain-instructions-sparse", true
	}
	return "", false
}
