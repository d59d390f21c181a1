package parser

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/tastewell/harvester/internal/harvest"
	"github.com/tastewell/harvester/internal/policy"
)

type domainDOMStrategy struct{}

func (domainDOMStrategy) Kind() harvest.Kind { return harvest.KindDomainDOM }

func (domainDOMStrategy) Extract(p *Page) *harvest.ParsedRecipe {
	if p.Profile == nil {
		return nil
	}
	name := pageName(p.Doc)
	if name == "" {
		return nil
	}

	var ingredients []harvest.Ingredient
	for _, sel := range p.Profile.IngredientSelectors {
		p.Doc.Find(sel).Each(func(_ int, node *goquery.Selection) {
			if text := nodeText(node); text != "" {
				ingredients = append(ingredients, parseIngredientLine(text))
			}
		})
		if len(ingredients) > 0 {
			break
		}
	}
	if len(ingredients) == 0 {
		for _, text := range sectionListItems(p.Doc, ingredientHeadingKeywords(p.Settings)) {
			ingredients = append(ingredients, parseIngredientLine(text))
		}
	}
	var rteIngredients []harvest.Ingredient
	var rteInstructions []string
	rteTried := false
	tryRTE := func() {
		if !rteTried {
			rteIngredients, rteInstructions = richTextRecipe(p)
			rteTried = true
		}
	}
	if len(ingredients) == 0 {
		tryRTE()
		ingredients = rteIngredients
	}

	var instructions []string
	for _, sel := range p.Profile.InstructionSelectors {
		p.Doc.Find(sel).Each(func(_ int, node *goquery.Selection) {
			if text := nodeText(node); text != "" {
				instructions = append(instructions, text)
			}
		})
		if len(instructions) > 0 {
			break
		}
	}
	if len(instructions) == 0 {
		instructions = sectionListItems(p.Doc, instructionHeadingKeywords(p.Settings))
	}
	if len(instructions) == 0 {
		tryRTE()
		if len(ingredients) == 0 && len(rteIngredients) > 0 && len(rteInstructions) > 0 {
			ingredients = rteIngredients
			instructions = rteInstructions
		} else if len(rteInstructions) > 0 {
			instructions = rteInstructions
		}
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
		Strategy:     harvest.Strategy{Kind: harvest.KindDomainDOM},
	}
}

var digitRegex = regexp.MustCompile(`\d`)

var rteSkipPrefixes = []string{"tools:", "tool:", "glass:", "glassware:", "garnish:", "serves:"}

func hasSkipPrefix(lowered string) bool {
	for _, prefix := range rteSkipPrefixes {
		if strings.HasPrefix(lowered, prefix) {
			return true
		}
	}
	return false
}

// richTextRecipe handles Imbibe's rich-text template: ingredient lines
// separated by <br> inside one paragraph, followed by method paragraphs.
// Editorial pages are avoided by requiring several ingredient-like lines
// with quantity or unit markers.
func richTextRecipe(p *Page) ([]harvest.Ingredient, []string) {
	if !strings.HasSuffix(policy.NormalizedHost(p.URL), "imbibemagazine.com") {
		return nil, nil
	}
	container := p.Doc.Find(".recipe__main-content").First()
	if container.Length() == 0 {
		return nil, nil
	}
	paragraphs := container.Find("p")
	if paragraphs.Length() == 0 {
		return nil, nil
	}

	unitTokens := []string{" oz", " ml", " dash", " dashes", " tsp", " tbsp", " cup", " cups"}
	blockIdx := -1
	var ingredientLines []string
	paragraphs.EachWithBreak(func(idx int, node *goquery.Selection) bool {
		lines := paragraphLines(node)
		if len(lines) < 2 {
			return true
		}
		var cleaned []string
		for _, line := range lines {
			if hasSkipPrefix(strings.ToLower(line)) {
				continue
			}
			cleaned = append(cleaned, line)
		}
		if len(cleaned) < 2 {
			return true
		}
		joined := strings.ToLower(strings.Join(cleaned, " "))
		hasUnit := false
		for _, token := range unitTokens {
			if strings.Contains(joined, token) {
				hasUnit = true
				break
			}
		}
		if !hasUnit && !digitRegex.MatchString(joined) {
			return true
		}
		blockIdx = idx
		ingredientLines = cleaned
		return false
	})
	if blockIdx < 0 {
		return nil, nil
	}

	ingredients := make([]harvest.Ingredient, 0, len(ingredientLines))
	for _, line := range ingredientLines {
		ingredients = append(ingredients, parseIngredientLine(line))
	}

	var instructions []string
	paragraphs.EachWithBreak(func(idx int, node *goquery.Selection) bool {
		if idx <= blockIdx {
			return true
		}
		// Attribution and footer paragraphs end the method block.
		if node.Find("em").Length() > 0 {
			return false
		}
		text := nodeText(node)
		if text == "" {
			return true
		}
		lowered := strings.ToLower(text)
		for _, marker := range []string{"recipe by", "photo by", "advertisement"} {
			if strings.Contains(lowered, marker) {
				return false
			}
		}
		if hasSkipPrefix(lowered) {
			return true
		}
		instructions = append(instructions, text)
		return len(instructions) < 6
	})
	return ingredients, instructions
}

var (
	brRegex  = regexp.MustCompile(`(?i)<br\s*/?>`)
	tagRegex = regexp.MustCompile(`<[^>]*>`)
)

// paragraphLines splits a paragraph on <br> boundaries, returning the
// trimmed non-empty lines.
func paragraphLines(node *goquery.Selection) []string {
	raw, err := node.Html()
	if err != nil {
		return nil
	}
	raw = brRegex.ReplaceAllString(raw, "\n")
	stripped := html.UnescapeString(tagRegex.ReplaceAllString(raw, " "))
	var lines []string
	for _, line := range strings.Split(stripped, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
