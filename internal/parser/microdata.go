package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/tastewell/harvester/internal/harvest"
)

func containsRecipeMicrodata(doc *goquery.Document) bool {
	return doc.Find(`[itemprop="recipeIngredient"]`).Length() > 0 ||
		doc.Find(`[itemprop="recipeInstructions"]`).Length() > 0
}

type microdataStrategy struct{}

func (microdataStrategy) Kind() harvest.Kind { return harvest.KindMicrodata }

func (microdataStrategy) Extract(p *Page) *harvest.ParsedRecipe {
	name := nodeText(p.Doc.Find("h1").First())
	if name == "" {
		p.Doc.Find(`[itemprop="name"]`).EachWithBreak(func(_ int, node *goquery.Selection) bool {
			if v := strings.TrimSpace(node.AttrOr("content", "")); v != "" {
				name = v
				return false
			}
			if v := nodeText(node); v != "" {
				name = v
				return false
			}
			return true
		})
	}
	if name == "" {
		name = metaContent(p.Doc, "property", "og:title")
	}
	if name == "" {
		return nil
	}

	var ingredients []harvest.Ingredient
	p.Doc.Find(`[itemprop="recipeIngredient"]`).Each(func(_ int, node *goquery.Selection) {
		if text := nodeText(node); text != "" {
			ingredients = append(ingredients, parseIngredientLine(text))
		}
	})

	var instructions []string
	p.Doc.Find(`[itemprop="recipeInstructions"]`).Each(func(_ int, node *goquery.Selection) {
		if goquery.NodeName(node) == "li" {
			if text := nodeText(node); text != "" {
				instructions = append(instructions, text)
			}
			return
		}
		for _, line := range strings.Split(node.Text(), "\n") {
			if line = strings.Join(strings.Fields(line), " "); line != "" {
				instructions = append(instructions, line)
			}
		}
	})

	if len(ingredients) < 2 || len(instructions) < 1 {
		return nil
	}
	sig := signalsFromDOM(p)
	return &harvest.ParsedRecipe{
		Name:         name,
		Ingredients:  ingredients,
		Instructions: instructions,
		RatingValue:  sig.RatingValue,
		RatingCount:  sig.RatingCount,
		LikeCount:    sig.LikeCount,
		ShareCount:   sig.ShareCount,
		Strategy:     harvest.Strategy{Kind: harvest.KindMicrodata},
	}
}
