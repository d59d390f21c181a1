package parser

import (
	"strings"

	"github.com/tastewell/harvester/internal/harvest"
)

// Unit keywords that mark a line as an ingredient when no heading or
// bullet says so.
var rawTextUnitHints = []string{"oz", "ml", "tsp", "tbsp", "cup"}

// ParseRawText turns operator-pasted recipe text into a parsed recipe.
// The first line names the recipe unless a canonical name is supplied;
// "Ingredients" and "Instructions"/"Method" headings switch sections, and
// bulleted lines count as ingredients outside the instructions section.
func ParseRawText(rawText, canonicalName string) *harvest.ParsedRecipe {
	var lines []string
	for _, line := range strings.Split(rawText, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	rec := &harvest.ParsedRecipe{
		Name:     canonicalName,
		Strategy: harvest.Strategy{Kind: harvest.KindManualRaw},
	}
	if len(lines) == 0 {
		return rec
	}
	if rec.Name == "" {
		rec.Name = lines[0]
	}

	mode := ""
	for _, line := range lines[1:] {
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "ingredients"):
			mode = "ingredients"
		case strings.HasPrefix(lower, "instructions"), strings.HasPrefix(lower, "method"):
			mode = "instructions"
		case mode == "instructions":
			rec.Instructions = append(rec.Instructions, strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. ")))
		case mode == "ingredients" || strings.HasPrefix(line, "-") || strings.HasPrefix(line, "*"):
			cleaned := strings.TrimSpace(strings.TrimLeft(line, "-* "))
			rec.Ingredients = append(rec.Ingredients, parseIngredientLine(cleaned))
		}
	}

	// Unstructured text: guess ingredients from unit keywords, then treat
	// every remaining body line as an instruction.
	if len(rec.Ingredients) == 0 {
		for _, line := range lines {
			if containsAnyHint(strings.ToLower(line)) {
				rec.Ingredients = append(rec.Ingredients, parseIngredientLine(line))
			}
		}
	}
	if len(rec.Instructions) == 0 {
		names := map[string]struct{}{}
		for _, ing := range rec.Ingredients {
			names[ing.Name] = struct{}{}
		}
		for _, line := range lines[1:] {
			if _, ok := names[line]; !ok {
				rec.Instructions = append(rec.Instructions, line)
			}
		}
	}
	return rec
}

func containsAnyHint(line string) bool {
	for _, hint := range rawTextUnitHints {
		if strings.Contains(line, hint) {
			return true
		}
	}
	return false
}
