package parser

import (
	"regexp"
	"strings"

	"github.com/tastewell/harvester/internal/harvest"
)

var ingredientLineRegex = regexp.MustCompile(`^([0-9]+(?:[./][0-9]+)?)\s*([a-zA-Z]+)?\s+(.+)$`)

// known measurement words; a leading token outside this set is treated as
// part of the ingredient name ("2 maraschino cherries" has no unit).
var knownUnits = map[string]bool{
	"oz": true, "ounce": true, "ounces": true,
	"ml": true, "cl": true, "l": true,
	"cup": true, "cups": true,
	"tsp": true, "teaspoon": true, "teaspoons": true,
	"tbsp": true, "tablespoon": true, "tablespoons": true,
	"dash": true, "dashes": true,
	"splash": true, "splashes": true,
	"part": true, "parts": true,
	"shot": true, "shots": true,
	"slice": true, "slices": true,
	"sprig": true, "sprigs": true,
	"drop": true, "drops": true,
	"g": true, "gram": true, "grams": true, "kg": true,
	"lb": true, "lbs": true, "pound": true, "pounds": true,
	"pinch": true, "pinches": true,
}

// parseIngredientLine splits one ingredient line into quantity, unit and
// name on a best-effort basis; unparseable lines keep the raw text as the
// name.
func parseIngredientLine(line string) harvest.Ingredient {
	trimmed := strings.TrimSpace(line)
	ing := harvest.Ingredient{Raw: trimmed, Name: trimmed, Quantity: "1", Unit: "unit"}
	m := ingredientLineRegex.FindStringSubmatch(trimmed)
	if m == nil {
		return ing
	}
	ing.Quantity = m[1]
	unit := strings.ToLower(m[2])
	name := strings.TrimSpace(m[3])
	if unit != "" && knownUnits[unit] {
		ing.Unit = unit
	} else if unit != "" {
		// Not a measurement; fold the token back into the name.
		name = strings.TrimSpace(m[2] + " " + name)
	}
	if name != "" {
		ing.Name = name
	}
	return ing
}
