package parser

import (
	"github.com/tastewell/harvester/internal/harvest"
	"github.com/tastewell/harvester/internal/policy"
	"github.com/tastewell/harvester/internal/profile"
)

// Recovery action names returned by BuildRecoverySettings.
const (
	ActionBroadenIngredientSelectors  = "broaden-ingredient-selectors"
	ActionBroadenInstructionSelectors = "broaden-instruction-selectors"
	ActionDisableJSONLD               = "disable-jsonld"
	ActionDisableMicrodata            = "disable-microdata"
	ActionRelaxConfidenceThreshold    = "relax-confidence-threshold"
	ActionWidenRequiredMarkers        = "widen-required-markers"
)

var (
	genericIngredientSelectorBank = []string{
		".ingredients li",
		".recipe-ingredients li",
		"[class*='ingredient'] li",
		"[id*='ingredient'] li",
		"[itemprop='recipeIngredient']",
	}
	genericInstructionSelectorBank = []string{
		".instructions li",
		".recipe-instructions li",
		".directions li",
		".method li",
		"[class*='instruction'] li",
		"[id*='instruction'] li",
		"[itemprop='recipeInstructions'] li",
	}
	recoveryInstructionHeadings = []string{
		"directions", "method", "instructions", "preparation", "steps", "how to make",
	}
	recoveryMarkers = []string{"ingredients", "directions", "instructions", "method"}
)

func dedupePreserveOrder(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func mergedList(current, extras []string) []string {
	return dedupePreserveOrder(append(append([]string(nil), current...), extras...))
}

// RecoverySupported reports whether the failure class has a recovery play.
func RecoverySupported(class string) bool {
	switch class {
	case FailureDomainSelectorMismatch, FailureDomainIngredientsSparse,
		FailureDomainInstructionsSparse, FailureInstructionStructureMismatch,
		FailureJSONLDParse, "jsonld-incomplete",
		FailureMicrodataParse, "microdata-incomplete",
		FailureLowConfidence, FailureMissingRecipeMarkers, FailureInsufficientContent:
		return true
	}
	return false
}

// BuildRecoverySettings derives a patched settings copy for one re-parse
// after the given failure class, along with the ordered list of actions it
// took. No actions means the failure has no recovery play.
func BuildRecoverySettings(failureClass, sourceURL string, settings *policy.ParserSettings) (*policy.ParserSettings, []string) {
	out := settings.Clone()
	if !settings.RecoveryEnabled() {
		return out, nil
	}
	var actions []string

	switch failureClass {
	case FailureDomainSelectorMismatch, FailureDomainIngredientsSparse:
		out.IngredientSelectors = mergedList(out.IngredientSelectors, genericIngredientSelectorBank)
		actions = append(actions, ActionBroadenIngredientSelectors)
	}
	switch failureClass {
	case FailureDomainSelectorMismatch, FailureDomainInstructionsSparse, FailureInstructionStructureMismatch:
		out.InstructionSelectors = mergedList(out.InstructionSelectors, genericInstructionSelectorBank)
		out.InstructionHeadings = mergedList(out.InstructionHeadings, recoveryInstructionHeadings)
		actions = append(actions, ActionBroadenInstructionSelectors)
	}
	switch failureClass {
	case FailureJSONLDParse, "jsonld-incomplete":
		out.EnableJSONLD = policy.Bool(false)
		out.EnableDomainDOM = policy.Bool(true)
		out.EnableDOMFallback = policy.Bool(true)
		actions = append(actions, ActionDisableJSONLD)
	case FailureMicrodataParse, "microdata-incomplete":
		out.EnableMicrodata = policy.Bool(false)
		out.EnableDomainDOM = policy.Bool(true)
		out.EnableDOMFallback = policy.Bool(true)
		actions = append(actions, ActionDisableMicrodata)
	case FailureLowConfidence:
		cur := settings.MinConfidence()
		out.MinExtractionConfidence = policy.Float(clamp(cur-0.1, 0.2, 1))
		out.PenalizeMissingEngagement = policy.Bool(false)
		actions = append(actions, ActionRelaxConfidenceThreshold)
	case FailureMissingRecipeMarkers, FailureInsufficientContent:
		prof := profile.Effective(profile.ForURL(sourceURL), out)
		var markers []string
		if prof != nil {
			markers = append(markers, prof.RequiredTextMarkers...)
		}
		markers = append(markers, recoveryMarkers...)
		out.RequiredTextMarkers = dedupePreserveOrder(markers)
		actions = append(actions, ActionWidenRequiredMarkers)
	}

	if len(actions) > 0 {
		// Recovery may temporarily enable strategies the base policy turned
		// off; surfacing a recovered strategy lets operators decide whether
		// to promote the patch.
		out.EnableDomainDOM = policy.Bool(true)
		out.EnableDOMFallback = policy.Bool(true)
	}
	return out, dedupePreserveOrder(actions)
}

// ParseWithRecovery re-runs the cascade once with patched settings. The
// result is marked recovered and keeps the failure class that triggered
// the pass. Returns nil when no recovery applies or the re-parse still
// found nothing.
func (c *Cascade) ParseWithRecovery(html, pageURL, failureClass string, settings *policy.ParserSettings) *harvest.ParsedRecipe {
	adjusted, actions := BuildRecoverySettings(failureClass, pageURL, settings)
	if len(actions) == 0 {
		return nil
	}
	page := NewPage(html, pageURL, adjusted)
	if page == nil {
		return nil
	}
	rec := c.parsePage(page)
	if rec == nil {
		return nil
	}
	rec.Strategy.Recovered = true
	rec.Strategy.RecoveryClass = failureClass
	if rec.Strategy.Kind != harvest.KindDOMFallback && rec.Strategy.FallbackClass == "" {
		rec.Strategy.FallbackClass = failureClass
	}
	AttachConfidence(rec, page)
	return rec
}
