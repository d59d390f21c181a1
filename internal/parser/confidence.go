package parser

import (
	"math"

	"github.com/tastewell/harvester/internal/harvest"
)

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func strategyBase(kind harvest.Kind) float64 {
	switch kind {
	case harvest.KindJSONLD:
		return 0.9
	case harvest.KindDomainDOM:
		return 0.86
	case harvest.KindJSONLDRecipeFields:
		return 0.82
	case harvest.KindMicrodata:
		return 0.79
	case harvest.KindDOMFallback:
		return 0.62
	default:
		return 0.55
	}
}

func fallbackPenalty(class string) float64 {
	switch class {
	case FailureDomainSelectorMismatch:
		return 0.18
	case FailureInstructionStructureMismatch:
		return 0.16
	case FailureDomainIngredientsSparse, FailureDomainInstructionsSparse:
		return 0.14
	case "jsonld-incomplete", "microdata-incomplete":
		return 0.08
	case "generic-dom-pattern":
		return 0.05
	default:
		return 0.1
	}
}

// ComputeConfidence scores one extraction in [0, 1]. It weighs the
// strategy's intrinsic reliability against extraction completeness,
// engagement evidence and whatever the fallback classifier had to excuse.
func ComputeConfidence(rec *harvest.ParsedRecipe, p *Page) float64 {
	recoveryPenalty := 0.0
	if rec.Strategy.Recovered {
		recoveryPenalty = 0.06
	}
	base := strategyBase(rec.Strategy.Kind)

	ingredientScore := clamp(float64(len(rec.Ingredients))/6.0, 0, 1)
	instructionScore := clamp(float64(len(rec.Instructions))/5.0, 0, 1)

	ratingSignal := 0.0
	if rec.RatingValue != nil && *rec.RatingValue >= 4.0 && rec.RatingCount != nil && *rec.RatingCount >= 10 {
		ratingSignal = 1.0
	}
	socialSignal := 0.0
	if (rec.LikeCount != nil && *rec.LikeCount > 0) || (rec.ShareCount != nil && *rec.ShareCount > 0) {
		socialSignal = 1.0
	}

	profileBonus := 0.0
	if p.Profile.Known() {
		profileBonus = 0.05
	}
	engagementPenalty := 0.0
	if p.Settings.PenalizeEngagement() && ratingSignal == 0 && socialSignal == 0 {
		engagementPenalty = 0.04
	}
	// The recovery penalty already covers a recovered fallback parse; the
	// class penalty applies only to first-pass fallback extractions.
	fallback := 0.0
	if rec.Strategy.Kind == harvest.KindDOMFallback && !rec.Strategy.Recovered {
		class := rec.Strategy.FallbackClass
		if class == "" {
			class = "generic-dom-pattern"
		}
		fallback = fallbackPenalty(class)
	}

	raw := base*0.56 +
		ingredientScore*0.2 +
		instructionScore*0.16 +
		ratingSignal*0.04 +
		socialSignal*0.04 +
		profileBonus -
		fallback -
		engagementPenalty -
		recoveryPenalty +
		p.Settings.Bias()
	return math.Round(clamp(raw, 0, 1)*1000) / 1000
}

// AttachConfidence scores the extraction and stamps the bucket on its
// strategy tag.
func AttachConfidence(rec *harvest.ParsedRecipe, p *Page) {
	rec.Confidence = ComputeConfidence(rec, p)
	rec.Strategy.Bucket = harvest.BucketFor(rec.Confidence)
}
