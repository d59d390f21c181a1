package ingest

import (
	"math"

	"github.com/tastewell/harvester/internal/policy"
)

// PopularityScore blends rating volume and social counts into a single
// engagement number. Each component is capped so one viral metric cannot
// dominate.
func PopularityScore(ratingValue *float64, ratingCount, likeCount, shareCount *int) float64 {
	score := 0.0
	if ratingValue != nil && ratingCount != nil && *ratingCount > 0 {
		score += *ratingValue * math.Min(float64(*ratingCount)/50.0, 2.0)
	}
	if likeCount != nil && *likeCount > 0 {
		score += math.Min(float64(*likeCount)/100.0, 2.0)
	}
	if shareCount != nil && *shareCount > 0 {
		score += math.Min(float64(*shareCount)/100.0, 2.0)
	}
	return score
}

// QualityScore combines recipe structure, source trust, engagement and
// pervasiveness into the stored quality number, rounded to three decimals.
func QualityScore(
	pol *policy.SourcePolicy,
	ingredientCount, instructionCount int,
	popularityScore float64,
	ratingCount *int,
	ratingValue *float64,
	pervasivenessCount int,
) float64 {
	structure := math.Min(float64(ingredientCount)/8.0, 1.0) + math.Min(float64(instructionCount)/8.0, 1.0)
	structure *= 0.9

	trust := 0.4
	if pol != nil && pol.MetricType == policy.MetricRatings {
		trust += 0.35
	}
	if pol != nil && pol.ReviewPolicy == policy.ReviewAutoHighConfidence {
		trust += 0.2
	}

	rating := 0.0
	if ratingCount != nil && *ratingCount > 0 {
		rating += math.Min(float64(*ratingCount)/50.0, 1.5)
	}
	if ratingValue != nil && *ratingValue > 0 {
		rating += math.Min(*ratingValue/5.0, 1.0)
	}

	pervasiveness := math.Min(math.Max(float64(pervasivenessCount), 0)*0.25, 1.5)

	score := structure + trust + popularityScore + rating + pervasiveness
	return math.Round(score*1000) / 1000
}
