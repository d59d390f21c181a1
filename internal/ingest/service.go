// Package ingest turns validated parses into stored recipe records:
// duplicate clustering, engagement gating and quality scoring.
package ingest

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/tastewell/harvester/internal/harvest"
	"github.com/tastewell/harvester/internal/policy"
)

// Ingest outcome errors. Both are terminal for the page, not transient.
var (
	ErrInsufficientSignals = errors.New("insufficient engagement signals")
	ErrLowQuality          = errors.New("low-quality recipe")
)

// Review states stamped on stored records.
const (
	ReviewPending  = "pending"
	ReviewApproved = "approved"

	QualityLabelHighConfidence = "high-confidence"
)

// Duplicate detection thresholds. A candidate below the relatedness floor
// that is not an outright duplicate is ignored entirely.
const (
	relatednessFloor      = 0.58
	duplicateJaccard      = 0.92
	duplicateNameJaccard  = 0.55
	duplicateNameRatio    = 0.95
	duplicateInstrJaccard = 0.84
	duplicateInstrOverlap = 0.5
	highConfidenceQuality = 4.0
)

// Result reports what happened to one ingested parse.
type Result struct {
	Record       *harvest.RecipeRecord
	Duplicate    bool
	QualityScore float64
}

// Service ingests parsed recipes into the recipe store.
type Service struct {
	recipes harvest.RecipeStore
	ids     harvest.IDGenerator
	clock   harvest.Clock
	logger  *zap.Logger
}

// NewService builds an ingest Service.
func NewService(recipes harvest.RecipeStore, ids harvest.IDGenerator, clock harvest.Clock, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{recipes: recipes, ids: ids, clock: clock, logger: logger}
}

// Ingest stores a parsed recipe under the given policy. Duplicates of an
// existing record attach their source to it instead of creating a new
// record.
func (s *Service) Ingest(ctx context.Context, parsed *harvest.ParsedRecipe, pol *policy.SourcePolicy) (*Result, error) {
	if !parsed.Valid() {
		return nil, ErrLowQuality
	}

	popularity := PopularityScore(parsed.RatingValue, parsed.RatingCount, parsed.LikeCount, parsed.ShareCount)

	candidates, err := s.recipes.ListRecipes(ctx)
	if err != nil {
		return nil, err
	}
	related, score, duplicate := findRelated(candidates, parsed)

	pervasiveness := 0
	if related != nil {
		pervasiveness = len(related.SourceURLs)
	}
	quality := QualityScore(
		pol,
		len(parsed.Ingredients), len(parsed.Instructions),
		popularity,
		parsed.RatingCount, parsed.RatingValue,
		pervasiveness,
	)

	if err := s.checkSignals(parsed, pol, popularity, pervasiveness, duplicate); err != nil {
		return nil, err
	}

	if related != nil && duplicate {
		if !containsString(related.SourceURLs, parsed.SourceURL) {
			related.SourceURLs = append(related.SourceURLs, parsed.SourceURL)
			if err := s.recipes.UpdateRecipe(ctx, related); err != nil {
				return nil, err
			}
		}
		s.logger.Info("recipe deduplicated",
			zap.String("name", parsed.Name),
			zap.String("canonical", related.Name),
			zap.Float64("similarity", score))
		return &Result{Record: related, Duplicate: true, QualityScore: quality}, nil
	}

	record := &harvest.RecipeRecord{
		ID:             s.ids.NewID(),
		Name:           parsed.Name,
		NormalizedName: NormalizeName(parsed.Name),
		Description:    parsed.Description,
		ImageURL:       parsed.ImageURL,
		Ingredients:    parsed.Ingredients,
		Instructions:   parsed.Instructions,

		SourceURL:    parsed.SourceURL,
		SourceDomain: policy.NormalizedHost(parsed.SourceURL),
		SourceURLs:   []string{parsed.SourceURL},

		RatingValue: parsed.RatingValue,
		RatingCount: parsed.RatingCount,
		LikeCount:   parsed.LikeCount,
		ShareCount:  parsed.ShareCount,

		PopularityScore: popularity,
		QualityScore:    quality,
		ReviewStatus:    ReviewPending,

		Strategy:   parsed.Strategy,
		Confidence: parsed.Confidence,
		CreatedAt:  s.clock.Now(),
	}
	if pol != nil && pol.ReviewPolicy == policy.ReviewAutoHighConfidence &&
		harvest.BucketFor(parsed.Confidence) == harvest.BucketHigh {
		record.ReviewStatus = ReviewApproved
	}
	if quality >= highConfidenceQuality {
		record.QualityLabel = QualityLabelHighConfidence
	}
	if err := s.recipes.CreateRecipe(ctx, record); err != nil {
		return nil, err
	}
	return &Result{Record: record, Duplicate: false, QualityScore: quality}, nil
}

// checkSignals enforces the per-policy engagement floor. Ratings-metric
// sources demand rating volume unless social counts vouch for the page;
// pervasiveness-metric sources only gate duplicates that bring no signal
// at all.
func (s *Service) checkSignals(parsed *harvest.ParsedRecipe, pol *policy.SourcePolicy, popularity float64, pervasiveness int, duplicate bool) error {
	if pol == nil {
		return nil
	}
	hasSocial := (parsed.LikeCount != nil && *parsed.LikeCount > 0) ||
		(parsed.ShareCount != nil && *parsed.ShareCount > 0)
	if pol.MetricType == policy.MetricRatings {
		ratingValue := 0.0
		if parsed.RatingValue != nil {
			ratingValue = *parsed.RatingValue
		}
		ratingCount := 0
		if parsed.RatingCount != nil {
			ratingCount = *parsed.RatingCount
		}
		ratingOK := ratingValue >= pol.MinRatingValue
		if (ratingCount < pol.MinRatingCount || !ratingOK) && !hasSocial {
			return ErrInsufficientSignals
		}
		return nil
	}
	if duplicate && pervasiveness < 1 && popularity == 0 {
		return ErrInsufficientSignals
	}
	return nil
}

// findRelated scans existing records for the closest match and reports
// whether it is close enough to count as the same recipe.
func findRelated(candidates []*harvest.RecipeRecord, parsed *harvest.ParsedRecipe) (*harvest.RecipeRecord, float64, bool) {
	normalizedName := NormalizeName(parsed.Name)
	names := make([]string, 0, len(parsed.Ingredients))
	for _, ing := range parsed.Ingredients {
		names = append(names, ing.Name)
	}
	signature := ingredientSignature(names)
	instructionSig := instructionSignature(parsed.Instructions)

	var (
		best          *harvest.RecipeRecord
		bestScore     float64
		bestDuplicate bool
	)
	for _, candidate := range candidates {
		candidateName := candidate.NormalizedName
		if candidateName == "" {
			candidateName = NormalizeName(candidate.Name)
		}
		candidateNames := make([]string, 0, len(candidate.Ingredients))
		for _, ing := range candidate.Ingredients {
			candidateNames = append(candidateNames, ing.Name)
		}
		candidateSignature := ingredientSignature(candidateNames)
		candidateInstructions := instructionSignature(candidate.Instructions)

		nameRatio := nameSimilarity(normalizedName, candidateName)
		ingredientSim := jaccard(signature, candidateSignature)
		instructionSim := jaccard(instructionSig, candidateInstructions)
		score := nameRatio*0.45 + ingredientSim*0.4 + instructionSim*0.15

		isDuplicate := (normalizedName == candidateName && ingredientSim >= duplicateNameJaccard) ||
			ingredientSim >= duplicateJaccard ||
			(nameRatio >= duplicateNameRatio && ingredientSim >= duplicateNameJaccard) ||
			(ingredientSim >= duplicateInstrJaccard && instructionSim >= duplicateInstrOverlap)
		if !isDuplicate && score < relatednessFloor {
			continue
		}
		if score > bestScore {
			bestScore = score
			best = candidate
			bestDuplicate = isDuplicate
		}
	}
	return best, bestScore, bestDuplicate
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
