package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tastewell/harvester/internal/harvest"
	"github.com/tastewell/harvester/internal/policy"
	"github.com/tastewell/harvester/internal/storage/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct{ last uint32 }

func (g *seqIDs) NewID() uuid.UUID {
	g.last++
	var id uuid.UUID
	id[15] = byte(g.last)
	return id
}

func testService(t *testing.T) (*Service, *memory.RecipeStore) {
	t.Helper()
	store := memory.NewRecipeStore()
	clock := fixedClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewService(store, &seqIDs{}, clock, zap.NewNop())
	return svc, store
}

func negroniParse(sourceURL string) *harvest.ParsedRecipe {
	return &harvest.ParsedRecipe{
		Name: "Negroni",
		Ingredients: []harvest.Ingredient{
			{Raw: "1 oz gin", Name: "gin"},
			{Raw: "1 oz Campari", Name: "campari"},
			{Raw: "1 oz sweet vermouth", Name: "sweet vermouth"},
		},
		Instructions: []string{
			"Stir all ingredients with ice.",
			"Strain into a rocks glass over a large cube.",
		},
		SourceURL:  sourceURL,
		Strategy:   harvest.Strategy{Kind: harvest.KindJSONLD, Bucket: harvest.BucketHigh},
		Confidence: 0.9,
	}
}

func pervasivenessPolicy() *policy.SourcePolicy {
	return &policy.SourcePolicy{
		ID:         "punchdrink",
		Domain:     "punchdrink.com",
		MetricType: policy.MetricPervasiveness,
	}
}

func TestIngestCreatesRecord(t *testing.T) {
	t.Parallel()

	svc, store := testService(t)
	res, err := svc.Ingest(context.Background(), negroniParse("https://punchdrink.com/recipes/negroni/"), pervasivenessPolicy())
	require.NoError(t, err)
	require.False(t, res.Duplicate)
	require.Equal(t, "negroni", res.Record.NormalizedName)
	require.Equal(t, "punchdrink.com", res.Record.SourceDomain)
	require.Equal(t, []string{"https://punchdrink.com/recipes/negroni/"}, res.Record.SourceURLs)
	require.Equal(t, ReviewPending, res.Record.ReviewStatus)

	stored, err := store.GetBySourceURL(context.Background(), "https://punchdrink.com/recipes/negroni/")
	require.NoError(t, err)
	require.Equal(t, res.Record.ID, stored.ID)
}

func TestIngestRejectsThinParse(t *testing.T) {
	t.Parallel()

	svc, _ := testService(t)
	parsed := negroniParse("https://punchdrink.com/recipes/negroni/")
	parsed.Ingredients = parsed.Ingredients[:1]
	_, err := svc.Ingest(context.Background(), parsed, pervasivenessPolicy())
	require.ErrorIs(t, err, ErrLowQuality)
}

func TestIngestDeduplicatesAcrossSources(t *testing.T) {
	t.Parallel()

	svc, store := testService(t)
	ctx := context.Background()

	first, err := svc.Ingest(ctx, negroniParse("https://punchdrink.com/recipes/negroni/"), pervasivenessPolicy())
	require.NoError(t, err)

	second := negroniParse("https://imbibemagazine.com/recipe/negroni/")
	res, err := svc.Ingest(ctx, second, pervasivenessPolicy())
	require.NoError(t, err)
	require.True(t, res.Duplicate)
	require.Equal(t, first.Record.ID, res.Record.ID)

	stored, err := store.GetBySourceURL(ctx, "https://imbibemagazine.com/recipe/negroni/")
	require.NoError(t, err)
	require.Equal(t, first.Record.ID, stored.ID)
	require.Len(t, stored.SourceURLs, 2)

	// A third hit from a source already attached must not grow the list.
	again, err := svc.Ingest(ctx, second, pervasivenessPolicy())
	require.NoError(t, err)
	require.True(t, again.Duplicate)
	stored, err = store.GetBySourceURL(ctx, "https://imbibemagazine.com/recipe/negroni/")
	require.NoError(t, err)
	require.Len(t, stored.SourceURLs, 2)
}

func TestIngestRatingsGate(t *testing.T) {
	t.Parallel()

	svc, _ := testService(t)
	pol := &policy.SourcePolicy{
		ID:             "allrecipes",
		Domain:         "allrecipes.com",
		MetricType:     policy.MetricRatings,
		MinRatingCount: 10,
	}

	parsed := negroniParse("https://www.allrecipes.com/recipe/negroni/")
	_, err := svc.Ingest(context.Background(), parsed, pol)
	require.ErrorIs(t, err, ErrInsufficientSignals)

	// Social counts vouch for a page that has no rating volume.
	likes := 250
	parsed = negroniParse("https://www.allrecipes.com/recipe/negroni/")
	parsed.LikeCount = &likes
	res, err := svc.Ingest(context.Background(), parsed, pol)
	require.NoError(t, err)
	require.Greater(t, res.Record.PopularityScore, 0.0)

	// Enough ratings pass on their own.
	value, count := 4.6, 120
	parsed = negroniParse("https://www.allrecipes.com/recipe/boulevardier/")
	parsed.Name = "Boulevardier"
	parsed.Ingredients[0] = harvest.Ingredient{Raw: "1 oz bourbon", Name: "bourbon"}
	parsed.RatingValue = &value
	parsed.RatingCount = &count
	res, err = svc.Ingest(context.Background(), parsed, pol)
	require.NoError(t, err)
	require.False(t, res.Duplicate)
}

func TestIngestAutoApprovesHighConfidence(t *testing.T) {
	t.Parallel()

	svc, _ := testService(t)
	pol := pervasivenessPolicy()
	pol.ReviewPolicy = policy.ReviewAutoHighConfidence

	res, err := svc.Ingest(context.Background(), negroniParse("https://punchdrink.com/recipes/negroni/"), pol)
	require.NoError(t, err)
	require.Equal(t, ReviewApproved, res.Record.ReviewStatus)

	svc2, _ := testService(t)
	parsed := negroniParse("https://punchdrink.com/recipes/negroni/")
	parsed.Confidence = 0.65
	parsed.Strategy.Bucket = harvest.BucketMedium
	res, err = svc2.Ingest(context.Background(), parsed, pol)
	require.NoError(t, err)
	require.Equal(t, ReviewPending, res.Record.ReviewStatus)
}

func TestPopularityScore(t *testing.T) {
	t.Parallel()

	value, count := 4.5, 100
	likes, shares := 50, 300
	require.InDelta(t, 9.0, PopularityScore(&value, &count, nil, nil), 1e-9)
	require.InDelta(t, 0.5, PopularityScore(nil, nil, &likes, nil), 1e-9)
	require.InDelta(t, 2.0, PopularityScore(nil, nil, nil, &shares), 1e-9)
	require.InDelta(t, 0.0, PopularityScore(nil, nil, nil, nil), 1e-9)
}

func TestQualityScore(t *testing.T) {
	t.Parallel()

	pol := &policy.SourcePolicy{MetricType: policy.MetricRatings, ReviewPolicy: policy.ReviewAutoHighConfidence}
	value, count := 4.0, 25

	// structure 0.9*(0.5+0.25)=0.675, trust 0.95, rating 0.5+0.8=1.3,
	// pervasiveness 0.5.
	got := QualityScore(pol, 4, 2, 0, &count, &value, 2)
	require.InDelta(t, 3.425, got, 1e-9)

	// Nil policy keeps the base trust only.
	got = QualityScore(nil, 8, 8, 0, nil, nil, 0)
	require.InDelta(t, 2.2, got, 1e-9)
}
