package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizedHost(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://WWW.PunchDrink.com/recipes/negroni/": "punchdrink.com",
		"https://imbibemagazine.com/recipe/x":         "imbibemagazine.com",
		"http://sub.example.com/":                     "sub.example.com",
		"not a url":                                   "",
		"":                                            "",
	}
	for in, want := range cases {
		require.Equal(t, want, NormalizedHost(in), "input %q", in)
	}
}

func TestMatch(t *testing.T) {
	t.Parallel()

	policies := []*SourcePolicy{
		{ID: "inactive", Domain: "punchdrink.com", IsActive: false},
		{ID: "punch", Domain: "punchdrink.com", IsActive: true},
		{ID: "food", Domain: "food.com", IsActive: true},
	}

	require.Nil(t, Match("https://elsewhere.test/recipe/", policies))
	require.Nil(t, Match("", policies))

	got := Match("https://www.punchdrink.com/recipes/negroni/", policies)
	require.NotNil(t, got)
	require.Equal(t, "punch", got.ID, "inactive policy must not shadow the active one")

	// Subdomains match the parent policy.
	got = Match("https://recipes.food.com/recipe/1", policies)
	require.NotNil(t, got)
	require.Equal(t, "food", got.ID)

	// food.com must not match notfood.com.
	require.Nil(t, Match("https://notfood.com/recipe/1", policies))
}

func TestParserSettingsDefaults(t *testing.T) {
	t.Parallel()

	var s *ParserSettings
	require.True(t, s.JSONLDEnabled())
	require.True(t, s.RecoveryEnabled())
	require.True(t, s.SitemapsEnabled())
	require.False(t, s.LowConfidenceAllowed())
	require.False(t, s.PreferDomain())
	require.InDelta(t, DefaultMinConfidence, s.MinConfidence(), 1e-9)
	require.Zero(t, s.Bias())
}

func TestParserSettingsMerge(t *testing.T) {
	t.Parallel()

	base := &ParserSettings{
		EnableJSONLD:        Bool(true),
		RecipePathHints:     []string{"/recipes/"},
		RequiredTextMarkers: []string{"ingredients"},
	}
	override := &ParserSettings{
		EnableJSONLD:            Bool(false),
		MinExtractionConfidence: Float(0.2),
		RecipePathHints:         []string{"/cocktails/"},
	}

	merged := base.Merge(override)
	require.False(t, merged.JSONLDEnabled())
	require.InDelta(t, 0.2, merged.MinConfidence(), 1e-9)
	require.Equal(t, []string{"/cocktails/"}, merged.RecipePathHints)
	require.Equal(t, []string{"ingredients"}, merged.RequiredTextMarkers)

	// Neither input is mutated.
	require.True(t, base.JSONLDEnabled())
	require.Equal(t, []string{"/recipes/"}, base.RecipePathHints)
}

func TestParserSettingsChangedKeys(t *testing.T) {
	t.Parallel()

	cur := &ParserSettings{EnableJSONLD: Bool(true)}
	next := cur.Merge(&ParserSettings{
		EnableDOMFallback:       Bool(false),
		MinExtractionConfidence: Float(0.25),
	})
	require.Equal(t,
		[]string{"enable_dom_fallback", "min_extraction_confidence"},
		cur.ChangedKeys(next))
	require.Empty(t, cur.ChangedKeys(cur.Clone()))
}

func TestAlertSettingsFallBackToDefaults(t *testing.T) {
	t.Parallel()

	var a *AlertSettings
	require.InDelta(t, DefaultMaxFailureRate, a.FailureRate(), 1e-9)
	require.Equal(t, DefaultMaxRetryQueue, a.RetryQueue())
	require.Equal(t, DefaultMaxComplianceRejections, a.ComplianceRejections())

	custom := &AlertSettings{MaxFailureRate: 0.5, MaxRetryQueue: 3}
	require.InDelta(t, 0.5, custom.FailureRate(), 1e-9)
	require.Equal(t, 3, custom.RetryQueue())
	require.InDelta(t, DefaultMaxParseFailureRate, custom.ParseFailureRate(), 1e-9)
}

func TestDefaultsAreWellFormed(t *testing.T) {
	t.Parallel()

	policies := Defaults()
	require.Len(t, policies, 6)
	seen := map[string]bool{}
	for _, p := range policies {
		require.NotEmpty(t, p.ID)
		require.False(t, seen[p.ID], "duplicate policy id %s", p.ID)
		seen[p.ID] = true
		require.True(t, p.IsActive)
		require.NotEmpty(t, p.Domain)
		require.NotEmpty(t, p.SeedURLs)
		require.True(t, p.MetricType == MetricRatings || p.MetricType == MetricPervasiveness)
		if p.MetricType == MetricRatings {
			require.Positive(t, p.MinRatingCount, "ratings policy %s needs a floor", p.ID)
		}
	}
}
