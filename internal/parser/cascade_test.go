package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tastewell/harvester/internal/harvest"
	"github.com/tastewell/harvester/internal/policy"
)

const jsonldPage = `<html><head>
<script type="application/ld+json">
{"@context":"https://schema.org","@type":"Recipe","name":"Negroni",
 "description":"A bitter classic.",
 "recipeIngredient":["1 oz gin","1 oz campari","1 oz sweet vermouth"],
 "recipeInstructions":[{"@type":"HowToStep","text":"Stir all ingredients with ice."},
                       {"@type":"HowToStep","text":"Strain into a rocks glass."}],
 "aggregateRating":{"ratingValue":"4.7","ratingCount":"132"}}
</script></head>
<body><h1>Negroni</h1><p>Ingredients and instructions below.</p></body></html>`

const headingListPage = `<html><head><title>Boulevardier</title></head><body>
<h1>Boulevardier</h1>
<div>
<h2>Ingredients</h2>
<ul><li>1 oz bourbon</li><li>1 oz campari</li><li>1 oz sweet vermouth</li></ul>
</div>
<div>
<h2>Instructions</h2>
<ol><li>Stir with ice.</li><li>Strain into a coupe.</li></ol>
</div>
</body></html>`

func TestCascadeParsesJSONLD(t *testing.T) {
	t.Parallel()

	rec := NewCascade().Parse(jsonldPage, "https://example.test/recipe/negroni/", nil)
	require.NotNil(t, rec)
	require.Equal(t, harvest.KindJSONLD, rec.Strategy.Kind)
	require.Equal(t, "Negroni", rec.Name)
	require.Equal(t, "A bitter classic.", rec.Description)
	require.Len(t, rec.Ingredients, 3)
	require.Equal(t, "gin", rec.Ingredients[0].Name)
	require.Len(t, rec.Instructions, 2)
	require.NotNil(t, rec.RatingValue)
	require.InDelta(t, 4.7, *rec.RatingValue, 1e-9)
	require.NotNil(t, rec.RatingCount)
	require.Equal(t, 132, *rec.RatingCount)
	require.GreaterOrEqual(t, rec.Confidence, policy.DefaultMinConfidence)
}

func TestCascadeFallsBackToDOM(t *testing.T) {
	t.Parallel()

	rec := NewCascade().Parse(headingListPage, "https://example.test/recipe/boulevardier/", nil)
	require.NotNil(t, rec)
	require.Equal(t, harvest.KindDOMFallback, rec.Strategy.Kind)
	require.NotEmpty(t, rec.Strategy.FallbackClass)
	require.Len(t, rec.Ingredients, 3)
	require.Len(t, rec.Instructions, 2)
}

func TestCascadeHonorsStrategyToggles(t *testing.T) {
	t.Parallel()

	settings := &policy.ParserSettings{EnableJSONLD: policy.Bool(false)}
	rec := NewCascade().Parse(jsonldPage, "https://example.test/recipe/negroni/", settings)
	if rec != nil {
		require.NotEqual(t, harvest.KindJSONLD, rec.Strategy.Kind)
	}

	settings = &policy.ParserSettings{
		EnableJSONLD:      policy.Bool(false),
		EnableDomainDOM:   policy.Bool(false),
		EnableMicrodata:   policy.Bool(false),
		EnableDOMFallback: policy.Bool(false),
	}
	require.Nil(t, NewCascade().Parse(headingListPage, "https://example.test/recipe/boulevardier/", settings))
}

func TestCascadeRejectsSingleIngredientExtractions(t *testing.T) {
	t.Parallel()

	jsonldThin := `<html><head>
<script type="application/ld+json">
{"@context":"https://schema.org","@type":"Recipe","name":"Lonely Negroni",
 "recipeIngredient":["1 oz gin"],
 "recipeInstructions":[{"@type":"HowToStep","text":"Pour over ice."}]}
</script></head>
<body><h1>Lonely Negroni</h1></body></html>`
	microdataThin := `<html><body>
<div itemscope itemtype="https://schema.org/Recipe">
<h1 itemprop="name">Lonely Negroni</h1>
<li itemprop="recipeIngredient">1 oz gin</li>
<li itemprop="recipeInstructions">Pour over ice.</li>
</div>
</body></html>`

	for name, html := range map[string]string{
		"jsonld":    jsonldThin,
		"microdata": microdataThin,
	} {
		rec := NewCascade().Parse(html, "https://example.test/recipe/lonely/", nil)
		if rec != nil {
			require.GreaterOrEqual(t, len(rec.Ingredients), 2, "%s page", name)
			require.GreaterOrEqual(t, len(rec.Instructions), 1, "%s page", name)
		}
	}
}

func TestCascadeReturnsNilForNonRecipe(t *testing.T) {
	t.Parallel()

	page := `<html><head><title>About us</title></head><body><p>We write about drinks.</p></body></html>`
	require.Nil(t, NewCascade().Parse(page, "https://example.test/about", nil))
}

func TestClassifyParseFailure(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		html string
		url  string
		want string
	}{
		{
			name: "empty document",
			html: "",
			url:  "https://example.test/recipe/x/",
			want: FailureEmptyDocument,
		},
		{
			name: "no recipe markers",
			html: `<html><body><p>hi</p></body></html>`,
			url:  "https://example.test/recipe/x/",
			want: FailureMissingRecipeMarkers,
		},
		{
			name: "thin page",
			html: `<html><body><p>ingredients</p></body></html>`,
			url:  "https://example.test/recipe/x/",
			want: FailureInsufficientContent,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ClassifyParseFailure(NewPage(tc.html, tc.url, nil))
			require.Equal(t, tc.want, got)
		})
	}
}

func TestParseWithRecoveryRelaxesConfidence(t *testing.T) {
	t.Parallel()

	// The recovery pass for a low-confidence failure allows low-confidence
	// output, so a page the first pass rejects can still come back tagged
	// as recovered.
	settings := &policy.ParserSettings{MinExtractionConfidence: policy.Float(0.99)}
	c := NewCascade()

	first := c.Parse(headingListPage, "https://example.test/recipe/boulevardier/", settings)
	if first != nil {
		require.Less(t, first.Confidence, 0.99)
	}

	recovered := c.ParseWithRecovery(headingListPage, "https://example.test/recipe/boulevardier/", FailureLowConfidence, settings)
	require.NotNil(t, recovered)
	require.True(t, recovered.Strategy.Recovered)
	require.Equal(t, FailureLowConfidence, recovered.Strategy.RecoveryClass)
}
