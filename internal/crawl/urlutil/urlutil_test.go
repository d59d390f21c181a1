package urlutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "https://example.com/recipe/1", "https://example.com/recipe/1"},
		{"fragment", "https://example.com/recipe/1#reviews", "https://example.com/recipe/1"},
		{"query", "https://example.com/recipe/1?utm_source=x", "https://example.com/recipe/1"},
		{"both", "https://example.com/recipe/1?a=b#top", "https://example.com/recipe/1"},
		{"whitespace", "  https://example.com/recipe/1  ", "https://example.com/recipe/1"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Normalize(tt.in)
			require.Equal(t, tt.want, got)
			require.Equal(t, got, Normalize(got), "normalization must be idempotent")
		})
	}
}

func TestSameHost(t *testing.T) {
	t.Parallel()

	require.True(t, SameHost("https://a.com/x", "https://a.com/y"))
	require.False(t, SameHost("https://a.com/x", "https://www.a.com/x"))
	require.False(t, SameHost("https://a.com/x", "https://b.com/x"))
	require.False(t, SameHost("", "https://b.com/x"))
}

func TestIsProbableRecipeURL_KnownDomain(t *testing.T) {
	t.Parallel()

	require.True(t, IsProbableRecipeURL("https://www.allrecipes.com/recipe/12345/best-brownies/", nil))
	// Hint match with nothing after it is an index page, not a recipe.
	require.False(t, IsProbableRecipeURL("https://www.allrecipes.com/recipe/", nil))
	require.False(t, IsProbableRecipeURL("https://www.allrecipes.com/news/latest", nil))
	require.False(t, IsProbableRecipeURL("https://www.allrecipes.com/privacy", nil))

	require.True(t, IsProbableRecipeURL("https://www.diffordsguide.com/cocktails/recipe/1120/manhattan", nil))
	require.False(t, IsProbableRecipeURL("https://www.diffordsguide.com/cocktails/search?q=gin", nil))

	require.True(t, IsProbableRecipeURL("https://punchdrink.com/recipes/oaxaca-old-fashioned/", nil))
	require.False(t, IsProbableRecipeURL("https://punchdrink.com/article/history-of-vermouth/", nil))
}

func TestIsProbableRecipeURL_UnknownDomain(t *testing.T) {
	t.Parallel()

	require.True(t, IsProbableRecipeURL("https://example.com/recipes/stew", nil))
	require.True(t, IsProbableRecipeURL("https://example.com/drink/negroni", nil))
	require.False(t, IsProbableRecipeURL("https://example.com/blog/stew", nil))
	require.False(t, IsProbableRecipeURL("https://example.com/login", nil))
}
