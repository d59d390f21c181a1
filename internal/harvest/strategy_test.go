package harvest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStrategyLabelRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		strategy Strategy
		label    string
	}{
		{
			name:     "plain jsonld",
			strategy: Strategy{Kind: KindJSONLD, Bucket: BucketHigh},
			label:    "jsonld@high",
		},
		{
			name:     "dom fallback with class",
			strategy: Strategy{Kind: KindDOMFallback, FallbackClass: "generic-dom-pattern", Bucket: BucketLow},
			label:    "dom_fallback:generic-dom-pattern@low",
		},
		{
			name:     "recovered domain dom",
			strategy: Strategy{Kind: KindDomainDOM, Recovered: true, RecoveryClass: "jsonld-incomplete", Bucket: BucketMedium},
			label:    "recovery:jsonld-incomplete:domain_dom@medium",
		},
		{
			name:     "manual raw",
			strategy: Strategy{Kind: KindManualRaw},
			label:    "manual_raw",
		},
		{
			name:     "parse failure",
			strategy: Strategy{Kind: KindParseFailed, FailureClass: "empty-document"},
			label:    "parse_failed:empty-document",
		},
		{
			name:     "fetch failure",
			strategy: Strategy{Kind: KindFetchFailed, FailureClass: "http-404"},
			label:    "fetch_failed:http-404",
		},
		{
			name:     "microdata without bucket",
			strategy: Strategy{Kind: KindMicrodata},
			label:    "microdata",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.label, tc.strategy.Label())
			decoded, err := ParseLabel(tc.label)
			require.NoError(t, err)
			require.Equal(t, tc.strategy, decoded)
		})
	}
}

func TestParseLabelRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, label := range []string{
		"",
		"parse_failed:",
		"fetch_failed:",
		"jsonld@enormous",
		"recovery:jsonld-incomplete",
		"telepathy@high",
	} {
		_, err := ParseLabel(label)
		require.Error(t, err, "label %q", label)
	}
}

func TestStrategySucceeded(t *testing.T) {
	t.Parallel()

	require.True(t, Strategy{Kind: KindJSONLD}.Succeeded())
	require.True(t, Strategy{Kind: KindManualRaw}.Succeeded())
	require.False(t, Strategy{Kind: KindParseFailed, FailureClass: "empty-document"}.Succeeded())
	require.False(t, Strategy{Kind: KindFetchFailed, FailureClass: "timeout"}.Succeeded())
	require.False(t, Strategy{}.Succeeded())
}

func TestNormalizeFailureClass(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"parse_failed:empty-document":                "empty-document",
		"parse_failed:low-confidence-parse@low":      "low-confidence-parse",
		"dom_fallback:generic-dom-pattern@medium":    "generic-dom-pattern",
		"recovery:jsonld-incomplete:domain_dom@high": "jsonld-incomplete",
		"  Domain-Selector-Mismatch ":                "domain-selector-mismatch",
		"jsonld-incomplete":                          "jsonld-incomplete",
	}
	for in, want := range cases {
		require.Equal(t, want, NormalizeFailureClass(in), "input %q", in)
	}
}

func TestBucketFor(t *testing.T) {
	t.Parallel()

	require.Equal(t, BucketHigh, BucketFor(0.8))
	require.Equal(t, BucketMedium, BucketFor(0.79))
	require.Equal(t, BucketMedium, BucketFor(0.6))
	require.Equal(t, BucketLow, BucketFor(0.59))
	require.Equal(t, BucketLow, BucketFor(0))
}
