package harvest

import (
	"fmt"
	"strings"
)

// Kind identifies which extraction strategy produced a result.
type Kind string

// Extraction strategy kinds, plus the pseudo-kinds recorded for attempts
// that never produced a recipe.
const (
	KindJSONLD             Kind = "jsonld"
	KindJSONLDRecipeFields Kind = "jsonld_recipe_fields"
	KindDomainDOM          Kind = "domain_dom"
	KindMicrodata          Kind = "microdata"
	KindDOMFallback        Kind = "dom_fallback"
	KindManualRaw          Kind = "manual_raw"
	KindParseFailed        Kind = "parse_failed"
	KindFetchFailed        Kind = "fetch_failed"
)

// Bucket is the coarse confidence grouping attached to parse outcomes.
type Bucket string

// Confidence buckets.
const (
	BucketHigh   Bucket = "high"
	BucketMedium Bucket = "medium"
	BucketLow    Bucket = "low"
)

// BucketFor maps a confidence score to its bucket.
func BucketFor(score float64) Bucket {
	switch {
	case score >= 0.8:
		return BucketHigh
	case score >= 0.6:
		return BucketMedium
	default:
		return BucketLow
	}
}

// Strategy is the tagged record of how a page was (or failed to be)
// parsed. It is the source of truth for telemetry and job bookkeeping;
// Label/ParseLabel translate to and from the flat string form used by
// storage rows and API payloads.
type Strategy struct {
	Kind          Kind
	FallbackClass string
	Recovered     bool
	RecoveryClass string
	FailureClass  string
	Bucket        Bucket
}

// Succeeded reports whether the strategy represents a usable extraction.
func (s Strategy) Succeeded() bool {
	switch s.Kind {
	case KindParseFailed, KindFetchFailed:
		return false
	}
	return s.Kind != ""
}

// Label serializes the strategy into its canonical string form:
//
//	jsonld@high
//	dom_fallback:generic-dom-pattern@low
//	recovery:jsonld-incomplete:domain_dom@medium
//	parse_failed:empty-document
//	fetch_failed:http-404
//	manual_raw
func (s Strategy) Label() string {
	switch s.Kind {
	case KindParseFailed:
		return fmt.Sprintf("parse_failed:%s", s.FailureClass)
	case KindFetchFailed:
		return fmt.Sprintf("fetch_failed:%s", s.FailureClass)
	case KindManualRaw:
		return string(KindManualRaw)
	case "":
		return ""
	}
	base := string(s.Kind)
	if s.Kind == KindDOMFallback && s.FallbackClass != "" {
		base = fmt.Sprintf("%s:%s", s.Kind, s.FallbackClass)
	}
	if s.Recovered {
		base = fmt.Sprintf("recovery:%s:%s", s.RecoveryClass, base)
	}
	if s.Bucket == "" {
		return base
	}
	return fmt.Sprintf("%s@%s", base, s.Bucket)
}

// ParseLabel decodes a canonical strategy label back to its tagged form.
// Unknown shapes are rejected so string drift surfaces at the boundary
// instead of inside aggregation code.
func ParseLabel(label string) (Strategy, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Strategy{}, fmt.Errorf("empty strategy label")
	}
	if label == string(KindManualRaw) {
		return Strategy{Kind: KindManualRaw}, nil
	}
	if rest, ok := strings.CutPrefix(label, "parse_failed:"); ok {
		if rest == "" {
			return Strategy{}, fmt.Errorf("strategy label %q: missing failure class", label)
		}
		return Strategy{Kind: KindParseFailed, FailureClass: rest}, nil
	}
	if rest, ok := strings.CutPrefix(label, "fetch_failed:"); ok {
		if rest == "" {
			return Strategy{}, fmt.Errorf("strategy label %q: missing failure class", label)
		}
		return Strategy{Kind: KindFetchFailed, FailureClass: rest}, nil
	}

	var s Strategy
	base := label
	if at := strings.LastIndex(base, "@"); at >= 0 {
		bucket := Bucket(base[at+1:])
		switch bucket {
		case BucketHigh, BucketMedium, BucketLow:
			s.Bucket = bucket
			base = base[:at]
		default:
			return Strategy{}, fmt.Errorf("strategy label %q: unknown bucket %q", label, bucket)
		}
	}
	if rest, ok := strings.CutPrefix(base, "recovery:"); ok {
		class, inner, found := strings.Cut(rest, ":")
		if !found || class == "" || inner == "" {
			return Strategy{}, fmt.Errorf("strategy label %q: malformed recovery tag", label)
		}
		s.Recovered = true
		s.RecoveryClass = class
		base = inner
	}
	if rest, ok := strings.CutPrefix(base, string(KindDOMFallback)+":"); ok {
		s.Kind = KindDOMFallback
		s.FallbackClass = rest
		return s, nil
	}
	switch Kind(base) {
	case KindJSONLD, KindJSONLDRecipeFields, KindDomainDOM, KindMicrodata, KindDOMFallback:
		s.Kind = Kind(base)
		return s, nil
	}
	return Strategy{}, fmt.Errorf("strategy label %q: unknown kind %q", label, base)
}

// NormalizeFailureClass strips the label prefixes operators paste into the
// recovery endpoint (parse_failed:, dom_fallback:, recovery:) and returns
// the bare failure class.
func NormalizeFailureClass(raw string) string {
	v := strings.TrimSpace(strings.ToLower(raw))
	for _, prefix := range []string{"parse_failed:", "dom_fallback:", "recovery:"} {
		if rest, ok := strings.CutPrefix(v, prefix); ok {
			v = rest
		}
	}
	if i := strings.Index(v, "@"); i >= 0 {
		v = v[:i]
	}
	if i := strings.Index(v, ":"); i >= 0 {
		v = v[:i]
	}
	return v
}
