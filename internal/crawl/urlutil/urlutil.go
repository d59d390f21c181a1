// Package urlutil holds the URL normalization and admissibility rules the
// crawler and compliance gate share.
package urlutil

import (
	"net/url"
	"strings"

	"github.com/tastewell/harvester/internal/policy"
	"github.com/tastewell/harvester/internal/profile"
)

// Normalize strips the fragment and query from a URL and trims whitespace.
// The operation is idempotent: Normalize(Normalize(u)) == Normalize(u).
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	cleaned := raw
	if i := strings.Index(cleaned, "#"); i >= 0 {
		cleaned = cleaned[:i]
	}
	cleaned = strings.TrimSpace(cleaned)
	if i := strings.Index(cleaned, "?"); i >= 0 {
		cleaned = cleaned[:i]
	}
	return strings.TrimSpace(cleaned)
}

// SameHost reports whether two URLs share the exact hostname.
func SameHost(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return false
	}
	return ua.Hostname() != "" && ua.Hostname() == ub.Hostname()
}

// normalizedPath lowercases the path, guarantees a leading slash and drops
// a trailing one.
func normalizedPath(raw string) string {
	u, err := url.Parse(raw)
	path := ""
	if err == nil {
		path = strings.ToLower(strings.TrimSpace(u.Path))
	}
	if !strings.HasPrefix(path, "/") {
		if path == "" {
			path = "/"
		} else {
			path = "/" + path
		}
	}
	if path != "/" && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}

func pathHasAnyToken(path string, tokens []string) bool {
	for _, token := range tokens {
		t := strings.ToLower(strings.TrimSpace(token))
		if t != "" && strings.Contains(path, t) {
			return true
		}
	}
	return false
}

var genericBlockedSegments = []string{"/privacy", "/terms", "/about", "/login", "/signin", "/cookie"}

var genericRecipeHints = []string{"/recipe/", "/recipes/", "/cocktail/", "/cocktails/", "/drink/"}

// IsProbableRecipeURL decides whether a URL is worth fetching as a recipe
// page. Known domains must match a profile recipe hint with a non-empty
// slug after it, which keeps list and index pages out of the frontier;
// unknown domains fall back to a generic hint list.
func IsProbableRecipeURL(rawURL string, settings *policy.ParserSettings) bool {
	lowered := strings.ToLower(rawURL)
	path := normalizedPath(rawURL)
	prof := profile.Effective(profile.ForURL(rawURL), settings)
	if prof != nil && pathHasAnyToken(path, prof.BlockedPathHints) {
		return false
	}
	if pathHasAnyToken(path, genericBlockedSegments) {
		return false
	}
	if prof != nil {
		for _, hint := range prof.RecipePathHints {
			h := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(hint)), "/")
			if h == "" {
				continue
			}
			idx := strings.Index(path, h)
			if idx < 0 {
				continue
			}
			tail := strings.Trim(path[idx+len(h):], "/")
			if tail != "" {
				return true
			}
		}
		return false
	}
	for _, hint := range genericRecipeHints {
		if strings.Contains(lowered, hint) {
			return true
		}
	}
	return false
}
