package policy

// ParserSettings carries per-policy parser tuning. Toggle fields are
// pointers so an unset field falls through to the default instead of
// forcing false; slice fields override the profile only when non-empty.
type ParserSettings struct {
	EnableJSONLD      *bool `json:"enable_jsonld,omitempty" mapstructure:"enable_jsonld"`
	EnableDomainDOM   *bool `json:"enable_domain_dom,omitempty" mapstructure:"enable_domain_dom"`
	EnableMicrodata   *bool `json:"enable_microdata,omitempty" mapstructure:"enable_microdata"`
	EnableDOMFallback *bool `json:"enable_dom_fallback,omitempty" mapstructure:"enable_dom_fallback"`
	PreferDomainDOM   *bool `json:"prefer_domain_dom,omitempty" mapstructure:"prefer_domain_dom"`
	EnableRecovery    *bool `json:"enable_recovery,omitempty" mapstructure:"enable_recovery"`
	UseSitemaps       *bool `json:"use_sitemaps,omitempty" mapstructure:"use_sitemaps"`

	AllowLowConfidence        *bool `json:"allow_low_confidence,omitempty" mapstructure:"allow_low_confidence"`
	PenalizeMissingEngagement *bool `json:"penalize_missing_engagement_signals,omitempty" mapstructure:"penalize_missing_engagement_signals"`

	MinExtractionConfidence *float64 `json:"min_extraction_confidence,omitempty" mapstructure:"min_extraction_confidence"`
	ConfidenceBias          float64  `json:"confidence_bias,omitempty" mapstructure:"confidence_bias"`

	IngredientSelectors   []string `json:"ingredient_selectors,omitempty" mapstructure:"ingredient_selectors"`
	InstructionSelectors  []string `json:"instruction_selectors,omitempty" mapstructure:"instruction_selectors"`
	RatingValueSelectors  []string `json:"rating_value_selectors,omitempty" mapstructure:"rating_value_selectors"`
	RatingCountSelectors  []string `json:"rating_count_selectors,omitempty" mapstructure:"rating_count_selectors"`
	LikeCountSelectors    []string `json:"like_count_selectors,omitempty" mapstructure:"like_count_selectors"`
	ShareCountSelectors   []string `json:"share_count_selectors,omitempty" mapstructure:"share_count_selectors"`
	RequiredTextMarkers   []string `json:"required_text_markers,omitempty" mapstructure:"required_text_markers"`
	BlockedTitleKeywords  []string `json:"blocked_title_keywords,omitempty" mapstructure:"blocked_title_keywords"`
	RecipePathHints       []string `json:"recipe_path_hints,omitempty" mapstructure:"recipe_path_hints"`
	BlockedPathHints      []string `json:"blocked_path_hints,omitempty" mapstructure:"blocked_path_hints"`
	IngredientHeadings    []string `json:"ingredient_heading_keywords,omitempty" mapstructure:"ingredient_heading_keywords"`
	InstructionHeadings   []string `json:"instruction_heading_keywords,omitempty" mapstructure:"instruction_heading_keywords"`
}

// DefaultMinConfidence is used when no policy override is present.
const DefaultMinConfidence = 0.35

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// JSONLDEnabled reports whether the JSON-LD strategy may run.
func (s *ParserSettings) JSONLDEnabled() bool { return s == nil || boolOr(s.EnableJSONLD, true) }

// DomainDOMEnabled reports whether the domain DOM strategy may run.
func (s *ParserSettings) DomainDOMEnabled() bool { return s == nil || boolOr(s.EnableDomainDOM, true) }

// MicrodataEnabled reports whether the microdata strategy may run.
func (s *ParserSettings) MicrodataEnabled() bool { return s == nil || boolOr(s.EnableMicrodata, true) }

// DOMFallbackEnabled reports whether the generic DOM fallback may run.
func (s *ParserSettings) DOMFallbackEnabled() bool {
	return s == nil || boolOr(s.EnableDOMFallback, true)
}

// PreferDomain reports whether the domain DOM strategy runs before JSON-LD.
func (s *ParserSettings) PreferDomain() bool { return s != nil && boolOr(s.PreferDomainDOM, false) }

// RecoveryEnabled reports whether failed parses may trigger a recovery pass.
func (s *ParserSettings) RecoveryEnabled() bool { return s == nil || boolOr(s.EnableRecovery, true) }

// SitemapsEnabled reports whether crawl seeds may expand through sitemaps.
func (s *ParserSettings) SitemapsEnabled() bool { return s == nil || boolOr(s.UseSitemaps, true) }

// LowConfidenceAllowed reports whether below-threshold parses still succeed.
func (s *ParserSettings) LowConfidenceAllowed() bool {
	return s != nil && boolOr(s.AllowLowConfidence, false)
}

// PenalizeEngagement reports whether pages without rating or social signals
// lose confidence.
func (s *ParserSettings) PenalizeEngagement() bool {
	return s == nil || boolOr(s.PenalizeMissingEngagement, true)
}

// MinConfidence returns the extraction confidence floor.
func (s *ParserSettings) MinConfidence() float64 {
	if s == nil || s.MinExtractionConfidence == nil {
		return DefaultMinConfidence
	}
	return *s.MinExtractionConfidence
}

// Bias returns the additive confidence bias.
func (s *ParserSettings) Bias() float64 {
	if s == nil {
		return 0
	}
	return s.ConfidenceBias
}

// Clone returns a deep copy safe to mutate during recovery planning.
func (s *ParserSettings) Clone() *ParserSettings {
	if s == nil {
		return &ParserSettings{}
	}
	out := *s
	out.EnableJSONLD = cloneBool(s.EnableJSONLD)
	out.EnableDomainDOM = cloneBool(s.EnableDomainDOM)
	out.EnableMicrodata = cloneBool(s.EnableMicrodata)
	out.EnableDOMFallback = cloneBool(s.EnableDOMFallback)
	out.PreferDomainDOM = cloneBool(s.PreferDomainDOM)
	out.EnableRecovery = cloneBool(s.EnableRecovery)
	out.UseSitemaps = cloneBool(s.UseSitemaps)
	out.AllowLowConfidence = cloneBool(s.AllowLowConfidence)
	out.PenalizeMissingEngagement = cloneBool(s.PenalizeMissingEngagement)
	out.MinExtractionConfidence = cloneFloat(s.MinExtractionConfidence)
	out.IngredientSelectors = cloneStrings(s.IngredientSelectors)
	out.InstructionSelectors = cloneStrings(s.InstructionSelectors)
	out.RatingValueSelectors = cloneStrings(s.RatingValueSelectors)
	out.RatingCountSelectors = cloneStrings(s.RatingCountSelectors)
	out.LikeCountSelectors = cloneStrings(s.LikeCountSelectors)
	out.ShareCountSelectors = cloneStrings(s.ShareCountSelectors)
	out.RequiredTextMarkers = cloneStrings(s.RequiredTextMarkers)
	out.BlockedTitleKeywords = cloneStrings(s.BlockedTitleKeywords)
	out.RecipePathHints = cloneStrings(s.RecipePathHints)
	out.BlockedPathHints = cloneStrings(s.BlockedPathHints)
	out.IngredientHeadings = cloneStrings(s.IngredientHeadings)
	out.InstructionHeadings = cloneStrings(s.InstructionHeadings)
	return &out
}

// Merge overlays non-nil and non-empty fields of override onto s and
// returns the merged copy. Neither receiver nor argument is mutated.
func (s *ParserSettings) Merge(override *ParserSettings) *ParserSettings {
	out := s.Clone()
	if override == nil {
		return out
	}
	mergeBool(&out.EnableJSONLD, override.EnableJSONLD)
	mergeBool(&out.EnableDomainDOM, override.EnableDomainDOM)
	mergeBool(&out.EnableMicrodata, override.EnableMicrodata)
	mergeBool(&out.EnableDOMFallback, override.EnableDOMFallback)
	mergeBool(&out.PreferDomainDOM, override.PreferDomainDOM)
	mergeBool(&out.EnableRecovery, override.EnableRecovery)
	mergeBool(&out.UseSitemaps, override.UseSitemaps)
	mergeBool(&out.AllowLowConfidence, override.AllowLowConfidence)
	mergeBool(&out.PenalizeMissingEngagement, override.PenalizeMissingEngagement)
	if override.MinExtractionConfidence != nil {
		out.MinExtractionConfidence = cloneFloat(override.MinExtractionConfidence)
	}
	if override.ConfidenceBias != 0 {
		out.ConfidenceBias = override.ConfidenceBias
	}
	mergeStrings(&out.IngredientSelectors, override.IngredientSelectors)
	mergeStrings(&out.InstructionSelectors, override.InstructionSelectors)
	mergeStrings(&out.RatingValueSelectors, override.RatingValueSelectors)
	mergeStrings(&out.RatingCountSelectors, override.RatingCountSelectors)
	mergeStrings(&out.LikeCountSelectors, override.LikeCountSelectors)
	mergeStrings(&out.ShareCountSelectors, override.ShareCountSelectors)
	mergeStrings(&out.RequiredTextMarkers, override.RequiredTextMarkers)
	mergeStrings(&out.BlockedTitleKeywords, override.BlockedTitleKeywords)
	mergeStrings(&out.RecipePathHints, override.RecipePathHints)
	mergeStrings(&out.BlockedPathHints, override.BlockedPathHints)
	mergeStrings(&out.IngredientHeadings, override.IngredientHeadings)
	mergeStrings(&out.InstructionHeadings, override.InstructionHeadings)
	return out
}

// ChangedKeys returns the JSON field names on which next differs from s,
// sorted by field order above. Used by the recovery preview endpoint.
func (s *ParserSettings) ChangedKeys(next *ParserSettings) []string {
	var keys []string
	add := func(name string, changed bool) {
		if changed {
			keys = append(keys, name)
		}
	}
	cur, nx := s, next
	if cur == nil {
		cur = &ParserSettings{}
	}
	if nx == nil {
		nx = &ParserSettings{}
	}
	add("enable_jsonld", !boolEq(cur.EnableJSONLD, nx.EnableJSONLD))
	add("enable_domain_dom", !boolEq(cur.EnableDomainDOM, nx.EnableDomainDOM))
	add("enable_microdata", !boolEq(cur.EnableMicrodata, nx.EnableMicrodata))
	add("enable_dom_fallback", !boolEq(cur.EnableDOMFallback, nx.EnableDOMFallback))
	add("prefer_domain_dom", !boolEq(cur.PreferDomainDOM, nx.PreferDomainDOM))
	add("enable_recovery", !boolEq(cur.EnableRecovery, nx.EnableRecovery))
	add("use_sitemaps", !boolEq(cur.UseSitemaps, nx.UseSitemaps))
	add("allow_low_confidence", !boolEq(cur.AllowLowConfidence, nx.AllowLowConfidence))
	add("penalize_missing_engagement_signals", !boolEq(cur.PenalizeMissingEngagement, nx.PenalizeMissingEngagement))
	add("min_extraction_confidence", !floatEq(cur.MinExtractionConfidence, nx.MinExtractionConfidence))
	add("confidence_bias", cur.ConfidenceBias != nx.ConfidenceBias)
	add("ingredient_selectors", !stringsEq(cur.IngredientSelectors, nx.IngredientSelectors))
	add("instruction_selectors", !stringsEq(cur.InstructionSelectors, nx.InstructionSelectors))
	add("rating_value_selectors", !stringsEq(cur.RatingValueSelectors, nx.RatingValueSelectors))
	add("rating_count_selectors", !stringsEq(cur.RatingCountSelectors, nx.RatingCountSelectors))
	add("like_count_selectors", !stringsEq(cur.LikeCountSelectors, nx.LikeCountSelectors))
	add("share_count_selectors", !stringsEq(cur.ShareCountSelectors, nx.ShareCountSelectors))
	add("required_text_markers", !stringsEq(cur.RequiredTextMarkers, nx.RequiredTextMarkers))
	add("blocked_title_keywords", !stringsEq(cur.BlockedTitleKeywords, nx.BlockedTitleKeywords))
	add("recipe_path_hints", !stringsEq(cur.RecipePathHints, nx.RecipePathHints))
	add("blocked_path_hints", !stringsEq(cur.BlockedPathHints, nx.BlockedPathHints))
	add("ingredient_heading_keywords", !stringsEq(cur.IngredientHeadings, nx.IngredientHeadings))
	add("instruction_heading_keywords", !stringsEq(cur.InstructionHeadings, nx.InstructionHeadings))
	return keys
}

func cloneBool(v *bool) *bool {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneStrings(v []string) []string {
	if len(v) == 0 {
		return nil
	}
	return append([]string(nil), v...)
}

func mergeBool(dst **bool, src *bool) {
	if src != nil {
		*dst = cloneBool(src)
	}
}

func mergeStrings(dst *[]string, src []string) {
	if len(src) > 0 {
		*dst = cloneStrings(src)
	}
}

func boolEq(a, b *bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func floatEq(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func stringsEq(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
