package parser

import (
	"strings"
)

// Parse failure classes.
const (
	FailureDomainSelectorMismatch       = "domain-selector-mismatch"
	FailureDomainIngredientsSparse      = "domain-ingredients-sparse"
	FailureDomainInstructionsSparse     = "domain-instructions-sparse"
	FailureInstructionStructureMismatch = "instruction-structure-mismatch"
	FailureJSONLDParse                  = "jsonld-parse-failed"
	FailureMicrodataParse               = "microdata-parse-failed"
	FailureEmptyDocument                = "empty-document"
	FailureMissingRecipeMarkers         = "missing-recipe-markers"
	FailureInsufficientContent          = "insufficient-page-content"
	FailureUnknown                      = "unknown-parse-failure"
	FailureLowConfidence                = "low-confidence-parse"
)

// ClassifyParseFailure explains why the full cascade produced nothing for
// this page. Class names are stable; they drive recovery planning and
// telemetry.
func ClassifyParseFailure(p *Page) string {
	if p == nil {
		return FailureEmptyDocument
	}
	if class, done := classifyProfileStructure(p); done {
		return class
	}
	items := extractJSONLD(p.Doc)
	if findRecipeJSONLD(items) != nil || findRecipeLikeJSONLD(items) != nil {
		return FailureJSONLDParse
	}
	if containsRecipeMicrodata(p.Doc) {
		return FailureMicrodataParse
	}
	text := strings.ToLower(docText(p.Doc))
	if text == "" {
		return FailureEmptyDocument
	}
	if !strings.Contains(text, "ingredients") && !strings.Contains(text, "instructions") &&
		!strings.Contains(text, "directions") && !strings.Contains(text, "method") {
		return FailureMissingRecipeMarkers
	}
	if len(text) < 80 {
		return FailureInsufficientContent
	}
	return FailureUnknown
}
