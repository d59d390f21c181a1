package telemetry

import (
	"strings"

	"github.com/tastewell/harvester/internal/parser"
)

const maxTriageHints = 5

// triageHints turns a domain's failure histogram into operator guidance,
// ordered roughly by how actionable each signal is.
func triageHints(m *DomainReport) []string {
	var hints []string

	fetchFailureTotal := 0
	for class, count := range m.ParseFailureCounts {
		if strings.HasPrefix(class, "fetch_failed:") {
			fetchFailureTotal += count
		}
	}
	if fetchFailureTotal > 0 {
		hints = append(hints, "Fetch failures detected (see `fetch_failed:*`). Check domain reachability, timeouts, and rate limiting before tuning selectors.")
	}

	if m.ParseFailureCounts[parser.FailureDomainSelectorMismatch] > 0 ||
		m.FallbackClassCounts[parser.FailureDomainSelectorMismatch] > 0 {
		hints = append(hints, "Update `parser_settings.ingredient_selectors` and `parser_settings.instruction_selectors` for this domain.")
	}
	if m.ParseFailureCounts[parser.FailureInstructionStructureMismatch] > 0 {
		hints = append(hints, "Set `parser_settings.instruction_heading_keywords` to match this source's section headings.")
	}
	if m.ParseFailureCounts[parser.FailureDomainInstructionsSparse] > 0 {
		hints = append(hints, "Enable heading fallback and add instruction selectors for nested method blocks.")
	}
	if m.ParseFailureCounts[parser.FailureLowConfidence] > 0 {
		hints = append(hints, "Tune `min_extraction_confidence` or improve selectors to reduce low-confidence parses.")
	}
	if m.ParseFailureCounts[parser.FailureMissingRecipeMarkers] > 0 {
		hints = append(hints, "Adjust `required_text_markers` for this domain if valid recipe pages are being rejected.")
	}
	if m.ParseFailureCounts[parser.FailureJSONLDParse] > 0 || m.ParseFailureCounts["jsonld-incomplete"] > 0 {
		hints = append(hints, "Disable JSON-LD for this domain (`parser_settings.enable_jsonld=false`) and rely on domain selectors.")
	}
	if m.ParseFailureCounts[parser.FailureMicrodataParse] > 0 {
		hints = append(hints, "Disable microdata parsing for this domain (`parser_settings.enable_microdata=false`) and tune DOM selectors.")
	}
	if len(m.RecoveryClassCounts) > 0 {
		hints = append(hints, "Recovery parser is active for this domain; review `recovery:*` strategies and promote stable selectors into parser settings.")
	}
	if m.ComplianceRejections > 0 {
		hints = append(hints, "Review compliance reasons and confirm robots/canonical/paywall settings before increasing crawl volume.")
	}

	if len(hints) == 0 && m.FailureRate > 0.2 {
		hints = append(hints, "High failure rate with weak class signal: inspect latest failures and add domain-specific parser settings.")
	}
	if len(hints) > maxTriageHints {
		hints = hints[:maxTriageHints]
	}
	return hints
}
