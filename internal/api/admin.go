package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tastewell/harvester/internal/harvest"
	"github.com/tastewell/harvester/internal/parser"
	"github.com/tastewell/harvester/internal/policy"
	"github.com/tastewell/harvester/internal/telemetry"
)

type recoverySuggestionRequest struct {
	ParseFailure string `json:"parse_failure"`
	SourceURL    string `json:"source_url,omitempty"`
}

type recoverySuggestionResponse struct {
	PolicyID     string         `json:"policy_id"`
	Domain       string         `json:"domain"`
	ParseFailure string         `json:"parse_failure"`
	SourceURL    string         `json:"source_url"`
	Actions      []string       `json:"actions"`
	ChangedKeys  []string       `json:"changed_keys"`
	Patch        map[string]any `json:"patch"`
	Applied      bool           `json:"applied"`
}

func (s *Server) recoverySuggestion(w http.ResponseWriter, r *http.Request) {
	var req recoverySuggestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	p, err := s.policies.GetPolicy(ctx, chi.URLParam(r, "policy_id"))
	if err != nil {
		if errors.Is(err, harvest.ErrPolicyNotFound) {
			s.writeError(w, http.StatusNotFound, "source policy not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "get policy failed")
		return
	}

	parseFailure := harvest.NormalizeFailureClass(req.ParseFailure)
	if parseFailure == "" || !parser.RecoverySupported(parseFailure) {
		s.writeError(w, http.StatusBadRequest,
			fmt.Sprintf("unsupported parse failure class: %s", req.ParseFailure))
		return
	}

	sourceURL := req.SourceURL
	if sourceURL == "" {
		sourceURL = fmt.Sprintf("https://%s/", p.Domain)
	}
	if !hostMatchesDomain(policy.NormalizedHost(sourceURL), p.Domain) {
		s.writeError(w, http.StatusBadRequest, "source_url hostname must match policy domain")
		return
	}

	suggested, actions := parser.BuildRecoverySettings(parseFailure, sourceURL, p.ParserSettings)
	changedKeys := p.ParserSettings.ChangedKeys(suggested)
	patch := settingsPatch(suggested, changedKeys)

	applied := false
	if r.URL.Query().Get("apply") == "true" && len(actions) > 0 && len(patch) > 0 {
		p.ParserSettings = suggested
		if err := s.policies.UpdatePolicy(ctx, p); err != nil {
			s.writeError(w, http.StatusInternalServerError, "update policy failed")
			return
		}
		applied = true
	}

	s.writeJSON(w, http.StatusOK, recoverySuggestionResponse{
		PolicyID:     p.ID,
		Domain:       p.Domain,
		ParseFailure: parseFailure,
		SourceURL:    sourceURL,
		Actions:      actions,
		ChangedKeys:  changedKeys,
		Patch:        patch,
		Applied:      applied,
	})
}

// hostMatchesDomain accepts the policy domain itself or any subdomain.
func hostMatchesDomain(host, domain string) bool {
	if host == "" {
		return false
	}
	domain = strings.ToLower(strings.TrimPrefix(domain, "www."))
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// settingsPatch projects the suggested settings down to only the keys that
// differ from the policy's current settings.
func settingsPatch(suggested *policy.ParserSettings, changedKeys []string) map[string]any {
	raw, err := json.Marshal(suggested)
	if err != nil {
		return map[string]any{}
	}
	var full map[string]any
	if err := json.Unmarshal(raw, &full); err != nil {
		return map[string]any{}
	}
	patch := make(map[string]any, len(changedKeys))
	for _, key := range changedKeys {
		if v, ok := full[key]; ok {
			patch[key] = v
		}
	}
	return patch
}

func (s *Server) telemetryReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.telemetry.Report(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "telemetry report failed")
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) calibrateAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := telemetry.CalibrateOptions{Apply: q.Get("apply") == "true"}
	if raw := q.Get("min_jobs"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid min_jobs")
			return
		}
		opts.MinJobs = n
	}
	if raw := q.Get("buffer_multiplier"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || f < 1.0 {
			s.writeError(w, http.StatusBadRequest, "invalid buffer_multiplier")
			return
		}
		opts.Buffer = f
	}

	result, err := s.telemetry.Calibrate(r.Context(), opts)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "alert calibration failed")
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}
