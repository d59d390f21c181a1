package api

import (
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tastewell/harvester/internal/harvest"
	"github.com/tastewell/harvester/internal/policy"
)

const defaultPolicyListLimit = 50

func (s *Server) listPolicies(w http.ResponseWriter, r *http.Request) {
	limit := defaultPolicyListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	all, err := s.policies.ListPolicies(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "list policies failed")
		return
	}
	active := make([]*policy.SourcePolicy, 0, len(all))
	for _, p := range all {
		if p.IsActive {
			active = append(active, p)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Name < active[j].Name })
	if len(active) > limit {
		active = active[:limit]
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"policies": active, "count": len(active)})
}

func (s *Server) getPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := s.policies.GetPolicy(r.Context(), chi.URLParam(r, "policy_id"))
	if err != nil {
		if errors.Is(err, harvest.ErrPolicyNotFound) {
			s.writeError(w, http.StatusNotFound, "source policy not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "get policy failed")
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}
