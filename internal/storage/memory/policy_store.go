package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tastewell/harvester/internal/harvest"
	"github.com/tastewell/harvester/internal/policy"
)

// PolicyStore keeps source policies in a map, seeded from the builtin
// defaults unless told otherwise.
type PolicyStore struct {
	mu       sync.RWMutex
	policies map[string]*policy.SourcePolicy
}

// NewPolicyStore constructs a PolicyStore holding the given policies.
func NewPolicyStore(policies ...*policy.SourcePolicy) *PolicyStore {
	if len(policies) == 0 {
		policies = policy.Defaults()
	}
	s := &PolicyStore{policies: make(map[string]*policy.SourcePolicy, len(policies))}
	for _, p := range policies {
		s.policies[p.ID] = clonePolicy(p)
	}
	return s
}

// ListPolicies returns all policies ordered by ID.
func (s *PolicyStore) ListPolicies(_ context.Context) ([]*policy.SourcePolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*policy.SourcePolicy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, clonePolicy(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetPolicy fetches one policy by ID.
func (s *PolicyStore) GetPolicy(_ context.Context, id string) (*policy.SourcePolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[id]
	if !ok {
		return nil, harvest.ErrPolicyNotFound
	}
	return clonePolicy(p), nil
}

// UpdatePolicy replaces the stored policy.
func (s *PolicyStore) UpdatePolicy(_ context.Context, p *policy.SourcePolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[p.ID]; !ok {
		return harvest.ErrPolicyNotFound
	}
	s.policies[p.ID] = clonePolicy(p)
	return nil
}

func clonePolicy(p *policy.SourcePolicy) *policy.SourcePolicy {
	out := *p
	out.SeedURLs = append([]string(nil), p.SeedURLs...)
	out.ParserSettings = p.ParserSettings.Clone()
	if p.AlertSettings != nil {
		alerts := *p.AlertSettings
		alerts.CalibratedAt = cloneTime(p.AlertSettings.CalibratedAt)
		out.AlertSettings = &alerts
	}
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
