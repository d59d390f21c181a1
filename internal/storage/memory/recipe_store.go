package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/tastewell/harvester/internal/harvest"
)

// RecipeStore keeps harvested recipe records in a map.
type RecipeStore struct {
	mu      sync.RWMutex
	recipes map[uuid.UUID]harvest.RecipeRecord
}

// NewRecipeStore constructs a RecipeStore.
func NewRecipeStore() *RecipeStore {
	return &RecipeStore{recipes: make(map[uuid.UUID]harvest.RecipeRecord)}
}

// CreateRecipe stores a new record.
func (s *RecipeStore) CreateRecipe(_ context.Context, rec *harvest.RecipeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipes[rec.ID] = cloneRecipe(rec)
	return nil
}

// UpdateRecipe replaces the stored record.
func (s *RecipeStore) UpdateRecipe(_ context.Context, rec *harvest.RecipeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recipes[rec.ID]; !ok {
		return harvest.ErrRecipeNotFound
	}
	s.recipes[rec.ID] = cloneRecipe(rec)
	return nil
}

// GetBySourceURL finds the record whose primary or attached source URL
// matches.
func (s *RecipeStore) GetBySourceURL(_ context.Context, sourceURL string) (*harvest.RecipeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id := range s.recipes {
		rec := s.recipes[id]
		if rec.SourceURL == sourceURL {
			copied := cloneRecipe(&rec)
			return &copied, nil
		}
		for _, u := range rec.SourceURLs {
			if u == sourceURL {
				copied := cloneRecipe(&rec)
				return &copied, nil
			}
		}
	}
	return nil, harvest.ErrRecipeNotFound
}

// ListRecipes returns all records, newest first.
func (s *RecipeStore) ListRecipes(_ context.Context) ([]*harvest.RecipeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*harvest.RecipeRecord, 0, len(s.recipes))
	for id := range s.recipes {
		rec := s.recipes[id]
		copied := cloneRecipe(&rec)
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func cloneRecipe(rec *harvest.RecipeRecord) harvest.RecipeRecord {
	out := *rec
	out.Ingredients = append([]harvest.Ingredient(nil), rec.Ingredients...)
	out.Instructions = append([]string(nil), rec.Instructions...)
	out.SourceURLs = append([]string(nil), rec.SourceURLs...)
	out.RatingValue = cloneFloat(rec.RatingValue)
	out.RatingCount = cloneInt(rec.RatingCount)
	out.LikeCount = cloneInt(rec.LikeCount)
	out.ShareCount = cloneInt(rec.ShareCount)
	return out
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
