package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemStore struct {
	mu         sync.RWMutex
	m          map[string]Product
	byExternal map[string]string

	now func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		m:          map[string]Product{},
		byExternal: map[string]string{},
		now:        time.Now,
	}
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }

func (s *MemStore) List(ctx context.Context, q ListQuery) ([]Product, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name := strings.ToLower(q.Filter.Name)
	matched := make([]Product, 0, len(s.m))
	for _, p := range s.m {
		if p.Deleted() || !matchesFilter(p, q.Filter, name) {
			continue
		}
		matched = append(matched, p)
	}
	sortByCreated(matched)

	total := len(matched)
	from := min(q.Offset(), total)
	to := min(from+q.Limit, total)

	out := make([]Product, to-from)
	copy(out, matched[from:to])
	return out, total, nil
}

func matchesFilter(p Product, f Filter, lowerName string) bool {
	if lowerName != "" && !strings.Contains(strings.ToLower(p.Name), lowerName) {
		return false
	}
	if f.Category != "" && (p.Category == nil || *p.Category != f.Category) {
		return false
	}
	if f.MinPrice == nil && f.MaxPrice == nil {
		return true
	}
	if !p.Price.Valid {
		return false
	}
	if f.MinPrice != nil && p.Price.Decimal.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && p.Price.Decimal.GreaterThan(*f.MaxPrice) {
		return false
	}
	return true
}

func sortByCreated(ps []Product) {
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].CreatedAt.Before(ps[j].CreatedAt)
		}
		return ps[i].ID < ps[j].ID
	})
}

func (s *MemStore) FindByExternalID(ctx context.Context, externalID string) (Product, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byExternal[externalID]
	if !ok {
		return Product{}, false, nil
	}
	return s.m[id], true, nil
}

func (s *MemStore) Insert(ctx context.Context, p Product) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byExternal[p.ExternalID]; exists {
		return Product{}, ErrDuplicateExternalID
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := s.now().UTC()
	p.CreatedAt, p.UpdatedAt, p.DeletedAt = now, now, nil

	s.m[p.ID] = p
	s.byExternal[p.ExternalID] = p.ID
	return p, nil
}

func (s *MemStore) Update(ctx context.Context, id string, a Attributes) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.m[id]
	if !ok {
		return ErrProductNotFound
	}
	p.apply(a)
	p.UpdatedAt = s.now().UTC()
	s.m[id] = p
	return nil
}

func (s *MemStore) SoftDelete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.m[id]
	if !ok || p.Deleted() {
		return false, nil
	}
	now := s.now().UTC()
	p.DeletedAt = &now
	s.m[id] = p
	return true, nil
}

func (s *MemStore) Count(ctx context.Context, f CountFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, p := range s.m {
		if matchesCount(p, f) {
			n++
		}
	}
	return n, nil
}

func matchesCount(p Product, f CountFilter) bool {
	switch f.Scope {
	case ScopeActive:
		if p.Deleted() {
			return false
		}
	case ScopeDeleted:
		if !p.Deleted() {
			return false
		}
	}
	if f.WithPrice != nil && p.Price.Valid != *f.WithPrice {
		return false
	}
	if f.CreatedFrom != nil && p.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && p.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	return true
}

func (s *MemStore) CountByCategory(ctx context.Context) ([]CategoryCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[string]int{}
	uncategorized := 0
	for _, p := range s.m {
		switch {
		case p.Deleted():
		case p.Category == nil:
			uncategorized++
		default:
			counts[*p.Category]++
		}
	}

	out := make([]CategoryCount, 0, len(counts)+1)
	for c, n := range counts {
		out = append(out, CategoryCount{Category: &c, Count: n})
	}
	if uncategorized > 0 {
		out = append(out, CategoryCount{Count: uncategorized})
	}
	sortCategoryCounts(out)
	return out, nil
}

func sortCategoryCounts(cs []CategoryCount) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Count != cs[j].Count {
			return cs[i].Count > cs[j].Count
		}
		switch {
		case cs[i].Category == nil:
			return false
		case cs[j].Category == nil:
			return true
		}
		return *cs[i].Category < *cs[j].Category
	})
}
