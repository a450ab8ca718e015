package rules

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/guestdesk/pkg/models"
)

// Filter narrows List. An empty PropertyID lists every rule of the client.
type Filter struct {
	ClientID    string
	PropertyID  string
	EnabledOnly bool
}

type Store interface {
	Create(ctx context.Context, r *models.AutoRule) error
	Update(ctx context.Context, r *models.AutoRule) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.AutoRule, error)
	List(ctx context.Context, f Filter) ([]*models.AutoRule, error)
	// ListEnabledForScope returns enabled rules of clientID that are either
	// client-wide or bound to propertyID.
	ListEnabledForScope(ctx context.Context, clientID, propertyID string) ([]*models.AutoRule, error)
}

// InMemoryStore is a threadsafe in-memory store for tests and local runs
type InMemoryStore struct {
	mu   sync.RWMutex
	byID map[string]*models.AutoRule
	now  func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID: make(map[string]*models.AutoRule),
		now:  time.Now,
	}
}

func (s *InMemoryStore) Create(ctx context.Context, r *models.AutoRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = s.now()
	r.UpdatedAt = r.CreatedAt
	s.byID[r.ID] = cloneRule(r)
	return nil
}

func (s *InMemoryStore) Update(ctx context.Context, r *models.AutoRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.byID[r.ID]
	if !ok {
		return ErrNotFound
	}
	r.CreatedAt = old.CreatedAt
	r.UpdatedAt = s.now()
	s.byID[r.ID] = cloneRule(r)
	return nil
}

func (s *InMemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, id string) (*models.AutoRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRule(r), nil
}

func (s *InMemoryStore) List(ctx context.Context, f Filter) ([]*models.AutoRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.AutoRule, 0)
	for _, r := range s.byID {
		if f.ClientID != "" && r.ClientID != f.ClientID {
			continue
		}
		if f.PropertyID != "" && r.PropertyID != f.PropertyID {
			continue
		}
		if f.EnabledOnly && !r.Enabled {
			continue
		}
		out = append(out, cloneRule(r))
	}
	sortRules(out)
	return out, nil
}

func (s *InMemoryStore) ListEnabledForScope(ctx context.Context, clientID, propertyID string) ([]*models.AutoRule, error) {
	all, err := s.List(ctx, Filter{ClientID: clientID, EnabledOnly: true})
	if err != nil {
		return nil, err
	}
	return filterScope(all, clientID, propertyID), nil
}

func filterScope(rules []*models.AutoRule, clientID, propertyID string) []*models.AutoRule {
	out := make([]*models.AutoRule, 0, len(rules))
	for _, r := range rules {
		if r.Enabled && InScope(r, clientID, propertyID) {
			out = append(out, r)
		}
	}
	return out
}

// sortRules orders newest first, matching the admin listing
func sortRules(rules []*models.AutoRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].ID < rules[j].ID
		}
		return rules[i].CreatedAt.After(rules[j].CreatedAt)
	})
}

func cloneRule(r *models.AutoRule) *models.AutoRule {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Conditions != nil {
		cp.Conditions = make(map[string]interface{}, len(r.Conditions))
		for k, v := range r.Conditions {
			cp.Conditions[k] = v
		}
	}
	return &cp
}
