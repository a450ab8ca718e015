package kb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/guestdesk/pkg/models"
)

var (
	ErrNotFound     = errors.New("kb entry not found")
	ErrInvalidEntry = errors.New("invalid kb entry")
)

// ContextLimit caps the entries handed to classification
const ContextLimit = 10

// Filter narrows the listing. Query matches title or content case-insensitively.
type Filter struct {
	ClientID   string
	PropertyID string
	Tag        string
	Query      string
	Limit      int
}

type Store interface {
	Create(ctx context.Context, e *models.KbEntry) error
	Get(ctx context.Context, id string) (*models.KbEntry, error)
	List(ctx context.Context, f Filter) ([]*models.KbEntry, error)
	// ForScope returns entries of clientID that are client-wide or belong to propertyID
	ForScope(ctx context.Context, clientID, propertyID string, limit int) ([]*models.KbEntry, error)
}

// Validate checks the required fields and normalizes tags
func Validate(e *models.KbEntry) error {
	e.Title = strings.TrimSpace(e.Title)
	switch {
	case e.ClientID == "":
		return fmt.Errorf("%w: clientId is required", ErrInvalidEntry)
	case e.Title == "":
		return fmt.Errorf("%w: title is required", ErrInvalidEntry)
	case strings.TrimSpace(e.Content) == "":
		return fmt.Errorf("%w: content is required", ErrInvalidEntry)
	}
	tags := make([]string, 0, len(e.Tags))
	for _, t := range e.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	e.Tags = tags
	return nil
}

// InMemoryStore is a threadsafe in-memory store for tests and local runs
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*models.KbEntry
	now     func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]*models.KbEntry), now: time.Now}
}

func (s *InMemoryStore) Create(ctx context.Context, e *models.KbEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = s.now()
	e.UpdatedAt = e.CreatedAt
	s.entries[e.ID] = cloneEntry(e)
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, id string) (*models.KbEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneEntry(e), nil
}

func (s *InMemoryStore) List(ctx context.Context, f Filter) ([]*models.KbEntry, error) {
	return s.collect(f.Limit, func(e *models.KbEntry) bool {
		return (f.ClientID == "" || e.ClientID == f.ClientID) &&
			(f.PropertyID == "" || e.PropertyID == f.PropertyID) &&
			(f.Tag == "" || hasTag(e.Tags, f.Tag)) &&
			matchesQuery(e, f.Query)
	}), nil
}

func (s *InMemoryStore) ForScope(ctx context.Context, clientID, propertyID string, limit int) ([]*models.KbEntry, error) {
	return s.collect(limit, func(e *models.KbEntry) bool {
		return e.ClientID == clientID && (e.PropertyID == "" || e.PropertyID == propertyID)
	}), nil
}

func (s *InMemoryStore) collect(limit int, keep func(*models.KbEntry) bool) []*models.KbEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.KbEntry, 0)
	for _, e := range s.entries {
		if keep(e) {
			out = append(out, cloneEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func matchesQuery(e *models.KbEntry, q string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(e.Title), q) || strings.Contains(strings.ToLower(e.Content), q)
}

func cloneEntry(e *models.KbEntry) *models.KbEntry {
	cp := *e
	cp.Tags = append([]string(nil), e.Tags...)
	return &cp
}
