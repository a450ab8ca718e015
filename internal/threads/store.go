package threads

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/guestdesk/pkg/models"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidMessage  = errors.New("invalid message")
	ErrAlreadyAnalyzed = errors.New("message already analyzed")
)

// Filter narrows the thread listing
type Filter struct {
	ClientID   string
	PropertyID string
	Status     models.ThreadStatus
	Limit      int
	Offset     int
}

type Store interface {
	CreateProperty(ctx context.Context, p *models.Property) error
	GetProperty(ctx context.Context, id string) (*models.Property, error)

	CreateThread(ctx context.Context, t *models.Thread) error
	GetThread(ctx context.Context, id string) (*models.Thread, error)
	ListThreads(ctx context.Context, f Filter) ([]*models.Thread, int, error)
	SetStatus(ctx context.Context, id string, status models.ThreadStatus) error
	TouchLastReceived(ctx context.Context, id string, at time.Time) error

	CreateMessage(ctx context.Context, m *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	// ListMessages returns a thread's messages oldest first
	ListMessages(ctx context.Context, threadID string) ([]*models.Message, error)
	// RecentMessages returns up to limit messages received before the given
	// message, oldest first.
	RecentMessages(ctx context.Context, threadID, beforeMessageID string, limit int) ([]*models.Message, error)

	SaveAnalysis(ctx context.Context, a *models.Analysis) error
	GetAnalysis(ctx context.Context, messageID string) (*models.Analysis, error)
}

// InMemoryStore is a threadsafe in-memory store for tests and local runs
type InMemoryStore struct {
	mu         sync.RWMutex
	properties map[string]*models.Property
	threads    map[string]*models.Thread
	messages   map[string]*models.Message
	byThread   map[string][]string
	analyses   map[string]*models.Analysis
	now        func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		properties: make(map[string]*models.Property),
		threads:    make(map[string]*models.Thread),
		messages:   make(map[string]*models.Message),
		byThread:   make(map[string][]string),
		analyses:   make(map[string]*models.Analysis),
		now:        time.Now,
	}
}

func (s *InMemoryStore) CreateProperty(ctx context.Context, p *models.Property) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = s.now()
	cp := *p
	s.properties[p.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetProperty(ctx context.Context, id string) (*models.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.properties[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *InMemoryStore) CreateThread(ctx context.Context, t *models.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = models.ThreadPending
	}
	t.CreatedAt = s.now()
	t.UpdatedAt = t.CreatedAt
	if t.LastReceivedAt.IsZero() {
		t.LastReceivedAt = t.CreatedAt
	}
	cp := *t
	s.threads[t.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetThread(ctx context.Context, id string) (*models.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *InMemoryStore) ListThreads(ctx context.Context, f Filter) ([]*models.Thread, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Thread, 0)
	for _, t := range s.threads {
		if f.ClientID != "" && t.ClientID != f.ClientID {
			continue
		}
		if f.PropertyID != "" && t.PropertyID != f.PropertyID {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastReceivedAt.After(out[j].LastReceivedAt) })
	total := len(out)
	if f.Offset >= len(out) {
		return []*models.Thread{}, total, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (s *InMemoryStore) SetStatus(ctx context.Context, id string, status models.ThreadStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = s.now()
	return nil
}

func (s *InMemoryStore) TouchLastReceived(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return ErrNotFound
	}
	t.LastReceivedAt = at
	t.UpdatedAt = s.now()
	return nil
}

func (s *InMemoryStore) CreateMessage(ctx context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[m.ThreadID]; !ok {
		return ErrNotFound
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.ReceivedAt.IsZero() {
		m.ReceivedAt = s.now()
	}
	cp := *m
	s.messages[m.ID] = &cp
	s.byThread[m.ThreadID] = append(s.byThread[m.ThreadID], m.ID)
	return nil
}

func (s *InMemoryStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *InMemoryStore) ListMessages(ctx context.Context, threadID string) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(threadID), nil
}

func (s *InMemoryStore) listLocked(threadID string) []*models.Message {
	ids := s.byThread[threadID]
	out := make([]*models.Message, 0, len(ids))
	for _, id := range ids {
		cp := *s.messages[id]
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out
}

func (s *InMemoryStore) RecentMessages(ctx context.Context, threadID, beforeMessageID string, limit int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.listLocked(threadID)
	cut := len(all)
	for i, m := range all {
		if m.ID == beforeMessageID {
			cut = i
			break
		}
	}
	all = all[:cut]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (s *InMemoryStore) SaveAnalysis(ctx context.Context, a *models.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[a.MessageID]; !ok {
		return ErrNotFound
	}
	if _, ok := s.analyses[a.MessageID]; ok {
		return ErrAlreadyAnalyzed
	}
	a.CreatedAt = s.now()
	cp := *a
	s.analyses[a.MessageID] = &cp
	return nil
}

func (s *InMemoryStore) GetAnalysis(ctx context.Context, messageID string) (*models.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.analyses[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}
