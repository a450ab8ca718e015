package audit

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/guestdesk/pkg/models"
)

// InMemoryStore is a threadsafe in-memory store for tests
type InMemoryStore struct {
	mu       sync.RWMutex
	audits   []*models.AuditLog
	sendLogs []*models.SendLog
	now      func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{now: time.Now}
}

func (s *InMemoryStore) RecordAudit(ctx context.Context, e *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	cp := *e
	s.audits = append(s.audits, &cp)
	return nil
}

func (s *InMemoryStore) RecordSendLog(ctx context.Context, l *models.SendLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	cp := *l
	s.sendLogs = append(s.sendLogs, &cp)
	return nil
}

// Remove drops a record written earlier. Used to roll back a failed multi-record write.
func (s *InMemoryStore) Remove(auditID, sendLogID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if auditID != "" {
		for i, e := range s.audits {
			if e.ID == auditID {
				s.audits = append(s.audits[:i], s.audits[i+1:]...)
				break
			}
		}
	}
	if sendLogID != "" {
		for i, l := range s.sendLogs {
			if l.ID == sendLogID {
				s.sendLogs = append(s.sendLogs[:i], s.sendLogs[i+1:]...)
				break
			}
		}
	}
}

func (s *InMemoryStore) ListAudit(ctx context.Context, f AuditFilter) ([]*models.AuditLog, PageInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(f.Search)
	matched := make([]*models.AuditLog, 0)
	for _, e := range s.audits {
		if f.ActorUserID != "" && e.ActorUserID != f.ActorUserID {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.EntityType != "" && e.EntityType != f.EntityType {
			continue
		}
		if !inRange(e.CreatedAt, f.From, f.To) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(e.Action), search) &&
			!strings.Contains(strings.ToLower(e.EntityType), search) &&
			!strings.Contains(strings.ToLower(e.EntityID), search) {
			continue
		}
		cp := *e
		matched = append(matched, &cp)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	p := f.Pagination.Normalize()
	return paginate(matched, p), NewPageInfo(p, len(matched)), nil
}

func (s *InMemoryStore) ListSendLogs(ctx context.Context, f SendLogFilter) ([]*models.SendLog, PageInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(f.Search)
	matched := make([]*models.SendLog, 0)
	for _, l := range s.sendLogs {
		if f.ThreadID != "" && l.ThreadID != f.ThreadID {
			continue
		}
		if f.SentByUserID != "" && l.SentByUserID != f.SentByUserID {
			continue
		}
		if f.Channel != "" && l.Channel != f.Channel {
			continue
		}
		if !inRange(l.CreatedAt, f.From, f.To) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(l.FinalReply), search) {
			continue
		}
		cp := *l
		matched = append(matched, &cp)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	p := f.Pagination.Normalize()
	return paginate(matched, p), NewPageInfo(p, len(matched)), nil
}

func (s *InMemoryStore) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.sendLogs {
		if l.ID == id {
			if l.DispatchedAt == nil {
				t := at
				l.DispatchedAt = &t
			}
			return nil
		}
	}
	return ErrSendLogNotFound
}

func (s *InMemoryStore) Undispatched(ctx context.Context, createdBefore time.Time, limit int) ([]*models.SendLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.SendLog, 0)
	for _, l := range s.sendLogs {
		if l.DispatchedAt != nil || !l.CreatedAt.Before(createdBefore) {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}

func paginate[T any](items []T, p Pagination) []T {
	start := p.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + p.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
