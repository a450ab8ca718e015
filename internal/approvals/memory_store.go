package approvals

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/guestdesk/internal/threads"
	"github.com/guestdesk/pkg/models"
)

// ThreadStore is the part of the thread store the in-memory approval store writes through
type ThreadStore interface {
	GetThread(ctx context.Context, id string) (*models.Thread, error)
	SetStatus(ctx context.Context, id string, status models.ThreadStatus) error
}

// RecordStore receives the send logs and audit entries produced by decisions
type RecordStore interface {
	RecordAudit(ctx context.Context, e *models.AuditLog) error
	RecordSendLog(ctx context.Context, l *models.SendLog) error
}

type recordRemover interface {
	Remove(auditID, sendLogID string)
}

// InMemoryStore is a threadsafe in-memory store for tests and local runs. A
// single mutex serializes transitions, which gives the compare-and-swap on
// status; partial writes are undone before the lock is released.
type InMemoryStore struct {
	mu      sync.Mutex
	byID    map[string]*models.ApprovalRequest
	threads ThreadStore
	records RecordStore
	now     func() time.Time
}

func NewInMemoryStore(threads ThreadStore, records RecordStore) *InMemoryStore {
	return &InMemoryStore{
		byID:    make(map[string]*models.ApprovalRequest),
		threads: threads,
		records: records,
		now:     time.Now,
	}
}

func (s *InMemoryStore) Create(ctx context.Context, a *models.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = models.ApprovalPending
	}
	a.CreatedAt = s.now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	s.byID[a.ID] = &cp
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *InMemoryStore) List(ctx context.Context, f ListFilter) ([]*models.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := f.Status
	if status == "" {
		status = models.ApprovalPending
	}
	out := make([]*models.ApprovalRequest, 0)
	for _, a := range s.byID {
		if a.Status != status {
			continue
		}
		if f.ClientID != "" {
			t, err := s.threads.GetThread(ctx, a.ThreadID)
			if err != nil || t.ClientID != f.ClientID {
				continue
			}
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *InMemoryStore) PendingForMessages(ctx context.Context, messageIDs []string) ([]*models.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[string]bool, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = true
	}
	out := make([]*models.ApprovalRequest, 0)
	for _, a := range s.byID {
		if a.Status == models.ApprovalPending && wanted[a.MessageID] {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) Transition(ctx context.Context, t Transition) (*models.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[t.ApprovalID]
	if !ok {
		return nil, ErrNotFound
	}
	if a.Status != models.ApprovalPending {
		return nil, ErrConflict
	}

	if err := s.writeRecords(ctx, t.ThreadID, t.To, t.SendLog, t.Audit); err != nil {
		return nil, err
	}

	a.Status = t.To
	a.ReviewerID = t.ReviewerID
	a.Notes = t.Notes
	a.UpdatedAt = s.now()
	cp := *a
	return &cp, nil
}

func (s *InMemoryStore) RecordDirectSend(ctx context.Context, d DirectSend) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	th, err := s.threads.GetThread(ctx, d.ThreadID)
	if err != nil {
		return err
	}
	if !threads.AcceptsReply(th.Status) {
		return ErrThreadClosed
	}
	return s.writeRecords(ctx, d.ThreadID, models.ApprovalApproved, d.SendLog, d.Audit)
}

func (s *InMemoryStore) RecordAudit(ctx context.Context, e *models.AuditLog) error {
	return s.records.RecordAudit(ctx, e)
}

// writeRecords mirrors decision onto the thread and writes the send log and
// audit entry, undoing earlier writes if a later one fails.
func (s *InMemoryStore) writeRecords(ctx context.Context, threadID string, decision models.ApprovalStatus, sendLog *models.SendLog, entry *models.AuditLog) error {
	th, err := s.threads.GetThread(ctx, threadID)
	if err != nil {
		return fmt.Errorf("load thread: %w", err)
	}
	previous := th.Status

	if err := threads.MirrorDecision(ctx, s.threads, threadID, decision); err != nil {
		return fmt.Errorf("set thread status: %w", err)
	}
	rollback := func(sendLogID string) {
		_ = s.threads.SetStatus(ctx, threadID, previous)
		if r, ok := s.records.(recordRemover); ok && sendLogID != "" {
			r.Remove("", sendLogID)
		}
	}

	sendLogID := ""
	if sendLog != nil {
		if err := s.records.RecordSendLog(ctx, sendLog); err != nil {
			rollback("")
			return fmt.Errorf("record send log: %w", err)
		}
		sendLogID = sendLog.ID
	}
	if entry != nil {
		if err := s.records.RecordAudit(ctx, entry); err != nil {
			rollback(sendLogID)
			return fmt.Errorf("record audit: %w", err)
		}
	}
	return nil
}
