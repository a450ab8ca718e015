package approvals

import (
	"context"

	"github.com/guestdesk/pkg/models"
)

// Transition is one decision on a pending approval and every record it implies.
// Stores apply it as a unit: the approval status is compare-and-swapped from
// pending, and the send log, mirrored thread status and audit entry are
// written in the same unit of work.
type Transition struct {
	ApprovalID string
	To         models.ApprovalStatus
	ReviewerID string
	Notes      string
	ThreadID   string
	SendLog    *models.SendLog
	Audit      *models.AuditLog
}

// DirectSend records an operator reply sent without an approval
type DirectSend struct {
	ThreadID string
	SendLog  *models.SendLog
	Audit    *models.AuditLog
}

// ListFilter narrows the approval listing; Status defaults to pending
type ListFilter struct {
	Status   models.ApprovalStatus
	ClientID string
	Limit    int
}

type Store interface {
	Create(ctx context.Context, a *models.ApprovalRequest) error
	Get(ctx context.Context, id string) (*models.ApprovalRequest, error)
	List(ctx context.Context, f ListFilter) ([]*models.ApprovalRequest, error)
	PendingForMessages(ctx context.Context, messageIDs []string) ([]*models.ApprovalRequest, error)
	// Transition returns ErrNotFound or ErrConflict without writing anything
	// when the approval is missing or no longer pending.
	Transition(ctx context.Context, t Transition) (*models.ApprovalRequest, error)
	// RecordDirectSend returns ErrThreadClosed when the thread no longer accepts replies
	RecordDirectSend(ctx context.Context, d DirectSend) error
	// RecordAudit writes a standalone audit entry
	RecordAudit(ctx context.Context, e *models.AuditLog) error
}
