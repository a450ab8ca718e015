package audit

import (
	"context"
	"errors"
	"time"

	"github.com/guestdesk/pkg/models"
)

// Action names written by the approval workflow
const (
	ActionMessageApprovedAndSent = "message_approved_and_sent"
	ActionMessageRejected        = "message_rejected"
	ActionMessageSent            = "message_sent"
	ActionBulkApprove            = "BULK_APPROVE"
	ActionBulkReject             = "BULK_REJECT"

	EntityMessage  = "Message"
	EntityApproval = "ApprovalRequest"

	ChannelPMS = "pms"
)

// ErrSendLogNotFound is returned when marking a send log that does not exist
var ErrSendLogNotFound = errors.New("send log not found")

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// Pagination is a 1-based page request
type Pagination struct {
	Page  int
	Limit int
}

// Normalize clamps the page to >= 1 and the limit to (0, MaxLimit]
func (p Pagination) Normalize() Pagination {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Page < 1 {
		p.Page = 1
	}
	return p
}

func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

// PageInfo is returned alongside every listing
type PageInfo struct {
	Total      int  `json:"total"`
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	TotalPages int  `json:"totalPages"`
	HasMore    bool `json:"hasMore"`
}

func NewPageInfo(p Pagination, total int) PageInfo {
	totalPages := 0
	if p.Limit > 0 {
		totalPages = (total + p.Limit - 1) / p.Limit
	}
	return PageInfo{
		Total:      total,
		Page:       p.Page,
		Limit:      p.Limit,
		TotalPages: totalPages,
		HasMore:    p.Page < totalPages,
	}
}

// AuditFilter narrows the audit log listing. Search matches action, entity
// type or entity id case-insensitively.
type AuditFilter struct {
	ActorUserID string
	Action      string
	EntityType  string
	From        time.Time
	To          time.Time
	Search      string
	Pagination
}

// SendLogFilter narrows the send log listing. Search matches the reply text.
type SendLogFilter struct {
	ThreadID     string
	SentByUserID string
	Channel      string
	From         time.Time
	To           time.Time
	Search       string
	Pagination
}

type Store interface {
	RecordAudit(ctx context.Context, e *models.AuditLog) error
	RecordSendLog(ctx context.Context, s *models.SendLog) error
	ListAudit(ctx context.Context, f AuditFilter) ([]*models.AuditLog, PageInfo, error)
	ListSendLogs(ctx context.Context, f SendLogFilter) ([]*models.SendLog, PageInfo, error)
}

// Outbox tracks which send logs have reached the outbound channel. A send log
// is written with its decision; its dispatch job is queued afterwards and may
// be lost, so undispatched logs are swept and queued again.
type Outbox interface {
	MarkDispatched(ctx context.Context, id string, at time.Time) error
	// Undispatched returns logs created before createdBefore that were never
	// marked, oldest first.
	Undispatched(ctx context.Context, createdBefore time.Time, limit int) ([]*models.SendLog, error)
}
