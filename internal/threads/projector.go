package threads

import (
	"context"
	"errors"
	"time"

	"github.com/guestdesk/internal/retry"
	"github.com/guestdesk/pkg/models"
)

// StatusForDecision maps an approval outcome onto the thread status it
// implies. Only approved and rejected have a mirror.
func StatusForDecision(status models.ApprovalStatus) (models.ThreadStatus, bool) {
	switch status {
	case models.ApprovalApproved:
		return models.ThreadSent, true
	case models.ApprovalRejected:
		return models.ThreadDeclined, true
	}
	return "", false
}

// AcceptsReply reports whether a reply may still be sent on a thread in status s
func AcceptsReply(s models.ThreadStatus) bool {
	return s != models.ThreadSent && s != models.ThreadDeclined
}

// OperatorSettable reports whether an operator may set s by hand. sent and
// declined are only written by approval decisions.
func OperatorSettable(s models.ThreadStatus) bool {
	switch s {
	case models.ThreadPending, models.ThreadOpen, models.ThreadResolved, models.ThreadClosed:
		return true
	}
	return false
}

type statusWriter interface {
	TouchLastReceived(ctx context.Context, id string, at time.Time) error
}

// Projector keeps thread-level fields in step with message events
type Projector struct {
	store statusWriter
}

func NewProjector(store statusWriter) *Projector {
	return &Projector{store: store}
}

// MessageArrived bumps lastReceivedAt and leaves the status untouched
func (p *Projector) MessageArrived(ctx context.Context, threadID string, at time.Time) error {
	return p.store.TouchLastReceived(ctx, threadID, at)
}

// StatusSetter writes a thread status
type StatusSetter interface {
	SetStatus(ctx context.Context, id string, status models.ThreadStatus) error
}

// MirrorDecision writes the thread status implied by an approval decision.
// Transient failures are retried so a committed decision is not left with a
// stale thread status. Decisions with no mirror are a no-op.
func MirrorDecision(ctx context.Context, w StatusSetter, threadID string, decision models.ApprovalStatus) error {
	status, ok := StatusForDecision(decision)
	if !ok {
		return nil
	}
	result := retry.RetryWithBackoff(ctx, "mirror_thread_status", retry.StoreWriteRetryConfig(), func() error {
		return w.SetStatus(ctx, threadID, status)
	}, func(err error) bool {
		return !errors.Is(err, ErrNotFound)
	})
	return result.LastError
}
