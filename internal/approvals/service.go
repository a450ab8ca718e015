package approvals

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/guestdesk/internal/audit"
	"github.com/guestdesk/internal/retry"
	"github.com/guestdesk/internal/threads"
	"github.com/guestdesk/pkg/models"
)

const maxListLimit = 100

type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// ParseAction accepts approve or reject in any case
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionApprove, ActionReject:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

func (a Action) target() models.ApprovalStatus {
	if a == ActionApprove {
		return models.ApprovalApproved
	}
	return models.ApprovalRejected
}

func (a Action) auditAction() string {
	if a == ActionApprove {
		return audit.ActionMessageApprovedAndSent
	}
	return audit.ActionMessageRejected
}

// MessageLookup resolves the message an approval gates and its classification
type MessageLookup interface {
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	GetAnalysis(ctx context.Context, messageID string) (*models.Analysis, error)
}

// ReplyDispatcher hands a recorded reply to the outbound channel
type ReplyDispatcher interface {
	DispatchReply(ctx context.Context, l *models.SendLog) error
}

type DecideRequest struct {
	ApprovalID string
	Action     Action
	ReviewerID string
	Notes      string
	FinalReply string
}

type BulkRequest struct {
	MessageIDs []string
	Action     Action
	ReviewerID string
	Reason     string
}

type BulkResult struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
}

// Service is the approval state machine. Every decision moves an approval
// out of pending exactly once and mirrors the outcome onto its thread.
type Service struct {
	store      Store
	messages   MessageLookup
	dispatcher ReplyDispatcher
	retry      retry.RetryConfig
}

func NewService(store Store, messages MessageLookup, dispatcher ReplyDispatcher) *Service {
	return &Service{
		store:      store,
		messages:   messages,
		dispatcher: dispatcher,
		retry:      retry.StoreWriteRetryConfig(),
	}
}

// CreatePending stores a, forcing it to pending. Used by the rule engine.
func (s *Service) CreatePending(ctx context.Context, a *models.ApprovalRequest) error {
	a.Status = models.ApprovalPending
	a.ReviewerID = ""
	return s.store.Create(ctx, a)
}

// Create escalates a guest message for review by hand. A message that
// already has a pending approval is a conflict.
func (s *Service) Create(ctx context.Context, messageID, notes string) (*models.ApprovalRequest, error) {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	existing, err := s.store.PendingForMessages(ctx, []string{messageID})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, ErrConflict
	}
	a := &models.ApprovalRequest{MessageID: msg.ID, ThreadID: msg.ThreadID, Notes: notes}
	if err := s.CreatePending(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	return s.store.Get(ctx, id)
}

// List returns approvals newest first; status defaults to pending
func (s *Service) List(ctx context.Context, f ListFilter) ([]*models.ApprovalRequest, error) {
	if f.Status == "" {
		f.Status = models.ApprovalPending
	}
	if f.Limit <= 0 || f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	return s.store.List(ctx, f)
}

// Decide applies one reviewer decision. Validation runs before anything is
// written; a decision on an approval that is no longer pending is ErrConflict.
func (s *Service) Decide(ctx context.Context, req DecideRequest) (*models.ApprovalRequest, error) {
	action, err := ParseAction(string(req.Action))
	if err != nil {
		return nil, err
	}
	req.Action = action

	a, err := s.store.Get(ctx, req.ApprovalID)
	if err != nil {
		return nil, err
	}
	if a.Status != models.ApprovalPending {
		return nil, ErrConflict
	}

	reply := ""
	if req.Action == ActionApprove {
		if reply, err = s.resolveReply(ctx, a.MessageID, req.FinalReply); err != nil {
			return nil, err
		}
	}

	t := s.buildTransition(a, req.Action, req.ReviewerID, req.Notes, reply)
	t.Audit.Meta["notes"] = req.Notes

	updated, err := s.apply(ctx, t)
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, t.SendLog)
	return updated, nil
}

// BulkDecide applies action to the pending approvals of every listed message.
// Items that are not pending, lose a race or have no resolvable reply are
// skipped; only the transitioned count is reported. One summary audit entry
// is written for the batch.
func (s *Service) BulkDecide(ctx context.Context, req BulkRequest) (BulkResult, error) {
	var result BulkResult
	action, err := ParseAction(string(req.Action))
	if err != nil {
		return result, err
	}
	req.Action = action
	if len(req.MessageIDs) == 0 {
		return result, fmt.Errorf("%w: messageIds required", ErrInvalidAction)
	}

	pending, err := s.store.PendingForMessages(ctx, req.MessageIDs)
	if err != nil {
		return result, err
	}

	for _, a := range pending {
		logger := log.With().Str("approval_id", a.ID).Str("message_id", a.MessageID).Str("action", string(req.Action)).Logger()

		reply := ""
		if req.Action == ActionApprove {
			if reply, err = s.resolveReply(ctx, a.MessageID, ""); err != nil {
				logger.Debug().Err(err).Msg("Skipping bulk item without reply")
				result.Skipped++
				continue
			}
		}

		t := s.buildTransition(a, req.Action, req.ReviewerID, req.Reason, reply)
		t.Audit.Meta["bulk"] = true
		t.Audit.Meta["reason"] = req.Reason

		if _, err := s.apply(ctx, t); err != nil {
			if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrNotFound) {
				logger.Error().Err(err).Msg("Bulk decision failed")
			}
			result.Skipped++
			continue
		}
		s.dispatch(ctx, t.SendLog)
		result.Processed++
	}

	bulkAction := audit.ActionBulkReject
	verb := "Rejected"
	if req.Action == ActionApprove {
		bulkAction = audit.ActionBulkApprove
		verb = "Approved"
	}
	entry := &models.AuditLog{
		ActorUserID: req.ReviewerID,
		Action:      bulkAction,
		EntityType:  audit.EntityApproval,
		EntityID:    strings.Join(req.MessageIDs, ","),
		Meta: map[string]interface{}{
			"description": fmt.Sprintf("%s %d messages", verb, result.Processed),
			"count":       result.Processed,
			"reason":      req.Reason,
		},
	}
	if err := s.store.RecordAudit(ctx, entry); err != nil {
		log.Error().Err(err).Str("action", bulkAction).Msg("Failed to record bulk audit entry")
	}

	return result, nil
}

// SendDirect records an operator reply to a message without an approval.
// Threads already sent or declined refuse the reply with ErrThreadClosed.
func (s *Service) SendDirect(ctx context.Context, messageID, reply, userID string) (*models.SendLog, error) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return nil, ErrReplyRequired
	}
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	sendLog := &models.SendLog{
		MessageID:    msg.ID,
		ThreadID:     msg.ThreadID,
		FinalReply:   reply,
		Channel:      audit.ChannelPMS,
		SentByUserID: userID,
	}
	entry := &models.AuditLog{
		ActorUserID: userID,
		Action:      audit.ActionMessageSent,
		EntityType:  audit.EntityMessage,
		EntityID:    msg.ID,
		Meta:        map[string]interface{}{"threadId": msg.ThreadID, "channel": audit.ChannelPMS},
	}
	if err := s.store.RecordDirectSend(ctx, DirectSend{ThreadID: msg.ThreadID, SendLog: sendLog, Audit: entry}); err != nil {
		return nil, err
	}
	s.dispatch(ctx, sendLog)
	return sendLog, nil
}

// resolveReply prefers the reviewer's text and falls back to the suggested reply
func (s *Service) resolveReply(ctx context.Context, messageID, finalReply string) (string, error) {
	if reply := strings.TrimSpace(finalReply); reply != "" {
		return reply, nil
	}
	analysis, err := s.messages.GetAnalysis(ctx, messageID)
	if err != nil && !errors.Is(err, threads.ErrNotFound) {
		return "", err
	}
	if analysis == nil || strings.TrimSpace(analysis.SuggestedReply) == "" {
		return "", ErrReplyRequired
	}
	return strings.TrimSpace(analysis.SuggestedReply), nil
}

func (s *Service) buildTransition(a *models.ApprovalRequest, action Action, reviewerID, notes, reply string) Transition {
	t := Transition{
		ApprovalID: a.ID,
		To:         action.target(),
		ReviewerID: reviewerID,
		Notes:      notes,
		ThreadID:   a.ThreadID,
		Audit: &models.AuditLog{
			ActorUserID: reviewerID,
			Action:      action.auditAction(),
			EntityType:  audit.EntityMessage,
			EntityID:    a.MessageID,
			Meta:        map[string]interface{}{"approvalId": a.ID, "threadId": a.ThreadID},
		},
	}
	if action == ActionApprove {
		t.SendLog = &models.SendLog{
			MessageID:    a.MessageID,
			ThreadID:     a.ThreadID,
			FinalReply:   reply,
			Channel:      audit.ChannelPMS,
			SentByUserID: reviewerID,
			ApprovalID:   a.ID,
		}
	}
	return t
}

// apply runs the transition, retrying transient store errors. A conflict seen
// after a retry may be our own earlier attempt that committed before its
// acknowledgement was lost, so it is resolved by re-reading the approval.
func (s *Service) apply(ctx context.Context, t Transition) (*models.ApprovalRequest, error) {
	var updated *models.ApprovalRequest
	result := retry.RetryWithBackoff(ctx, "approval_transition", s.retry, func() error {
		var err error
		updated, err = s.store.Transition(ctx, t)
		return err
	}, func(err error) bool {
		if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
			return false
		}
		return retry.IsRetryableError(err)
	})

	if result.Success {
		return updated, nil
	}
	if errors.Is(result.LastError, ErrConflict) && result.Attempts > 1 {
		current, err := s.store.Get(ctx, t.ApprovalID)
		if err == nil && current.Status == t.To && current.ReviewerID == t.ReviewerID {
			return current, nil
		}
	}
	return nil, result.LastError
}

// dispatch queues the reply after the decision commits. A failed insert leaves
// the send log undispatched, and the redispatch sweep queues it later.
func (s *Service) dispatch(ctx context.Context, l *models.SendLog) {
	if l == nil || s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.DispatchReply(ctx, l); err != nil {
		log.Error().Err(err).
			Str("thread_id", l.ThreadID).
			Str("message_id", l.MessageID).
			Str("send_log_id", l.ID).
			Msg("Failed to queue reply, leaving it for redispatch")
	}
}
