package threads

import (
	"context"
	"fmt"
	"strings"

	"github.com/guestdesk/internal/logging"
	"github.com/guestdesk/pkg/models"
)

// Enqueuer hands a guest message to background classification
type Enqueuer interface {
	EnqueueClassification(ctx context.Context, messageID, threadID string) error
}

// Intake persists inbound messages and schedules their classification
type Intake struct {
	store     Store
	projector *Projector
	enqueuer  Enqueuer
}

func NewIntake(store Store, enqueuer Enqueuer) *Intake {
	return &Intake{store: store, projector: NewProjector(store), enqueuer: enqueuer}
}

// Receive stores a message on threadID. Guest messages are queued for
// classification; an enqueue failure is logged and does not fail the write.
func (i *Intake) Receive(ctx context.Context, threadID string, sender models.SenderType, text string) (*models.Message, error) {
	if sender != models.SenderGuest && sender != models.SenderStaff {
		return nil, fmt.Errorf("%w: unknown sender type %q", ErrInvalidMessage, sender)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is required", ErrInvalidMessage)
	}

	if _, err := i.store.GetThread(ctx, threadID); err != nil {
		return nil, err
	}

	msg := &models.Message{ThreadID: threadID, SenderType: sender, Text: text}
	if err := i.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	logger := logging.ForThread(threadID, msg.ID)

	if err := i.projector.MessageArrived(ctx, threadID, msg.ReceivedAt); err != nil {
		logger.Warn().Err(err).Msg("Failed to bump lastReceivedAt")
	}

	if sender == models.SenderGuest && i.enqueuer != nil {
		if err := i.enqueuer.EnqueueClassification(ctx, msg.ID, threadID); err != nil {
			logger.Error().Err(err).Msg("Failed to enqueue classification")
		}
	}

	return msg, nil
}
