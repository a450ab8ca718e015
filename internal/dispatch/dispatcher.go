package dispatch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/guestdesk/internal/retry"
	"github.com/guestdesk/pkg/models"
)

// Dispatcher publishes recorded replies to the outbound channel
type Dispatcher struct {
	publisher  Publisher
	routingKey string
	retry      retry.RetryConfig
}

func NewDispatcher(publisher Publisher, routingKey string) *Dispatcher {
	return &Dispatcher{publisher: publisher, routingKey: routingKey, retry: retry.PublishRetryConfig()}
}

// DispatchReply publishes l, retrying transient broker errors
func (d *Dispatcher) DispatchReply(ctx context.Context, l *models.SendLog) error {
	env := NewReplyEnvelope(l)
	result := retry.RetryWithBackoff(ctx, "publish_reply", d.retry, func() error {
		return d.publisher.Publish(ctx, d.routingKey, env)
	}, retry.IsRetryableError)
	if !result.Success {
		return fmt.Errorf("publish reply %s: %w", l.ID, result.LastError)
	}
	log.Info().
		Str("thread_id", l.ThreadID).
		Str("message_id", l.MessageID).
		Str("send_log_id", l.ID).
		Int("attempts", result.Attempts).
		Msg("Reply dispatched")
	return nil
}
