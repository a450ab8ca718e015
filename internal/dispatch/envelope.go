package dispatch

import (
	"time"

	"github.com/google/uuid"

	"github.com/guestdesk/pkg/models"
)

const (
	Producer            = "guestdesk"
	TypeReplyDispatched = "guestdesk.reply.dispatched.v1"
)

// Meta identifies one published event
type Meta struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Producer      string    `json:"producer,omitempty"`
	Time          time.Time `json:"time"`
	Type          string    `json:"type"`
}

type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// Reply is the payload consumed by the channel integration that delivers the
// text to the guest
type Reply struct {
	SendLogID    string `json:"send_log_id"`
	MessageID    string `json:"message_id"`
	ThreadID     string `json:"thread_id"`
	ApprovalID   string `json:"approval_id,omitempty"`
	Channel      string `json:"channel"`
	Text         string `json:"text"`
	SentByUserID string `json:"sent_by_user_id"`
}

// NewReplyEnvelope wraps a send log. The send log id doubles as the
// correlation id so consumers can deduplicate redeliveries.
func NewReplyEnvelope(l *models.SendLog) Envelope {
	return Envelope{
		Meta: Meta{
			ID:            uuid.NewString(),
			CorrelationID: l.ID,
			Producer:      Producer,
			Time:          time.Now().UTC(),
			Type:          TypeReplyDispatched,
		},
		Data: Reply{
			SendLogID:    l.ID,
			MessageID:    l.MessageID,
			ThreadID:     l.ThreadID,
			ApprovalID:   l.ApprovalID,
			Channel:      l.Channel,
			Text:         l.FinalReply,
			SentByUserID: l.SentByUserID,
		},
	}
}
