package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guestdesk/pkg/models"
)

type recordingPublisher struct {
	failures []error
	keys     []string
	sent     []Envelope
}

func (p *recordingPublisher) Publish(_ context.Context, key string, env Envelope) error {
	if len(p.failures) > 0 {
		err := p.failures[0]
		p.failures = p.failures[1:]
		return err
	}
	p.keys = append(p.keys, key)
	p.sent = append(p.sent, env)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func sendLog() *models.SendLog {
	return &models.SendLog{
		ID:           "sl-1",
		MessageID:    "m1",
		ThreadID:     "t1",
		ApprovalID:   "a1",
		FinalReply:   "See you at 3pm",
		Channel:      "pms",
		SentByUserID: "u1",
	}
}

func fastDispatcher(p Publisher) *Dispatcher {
	d := NewDispatcher(p, "reply.dispatch")
	d.retry.BaseDelay = 0
	d.retry.Jitter = false
	return d
}

func TestNewReplyEnvelope(t *testing.T) {
	env := NewReplyEnvelope(sendLog())

	assert.NotEmpty(t, env.Meta.ID)
	assert.Equal(t, "sl-1", env.Meta.CorrelationID)
	assert.Equal(t, TypeReplyDispatched, env.Meta.Type)
	assert.Equal(t, Producer, env.Meta.Producer)
	assert.Equal(t, Reply{
		SendLogID:    "sl-1",
		MessageID:    "m1",
		ThreadID:     "t1",
		ApprovalID:   "a1",
		Channel:      "pms",
		Text:         "See you at 3pm",
		SentByUserID: "u1",
	}, env.Data)
}

func TestDispatchReply(t *testing.T) {
	p := &recordingPublisher{}

	require.NoError(t, fastDispatcher(p).DispatchReply(context.Background(), sendLog()))

	require.Len(t, p.sent, 1)
	assert.Equal(t, []string{"reply.dispatch"}, p.keys)
}

func TestDispatchReply_RetriesTransientErrors(t *testing.T) {
	p := &recordingPublisher{failures: []error{errors.New("Exception (504) Reason: \"channel/connection is not open\"")}}

	require.NoError(t, fastDispatcher(p).DispatchReply(context.Background(), sendLog()))
	assert.Len(t, p.sent, 1)
}

func TestDispatchReply_StopsOnPermanentError(t *testing.T) {
	p := &recordingPublisher{failures: []error{ErrNacked, nil}}

	err := fastDispatcher(p).DispatchReply(context.Background(), sendLog())
	assert.ErrorIs(t, err, ErrNacked)
	assert.Empty(t, p.sent)
}

func TestLogPublisher(t *testing.T) {
	var p Publisher = LogPublisher{}
	assert.NoError(t, p.Publish(context.Background(), "reply.dispatch", NewReplyEnvelope(sendLog())))
	assert.NoError(t, p.Close())
}
