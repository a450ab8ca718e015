package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/guestdesk/internal/retry"
)

// ErrNacked is returned when the broker refuses a published message
var ErrNacked = errors.New("broker did not confirm publish")

type Publisher interface {
	Publish(ctx context.Context, key string, env Envelope) error
	Close() error
}

// AMQPPublisher publishes envelopes to a durable topic exchange and waits for
// the broker confirm of every message.
type AMQPPublisher struct {
	mu       sync.Mutex
	url      string
	conn     *amqp.Connection
	exchange string
}

// NewAMQPPublisher dials url with backoff and declares the exchange
func NewAMQPPublisher(ctx context.Context, url, exchange string) (*AMQPPublisher, error) {
	p := &AMQPPublisher{url: url, exchange: exchange}
	if err := p.connect(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) connect(ctx context.Context) error {
	var conn *amqp.Connection
	result := retry.RetryWithBackoff(ctx, "amqp_dial", retry.DefaultRetryConfig(), func() error {
		var err error
		conn, err = amqp.Dial(p.url)
		return err
	}, nil)
	if !result.Success {
		return fmt.Errorf("dial broker after %d attempts: %w", result.Attempts, result.LastError)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}

	p.conn = conn
	return nil
}

func (p *AMQPPublisher) channel(ctx context.Context) (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil || p.conn.IsClosed() {
		log.Warn().Str("exchange", p.exchange).Msg("Broker connection closed, reconnecting")
		if err := p.connect(ctx); err != nil {
			return nil, err
		}
	}
	return p.conn.Channel()
}

func (p *AMQPPublisher) Publish(ctx context.Context, key string, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("confirm mode: %w", err)
	}
	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	correlationID := env.Meta.CorrelationID
	if correlationID == "" {
		correlationID = env.Meta.ID
	}
	err = ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.Meta.ID,
		CorrelationId: correlationID,
		Type:          env.Meta.Type,
		Timestamp:     env.Meta.Time,
		AppId:         env.Meta.Producer,
		Body:          body,
	})
	if err != nil {
		return err
	}

	select {
	case confirm, ok := <-confirms:
		if !ok || !confirm.Ack {
			return ErrNacked
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	log.Debug().Str("exchange", p.exchange).Str("key", key).Str("event_id", env.Meta.ID).Msg("Published event")
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

// LogPublisher only logs envelopes. Used when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, key string, env Envelope) error {
	log.Info().
		Str("key", key).
		Str("event_id", env.Meta.ID).
		Str("type", env.Meta.Type).
		Interface("data", env.Data).
		Msg("Reply dispatched (broker disabled)")
	return nil
}

func (LogPublisher) Close() error { return nil }
