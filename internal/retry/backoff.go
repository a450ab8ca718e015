package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/lib/pq"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// Reasons recorded for each failed attempt
const (
	ReasonSerialization = "serialization_failure"
	ReasonDeadlock      = "deadlock"
	ReasonConnection    = "connection"
	ReasonBroker        = "broker"
	ReasonTimeout       = "timeout"
	ReasonThrottled     = "throttled"
	ReasonOther         = "other"
)

// RetryConfig configures retry behavior with exponential backoff
type RetryConfig struct {
	MaxRetries int           `json:"max_retries"`
	BaseDelay  time.Duration `json:"base_delay"`
	MaxDelay   time.Duration `json:"max_delay"`
	Multiplier float64       `json:"multiplier"`
	Jitter     bool          `json:"jitter"` // up to 10% either way
	LogRetries bool          `json:"log_retries"`
}

// RetryResult contains information about the retry operation
type RetryResult struct {
	Attempts      int           `json:"attempts"`
	TotalDuration time.Duration `json:"total_duration"`
	LastError     error         `json:"-"`
	Success       bool          `json:"success"`
	RetryReasons  []string      `json:"retry_reasons"`
}

// DefaultRetryConfig is used for connection setup, e.g. dialing the broker
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
		LogRetries: true,
	}
}

// StoreWriteRetryConfig is used for short transactional writes such as the
// approval transition, where a transient database error should be retried quickly.
func StoreWriteRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 5,
		BaseDelay:  50 * time.Millisecond,
		MaxDelay:   2 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
		LogRetries: true,
	}
}

// PublishRetryConfig is used when handing an approved reply to the broker
func PublishRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.5,
		Jitter:     true,
		LogRetries: true,
	}
}

// RetryWithBackoff runs operation until it succeeds, shouldRetry refuses the
// error, the attempts run out or ctx is done. A nil shouldRetry retries everything.
// Each failure is recorded in RetryReasons as one of the Reason constants.
func RetryWithBackoff(ctx context.Context, op string, config RetryConfig, operation func() error, shouldRetry func(error) bool) RetryResult {
	startTime := time.Now()
	result := RetryResult{RetryReasons: make([]string, 0)}

	finish := func() RetryResult {
		result.TotalDuration = time.Since(startTime)
		return result
	}

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result.Attempts = attempt + 1

		err := operation()
		if err == nil {
			result.Success = true
			result.LastError = nil
			if config.LogRetries && attempt > 0 {
				log.Info().Str("op", op).Int("retries", attempt).Dur("duration", time.Since(startTime)).Msg("operation succeeded after retry")
			}
			return finish()
		}

		result.LastError = err
		result.RetryReasons = append(result.RetryReasons, Reason(err))

		if attempt >= config.MaxRetries || (shouldRetry != nil && !shouldRetry(err)) {
			if config.LogRetries {
				log.Warn().Err(err).Str("op", op).Int("attempts", result.Attempts).Strs("reasons", result.RetryReasons).Msg("operation failed")
			}
			return finish()
		}

		delay := calculateDelay(config, attempt)
		if config.LogRetries {
			log.Debug().Err(err).Str("op", op).Int("attempt", attempt+1).Dur("delay", delay).Msg("retrying operation")
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			result.LastError = ctx.Err()
			return finish()
		case <-timer.C:
		}
	}

	return finish()
}

// calculateDelay calculates the delay for the next retry attempt using exponential backoff
func calculateDelay(config RetryConfig, attempt int) time.Duration {
	delay := float64(config.BaseDelay) * math.Pow(config.Multiplier, float64(attempt))

	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	if config.Jitter {
		jitterRange := delay * 0.1
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
		if delay < 0 {
			delay = float64(config.BaseDelay)
		}
	}

	return time.Duration(delay)
}

// Reason classifies err for logging and retry decisions
func Reason(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "40001":
			return ReasonSerialization
		case pqErr.Code == "40P01":
			return ReasonDeadlock
		case pqErr.Code.Class() == "08", pqErr.Code == "57P01", pqErr.Code == "53300":
			return ReasonConnection
		}
		return ReasonOther
	}

	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		if amqpErr.Recover || amqpErr.Code == amqp.ChannelError || amqpErr.Code == amqp.ConnectionForced {
			return ReasonBroker
		}
		return ReasonOther
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ReasonConnection
	}

	return reasonFromText(err.Error())
}

// reasonFromText covers drivers and clients that only surface a message
func reasonFromText(msg string) string {
	msg = strings.ToLower(msg)
	for _, m := range []struct {
		needle string
		reason string
	}{
		{"could not serialize access", ReasonSerialization},
		{"deadlock detected", ReasonDeadlock},
		{"connection refused", ReasonConnection},
		{"connection reset", ReasonConnection},
		{"broken pipe", ReasonConnection},
		{"no such host", ReasonConnection},
		{"network unreachable", ReasonConnection},
		{"channel/connection is not open", ReasonBroker},
		{"timeout", ReasonTimeout},
		{"temporary failure", ReasonTimeout},
		{"service unavailable", ReasonThrottled},
		{"too many requests", ReasonThrottled},
		{"rate limit", ReasonThrottled},
		{"429", ReasonThrottled},
		{"502", ReasonThrottled},
		{"503", ReasonThrottled},
		{"504", ReasonThrottled},
	} {
		if strings.Contains(msg, m.needle) {
			return m.reason
		}
	}
	return ReasonOther
}

// IsRetryableError reports whether err is transient. Cancellation and
// deadline errors from the caller's own context are never retried.
func IsRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return Reason(err) != ReasonOther
}
