/*
Package jobqueue runs the background work that follows a guest message: the
classify_message job (classify, save the analysis, evaluate auto-rules) and
the dispatch_reply job (publish an approved reply).

# Queues

  - classify: one job per guest message, unique by message id. Model latency
    dominates, so this queue gets the bulk of the workers.
  - dispatch: one job per recorded send log, unique by send log id. The
    redispatch_replies periodic job runs here too and requeues send logs
    that were never marked dispatched, e.g. because the insert after the
    decision commit failed.

# Tuning

  - Raise MaxWorkers for throughput; every worker may hold a pool connection.
  - ClassifyTimeout bounds a whole classify job, model call included.
  - MaxAttempts applies to both job kinds; a degraded classification is not
    an error and is never retried.
*/
package jobqueue

import (
	"time"

	"github.com/riverqueue/river"

	"github.com/guestdesk/internal/config"
)

const (
	QueueClassify = "classify"
	QueueDispatch = "dispatch"
)

// QueueConfig holds the tunable parameters for the job queue
type QueueConfig struct {
	MaxWorkers         int           // concurrent classify workers (default: 10)
	MaxAttempts        int           // attempts per job before it is discarded (default: 5)
	ClassifyTimeout    time.Duration // maximum run time of one classify job (default: 45s)
	DispatchTimeout    time.Duration // maximum run time of one dispatch job (default: 30s)
	RedispatchInterval time.Duration // how often undispatched send logs are swept (default: 1m)
	RedispatchGrace    time.Duration // age a send log must reach before the sweep requeues it (default: 2m)
	RedispatchBatch    int           // send logs requeued per sweep (default: 100)
}

// DefaultQueueConfig returns the default configuration
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxWorkers:         10,
		MaxAttempts:        5,
		ClassifyTimeout:    45 * time.Second,
		DispatchTimeout:    30 * time.Second,
		RedispatchInterval: time.Minute,
		RedispatchGrace:    2 * time.Minute,
		RedispatchBatch:    100,
	}
}

// QueueConfigFrom overlays the [queue] section of the application config
func QueueConfigFrom(cfg *config.Config) *QueueConfig {
	c := DefaultQueueConfig()
	q := cfg.Queue
	if q.MaxWorkers > 0 {
		c.MaxWorkers = q.MaxWorkers
	}
	if q.MaxAttempts > 0 {
		c.MaxAttempts = q.MaxAttempts
	}
	if q.ClassifyTimeout > 0 {
		c.ClassifyTimeout = q.ClassifyTimeout
	}
	return c
}

// RiverQueueConfig converts our config to River's queue configuration format
func (c *QueueConfig) RiverQueueConfig() map[string]river.QueueConfig {
	dispatchWorkers := c.MaxWorkers / 2
	if dispatchWorkers < 1 {
		dispatchWorkers = 1
	}
	return map[string]river.QueueConfig{
		QueueClassify: {MaxWorkers: c.MaxWorkers},
		QueueDispatch: {MaxWorkers: dispatchWorkers},
	}
}
