package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/zerolog/log"

	"github.com/guestdesk/internal/audit"
	"github.com/guestdesk/internal/logging"
	"github.com/guestdesk/internal/threads"
	"github.com/guestdesk/pkg/models"
)

// ClassifyMessageJobArgs represents the arguments for a classification job
type ClassifyMessageJobArgs struct {
	MessageID string `json:"message_id"`
	ThreadID  string `json:"thread_id"`
}

// Kind returns the job kind for River
func (ClassifyMessageJobArgs) Kind() string {
	return "classify_message"
}

// DispatchReplyJobArgs carries a recorded send log to the outbound channel.
// Jobs are unique per send log, so a log queued again by the redispatch sweep
// while its first job is still around is not published twice.
type DispatchReplyJobArgs struct {
	SendLogID string         `json:"send_log_id" river:"unique"`
	SendLog   models.SendLog `json:"send_log"`
}

// Kind returns the job kind for River
func (DispatchReplyJobArgs) Kind() string {
	return "dispatch_reply"
}

// RedispatchRepliesJobArgs is the periodic sweep over undispatched send logs
type RedispatchRepliesJobArgs struct{}

// Kind returns the job kind for River
func (RedispatchRepliesJobArgs) Kind() string {
	return "redispatch_replies"
}

// ReplyPublisher is implemented by dispatch.Dispatcher
type ReplyPublisher interface {
	DispatchReply(ctx context.Context, l *models.SendLog) error
}

// ReplyEnqueuer is implemented by JobQueue
type ReplyEnqueuer interface {
	DispatchReply(ctx context.Context, l *models.SendLog) error
}

// ClassifyMessageWorker handles classification jobs
type ClassifyMessageWorker struct {
	river.WorkerDefaults[ClassifyMessageJobArgs]
	processor *ClassifyProcessor
	timeout   time.Duration
}

func (w *ClassifyMessageWorker) Timeout(*river.Job[ClassifyMessageJobArgs]) time.Duration {
	return w.timeout
}

// Work classifies the message. A message that no longer exists cancels the
// job instead of retrying it.
func (w *ClassifyMessageWorker) Work(ctx context.Context, job *river.Job[ClassifyMessageJobArgs]) error {
	logger := logging.ForThread(job.Args.ThreadID, job.Args.MessageID).With().Int("attempt", job.Attempt).Logger()

	outcome, err := w.processor.Process(ctx, job.Args.MessageID)
	if err != nil {
		if errors.Is(err, threads.ErrNotFound) {
			logger.Warn().Err(err).Msg("Message vanished before classification")
			return river.JobCancel(err)
		}
		logger.Error().Err(err).Msg("Classification job failed")
		return err
	}
	if outcome.Skipped != "" {
		logger.Debug().Str("reason", outcome.Skipped).Msg("Classification skipped")
	}
	return nil
}

// DispatchReplyWorker handles reply dispatch jobs
type DispatchReplyWorker struct {
	river.WorkerDefaults[DispatchReplyJobArgs]
	publisher ReplyPublisher
	outbox    audit.Outbox
	timeout   time.Duration
}

func (w *DispatchReplyWorker) Timeout(*river.Job[DispatchReplyJobArgs]) time.Duration {
	return w.timeout
}

// Work publishes the reply and marks its send log dispatched. A failed mark is
// only logged: returning it would publish the reply again on retry.
func (w *DispatchReplyWorker) Work(ctx context.Context, job *river.Job[DispatchReplyJobArgs]) error {
	l := job.Args.SendLog
	if err := w.publisher.DispatchReply(ctx, &l); err != nil {
		return err
	}
	if w.outbox == nil {
		return nil
	}
	if err := w.outbox.MarkDispatched(ctx, l.ID, time.Now()); err != nil {
		logger := logging.ForThread(l.ThreadID, l.MessageID)
		logger.Error().Err(err).Str("send_log_id", l.ID).Msg("Reply published but not marked dispatched")
	}
	return nil
}

// RedispatchRepliesWorker queues a dispatch job for every send log that has
// been waiting longer than grace without being marked dispatched.
type RedispatchRepliesWorker struct {
	river.WorkerDefaults[RedispatchRepliesJobArgs]
	outbox audit.Outbox
	queue  ReplyEnqueuer
	grace  time.Duration
	batch  int
	now    func() time.Time
}

func (w *RedispatchRepliesWorker) Work(ctx context.Context, job *river.Job[RedispatchRepliesJobArgs]) error {
	pending, err := w.outbox.Undispatched(ctx, w.now().Add(-w.grace), w.batch)
	if err != nil {
		return fmt.Errorf("list undispatched replies: %w", err)
	}

	var errs []error
	for _, l := range pending {
		if err := w.queue.DispatchReply(ctx, l); err != nil {
			errs = append(errs, err)
			continue
		}
		logger := logging.ForThread(l.ThreadID, l.MessageID)
		logger.Warn().Str("send_log_id", l.ID).Time("created_at", l.CreatedAt).Msg("Requeued undispatched reply")
	}
	return errors.Join(errs...)
}

// Workers are the job handlers. A JobQueue built without them can only insert.
// With an Outbox the dispatch worker marks send logs and a periodic sweep
// requeues the ones whose dispatch job was never inserted.
type Workers struct {
	Classify *ClassifyProcessor
	Dispatch ReplyPublisher
	Outbox   audit.Outbox
}

// JobQueue manages the River job queue
type JobQueue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
	config *QueueConfig
	work   bool
}

// NewJobQueue creates a River client on pool. With nil workers the client is
// insert-only, which is what the API process uses when workers run elsewhere.
func NewJobQueue(pool *pgxpool.Pool, config *QueueConfig, workers *Workers) (*JobQueue, error) {
	if config == nil {
		config = DefaultQueueConfig()
	}

	jq := &JobQueue{
		pool:   pool,
		config: config,
		work:   workers != nil,
	}

	riverConfig := &river.Config{}
	if workers != nil {
		if workers.Classify == nil || workers.Dispatch == nil {
			return nil, errors.New("jobqueue: classify and dispatch workers are both required")
		}
		w := river.NewWorkers()
		river.AddWorker(w, &ClassifyMessageWorker{processor: workers.Classify, timeout: config.ClassifyTimeout})
		river.AddWorker(w, &DispatchReplyWorker{publisher: workers.Dispatch, outbox: workers.Outbox, timeout: config.DispatchTimeout})
		if workers.Outbox != nil {
			river.AddWorker(w, &RedispatchRepliesWorker{
				outbox: workers.Outbox,
				queue:  jq,
				grace:  config.RedispatchGrace,
				batch:  config.RedispatchBatch,
				now:    time.Now,
			})
			riverConfig.PeriodicJobs = []*river.PeriodicJob{
				river.NewPeriodicJob(
					river.PeriodicInterval(config.RedispatchInterval),
					func() (river.JobArgs, *river.InsertOpts) {
						return RedispatchRepliesJobArgs{}, &river.InsertOpts{Queue: QueueDispatch, MaxAttempts: 1}
					},
					nil,
				),
			}
		}
		riverConfig.Queues = config.RiverQueueConfig()
		riverConfig.Workers = w
	}

	client, err := river.NewClient(riverpgxv5.New(pool), riverConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}
	jq.client = client
	return jq, nil
}

// Start starts the job queue workers; a no-op for insert-only queues
func (jq *JobQueue) Start(ctx context.Context) error {
	if !jq.work {
		return nil
	}
	return jq.client.Start(ctx)
}

// Stop stops the job queue workers
func (jq *JobQueue) Stop(ctx context.Context) error {
	if !jq.work {
		return nil
	}
	return jq.client.Stop(ctx)
}

// EnqueueClassification queues a classification job. Jobs are unique per
// message so a message is never classified twice.
func (jq *JobQueue) EnqueueClassification(ctx context.Context, messageID, threadID string) error {
	_, err := jq.client.Insert(ctx, ClassifyMessageJobArgs{MessageID: messageID, ThreadID: threadID}, &river.InsertOpts{
		Queue:       QueueClassify,
		MaxAttempts: jq.config.MaxAttempts,
		UniqueOpts:  river.UniqueOpts{ByArgs: true},
	})
	if err != nil {
		return fmt.Errorf("failed to queue classification job: %w", err)
	}
	return nil
}

// DispatchReply queues a dispatch job for l, at most one per send log
func (jq *JobQueue) DispatchReply(ctx context.Context, l *models.SendLog) error {
	_, err := jq.client.Insert(ctx, DispatchReplyJobArgs{SendLogID: l.ID, SendLog: *l}, &river.InsertOpts{
		Queue:       QueueDispatch,
		MaxAttempts: jq.config.MaxAttempts,
		UniqueOpts:  river.UniqueOpts{ByArgs: true},
	})
	if err != nil {
		return fmt.Errorf("failed to queue dispatch job: %w", err)
	}
	return nil
}

// Migrate applies River's own schema migrations
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("river migrate: %w", err)
	}
	for _, v := range res.Versions {
		log.Info().Int("version", v.Version).Msg("Applied river migration")
	}
	return nil
}
