package cmd

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/guestdesk/internal/api"
	"github.com/guestdesk/internal/api/auth"
	"github.com/guestdesk/internal/approvals"
	"github.com/guestdesk/internal/audit"
	"github.com/guestdesk/internal/cache"
	"github.com/guestdesk/internal/classify"
	"github.com/guestdesk/internal/config"
	"github.com/guestdesk/internal/database"
	"github.com/guestdesk/internal/dispatch"
	"github.com/guestdesk/internal/jobqueue"
	"github.com/guestdesk/internal/kb"
	"github.com/guestdesk/internal/llm"
	"github.com/guestdesk/internal/logging"
	"github.com/guestdesk/internal/rules"
	"github.com/guestdesk/internal/threads"
)

// loadConfig reads the --config file, validates it and sets up logging
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Pretty)
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// app holds every long-lived dependency of a running process
type app struct {
	db        *sql.DB
	pool      *pgxpool.Pool
	cache     cache.Cache
	publisher dispatch.Publisher
	queue     *jobqueue.JobQueue

	threads   *threads.PostgresStore
	rules     *rules.Service
	approvals *approvals.Service
	records   *audit.PostgresStore
	kb        *kb.Service
}

// buildApp wires the stores and services. With workers the process also
// consumes classification and dispatch jobs; without them it only inserts.
func buildApp(ctx context.Context, cfg *config.Config, withWorkers bool) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	var err error
	if a.db, err = database.NewDB(ctx, cfg.Database.URL, cfg.Database.MaxConns); err != nil {
		return nil, err
	}
	if a.pool, err = database.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns); err != nil {
		return nil, err
	}

	// Rule writes must reach every process, so rules are only cached in Redis.
	if cfg.Cache.RedisURL != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return nil, err
		}
		a.cache = rc
	}

	a.threads = threads.NewPostgresStore(a.db)
	a.records = audit.NewPostgresStore(a.db)
	ruleStore := rules.WithCache(rules.NewPostgresStore(a.db), a.cache, cfg.Cache.RuleTTL)
	approvalStore := approvals.NewPostgresStore(a.db)
	kbService := kb.NewService(kb.NewPostgresStore(a.db))
	a.rules = rules.NewService(ruleStore)
	a.kb = kbService

	var workers *jobqueue.Workers
	if withWorkers {
		connector, err := llm.NewConnector(ctx, llm.ConnectorOptions{
			Provider:    llm.Provider(cfg.AI.Provider),
			APIKey:      cfg.AI.APIKey,
			BaseURL:     cfg.AI.BaseURL,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			JSONMode:    true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create model connector: %w", err)
		}
		gateway := classify.NewGateway(connector, classify.Options{
			Timeout:           cfg.AI.Timeout,
			RequestsPerSecond: cfg.AI.RequestsPerSecond,
		})

		// The engine only creates pending approvals and never dispatches.
		engine := rules.NewEngine(a.threads, ruleStore, approvals.NewService(approvalStore, a.threads, nil))

		if cfg.Broker.Enabled {
			if a.publisher, err = dispatch.NewAMQPPublisher(ctx, cfg.Broker.URL, cfg.Broker.Exchange); err != nil {
				return nil, err
			}
		} else {
			a.publisher = dispatch.LogPublisher{}
		}

		workers = &jobqueue.Workers{
			Classify: jobqueue.NewClassifyProcessor(a.threads, kbService, gateway, engine),
			Dispatch: dispatch.NewDispatcher(a.publisher, cfg.Broker.RoutingKey),
			Outbox:   a.records,
		}
	}

	if a.queue, err = jobqueue.NewJobQueue(a.pool, jobqueue.QueueConfigFrom(cfg), workers); err != nil {
		return nil, err
	}
	a.approvals = approvals.NewService(approvalStore, a.threads, a.queue)

	ok = true
	return a, nil
}

func (a *app) server(cfg *config.Config, port int) *api.Server {
	return api.NewServer(port, api.Deps{
		Threads:   a.threads,
		Intake:    threads.NewIntake(a.threads, a.queue),
		Rules:     a.rules,
		Approvals: a.approvals,
		Records:   a.records,
		KB:        a.kb,
		Tokens:    auth.NewTokenService(cfg.Server.JWTSecret),
	})
}

// Close releases everything buildApp opened; safe on a partially built app
func (a *app) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close publisher")
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close cache")
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
