package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

// APICommand returns the CLI command for starting the API server
func APICommand() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Start the guestdesk API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (defaults to server.port)",
			},
			&cli.BoolFlag{
				Name:  "with-worker",
				Usage: "Also run the classification and dispatch workers in this process",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			port := cfg.Server.Port
			if c.IsSet("port") {
				port = c.Int("port")
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, c.Bool("with-worker"))
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.queue.Start(ctx); err != nil {
				return err
			}
			defer stopQueue(a)

			log.Info().Int("port", port).Bool("with_worker", c.Bool("with-worker")).Msg("Starting guestdesk API server")
			return a.server(cfg, port).Start(ctx)
		},
	}
}

// WorkerCommand runs the job workers without the HTTP surface
func WorkerCommand() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Run the classification and dispatch workers",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.queue.Start(ctx); err != nil {
				return err
			}
			log.Info().Int("max_workers", cfg.Queue.MaxWorkers).Msg("Workers started")

			<-ctx.Done()
			stopQueue(a)
			return nil
		},
	}
}

func stopQueue(a *app) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.queue.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("Job queue did not stop cleanly")
	}
}
