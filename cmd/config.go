package cmd

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/guestdesk/internal/config"
)

// ConfigCommand returns the config command
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect and scaffold guestdesk configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write a sample guestdesk.toml",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Where to write the sample",
						Value:   "guestdesk.toml",
					},
				},
				Action: func(c *cli.Context) error {
					path := c.String("output")
					if err := config.InitConfig(path); err != nil {
						return cli.Exit(err.Error(), 1)
					}
					fmt.Fprintf(c.App.Writer, "wrote sample configuration to %s\n", path)
					return nil
				},
			},
			{
				Name:  "validate",
				Usage: "Load the effective configuration, check it and list the components it selects",
				Action: func(c *cli.Context) error {
					cfg, err := config.LoadConfig(c.String("config"))
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					if err := config.Validate(cfg); err != nil {
						return cli.Exit("invalid configuration: "+err.Error(), 1)
					}
					describeConfig(c.App.Writer, cfg)
					return nil
				},
			},
		},
	}
}

// describeConfig prints which backends the configuration wires; secrets are never printed
func describeConfig(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "api:        :%d\n", cfg.Server.Port)
	fmt.Fprintf(w, "classifier: %s/%s (timeout %s, %.1f req/s)\n",
		cfg.AI.Provider, cfg.AI.Model, cfg.AI.Timeout, cfg.AI.RequestsPerSecond)
	fmt.Fprintf(w, "queue:      %d workers, %d attempts\n", cfg.Queue.MaxWorkers, cfg.Queue.MaxAttempts)

	if cfg.Broker.Enabled {
		fmt.Fprintf(w, "replies:    amqp exchange %q key %q\n", cfg.Broker.Exchange, cfg.Broker.RoutingKey)
	} else {
		fmt.Fprintln(w, "replies:    log only (broker disabled)")
	}

	if cfg.Cache.RedisURL != "" {
		fmt.Fprintf(w, "rule cache: redis, ttl %s\n", cfg.Cache.RuleTTL)
	} else {
		fmt.Fprintln(w, "rule cache: none (rules read from postgres)")
	}
	fmt.Fprintln(w, "configuration is valid")
}
