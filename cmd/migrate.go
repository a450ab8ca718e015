package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/guestdesk/internal/config"
	"github.com/guestdesk/internal/database"
	"github.com/guestdesk/internal/jobqueue"
	"github.com/guestdesk/internal/logging"
)

// MigrateCommand applies the application schema and River's migrations
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply database migrations",
		Action: func(c *cli.Context) error {
			// Only the database section matters here, so the rest is not validated.
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logging.Setup(cfg.Logging.Level, cfg.Logging.Pretty)

			db, err := database.NewDB(c.Context, cfg.Database.URL, 1)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := database.Migrate(c.Context, db); err != nil {
				return err
			}

			pool, err := database.NewPool(c.Context, cfg.Database.URL, 2)
			if err != nil {
				return err
			}
			defer pool.Close()
			return jobqueue.Migrate(c.Context, pool)
		},
	}
}
