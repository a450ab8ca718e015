package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/guestdesk/cmd"
)

const (
	version = "0.1.0"
)

func main() {
	app := &cli.App{
		Name:    "guestdesk",
		Usage:   "Guest messaging operations console with auto-rules and reply approvals",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				Value:   "guestdesk.toml",
			},
		},
		Commands: []*cli.Command{
			cmd.APICommand(),
			cmd.WorkerCommand(),
			cmd.MigrateCommand(),
			cmd.ConfigCommand(),
			cmd.RulesCommand(),
			cmd.TokenCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
