package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/guestdesk/internal/api/auth"
	"github.com/guestdesk/internal/config"
)

// TokenCommand mints an access token signed with server.jwt_secret, for
// local development and service accounts.
func TokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Issue an access token",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Usage: "User ID (token subject)", Required: true},
			&cli.StringFlag{Name: "email", Usage: "User email"},
			&cli.StringFlag{Name: "role", Usage: "admin, manager or staff", Value: string(auth.RoleStaff)},
			&cli.DurationFlag{Name: "ttl", Usage: "Token lifetime", Value: 12 * time.Hour},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.Server.JWTSecret == "" {
				return fmt.Errorf("server.jwt_secret is not set")
			}

			ts := auth.NewTokenService(cfg.Server.JWTSecret)
			ts.AccessTokenDuration = c.Duration("ttl")
			token, expiresAt, err := ts.Issue(auth.Reviewer{
				UserID: c.String("user"),
				Email:  c.String("email"),
				Role:   auth.Role(c.String("role")),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, token)
			fmt.Fprintf(c.App.ErrWriter, "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
}
