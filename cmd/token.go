package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/consensus/internal/api/auth"
)

// TokenCommand returns the command that issues API access tokens
func TokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Issue a bearer token for the API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "user",
				Aliases:  []string{"u"},
				Usage:    "User id the token is issued for",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "email",
				Usage: "Optional email claim",
			},
			&cli.DurationFlag{
				Name:  "ttl",
				Usage: "Token lifetime",
				Value: 24 * time.Hour,
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			ts := auth.NewTokenService(cfg.Server.JWTSecret)
			ts.AccessTokenDuration = c.Duration("ttl")

			token, expiresAt, err := ts.Issue(c.String("user"), c.String("email"))
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}

			fmt.Println(token)
			fmt.Printf("expires at %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
}
