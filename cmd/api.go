package cmd

import (
	"context"
	"fmt"

	"github.com/consensus/internal/api"
	"github.com/urfave/cli/v2"
)

// APICommand returns the CLI command for starting the API server
func APICommand() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Start the Consensus API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides server.port)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			a, err := bootstrap(c.Context, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()
			go a.guests.RunJanitor(ctx, cfg.Storage.GuestTTL, janitorInterval(cfg.Storage.GuestTTL))

			port := cfg.Server.Port
			if c.IsSet("port") {
				port = c.Int("port")
			}
			fmt.Printf("Starting Consensus API server on port %d...\n", port)

			server := api.NewServer(port, api.Deps{
				Chat:    a.chat,
				Catalog: a.registry,
				Sender:  a.gateway,
				Tokens:  a.tokens,
			})
			return server.Start()
		},
	}
}
