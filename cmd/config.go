package cmd

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/consensus/internal/config"
)

// ConfigCommand returns the config command
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write a sample consensus.toml",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
						Value:   "consensus.toml",
					},
				},
				Action: runConfigInit,
			},
			{
				Name:   "validate",
				Usage:  "Validate the effective configuration and show which providers are usable",
				Action: runConfigValidate,
			},
		},
	}
}

func runConfigInit(c *cli.Context) error {
	outputPath := c.String("output")

	if err := config.InitConfig(outputPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Created configuration file at %s\n", outputPath)
	return nil
}

func runConfigValidate(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	fmt.Printf("Storage: %s\n", cfg.Storage.Backend)
	fmt.Printf("Gateway timeout: %s\n", cfg.Gateway.Timeout)
	fmt.Printf("Consensus model: %s (%s)\n", cfg.Consensus.Model, cfg.Consensus.Provider)
	if cfg.Server.JWTSecret == "" {
		fmt.Println("JWT secret: not set, only guest sessions are accepted")
	}

	configured := make(map[string]bool)
	for _, o := range connectorOptions(cfg) {
		configured[string(o.Provider)] = true
	}
	ids := make([]string, 0, len(cfg.Providers))
	for id := range cfg.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tCONNECTOR\tAVAILABILITY")
	for _, id := range ids {
		availability := "catalog"
		if pc := cfg.Providers[id]; pc.Available != nil {
			availability = fmt.Sprintf("%v", *pc.Available)
		}
		fmt.Fprintf(w, "%s\t%v\t%s\n", id, configured[id], availability)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if !configured[cfg.Consensus.Provider] {
		fmt.Printf("Warning: no credentials for consensus provider %q; consensus calls will fail\n", cfg.Consensus.Provider)
	}

	fmt.Println("Configuration is valid")
	return nil
}
