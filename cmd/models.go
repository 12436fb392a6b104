package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
)

// ModelsCommand returns the command that prints the model catalog
func ModelsCommand() *cli.Command {
	return &cli.Command{
		Name:  "models",
		Usage: "List providers and models",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "refresh",
				Usage: "Query provider APIs for their live model lists",
			},
		},
		Action: runModels,
	}
}

func runModels(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	a, err := bootstrap(c.Context, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if c.Bool("refresh") {
		for _, p := range a.registry.ListProviders() {
			if _, err := a.registry.Refresh(c.Context, p.ID); err != nil {
				fmt.Fprintf(os.Stderr, "%s: using catalog (%v)\n", p.ID, err)
			}
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tMODEL\tNAME\tAVAILABLE\tCONFIGURED")
	for _, p := range a.registry.ListProviders() {
		configured := a.gateway.HasConnector(p.ID)
		for _, m := range p.Models {
			fmt.Fprintf(w, "%s %s\t%s\t%s\t%v\t%v\n", p.Icon, p.ID, m.ID, m.DisplayName, p.Available, configured)
		}
	}
	return w.Flush()
}
