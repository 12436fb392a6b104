package cmd

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/consensus/internal/chat"
	"github.com/consensus/internal/conversation"
)

// AskCommand returns the command that runs a single turn from the terminal
func AskCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Ask several models and print their consensus",
		ArgsUsage: "PROMPT",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Usage:   "Model id to ask; repeat for more models",
				Value:   cli.NewStringSlice("gemini-2.0-flash", "gpt-4o"),
			},
		},
		Action: runAsk,
	}
}

func runAsk(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("missing required argument: PROMPT")
	}
	prompt := strings.Join(c.Args().Slice(), " ")

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	a, err := bootstrap(c.Context, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	owner := chat.Owner{ID: "cli", Guest: true}
	rec, err := a.chat.CreateConversation(c.Context, owner, "", c.StringSlice("model"))
	if err != nil {
		return err
	}

	res, err := a.chat.SubmitTurn(c.Context, chat.TurnRequest{
		Owner:          owner,
		ConversationID: rec.ID,
		Prompt:         prompt,
	}, func(ev chat.Event) {
		if ev.Type == chat.EventModelSettled && ev.Response != nil {
			fmt.Printf("%s %s (%s) finished\n", ev.Response.ProviderIcon, ev.Response.ModelName, ev.Response.ModelID)
		}
	})
	if err != nil {
		return err
	}

	printTurn(res)
	return nil
}

func printTurn(res *chat.TurnResult) {
	for _, id := range res.Assistant.ModelOrder {
		slot := res.Assistant.ModelResponses[id]
		fmt.Printf("\n=== %s %s ===\n%s\n", slot.ProviderIcon, slot.ModelName, slot.Content)
	}

	fmt.Println("\n=== Consensus ===")
	switch cs := res.Assistant.Consensus; {
	case cs == nil:
		fmt.Println("(none)")
	case cs.Error != "":
		fmt.Println(conversation.ErrorContentPrefix + cs.Error)
	default:
		fmt.Println(cs.Content)
	}

	if res.System != nil {
		fmt.Printf("\n%s\n", res.System.Content)
	}
}
