package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/groqlink/internal/sessions"
)

// NewHistoryCommand returns the history subcommand.
func NewHistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Browse recorded console transcripts",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List all transcripts",
				Action: runHistoryList,
			},
			{
				Name:      "show",
				Usage:     "Show the entries of a transcript",
				ArgsUsage: "<transcript_id>",
				Action:    runHistoryShow,
			},
		},
		DefaultCommand: "list",
	}
}

func newStore(cmd *cli.Command) (*sessions.FileStore, error) {
	cfg, err := loadConfig(cmd.Root().String("config"))
	if err != nil {
		return nil, err
	}
	return sessions.NewFileStore(cfg.History.Dir), nil
}

func runHistoryList(_ context.Context, cmd *cli.Command) error {
	store, err := newStore(cmd)
	if err != nil {
		return err
	}

	list, err := store.List()
	if err != nil {
		return fmt.Errorf("list transcripts: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No transcripts found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPROMPTS\tFAILURES\tTOKENS\tUPDATED\tMODEL")
	for _, t := range list {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d/%d\t%s\t%s\n",
			t.ID,
			t.Status,
			t.Prompts,
			t.Failures,
			t.TokenUsage.Input,
			t.TokenUsage.Output,
			t.UpdatedAt.Format("2006-01-02 15:04"),
			t.Model,
		)
	}
	return w.Flush()
}

func runHistoryShow(_ context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("usage: groqlink history show <transcript_id>")
	}

	store, err := newStore(cmd)
	if err != nil {
		return err
	}

	entries, err := store.Entries(id)
	if err != nil {
		return fmt.Errorf("load entries: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("No entries in this transcript.")
		return nil
	}

	for _, e := range entries {
		switch e.Kind {
		case sessions.EntryPrompt:
			fmt.Printf("[%s] you: %s\n", e.Ts.Format("15:04:05"), e.Content)
		default:
			fmt.Printf("[%s] %s (%.2f ms): %s\n", e.Ts.Format("15:04:05"), e.Kind, e.DurationMs, e.Content)
		}
	}
	return nil
}
