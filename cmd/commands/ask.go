package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/groqlink/internal/console"
)

// NewAskCommand returns the ask subcommand.
func NewAskCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Send one prompt and print the response",
		ArgsUsage: "<prompt>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "timeout",
				Usage: "Overall timeout in seconds, link setup included",
				Value: 120,
			},
			&cli.BoolFlag{
				Name:  "no-history",
				Usage: "Do not record a transcript",
			},
		},
		Action: runAsk,
	}
}

func runAsk(ctx context.Context, cmd *cli.Command) error {
	prompt := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("usage: groqlink ask <prompt>")
	}

	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(ctx, time.Duration(cmd.Int("timeout"))*time.Second)
	defer cancel()

	loop := &console.Loop{
		Exchange: rt.client,
		Link:     rt.manager,
		Renderer: console.NewRenderer(os.Stdout, console.RendererOptions{
			Color:    rt.cfg.Console.Color,
			Markdown: rt.cfg.Console.Markdown,
		}),
		Bus: rt.bus,
	}
	if rt.history != nil && !cmd.Bool("no-history") {
		loop.History = rt.history
	}

	res, err := loop.Once(ctx, prompt)
	if errors.Is(err, console.ErrConnectivity) {
		return cli.Exit("", 2)
	}
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("timeout waiting for link")
		}
		return err
	}
	if !res.OK() {
		return cli.Exit("", 1)
	}
	return nil
}
