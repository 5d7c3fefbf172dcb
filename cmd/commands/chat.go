package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/groqlink/internal/config"
	"github.com/dohr-michael/groqlink/internal/console"
	"github.com/dohr-michael/groqlink/internal/heartbeat"
	"github.com/dohr-michael/groqlink/internal/linesession"
	"github.com/dohr-michael/groqlink/internal/storage"
)

// NewChatCommand returns the interactive console command.
func NewChatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Start the interactive console",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-history",
				Usage: "Do not record a transcript",
			},
			&cli.BoolFlag{
				Name:  "summary",
				Usage: "Print usage statistics on exit",
				Value: true,
			},
		},
		Action: runChat,
	}
}

func runChat(ctx context.Context, cmd *cli.Command) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	term, err := console.OpenTerminal(os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	defer term.Close()

	hb := heartbeat.NewWriter(config.StatusPath(), rt.client.Model(), heartbeat.DefaultInterval, func() heartbeat.LinkReport {
		s := rt.manager.Snapshot()
		return heartbeat.LinkReport{
			State:   s.State.String(),
			Retries: s.Retries,
			Address: s.Address,
			Reason:  s.Reason,
			Since:   s.Since,
		}
	})
	hb.Start(rt.bus)
	defer hb.Stop()

	loop := &console.Loop{
		Lines: linesession.New(term, term, linesession.Options{
			Capacity: rt.cfg.Console.LineCapacity,
			Prompt:   rt.cfg.Console.Prompt,
		}),
		Exchange: rt.client,
		Link:     rt.manager,
		Renderer: console.NewRenderer(term, console.RendererOptions{
			Color:    rt.cfg.Console.Color,
			Markdown: rt.cfg.Console.Markdown,
			Width:    term.Width(),
		}),
		Bus: rt.bus,
	}
	if rt.history != nil && !cmd.Bool("no-history") {
		loop.History = rt.history
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- loop.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		slog.Debug("console interrupted")
		err = nil
	case err = <-errCh:
	}

	// Restore the terminal before anything else is printed.
	term.Close()

	if errors.Is(err, console.ErrConnectivity) {
		// The failure was already shown on the console.
		return cli.Exit("", 2)
	}
	if err != nil {
		return err
	}

	if cmd.Bool("summary") {
		// Drain the bus so the tracker has seen every response.
		rt.bus.Close()
		printUsage(os.Stdout, rt.usage.Snapshot())
	}
	return nil
}

func printUsage(w io.Writer, u storage.Usage) {
	if u.EventsDropped > 0 {
		fmt.Fprintf(w, "\nevents dropped: %d\n", u.EventsDropped)
	}
	if u.Exchanges == 0 {
		return
	}
	fmt.Fprintf(w, "\n%d exchange(s), %d input / %d output tokens, %.2f ms total\n",
		u.Exchanges, u.TokensInput, u.TokensOutput, float64(u.Elapsed.Microseconds())/1000)

	if len(u.Failures) > 0 {
		kinds := make([]string, 0, len(u.Failures))
		for k := range u.Failures {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		parts := make([]string, 0, len(kinds))
		for _, k := range kinds {
			parts = append(parts, fmt.Sprintf("%s=%d", k, u.Failures[k]))
		}
		fmt.Fprintf(w, "failures: %s\n", strings.Join(parts, ", "))
	}
	if u.DroppedBytes > 0 {
		fmt.Fprintf(w, "response bytes dropped: %d\n", u.DroppedBytes)
	}
}
