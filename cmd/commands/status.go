package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/groqlink/internal/config"
	"github.com/dohr-michael/groqlink/internal/heartbeat"
)

// NewStatusCommand returns the status subcommand.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the link status of a running console",
		Action: func(_ context.Context, _ *cli.Command) error {
			status, rep, err := heartbeat.Check(config.StatusPath(), 2*heartbeat.DefaultInterval)
			if err != nil {
				return fmt.Errorf("check status: %w", err)
			}

			switch status {
			case heartbeat.StatusAlive:
				fmt.Printf("Console: ALIVE (PID %d, uptime %s, model %s)\n", rep.PID, rep.Uptime, rep.Model)
			case heartbeat.StatusStale:
				fmt.Printf("Console: STALE (PID %d, last update %s ago)\n",
					rep.PID, time.Since(rep.Timestamp).Truncate(time.Second))
			case heartbeat.StatusDead:
				fmt.Println("Console: NOT RUNNING")
				return nil
			}

			l := rep.Link
			fmt.Printf("Link:    %s (retries %d", l.State, l.Retries)
			if l.Address != "" {
				fmt.Printf(", address %s", l.Address)
			}
			fmt.Println(")")
			if l.Reason != "" {
				fmt.Printf("Last disconnect: %s\n", l.Reason)
			}
			return nil
		},
	}
}
