package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/groqlink/internal/config"
)

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	var logFile io.Closer

	return &cli.Command{
		Name:  "groqlink",
		Usage: "Ask an LLM from your terminal once the network link is up",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
			&cli.StringFlag{
				Name:  "model",
				Usage: "Override the configured model",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Write logs to this file instead of stderr",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			c, err := setupLogging(cmd.Bool("debug"), cmd.String("log-file"))
			if err != nil {
				return ctx, err
			}
			logFile = c
			return ctx, nil
		},
		After: func(context.Context, *cli.Command) error {
			if logFile != nil {
				return logFile.Close()
			}
			return nil
		},
		Commands: []*cli.Command{
			NewChatCommand(),
			NewAskCommand(),
			NewStatusCommand(),
			NewHistoryCommand(),
			NewSecretCommand(),
		},
		DefaultCommand: "chat",
	}
}

// setupLogging installs the default slog handler. Logs go to path when set, so
// they do not interleave with the raw-mode console. Without a file only warnings
// reach stderr.
func setupLogging(debug bool, path string) (io.Closer, error) {
	level := slog.LevelWarn
	if path != "" {
		level = slog.LevelInfo
	}
	if debug {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stderr
	var closer io.Closer
	if path != "" {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out, closer = f, f
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})))
	return closer, nil
}
