package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/groqlink/internal/config"
	"github.com/dohr-michael/groqlink/internal/connectivity"
	"github.com/dohr-michael/groqlink/internal/events"
	"github.com/dohr-michael/groqlink/internal/exchange"
	"github.com/dohr-michael/groqlink/internal/link"
	"github.com/dohr-michael/groqlink/internal/sessions"
	"github.com/dohr-michael/groqlink/internal/storage"
)

// runtime holds the components shared by chat and ask.
type runtime struct {
	cfg      *config.Config
	bus      *events.Bus
	manager  *connectivity.Manager
	client   *exchange.Client
	history  sessions.Store
	eventLog *storage.EventLogger
	usage    *storage.UsageTracker
}

// loadConfig reads the config file, or returns defaults when it does not exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("no config file, using defaults", "path", path)
		return config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func newRuntime(cmd *cli.Command) (*runtime, error) {
	cfg, err := loadConfig(cmd.Root().String("config"))
	if err != nil {
		return nil, err
	}
	if m := cmd.Root().String("model"); m != "" {
		cfg.API.Model = m
	}

	apiKey, err := exchange.ResolveAPIKey(cfg.API.Auth)
	if err != nil {
		return nil, fmt.Errorf("api key: %w", err)
	}

	bus := events.NewBus(cfg.Events.BufferSize)

	client, err := exchange.New(exchange.Options{
		URL:              cfg.API.URL,
		Model:            cfg.API.Model,
		MaxTokens:        cfg.API.MaxTokens,
		Timeout:          cfg.API.Timeout.Duration(),
		APIKey:           apiKey,
		RequestBudget:    cfg.API.RequestBudget,
		ResponseCapacity: cfg.API.ResponseCapacity,
		Overflow:         cfg.API.Overflow,
		Bus:              bus,
	})
	if err != nil {
		bus.Close()
		return nil, err
	}

	backoff := cfg.Link.RetryBackoff.Duration()
	if backoff < 0 {
		backoff = 0
	}
	probe := link.NewProbeLink(link.ProbeOptions{
		Interface:         cfg.Link.Interface,
		Address:           cfg.Link.ProbeAddress,
		ConnectTimeout:    cfg.Link.ConnectTimeout.Duration(),
		KeepaliveInterval: cfg.Link.KeepaliveInterval.Duration(),
	})
	manager := connectivity.New(probe, connectivity.Options{
		MaxRetry: cfg.Link.MaxRetry,
		Backoff:  backoff,
		Bus:      bus,
	})

	rt := &runtime{
		cfg:      cfg,
		bus:      bus,
		manager:  manager,
		client:   client,
		eventLog: storage.NewEventLogger(filepath.Join(config.HomePath(), "logs"), bus, storage.EventLoggerOptions{}),
		usage:    storage.NewUsageTracker(bus),
	}
	if cfg.History.IsEnabled() {
		rt.history = sessions.NewFileStore(cfg.History.Dir)
	}

	slog.Debug("runtime ready",
		"model", cfg.API.Model,
		"probe", cfg.Link.ProbeAddress,
		"max_retry", cfg.Link.MaxRetry,
		"history", cfg.History.IsEnabled(),
	)
	return rt, nil
}

// Close stops the link and flushes event consumers.
func (rt *runtime) Close() {
	if err := rt.manager.Close(); err != nil {
		slog.Warn("close link", "error", err)
	}
	rt.bus.Close()
	rt.usage.Close()
	if err := rt.eventLog.Close(); err != nil {
		slog.Warn("close event log", "error", err)
	}
}
