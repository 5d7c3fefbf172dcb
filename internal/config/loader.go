package config

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/tailscale/hujson"
)

// Reference defaults of the interactive console.
const (
	DefaultAPIURL           = "https://api.groq.com/openai/v1/chat/completions"
	DefaultModel            = "llama-3.1-8b-instant"
	DefaultMaxTokens        = 1500
	DefaultTimeout          = 15000 * time.Millisecond
	DefaultMaxRetry         = 5
	DefaultLineCapacity     = 256
	DefaultRequestBudget    = 512
	DefaultResponseCapacity = 4096
	DefaultPrompt           = "> "

	OverflowTruncate = "truncate"
	OverflowReject   = "reject"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load reads a JSONC config file, expands ${{ .Env.VAR }} templates, standardizes it
// to plain JSON, unmarshals it into Config, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variable templates (before standardizing, since templates are in strings)
	expanded := expandEnvTemplates(string(data))

	std, err := hujson.Standardize([]byte(expanded))
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(std, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns a Config with every field set to its default.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	if c.Link.MaxRetry < 0 {
		return fmt.Errorf("link.max_retry must be >= 0, got %d", c.Link.MaxRetry)
	}
	if c.Console.LineCapacity < 2 {
		return fmt.Errorf("console.line_capacity must be >= 2, got %d", c.Console.LineCapacity)
	}
	switch c.API.Overflow {
	case OverflowTruncate, OverflowReject:
	default:
		return fmt.Errorf("api.overflow must be %q or %q, got %q", OverflowTruncate, OverflowReject, c.API.Overflow)
	}
	if _, err := url.Parse(c.API.URL); err != nil {
		return fmt.Errorf("api.url: %w", err)
	}
	return nil
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.API.URL == "" {
		cfg.API.URL = DefaultAPIURL
	}
	if cfg.API.Model == "" {
		cfg.API.Model = DefaultModel
	}
	if cfg.API.MaxTokens == 0 {
		cfg.API.MaxTokens = DefaultMaxTokens
	}
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = Duration(DefaultTimeout)
	}
	if cfg.API.RequestBudget == 0 {
		cfg.API.RequestBudget = DefaultRequestBudget
	}
	if cfg.API.ResponseCapacity == 0 {
		cfg.API.ResponseCapacity = DefaultResponseCapacity
	}
	if cfg.API.Overflow == "" {
		cfg.API.Overflow = OverflowTruncate
	}
	if cfg.API.Auth.KeyFile == "" {
		cfg.API.Auth.KeyFile = KeyPath()
	}

	if cfg.Link.ProbeAddress == "" {
		cfg.Link.ProbeAddress = probeAddressFor(cfg.API.URL)
	}
	if cfg.Link.MaxRetry == 0 {
		cfg.Link.MaxRetry = DefaultMaxRetry
	}
	if cfg.Link.ConnectTimeout == 0 {
		cfg.Link.ConnectTimeout = Duration(5 * time.Second)
	}
	if cfg.Link.RetryBackoff == 0 {
		cfg.Link.RetryBackoff = Duration(time.Second)
	}
	if cfg.Link.KeepaliveInterval == 0 {
		cfg.Link.KeepaliveInterval = Duration(30 * time.Second)
	}

	if cfg.Console.LineCapacity == 0 {
		cfg.Console.LineCapacity = DefaultLineCapacity
	}
	if cfg.Console.Prompt == "" {
		cfg.Console.Prompt = DefaultPrompt
	}

	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}
	if cfg.History.Dir == "" {
		cfg.History.Dir = filepath.Join(HomePath(), "sessions")
	}
}

// probeAddressFor derives host:port from the API URL; https defaults to 443.
func probeAddressFor(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "api.groq.com:443"
	}
	port := u.Port()
	if port == "" {
		port = "443"
		if u.Scheme == "http" {
			port = "80"
		}
	}
	return net.JoinHostPort(u.Hostname(), port)
}
