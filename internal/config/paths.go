package config

import (
	"os"
	"path/filepath"
)

// HomePath returns the root directory for groqlink data.
// It uses $GROQLINK_PATH if set, otherwise defaults to ~/.groqlink.
func HomePath() string {
	if v := os.Getenv("GROQLINK_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".groqlink")
	}
	return filepath.Join(home, ".groqlink")
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	return filepath.Join(HomePath(), "config.jsonc")
}

// DotenvPath returns the path to the .env file.
func DotenvPath() string {
	return filepath.Join(HomePath(), ".env")
}

// KeyPath returns the default age identity path.
func KeyPath() string {
	return filepath.Join(HomePath(), ".age-key")
}

// StatusPath returns the path of the link status file written by a running console.
func StatusPath() string {
	return filepath.Join(HomePath(), "status.json")
}
