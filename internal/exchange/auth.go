package exchange

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dohr-michael/groqlink/internal/config"
	"github.com/dohr-michael/groqlink/internal/secrets"
)

// APIKeyEnv is the fallback variable consulted when no key is configured.
const APIKeyEnv = "GROQ_API_KEY"

// ErrNoAPIKey is returned when no credential can be resolved.
var ErrNoAPIKey = errors.New("no API key configured (set api.auth.api_key or " + APIKeyEnv + ")")

// ResolveAPIKey resolves the configured credential.
// Order: direct value or ${VAR} reference, decrypted if sealed, then GROQ_API_KEY.
func ResolveAPIKey(auth config.AuthConfig) (string, error) {
	key := strings.TrimSpace(auth.APIKey)
	if strings.HasPrefix(key, "${") && strings.HasSuffix(key, "}") {
		key = strings.TrimSpace(os.Getenv(key[2 : len(key)-1]))
	}
	if key == "" {
		key = strings.TrimSpace(os.Getenv(APIKeyEnv))
	}
	if key == "" {
		return "", ErrNoAPIKey
	}

	if secrets.IsSealed(key) {
		plain, err := secrets.Reveal(key, auth.KeyFile)
		if err != nil {
			return "", fmt.Errorf("decrypt API key: %w", err)
		}
		key = strings.TrimSpace(plain)
		if key == "" {
			return "", ErrNoAPIKey
		}
	}
	return key, nil
}
