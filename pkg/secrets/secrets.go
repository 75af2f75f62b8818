package secrets

import (
	"context"
	"errors"
	"os"
	"strings"
)

// ErrSecretNotFound is returned when no source holds the key
var ErrSecretNotFound = errors.New("secret not found")

// Manager provides access to secrets from various sources
type Manager interface {
	// GetSecret retrieves a secret by key
	GetSecret(ctx context.Context, key string) (string, error)

	// GetSecretWithDefault retrieves a secret with a default value if not found
	GetSecretWithDefault(ctx context.Context, key, defaultValue string) string
}

// EnvManager reads secrets from environment variables. Keys are upper-cased
// with '-' and '.' turned into '_'; Prefix is prepended when set.
type EnvManager struct {
	Prefix string
}

func (m EnvManager) GetSecret(_ context.Context, key string) (string, error) {
	value := os.Getenv(m.Prefix + EnvKey(key))
	if value == "" {
		return "", ErrSecretNotFound
	}
	return value, nil
}

func (m EnvManager) GetSecretWithDefault(ctx context.Context, key, defaultValue string) string {
	value, err := m.GetSecret(ctx, key)
	if err != nil {
		return defaultValue
	}
	return value
}

// EnvKey converts a secret key to its environment variable name
func EnvKey(key string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
}

// Resolve returns current when set and otherwise looks key up in m
func Resolve(ctx context.Context, m Manager, key, current string) string {
	if current != "" || m == nil {
		return current
	}
	return m.GetSecretWithDefault(ctx, key, "")
}
