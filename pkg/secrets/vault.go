package secrets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"research-chat/backend/pkg/cache"
	"research-chat/backend/pkg/config"
	"research-chat/backend/pkg/logger"

	vault "github.com/hashicorp/vault/api"
)

var (
	ErrNoVaultToken   = errors.New("no vault token provided")
	ErrNoVaultAddress = errors.New("no vault address provided")
)

// VaultManager reads one KV v2 secret and falls back to the environment for
// keys it does not hold
type VaultManager struct {
	client   *vault.Client
	mount    string
	path     string
	fallback EnvManager
	cache    *cache.Cache[string]
	now      func() time.Time
	log      *logger.Logger
}

// NewVaultManager creates a new Vault manager instance
func NewVaultManager(cfg config.VaultConfig, log *logger.Logger) (*VaultManager, error) {
	if cfg.Address == "" {
		return nil, ErrNoVaultAddress
	}
	if cfg.Token == "" {
		return nil, ErrNoVaultToken
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address
	vaultConfig.Timeout = 10 * time.Second
	vaultConfig.MaxRetries = 3

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	mount := cfg.Mount
	if mount == "" {
		mount = "secret"
	}

	m := &VaultManager{
		client: client,
		mount:  mount,
		path:   cfg.Path,
		now:    time.Now,
		log:    log.WithComponent("secrets"),
	}
	m.cache = cache.New[string](5*time.Minute, 0, func() time.Time { return m.now() })
	return m, nil
}

// GetSecret retrieves a secret from Vault, with fallback to environment variable
func (m *VaultManager) GetSecret(ctx context.Context, key string) (string, error) {
	if value, ok := m.cache.Get(key); ok {
		return value, nil
	}

	value, err := m.getFromVault(ctx, key)
	if errors.Is(err, ErrSecretNotFound) {
		m.log.Warn("Secret not found in Vault, falling back to environment", "key", key)
		value, err = m.fallback.GetSecret(ctx, key)
	}
	if err != nil {
		return "", err
	}

	m.cache.Set(key, value)
	return value, nil
}

// GetSecretWithDefault retrieves a secret with a default value if not found
func (m *VaultManager) GetSecretWithDefault(ctx context.Context, key, defaultValue string) string {
	value, err := m.GetSecret(ctx, key)
	if err != nil {
		m.log.Warn("Failed to get secret, using default value",
			"key", key,
			"error", err.Error(),
		)
		return defaultValue
	}
	return value
}

func (m *VaultManager) getFromVault(ctx context.Context, key string) (string, error) {
	secret, err := m.client.KVv2(m.mount).Get(ctx, m.path)
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return "", ErrSecretNotFound
		}
		m.log.Error("Failed to read secret from Vault",
			"path", m.path,
			"error", err.Error(),
		)
		return "", fmt.Errorf("failed to read secret: %w", err)
	}

	if secret == nil || secret.Data == nil {
		return "", ErrSecretNotFound
	}
	value, ok := secret.Data[key].(string)
	if !ok || value == "" {
		return "", ErrSecretNotFound
	}
	return value, nil
}
