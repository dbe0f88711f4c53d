// Package vault loads runtime secrets (data provider API keys, the wallet
// signing key, notification webhook URLs) from HashiCorp Vault. When Vault is
// disabled the client serves values seeded from the environment, so dry-run
// setups work without a Vault deployment.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"
)

// Config holds Vault connection settings.
type Config struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// Well-known secret names used by the bot.
const (
	SecretWalletKey      = "wallet_key"
	SecretDiscordWebhook = "discord_webhook"
	SecretTelegramBot    = "telegram_bot"
	SecretProviderKeys   = "provider_keys"
)

// Client wraps the HashiCorp Vault client with a read-through cache.
type Client struct {
	client *api.Client
	config Config

	mu    sync.RWMutex
	cache map[string]map[string]string
}

// NewClient creates a new Vault client. With cfg.Enabled false the client
// only serves values placed via Seed.
func NewClient(cfg Config) (*Client, error) {
	c := &Client{
		config: cfg,
		cache:  make(map[string]map[string]string),
	}
	if !cfg.Enabled {
		return c, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{CACert: cfg.CACert}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	c.client = client
	return c, nil
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Seed places a secret directly into the cache. Used when Vault is disabled
// and secrets come from the environment instead.
func (c *Client) Seed(name string, values map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[name] = values
}

// GetSecret returns the key/value pairs stored under a secret name.
func (c *Client) GetSecret(ctx context.Context, name string) (map[string]string, error) {
	c.mu.RLock()
	if cached, ok := c.cache[name]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return nil, fmt.Errorf("secret %q not found and vault is disabled", name)
	}

	path := c.secretPath(name)
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret %q: %w", name, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("secret %q not found", name)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("secret %q has invalid format", name)
	}

	values := make(map[string]string, len(data))
	for k, v := range data {
		if s, ok := v.(string); ok {
			values[k] = s
		}
	}

	c.mu.Lock()
	c.cache[name] = values
	c.mu.Unlock()
	return values, nil
}

// GetValue returns one value from a secret, or empty string if absent. Lookup
// errors are folded into the empty result since all bot secrets are optional
// in dry-run.
func (c *Client) GetValue(ctx context.Context, name, key string) string {
	values, err := c.GetSecret(ctx, name)
	if err != nil {
		return ""
	}
	return values[key]
}

// StoreSecret writes key/value pairs under a secret name.
func (c *Client) StoreSecret(ctx context.Context, name string, values map[string]string) error {
	c.mu.Lock()
	c.cache[name] = values
	c.mu.Unlock()

	if !c.config.Enabled {
		return nil
	}

	data := make(map[string]interface{}, len(values))
	for k, v := range values {
		data[k] = v
	}
	_, err := c.client.Logical().WriteWithContext(ctx, c.secretPath(name), map[string]interface{}{
		"data": data,
	})
	if err != nil {
		return fmt.Errorf("failed to store secret %q: %w", name, err)
	}
	return nil
}

// ClearCache clears the in-memory cache
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cache = make(map[string]map[string]string)
	c.mu.Unlock()
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

// secretPath returns the KV v2 data path for a secret name.
func (c *Client) secretPath(name string) string {
	return fmt.Sprintf("%s/data/%s/%s", c.config.MountPath, c.config.SecretPath, name)
}
