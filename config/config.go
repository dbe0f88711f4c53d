package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"solana-sniper-bot/internal/auth"
	"solana-sniper-bot/internal/bot"
	"solana-sniper-bot/internal/broker"
	"solana-sniper-bot/internal/coordinator"
	"solana-sniper-bot/internal/executor"
	"solana-sniper-bot/internal/exits"
	"solana-sniper-bot/internal/journal"
	"solana-sniper-bot/internal/logging"
	"solana-sniper-bot/internal/patterns"
	"solana-sniper-bot/internal/risk"
	"solana-sniper-bot/internal/stream"
	"solana-sniper-bot/internal/vault"
)

type Config struct {
	BotConfig          bot.Config         `json:"bot"`
	BrokerConfig       broker.Config      `json:"broker"`
	ProvidersConfig    ProvidersConfig    `json:"providers"`
	PatternsConfig     patterns.Config    `json:"patterns"`
	RiskConfig         risk.Config        `json:"risk"`
	CoordinatorConfig  coordinator.Config `json:"coordinator"`
	ExecutorConfig     executor.Config    `json:"executor"`
	ExitsConfig        exits.Config       `json:"exits"`
	StreamConfig       stream.Config      `json:"stream"`
	ServerConfig       ServerConfig       `json:"server"`
	AuthConfig         auth.Config        `json:"auth"`
	VaultConfig        vault.Config       `json:"vault"`
	JournalConfig      journal.Config     `json:"journal"`
	RedisConfig        RedisConfig        `json:"redis"`
	NotificationConfig NotificationConfig `json:"notification"`
	LoggingConfig      logging.Config     `json:"logging"`
	PaperConfig        PaperConfig        `json:"paper"`
	BlacklistPath      string             `json:"blacklist_path"`
}

// ProvidersConfig holds per-provider rate budgets for the data broker.
// Requests and Window define the provider's request budget.
type ProvidersConfig struct {
	DexScreener ProviderBudget `json:"dexscreener"`
	Gecko       ProviderBudget `json:"geckoterminal"`
	Jupiter     ProviderBudget `json:"jupiter"`
}

type ProviderBudget struct {
	Enabled  bool          `json:"enabled"`
	Requests int           `json:"requests"`
	Window   time.Duration `json:"window"`
}

// ServerConfig holds the control API listener settings.
type ServerConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	ProductionMode bool   `json:"production_mode"`
}

// RedisConfig holds Redis settings for position snapshots.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// NotificationConfig aggregates notifier settings.
type NotificationConfig struct {
	Enabled  bool   `json:"enabled"`
	Telegram struct {
		Enabled  bool   `json:"enabled"`
		BotToken string `json:"bot_token"`
		ChatID   string `json:"chat_id"`
	} `json:"telegram"`
	Discord struct {
		Enabled    bool   `json:"enabled"`
		WebhookURL string `json:"webhook_url"`
	} `json:"discord"`
}

// PaperConfig holds the simulated trading settings.
type PaperConfig struct {
	StartingBalance float64 `json:"starting_balance"`
}

// Load reads config.json (if present) and applies environment overrides.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = defaults()
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// defaults returns a config usable for dry-run without a config file.
func defaults() *Config {
	cfg := &Config{
		BotConfig:         bot.DefaultConfig(),
		BrokerConfig:      broker.DefaultConfig(),
		PatternsConfig:    patterns.DefaultConfig(),
		RiskConfig:        risk.DefaultConfig(),
		CoordinatorConfig: coordinator.DefaultConfig(),
		ExecutorConfig:    executor.DefaultConfig(),
		ExitsConfig:       exits.DefaultConfig(),
		StreamConfig:      stream.DefaultConfig(),
		BlacklistPath:     "blacklist.json",
	}
	cfg.ProvidersConfig = ProvidersConfig{
		DexScreener: ProviderBudget{Enabled: true, Requests: 300, Window: time.Minute},
		Gecko:       ProviderBudget{Enabled: true, Requests: 30, Window: time.Minute},
		Jupiter:     ProviderBudget{Enabled: true, Requests: 600, Window: time.Minute},
	}
	cfg.ServerConfig = ServerConfig{Host: "0.0.0.0", Port: 8080}
	cfg.PaperConfig = PaperConfig{StartingBalance: 1000}
	cfg.LoggingConfig = logging.Config{Level: "info", Output: "stdout", JSONFormat: true}
	cfg.ExecutorConfig.DryRun = true
	return cfg
}

// applyEnvOverrides applies environment variable overrides to the config.
// Secrets (wallet key, webhook URLs) are not read here; they come from Vault
// or the environment through the vault client's seeding path.
func applyEnvOverrides(cfg *Config) {
	cfg.ExecutorConfig.DryRun = getEnvOrDefault("SNIPER_DRY_RUN", boolString(cfg.ExecutorConfig.DryRun)) == "true"
	cfg.BotConfig.QuoteMint = getEnvOrDefault("SNIPER_QUOTE_MINT", cfg.BotConfig.QuoteMint)
	cfg.BotConfig.RiskPctPerTrade = getEnvFloatOrDefault("SNIPER_RISK_PCT", cfg.BotConfig.RiskPctPerTrade)

	cfg.StreamConfig.URL = getEnvOrDefault("SNIPER_FEED_URL", cfg.StreamConfig.URL)

	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.ProductionMode = getEnvOrDefault("PRODUCTION_MODE", boolString(cfg.ServerConfig.ProductionMode)) == "true"

	cfg.AuthConfig.Enabled = getEnvOrDefault("AUTH_ENABLED", boolString(cfg.AuthConfig.Enabled)) == "true"
	cfg.AuthConfig.Username = getEnvOrDefault("AUTH_USERNAME", cfg.AuthConfig.Username)
	cfg.AuthConfig.PasswordHash = getEnvOrDefault("AUTH_PASSWORD_HASH", cfg.AuthConfig.PasswordHash)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)

	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", boolString(cfg.VaultConfig.Enabled)) == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)

	cfg.JournalConfig.Enabled = getEnvOrDefault("JOURNAL_ENABLED", boolString(cfg.JournalConfig.Enabled)) == "true"
	cfg.JournalConfig.Host = getEnvOrDefault("POSTGRES_HOST", cfg.JournalConfig.Host)
	cfg.JournalConfig.Port = getEnvIntOrDefault("POSTGRES_PORT", cfg.JournalConfig.Port)
	cfg.JournalConfig.User = getEnvOrDefault("POSTGRES_USER", cfg.JournalConfig.User)
	cfg.JournalConfig.Password = getEnvOrDefault("POSTGRES_PASSWORD", cfg.JournalConfig.Password)
	cfg.JournalConfig.Database = getEnvOrDefault("POSTGRES_DB", cfg.JournalConfig.Database)

	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", boolString(cfg.RedisConfig.Enabled)) == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)

	cfg.NotificationConfig.Enabled = getEnvOrDefault("NOTIFICATIONS_ENABLED", boolString(cfg.NotificationConfig.Enabled)) == "true"
	cfg.NotificationConfig.Telegram.Enabled = getEnvOrDefault("TELEGRAM_ENABLED", boolString(cfg.NotificationConfig.Telegram.Enabled)) == "true"
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	cfg.NotificationConfig.Discord.Enabled = getEnvOrDefault("DISCORD_ENABLED", boolString(cfg.NotificationConfig.Discord.Enabled)) == "true"
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)

	cfg.PaperConfig.StartingBalance = getEnvFloatOrDefault("PAPER_STARTING_BALANCE", cfg.PaperConfig.StartingBalance)
	cfg.BlacklistPath = getEnvOrDefault("BLACKLIST_PATH", cfg.BlacklistPath)
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := defaults()
	if err := json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// GenerateSampleConfig writes a config.json populated with defaults.
func GenerateSampleConfig(filename string) error {
	data, err := json.MarshalIndent(defaults(), "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling sample config: %w", err)
	}
	return os.WriteFile(filename, data, 0o644)
}
