package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Google    GoogleConfig    `mapstructure:"google"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"` // SQLite connection string
}

// GoogleConfig holds Business Profile API settings
type GoogleConfig struct {
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RedirectURI  string   `mapstructure:"redirect_uri"`
	Scopes       []string `mapstructure:"scopes"`
	AccountID    string   `mapstructure:"account_id"` // accounts/{id} parent for API calls
	// Token injection from environment (for headless deployment)
	AccessToken    string `mapstructure:"access_token"`
	RefreshToken   string `mapstructure:"refresh_token"`
	TokenExpiresAt string `mapstructure:"token_expires_at"`
}

// AnthropicConfig holds Claude API settings
type AnthropicConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// EngineConfig holds automation engine settings
type EngineConfig struct {
	ContentPollInterval time.Duration `mapstructure:"content_poll_interval"`
	ReviewPollInterval  time.Duration `mapstructure:"review_poll_interval"`
	FlushInterval       time.Duration `mapstructure:"flush_interval"`
	CallTimeout         time.Duration `mapstructure:"call_timeout"`
	CleanupCron         string        `mapstructure:"cleanup_cron"`
	LedgerRetentionDays int           `mapstructure:"ledger_retention_days"`
	// TestMode permits the test-fast frequency, used only in
	// verification flows.
	TestMode bool `mapstructure:"test_mode"`
}

// SourcesConfig holds the optional industry-news feed settings
type SourcesConfig struct {
	RSS RSSConfig `mapstructure:"rss"`
}

// RSSConfig maps a business category to an industry feed URL
type RSSConfig struct {
	Enabled bool              `mapstructure:"enabled"`
	Feeds   map[string]string `mapstructure:"feeds"` // category -> feed URL
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
	Output string `mapstructure:"output"` // stdout or file path
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if present (ignore errors if not found)
	_ = godotenv.Load()
	_ = godotenv.Load(".env.local")

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in current directory and configs folder
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		// Also check user's home directory
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".profile-agent"))
		}
	}

	// Environment variables
	v.SetEnvPrefix("PROFILE")
	v.AutomaticEnv()

	// Explicit bindings for nested keys (Viper doesn't auto-bind underscored nested keys)
	v.BindEnv("anthropic.api_key", "PROFILE_ANTHROPIC_API_KEY")
	v.BindEnv("google.client_id", "PROFILE_GOOGLE_CLIENT_ID")
	v.BindEnv("google.client_secret", "PROFILE_GOOGLE_CLIENT_SECRET")
	v.BindEnv("google.access_token", "PROFILE_GOOGLE_ACCESS_TOKEN")
	v.BindEnv("google.refresh_token", "PROFILE_GOOGLE_REFRESH_TOKEN")
	v.BindEnv("google.account_id", "PROFILE_GOOGLE_ACCOUNT_ID")
	v.BindEnv("database.dsn", "PROFILE_DATABASE_DSN")
	v.BindEnv("engine.test_mode", "PROFILE_ENGINE_TEST_MODE")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.dsn", "./data/profile-agent.db")

	// Google defaults
	v.SetDefault("google.redirect_uri", "http://localhost:8080/callback")
	v.SetDefault("google.scopes", []string{"https://www.googleapis.com/auth/business.manage"})

	// Anthropic defaults
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.temperature", 0.7)

	// Engine defaults
	v.SetDefault("engine.content_poll_interval", "15s")
	v.SetDefault("engine.review_poll_interval", "120s")
	v.SetDefault("engine.flush_interval", "30s")
	v.SetDefault("engine.call_timeout", "60s")
	v.SetDefault("engine.cleanup_cron", "0 4 * * *") // 4am daily maintenance
	v.SetDefault("engine.ledger_retention_days", 180)
	v.SetDefault("engine.test_mode", false)

	// Sources defaults
	v.SetDefault("sources.rss.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Anthropic.APIKey == "" {
		return fmt.Errorf("anthropic.api_key is required")
	}
	if c.Google.ClientID == "" {
		return fmt.Errorf("google.client_id is required")
	}
	if c.Google.ClientSecret == "" {
		return fmt.Errorf("google.client_secret is required")
	}
	if c.Engine.ContentPollInterval <= 0 || c.Engine.ReviewPollInterval <= 0 {
		return fmt.Errorf("engine poll intervals must be positive")
	}
	return nil
}
