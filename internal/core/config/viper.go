package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults matching DefaultConfig
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8082)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("analytics.endpoint", "http://localhost:4000/api/v1/audiences/analytics/query")
	v.SetDefault("analytics.request_timeout", "10s")
	v.SetDefault("analytics.retry_max", 2)
	v.SetDefault("identity.base_url", "http://localhost:8180")
	v.SetDefault("identity.realm", "explorer")
	v.SetDefault("identity.client_id", "web")

	// Bind environment variables with COHORT_ prefix
	v.SetEnvPrefix("COHORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Security check: reject secrets in config files
	// Secrets must be environment-only per 12-factor principles
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Analytics: AnalyticsConfig{
			Endpoint:       v.GetString("analytics.endpoint"),
			RequestTimeout: v.GetDuration("analytics.request_timeout"),
			RetryMax:       v.GetInt("analytics.retry_max"),
		},
		Identity: IdentityConfig{
			BaseURL:  v.GetString("identity.base_url"),
			Realm:    v.GetString("identity.realm"),
			ClientID: v.GetString("identity.client_id"),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks port range and positive durations.
func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Analytics.Endpoint == "" {
		return fmt.Errorf("analytics.endpoint is required")
	}
	if cfg.Analytics.RequestTimeout <= 0 {
		return fmt.Errorf("analytics.request_timeout must be positive, got %v", cfg.Analytics.RequestTimeout)
	}
	if cfg.Analytics.RetryMax < 0 {
		return fmt.Errorf("analytics.retry_max must be non-negative, got %d", cfg.Analytics.RetryMax)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets (12-factor principle).
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.IsSet("client_secret") || v.IsSet("identity.client_secret") {
		return fmt.Errorf("identity secrets not allowed in config files (use COHORT_IDENTITY_CLIENT_SECRET environment variable)")
	}
	return nil
}
