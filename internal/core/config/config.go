// Package config provides configuration management for the Cohort service.
package config

import (
	"fmt"
	"os"
	"time"
)

// ServerConfig holds the HTTP admin API settings.
type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

// AnalyticsConfig holds the analytics collaborator client settings.
type AnalyticsConfig struct {
	Endpoint       string
	RequestTimeout time.Duration
	RetryMax       int
}

// IdentityConfig holds the identity provider client settings.
// The client secret is environment-only; see IdentityClientSecret.
type IdentityConfig struct {
	BaseURL  string
	Realm    string
	ClientID string
}

// Config is the root service configuration.
type Config struct {
	Server    ServerConfig
	Analytics AnalyticsConfig
	Identity  IdentityConfig
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8082,
			ShutdownTimeout: 30 * time.Second,
		},
		Analytics: AnalyticsConfig{
			Endpoint:       "http://localhost:4000/api/v1/audiences/analytics/query",
			RequestTimeout: 10 * time.Second,
			RetryMax:       2,
		},
		Identity: IdentityConfig{
			BaseURL:  "http://localhost:8180",
			Realm:    "explorer",
			ClientID: "web",
		},
	}
}

// IdentityClientSecret reads the OAuth2 client secret from the
// environment. Secrets are environment-only; LoadConfig rejects config
// files that carry one.
func IdentityClientSecret() (string, error) {
	secret := os.Getenv("COHORT_IDENTITY_CLIENT_SECRET")
	if secret == "" {
		return "", fmt.Errorf("COHORT_IDENTITY_CLIENT_SECRET not set")
	}
	return secret, nil
}
