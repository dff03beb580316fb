// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Master key for administrative access. Grants every permission;
	// rotate by restarting with a new value.
	MasterKey string `env:"MASTER_KEY,required"`

	// JWTSecret signs access tokens. Falls back to MasterKey when unset
	// (see Validate), which keeps single-secret deployments working.
	JWTSecret string `env:"JWT_SECRET" envDefault:""`

	// Token lifetimes
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"30m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"336h"` // 14 days

	// Budget defaults applied to newly provisioned users.
	// DefaultMaxBudget <= 0 means unlimited.
	DefaultMaxBudget         float64 `env:"DEFAULT_MAX_BUDGET" envDefault:"0"`
	DefaultBudgetDurationSec int64   `env:"DEFAULT_BUDGET_DURATION_SEC" envDefault:"2592000"` // 30 days

	// External profile verification
	VerifyTimeout time.Duration `env:"VERIFY_TIMEOUT" envDefault:"5s"`

	// Security event webhook. Empty disables delivery.
	SecurityWebhookURL    string `env:"SECURITY_WEBHOOK_URL" envDefault:""`
	SecurityWebhookSecret string `env:"SECURITY_WEBHOOK_SECRET" envDefault:""`

	// Usage ledger worker
	UsageBatchSize      int           `env:"USAGE_BATCH_SIZE" envDefault:"100"`
	UsageBlockTimeout   time.Duration `env:"USAGE_BLOCK_TIMEOUT" envDefault:"5s"`
	UsageWorkerDisabled bool          `env:"USAGE_WORKER_DISABLED" envDefault:"false"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Rate limiting
	RateLimitEnabled     bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitUserPerMin  int  `env:"RATE_LIMIT_USER_PER_MIN" envDefault:"300"`
	RateLimitUserBurst   int  `env:"RATE_LIMIT_USER_BURST" envDefault:"50"`
	RateLimitLoginPerSec int  `env:"RATE_LIMIT_LOGIN_PER_SEC" envDefault:"5"`
	RateLimitLoginBurst  int  `env:"RATE_LIMIT_LOGIN_BURST" envDefault:"10"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// SigningSecret returns the access-token signing secret, falling back
// to the master key when JWT_SECRET is unset.
func (c *Config) SigningSecret() string {
	if c.JWTSecret != "" {
		return c.JWTSecret
	}
	return c.MasterKey
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.AccessTokenTTL <= 0 {
		return nil, fmt.Errorf("ACCESS_TOKEN_TTL must be positive")
	}
	if cfg.RefreshTokenTTL <= cfg.AccessTokenTTL {
		return nil, fmt.Errorf("REFRESH_TOKEN_TTL must exceed ACCESS_TOKEN_TTL")
	}

	return cfg, nil
}
