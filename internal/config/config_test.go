package config

import (
	"os"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/gateway")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("MASTER_KEY", "sk-master-test")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.AppEnv != "development" {
		t.Errorf("AppEnv = %q, want development", cfg.AppEnv)
	}
	if cfg.AppPort != 8080 {
		t.Errorf("AppPort = %d, want 8080", cfg.AppPort)
	}
	if cfg.AccessTokenTTL != 30*time.Minute {
		t.Errorf("AccessTokenTTL = %v, want 30m", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 336*time.Hour {
		t.Errorf("RefreshTokenTTL = %v, want 336h", cfg.RefreshTokenTTL)
	}
	if cfg.UsageBatchSize != 100 {
		t.Errorf("UsageBatchSize = %d, want 100", cfg.UsageBatchSize)
	}
	if !cfg.RateLimitEnabled {
		t.Error("Rate limiting should default to enabled")
	}
	if cfg.MaxRequestBodySize != 1048576 {
		t.Errorf("MaxRequestBodySize = %d, want 1MB", cfg.MaxRequestBodySize)
	}
	if !cfg.IsDevelopment() || cfg.IsProduction() {
		t.Error("Default environment should be development")
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	// t.Setenv registers the restore; the vars must be absent, not
	// empty, for the required check to trip.
	for _, key := range []string{"DATABASE_URL", "REDIS_URL", "MASTER_KEY"} {
		t.Setenv(key, "placeholder")
		os.Unsetenv(key)
	}

	if _, err := Load(); err == nil {
		t.Error("Expected error for missing required variables")
	}
}

func TestLoad_TTLValidation(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ACCESS_TOKEN_TTL", "1h")
	t.Setenv("REFRESH_TOKEN_TTL", "30m")

	if _, err := Load(); err == nil {
		t.Error("Refresh TTL at or below access TTL must be rejected")
	}
}

func TestLoad_NonPositiveAccessTTL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ACCESS_TOKEN_TTL", "0s")

	if _, err := Load(); err == nil {
		t.Error("Non-positive access TTL must be rejected")
	}
}

func TestSigningSecret_Fallback(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := cfg.SigningSecret(); got != "sk-master-test" {
		t.Errorf("SigningSecret = %q, want master key fallback", got)
	}

	t.Setenv("JWT_SECRET", "dedicated-signing-secret")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := cfg.SigningSecret(); got != "dedicated-signing-secret" {
		t.Errorf("SigningSecret = %q, want JWT_SECRET", got)
	}
}

func TestGetCORSAllowedOrigins(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value string
		want  []string
	}{
		{"empty", "", nil},
		{"single", "https://example.com", []string{"https://example.com"}},
		{"multiple with spaces", "https://a.com, https://b.com ,https://c.com", []string{"https://a.com", "https://b.com", "https://c.com"}},
		{"trailing comma", "https://a.com,", []string{"https://a.com"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := &Config{CORSAllowedOrigins: tt.value}
			got := cfg.GetCORSAllowedOrigins()
			if len(got) != len(tt.want) {
				t.Fatalf("Got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Origin[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
