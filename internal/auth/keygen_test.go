package auth

import (
	"strings"
	"testing"
)

func TestGenerateAPIKey(t *testing.T) {
	t.Parallel()

	generated, err := GenerateAPIKey(EnvLive)
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}

	if !strings.HasPrefix(generated.Plaintext, "ak_live_") {
		t.Errorf("Expected ak_live_ prefix, got: %s", generated.Plaintext)
	}
	if !ValidateKeyFormat(generated.Plaintext) {
		t.Errorf("Generated key should match format: %s", generated.Plaintext)
	}
	if len(generated.Prefix) != KeyPrefixLen {
		t.Errorf("Prefix length = %d, want %d", len(generated.Prefix), KeyPrefixLen)
	}

	// Hash must verify against the plaintext.
	match, err := VerifySecret(generated.Plaintext, generated.Hash)
	if err != nil {
		t.Fatalf("VerifySecret failed: %v", err)
	}
	if !match {
		t.Error("Generated hash should verify against plaintext")
	}
}

func TestGenerateAPIKey_TestEnv(t *testing.T) {
	t.Parallel()

	generated, err := GenerateAPIKey(EnvTest)
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}
	if !strings.HasPrefix(generated.Plaintext, "ak_test_") {
		t.Errorf("Expected ak_test_ prefix, got: %s", generated.Plaintext)
	}
}

func TestGenerateAPIKey_UnknownEnvDefaultsToLive(t *testing.T) {
	t.Parallel()

	generated, err := GenerateAPIKey("staging")
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}
	if !strings.HasPrefix(generated.Plaintext, "ak_live_") {
		t.Errorf("Unknown env should default to live, got: %s", generated.Plaintext)
	}
}

func TestGenerateAPIKey_Uniqueness(t *testing.T) {
	t.Parallel()

	k1, err := GenerateAPIKey(EnvLive)
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}
	k2, err := GenerateAPIKey(EnvLive)
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}
	if k1.Plaintext == k2.Plaintext {
		t.Error("Generated keys must be unique")
	}
}

func TestParseAPIKey(t *testing.T) {
	t.Parallel()

	generated, err := GenerateAPIKey(EnvLive)
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}

	parsed, err := ParseAPIKey(generated.Plaintext)
	if err != nil {
		t.Fatalf("ParseAPIKey failed: %v", err)
	}
	if parsed.Env != EnvLive {
		t.Errorf("Env = %q, want %q", parsed.Env, EnvLive)
	}
	if parsed.Prefix != generated.Prefix {
		t.Errorf("Prefix = %q, want %q", parsed.Prefix, generated.Prefix)
	}
	if len(parsed.Secret) != KeySecretLen {
		t.Errorf("Secret length = %d, want %d", len(parsed.Secret), KeySecretLen)
	}
}

func TestParseAPIKey_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"garbage", "not-a-key"},
		{"wrong env", "ak_prod_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b"},
		{"short prefix", "ak_live_abc_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b"},
		{"short secret", "ak_live_abc123_4f8d2e1b"},
		{"uppercase hex", "ak_live_ABC123_4F8D2E1B9C7A5F3D2E1B9C7A5F3D2E1B"},
		{"jwt shaped", "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ4In0.c2ln"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseAPIKey(tt.key); err == nil {
				t.Errorf("Expected error for %q", tt.key)
			}
		})
	}
}

func TestGenerateRefreshToken(t *testing.T) {
	t.Parallel()

	token, err := GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken failed: %v", err)
	}

	// 48 bytes base64url without padding is 64 characters.
	if len(token) != 64 {
		t.Errorf("Token length = %d, want 64", len(token))
	}
	if strings.ContainsAny(token, "+/=") {
		t.Errorf("Token should be URL-safe without padding: %s", token)
	}

	other, err := GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken failed: %v", err)
	}
	if token == other {
		t.Error("Refresh tokens must be unique")
	}
}
