package auth

import (
	"strings"
	"testing"
)

func TestHashSecret_Format(t *testing.T) {
	t.Parallel()

	secret := "ak_live_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b"

	hash, err := HashSecret(secret)
	if err != nil {
		t.Fatalf("HashSecret failed: %v", err)
	}

	// PHC format: $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
	if !strings.HasPrefix(hash, "$argon2id$v=") {
		t.Errorf("Hash should be in PHC format, got: %s", hash)
	}

	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		t.Fatalf("Hash should have 6 parts, got: %d", len(parts))
	}
	if parts[3] != "m=65536,t=3,p=4" {
		t.Errorf("Expected m=65536,t=3,p=4, got: %s", parts[3])
	}
}

func TestHashSecret_Uniqueness(t *testing.T) {
	t.Parallel()

	secret := "the_same_secret_12345"

	hash1, err := HashSecret(secret)
	if err != nil {
		t.Fatalf("HashSecret failed: %v", err)
	}
	hash2, err := HashSecret(secret)
	if err != nil {
		t.Fatalf("HashSecret failed: %v", err)
	}

	// Random salt means identical secrets hash differently.
	if hash1 == hash2 {
		t.Error("Same secret should produce different hashes due to random salt")
	}

	match1, _ := VerifySecret(secret, hash1)
	match2, _ := VerifySecret(secret, hash2)
	if !match1 || !match2 {
		t.Error("Both hashes should verify correctly")
	}
}

func TestVerifySecret(t *testing.T) {
	t.Parallel()

	secret := "ak_live_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b"
	hash, err := HashSecret(secret)
	if err != nil {
		t.Fatalf("HashSecret failed: %v", err)
	}

	match, err := VerifySecret(secret, hash)
	if err != nil {
		t.Fatalf("VerifySecret failed: %v", err)
	}
	if !match {
		t.Error("Correct secret should match")
	}

	match, err = VerifySecret("ak_live_abc123_wrongwrongwrongwrongwrongwron", hash)
	if err != nil {
		t.Fatalf("VerifySecret failed: %v", err)
	}
	if match {
		t.Error("Wrong secret should not match")
	}
}

func TestVerifySecret_InvalidHash(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"not PHC", "plainhash"},
		{"wrong algorithm", "$bcrypt$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA"},
		{"too few parts", "$argon2id$v=19$m=65536,t=3,p=4$c2FsdA"},
		{"bad salt encoding", "$argon2id$v=19$m=65536,t=3,p=4$!!!$aGFzaA"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := VerifySecret("secret", tt.hash); err == nil {
				t.Error("Expected error for invalid hash")
			}
		})
	}
}

func TestHashToken(t *testing.T) {
	t.Parallel()

	token := "opaque-refresh-token"

	h1 := HashToken(token)
	h2 := HashToken(token)
	if h1 != h2 {
		t.Error("HashToken must be deterministic")
	}
	if len(h1) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(h1))
	}
	if h1 == HashToken("different-token") {
		t.Error("Different tokens must not collide")
	}
}

func TestQuickHash(t *testing.T) {
	t.Parallel()

	h := QuickHash("some credential")
	if len(h) != 32 {
		t.Errorf("Expected 32 hex chars, got %d", len(h))
	}
	if h == QuickHash("another credential") {
		t.Error("Different inputs must not collide")
	}
	// Truncated digest must differ from the storage digest.
	if h == HashToken("some credential") {
		t.Error("QuickHash must not equal the full token hash")
	}
}

func TestConstantTimeEquals(t *testing.T) {
	t.Parallel()

	if !ConstantTimeEquals("master-key", "master-key") {
		t.Error("Equal strings should compare true")
	}
	if ConstantTimeEquals("master-key", "master-kez") {
		t.Error("Different strings should compare false")
	}
	if ConstantTimeEquals("master-key", "master") {
		t.Error("Different lengths should compare false")
	}
	if !ConstantTimeEquals("", "") {
		t.Error("Empty strings should compare true")
	}
}
