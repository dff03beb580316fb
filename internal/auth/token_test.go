package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestSigner(ttl time.Duration) *TokenSigner {
	return NewTokenSigner([]byte("test-signing-secret"), ttl)
}

func TestTokenSigner_RoundTrip(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(30 * time.Minute)

	token, expiresAt, err := signer.Sign("user-1", "key-1", "session-1")
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("Expected compact JWS serialization, got: %s", token)
	}
	if !expiresAt.After(time.Now()) {
		t.Error("Expiry should be in the future")
	}

	claims, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("Subject = %q, want user-1", claims.Subject)
	}
	if claims.APIKeyID != "key-1" {
		t.Errorf("APIKeyID = %q, want key-1", claims.APIKeyID)
	}
	if claims.ID != "session-1" {
		t.Errorf("ID = %q, want session-1", claims.ID)
	}
}

func TestTokenSigner_Expired(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(30 * time.Minute)

	past := time.Now().Add(-2 * time.Hour)
	signer.SetClock(func() time.Time { return past })

	token, _, err := signer.Sign("user-1", "key-1", "session-1")
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	signer.SetClock(time.Now)
	if _, err := signer.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Expected ErrTokenExpired, got: %v", err)
	}
}

func TestTokenSigner_WrongSecret(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(30 * time.Minute)
	token, _, err := signer.Sign("user-1", "key-1", "session-1")
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	other := NewTokenSigner([]byte("a-different-secret"), 30*time.Minute)
	if _, err := other.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Expected ErrTokenInvalid, got: %v", err)
	}
}

func TestTokenSigner_Tampered(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(30 * time.Minute)
	token, _, err := signer.Sign("user-1", "key-1", "session-1")
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	parts := strings.Split(token, ".")
	tampered := parts[0] + ".eyJzdWIiOiJ1c2VyLTIifQ." + parts[2]
	if _, err := signer.Verify(tampered); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Expected ErrTokenInvalid, got: %v", err)
	}
}

func TestTokenSigner_MissingClaims(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(30 * time.Minute)

	// A token without api_key_id is structurally incomplete.
	token, _, err := signer.Sign("user-1", "", "session-1")
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if _, err := signer.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Expected ErrTokenInvalid for missing api_key_id, got: %v", err)
	}
}

func TestTokenSigner_Garbage(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(30 * time.Minute)

	for _, input := range []string{"", "garbage", "a.b", "a.b.c"} {
		if _, err := signer.Verify(input); err == nil {
			t.Errorf("Expected error for %q", input)
		}
	}
}
