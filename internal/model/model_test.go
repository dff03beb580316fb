package model

import (
	"testing"
	"time"
)

func TestBudget_Duration(t *testing.T) {
	t.Parallel()

	b := &Budget{DurationSec: 3600}
	if got := b.Duration(); got != time.Hour {
		t.Errorf("Duration = %v, want 1h", got)
	}

	// Unset or nonsense windows fall back to the default.
	for _, sec := range []int64{0, -10} {
		b := &Budget{DurationSec: sec}
		if got := b.Duration(); got != DefaultBudgetDuration {
			t.Errorf("Duration(%d) = %v, want default", sec, got)
		}
	}
}

func TestBudget_Unlimited(t *testing.T) {
	t.Parallel()

	if !(&Budget{}).Unlimited() {
		t.Error("Nil MaxBudget should be unlimited")
	}

	limit := 100.0
	if (&Budget{MaxBudget: &limit}).Unlimited() {
		t.Error("Set MaxBudget should not be unlimited")
	}
}

func TestAPIKey_Usable(t *testing.T) {
	t.Parallel()

	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name string
		key  APIKey
		want bool
	}{
		{"active no expiry", APIKey{IsActive: true}, true},
		{"active future expiry", APIKey{IsActive: true, ExpiresAt: &future}, true},
		{"active expired", APIKey{IsActive: true, ExpiresAt: &past}, false},
		{"inactive", APIKey{IsActive: false}, false},
		{"expiry exactly now", APIKey{IsActive: true, ExpiresAt: &now}, false},
	}

	for _, tt := range tests {
		if got := tt.key.Usable(now); got != tt.want {
			t.Errorf("%s: Usable = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestAPIKey_ToResponse(t *testing.T) {
	t.Parallel()

	key := APIKey{
		ID:        "key-1",
		UserID:    "user-1",
		KeyHash:   "$argon2id$...",
		KeyPrefix: "abc123",
		Name:      "backend",
		IsActive:  true,
	}

	resp := key.ToResponse()
	if resp.ID != "key-1" || resp.KeyPrefix != "abc123" || resp.Name != "backend" {
		t.Errorf("Unexpected response: %+v", resp)
	}
}

func TestSessionToken_IsRevoked(t *testing.T) {
	t.Parallel()

	s := SessionToken{}
	if s.IsRevoked() {
		t.Error("Fresh session should not be revoked")
	}

	revokedAt := time.Now()
	s.RevokedAt = &revokedAt
	if !s.IsRevoked() {
		t.Error("Session with RevokedAt should be revoked")
	}
}

func TestSessionToken_IsExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()

	s := SessionToken{RefreshExpiresAt: now.Add(time.Hour)}
	if s.IsExpired(now) {
		t.Error("Session with future expiry should not be expired")
	}

	s.RefreshExpiresAt = now.Add(-time.Second)
	if !s.IsExpired(now) {
		t.Error("Session past expiry should be expired")
	}

	s.RefreshExpiresAt = now
	if !s.IsExpired(now) {
		t.Error("Session expiring exactly now should be expired")
	}
}

func TestLoginRequest_SessionMetadata(t *testing.T) {
	t.Parallel()

	req := LoginRequest{
		Provider:   "google",
		DeviceType: "cli",
		DeviceID:   "dev-1",
		OS:         "linux",
		AppVersion: "1.2.3",
		UserAgent:  "gateway-cli/1.2.3",
		IP:         "203.0.113.9",
	}

	meta := req.SessionMetadata()
	if meta.DeviceType != "cli" || meta.DeviceID != "dev-1" || meta.IP != "203.0.113.9" {
		t.Errorf("Unexpected metadata: %+v", meta)
	}
	if meta.OS != "linux" || meta.AppVersion != "1.2.3" || meta.UserAgent != "gateway-cli/1.2.3" {
		t.Errorf("Unexpected metadata: %+v", meta)
	}
}
