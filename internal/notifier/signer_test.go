package notifier

import (
	"errors"
	"testing"
	"time"
)

func TestSignatureRoundTrip(t *testing.T) {
	t.Parallel()

	secret := "webhook-secret"
	payload := []byte(`{"type":"auth.refresh_reuse_detected","user_id":"user-1"}`)
	timestamp := time.Now().Unix()

	sig := GenerateSignature(secret, timestamp, payload)
	if len(sig) != 64 {
		t.Errorf("Signature length = %d, want 64 hex chars", len(sig))
	}

	if err := ValidateSignature(secret, sig, timestamp, payload, DefaultReplayWindow); err != nil {
		t.Errorf("Valid signature rejected: %v", err)
	}
}

func TestValidateSignature_WrongSecret(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"type":"admin.user_blocked"}`)
	timestamp := time.Now().Unix()
	sig := GenerateSignature("secret-a", timestamp, payload)

	err := ValidateSignature("secret-b", sig, timestamp, payload, DefaultReplayWindow)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature, got: %v", err)
	}
}

func TestValidateSignature_TamperedPayload(t *testing.T) {
	t.Parallel()

	secret := "webhook-secret"
	timestamp := time.Now().Unix()
	sig := GenerateSignature(secret, timestamp, []byte(`{"user_id":"user-1"}`))

	err := ValidateSignature(secret, sig, timestamp, []byte(`{"user_id":"user-2"}`), DefaultReplayWindow)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature, got: %v", err)
	}
}

func TestValidateSignature_ReplayWindow(t *testing.T) {
	t.Parallel()

	secret := "webhook-secret"
	payload := []byte(`{}`)

	tests := []struct {
		name      string
		timestamp int64
		wantErr   error
	}{
		{"too old", time.Now().Add(-10 * time.Minute).Unix(), ErrReplayWindowExceeded},
		{"too far ahead", time.Now().Add(10 * time.Minute).Unix(), ErrReplayWindowExceeded},
		{"within window", time.Now().Add(-time.Minute).Unix(), nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sig := GenerateSignature(secret, tt.timestamp, payload)
			err := ValidateSignature(secret, sig, tt.timestamp, payload, DefaultReplayWindow)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got: %v", tt.wantErr, err)
			}
		})
	}
}
