package ledger

import (
	"strings"
	"testing"
	"time"

	"github.com/anyllm/gateway/internal/model"
)

func validPayload() UsageEventPayload {
	return UsageEventPayload{
		UserID:           "user-1",
		APIKeyID:         "key-1",
		Model:            "gpt-4o",
		Provider:         "openai",
		Endpoint:         "/v1/chat/completions",
		PromptTokens:     120,
		CompletionTokens: 80,
		TotalTokens:      200,
		Cost:             0.0042,
		Status:           model.UsageStatusSuccess,
		Timestamp:        time.Now().UnixMilli(),
	}
}

func TestValidateUsageEventPayload(t *testing.T) {
	t.Parallel()

	if err := ValidateUsageEventPayload(validPayload()); err != nil {
		t.Fatalf("Valid payload rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*UsageEventPayload)
	}{
		{"missing user", func(p *UsageEventPayload) { p.UserID = "" }},
		{"missing model", func(p *UsageEventPayload) { p.Model = "" }},
		{"model too long", func(p *UsageEventPayload) { p.Model = strings.Repeat("x", 201) }},
		{"missing endpoint", func(p *UsageEventPayload) { p.Endpoint = "" }},
		{"endpoint too long", func(p *UsageEventPayload) { p.Endpoint = strings.Repeat("x", 201) }},
		{"negative prompt tokens", func(p *UsageEventPayload) { p.PromptTokens = -1 }},
		{"negative completion tokens", func(p *UsageEventPayload) { p.CompletionTokens = -1 }},
		{"negative total tokens", func(p *UsageEventPayload) { p.TotalTokens = -1 }},
		{"negative cost", func(p *UsageEventPayload) { p.Cost = -0.01 }},
		{"unknown status", func(p *UsageEventPayload) { p.Status = "pending" }},
		{"empty status", func(p *UsageEventPayload) { p.Status = "" }},
		{"zero timestamp", func(p *UsageEventPayload) { p.Timestamp = 0 }},
		{"error message too long", func(p *UsageEventPayload) { p.ErrorMessage = strings.Repeat("x", 1001) }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			payload := validPayload()
			tt.mutate(&payload)
			if err := ValidateUsageEventPayload(payload); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestValidateUsageEventPayload_ErrorStatus(t *testing.T) {
	t.Parallel()

	payload := validPayload()
	payload.Status = model.UsageStatusError
	payload.ErrorMessage = "upstream timeout"
	if err := ValidateUsageEventPayload(payload); err != nil {
		t.Fatalf("Error-status payload rejected: %v", err)
	}
}
