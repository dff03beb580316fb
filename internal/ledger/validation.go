// Package ledger provides usage event capture and spend accounting.
package ledger

import (
	"fmt"

	"github.com/anyllm/gateway/internal/model"
)

const (
	maxModelLength    = 200
	maxEndpointLength = 200
	maxErrorLength    = 1000
)

// ValidateUsageEventPayload validates usage event payload fields.
func ValidateUsageEventPayload(payload UsageEventPayload) error {
	if payload.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if payload.Model == "" {
		return fmt.Errorf("model is required")
	}
	if len(payload.Model) > maxModelLength {
		return fmt.Errorf("model too long")
	}
	if payload.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if len(payload.Endpoint) > maxEndpointLength {
		return fmt.Errorf("endpoint too long")
	}
	if payload.PromptTokens < 0 || payload.CompletionTokens < 0 || payload.TotalTokens < 0 {
		return fmt.Errorf("token counts must be non-negative")
	}
	if payload.Cost < 0 {
		return fmt.Errorf("cost must be non-negative")
	}
	if payload.Status != model.UsageStatusSuccess && payload.Status != model.UsageStatusError {
		return fmt.Errorf("status must be %q or %q", model.UsageStatusSuccess, model.UsageStatusError)
	}
	if payload.Timestamp <= 0 {
		return fmt.Errorf("timestamp must be set")
	}
	if len(payload.ErrorMessage) > maxErrorLength {
		return fmt.Errorf("error_message too long")
	}
	return nil
}
