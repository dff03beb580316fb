// Package model defines domain entities for the application.
package model

import "time"

// User is a gateway account. Provisioned automatically on first social
// login together with its budget, API key and provider identity.
type User struct {
	ID                string         `json:"id"`
	BudgetID          string         `json:"budget_id"`
	Alias             string         `json:"alias,omitempty"`
	Spend             float64        `json:"spend"`
	Blocked           bool           `json:"blocked"`
	BudgetStartedAt   *time.Time     `json:"budget_started_at,omitempty"`
	NextBudgetResetAt *time.Time     `json:"next_budget_reset_at,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// BudgetInfo builds the combined budget/spend view for this user.
func (u *User) BudgetInfo(budget *Budget) BudgetInfo {
	info := BudgetInfo{
		Spend:             u.Spend,
		BudgetStartedAt:   u.BudgetStartedAt,
		NextBudgetResetAt: u.NextBudgetResetAt,
	}
	if budget != nil {
		info.BudgetID = budget.ID
		info.MaxBudget = budget.MaxBudget
		info.DurationSec = budget.DurationSec
	}
	return info
}

// UserResponse is the user view returned by the API.
type UserResponse struct {
	ID                string         `json:"id"`
	Alias             string         `json:"alias,omitempty"`
	Spend             float64        `json:"spend"`
	Blocked           bool           `json:"blocked"`
	NextBudgetResetAt *time.Time     `json:"next_budget_reset_at,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// ToResponse converts a User to UserResponse.
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:                u.ID,
		Alias:             u.Alias,
		Spend:             u.Spend,
		Blocked:           u.Blocked,
		NextBudgetResetAt: u.NextBudgetResetAt,
		Metadata:          u.Metadata,
		CreatedAt:         u.CreatedAt,
	}
}
